package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelevant(t *testing.T) {
	tests := []struct {
		name  string
		event fsnotify.Event
		want  bool
	}{
		{"sql write", fsnotify.Event{Name: "tables/orders.sql", Op: fsnotify.Write}, true},
		{"sql create", fsnotify.Event{Name: "indexes/i.sql", Op: fsnotify.Create}, true},
		{"sql remove", fsnotify.Event{Name: "tables/old.sql", Op: fsnotify.Remove}, true},
		{"non-sql file", fsnotify.Event{Name: "README.md", Op: fsnotify.Write}, false},
		{"hidden file", fsnotify.Event{Name: "tables/.orders.sql.swp.sql", Op: fsnotify.Write}, false},
		{"chmod only", fsnotify.Event{Name: "tables/orders.sql", Op: fsnotify.Chmod}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, relevant(tt.event))
		})
	}
}

func TestWatcherCoalescesBurstIntoOneSync(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "tables"), 0o755))

	var runs atomic.Int32
	synced := make(chan struct{}, 8)
	w := &Watcher{
		Root:     root,
		Debounce: 50 * time.Millisecond,
		Sync: func(context.Context) error {
			runs.Add(1)
			synced <- struct{}{}
			return nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher a moment to register the directories.
	time.Sleep(100 * time.Millisecond)

	// A save burst: several writes inside the debounce window.
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(root, "tables", "orders.sql"),
			[]byte("CREATE TABLE public.orders (id bigint);"), 0o644))
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case <-synced:
	case <-time.After(3 * time.Second):
		t.Fatal("sync never ran")
	}

	// Let any stragglers fire, then confirm the burst collapsed.
	time.Sleep(200 * time.Millisecond)
	assert.LessOrEqual(t, runs.Load(), int32(2))

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatcherPicksUpNewDirectories(t *testing.T) {
	root := t.TempDir()

	synced := make(chan struct{}, 8)
	w := &Watcher{
		Root:     root,
		Debounce: 50 * time.Millisecond,
		Sync: func(context.Context) error {
			synced <- struct{}{}
			return nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.MkdirAll(filepath.Join(root, "functions"), 0o755))
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(root, "functions", "f.sql"),
		[]byte("CREATE FUNCTION f() RETURNS void AS $$ SELECT 1; $$ LANGUAGE sql;"), 0o644))

	select {
	case <-synced:
	case <-time.After(3 * time.Second):
		t.Fatal("change in new directory was not seen")
	}
}

func TestWatcherIgnoresUnrelatedFiles(t *testing.T) {
	root := t.TempDir()

	var runs atomic.Int32
	w := &Watcher{
		Root:     root,
		Debounce: 30 * time.Millisecond,
		Sync: func(context.Context) error {
			runs.Add(1)
			return nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(0), runs.Load())
}
