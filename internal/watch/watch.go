// Package watch re-runs synchronization whenever the local schema files
// change, coalescing save bursts into a single run.
package watch

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is long enough to fold an editor's save burst into one
// sync without making the loop feel laggy.
const DefaultDebounce = 500 * time.Millisecond

type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// SyncFunc runs one synchronization pass. Errors are logged, not fatal;
// the watcher keeps running so the next save gets another chance.
type SyncFunc func(ctx context.Context) error

// Watcher monitors a schema directory tree and triggers SyncFunc after
// changes settle.
type Watcher struct {
	Root     string
	Debounce time.Duration
	Sync     SyncFunc
	Logger   Logger

	mu       sync.Mutex
	inFlight bool
	rerun    bool
}

// Run blocks until ctx is cancelled. New subdirectories are added to the
// watch as they appear, so `mkdir tables && vi tables/orders.sql` works
// without restarting.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	if err := addRecursive(fsw, w.Root); err != nil {
		return err
	}

	debounce := w.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	w.logInfo("watching for schema changes", "dir", w.Root)

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				// Might be a new directory; watch it and its children. A
				// plain file or an already-gone path is a no-op.
				_ = addRecursive(fsw, event.Name)
			}
			if !relevant(event) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			w.trigger(ctx)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logError("watch error", "error", err.Error())
		}
	}
}

// trigger starts a sync unless one is already running, in which case it
// marks a rerun so the change is not lost.
func (w *Watcher) trigger(ctx context.Context) {
	w.mu.Lock()
	if w.inFlight {
		w.rerun = true
		w.mu.Unlock()
		return
	}
	w.inFlight = true
	w.mu.Unlock()

	go func() {
		for {
			if err := w.Sync(ctx); err != nil && ctx.Err() == nil {
				w.logError("sync failed", "error", err.Error())
			}
			w.mu.Lock()
			if !w.rerun || ctx.Err() != nil {
				w.inFlight = false
				w.mu.Unlock()
				return
			}
			w.rerun = false
			w.mu.Unlock()
		}
	}()
}

func (w *Watcher) logInfo(msg string, args ...any) {
	if w.Logger != nil {
		w.Logger.Info(msg, args...)
	}
}

func (w *Watcher) logError(msg string, args ...any) {
	if w.Logger != nil {
		w.Logger.Error(msg, args...)
	}
}

// relevant keeps write, create, remove and rename events on .sql files.
func relevant(event fsnotify.Event) bool {
	if !strings.HasSuffix(event.Name, ".sql") {
		return false
	}
	if strings.HasPrefix(filepath.Base(event.Name), ".") {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
		event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)
}

func addRecursive(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") && path != root {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
}
