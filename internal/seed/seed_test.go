package seed

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingExecutor struct {
	statements []string
	failAt     int // 1-based, 0 means never
}

func (r *recordingExecutor) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	r.statements = append(r.statements, sql)
	if r.failAt != 0 && len(r.statements) == r.failAt {
		return pgconn.CommandTag{}, errors.New("boom")
	}
	return pgconn.CommandTag{}, nil
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   []string
	}{
		{
			name:   "plain statements",
			script: "INSERT INTO a VALUES (1); INSERT INTO a VALUES (2);",
			want:   []string{"INSERT INTO a VALUES (1)", "INSERT INTO a VALUES (2)"},
		},
		{
			name:   "semicolon inside single quotes",
			script: "INSERT INTO a VALUES ('x;y'); SELECT 1;",
			want:   []string{"INSERT INTO a VALUES ('x;y')", "SELECT 1"},
		},
		{
			name:   "semicolon inside quoted identifier",
			script: `CREATE TABLE "weird;name" (id int);`,
			want:   []string{`CREATE TABLE "weird;name" (id int)`},
		},
		{
			name:   "dollar quoted body stays whole",
			script: "CREATE FUNCTION f() RETURNS void AS $$ BEGIN PERFORM 1; END; $$ LANGUAGE plpgsql; SELECT 2;",
			want: []string{
				"CREATE FUNCTION f() RETURNS void AS $$ BEGIN PERFORM 1; END; $$ LANGUAGE plpgsql",
				"SELECT 2",
			},
		},
		{
			name:   "trailing whitespace and no final semicolon",
			script: "SELECT 1;\n  SELECT 2\n",
			want:   []string{"SELECT 1", "SELECT 2"},
		},
		{
			name:   "empty script",
			script: "  \n ; ; \n",
			want:   nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Split(tt.script))
		})
	}
}

func TestRunExecutesInOrder(t *testing.T) {
	ex := &recordingExecutor{}
	n, err := Run(context.Background(), ex, "INSERT INTO a VALUES (1); INSERT INTO a VALUES (2);")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"INSERT INTO a VALUES (1)", "INSERT INTO a VALUES (2)"}, ex.statements)
}

func TestRunStopsAtFirstFailure(t *testing.T) {
	ex := &recordingExecutor{failAt: 2}
	n, err := Run(context.Background(), ex, "SELECT 1; SELECT 2; SELECT 3;")
	require.Error(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, err.Error(), "statement 2")
	assert.Len(t, ex.statements, 2)
}

func TestRunFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.sql")
	require.NoError(t, os.WriteFile(path, []byte("INSERT INTO a VALUES (1);"), 0o644))

	ex := &recordingExecutor{}
	n, err := RunFile(context.Background(), ex, path)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = RunFile(context.Background(), ex, filepath.Join(t.TempDir(), "missing.sql"))
	assert.Error(t, err)
}
