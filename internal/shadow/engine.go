// Package shadow materializes the desired schema in a throwaway database
// instance. A shadow is never a mutation target for real data; it exists
// to be diffed against and destroyed.
package shadow

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// Engine is one disposable database instance. Implementations must be
// single-call-scoped: created, seeded, queried, destroyed, never reused.
type Engine interface {
	Exec(ctx context.Context, sql string) error
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Destroy(ctx context.Context) error
}

// Factory creates fresh engines. Injectable so tests can substitute a
// fake without a real cluster.
type Factory interface {
	Create(ctx context.Context) (Engine, error)
}

type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}
