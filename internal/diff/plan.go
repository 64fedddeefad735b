// Package diff defines the structural-diff contract between two database
// states and ships a catalog-based implementation of it.
package diff

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

// Plan is the result of comparing two database states: ordered raw SQL
// statements plus an opaque fingerprint of the starting state. Read-only
// once produced.
type Plan struct {
	Statements  []string  `json:"statements"`
	Fingerprint string    `json:"fingerprint"`
	CreatedAt   time.Time `json:"created_at"`
}

// HasChanges reports whether the plan contains any statements.
func (p *Plan) HasChanges() bool {
	return p != nil && len(p.Statements) > 0
}

// PlatformRules tells an Oracle which objects the hosting platform owns so
// it can pre-filter them. The statement filter remains the authoritative
// second pass.
type PlatformRules struct {
	ReservedSchemas []string
	ManagedRoles    []string
	Publication     string
}

// Querier is the read surface an Oracle needs. *pgxpool.Pool, *pgx.Conn
// and the shadow engine all satisfy it.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Oracle computes structural differences between two live connections.
//
// Compare produces the statements that transform from-state into to-state,
// with Fingerprint capturing from-state at plan time. Fingerprint alone
// re-derives that value so an applier can detect drift before executing.
type Oracle interface {
	Compare(ctx context.Context, from, to Querier, rules PlatformRules) (*Plan, error)
	Fingerprint(ctx context.Context, conn Querier) (string, error)
}
