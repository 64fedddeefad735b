package diff

import (
	"context"
	"fmt"
	"time"
)

// CatalogOracle is the built-in Oracle. It introspects both sides through
// the system catalogs and renders transforming DDL itself. An external
// differ can replace it anywhere an Oracle is accepted.
type CatalogOracle struct {
	rules PlatformRules
}

// NewCatalogOracle builds an oracle whose Fingerprint calls use the given
// platform rules. Compare calls use the rules passed per call.
func NewCatalogOracle(rules PlatformRules) *CatalogOracle {
	return &CatalogOracle{rules: rules}
}

// Compare snapshots both connections and returns the plan turning
// from-state into to-state, fingerprinting from-state.
func (o *CatalogOracle) Compare(ctx context.Context, from, to Querier, rules PlatformRules) (*Plan, error) {
	fromSnap, err := snapshot(ctx, from, rules)
	if err != nil {
		return nil, fmt.Errorf("snapshot from-state: %w", err)
	}
	toSnap, err := snapshot(ctx, to, rules)
	if err != nil {
		return nil, fmt.Errorf("snapshot to-state: %w", err)
	}
	return &Plan{
		Statements:  generate(fromSnap, toSnap),
		Fingerprint: fingerprintOf(fromSnap),
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// Fingerprint re-derives the opaque state summary of one connection.
func (o *CatalogOracle) Fingerprint(ctx context.Context, conn Querier) (string, error) {
	snap, err := snapshot(ctx, conn, o.rules)
	if err != nil {
		return "", fmt.Errorf("snapshot for fingerprint: %w", err)
	}
	return fingerprintOf(snap), nil
}
