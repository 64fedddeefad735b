package syncer

import (
	"context"
	"time"

	"db_declarative_schema_syncer/internal/apply"
	"db_declarative_schema_syncer/internal/pool"
	"db_declarative_schema_syncer/internal/schemafiles"
)

// DirSource reads the declarative files from a directory tree on disk.
type DirSource struct {
	Root string
}

func (d DirSource) Files() ([]schemafiles.SourceFile, error) {
	return schemafiles.Load(d.Root)
}

// PoolLive resolves Live through the shared pool manager for a fixed DSN.
type PoolLive struct {
	Pools *pool.Manager
	DSN   string
}

func (p PoolLive) Acquire(ctx context.Context) (apply.Live, error) {
	return p.Pools.Get(ctx, p.DSN)
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
