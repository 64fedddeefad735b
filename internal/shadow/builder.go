package shadow

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"db_declarative_schema_syncer/internal/schemafiles"
	"db_declarative_schema_syncer/migrations"
)

// Builder seeds fresh shadow engines to represent a desired state.
type Builder struct {
	Factory Factory
	Logger  Logger
}

// Build creates and seeds a shadow engine. With includeUserFiles the
// result represents the schema the source files describe; without it the
// shadow carries the platform baseline only, which is what the pull flow
// diffs against. Files must already be in apply order.
//
// The caller owns the returned engine and must Destroy it. On error the
// engine is already destroyed.
func (b *Builder) Build(ctx context.Context, files []schemafiles.SourceFile, includeUserFiles bool) (Engine, error) {
	eng, err := b.Factory.Create(ctx)
	if err != nil {
		return nil, fmt.Errorf("create shadow: %w", err)
	}

	if err := b.seedBaseline(ctx, eng); err != nil {
		return b.abort(ctx, eng, err)
	}
	if err := b.seedPlatformMigrations(ctx, eng); err != nil {
		return b.abort(ctx, eng, err)
	}

	if !includeUserFiles {
		return eng, nil
	}

	for _, schema := range schemafiles.Schemas(files) {
		stmt := fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS "%s";`, strings.ReplaceAll(schema, `"`, `""`))
		if err := eng.Exec(ctx, stmt); err != nil {
			return b.abort(ctx, eng, fmt.Errorf("create schema %s: %w", schema, err))
		}
	}

	// A partially seeded shadow cannot be trusted as desired state, so the
	// first user-file failure aborts the whole build.
	for _, f := range files {
		if err := eng.Exec(ctx, f.SQL); err != nil {
			return b.abort(ctx, eng, fmt.Errorf("apply %s: %w", f.Path, err))
		}
	}
	return eng, nil
}

func (b *Builder) seedBaseline(ctx context.Context, eng Engine) error {
	for _, stmt := range BaselineStatements() {
		if err := eng.Exec(ctx, stmt); err != nil {
			if IsBenignSeedError(err) {
				continue
			}
			return fmt.Errorf("seed baseline: %w", err)
		}
	}
	return nil
}

func (b *Builder) seedPlatformMigrations(ctx context.Context, eng Engine) error {
	entries, err := fs.ReadDir(migrations.FS(), ".")
	if err != nil {
		return fmt.Errorf("read platform migrations: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		content, err := fs.ReadFile(migrations.FS(), name)
		if err != nil {
			return fmt.Errorf("read platform migration %s: %w", name, err)
		}
		if err := eng.Exec(ctx, string(content)); err != nil {
			if IsBenignSeedError(err) {
				if b.Logger != nil {
					b.Logger.Info("skipping benign seed error", "migration", name, "error", err.Error())
				}
				continue
			}
			return fmt.Errorf("seed platform migration %s: %w", name, err)
		}
	}
	return nil
}

func (b *Builder) abort(ctx context.Context, eng Engine, err error) (Engine, error) {
	if destroyErr := eng.Destroy(ctx); destroyErr != nil && b.Logger != nil {
		b.Logger.Error("destroying shadow after failed build", "error", destroyErr.Error())
	}
	return nil, err
}

// IsBenignSeedError reports whether a baseline seeding failure can be
// ignored: the object already exists, or the shadow engine lacks a feature
// (typically an extension) that does not affect the structural diff.
func IsBenignSeedError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "42710", // duplicate_object
			"42P04", // duplicate_database
			"42P06", // duplicate_schema
			"42P07", // duplicate_table
			"42701", // duplicate_column
			"42723", // duplicate_function
			"23505", // unique_violation
			"0A000", // feature_not_supported
			"58P01": // undefined_file, e.g. extension not installed
			return true
		}
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "already exists")
}
