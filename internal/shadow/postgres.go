package shadow

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"db_declarative_schema_syncer/internal/secret"
)

// PostgresFactory creates scratch databases on a local throwaway cluster.
// Each Create makes one database with a random name; Destroy drops it.
type PostgresFactory struct {
	// ClusterURL points at the scratch cluster's maintenance database.
	ClusterURL string
	Logger     Logger
}

func (f *PostgresFactory) Create(ctx context.Context) (Engine, error) {
	name := "shadow_" + strings.ReplaceAll(uuid.NewString(), "-", "")

	admin, err := pgx.Connect(ctx, f.ClusterURL)
	if err != nil {
		return nil, fmt.Errorf("connect shadow cluster %s: %w", secret.RedactURL(f.ClusterURL), err)
	}
	_, err = admin.Exec(ctx, fmt.Sprintf(`CREATE DATABASE %s`, quoteIdent(name)))
	closeErr := admin.Close(ctx)
	if err != nil {
		return nil, fmt.Errorf("create shadow database: %w", err)
	}
	if closeErr != nil && f.Logger != nil {
		f.Logger.Error("closing shadow admin connection", "error", secret.RedactErr(closeErr))
	}

	cfg, err := pgx.ParseConfig(f.ClusterURL)
	if err != nil {
		return nil, fmt.Errorf("parse shadow cluster url: %w", err)
	}
	cfg.Database = name
	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect shadow database: %w", err)
	}

	if f.Logger != nil {
		f.Logger.Info("shadow database created", "name", name)
	}
	return &postgresEngine{
		conn:       conn,
		clusterURL: f.ClusterURL,
		name:       name,
		logger:     f.Logger,
	}, nil
}

type postgresEngine struct {
	conn       *pgx.Conn
	clusterURL string
	name       string
	logger     Logger
}

func (e *postgresEngine) Exec(ctx context.Context, sql string) error {
	_, err := e.conn.Exec(ctx, sql)
	return err
}

func (e *postgresEngine) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return e.conn.Query(ctx, sql, args...)
}

func (e *postgresEngine) Destroy(ctx context.Context) error {
	if err := e.conn.Close(ctx); err != nil && e.logger != nil {
		e.logger.Error("closing shadow connection", "error", secret.RedactErr(err))
	}
	admin, err := pgx.Connect(ctx, e.clusterURL)
	if err != nil {
		return fmt.Errorf("connect shadow cluster for teardown: %w", err)
	}
	defer admin.Close(ctx)
	if _, err := admin.Exec(ctx, fmt.Sprintf(`DROP DATABASE IF EXISTS %s WITH (FORCE)`, quoteIdent(e.name))); err != nil {
		return fmt.Errorf("drop shadow database %s: %w", e.name, err)
	}
	if e.logger != nil {
		e.logger.Info("shadow database destroyed", "name", e.name)
	}
	return nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
