// Package pool hands out long-lived pgx pools keyed by target connection
// string. One Manager is owned by one engine instance; there is no
// package-level pool cache.
package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"db_declarative_schema_syncer/internal/secret"
)

// Managed-Postgres targets meter connections, so pools stay small and shed
// idle connections quickly.
const (
	defaultMaxConns       = 3
	defaultIdleTimeout    = 10 * time.Second
	defaultConnectTimeout = 10 * time.Second
)

type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// Manager caches one pool per connection string and closes them together.
type Manager struct {
	mu     sync.Mutex
	pools  map[string]*pgxpool.Pool
	logger Logger

	MaxConns       int32
	IdleTimeout    time.Duration
	ConnectTimeout time.Duration
}

func NewManager(logger Logger) *Manager {
	return &Manager{
		pools:          map[string]*pgxpool.Pool{},
		logger:         logger,
		MaxConns:       defaultMaxConns,
		IdleTimeout:    defaultIdleTimeout,
		ConnectTimeout: defaultConnectTimeout,
	}
}

// Get returns the cached pool for dsn, creating and pinging it on first
// use. Errors never contain the raw connection string.
func (m *Manager) Get(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.pools[dsn]; ok {
		return p, nil
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse connection string %s: %w", secret.RedactURL(dsn), errRedacted(err))
	}
	cfg.MaxConns = m.MaxConns
	cfg.MaxConnIdleTime = m.IdleTimeout
	cfg.ConnConfig.ConnectTimeout = m.ConnectTimeout

	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool for %s: %w", secret.RedactURL(dsn), errRedacted(err))
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("ping %s: %w", secret.RedactURL(dsn), errRedacted(err))
	}

	m.pools[dsn] = p
	if m.logger != nil {
		m.logger.Info("live pool created", "target", secret.RedactURL(dsn), "max_conns", m.MaxConns)
	}
	return p, nil
}

// Close closes every cached pool. Called on process shutdown or target
// change.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for dsn, p := range m.pools {
		p.Close()
		delete(m.pools, dsn)
	}
}

// errRedacted wraps an error so its message never leaks credentials that a
// driver may have echoed back.
func errRedacted(err error) error {
	if err == nil {
		return nil
	}
	redacted := secret.RedactErr(err)
	if redacted == err.Error() {
		return err
	}
	return fmt.Errorf("%s", redacted)
}
