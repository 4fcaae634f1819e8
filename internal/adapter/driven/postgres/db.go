// Package postgres implements the vault's credential and audit stores on a
// shared PostgreSQL server, for deployments where several hosts use one vault.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// DB wraps a pooled connection to the vault database.
type DB struct {
	Pool *sql.DB
}

// NewDB opens a connection pool for databaseURL (a postgres:// URL or
// key/value DSN understood by pgx) and verifies it is reachable.
func NewDB(ctx context.Context, databaseURL string) (*DB, error) {
	if databaseURL == "" {
		return nil, errors.New("open postgres: empty database URL")
	}

	pool, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	pool.SetMaxOpenConns(8)
	pool.SetMaxIdleConns(4)
	pool.SetConnMaxIdleTime(5 * time.Minute)

	if err := pool.PingContext(ctx); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close closes the connection pool.
func (db *DB) Close() error {
	if err := db.Pool.Close(); err != nil {
		return fmt.Errorf("close postgres: %w", err)
	}
	return nil
}
