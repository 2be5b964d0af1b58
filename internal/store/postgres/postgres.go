// Package postgres provides a PostgreSQL-backed store for portal server
// deployments that keep session state durable.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/coffeestaff/portal/internal/logging"
	"github.com/coffeestaff/portal/internal/metrics"
	"github.com/coffeestaff/portal/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS portal_state (
	key        TEXT        PRIMARY KEY,
	value      BYTEA       NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS portal_state_expires_idx ON portal_state (expires_at);`

// Store is a PostgreSQL key-value store.
type Store struct {
	db  *sqlx.DB
	ttl time.Duration
}

// New connects to the database and creates the state table.
func New(databaseURL string, ttl time.Duration) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return NewWithDB(db, ttl), nil
}

// NewWithDB wraps an open database whose schema is already in place.
func NewWithDB(db *sqlx.DB, ttl time.Duration) *Store {
	return &Store{db: db, ttl: ttl}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	defer func() { metrics.RecordStoreOperation("postgres", "get", time.Since(start)) }()

	var value []byte
	err := s.db.GetContext(ctx, &value,
		`SELECT value FROM portal_state
		 WHERE key = $1 AND (expires_at IS NULL OR expires_at > now())`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	start := time.Now()
	defer func() { metrics.RecordStoreOperation("postgres", "set", time.Since(start)) }()

	var expires *time.Time
	if s.ttl > 0 {
		t := time.Now().Add(s.ttl)
		expires = &t
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO portal_state (key, value, updated_at, expires_at) VALUES ($1, $2, now(), $3)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now(), expires_at = EXCLUDED.expires_at`,
		key, value, expires)
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	start := time.Now()
	defer func() { metrics.RecordStoreOperation("postgres", "delete", time.Since(start)) }()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM portal_state WHERE key = ANY($1)`, pq.Array(keys)); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	return nil
}

// Prune removes expired entries and returns how many were deleted.
func (s *Store) Prune(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM portal_state WHERE expires_at IS NOT NULL AND expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("prune: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		logging.Debug("pruned expired portal state", logging.Int64("rows", n))
	}
	return n, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
