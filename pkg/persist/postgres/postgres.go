// Package postgres provides a [persist.KV] backed by PostgreSQL. Values are
// stored as JSONB, so only valid JSON documents can be written.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/soulecho/pkg/persist"
)

var _ persist.KV = (*KV)(nil)

const ddl = `
CREATE TABLE IF NOT EXISTS soulecho_kv (
    key        TEXT         PRIMARY KEY,
    value      JSONB        NOT NULL,
    updated_at TIMESTAMPTZ  NOT NULL DEFAULT now()
);`

// KV stores values in the "soulecho_kv" table.
//
// All operations are safe for concurrent use.
type KV struct {
	pool *pgxpool.Pool
}

// Open creates a connection pool to dsn, pings it and applies the schema.
func Open(ctx context.Context, dsn string) (*KV, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres kv: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres kv: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres kv: ping: %w", err)
	}

	if _, err := pool.Exec(ctx, ddl); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres kv: migrate: %w", err)
	}
	return &KV{pool: pool}, nil
}

// Get implements [persist.KV].
func (s *KV) Get(ctx context.Context, key string) ([]byte, error) {
	var value string
	err := s.pool.QueryRow(ctx, `SELECT value::text FROM soulecho_kv WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, persist.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres kv: get %q: %w", key, err)
	}
	return []byte(value), nil
}

// Put implements [persist.KV].
func (s *KV) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO soulecho_kv (key, value, updated_at) VALUES ($1, $2::jsonb, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		key, string(value))
	if err != nil {
		return fmt.Errorf("postgres kv: put %q: %w", key, err)
	}
	return nil
}

// Close implements [persist.KV].
func (s *KV) Close() error {
	s.pool.Close()
	return nil
}
