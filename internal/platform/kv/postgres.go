// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/taibuivan/aegis/internal/trust/sanitize"
)

// Querier is the subset of [pgxpool.Pool] used by [PostgresStore].
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row
	Ping(ctx context.Context) error
}

// PostgresStore is a durable [Store] on a single table created by the
// 000001_kv_entries migration:
//
//	key TEXT PRIMARY KEY, value BYTEA NOT NULL, expires_at TIMESTAMPTZ NULL
//
// Expired rows are invisible to reads and removed by [PostgresStore.Sweep].
type PostgresStore struct {
	database Querier
	table    string
	queries  postgresQueries
}

type postgresQueries struct {
	get, put, delete, insertIfAbsent, swap, sweep string
}

// NewPostgresStore validates the table name and prepares the statements.
func NewPostgresStore(database Querier, table string) (*PostgresStore, error) {
	name, err := sanitize.Identifier(table)
	if err != nil {
		return nil, fmt.Errorf("kv: invalid table name: %w", err)
	}

	return &PostgresStore{
		database: database,
		table:    name,
		queries:  buildPostgresQueries(name),
	}, nil
}

func buildPostgresQueries(table string) postgresQueries {
	const live = "(expires_at IS NULL OR expires_at > now())"
	return postgresQueries{
		get: fmt.Sprintf(`SELECT value FROM %s WHERE key = $1 AND %s`, table, live),
		put: fmt.Sprintf(`INSERT INTO %s (key, value, expires_at) VALUES ($1, $2, $3)
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`, table),
		delete: fmt.Sprintf(`DELETE FROM %s WHERE key = $1`, table),
		insertIfAbsent: fmt.Sprintf(`INSERT INTO %[1]s (key, value, expires_at) VALUES ($1, $2, $3)
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at
			WHERE %[1]s.expires_at IS NOT NULL AND %[1]s.expires_at <= now()`, table),
		swap: fmt.Sprintf(`UPDATE %s SET value = $2, expires_at = $3
			WHERE key = $1 AND value = $4 AND %s`, table, live),
		sweep: fmt.Sprintf(`DELETE FROM %s WHERE expires_at IS NOT NULL AND expires_at <= now()`, table),
	}
}

// Table returns the validated table name.
func (store *PostgresStore) Table() string {
	return store.table
}

func expiresAt(ttl time.Duration) *time.Time {
	if ttl <= 0 {
		return nil
	}
	at := time.Now().Add(ttl).UTC()
	return &at
}

// Get implements [Store].
func (store *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := store.database.QueryRow(ctx, store.queries.get, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("kv: postgres get: %w", err)
	}
	return value, nil
}

// Put implements [Store].
func (store *PostgresStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if _, err := store.database.Exec(ctx, store.queries.put, key, value, expiresAt(ttl)); err != nil {
		return fmt.Errorf("kv: postgres put: %w", err)
	}
	return nil
}

// Delete implements [Store].
func (store *PostgresStore) Delete(ctx context.Context, key string) error {
	if _, err := store.database.Exec(ctx, store.queries.delete, key); err != nil {
		return fmt.Errorf("kv: postgres delete: %w", err)
	}
	return nil
}

// CompareAndSwap implements [Store] with a single conditional statement, so
// the row lock taken by Postgres serializes concurrent swaps on one key.
func (store *PostgresStore) CompareAndSwap(ctx context.Context, key string, old, value []byte, ttl time.Duration) (bool, error) {
	var (
		tag pgconn.CommandTag
		err error
	)
	if old == nil {
		tag, err = store.database.Exec(ctx, store.queries.insertIfAbsent, key, value, expiresAt(ttl))
	} else {
		tag, err = store.database.Exec(ctx, store.queries.swap, key, value, expiresAt(ttl), old)
	}
	if err != nil {
		return false, fmt.Errorf("kv: postgres compare-and-swap: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Sweep implements [Sweeper].
func (store *PostgresStore) Sweep(ctx context.Context) (int, error) {
	tag, err := store.database.Exec(ctx, store.queries.sweep)
	if err != nil {
		return 0, fmt.Errorf("kv: postgres sweep: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Ping implements [Pinger].
func (store *PostgresStore) Ping(ctx context.Context) error {
	return store.database.Ping(ctx)
}
