// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package kv_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/aegis/internal/platform/kv"
)

type recordedExec struct {
	sql       string
	arguments []any
}

// fakeQuerier records statements and answers with canned results.
type fakeQuerier struct {
	execs        []recordedExec
	rowsAffected int64
	row          pgx.Row
}

func (querier *fakeQuerier) Exec(_ context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	querier.execs = append(querier.execs, recordedExec{sql: sql, arguments: arguments})
	if querier.rowsAffected == 1 {
		return pgconn.NewCommandTag("UPDATE 1"), nil
	}
	return pgconn.NewCommandTag("UPDATE 0"), nil
}

func (querier *fakeQuerier) QueryRow(_ context.Context, _ string, _ ...any) pgx.Row {
	return querier.row
}

func (querier *fakeQuerier) Ping(context.Context) error { return nil }

type errRow struct{ err error }

func (row errRow) Scan(...any) error { return row.err }

/*
TestPostgresStore_RejectsUnsafeTableName verifies identifier validation.
*/
func TestPostgresStore_RejectsUnsafeTableName(t *testing.T) {
	tests := []string{"", "1table", "kv; DROP TABLE users", "kv-entries", strings.Repeat("a", 64)}

	for _, name := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := kv.NewPostgresStore(&fakeQuerier{}, name)
			assert.Error(t, err)
		})
	}

	store, err := kv.NewPostgresStore(&fakeQuerier{}, "kv_entries")
	require.NoError(t, err)
	assert.Equal(t, "kv_entries", store.Table())
}

/*
TestPostgresStore_CompareAndSwap checks statement selection and the rows-affected result.
*/
func TestPostgresStore_CompareAndSwap(t *testing.T) {
	ctx := context.Background()
	querier := &fakeQuerier{rowsAffected: 1}
	store, err := kv.NewPostgresStore(querier, "kv_entries")
	require.NoError(t, err)

	swapped, err := store.CompareAndSwap(ctx, "k", nil, []byte("v"), time.Minute)
	require.NoError(t, err)
	assert.True(t, swapped)
	assert.Contains(t, querier.execs[0].sql, "ON CONFLICT (key) DO UPDATE")
	assert.Contains(t, querier.execs[0].sql, "expires_at <= now()")

	querier.rowsAffected = 0
	swapped, err = store.CompareAndSwap(ctx, "k", []byte("old"), []byte("v"), 0)
	require.NoError(t, err)
	assert.False(t, swapped)
	assert.True(t, strings.HasPrefix(querier.execs[1].sql, "UPDATE kv_entries"))
	assert.Nil(t, querier.execs[1].arguments[2], "zero ttl stores no expiry")
}

/*
TestPostgresStore_GetMissing maps pgx.ErrNoRows to ErrNotFound.
*/
func TestPostgresStore_GetMissing(t *testing.T) {
	store, err := kv.NewPostgresStore(&fakeQuerier{row: errRow{err: pgx.ErrNoRows}}, "kv_entries")
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, kv.ErrNotFound)
}
