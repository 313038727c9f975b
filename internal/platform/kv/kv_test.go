// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package kv_test

import (
	"context"
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/aegis/internal/platform/kv"
)

// storeContract exercises the behaviour every backend must share.
func storeContract(t *testing.T, store kv.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("get_missing", func(t *testing.T) {
		_, err := store.Get(ctx, "missing")
		assert.ErrorIs(t, err, kv.ErrNotFound)
	})

	t.Run("put_get_delete", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "alpha", []byte("one"), 0))

		value, err := store.Get(ctx, "alpha")
		require.NoError(t, err)
		assert.Equal(t, []byte("one"), value)

		require.NoError(t, store.Delete(ctx, "alpha"))
		_, err = store.Get(ctx, "alpha")
		assert.ErrorIs(t, err, kv.ErrNotFound)

		assert.NoError(t, store.Delete(ctx, "alpha"), "deleting twice is not an error")
	})

	t.Run("compare_and_swap", func(t *testing.T) {
		swapped, err := store.CompareAndSwap(ctx, "beta", nil, []byte("v1"), 0)
		require.NoError(t, err)
		assert.True(t, swapped, "absent key accepts expect-absent")

		swapped, err = store.CompareAndSwap(ctx, "beta", nil, []byte("v2"), 0)
		require.NoError(t, err)
		assert.False(t, swapped, "present key rejects expect-absent")

		swapped, err = store.CompareAndSwap(ctx, "beta", []byte("stale"), []byte("v2"), 0)
		require.NoError(t, err)
		assert.False(t, swapped)

		swapped, err = store.CompareAndSwap(ctx, "beta", []byte("v1"), []byte("v2"), 0)
		require.NoError(t, err)
		assert.True(t, swapped)

		value, err := store.Get(ctx, "beta")
		require.NoError(t, err)
		assert.Equal(t, []byte("v2"), value)
	})

	t.Run("update_is_linearizable", func(t *testing.T) {
		const workers = 8
		const increments = 20

		var wg sync.WaitGroup
		for worker := 0; worker < workers; worker++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < increments; i++ {
					for {
						err := kv.Update(ctx, store, "counter", 0, increment)
						if err == kv.ErrContention {
							continue
						}
						assert.NoError(t, err)
						break
					}
				}
			}()
		}
		wg.Wait()

		value, err := store.Get(ctx, "counter")
		require.NoError(t, err)
		assert.Equal(t, uint64(workers*increments), binary.BigEndian.Uint64(value))
	})
}

func increment(current []byte) ([]byte, error) {
	var count uint64
	if len(current) == 8 {
		count = binary.BigEndian.Uint64(current)
	}
	next := make([]byte, 8)
	binary.BigEndian.PutUint64(next, count+1)
	return next, nil
}

/*
TestMemoryStore_Contract runs the shared contract against the sharded map.
*/
func TestMemoryStore_Contract(t *testing.T) {
	storeContract(t, kv.NewMemoryStore())
}

/*
TestMemoryStore_Expiry verifies TTL handling with an injected clock.
*/
func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	store := kv.NewMemoryStore(kv.WithClock(func() time.Time { return now }))

	require.NoError(t, store.Put(ctx, "ephemeral", []byte("x"), time.Minute))
	require.NoError(t, store.Put(ctx, "durable", []byte("y"), 0))

	now = now.Add(59 * time.Second)
	_, err := store.Get(ctx, "ephemeral")
	require.NoError(t, err)

	now = now.Add(time.Second)
	_, err = store.Get(ctx, "ephemeral")
	assert.ErrorIs(t, err, kv.ErrNotFound)

	// An expired key counts as absent for CAS.
	require.NoError(t, store.Put(ctx, "lease", []byte("a"), time.Second))
	now = now.Add(2 * time.Second)
	swapped, err := store.CompareAndSwap(ctx, "lease", nil, []byte("b"), 0)
	require.NoError(t, err)
	assert.True(t, swapped)

	require.NoError(t, store.Put(ctx, "gone", []byte("z"), time.Second))
	now = now.Add(time.Hour)
	removed, err := store.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 2, store.Len())
}

/*
TestMemoryStore_CancelledContext ensures no mutation happens after cancellation.
*/
func TestMemoryStore_CancelledContext(t *testing.T) {
	store := kv.NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, store.Put(ctx, "k", []byte("v"), 0), context.Canceled)
	assert.Equal(t, 0, store.Len())
}

func newRedisStore(t *testing.T) (*kv.RedisStore, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return kv.NewRedisStore(client, kv.RedisOptions{Prefix: "test:"}), server
}

/*
TestRedisStore_Contract runs the shared contract against miniredis.
*/
func TestRedisStore_Contract(t *testing.T) {
	store, _ := newRedisStore(t)
	storeContract(t, store)
}

/*
TestRedisStore_TTLAndPrefix verifies keys are namespaced and expire.
*/
func TestRedisStore_TTLAndPrefix(t *testing.T) {
	ctx := context.Background()
	store, server := newRedisStore(t)

	require.NoError(t, store.Put(ctx, "session", []byte("v"), time.Minute))
	assert.True(t, server.Exists("test:session"))

	swapped, err := store.CompareAndSwap(ctx, "lease", nil, []byte("v"), 30*time.Second)
	require.NoError(t, err)
	assert.True(t, swapped)
	assert.Greater(t, server.TTL("test:lease"), time.Duration(0))

	server.FastForward(2 * time.Minute)
	_, err = store.Get(ctx, "session")
	assert.ErrorIs(t, err, kv.ErrNotFound)
	require.NoError(t, store.Ping(ctx))
}

/*
TestRedisStore_SubMillisecondTTL keeps a tiny positive TTL from becoming persistent.
*/
func TestRedisStore_SubMillisecondTTL(t *testing.T) {
	ctx := context.Background()
	store, server := newRedisStore(t)

	swapped, err := store.CompareAndSwap(ctx, "short", nil, []byte("v"), 500*time.Microsecond)
	require.NoError(t, err)
	require.True(t, swapped)
	assert.Greater(t, server.TTL("test:short"), time.Duration(0))

	swapped, err = store.CompareAndSwap(ctx, "forever", nil, []byte("v"), 0)
	require.NoError(t, err)
	require.True(t, swapped)
	assert.Zero(t, server.TTL("test:forever"))
}

/*
TestRedisStore_BreakerOpens verifies repeated failures surface as ErrUnavailable.
*/
func TestRedisStore_BreakerOpens(t *testing.T) {
	ctx := context.Background()
	store, server := newRedisStore(t)
	server.Close()

	var lastErr error
	for attempt := 0; attempt < 10; attempt++ {
		_, lastErr = store.Get(ctx, "anything")
	}
	assert.ErrorIs(t, lastErr, kv.ErrUnavailable)
}
