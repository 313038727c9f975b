// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package kv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
)

// compareAndSwapScript atomically swaps a key when its value matches.
// KEYS[1] = key
// ARGV[1] = "1" when the key is expected to be absent
// ARGV[2] = expected value
// ARGV[3] = new value
// ARGV[4] = ttl in milliseconds (0 = persistent)
var compareAndSwapScript = redis.NewScript(`
	local current = redis.call('GET', KEYS[1])
	if ARGV[1] == '1' then
		if current then return 0 end
	else
		if (not current) or current ~= ARGV[2] then return 0 end
	end
	local ttl = tonumber(ARGV[4])
	if ttl > 0 then
		redis.call('SET', KEYS[1], ARGV[3], 'PX', ttl)
	else
		redis.call('SET', KEYS[1], ARGV[3])
	end
	return 1
`)

// RedisStore is a [Store] backed by Redis, guarded by a circuit breaker so a
// failing Redis degrades into fast errors instead of stalled requests.
type RedisStore struct {
	client  *redis.Client
	prefix  string
	breaker *gobreaker.CircuitBreaker
}

// RedisOptions tunes a [RedisStore].
type RedisOptions struct {
	// Prefix namespaces every key.
	Prefix string
	// FailureThreshold is the consecutive failures that open the breaker.
	FailureThreshold uint32
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
	// Logger receives breaker state transitions.
	Logger *slog.Logger
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, options RedisOptions) *RedisStore {
	if options.FailureThreshold == 0 {
		options.FailureThreshold = 5
	}
	if options.OpenTimeout <= 0 {
		options.OpenTimeout = 10 * time.Second
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	settings := gobreaker.Settings{
		Name:    "kv-redis",
		Timeout: options.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= options.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, redis.Nil)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit_breaker_state_change",
				slog.String("name", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	}

	return &RedisStore{
		client:  client,
		prefix:  options.Prefix,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

func (store *RedisStore) key(key string) string {
	return store.prefix + key
}

// execute runs fn through the breaker and normalizes breaker rejections.
func (store *RedisStore) execute(fn func() (interface{}, error)) (interface{}, error) {
	result, err := store.breaker.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return result, err
}

// Get implements [Store].
func (store *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	result, err := store.execute(func() (interface{}, error) {
		return store.client.Get(ctx, store.key(key)).Bytes()
	})
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("kv: redis get: %w", err)
	}
	return result.([]byte), nil
}

// Put implements [Store].
func (store *RedisStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	_, err := store.execute(func() (interface{}, error) {
		return nil, store.client.Set(ctx, store.key(key), value, ttl).Err()
	})
	if err != nil {
		return fmt.Errorf("kv: redis put: %w", err)
	}
	return nil
}

// Delete implements [Store].
func (store *RedisStore) Delete(ctx context.Context, key string) error {
	_, err := store.execute(func() (interface{}, error) {
		return nil, store.client.Del(ctx, store.key(key)).Err()
	})
	if err != nil {
		return fmt.Errorf("kv: redis delete: %w", err)
	}
	return nil
}

// CompareAndSwap implements [Store] with a server-side Lua script.
func (store *RedisStore) CompareAndSwap(ctx context.Context, key string, old, value []byte, ttl time.Duration) (bool, error) {
	expectAbsent := "0"
	if old == nil {
		expectAbsent = "1"
	}

	result, err := store.execute(func() (interface{}, error) {
		return compareAndSwapScript.Run(ctx, store.client,
			[]string{store.key(key)},
			expectAbsent, old, value, ttlMillis(ttl),
		).Int()
	})
	if err != nil {
		return false, fmt.Errorf("kv: redis compare-and-swap: %w", err)
	}
	return result.(int) == 1, nil
}

// ttlMillis converts ttl for PX. A positive ttl below one millisecond rounds
// up to one, since zero means no expiry to the script.
func ttlMillis(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return max(ttl.Milliseconds(), 1)
}

// Ping implements [Pinger].
func (store *RedisStore) Ping(ctx context.Context) error {
	_, err := store.execute(func() (interface{}, error) {
		return nil, store.client.Ping(ctx).Err()
	})
	return err
}
