// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package redis connects the shared trust state to Redis.

Every authenticated request reads the token blacklist, so the client is
tuned for many short round trips: a larger pool, tight read and write
deadlines, and a circuit breaker in front (see [kv.RedisStore]) that turns
an unhealthy Redis into fast errors.

Keys are namespaced with [KeyPrefix] so several services can share one
instance.
*/
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taibuivan/aegis/internal/platform/constants"
	"github.com/taibuivan/aegis/internal/platform/kv"
)

// KeyPrefix namespaces every key written by the gate.
const KeyPrefix = constants.AppName + ":"

const (
	poolSize     = 20
	minIdleConns = 4
	maxIdleConns = 10

	dialTimeout  = 2 * time.Second
	readTimeout  = 500 * time.Millisecond
	writeTimeout = 500 * time.Millisecond
	pingTimeout  = 2 * time.Second

	breakerThreshold = 5
	breakerOpenFor   = 10 * time.Second
)

// NewClient parses redisURL, applies the pool tuning and checks connectivity.
func NewClient(ctx context.Context, redisURL string, logger *slog.Logger) (*redis.Client, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis: invalid URL: %w", err)
	}

	options.PoolSize = poolSize
	options.MinIdleConns = minIdleConns
	options.MaxIdleConns = maxIdleConns
	options.DialTimeout = dialTimeout
	options.ReadTimeout = readTimeout
	options.WriteTimeout = writeTimeout

	client := redis.NewClient(options)

	if err := Ping(ctx, client); err != nil {
		_ = client.Close()
		return nil, err
	}

	logger.Info("redis_client_connected",
		slog.String("addr", options.Addr),
		slog.Int("db", options.DB),
		slog.Int("pool_size", options.PoolSize),
	)
	return client, nil
}

// NewStore wraps client in the breaker-guarded key-value store.
func NewStore(client *redis.Client, logger *slog.Logger) *kv.RedisStore {
	return kv.NewRedisStore(client, kv.RedisOptions{
		Prefix:           KeyPrefix,
		FailureThreshold: breakerThreshold,
		OpenTimeout:      breakerOpenFor,
		Logger:           logger,
	})
}

// Ping verifies that the Redis client is healthy.
func Ping(ctx context.Context, client *redis.Client) error {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis: ping failed: %w", err)
	}
	return nil
}
