// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package kv defines the capability interface through which the trust layer
keeps its shared state (token blacklist, refresh registry, login attempts).

# Backends

  - [MemoryStore]: sharded in-process map, the default for a single instance.
  - [RedisStore]: shared state for multi-instance deployments (Lua CAS).
  - [PostgresStore]: durable shared state on a single table.

All backends honour the same contract, so services never know which one
they are talking to. Values are opaque bytes; callers own the encoding.
*/
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key is absent or expired.
var ErrNotFound = errors.New("kv: key not found")

// ErrUnavailable is returned when the backing store refuses work
// (circuit open, connection lost).
var ErrUnavailable = errors.New("kv: store unavailable")

// Store is the minimal capability set required by the trust services.
type Store interface {
	// Get returns the value for key or [ErrNotFound].
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores value under key. A ttl of zero means no expiry.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// CompareAndSwap replaces the value only if the current value equals old.
	// A nil old means "expect absent". It reports whether the swap happened.
	CompareAndSwap(ctx context.Context, key string, old, value []byte, ttl time.Duration) (bool, error)
}

// Pinger is implemented by stores with a remote dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Sweeper is implemented by stores that need explicit pruning of expired keys.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// maxCASAttempts bounds optimistic update loops under contention.
const maxCASAttempts = 16

// ErrContention is returned by [Update] when every CAS attempt lost the race.
var ErrContention = errors.New("kv: too much contention")

// Update runs an optimistic read-modify-write loop on key.
//
// mutate receives the current value (nil when absent) and returns the next
// value. Returning a nil next value leaves the key untouched. The loop
// retries when another writer changed the key in between.
func Update(ctx context.Context, store Store, key string, ttl time.Duration, mutate func(current []byte) ([]byte, error)) error {
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		current, err := store.Get(ctx, key)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}

		next, err := mutate(current)
		if err != nil {
			return err
		}

		if next == nil {
			return nil
		}

		swapped, err := store.CompareAndSwap(ctx, key, current, next, ttl)
		if err != nil {
			return err
		}
		if swapped {
			return nil
		}
	}
	return ErrContention
}
