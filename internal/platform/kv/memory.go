// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package kv

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// shardCount spreads keys over independent locks. Must be a power of two.
const shardCount = 64

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

func (entry memoryEntry) expired(now time.Time) bool {
	return !entry.expiresAt.IsZero() && !now.Before(entry.expiresAt)
}

type memoryShard struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

// MemoryStore is an in-process [Store] with one lock per shard.
//
// # Concurrency
//
// Operations on keys in different shards never contend. Within a shard each
// operation, including CompareAndSwap, runs under the shard lock and is
// therefore linearizable per key.
type MemoryStore struct {
	shards [shardCount]*memoryShard
	now    func() time.Time
}

// MemoryOption customizes a [MemoryStore].
type MemoryOption func(*MemoryStore)

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) MemoryOption {
	return func(store *MemoryStore) {
		store.now = now
	}
}

// NewMemoryStore returns an empty [MemoryStore].
func NewMemoryStore(options ...MemoryOption) *MemoryStore {
	store := &MemoryStore{now: time.Now}
	for index := range store.shards {
		store.shards[index] = &memoryShard{entries: make(map[string]memoryEntry)}
	}
	for _, option := range options {
		option(store)
	}
	return store
}

func (store *MemoryStore) shard(key string) *memoryShard {
	return store.shards[xxhash.Sum64String(key)&(shardCount-1)]
}

func (store *MemoryStore) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return store.now().Add(ttl)
}

// Get implements [Store].
func (store *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	shard := store.shard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	entry, ok := shard.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	if entry.expired(store.now()) {
		delete(shard.entries, key)
		return nil, ErrNotFound
	}
	return bytes.Clone(entry.value), nil
}

// Put implements [Store].
func (store *MemoryStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	shard := store.shard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	shard.entries[key] = memoryEntry{value: bytes.Clone(value), expiresAt: store.expiry(ttl)}
	return nil
}

// Delete implements [Store].
func (store *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	shard := store.shard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	delete(shard.entries, key)
	return nil
}

// CompareAndSwap implements [Store].
func (store *MemoryStore) CompareAndSwap(ctx context.Context, key string, old, value []byte, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	shard := store.shard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	entry, present := shard.entries[key]
	if present && entry.expired(store.now()) {
		present = false
	}

	switch {
	case old == nil && present:
		return false, nil
	case old != nil && (!present || !bytes.Equal(entry.value, old)):
		return false, nil
	}

	shard.entries[key] = memoryEntry{value: bytes.Clone(value), expiresAt: store.expiry(ttl)}
	return true, nil
}

// Sweep removes expired entries and reports how many were dropped.
func (store *MemoryStore) Sweep(ctx context.Context) (int, error) {
	now := store.now()
	removed := 0

	for _, shard := range store.shards {
		if err := ctx.Err(); err != nil {
			return removed, err
		}

		shard.mu.Lock()
		for key, entry := range shard.entries {
			if entry.expired(now) {
				delete(shard.entries, key)
				removed++
			}
		}
		shard.mu.Unlock()
	}
	return removed, nil
}

// Len returns the number of live and not-yet-swept entries.
func (store *MemoryStore) Len() int {
	total := 0
	for _, shard := range store.shards {
		shard.mu.Lock()
		total += len(shard.entries)
		shard.mu.Unlock()
	}
	return total
}
