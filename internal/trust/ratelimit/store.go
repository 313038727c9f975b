// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package ratelimit

import (
	"context"
	"slices"
	"sync"
	"time"
)

// # State Store

// Store holds the limiter's windows, violations and blocks.
//
// Take must be atomic per key: the count that decides admission and the
// append of the admitted timestamp happen as one step.
type Store interface {
	// Take prunes the window at key to the trailing minute and appends now
	// when the class limits still allow it.
	Take(ctx context.Context, key string, now time.Time, class Class) (Window, error)

	// BlockedAt returns when clientID was blocked, if a block is recorded.
	// Expiry is judged by the caller.
	BlockedAt(ctx context.Context, clientID string) (time.Time, bool, error)

	// RecordViolation appends a violation at now, forgets those older than
	// policy.ViolationWindow and blocks clientID once policy.Threshold is
	// reached. It reports whether this call placed the block.
	RecordViolation(ctx context.Context, clientID string, now time.Time, policy BlockPolicy) (bool, error)

	// Violations counts the violations within span before now.
	Violations(ctx context.Context, clientID string, now time.Time, span time.Duration) (int, error)

	// Unblock forgets the block and violations of clientID.
	Unblock(ctx context.Context, clientID string) error
}

// Window is the state of one (client, class) window as seen by Take.
// Counts are taken before the append.
type Window struct {
	Admitted    bool
	MinuteCount int
	BurstCount  int
	// Oldest is the oldest timestamp in the minute window.
	Oldest time.Time
	// OldestBurst is the oldest timestamp in the burst window.
	OldestBurst time.Time
}

// BlockPolicy configures automatic blocking.
type BlockPolicy struct {
	Threshold       int
	Duration        time.Duration
	ViolationWindow time.Duration
}

// evaluate counts an already pruned window and decides admission.
func evaluate(times []time.Time, now time.Time, class Class) Window {
	state := Window{MinuteCount: len(times)}
	if len(times) > 0 {
		state.Oldest = times[0]
	}
	state.BurstCount, state.OldestBurst = countSince(times, now.Add(-BurstWindow))
	state.Admitted = state.MinuteCount < class.PerMinute &&
		(class.Burst <= 0 || state.BurstCount < class.Burst)
	return state
}

// insert appends at while keeping times ordered.
func insert(times []time.Time, at time.Time) []time.Time {
	index, _ := slices.BinarySearchFunc(times, at, time.Time.Compare)
	if index == len(times) {
		return append(times, at)
	}
	return slices.Insert(times, index, at)
}

// # Memory Store

type window struct {
	mu       sync.Mutex
	requests []time.Time
	dead     bool
}

type violationLog struct {
	mu    sync.Mutex
	times []time.Time
	dead  bool
}

// MemoryStore keeps limiter state in process. Windows and violation logs
// live in [sync.Map]s and each carries its own mutex, so distinct keys never
// contend.
type MemoryStore struct {
	windows    sync.Map // "ip|class" -> *window
	blocks     sync.Map // ip -> time.Time
	violations sync.Map // ip -> *violationLog
}

// NewMemoryStore returns an empty [MemoryStore].
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Take implements [Store].
func (store *MemoryStore) Take(ctx context.Context, key string, now time.Time, class Class) (Window, error) {
	if err := ctx.Err(); err != nil {
		return Window{}, err
	}

	current := store.lockWindow(key)
	defer current.mu.Unlock()

	current.requests = prune(current.requests, now.Add(-MinuteWindow))
	result := evaluate(current.requests, now, class)
	if result.Admitted {
		current.requests = insert(current.requests, now)
	}
	return result, nil
}

// lockWindow returns the live window for key with its mutex held.
func (store *MemoryStore) lockWindow(key string) *window {
	for {
		value, _ := store.windows.LoadOrStore(key, &window{})
		current := value.(*window)
		current.mu.Lock()
		if !current.dead {
			return current
		}
		current.mu.Unlock()
	}
}

// lockViolations returns the live violation log for clientID with its mutex held.
func (store *MemoryStore) lockViolations(clientID string) *violationLog {
	for {
		value, _ := store.violations.LoadOrStore(clientID, &violationLog{})
		log := value.(*violationLog)
		log.mu.Lock()
		if !log.dead {
			return log
		}
		log.mu.Unlock()
	}
}

// BlockedAt implements [Store].
func (store *MemoryStore) BlockedAt(_ context.Context, clientID string) (time.Time, bool, error) {
	value, ok := store.blocks.Load(clientID)
	if !ok {
		return time.Time{}, false, nil
	}
	return value.(time.Time), true, nil
}

// RecordViolation implements [Store].
func (store *MemoryStore) RecordViolation(ctx context.Context, clientID string, now time.Time, policy BlockPolicy) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	log := store.lockViolations(clientID)
	defer log.mu.Unlock()

	log.times = prune(log.times, now.Add(-policy.ViolationWindow))
	log.times = insert(log.times, now)
	if len(log.times) < policy.Threshold {
		return false, nil
	}

	for {
		existing, loaded := store.blocks.LoadOrStore(clientID, now)
		if !loaded {
			return true, nil
		}
		if now.Before(existing.(time.Time).Add(policy.Duration)) {
			return false, nil
		}
		// An expired block not yet swept is replaced.
		if store.blocks.CompareAndSwap(clientID, existing, now) {
			return true, nil
		}
	}
}

// Violations implements [Store].
func (store *MemoryStore) Violations(_ context.Context, clientID string, now time.Time, span time.Duration) (int, error) {
	value, ok := store.violations.Load(clientID)
	if !ok {
		return 0, nil
	}
	log := value.(*violationLog)
	log.mu.Lock()
	defer log.mu.Unlock()
	log.times = prune(log.times, now.Add(-span))
	return len(log.times), nil
}

// Unblock implements [Store].
func (store *MemoryStore) Unblock(_ context.Context, clientID string) error {
	store.blocks.Delete(clientID)
	if value, ok := store.violations.Load(clientID); ok {
		log := value.(*violationLog)
		log.mu.Lock()
		log.dead = true
		store.violations.CompareAndDelete(clientID, log)
		log.mu.Unlock()
	}
	return nil
}

// Sweep drops idle windows, expired blocks and stale violation logs.
//
// Entries are marked dead under their own lock before removal, so a writer
// holding a stale pointer retries on a fresh entry instead of losing its update.
func (store *MemoryStore) Sweep(now time.Time, policy BlockPolicy) SweepStats {
	stats := SweepStats{}

	store.windows.Range(func(key, value any) bool {
		current := value.(*window)
		current.mu.Lock()
		current.requests = prune(current.requests, now.Add(-MinuteWindow))
		if len(current.requests) == 0 {
			current.dead = true
			store.windows.CompareAndDelete(key, current)
			stats.Windows++
		}
		current.mu.Unlock()
		return true
	})

	store.blocks.Range(func(key, value any) bool {
		if !now.Before(value.(time.Time).Add(policy.Duration)) {
			if store.blocks.CompareAndDelete(key, value) {
				stats.Blocks++
			}
		}
		return true
	})

	store.violations.Range(func(key, value any) bool {
		log := value.(*violationLog)
		log.mu.Lock()
		log.times = prune(log.times, now.Add(-policy.ViolationWindow))
		if len(log.times) == 0 {
			log.dead = true
			store.violations.CompareAndDelete(key, log)
			stats.Violations++
		}
		log.mu.Unlock()
		return true
	})

	return stats
}
