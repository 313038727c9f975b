// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package ratelimit admits or rejects requests per (client, endpoint class).

# Algorithm

Each (client, class) pair owns a sliding window of admission timestamps.
On every request the window is pruned to the last 60 s, then:

 1. A blocked client is rejected until its block (1 h) expires.
 2. minute count >= class limit: a violation is recorded and the request is
    rejected. Five violations within one hour block the client across all
    classes.
 3. 10 s count >= class burst: rejected, without a violation.
 4. Otherwise the request is admitted and its timestamp appended.

# State

The algorithm runs here; windows, violations and blocks are held by a
[Store]. [MemoryStore] (the default) keeps one mutex per key, so distinct
keys never contend and the check-and-append on one key is linearizable.
[KVStore] puts the same state in the shared trust store for multi-instance
deployments.
*/
package ratelimit

import (
	"context"
	"math"
	"time"
)

const (
	// MinuteWindow is the main counting window.
	MinuteWindow = time.Minute
	// BurstWindow is the short counting window.
	BurstWindow = 10 * time.Second
)

// Defaults for automatic blocking.
const (
	DefaultBlockThreshold  = 5
	DefaultBlockDuration   = time.Hour
	DefaultViolationWindow = time.Hour
)

// Rejection reasons reported in [Decision.Reason].
const (
	ReasonBlocked     = "blocked"
	ReasonMinuteLimit = "minute_limit"
	ReasonBurstLimit  = "burst_limit"
)

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed bool
	// Class is the endpoint class that governed the request.
	Class string
	// Limit and Remaining describe the minute window.
	Limit     int
	Remaining int
	// Reset is when the oldest counted request leaves the minute window.
	Reset time.Time
	// RetryAfter is the back-off hint for rejected requests.
	RetryAfter time.Duration
	// Reason is empty for admitted requests.
	Reason string
	// Blocked reports that the client is (now) blocked.
	Blocked bool
	// NewlyBlocked is set on the request whose violation triggered the block.
	NewlyBlocked bool
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, at least one.
func (decision Decision) RetryAfterSeconds() int {
	seconds := int(math.Ceil(decision.RetryAfter.Seconds()))
	if seconds < 1 {
		return 1
	}
	return seconds
}

// Limiter applies the admission algorithm. Create one per process.
type Limiter struct {
	table  Table
	policy BlockPolicy
	store  Store
	now    func() time.Time
}

// Option customizes a [Limiter].
type Option func(*Limiter)

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(limiter *Limiter) { limiter.now = now }
}

// WithStore replaces the in-process state with store.
func WithStore(store Store) Option {
	return func(limiter *Limiter) {
		if store != nil {
			limiter.store = store
		}
	}
}

// WithBlocking overrides the auto-block threshold and durations.
func WithBlocking(threshold int, blockDuration, violationWindow time.Duration) Option {
	return func(limiter *Limiter) {
		if threshold > 0 {
			limiter.policy.Threshold = threshold
		}
		if blockDuration > 0 {
			limiter.policy.Duration = blockDuration
		}
		if violationWindow > 0 {
			limiter.policy.ViolationWindow = violationWindow
		}
	}
}

// New returns a [Limiter] for table.
func New(table Table, options ...Option) *Limiter {
	limiter := &Limiter{
		table: table,
		policy: BlockPolicy{
			Threshold:       DefaultBlockThreshold,
			Duration:        DefaultBlockDuration,
			ViolationWindow: DefaultViolationWindow,
		},
		store: NewMemoryStore(),
		now:   time.Now,
	}
	for _, option := range options {
		option(limiter)
	}
	return limiter
}

// Table returns the class table in use.
func (limiter *Limiter) Table() Table {
	return limiter.table
}

// Admit decides whether the request from clientID to path may proceed.
//
// A cancelled context is reported before any state is touched, so a
// cancelled call never leaves a partial mutation behind. Store failures are
// returned as errors; the caller decides how to fail.
func (limiter *Limiter) Admit(ctx context.Context, clientID, path, method string) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}

	class := limiter.table.Classify(path)
	now := limiter.now()
	decision := Decision{Class: class.Name, Limit: class.PerMinute}

	until, blocked, err := limiter.blockedUntil(ctx, clientID, now)
	if err != nil {
		return Decision{}, err
	}
	if blocked {
		decision.Reason = ReasonBlocked
		decision.Blocked = true
		decision.RetryAfter = until.Sub(now)
		decision.Reset = until
		return decision, nil
	}

	state, err := limiter.store.Take(ctx, clientID+"|"+class.Name, now, class)
	if err != nil {
		return Decision{}, err
	}

	decision.Reset = now.Add(MinuteWindow)
	if state.MinuteCount > 0 {
		decision.Reset = state.Oldest.Add(MinuteWindow)
	}

	switch {
	case state.Admitted:
		decision.Allowed = true
		decision.Remaining = class.PerMinute - state.MinuteCount - 1

	case state.MinuteCount >= class.PerMinute:
		decision.Reason = ReasonMinuteLimit
		decision.RetryAfter = decision.Reset.Sub(now)
		decision.NewlyBlocked, err = limiter.store.RecordViolation(ctx, clientID, now, limiter.policy)
		if err != nil {
			return Decision{}, err
		}
		decision.Blocked = decision.NewlyBlocked

	default:
		decision.Reason = ReasonBurstLimit
		decision.RetryAfter = state.OldestBurst.Add(BurstWindow).Sub(now)
		decision.Remaining = class.PerMinute - state.MinuteCount
	}
	return decision, nil
}

func (limiter *Limiter) blockedUntil(ctx context.Context, clientID string, now time.Time) (time.Time, bool, error) {
	blockedAt, found, err := limiter.store.BlockedAt(ctx, clientID)
	if err != nil || !found {
		return time.Time{}, false, err
	}
	until := blockedAt.Add(limiter.policy.Duration)
	return until, now.Before(until), nil
}

// IsBlocked reports whether clientID is currently blocked.
func (limiter *Limiter) IsBlocked(ctx context.Context, clientID string) (bool, error) {
	_, blocked, err := limiter.blockedUntil(ctx, clientID, limiter.now())
	return blocked, err
}

// Unblock lifts a block and forgets the client's violations.
func (limiter *Limiter) Unblock(ctx context.Context, clientID string) error {
	return limiter.store.Unblock(ctx, clientID)
}

// Violations returns the number of violations counted in the current window.
func (limiter *Limiter) Violations(ctx context.Context, clientID string) (int, error) {
	return limiter.store.Violations(ctx, clientID, limiter.now(), limiter.policy.ViolationWindow)
}

// # Housekeeping

// SweepStats reports what a sweep removed.
type SweepStats struct {
	Windows    int
	Blocks     int
	Violations int
}

// Sweep drops idle in-process state. Shared stores expire their keys on
// their own and report nothing.
func (limiter *Limiter) Sweep() SweepStats {
	memory, ok := limiter.store.(*MemoryStore)
	if !ok {
		return SweepStats{}
	}
	return memory.Sweep(limiter.now(), limiter.policy)
}

// Run sweeps on every tick until ctx is cancelled.
func (limiter *Limiter) Run(ctx context.Context, interval time.Duration, onSweep func(SweepStats)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stats := limiter.Sweep()
			if onSweep != nil {
				onSweep(stats)
			}
		case <-ctx.Done():
			return
		}
	}
}

// prune drops timestamps at or before cutoff. Timestamps are appended in
// order, so the live suffix starts at the first entry after cutoff.
func prune(times []time.Time, cutoff time.Time) []time.Time {
	index := 0
	for index < len(times) && !times[index].After(cutoff) {
		index++
	}
	if index == 0 {
		return times
	}
	return append(times[:0], times[index:]...)
}

// countSince returns how many timestamps are after cutoff and the oldest of them.
func countSince(times []time.Time, cutoff time.Time) (int, time.Time) {
	for index, at := range times {
		if at.After(cutoff) {
			return len(times) - index, at
		}
	}
	return 0, time.Time{}
}
