// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/taibuivan/aegis/internal/platform/constants"
	"github.com/taibuivan/aegis/internal/platform/kv"
)

// # Shared Store

// KVStore keeps limiter state in a [kv.Store] so that every instance behind
// a load balancer counts against the same windows. Updates are optimistic
// compare-and-swap loops, which keeps Take atomic on Redis and PostgreSQL.
//
// Keys carry a TTL equal to the window they describe. Expiry is still
// judged from the stored timestamps, so a backend that expires lazily only
// costs space.
type KVStore struct {
	store kv.Store
}

// NewKVStore returns a [KVStore] over store.
func NewKVStore(store kv.Store) *KVStore {
	return &KVStore{store: store}
}

func decodeTimes(data []byte) ([]time.Time, error) {
	if data == nil {
		return nil, nil
	}
	var nanos []int64
	if err := json.Unmarshal(data, &nanos); err != nil {
		return nil, fmt.Errorf("ratelimit: decode timestamps: %w", err)
	}
	times := make([]time.Time, len(nanos))
	for index, nano := range nanos {
		times[index] = time.Unix(0, nano)
	}
	return times, nil
}

func encodeTimes(times []time.Time) ([]byte, error) {
	nanos := make([]int64, len(times))
	for index, at := range times {
		nanos[index] = at.UnixNano()
	}
	return json.Marshal(nanos)
}

// Take implements [Store].
func (store *KVStore) Take(ctx context.Context, key string, now time.Time, class Class) (Window, error) {
	var result Window
	mutate := func(current []byte) ([]byte, error) {
		times, err := decodeTimes(current)
		if err != nil {
			return nil, err
		}
		times = prune(times, now.Add(-MinuteWindow))
		result = evaluate(times, now, class)
		if !result.Admitted {
			return nil, nil
		}
		return encodeTimes(insert(times, now))
	}

	// Every lost round means another request was counted, so retrying under
	// contention always makes progress. The context bounds the wait.
	err := kv.Update(ctx, store.store, constants.PrefixRateWindow+key, MinuteWindow, mutate)
	for errors.Is(err, kv.ErrContention) {
		err = kv.Update(ctx, store.store, constants.PrefixRateWindow+key, MinuteWindow, mutate)
	}
	if err != nil {
		return Window{}, fmt.Errorf("ratelimit: take %s: %w", key, err)
	}
	return result, nil
}

// BlockedAt implements [Store].
func (store *KVStore) BlockedAt(ctx context.Context, clientID string) (time.Time, bool, error) {
	data, err := store.store.Get(ctx, constants.PrefixRateBlock+clientID)
	if errors.Is(err, kv.ErrNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("ratelimit: block lookup: %w", err)
	}
	nano, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("ratelimit: decode block: %w", err)
	}
	return time.Unix(0, nano), true, nil
}

// RecordViolation implements [Store].
func (store *KVStore) RecordViolation(ctx context.Context, clientID string, now time.Time, policy BlockPolicy) (bool, error) {
	var count int
	err := kv.Update(ctx, store.store, constants.PrefixRateViolations+clientID, policy.ViolationWindow, func(current []byte) ([]byte, error) {
		times, err := decodeTimes(current)
		if err != nil {
			return nil, err
		}
		times = insert(prune(times, now.Add(-policy.ViolationWindow)), now)
		count = len(times)
		return encodeTimes(times)
	})
	if err != nil {
		return false, fmt.Errorf("ratelimit: record violation: %w", err)
	}
	if count < policy.Threshold {
		return false, nil
	}

	placed := false
	stamp := []byte(strconv.FormatInt(now.UnixNano(), 10))
	err = kv.Update(ctx, store.store, constants.PrefixRateBlock+clientID, policy.Duration, func(current []byte) ([]byte, error) {
		placed = false
		if current != nil {
			nano, err := strconv.ParseInt(string(current), 10, 64)
			if err == nil && now.Before(time.Unix(0, nano).Add(policy.Duration)) {
				return nil, nil
			}
		}
		placed = true
		return stamp, nil
	})
	if err != nil {
		return false, fmt.Errorf("ratelimit: place block: %w", err)
	}
	return placed, nil
}

// Violations implements [Store].
func (store *KVStore) Violations(ctx context.Context, clientID string, now time.Time, span time.Duration) (int, error) {
	data, err := store.store.Get(ctx, constants.PrefixRateViolations+clientID)
	if errors.Is(err, kv.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("ratelimit: violation lookup: %w", err)
	}
	times, err := decodeTimes(data)
	if err != nil {
		return 0, err
	}
	return len(prune(times, now.Add(-span))), nil
}

// Unblock implements [Store].
func (store *KVStore) Unblock(ctx context.Context, clientID string) error {
	if err := store.store.Delete(ctx, constants.PrefixRateBlock+clientID); err != nil {
		return fmt.Errorf("ratelimit: unblock: %w", err)
	}
	if err := store.store.Delete(ctx, constants.PrefixRateViolations+clientID); err != nil {
		return fmt.Errorf("ratelimit: unblock: %w", err)
	}
	return nil
}
