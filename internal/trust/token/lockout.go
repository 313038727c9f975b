// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/taibuivan/aegis/internal/platform/constants"
	"github.com/taibuivan/aegis/internal/platform/kv"
)

// # Login Lockout
//
// An identifier (email, IP) is locked once it has accumulated
// LockoutMaxAttempts failures inside the rolling LockoutWindow. Lockout is
// advisory: it lets callers reject early, the credential check still fails
// on its own.

func attemptKey(identifier string) string {
	return constants.PrefixLoginAttempt + strings.ToLower(strings.TrimSpace(identifier))
}

// liveAttempts decodes the ledger and drops attempts outside the window.
func (authority *Authority) liveAttempts(data []byte, now time.Time) ([]time.Time, error) {
	if data == nil {
		return nil, nil
	}
	var attempts []time.Time
	if err := json.Unmarshal(data, &attempts); err != nil {
		return nil, fmt.Errorf("token: decode attempts: %w", err)
	}

	cutoff := now.Add(-authority.lockoutWindow)
	live := attempts[:0]
	for _, at := range attempts {
		if at.After(cutoff) {
			live = append(live, at)
		}
	}
	return live, nil
}

// LockoutStatus reports whether identifier is locked and, if so, how long
// until the oldest counted failure leaves the window.
//
// Store failures fail open: the identifier is reported unlocked and a
// warning is logged, since the password check still guards the account.
func (authority *Authority) LockoutStatus(ctx context.Context, identifier string) (bool, time.Duration) {
	data, err := authority.store.Get(ctx, attemptKey(identifier))
	if errors.Is(err, kv.ErrNotFound) {
		return false, 0
	}
	if err != nil {
		authority.logger.WarnContext(ctx, "lockout_store_degraded", slog.Any("error", err))
		return false, 0
	}

	now := authority.now()
	attempts, err := authority.liveAttempts(data, now)
	if err != nil {
		authority.logger.WarnContext(ctx, "lockout_store_degraded", slog.Any("error", err))
		return false, 0
	}
	if len(attempts) < authority.lockoutMaxAttempts {
		return false, 0
	}

	oldest := attempts[len(attempts)-authority.lockoutMaxAttempts]
	return true, oldest.Add(authority.lockoutWindow).Sub(now)
}

// CheckRateLimit reports whether identifier may attempt to authenticate.
func (authority *Authority) CheckRateLimit(ctx context.Context, identifier string) bool {
	locked, _ := authority.LockoutStatus(ctx, identifier)
	return !locked
}

// RecordFailedAttempt appends a failure for identifier.
func (authority *Authority) RecordFailedAttempt(ctx context.Context, identifier string) error {
	err := kv.Update(ctx, authority.store, attemptKey(identifier), authority.lockoutWindow, func(current []byte) ([]byte, error) {
		now := authority.now()
		attempts, err := authority.liveAttempts(current, now)
		if err != nil {
			// A corrupt ledger is replaced rather than blocking the identifier forever.
			attempts = nil
		}
		return json.Marshal(append(attempts, now))
	})
	if err != nil {
		return fmt.Errorf("token: record failed attempt: %w", err)
	}
	return nil
}

// ClearFailedAttempts forgets every failure for identifier.
func (authority *Authority) ClearFailedAttempts(ctx context.Context, identifier string) error {
	if err := authority.store.Delete(ctx, attemptKey(identifier)); err != nil {
		return fmt.Errorf("token: clear failed attempts: %w", err)
	}
	return nil
}
