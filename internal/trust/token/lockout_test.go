// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package token_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

/*
TestLockout_Threshold locks at maxAttempts and unlocks once the window passes.
*/
func TestLockout_Threshold(t *testing.T) {
	ctx := context.Background()
	authority, now, _ := newAuthority(t)
	const identifier = "alice@example.com"

	for i := 0; i < 4; i++ {
		require.NoError(t, authority.RecordFailedAttempt(ctx, identifier))
		now.Advance(time.Minute)
	}
	assert.True(t, authority.CheckRateLimit(ctx, identifier), "maxAttempts-1 failures")

	require.NoError(t, authority.RecordFailedAttempt(ctx, identifier))
	assert.False(t, authority.CheckRateLimit(ctx, identifier), "maxAttempts failures")
	assert.False(t, authority.CheckRateLimit(ctx, " ALICE@example.com "), "identifiers are normalized")

	locked, retryAfter := authority.LockoutStatus(ctx, identifier)
	assert.True(t, locked)
	assert.Equal(t, 26*time.Minute, retryAfter, "first failure leaves the window 30m after it was recorded")

	now.Advance(26 * time.Minute)
	assert.True(t, authority.CheckRateLimit(ctx, identifier), "oldest failure aged out")

	now.Advance(30 * time.Minute)
	assert.True(t, authority.CheckRateLimit(ctx, identifier))
}

/*
TestLockout_Clear forgets failures after a successful login.
*/
func TestLockout_Clear(t *testing.T) {
	ctx := context.Background()
	authority, _, _ := newAuthority(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, authority.RecordFailedAttempt(ctx, "10.0.0.1"))
	}
	require.False(t, authority.CheckRateLimit(ctx, "10.0.0.1"))

	require.NoError(t, authority.ClearFailedAttempts(ctx, "10.0.0.1"))
	assert.True(t, authority.CheckRateLimit(ctx, "10.0.0.1"))
	assert.True(t, authority.CheckRateLimit(ctx, "10.0.0.2"), "identifiers are independent")
}
