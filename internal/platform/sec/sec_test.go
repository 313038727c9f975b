// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/taibuivan/aegis/internal/platform/sec"
)

/*
TestHasher_RoundTrip verifies hash then verify, and salt uniqueness.
*/
func TestHasher_RoundTrip(t *testing.T) {
	hasher := sec.NewHasher(bcrypt.MinCost)

	first, err := hasher.Hash("correct horse battery staple")
	require.NoError(t, err)
	second, err := hasher.Hash("correct horse battery staple")
	require.NoError(t, err)

	assert.NotEqual(t, first, second, "salt must differ per hash")
	assert.True(t, hasher.Verify("correct horse battery staple", first))
	assert.False(t, hasher.Verify("wrong", first))
}

/*
TestHasher_FailsClosed verifies malformed inputs never verify.
*/
func TestHasher_FailsClosed(t *testing.T) {
	hasher := sec.NewHasher(bcrypt.MinCost)

	tests := []struct {
		name string
		hash string
	}{
		{"empty_hash", ""},
		{"garbage", "not-a-hash"},
		{"truncated", "$2a$04$abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, hasher.Verify("anything", tt.hash))
		})
	}

	_, err := hasher.Hash("")
	assert.ErrorIs(t, err, sec.ErrEmptyPassword)
}

/*
TestHasher_CostTuning checks cost clamping and rehash detection.
*/
func TestHasher_CostTuning(t *testing.T) {
	assert.Equal(t, bcrypt.DefaultCost, sec.NewHasher(1).Cost())
	assert.Equal(t, bcrypt.DefaultCost, sec.NewHasher(99).Cost())

	cheap := sec.NewHasher(bcrypt.MinCost)
	hash, err := cheap.Hash("pw")
	require.NoError(t, err)

	assert.False(t, cheap.NeedsRehash(hash))
	assert.True(t, sec.NewHasher(bcrypt.MinCost+1).NeedsRehash(hash))
}

/*
TestRole_Hierarchy verifies guest < user < premium < admin.
*/
func TestRole_Hierarchy(t *testing.T) {
	assert.True(t, sec.RoleAdmin.AtLeast(sec.RolePremium))
	assert.True(t, sec.RolePremium.AtLeast(sec.RoleUser))
	assert.True(t, sec.RoleUser.AtLeast(sec.RoleUser))
	assert.False(t, sec.RoleUser.AtLeast(sec.RolePremium))
	assert.False(t, sec.Role(42).AtLeast(sec.RoleGuest))
}

/*
TestParseRole accepts declared names only.
*/
func TestParseRole(t *testing.T) {
	role, err := sec.ParseRole("Premium")
	require.NoError(t, err)
	assert.Equal(t, sec.RolePremium, role)

	_, err = sec.ParseRole("superuser")
	assert.Error(t, err)

	var decoded sec.Role
	require.NoError(t, decoded.UnmarshalText([]byte("admin")))
	assert.Equal(t, sec.RoleAdmin, decoded)
}

/*
TestPrincipal_HasPermission checks set membership and the admin override.
*/
func TestPrincipal_HasPermission(t *testing.T) {
	user := &sec.Principal{UserID: "u1", Role: sec.RoleUser, Permissions: sec.NewPermissionSet("reports:read", " ")}
	admin := &sec.Principal{UserID: "a1", Role: sec.RoleAdmin}

	assert.True(t, user.HasPermission("reports:read"))
	assert.False(t, user.HasPermission("reports:write"))
	assert.True(t, admin.HasPermission("reports:write"))
	assert.Equal(t, []string{"reports:read"}, user.Permissions.List())

	var anonymous *sec.Principal
	assert.False(t, anonymous.HasPermission("reports:read"))
	assert.False(t, anonymous.HasRole(sec.RoleGuest))
}
