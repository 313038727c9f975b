// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package account handles the security-sensitive changes to an account after
it exists: password changes by the owner, and creation, disabling and
re-enabling by an operator.

# Architecture

  - Persistence: the auth package's [auth.UserRepository], so accounts have
    a single source of truth whichever store backend is configured.
  - Sessions: every change that should end existing sessions (new password,
    disabled account) revokes all refresh tokens of the account through
    [SessionRevoker].
  - Audit: each change emits a security event through the gate auditor.
*/
package account

import (
	"context"
)

// # Constraints

const (
	// MinPasswordLength is the shortest accepted new password.
	MinPasswordLength = 8

	// PermissionManageUsers grants the operator endpoints. Admins hold it
	// implicitly.
	PermissionManageUsers = "users:manage"
)

// Request and response field names.
const (
	FieldCurrentPassword = "current_password"
	FieldNewPassword     = "new_password"
	FieldRole            = "role"
	FieldPermissions     = "permissions"
)

// # Collaborator Contracts

// SessionRevoker ends every session of an account.
type SessionRevoker interface {
	// RevokeAllUserTokens deactivates every refresh token of userID and
	// reports how many were live.
	RevokeAllUserTokens(ctx context.Context, userID string) (int, error)
}
