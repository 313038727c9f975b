// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package auth implements the login and session endpoints of the gate.

It owns the account records the gate needs (email, password hash, role,
permissions) and drives the token authority for issuance, rotation and
revocation.

# Architecture

The user directory is a collaborator behind [UserRepository]. The gate ships
an in-memory implementation seeded from configuration and a PostgreSQL one.
*/
package auth

import (
	"errors"
	"time"

	"github.com/taibuivan/aegis/internal/platform/sec"
	"github.com/taibuivan/aegis/internal/trust/token"
)

// # Domain Entities

// User is an account that can log in through the gate.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // Explicitly omitted from JSON for security.
	Role         sec.Role  `json:"role"`
	Permissions  []string  `json:"permissions,omitempty"`
	Disabled     bool      `json:"disabled"`
	CreatedAt    time.Time `json:"created_at"`
}

// Identity returns the subject an access token is issued for.
func (user *User) Identity() token.Identity {
	return token.Identity{
		UserID:      user.ID,
		Role:        user.Role,
		Permissions: user.Permissions,
	}
}

// ErrUserNotFound is returned by repositories for an unknown account.
var ErrUserNotFound = errors.New("auth: user not found")

// ErrEmailTaken is returned by Save when another account owns the email.
var ErrEmailTaken = errors.New("auth: email already registered")

// # Field Identifiers

// Global field names for validation and response payloads in the authentication domain.
const (
	FieldEmail           = "email"
	FieldPassword        = "password"
	FieldAccessToken     = "access_token"
	FieldTokenType       = "token_type"
	FieldExpiresIn       = "expires_in"
	FieldUser            = "user"
	FieldRevokedSessions = "revoked_sessions"
)
