// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package token implements the Token Authority: issuance, verification and
revocation of signed bearer tokens, plus the login lockout ledger.

# Token Types

  - Access tokens are short-lived and stateless. They carry the role and
    permission snapshot taken at issuance time.
  - Refresh tokens are long-lived and signed with a separate secret. Each one
    has a server-side registry record so it can be revoked and rotated.

# Shared State

The access blacklist, the refresh registry and the failed-attempt ledger are
kept in a [kv.Store]. Keys are derived from a SHA-256 fingerprint of the
token, so raw tokens never reach the store.
*/
package token

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/golang-jwt/jwt/v5"

	"github.com/taibuivan/aegis/internal/platform/apperr"
	"github.com/taibuivan/aegis/internal/platform/sec"
)

// Type distinguishes access tokens from refresh tokens.
type Type string

const (
	TypeAccess  Type = "access"
	TypeRefresh Type = "refresh"
)

// Claims is the JWT payload for both token types.
//
// Refresh tokens leave Role and Permissions empty.
type Claims struct {
	jwt.RegisteredClaims

	Role        sec.Role `json:"role,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	Type        Type     `json:"type"`
}

// Identity is the subject an access token is issued for.
type Identity struct {
	UserID      string
	Role        sec.Role
	Permissions []string
}

// # Errors

var (
	// ErrExpired is returned for tokens past their exp claim.
	ErrExpired = errors.New("token: expired")

	// ErrInvalid covers malformed tokens, bad signatures and wrong token types.
	ErrInvalid = errors.New("token: invalid")

	// ErrRevoked is returned for blacklisted access tokens and inactive refresh tokens.
	ErrRevoked = errors.New("token: revoked")

	// ErrWeakSecret is returned when a signing secret is shorter than [MinSecretLength].
	ErrWeakSecret = errors.New("token: signing secret too short")

	// ErrSharedSecret is returned when the refresh secret equals the access secret.
	ErrSharedSecret = errors.New("token: refresh secret must differ from access secret")
)

// Rejection reasons surfaced in the UNAUTHENTICATED envelope.
const (
	ReasonMissing = "MISSING"
	ReasonExpired = "EXPIRED"
	ReasonInvalid = "INVALID"
	ReasonRevoked = "REVOKED"
)

// Reason returns the client-visible reason for a verification error.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrExpired):
		return ReasonExpired
	case errors.Is(err, ErrRevoked):
		return ReasonRevoked
	default:
		return ReasonInvalid
	}
}

// AppError maps a verification error onto a 401 [apperr.AppError].
func AppError(err error) *apperr.AppError {
	if err == nil {
		return nil
	}

	reason := Reason(err)
	message := "Invalid token"
	switch reason {
	case ReasonExpired:
		message = "Token has expired"
	case ReasonRevoked:
		message = "Token has been revoked"
	}
	return apperr.Unauthenticated(reason, message).WithCause(err)
}

// fingerprint is the store key suffix for a raw token.
func fingerprint(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
