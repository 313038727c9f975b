// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

// # Authentication Constraints

const (
	// MaxPasswordLength is the bcrypt input limit. Longer inputs would be
	// silently truncated, so they are rejected instead.
	MaxPasswordLength = 72

	// TokenType is advertised next to every issued access token.
	TokenType = "Bearer"

	// ReasonInvalidCredentials refines UNAUTHENTICATED for a failed login.
	ReasonInvalidCredentials = "INVALID_CREDENTIALS"

	// ReasonLoginLocked refines RATE_LIMITED for a locked-out identifier.
	ReasonLoginLocked = "LOGIN_LOCKED"

	// timingEqualizer is hashed once and compared for unknown accounts so
	// the response time does not reveal whether an email is registered.
	timingEqualizer = "aegis-timing-equalizer"
)
