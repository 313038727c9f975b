// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package constants provides centralized, immutable values for the entire gate.

It defines default timeouts, header names, and cross-cutting keys that are
shared between the admission components and the HTTP layer.

Categories:

  - Server Timing: Read/Write/Idle timeouts for the HTTP server.
  - Headers: Tracing, proxy, rate-limit and security header names.
  - Security: Token issuer, cookie names and store key prefixes.

Using this package ensures Magic Strings and Magic Numbers are eliminated
from the admission logic.
*/
package constants

import "time"

// # Metadata

const (
	AppName    = "aegis"
	AppVersion = "0.1.0-dev"
)

// # Server Timing

const (
	// DefaultReadTimeout is the maximum duration for reading the entire request.
	DefaultReadTimeout = 5 * time.Second

	// DefaultWriteTimeout is the maximum duration before timing out writes of the response.
	DefaultWriteTimeout = 10 * time.Second

	// DefaultIdleTimeout is the maximum amount of time to wait for the next request.
	DefaultIdleTimeout = 120 * time.Second

	// DefaultReadHeaderTimeout is the amount of time allowed to read request headers.
	DefaultReadHeaderTimeout = 2 * time.Second

	// GlobalRequestTimeout is the deadline for the entire request lifecycle.
	GlobalRequestTimeout = 30 * time.Second

	// ShutdownTimeout is how long we wait for in-flight requests to complete during shutdown.
	ShutdownTimeout = 30 * time.Second

	// StartupTimeout bounds store connection and migration at boot.
	StartupTimeout = 30 * time.Second
)

// # Headers

const (
	HeaderXRequestID     = "X-Request-ID"
	HeaderXRealIP        = "X-Real-IP"
	HeaderXForwardedFor  = "X-Forwarded-For"
	HeaderOrigin         = "Origin"
	HeaderAuthorization  = "Authorization"
	HeaderContentType    = "Content-Type"
	HeaderRetryAfter     = "Retry-After"
	HeaderCSRFToken      = "X-CSRF-Token"
	HeaderRateLimit      = "X-RateLimit-Limit"
	HeaderRateRemaining  = "X-RateLimit-Remaining"
	HeaderRateReset      = "X-RateLimit-Reset"
	HeaderContentOptions = "X-Content-Type-Options"
	HeaderFrameOptions   = "X-Frame-Options"
	HeaderHSTS           = "Strict-Transport-Security"
	HeaderCSP            = "Content-Security-Policy"
	HeaderReferrerPolicy = "Referrer-Policy"
	HeaderPermissions    = "Permissions-Policy"

	ContentTypeJSON = "application/json; charset=utf-8"

	// BearerScheme is the Authorization scheme accepted by the gate.
	BearerScheme = "bearer"
)

// # Authentication

const (
	// RefreshTokenCookieName is the name of the cookie that stores the refresh token.
	RefreshTokenCookieName = "refresh_token"

	// RefreshTokenCookiePath is the scoped path for the refresh token cookie.
	RefreshTokenCookiePath = "/api/v1/auth"

	// SessionCookieName identifies a cookie-authenticated browser session.
	SessionCookieName = "aegis_session"

	// CSRFFormField is the form field fallback for the anti-forgery token.
	CSRFFormField = "csrf_token"
)

// # JSON Field Identifiers

const (
	FieldData    = "data"
	FieldError   = "error"
	FieldCode    = "code"
	FieldDetails = "details"
	FieldMessage = "message"
	FieldStatus  = "status"
	FieldApp     = "app"
	FieldVersion = "version"
	FieldChecks  = "checks"
)

// # Store Prefixes (Key Taxonomy)

const (
	PrefixBlacklist    = "token:blacklist:"
	PrefixRefresh      = "token:refresh:"
	PrefixUserSessions = "token:user:"
	PrefixLoginAttempt = "auth:attempts:"

	PrefixRateWindow     = "rate:window:"
	PrefixRateViolations = "rate:violations:"
	PrefixRateBlock      = "rate:block:"
)
