// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package pipeline

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/taibuivan/aegis/internal/platform/apperr"
	"github.com/taibuivan/aegis/internal/platform/constants"
	"github.com/taibuivan/aegis/internal/platform/kv"
	"github.com/taibuivan/aegis/internal/platform/metrics"
	"github.com/taibuivan/aegis/internal/trust/csrf"
	"github.com/taibuivan/aegis/internal/trust/ratelimit"
)

// # CSRF

// CSRFCheck enforces anti-forgery tokens on the requests selected by Policy.
type CSRFCheck struct {
	Guard  *csrf.Guard
	Policy csrf.Policy
}

// Name implements [Interceptor].
func (check *CSRFCheck) Name() string { return "csrf" }

// Intercept implements [Interceptor].
func (check *CSRFCheck) Intercept(writer http.ResponseWriter, request *http.Request, next Next) error {
	required, sessionID := check.Policy.Requires(request)
	if !required {
		return next(writer, request)
	}

	presented := csrf.TokenFromRequest(request)
	if presented == "" {
		return apperr.Forbidden("CSRF token missing")
	}
	if !check.Guard.Validate(presented, sessionID) {
		return apperr.Forbidden("CSRF token invalid or expired")
	}
	return next(writer, request)
}

// # Rate Limiting

// RateLimit admits requests through the sliding window [ratelimit.Limiter].
type RateLimit struct {
	Limiter *ratelimit.Limiter
	Auditor *Auditor
	Metrics *metrics.Metrics
}

// Name implements [Interceptor].
func (limit *RateLimit) Name() string { return "rate_limit" }

// Intercept implements [Interceptor].
func (limit *RateLimit) Intercept(writer http.ResponseWriter, request *http.Request, next Next) error {
	client := clientID(request)
	decision, err := limit.Limiter.Admit(request.Context(), client, request.URL.Path, request.Method)
	if errors.Is(err, kv.ErrUnavailable) || errors.Is(err, kv.ErrContention) {
		return apperr.ServiceUnavailable("Rate limiter unavailable").WithCause(err)
	}
	if err != nil {
		return err
	}

	limit.Metrics.Admission(decision.Class, decision.Allowed, decision.Reason)

	header := writer.Header()
	header.Set(constants.HeaderRateLimit, strconv.Itoa(decision.Limit))
	header.Set(constants.HeaderRateRemaining, strconv.Itoa(max(decision.Remaining, 0)))
	header.Set(constants.HeaderRateReset, strconv.FormatInt(decision.Reset.Unix(), 10))

	if decision.Allowed {
		return next(writer, request)
	}

	if decision.NewlyBlocked {
		limit.Metrics.ClientBlocked()
		limit.Auditor.Event(request.Context(), EventClientBlocked, SeverityError,
			slog.String("ip", client),
			slog.String("class", decision.Class),
			slog.Duration("duration", decision.RetryAfter),
		)
	}

	rejection := apperr.RateLimited(decision.RetryAfterSeconds())
	rejection.Reason = decision.Reason
	return rejection
}

// # Security Headers

// SecurityHeaders stamps hardening headers on every response.
type SecurityHeaders struct {
	ContentSecurityPolicy string
	// HSTS enables Strict-Transport-Security (production only).
	HSTS              bool
	ReferrerPolicy    string
	PermissionsPolicy string
}

// Default header values.
const (
	DefaultHSTS              = "max-age=63072000; includeSubDomains; preload"
	DefaultReferrerPolicy    = "strict-origin-when-cross-origin"
	DefaultPermissionsPolicy = "camera=(), microphone=(), geolocation=()"
)

// Name implements [Interceptor].
func (headers *SecurityHeaders) Name() string { return "security_headers" }

// Apply writes the headers onto header.
func (headers *SecurityHeaders) Apply(header http.Header) {
	header.Set(constants.HeaderContentOptions, "nosniff")
	header.Set(constants.HeaderFrameOptions, "DENY")

	if headers.ContentSecurityPolicy != "" {
		header.Set(constants.HeaderCSP, headers.ContentSecurityPolicy)
	}
	if headers.HSTS {
		header.Set(constants.HeaderHSTS, DefaultHSTS)
	}

	referrer := headers.ReferrerPolicy
	if referrer == "" {
		referrer = DefaultReferrerPolicy
	}
	header.Set(constants.HeaderReferrerPolicy, referrer)

	permissions := headers.PermissionsPolicy
	if permissions == "" {
		permissions = DefaultPermissionsPolicy
	}
	header.Set(constants.HeaderPermissions, permissions)
}

// Intercept implements [Interceptor].
func (headers *SecurityHeaders) Intercept(writer http.ResponseWriter, request *http.Request, next Next) error {
	headers.Apply(writer.Header())
	return next(writer, request)
}

// # Standard Gate

// Admission carries the collaborators of the standard gate.
type Admission struct {
	MaxBodyBytes int64
	ContentTypes []string

	Guard      *csrf.Guard
	CSRFPolicy csrf.Policy

	Limiter *ratelimit.Limiter
	Headers SecurityHeaders

	Auditor *Auditor
	Metrics *metrics.Metrics
}

// NewAdmission builds the gate in its fixed order: input validation, CSRF,
// rate limiting, security headers.
func NewAdmission(admission Admission) *Pipeline {
	headers := admission.Headers
	return New(admission.Auditor, admission.Metrics,
		&InputValidation{MaxBodyBytes: admission.MaxBodyBytes, ContentTypes: admission.ContentTypes},
		&CSRFCheck{Guard: admission.Guard, Policy: admission.CSRFPolicy},
		&RateLimit{Limiter: admission.Limiter, Auditor: admission.Auditor, Metrics: admission.Metrics},
		&headers,
	)
}
