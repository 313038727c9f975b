// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package pipeline

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/taibuivan/aegis/internal/platform/apperr"
	"github.com/taibuivan/aegis/internal/platform/ctxutil"
	"github.com/taibuivan/aegis/internal/platform/metrics"
	"github.com/taibuivan/aegis/internal/trust/ratelimit"
)

// # Audit Events

// Severity ranks audit events. Expected conditions (token expiry, lockout,
// burst rejection) are low, attacks (injection, forged requests, sustained
// abuse) are high.
type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarn
	SeverityError
)

func (severity Severity) String() string {
	switch severity {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarn:
		return "warn"
	default:
		return "error"
	}
}

func (severity Severity) level() slog.Level {
	switch severity {
	case SeverityDebug:
		return slog.LevelDebug
	case SeverityInfo:
		return slog.LevelInfo
	case SeverityWarn:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// Event names emitted by the gate.
const (
	EventInputRejected    = "input_rejected"
	EventMaliciousInput   = "malicious_input_detected"
	EventCSRFRejected     = "csrf_rejected"
	EventRateViolation    = "rate_limit_violation"
	EventBurstRejected    = "burst_rejected"
	EventBlockedRejected  = "blocked_client_rejected"
	EventClientBlocked    = "client_blocked"
	EventAdmissionFailed  = "admission_failed"
	EventLoginFailed      = "login_failed"
	EventLoginLocked      = "login_locked"
	EventTokenRejected    = "token_rejected"
	EventPermissionDenied = "permission_denied"
	EventRefreshReuse     = "refresh_token_reuse"
	EventSessionsRevoked  = "sessions_revoked"
	EventPasswordChanged  = "password_changed"
	EventUserCreated      = "user_created"
	EventAccountDisabled  = "account_disabled"
	EventAccountEnabled   = "account_enabled"
)

// Log sampling for events below [SeverityError].
const (
	sampleFirst    = 5
	sampleInterval = time.Second
)

// Auditor writes security events to the log and to metrics.
//
// Events below error severity are sampled per event name so a flood of
// rejections cannot flood the log. Metrics count every event.
type Auditor struct {
	logger  *slog.Logger
	metrics *metrics.Metrics

	samplers sync.Map // event -> *rate.Sometimes
}

// NewAuditor returns an [Auditor] writing to logger. A nil logger uses the
// request logger from the context.
func NewAuditor(logger *slog.Logger, collectors *metrics.Metrics) *Auditor {
	return &Auditor{logger: logger, metrics: collectors}
}

// Event records one audit event.
func (auditor *Auditor) Event(ctx context.Context, event string, severity Severity, attrs ...slog.Attr) {
	if auditor == nil {
		return
	}
	auditor.metrics.SecurityEvent(event, severity.String())

	logger := auditor.logger
	if logger == nil {
		logger = ctxutil.GetLogger(ctx)
	}

	write := func() {
		logger.LogAttrs(ctx, severity.level(), event, append(attrs, slog.String("audit", severity.String()))...)
	}

	if severity >= SeverityError {
		write()
		return
	}

	value, _ := auditor.samplers.LoadOrStore(event, &rate.Sometimes{First: sampleFirst, Interval: sampleInterval})
	value.(*rate.Sometimes).Do(write)
}

// Rejected records a pipeline rejection with a severity derived from the error.
func (auditor *Auditor) Rejected(request *http.Request, interceptor string, appError *apperr.AppError) {
	event, severity := classify(appError)
	auditor.Event(request.Context(), event, severity,
		slog.String("interceptor", interceptor),
		slog.String("code", appError.Code),
		slog.String("reason", appError.Reason),
		slog.String("method", request.Method),
		slog.String("path", request.URL.Path),
		slog.String("ip", clientID(request)),
	)
}

func classify(appError *apperr.AppError) (string, Severity) {
	switch appError.Code {
	case apperr.CodeMaliciousInput:
		return EventMaliciousInput, SeverityWarn
	case apperr.CodeForbidden:
		return EventCSRFRejected, SeverityWarn
	case apperr.CodeRateLimited:
		switch appError.Reason {
		case ratelimit.ReasonMinuteLimit:
			return EventRateViolation, SeverityWarn
		case ratelimit.ReasonBlocked:
			return EventBlockedRejected, SeverityInfo
		default:
			return EventBurstRejected, SeverityInfo
		}
	case apperr.CodeValidation, apperr.CodePayloadTooLarge, apperr.CodeUnprocessable:
		return EventInputRejected, SeverityInfo
	default:
		return EventAdmissionFailed, SeverityError
	}
}

// clientID prefers the identity resolved by the client IP middleware.
func clientID(request *http.Request) string {
	if ip := ctxutil.GetClientIP(request.Context()); ip != "" {
		return ip
	}
	return ratelimit.ClientIP(request)
}
