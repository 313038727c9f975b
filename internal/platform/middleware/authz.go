// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/taibuivan/aegis/internal/platform/apperr"
	"github.com/taibuivan/aegis/internal/platform/ctxutil"
	"github.com/taibuivan/aegis/internal/platform/metrics"
	requestutil "github.com/taibuivan/aegis/internal/platform/request"
	"github.com/taibuivan/aegis/internal/platform/respond"
	"github.com/taibuivan/aegis/internal/platform/sec"
	"github.com/taibuivan/aegis/internal/trust/token"
)

// TokenVerifier defines the interface needed to verify tokens in middleware.
//
// # Why an interface?
//
// Defining TokenVerifier here decouples the middleware from the token
// authority, allowing us to easily inject fakes during unit testing.
type TokenVerifier interface {
	VerifyAccessToken(ctx context.Context, raw string) (*sec.Principal, error)
}

// Authenticate extracts and verifies the bearer token from the Authorization header.
//
// # Flow
//  1. Check for 'Authorization: Bearer <token>' header.
//  2. If absent, request proceeds as anonymous.
//  3. If present, verify it via [TokenVerifier]. Any failure is a terminal 401
//     carrying the EXPIRED / INVALID / REVOKED reason.
//  4. Inject the [*sec.Principal] into the request context for downstream use.
func Authenticate(verifier TokenVerifier, collectors *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {

			// 1. Anonymous Access
			raw, err := requestutil.BearerToken(request)
			if err != nil {
				collectors.TokenVerification(metrics.OutcomeInvalid)
				respond.Error(writer, request, apperr.Unauthenticated(token.ReasonInvalid, "Invalid authorization format"))
				return
			}
			if raw == "" {
				next.ServeHTTP(writer, request)
				return
			}

			// 2. Token Verification
			principal, err := verifier.VerifyAccessToken(request.Context(), raw)
			if err != nil {
				rejectToken(writer, request, err, collectors)
				return
			}
			collectors.TokenVerification(metrics.OutcomeValid)

			// 3. Context Injection
			ctx := ctxutil.WithPrincipal(request.Context(), principal)
			next.ServeHTTP(writer, request.WithContext(ctx))
		})
	}
}

// rejectToken renders a verification failure. Expiry is routine and logged
// at debug, revocation and forgery are logged as warnings.
func rejectToken(writer http.ResponseWriter, request *http.Request, err error, collectors *metrics.Metrics) {
	logger := ctxutil.GetLogger(request.Context())

	isTokenError := errors.Is(err, token.ErrExpired) || errors.Is(err, token.ErrInvalid) || errors.Is(err, token.ErrRevoked)
	if !isTokenError {
		// The blacklist could not be consulted. Reject without trusting the token.
		logger.ErrorContext(request.Context(), "token_verification_unavailable", slog.Any("error", err))
		respond.Error(writer, request, apperr.ServiceUnavailable("Authentication temporarily unavailable").WithCause(err))
		return
	}

	reason := token.Reason(err)
	switch reason {
	case token.ReasonExpired:
		collectors.TokenVerification(metrics.OutcomeExpired)
		logger.DebugContext(request.Context(), "token_rejected", slog.String("reason", reason))
	case token.ReasonRevoked:
		collectors.TokenVerification(metrics.OutcomeRevoked)
		logger.WarnContext(request.Context(), "token_rejected", slog.String("reason", reason))
	default:
		collectors.TokenVerification(metrics.OutcomeInvalid)
		logger.WarnContext(request.Context(), "token_rejected", slog.String("reason", reason), slog.Any("error", err))
	}

	respond.Error(writer, request, token.AppError(err))
}

// RequireAuth blocks requests that are not authenticated.
//
// # Usage
//
// Must be registered in the router AFTER [Authenticate].
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if ctxutil.GetPrincipal(request.Context()) == nil {
			respond.Error(writer, request, apperr.Unauthenticated(token.ReasonMissing, "Authentication required"))
			return
		}
		next.ServeHTTP(writer, request)
	})
}

// RequireRole blocks requests whose principal ranks below minimum.
//
// # Usage
//
// Must be registered in the router AFTER [Authenticate]. It automatically implies
// [RequireAuth] so you don't need to mount both.
func RequireRole(minimum sec.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			principal := ctxutil.GetPrincipal(request.Context())

			// 1. Authentication Check
			if principal == nil {
				respond.Error(writer, request, apperr.Unauthenticated(token.ReasonMissing, "Authentication required"))
				return
			}

			// 2. Authorization Check
			if !principal.HasRole(minimum) {
				ctxutil.GetLogger(request.Context()).InfoContext(request.Context(), "permission_denied",
					slog.String("user_id", principal.UserID),
					slog.String("required_role", minimum.String()),
				)
				respond.Error(writer, request, apperr.Forbidden("Insufficient role"))
				return
			}

			next.ServeHTTP(writer, request)
		})
	}
}

// RequirePermission blocks requests whose principal lacks permission.
// Admins implicitly hold every permission.
func RequirePermission(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			principal := ctxutil.GetPrincipal(request.Context())
			if principal == nil {
				respond.Error(writer, request, apperr.Unauthenticated(token.ReasonMissing, "Authentication required"))
				return
			}

			if !principal.HasPermission(permission) {
				ctxutil.GetLogger(request.Context()).InfoContext(request.Context(), "permission_denied",
					slog.String("user_id", principal.UserID),
					slog.String("permission", permission),
				)
				respond.Error(writer, request, apperr.Forbidden("Missing permission"))
				return
			}

			next.ServeHTTP(writer, request)
		})
	}
}
