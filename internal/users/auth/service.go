// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/taibuivan/aegis/internal/pipeline"
	"github.com/taibuivan/aegis/internal/platform/apperr"
	"github.com/taibuivan/aegis/internal/platform/ctxutil"
	"github.com/taibuivan/aegis/internal/platform/sec"
	"github.com/taibuivan/aegis/internal/trust/sanitize"
	"github.com/taibuivan/aegis/internal/trust/token"
)

// # Contracts & Types

// TokenAuthority is the slice of [token.Authority] the service drives.
type TokenAuthority interface {
	IssueAccessToken(identity token.Identity, ttl time.Duration) (string, error)
	RevokeAccessToken(ctx context.Context, raw string) error

	IssueRefreshToken(ctx context.Context, userID string) (string, error)
	RotateRefreshToken(ctx context.Context, raw string) (userID, next string, err error)
	RevokeRefreshToken(ctx context.Context, raw string) error
	RevokeAllUserTokens(ctx context.Context, userID string) (int, error)

	LockoutStatus(ctx context.Context, identifier string) (bool, time.Duration)
	RecordFailedAttempt(ctx context.Context, identifier string) error
	ClearFailedAttempts(ctx context.Context, identifier string) error

	AccessTTL() time.Duration
	RefreshTTL() time.Duration
}

// Service implements the login and session use cases.
//
// # Timing
//
// Login costs one bcrypt comparison whether or not the account exists, so
// response time does not reveal which emails are registered. Locked
// identifiers are rejected before that comparison.
type Service struct {
	users   UserRepository
	tokens  TokenAuthority
	hasher  *sec.Hasher
	auditor *pipeline.Auditor

	// dummyHash is compared for unknown accounts. Computed once, lazily.
	dummyHash func() string
}

// NewService constructs a new [Service] with necessary dependencies.
func NewService(users UserRepository, tokens TokenAuthority, hasher *sec.Hasher, auditor *pipeline.Auditor) *Service {
	return &Service{
		users:   users,
		tokens:  tokens,
		hasher:  hasher,
		auditor: auditor,
		dummyHash: sync.OnceValue(func() string {
			hash, _ := hasher.Hash(timingEqualizer)
			return hash
		}),
	}
}

// # Authentication Flow

// LoginInput defines credentials for an authentication attempt.
type LoginInput struct {
	Email     string
	Password  string
	IPAddress string
}

// LoginSession represents a successfully established user session.
type LoginSession struct {
	AccessToken      string
	AccessExpiresIn  time.Duration
	RefreshToken     string
	RefreshExpiresAt time.Time
	User             *User
}

/*
Login validates user credentials and issues a token pair.

Description: Sanitizes the identifier, refuses locked-out identifiers,
compares the password (against a dummy hash for unknown accounts) and keeps
the failed-attempt ledger up to date.

Returns:
  - *LoginSession: Transport-ready session identifiers
  - err: MALICIOUS_INPUT, RATE_LIMITED (LOGIN_LOCKED), UNAUTHENTICATED or internal failures
*/
func (service *Service) Login(ctx context.Context, input LoginInput) (*LoginSession, error) {
	logger := ctxutil.GetLogger(ctx)

	// 1. Identifier hygiene
	email, err := sanitize.String(input.Email, FieldEmail)
	if err != nil {
		return nil, sanitize.AppError(err)
	}
	email = normalizeEmail(email)

	// 2. Lockout gate
	if locked, retryAfter := service.tokens.LockoutStatus(ctx, email); locked {
		service.auditor.Event(ctx, pipeline.EventLoginLocked, pipeline.SeverityInfo,
			slog.String("email", email),
			slog.String("ip", input.IPAddress),
			slog.Duration("retry_after", retryAfter),
		)
		rejection := apperr.RateLimited(int((retryAfter + time.Second - 1) / time.Second))
		rejection.Reason = ReasonLoginLocked
		return nil, rejection
	}

	// 3. Credential check. Unknown accounts still pay for one bcrypt compare.
	user, err := service.users.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("auth_service_lookup_failed: %w", err)
	}

	var verified bool
	if user == nil {
		service.hasher.Verify(input.Password, service.dummyHash())
	} else {
		verified = service.hasher.Verify(input.Password, user.PasswordHash) && !user.Disabled
	}

	if !verified {
		if err := service.tokens.RecordFailedAttempt(ctx, email); err != nil {
			logger.WarnContext(ctx, "login_attempt_not_recorded", slog.Any("error", err))
		}
		service.auditor.Event(ctx, pipeline.EventLoginFailed, pipeline.SeverityWarn,
			slog.String("email", email),
			slog.String("ip", input.IPAddress),
		)
		return nil, apperr.Unauthenticated(ReasonInvalidCredentials, "Invalid login credentials")
	}

	// 4. Success resets the ledger
	if err := service.tokens.ClearFailedAttempts(ctx, email); err != nil {
		logger.WarnContext(ctx, "login_attempts_not_cleared", slog.Any("error", err))
	}
	service.upgradeHash(ctx, user, input.Password)

	return service.issue(ctx, user)
}

// upgradeHash re-hashes the password when the configured cost changed.
// Failures are logged and never fail the login.
func (service *Service) upgradeHash(ctx context.Context, user *User, password string) {
	if !service.hasher.NeedsRehash(user.PasswordHash) {
		return
	}

	hash, err := service.hasher.Hash(password)
	if err == nil {
		user.PasswordHash = hash
		err = service.users.Save(ctx, user)
	}
	if err != nil {
		ctxutil.GetLogger(ctx).WarnContext(ctx, "password_rehash_failed",
			slog.String("user_id", user.ID),
			slog.Any("error", err),
		)
	}
}

// issue signs a fresh access token and registers a new refresh token.
func (service *Service) issue(ctx context.Context, user *User) (*LoginSession, error) {
	accessToken, err := service.tokens.IssueAccessToken(user.Identity(), 0)
	if err != nil {
		return nil, fmt.Errorf("auth_service_token_generation_failed: %w", err)
	}

	refreshToken, err := service.tokens.IssueRefreshToken(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("auth_service_refresh_token_failed: %w", err)
	}

	return &LoginSession{
		AccessToken:      accessToken,
		AccessExpiresIn:  service.tokens.AccessTTL(),
		RefreshToken:     refreshToken,
		RefreshExpiresAt: time.Now().Add(service.tokens.RefreshTTL()),
		User:             user,
	}, nil
}

// # Session Management

/*
Refresh implements refresh token rotation.

Description: The presented token is deactivated and a successor issued in one
step. Presenting an already rotated token is reported as reuse.

Returns:
  - *LoginSession: New session credentials
  - err: UNAUTHENTICATED with EXPIRED / INVALID / REVOKED, or storage failures
*/
func (service *Service) Refresh(ctx context.Context, refreshToken string) (*LoginSession, error) {
	if refreshToken == "" {
		return nil, apperr.Unauthenticated(token.ReasonMissing, "Missing refresh token")
	}

	userID, next, err := service.tokens.RotateRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, service.refreshFailure(ctx, err)
	}

	user, err := service.users.FindByID(ctx, userID)
	if err != nil || user.Disabled {
		// The successor must not outlive an account that can no longer log in.
		if revokeErr := service.tokens.RevokeRefreshToken(ctx, next); revokeErr != nil {
			ctxutil.GetLogger(ctx).WarnContext(ctx, "refresh_successor_not_revoked", slog.Any("error", revokeErr))
		}
		if err != nil && !errors.Is(err, ErrUserNotFound) {
			return nil, fmt.Errorf("auth_service_lookup_failed: %w", err)
		}
		return nil, apperr.Unauthenticated(token.ReasonInvalid, "User not found or suspended")
	}

	accessToken, err := service.tokens.IssueAccessToken(user.Identity(), 0)
	if err != nil {
		return nil, fmt.Errorf("auth_service_refresh_access_token_failed: %w", err)
	}

	return &LoginSession{
		AccessToken:      accessToken,
		AccessExpiresIn:  service.tokens.AccessTTL(),
		RefreshToken:     next,
		RefreshExpiresAt: time.Now().Add(service.tokens.RefreshTTL()),
		User:             user,
	}, nil
}

func (service *Service) refreshFailure(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, token.ErrRevoked):
		service.auditor.Event(ctx, pipeline.EventRefreshReuse, pipeline.SeverityWarn,
			slog.String("ip", ctxutil.GetClientIP(ctx)),
		)
		return token.AppError(err)
	case errors.Is(err, token.ErrExpired), errors.Is(err, token.ErrInvalid):
		return token.AppError(err)
	default:
		return fmt.Errorf("auth_service_refresh_failed: %w", err)
	}
}

/*
Logout revokes the presented access token and refresh token.

Description: Either token may be empty. Revocation is idempotent.

Returns:
  - err: Store failures
*/
func (service *Service) Logout(ctx context.Context, accessToken, refreshToken string) error {
	if accessToken != "" {
		err := service.tokens.RevokeAccessToken(ctx, accessToken)
		if err != nil && !errors.Is(err, token.ErrInvalid) {
			return fmt.Errorf("auth_service_logout_failed: %w", err)
		}
	}

	if refreshToken != "" {
		if err := service.tokens.RevokeRefreshToken(ctx, refreshToken); err != nil {
			return fmt.Errorf("auth_service_logout_failed: %w", err)
		}
	}
	return nil
}

/*
LogoutAll revokes every refresh token of userID plus the calling access token.

Returns:
  - int: Number of refresh tokens that were still active
  - err: Store failures
*/
func (service *Service) LogoutAll(ctx context.Context, userID, accessToken string) (int, error) {
	revoked, err := service.tokens.RevokeAllUserTokens(ctx, userID)
	if err != nil {
		return revoked, fmt.Errorf("auth_service_logout_all_failed: %w", err)
	}

	if err := service.Logout(ctx, accessToken, ""); err != nil {
		return revoked, err
	}

	service.auditor.Event(ctx, pipeline.EventSessionsRevoked, pipeline.SeverityInfo,
		slog.String("user_id", userID),
		slog.Int("count", revoked),
	)
	return revoked, nil
}

// Me returns the account behind an authenticated principal.
func (service *Service) Me(ctx context.Context, userID string) (*User, error) {
	user, err := service.users.FindByID(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		return nil, apperr.Unauthenticated(token.ReasonInvalid, "User not found or suspended")
	}
	if err != nil {
		return nil, fmt.Errorf("auth_service_lookup_failed: %w", err)
	}
	return user, nil
}
