// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/taibuivan/aegis/internal/pipeline"
	"github.com/taibuivan/aegis/internal/platform/apperr"
	"github.com/taibuivan/aegis/internal/platform/ctxutil"
	"github.com/taibuivan/aegis/internal/platform/sec"
	"github.com/taibuivan/aegis/internal/trust/sanitize"
	"github.com/taibuivan/aegis/internal/users/auth"
)

// # Service Layer

// Service applies account changes and ends the sessions they invalidate.
type Service struct {
	users    auth.UserRepository
	sessions SessionRevoker
	hasher   *sec.Hasher
	auditor  *pipeline.Auditor
}

// NewService constructs a new [Service] with its dependencies.
func NewService(users auth.UserRepository, sessions SessionRevoker, hasher *sec.Hasher, auditor *pipeline.Auditor) *Service {
	return &Service{
		users:    users,
		sessions: sessions,
		hasher:   hasher,
		auditor:  auditor,
	}
}

// find loads an account, mapping a missing one to 404.
func (service *Service) find(ctx context.Context, userID string) (*auth.User, error) {
	user, err := service.users.FindByID(ctx, userID)
	if errors.Is(err, auth.ErrUserNotFound) {
		return nil, apperr.NotFound("Account not found")
	}
	if err != nil {
		return nil, fmt.Errorf("account_service_lookup_failed: %w", err)
	}
	return user, nil
}

// endSessions revokes every session of userID. A failure is logged, the
// change itself has already been persisted.
func (service *Service) endSessions(ctx context.Context, userID string) int {
	revoked, err := service.sessions.RevokeAllUserTokens(ctx, userID)
	if err != nil {
		ctxutil.GetLogger(ctx).ErrorContext(ctx, "account_sessions_not_revoked",
			slog.String("user_id", userID),
			slog.Any("error", err),
		)
	}
	return revoked
}

// # Password

/*
ChangePassword replaces the caller's password and signs out every session.

Parameters:
  - ctx: context.Context
  - userID: string (the authenticated caller)
  - current: string (must match the stored hash)
  - next: string (already shape-validated by the handler)

Returns:
  - int: Number of sessions revoked
  - error: UNAUTHENTICATED (INVALID_CREDENTIALS), VALIDATION_ERROR or storage failures
*/
func (service *Service) ChangePassword(ctx context.Context, userID, current, next string) (int, error) {
	user, err := service.find(ctx, userID)
	if err != nil {
		return 0, err
	}

	if !service.hasher.Verify(current, user.PasswordHash) {
		service.auditor.Event(ctx, pipeline.EventLoginFailed, pipeline.SeverityWarn,
			slog.String("user_id", userID),
			slog.String("operation", "change_password"),
		)
		return 0, apperr.Unauthenticated(auth.ReasonInvalidCredentials, "Current password is incorrect")
	}
	if current == next {
		return 0, apperr.ValidationError("Validation failed", apperr.FieldError{
			Field:   FieldNewPassword,
			Message: "Must differ from the current password",
		})
	}

	hash, err := service.hasher.Hash(next)
	if err != nil {
		return 0, fmt.Errorf("account_service_hash_failed: %w", err)
	}
	user.PasswordHash = hash
	if err := service.users.Save(ctx, user); err != nil {
		return 0, fmt.Errorf("account_service_save_failed: %w", err)
	}

	revoked := service.endSessions(ctx, userID)
	service.auditor.Event(ctx, pipeline.EventPasswordChanged, pipeline.SeverityInfo,
		slog.String("user_id", userID),
		slog.Int("revoked_sessions", revoked),
	)
	return revoked, nil
}

// # Operator Actions

// CreateInput describes a new account.
type CreateInput struct {
	Email       string
	Password    string
	Role        sec.Role
	Permissions []string
}

/*
Create registers a new account on behalf of an operator.

Returns:
  - *auth.User: The stored account
  - error: MALICIOUS_INPUT, CONFLICT when the email is registered, or storage failures
*/
func (service *Service) Create(ctx context.Context, actorID string, input CreateInput) (*auth.User, error) {
	email, err := sanitize.String(input.Email, auth.FieldEmail)
	if err != nil {
		return nil, sanitize.AppError(err)
	}

	for _, permission := range input.Permissions {
		if _, err := sanitize.String(permission, FieldPermissions); err != nil {
			return nil, sanitize.AppError(err)
		}
	}

	hash, err := service.hasher.Hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("account_service_hash_failed: %w", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("account_service_id_failed: %w", err)
	}

	user := &auth.User{
		ID:           id.String(),
		Email:        email,
		PasswordHash: hash,
		Role:         input.Role,
		Permissions:  sec.NewPermissionSet(input.Permissions...).List(),
		CreatedAt:    time.Now().UTC(),
	}

	err = service.users.Save(ctx, user)
	if errors.Is(err, auth.ErrEmailTaken) {
		return nil, apperr.Conflict("Email already registered")
	}
	if err != nil {
		return nil, fmt.Errorf("account_service_save_failed: %w", err)
	}

	service.auditor.Event(ctx, pipeline.EventUserCreated, pipeline.SeverityInfo,
		slog.String("actor_id", actorID),
		slog.String("user_id", user.ID),
		slog.String("role", user.Role.String()),
	)
	return user, nil
}

/*
SetDisabled disables or re-enables an account.

Disabling revokes every session immediately. Access tokens already issued
remain valid until they expire. Operators cannot disable themselves.

Returns:
  - *auth.User: The updated account
  - int: Number of sessions revoked
  - error: NOT_FOUND, FORBIDDEN (self) or storage failures
*/
func (service *Service) SetDisabled(ctx context.Context, actorID, userID string, disabled bool) (*auth.User, int, error) {
	if disabled && actorID == userID {
		return nil, 0, apperr.Forbidden("Operators cannot disable their own account")
	}

	user, err := service.find(ctx, userID)
	if err != nil {
		return nil, 0, err
	}

	if user.Disabled != disabled {
		user.Disabled = disabled
		if err := service.users.Save(ctx, user); err != nil {
			return nil, 0, fmt.Errorf("account_service_save_failed: %w", err)
		}
	}

	var revoked int
	event := pipeline.EventAccountEnabled
	if disabled {
		revoked = service.endSessions(ctx, userID)
		event = pipeline.EventAccountDisabled
	}

	service.auditor.Event(ctx, event, pipeline.SeverityWarn,
		slog.String("actor_id", actorID),
		slog.String("user_id", userID),
		slog.Int("revoked_sessions", revoked),
	)
	return user, revoked, nil
}
