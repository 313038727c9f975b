// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/taibuivan/aegis/internal/platform/dberr"
	"github.com/taibuivan/aegis/internal/platform/kv"
	"github.com/taibuivan/aegis/internal/platform/sec"
	"github.com/taibuivan/aegis/internal/trust/sanitize"
)

// # User Repository

// PostgresUserRepository implements the UserRepository interface using pgx.
//
// It reads the gate_users table created by the 000002_gate_users migration.
type PostgresUserRepository struct {
	database kv.Querier
}

// NewPostgresUserRepository creates a new PostgreSQL implementation of the UserRepository.
func NewPostgresUserRepository(database kv.Querier) *PostgresUserRepository {
	return &PostgresUserRepository{database: database}
}

const userColumns = `SELECT id, email, password_hash, role, permissions, disabled, created_at FROM gate_users `

// findOne runs a single-row lookup with the filter rendered by the sanitizing
// query builder, so values are always bound as parameters.
func (repository *PostgresUserRepository) findOne(ctx context.Context, field string, value string) (*User, error) {
	where, arguments, err := sanitize.Where([]sanitize.Filter{
		{Field: field, Operator: sanitize.OpEqual, Value: value},
	}, 1)
	if err != nil {
		return nil, ErrUserNotFound
	}

	var (
		user     User
		roleName string
	)
	err = repository.database.QueryRow(ctx, userColumns+where, arguments...).Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&roleName,
		&user.Permissions,
		&user.Disabled,
		&user.CreatedAt,
	)
	if err != nil {
		return nil, dberr.Wrap(err, "postgres_user_repo_find_failed", ErrUserNotFound)
	}

	role, err := sec.ParseRole(roleName)
	if err != nil {
		return nil, fmt.Errorf("postgres_user_repo_bad_role: %w", err)
	}
	user.Role = role
	return &user, nil
}

// FindByID implements [UserRepository].
func (repository *PostgresUserRepository) FindByID(ctx context.Context, id string) (*User, error) {
	return repository.findOne(ctx, "id", id)
}

// FindByEmail implements [UserRepository].
func (repository *PostgresUserRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	return repository.findOne(ctx, "email", normalizeEmail(email))
}

/*
Save upserts the account keyed by ID.

Returns:
  - error: ErrEmailTaken when another account owns the email, otherwise
    connectivity errors
*/
func (repository *PostgresUserRepository) Save(ctx context.Context, user *User) error {
	const query = `
		INSERT INTO gate_users (id, email, password_hash, role, permissions, disabled, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			password_hash = EXCLUDED.password_hash,
			role = EXCLUDED.role,
			permissions = EXCLUDED.permissions,
			disabled = EXCLUDED.disabled`

	createdAt := user.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	permissions := user.Permissions
	if permissions == nil {
		permissions = []string{}
	}

	_, err := repository.database.Exec(ctx, query,
		user.ID,
		normalizeEmail(user.Email),
		user.PasswordHash,
		user.Role.String(),
		permissions,
		user.Disabled,
		createdAt,
	)
	err = dberr.Wrap(err, "postgres_user_repo_save_failed", nil)
	if dberr.IsDuplicate(err) {
		return ErrEmailTaken
	}
	return err
}
