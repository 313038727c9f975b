// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taibuivan/aegis/internal/platform/sec"
)

// # User Data Access

// UserRepository defines the data access contract for user accounts.
type UserRepository interface {

	/*
		FindByID returns the account with the given ID.

		Returns:
		  - *User: Hydrated entity
		  - error: ErrUserNotFound or storage failures
	*/
	FindByID(ctx context.Context, id string) (*User, error)

	/*
		FindByEmail returns the account with the given email. Lookups are
		case-insensitive.

		Returns:
		  - *User: Hydrated entity
		  - error: ErrUserNotFound or storage failures
	*/
	FindByEmail(ctx context.Context, email string) (*User, error)

	/*
		Save inserts or replaces the account.

		Returns:
		  - error: Persistence failures
	*/
	Save(ctx context.Context, user *User) error
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// # In-Memory Repository

// MemoryUserRepository keeps accounts in process memory.
type MemoryUserRepository struct {
	mu      sync.RWMutex
	byID    map[string]*User
	byEmail map[string]string
}

// NewMemoryUserRepository returns a repository holding users.
func NewMemoryUserRepository(users ...*User) *MemoryUserRepository {
	repository := &MemoryUserRepository{
		byID:    make(map[string]*User, len(users)),
		byEmail: make(map[string]string, len(users)),
	}
	for _, user := range users {
		_ = repository.Save(context.Background(), user)
	}
	return repository
}

// FindByID implements [UserRepository].
func (repository *MemoryUserRepository) FindByID(_ context.Context, id string) (*User, error) {
	repository.mu.RLock()
	defer repository.mu.RUnlock()

	user, ok := repository.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	clone := *user
	return &clone, nil
}

// FindByEmail implements [UserRepository].
func (repository *MemoryUserRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	repository.mu.RLock()
	id, ok := repository.byEmail[normalizeEmail(email)]
	repository.mu.RUnlock()

	if !ok {
		return nil, ErrUserNotFound
	}
	return repository.FindByID(ctx, id)
}

// Save implements [UserRepository].
func (repository *MemoryUserRepository) Save(_ context.Context, user *User) error {
	if user == nil || user.ID == "" {
		return errors.New("auth: user without id")
	}

	repository.mu.Lock()
	defer repository.mu.Unlock()

	if owner, taken := repository.byEmail[normalizeEmail(user.Email)]; taken && owner != user.ID {
		return ErrEmailTaken
	}

	if previous, ok := repository.byID[user.ID]; ok {
		delete(repository.byEmail, normalizeEmail(previous.Email))
	}

	clone := *user
	repository.byID[user.ID] = &clone
	repository.byEmail[normalizeEmail(user.Email)] = user.ID
	return nil
}

// # Seeding

/*
SeedAdmin ensures an admin account exists for email.

An existing account keeps its ID and gets the configured hash and the admin
role. An empty email is a no-op.

Returns:
  - *User: The seeded account, nil when email is empty
  - error: Persistence failures or an unusable hash
*/
func SeedAdmin(ctx context.Context, repository UserRepository, email, passwordHash string) (*User, error) {
	if email == "" {
		return nil, nil
	}
	if passwordHash == "" {
		return nil, fmt.Errorf("auth: admin %s has no password hash", email)
	}

	user, err := repository.FindByEmail(ctx, email)
	switch {
	case err == nil:
	case errors.Is(err, ErrUserNotFound):
		id, idErr := uuid.NewV7()
		if idErr != nil {
			return nil, fmt.Errorf("auth: generate user id: %w", idErr)
		}
		user = &User{ID: id.String(), CreatedAt: time.Now().UTC()}
	default:
		return nil, err
	}

	user.Email = normalizeEmail(email)
	user.PasswordHash = passwordHash
	user.Role = sec.RoleAdmin
	user.Disabled = false

	if err := repository.Save(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}
