// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package token

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"

	"github.com/taibuivan/aegis/internal/platform/constants"
	"github.com/taibuivan/aegis/internal/platform/kv"
	"github.com/taibuivan/aegis/internal/platform/sec"
)

// # Configuration

// Defaults applied by [New] when the corresponding [Config] field is zero.
const (
	DefaultAccessTTL          = 15 * time.Minute
	DefaultRefreshTTL         = 7 * 24 * time.Hour
	DefaultLockoutMaxAttempts = 5
	DefaultLockoutWindow      = 30 * time.Minute
	DefaultIssuer             = constants.AppName
)

// Config carries the tunables of an [Authority].
type Config struct {
	// AccessSecret signs access tokens. At least [MinSecretLength] bytes.
	AccessSecret []byte
	// RefreshSecret signs refresh tokens. Derived from AccessSecret when empty.
	RefreshSecret []byte

	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	LockoutMaxAttempts int
	LockoutWindow      time.Duration
}

// Option customizes an [Authority].
type Option func(*Authority)

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(authority *Authority) { authority.now = now }
}

// WithLogger sets the logger used for store degradation warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(authority *Authority) { authority.logger = logger }
}

// # Authority

// Authority issues, verifies and revokes tokens. It is safe for concurrent
// use and meant to live for the whole process.
type Authority struct {
	accessSecret  []byte
	refreshSecret []byte
	issuer        string
	accessTTL     time.Duration
	refreshTTL    time.Duration

	lockoutMaxAttempts int
	lockoutWindow      time.Duration

	store  kv.Store
	now    func() time.Time
	logger *slog.Logger

	entropyMu sync.Mutex
	entropy   *ulid.MonotonicEntropy
}

// New validates config and returns an [Authority] backed by store.
func New(config Config, store kv.Store, options ...Option) (*Authority, error) {
	if len(config.AccessSecret) < MinSecretLength {
		return nil, fmt.Errorf("access secret: %w", ErrWeakSecret)
	}

	refreshSecret := config.RefreshSecret
	if len(refreshSecret) == 0 {
		refreshSecret = DeriveRefreshSecret(config.AccessSecret)
	} else if len(refreshSecret) < MinSecretLength {
		return nil, fmt.Errorf("refresh secret: %w", ErrWeakSecret)
	}
	if bytes.Equal(refreshSecret, config.AccessSecret) {
		return nil, ErrSharedSecret
	}

	authority := &Authority{
		accessSecret:       bytes.Clone(config.AccessSecret),
		refreshSecret:      bytes.Clone(refreshSecret),
		issuer:             orDefault(config.Issuer, DefaultIssuer),
		accessTTL:          orDefault(config.AccessTTL, DefaultAccessTTL),
		refreshTTL:         orDefault(config.RefreshTTL, DefaultRefreshTTL),
		lockoutMaxAttempts: orDefault(config.LockoutMaxAttempts, DefaultLockoutMaxAttempts),
		lockoutWindow:      orDefault(config.LockoutWindow, DefaultLockoutWindow),
		store:              store,
		now:                time.Now,
		logger:             slog.Default(),
		entropy:            ulid.Monotonic(rand.Reader, 0),
	}
	for _, option := range options {
		option(authority)
	}
	return authority, nil
}

func orDefault[T comparable](value, fallback T) T {
	var zero T
	if value == zero {
		return fallback
	}
	return value
}

// AccessTTL returns the default access token lifetime.
func (authority *Authority) AccessTTL() time.Duration { return authority.accessTTL }

// RefreshTTL returns the refresh token lifetime.
func (authority *Authority) RefreshTTL() time.Duration { return authority.refreshTTL }

// newID returns a ULID that never repeats within this process.
func (authority *Authority) newID(at time.Time) string {
	authority.entropyMu.Lock()
	defer authority.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(at), authority.entropy).String()
}

func (authority *Authority) sign(claims Claims, secret []byte) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("token: sign: %w", err)
	}
	return signed, nil
}

// parse verifies signature, issuer and expiry of raw against secret and
// checks the type claim. Expired tokens return [ErrExpired] together with the
// decoded claims so callers can clean up state keyed by them.
func (authority *Authority) parse(raw string, secret []byte, expected Type) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(authority.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(authority.now),
	)

	claims := &Claims{}
	_, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	})
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return claims, fmt.Errorf("%w: %w", ErrExpired, err)
	default:
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	if claims.Type != expected {
		return nil, fmt.Errorf("%w: expected %s token, got %q", ErrInvalid, expected, claims.Type)
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, fmt.Errorf("%w: missing sub or jti", ErrInvalid)
	}
	return claims, nil
}

// # Access Tokens

// IssueAccessToken signs an access token for identity. A zero ttl uses the
// configured default. Issuance is stateless.
func (authority *Authority) IssueAccessToken(identity Identity, ttl time.Duration) (string, error) {
	if identity.UserID == "" {
		return "", fmt.Errorf("%w: empty subject", ErrInvalid)
	}
	if !identity.Role.Valid() {
		return "", fmt.Errorf("%w: unknown role %d", ErrInvalid, int(identity.Role))
	}
	if ttl <= 0 {
		ttl = authority.accessTTL
	}

	now := authority.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        authority.newID(now),
			Subject:   identity.UserID,
			Issuer:    authority.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role:        identity.Role,
		Permissions: sec.NewPermissionSet(identity.Permissions...).List(),
		Type:        TypeAccess,
	}
	return authority.sign(claims, authority.accessSecret)
}

// VerifyAccessToken resolves raw into a [sec.Principal].
//
// The blacklist is consulted first, so a revoked token is rejected as
// [ErrRevoked] even while its signature is still valid. When the store is
// unreachable the token is rejected rather than trusted.
func (authority *Authority) VerifyAccessToken(ctx context.Context, raw string) (*sec.Principal, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalid)
	}

	_, err := authority.store.Get(ctx, constants.PrefixBlacklist+fingerprint(raw))
	switch {
	case err == nil:
		return nil, ErrRevoked
	case !errors.Is(err, kv.ErrNotFound):
		return nil, fmt.Errorf("token: blacklist lookup: %w", err)
	}

	claims, err := authority.parse(raw, authority.accessSecret, TypeAccess)
	if err != nil {
		return nil, err
	}
	if !claims.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role", ErrInvalid)
	}

	return &sec.Principal{
		UserID:      claims.Subject,
		Role:        claims.Role,
		Permissions: sec.NewPermissionSet(claims.Permissions...),
		TokenID:     claims.ID,
	}, nil
}

// RevokeAccessToken blacklists raw until its natural expiry. Revoking an
// already expired token is a no-op.
func (authority *Authority) RevokeAccessToken(ctx context.Context, raw string) error {
	claims, err := authority.parse(raw, authority.accessSecret, TypeAccess)
	if errors.Is(err, ErrExpired) {
		return nil
	}
	if err != nil {
		return err
	}

	remaining := claims.ExpiresAt.Sub(authority.now())
	if remaining <= 0 {
		return nil
	}
	if err := authority.store.Put(ctx, constants.PrefixBlacklist+fingerprint(raw), []byte{1}, remaining); err != nil {
		return fmt.Errorf("token: blacklist insert: %w", err)
	}

	authority.logger.InfoContext(ctx, "token_revoked",
		slog.String("type", string(TypeAccess)),
		slog.String("jti", claims.ID),
		slog.String("user_id", claims.Subject),
	)
	return nil
}
