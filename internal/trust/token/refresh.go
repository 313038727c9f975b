// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/taibuivan/aegis/internal/platform/constants"
	"github.com/taibuivan/aegis/internal/platform/kv"
)

// # Refresh Registry

// refreshRecord is the server-side state of one refresh token.
type refreshRecord struct {
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	IsActive  bool      `json:"is_active"`
}

// sessionRef points from a user index to one refresh record.
type sessionRef struct {
	Fingerprint string    `json:"fp"`
	ExpiresAt   time.Time `json:"exp"`
}

func refreshKey(fp string) string { return constants.PrefixRefresh + fp }

func userKey(userID string) string { return constants.PrefixUserSessions + userID }

// IssueRefreshToken signs a refresh token for userID and registers it as active.
func (authority *Authority) IssueRefreshToken(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("%w: empty subject", ErrInvalid)
	}

	now := authority.now()
	expiresAt := now.Add(authority.refreshTTL)
	raw, err := authority.sign(Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        authority.newID(now),
			Subject:   userID,
			Issuer:    authority.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Type: TypeRefresh,
	}, authority.refreshSecret)
	if err != nil {
		return "", err
	}

	fp := fingerprint(raw)
	record, err := json.Marshal(refreshRecord{UserID: userID, CreatedAt: now, ExpiresAt: expiresAt, IsActive: true})
	if err != nil {
		return "", fmt.Errorf("token: encode refresh record: %w", err)
	}

	// Index first: a record that exists without its index entry could not be
	// revoked by RevokeAllUserTokens.
	if err := authority.indexSession(ctx, userID, sessionRef{Fingerprint: fp, ExpiresAt: expiresAt}); err != nil {
		return "", err
	}
	if err := authority.store.Put(ctx, refreshKey(fp), record, authority.refreshTTL); err != nil {
		return "", fmt.Errorf("token: register refresh token: %w", err)
	}
	return raw, nil
}

// indexSession adds ref to the user's session index, dropping expired refs.
func (authority *Authority) indexSession(ctx context.Context, userID string, ref sessionRef) error {
	err := kv.Update(ctx, authority.store, userKey(userID), authority.refreshTTL, func(current []byte) ([]byte, error) {
		refs, err := decodeRefs(current)
		if err != nil {
			return nil, err
		}
		now := authority.now()
		refs = slices.DeleteFunc(refs, func(existing sessionRef) bool { return !existing.ExpiresAt.After(now) })
		refs = append(refs, ref)
		return json.Marshal(refs)
	})
	if err != nil {
		return fmt.Errorf("token: index refresh token: %w", err)
	}
	return nil
}

func decodeRefs(data []byte) ([]sessionRef, error) {
	if data == nil {
		return nil, nil
	}
	var refs []sessionRef
	if err := json.Unmarshal(data, &refs); err != nil {
		return nil, fmt.Errorf("token: decode session index: %w", err)
	}
	return refs, nil
}

// loadRecord returns the record and its raw bytes for compare-and-swap.
func (authority *Authority) loadRecord(ctx context.Context, fp string) (refreshRecord, []byte, error) {
	data, err := authority.store.Get(ctx, refreshKey(fp))
	if err != nil {
		return refreshRecord{}, nil, err
	}
	var record refreshRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return refreshRecord{}, nil, fmt.Errorf("token: decode refresh record: %w", err)
	}
	return record, data, nil
}

// VerifyRefreshToken returns the user id owning raw.
//
// The registry is checked before the signature: unknown tokens are
// [ErrInvalid] and deactivated ones are [ErrRevoked]. An expired token has its
// registry record purged.
func (authority *Authority) VerifyRefreshToken(ctx context.Context, raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("%w: empty token", ErrInvalid)
	}

	fp := fingerprint(raw)
	record, _, err := authority.loadRecord(ctx, fp)
	switch {
	case errors.Is(err, kv.ErrNotFound):
		return "", fmt.Errorf("%w: unknown refresh token", ErrInvalid)
	case err != nil:
		return "", fmt.Errorf("token: refresh lookup: %w", err)
	case !record.IsActive:
		return "", ErrRevoked
	}

	claims, err := authority.parse(raw, authority.refreshSecret, TypeRefresh)
	if errors.Is(err, ErrExpired) {
		if deleteErr := authority.store.Delete(ctx, refreshKey(fp)); deleteErr != nil {
			authority.logger.WarnContext(ctx, "refresh_purge_failed", slog.Any("error", deleteErr))
		}
		return "", err
	}
	if err != nil {
		return "", err
	}

	if claims.Subject != record.UserID {
		return "", fmt.Errorf("%w: owner mismatch", ErrInvalid)
	}
	return claims.Subject, nil
}

// RotateRefreshToken exchanges a valid refresh token for a new one.
//
// The old record is deactivated with compare-and-swap, so when two requests
// race on the same token exactly one of them receives a successor.
func (authority *Authority) RotateRefreshToken(ctx context.Context, raw string) (userID, next string, err error) {
	userID, err = authority.VerifyRefreshToken(ctx, raw)
	if err != nil {
		return "", "", err
	}

	if err := authority.deactivate(ctx, fingerprint(raw)); err != nil {
		return "", "", err
	}

	next, err = authority.IssueRefreshToken(ctx, userID)
	if err != nil {
		return "", "", err
	}
	return userID, next, nil
}

// errUnregistered marks a fingerprint with no record yet (or any more).
// It matches [ErrRevoked].
var errUnregistered = fmt.Errorf("%w: no refresh record", ErrRevoked)

// deactivate flips is_active to false. A record that is already inactive,
// expired or missing reports [ErrRevoked]; expired records are purged.
func (authority *Authority) deactivate(ctx context.Context, fp string) error {
	record, current, err := authority.loadRecord(ctx, fp)
	if errors.Is(err, kv.ErrNotFound) {
		return errUnregistered
	}
	if err != nil {
		return fmt.Errorf("token: refresh lookup: %w", err)
	}
	if !record.IsActive {
		return ErrRevoked
	}

	remaining := record.ExpiresAt.Sub(authority.now())
	if remaining <= 0 {
		if err := authority.store.Delete(ctx, refreshKey(fp)); err != nil {
			return fmt.Errorf("token: purge refresh token: %w", err)
		}
		return ErrRevoked
	}

	record.IsActive = false
	next, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("token: encode refresh record: %w", err)
	}

	swapped, err := authority.store.CompareAndSwap(ctx, refreshKey(fp), current, next, remaining)
	if err != nil {
		return fmt.Errorf("token: deactivate refresh token: %w", err)
	}
	if !swapped {
		return ErrRevoked
	}
	return nil
}

// RevokeRefreshToken marks raw inactive. Unknown or already revoked tokens
// are not an error.
func (authority *Authority) RevokeRefreshToken(ctx context.Context, raw string) error {
	err := authority.deactivate(ctx, fingerprint(raw))
	if err != nil && !errors.Is(err, ErrRevoked) {
		return err
	}

	authority.logger.InfoContext(ctx, "token_revoked", slog.String("type", string(TypeRefresh)))
	return nil
}

// RevokeAllUserTokens deactivates every refresh token issued to userID and
// returns how many were still active.
func (authority *Authority) RevokeAllUserTokens(ctx context.Context, userID string) (int, error) {
	data, err := authority.store.Get(ctx, userKey(userID))
	if errors.Is(err, kv.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("token: session index lookup: %w", err)
	}

	refs, err := decodeRefs(data)
	if err != nil {
		return 0, err
	}

	revoked := 0
	settled := make(map[string]bool, len(refs))
	for _, ref := range refs {
		err := authority.deactivate(ctx, ref.Fingerprint)
		switch {
		case err == nil:
			revoked++
			settled[ref.Fingerprint] = true
		case errors.Is(err, errUnregistered):
			// Issued concurrently: the index is written before the record,
			// so the ref stays for the next logout-all.
		case errors.Is(err, ErrRevoked):
			settled[ref.Fingerprint] = true
		default:
			return revoked, err
		}
	}

	if err := authority.pruneSessions(ctx, userID, settled); err != nil {
		return revoked, err
	}

	authority.logger.InfoContext(ctx, "token_revoked_all",
		slog.String("user_id", userID),
		slog.Int("count", revoked),
	)
	return revoked, nil
}

// pruneSessions drops settled and expired refs from the user's index. Refs
// appended since the index was read are kept.
func (authority *Authority) pruneSessions(ctx context.Context, userID string, settled map[string]bool) error {
	err := kv.Update(ctx, authority.store, userKey(userID), authority.refreshTTL, func(current []byte) ([]byte, error) {
		if current == nil {
			return nil, nil
		}
		refs, err := decodeRefs(current)
		if err != nil {
			return nil, err
		}
		now := authority.now()
		kept := slices.DeleteFunc(slices.Clone(refs), func(ref sessionRef) bool {
			return settled[ref.Fingerprint] || !ref.ExpiresAt.After(now)
		})
		if len(kept) == len(refs) {
			return nil, nil
		}
		if kept == nil {
			kept = []sessionRef{}
		}
		return json.Marshal(kept)
	})
	if err != nil {
		return fmt.Errorf("token: prune session index: %w", err)
	}
	return nil
}
