// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package sec holds the security primitives shared by every admission component:
credential hashing, the closed role hierarchy, permission sets and the
per-request [Principal].

Nothing in this package performs I/O. It is safe to import from any layer.
*/
package sec

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// # Credential Hashing

// ErrEmptyPassword is returned when hashing an empty plaintext.
var ErrEmptyPassword = errors.New("sec: password must not be empty")

// Hasher produces salted, cost-tunable one-way password hashes.
//
// The salt is generated per hash and embedded in the output, so two calls
// with the same plaintext never return the same string.
type Hasher struct {
	cost int
}

// NewHasher returns a [Hasher] with the given bcrypt cost. Out-of-range costs
// fall back to [bcrypt.DefaultCost].
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{cost: cost}
}

// Cost reports the work factor new hashes are produced with.
func (hasher *Hasher) Cost() int {
	return hasher.cost
}

// Hash hashes a plain-text password.
func (hasher *Hasher) Hash(plainTextPassword string) (string, error) {
	if plainTextPassword == "" {
		return "", ErrEmptyPassword
	}

	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(plainTextPassword), hasher.cost)
	if err != nil {
		return "", fmt.Errorf("sec: failed to hash password: %w", err)
	}
	return string(hashedBytes), nil
}

// Verify compares a plain-text password with a stored hash.
//
// It fails closed: a malformed, truncated or empty hash yields false and never
// an error the caller could mistake for success.
func (hasher *Hasher) Verify(plainTextPassword, existingHash string) bool {
	if existingHash == "" {
		return false
	}
	err := bcrypt.CompareHashAndPassword([]byte(existingHash), []byte(plainTextPassword))
	return err == nil
}

// NeedsRehash reports whether a stored hash was produced with a different cost.
func (hasher *Hasher) NeedsRehash(existingHash string) bool {
	cost, err := bcrypt.Cost([]byte(existingHash))
	if err != nil {
		return true
	}
	return cost != hasher.cost
}

// HashPassword hashes with the default cost.
func HashPassword(plainTextPassword string) (string, error) {
	return NewHasher(bcrypt.DefaultCost).Hash(plainTextPassword)
}

// CheckPasswordHash verifies with the default hasher.
func CheckPasswordHash(plainTextPassword, existingHash string) bool {
	return NewHasher(bcrypt.DefaultCost).Verify(plainTextPassword, existingHash)
}
