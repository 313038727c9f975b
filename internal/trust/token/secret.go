// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package token

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

// MinSecretLength is the minimum accepted signing secret size in bytes.
const MinSecretLength = 32

// refreshSecretLabel binds the derived key to its purpose.
const refreshSecretLabel = "aegis refresh token v1"

// DeriveRefreshSecret derives the refresh signing key from the access secret
// with HKDF-SHA256. The result is deterministic, so every instance sharing
// the access secret verifies the same refresh tokens, yet a leaked refresh key
// does not reveal the access key.
func DeriveRefreshSecret(accessSecret []byte) []byte {
	reader := hkdf.New(sha256.New, accessSecret, nil, []byte(refreshSecretLabel))
	derived := make([]byte, sha256.Size)
	if _, err := io.ReadFull(reader, derived); err != nil {
		// HKDF-SHA256 can emit up to 255*32 bytes, 32 never fails.
		panic("token: hkdf: " + err.Error())
	}
	return derived
}
