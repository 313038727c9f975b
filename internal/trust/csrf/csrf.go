// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package csrf implements stateless anti-forgery tokens for cookie-session
requests.

# Token Format

	<session_id>:<hour_bucket>:<hex(HMAC-SHA256(secret, session_id ":" hour_bucket))>

hour_bucket is floor(unix_seconds / 3600). Tokens are deterministic per
session and hour, so no server-side state is kept. A token is rejected once
more than one hour has passed since the start of its bucket, so a token
generated late in a bucket lives for less than an hour.
*/
package csrf

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

// BucketSize is the width of one token bucket.
const BucketSize = time.Hour

// ErrWeakSecret is returned when the HMAC secret is too short.
var ErrWeakSecret = errors.New("csrf: secret must be at least 32 bytes")

// MinSecretLength is the minimum accepted secret size in bytes.
const MinSecretLength = 32

// Guard issues and validates tokens. It is safe for concurrent use.
type Guard struct {
	secret []byte
	now    func() time.Time
}

// Option customizes a [Guard].
type Option func(*Guard)

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(guard *Guard) {
		guard.now = now
	}
}

// NewGuard returns a [Guard] keyed with secret.
func NewGuard(secret []byte, options ...Option) (*Guard, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}

	guard := &Guard{secret: append([]byte(nil), secret...), now: time.Now}
	for _, option := range options {
		option(guard)
	}
	return guard, nil
}

func (guard *Guard) bucket(at time.Time) int64 {
	return at.Unix() / int64(BucketSize/time.Second)
}

func (guard *Guard) sign(sessionID string, bucket int64) string {
	mac := hmac.New(sha256.New, guard.secret)
	mac.Write([]byte(sessionID))
	mac.Write([]byte{':'})
	mac.Write([]byte(strconv.FormatInt(bucket, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Generate returns the token for sessionID in the current bucket.
func (guard *Guard) Generate(sessionID string) string {
	bucket := guard.bucket(guard.now())
	return sessionID + ":" + strconv.FormatInt(bucket, 10) + ":" + guard.sign(sessionID, bucket)
}

// Validate reports whether token was issued for sessionID in a bucket that
// began no more than one hour ago. Session IDs may contain colons; the token is split on its last
// two separators.
func (guard *Guard) Validate(token, sessionID string) bool {
	if token == "" || sessionID == "" {
		return false
	}

	signatureAt := strings.LastIndexByte(token, ':')
	if signatureAt <= 0 {
		return false
	}
	bucketAt := strings.LastIndexByte(token[:signatureAt], ':')
	if bucketAt <= 0 {
		return false
	}

	tokenSession := token[:bucketAt]
	bucketText := token[bucketAt+1 : signatureAt]
	signature := token[signatureAt+1:]

	if !hmac.Equal([]byte(tokenSession), []byte(sessionID)) {
		return false
	}

	bucket, err := strconv.ParseInt(bucketText, 10, 64)
	if err != nil {
		return false
	}

	elapsed := guard.now().Sub(time.Unix(bucket*int64(BucketSize/time.Second), 0))
	if elapsed < 0 || elapsed > BucketSize {
		return false
	}

	expected := guard.sign(sessionID, bucket)
	return hmac.Equal([]byte(signature), []byte(expected))
}
