// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package dberr

import (
	"errors"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

var errMissing = errors.New("missing")

/*
TestWrap maps driver errors onto sentinels.
*/
func TestWrap(t *testing.T) {
	t.Run("Nil", func(t *testing.T) {
		assert.NoError(t, Wrap(nil, "find", errMissing))
	})

	t.Run("NoRows", func(t *testing.T) {
		assert.ErrorIs(t, Wrap(pgx.ErrNoRows, "find", errMissing), errMissing)
	})

	t.Run("NoRowsWithoutSentinel", func(t *testing.T) {
		err := Wrap(pgx.ErrNoRows, "find", nil)
		assert.ErrorIs(t, err, pgx.ErrNoRows)
		assert.Contains(t, err.Error(), "find")
	})

	t.Run("UniqueViolation", func(t *testing.T) {
		err := Wrap(&pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "gate_users_email_key"}, "save", errMissing)
		assert.True(t, IsDuplicate(err))
		assert.Contains(t, err.Error(), "gate_users_email_key")
	})

	t.Run("ConnectionException", func(t *testing.T) {
		err := Wrap(&pgconn.PgError{Code: pgerrcode.ConnectionFailure}, "save", errMissing)
		assert.ErrorIs(t, err, ErrConnection)
	})

	t.Run("Other", func(t *testing.T) {
		cause := &pgconn.PgError{Code: pgerrcode.CheckViolation}
		err := Wrap(cause, "save", errMissing)
		assert.False(t, IsDuplicate(err))
		assert.ErrorIs(t, err, cause)
	})
}
