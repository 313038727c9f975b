// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package dberr classifies low-level PostgreSQL errors into the sentinels the
// repositories and stores branch on.
//
// Callers see [ErrDuplicate] or their own not-found sentinel, never a driver
// type. Everything else is wrapped with the failing action for the logs.
package dberr

import (
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrDuplicate reports a unique constraint violation.
	ErrDuplicate = errors.New("dberr: duplicate key")

	// ErrConnection reports that the database could not be reached or
	// refused the statement for capacity reasons.
	ErrConnection = errors.New("dberr: connection failure")
)

// Wrap inspects err and maps it onto a sentinel.
//
//   - pgx.ErrNoRows becomes notFound (returned as is, so errors.Is keeps working).
//   - unique_violation wraps [ErrDuplicate] with the constraint name.
//   - connection class errors wrap [ErrConnection].
//   - anything else is wrapped with action.
func Wrap(err error, action string, notFound error) error {
	if err == nil {
		return nil
	}

	// 1. Not Found mapping
	if errors.Is(err, pgx.ErrNoRows) && notFound != nil {
		return notFound
	}

	// 2. SQLSTATE mapping
	var pgError *pgconn.PgError
	if errors.As(err, &pgError) {
		switch {
		case pgError.Code == pgerrcode.UniqueViolation:
			return fmt.Errorf("%s: %w (%s)", action, ErrDuplicate, pgError.ConstraintName)
		case pgerrcode.IsConnectionException(pgError.Code),
			pgError.Code == pgerrcode.TooManyConnections,
			pgError.Code == pgerrcode.AdminShutdown:
			return fmt.Errorf("%s: %w: %w", action, ErrConnection, err)
		}
	}

	// 3. Transport failures before the server answered
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return fmt.Errorf("%s: %w: %w", action, ErrConnection, err)
	}

	return fmt.Errorf("%s: %w", action, err)
}

// IsDuplicate reports whether err is a classified unique violation.
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicate)
}
