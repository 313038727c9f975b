// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package migration applies the schema of the durable trust store
// (kv_entries, gate_users) with golang-migrate.
//
// The API server runs [Up] at boot when the postgres backend is selected.
// gatectl exposes [Up], [Down] and [Version] to operators.
package migration

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	// pgx5 driver registers "pgx5" scheme for golang-migrate.
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	// file source reads .sql files from disk.
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// ErrDirty is returned when a previous migration failed halfway.
var ErrDirty = errors.New("migration: database is dirty, manual intervention required")

// open builds a migrator for the DSN and migrations directory.
func open(dsn, migrationsPath string, logger *slog.Logger) (*migrate.Migrate, func(), error) {
	migrator, err := migrate.New("file://"+migrationsPath, toPgx5(dsn))
	if err != nil {
		return nil, nil, fmt.Errorf("migration: failed to initialize: %w", err)
	}
	migrator.Log = &migrateLogger{logger: logger}

	closer := func() {
		sourceError, databaseError := migrator.Close()
		if sourceError != nil {
			logger.Error("migration_source_close_failed", slog.Any("error", sourceError))
		}
		if databaseError != nil {
			logger.Error("migration_db_close_failed", slog.Any("error", databaseError))
		}
	}
	return migrator, closer, nil
}

// current returns the applied version, zero for an empty database.
func current(migrator *migrate.Migrate) (uint, error) {
	version, dirty, err := migrator.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("migration: failed to read version: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("%w (version %d)", ErrDirty, version)
	}
	return version, nil
}

// Up applies all pending migrations. An up-to-date schema is not an error.
func Up(dsn, migrationsPath string, logger *slog.Logger) error {
	migrator, closer, err := open(dsn, migrationsPath, logger)
	if err != nil {
		return err
	}
	defer closer()

	from, err := current(migrator)
	if err != nil {
		return err
	}

	if err := migrator.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("migration_already_up_to_date", slog.Uint64("version", uint64(from)))
			return nil
		}
		return fmt.Errorf("migration: up failed: %w", err)
	}

	to, _ := current(migrator)
	logger.Info("migration_successful", slog.Uint64("from_version", uint64(from)), slog.Uint64("to_version", uint64(to)))
	return nil
}

// Down rolls back steps migrations.
func Down(dsn, migrationsPath string, steps int, logger *slog.Logger) error {
	if steps <= 0 {
		return fmt.Errorf("migration: steps must be positive, got %d", steps)
	}

	migrator, closer, err := open(dsn, migrationsPath, logger)
	if err != nil {
		return err
	}
	defer closer()

	from, err := current(migrator)
	if err != nil {
		return err
	}

	if err := migrator.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration: down failed: %w", err)
	}

	to, _ := current(migrator)
	logger.Info("migration_rolled_back", slog.Uint64("from_version", uint64(from)), slog.Uint64("to_version", uint64(to)))
	return nil
}

// Version reports the applied schema version.
func Version(dsn, migrationsPath string, logger *slog.Logger) (uint, error) {
	migrator, closer, err := open(dsn, migrationsPath, logger)
	if err != nil {
		return 0, err
	}
	defer closer()
	return current(migrator)
}

// toPgx5 rewrites postgres:// and postgresql:// URLs to the pgx5:// scheme
// registered by the golang-migrate pgx driver.
func toPgx5(dsn string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if rest, found := strings.CutPrefix(dsn, prefix); found {
			return "pgx5://" + rest
		}
	}
	return dsn
}

// migrateLogger adapts golang-migrate's logger interface to slog.
type migrateLogger struct {
	logger *slog.Logger
}

// Printf implements migrate.Logger.
func (l *migrateLogger) Printf(format string, args ...any) {
	l.logger.Debug("migration_progress", slog.String("detail", strings.TrimSpace(fmt.Sprintf(format, args...))))
}

// Verbose implements migrate.Logger.
func (l *migrateLogger) Verbose() bool {
	return false
}
