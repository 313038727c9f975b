// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/taibuivan/aegis/internal/platform/kv"
	"github.com/taibuivan/aegis/internal/platform/migration"
	"github.com/taibuivan/aegis/internal/platform/sec"
	"github.com/taibuivan/aegis/internal/trust/csrf"
	"github.com/taibuivan/aegis/internal/trust/sanitize"
	"github.com/taibuivan/aegis/internal/trust/token"
)

// # Credentials

func newHashPasswordCommand(load configLoader) *cobra.Command {
	var cost int

	command := &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print a bcrypt hash suitable for ADMIN_PASSWORD_HASH",
		Long: `Print a bcrypt hash suitable for ADMIN_PASSWORD_HASH.

The password is read from the first line of stdin when no argument is given,
which keeps it out of the shell history.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(command *cobra.Command, args []string) error {
			password, err := argOrStdin(command, args)
			if err != nil {
				return err
			}

			if cost == 0 {
				cfg, err := load()
				if err != nil {
					return err
				}
				cost = cfg.BcryptCost
			}

			hash, err := sec.NewHasher(cost).Hash(password)
			if err != nil {
				return err
			}
			fmt.Fprintln(command.OutOrStdout(), hash)
			return nil
		},
	}

	command.Flags().IntVar(&cost, "cost", 0, "bcrypt cost (defaults to BCRYPT_COST)")
	return command
}

// # Tokens

// offlineAuthority builds an authority over a throwaway store. Issued tokens
// are valid on any server sharing the secrets, but revocations are not seen.
func offlineAuthority(load configLoader) (*token.Authority, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	return token.New(token.Config{
		AccessSecret:  []byte(cfg.AccessTokenSecret),
		RefreshSecret: []byte(cfg.RefreshTokenSecret),
		Issuer:        cfg.TokenIssuer,
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
	}, kv.NewMemoryStore())
}

func newIssueTokenCommand(load configLoader) *cobra.Command {
	var (
		userID      string
		roleName    string
		permissions []string
		ttl         time.Duration
	)

	command := &cobra.Command{
		Use:   "issue-token",
		Short: "Sign an access token for a service account or a test user",
		RunE: func(command *cobra.Command, _ []string) error {
			role, err := sec.ParseRole(roleName)
			if err != nil {
				return err
			}

			authority, err := offlineAuthority(load)
			if err != nil {
				return err
			}

			raw, err := authority.IssueAccessToken(token.Identity{
				UserID:      userID,
				Role:        role,
				Permissions: permissions,
			}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(command.OutOrStdout(), raw)
			return nil
		},
	}

	flags := command.Flags()
	flags.StringVar(&userID, "user-id", "", "subject of the token")
	flags.StringVar(&roleName, "role", sec.RoleUser.String(), "role claim")
	flags.StringSliceVar(&permissions, "permission", nil, "permission claim (repeatable)")
	flags.DurationVar(&ttl, "ttl", 0, "lifetime (defaults to ACCESS_TOKEN_TTL)")
	_ = command.MarkFlagRequired("user-id")
	return command
}

func newVerifyTokenCommand(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "verify-token [token]",
		Short: "Check the signature and claims of an access token (revocations are not consulted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(command *cobra.Command, args []string) error {
			raw, err := argOrStdin(command, args)
			if err != nil {
				return err
			}

			authority, err := offlineAuthority(load)
			if err != nil {
				return err
			}

			principal, err := authority.VerifyAccessToken(command.Context(), raw)
			if err != nil {
				return fmt.Errorf("token rejected (%s): %w", token.Reason(err), err)
			}

			out := command.OutOrStdout()
			fmt.Fprintf(out, "user_id:     %s\n", principal.UserID)
			fmt.Fprintf(out, "role:        %s\n", principal.Role)
			fmt.Fprintf(out, "permissions: %s\n", strings.Join(principal.Permissions.List(), ","))
			fmt.Fprintf(out, "token_id:    %s\n", principal.TokenID)
			return nil
		},
	}
}

// # CSRF

func newCSRFTokenCommand(load configLoader) *cobra.Command {
	var sessionID string

	command := &cobra.Command{
		Use:   "csrf-token",
		Short: "Generate a CSRF token bound to a session id",
		RunE: func(command *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			guard, err := csrf.NewGuard([]byte(cfg.CSRFSecret))
			if err != nil {
				return err
			}
			fmt.Fprintln(command.OutOrStdout(), guard.Generate(sessionID))
			return nil
		},
	}

	command.Flags().StringVar(&sessionID, "session", "", "session cookie value the token is bound to")
	_ = command.MarkFlagRequired("session")
	return command
}

// # Inspection

func newCheckInputCommand() *cobra.Command {
	var field string

	command := &cobra.Command{
		Use:   "check-input [value]",
		Short: "Run a value through the injection battery and the field sanitizer",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(command *cobra.Command, args []string) error {
			value, err := argOrStdin(command, args)
			if err != nil {
				return err
			}

			out := command.OutOrStdout()
			if detected, pattern := sanitize.DetectInjection(value); detected {
				fmt.Fprintf(out, "malicious: %s\n", pattern)
				return errMalicious
			}

			cleaned, err := sanitize.String(value, field)
			if err != nil {
				fmt.Fprintf(out, "rejected: %v\n", err)
				return err
			}
			fmt.Fprintf(out, "clean: %s\n", cleaned)
			return nil
		},
	}

	command.Flags().StringVar(&field, "field", "", "field name selecting the length limit")
	return command
}

var errMalicious = errors.New("input matches the injection battery")

func newRateTableCommand(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "rate-table",
		Short: "Print the effective endpoint classes after profile overrides",
		RunE: func(command *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			out := command.OutOrStdout()
			fmt.Fprintf(out, "%-12s %-24s %8s %6s\n", "CLASS", "PREFIX", "PER_MIN", "BURST")
			for _, class := range append(cfg.RateLimits.Classes, cfg.RateLimits.Default) {
				prefix := class.Prefix
				if prefix == "" {
					prefix = "*"
				}
				fmt.Fprintf(out, "%-12s %-24s %8d %6d\n", class.Name, prefix, class.PerMinute, class.Burst)
			}
			return nil
		},
	}
}

// # Migrations

func newMigrateCommand(load configLoader) *cobra.Command {
	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL schema of the trust store",
	}

	run := func(action func(dsn, path string, logger *slog.Logger) error) func(*cobra.Command, []string) error {
		return func(command *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is not set")
			}
			logger := slog.New(slog.NewTextHandler(command.ErrOrStderr(), nil))
			return action(cfg.DatabaseURL, cfg.MigrationPath, logger)
		}
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migrations",
		RunE: run(func(dsn, path string, logger *slog.Logger) error {
			return migration.Down(dsn, path, steps, logger)
		}),
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	migrate.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE:  run(migration.Up),
		},
		down,
		&cobra.Command{
			Use:   "version",
			Short: "Print the applied schema version",
			RunE: func(command *cobra.Command, args []string) error {
				return run(func(dsn, path string, logger *slog.Logger) error {
					version, err := migration.Version(dsn, path, logger)
					if err != nil {
						return err
					}
					fmt.Fprintln(command.OutOrStdout(), version)
					return nil
				})(command, args)
			},
		},
	)
	return migrate
}

// argOrStdin returns the first argument, or the first line of stdin.
func argOrStdin(command *cobra.Command, args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}

	line, err := bufio.NewReader(command.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("no value given on the command line or stdin")
	}
	return line, nil
}
