// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Command api is the entry point for the aegis admission gateway.
//
// # Startup Sequence
//
//  1. Initialize structured logger.
//  2. Load configuration from environment variables.
//  3. Open the trust store backend (memory, Redis or PostgreSQL).
//  4. Build the token authority, CSRF guard and rate limiter.
//  5. Seed the admin account and wire HTTP handlers.
//  6. Start background janitors (limiter windows, expired store keys).
//  7. Start HTTP server with graceful shutdown.
//
// No business logic lives here. All wiring is explicit constructor injection.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/taibuivan/aegis/internal/api"
	"github.com/taibuivan/aegis/internal/pipeline"
	"github.com/taibuivan/aegis/internal/platform/config"
	"github.com/taibuivan/aegis/internal/platform/constants"
	"github.com/taibuivan/aegis/internal/platform/kv"
	"github.com/taibuivan/aegis/internal/platform/metrics"
	"github.com/taibuivan/aegis/internal/platform/migration"
	pgstore "github.com/taibuivan/aegis/internal/platform/postgres"
	redisstore "github.com/taibuivan/aegis/internal/platform/redis"
	"github.com/taibuivan/aegis/internal/platform/sec"
	"github.com/taibuivan/aegis/internal/session"
	"github.com/taibuivan/aegis/internal/trust/csrf"
	"github.com/taibuivan/aegis/internal/trust/ratelimit"
	"github.com/taibuivan/aegis/internal/trust/token"
	"github.com/taibuivan/aegis/internal/users/account"
	"github.com/taibuivan/aegis/internal/users/auth"
)

// backend is the opened trust store with its readiness probes and cleanup.
type backend struct {
	store  kv.Store
	limits ratelimit.Store
	users  auth.UserRepository
	checks []api.ReadinessCheck
	close  func()
}

func main() {
	// ── 1. Logger ──────────────────────────────────────────────────────────
	// Initialize first so that subsequent startup errors are structured JSON.
	log := newLogger(slog.LevelInfo)
	slog.SetDefault(log)

	log.Info("service_initializing")

	// ── 2. Configuration ──────────────────────────────────────────────────
	cfg, err := config.Load()
	must(log, err, "load configuration")

	if cfg.Debug {
		log = newLogger(slog.LevelDebug)
		slog.SetDefault(log)
		log.Debug("debug_logging_enabled")
	}

	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
		slog.String("store", cfg.StoreBackend),
		slog.String("rate_limits", cfg.RateLimits.String()),
	)

	// Bound startup so misconfiguration is caught quickly rather than hanging.
	startupCtx, startupCancel := context.WithTimeout(context.Background(), constants.StartupTimeout)
	defer startupCancel()

	// ── 3. Trust Store ────────────────────────────────────────────────────
	stores, err := openBackend(startupCtx, cfg, log)
	must(log, err, "open trust store")
	defer stores.close()

	// ── 4. Trust Services ─────────────────────────────────────────────────
	collectors := metrics.New()
	auditor := pipeline.NewAuditor(log, collectors)

	authority, err := token.New(token.Config{
		AccessSecret:       []byte(cfg.AccessTokenSecret),
		RefreshSecret:      []byte(cfg.RefreshTokenSecret),
		Issuer:             cfg.TokenIssuer,
		AccessTTL:          cfg.AccessTokenTTL,
		RefreshTTL:         cfg.RefreshTokenTTL,
		LockoutMaxAttempts: cfg.LockoutMaxAttempts,
		LockoutWindow:      cfg.LockoutWindow,
	}, stores.store, token.WithLogger(log))
	must(log, err, "initialize token authority")

	guard, err := csrf.NewGuard([]byte(cfg.CSRFSecret))
	must(log, err, "initialize csrf guard")

	limiter := ratelimit.New(cfg.RateLimits,
		ratelimit.WithBlocking(cfg.RateBlockThreshold, cfg.RateBlockDuration, cfg.RateViolationWindow),
		ratelimit.WithStore(stores.limits),
	)

	gate := pipeline.NewAdmission(pipeline.Admission{
		MaxBodyBytes: cfg.MaxBodyBytes,
		Guard:        guard,
		CSRFPolicy: csrf.Policy{
			APIPrefix:      "/api/",
			ExemptPaths:    cfg.CSRFExemptPaths,
			ExemptPrefixes: cfg.CSRFExemptPrefixes,
			SessionCookie:  constants.SessionCookieName,
		},
		Limiter: limiter,
		Headers: pipeline.SecurityHeaders{
			ContentSecurityPolicy: cfg.ContentSecurityPolicy,
			HSTS:                  cfg.HSTSEnabled,
		},
		Auditor: auditor,
		Metrics: collectors,
	})

	// ── 5. Domain Wiring ──────────────────────────────────────────────────
	hasher := sec.NewHasher(cfg.BcryptCost)
	admin, err := auth.SeedAdmin(startupCtx, stores.users, cfg.AdminEmail, cfg.AdminPasswordHash)
	must(log, err, "seed admin account")
	if admin != nil {
		log.Info("admin_account_seeded", slog.String("user_id", admin.ID))
	}

	authService := auth.NewService(stores.users, authority, hasher, auditor)

	liveness, readiness := api.NewHealthHandlers(api.HealthDependencies{Checks: stores.checks}, log)

	server := api.NewServer(api.Dependencies{
		Config:   cfg,
		Logger:   log,
		Metrics:  collectors,
		Verifier: authority,
		Gate:     gate,
	}, api.Handlers{
		Liveness:  liveness,
		Readiness: readiness,
		Metrics:   collectors.Handler(),
		Auth:      auth.NewHandler(authService, cfg.SecureCookies),
		Account:   account.NewHandler(account.NewService(stores.users, authority, hasher, auditor)),
		Session:   session.NewHandler(guard, cfg.SecureCookies),
	})

	// ── 6. Janitors ───────────────────────────────────────────────────────
	janitorCtx, stopJanitors := context.WithCancel(context.Background())
	defer stopJanitors()

	go limiter.Run(janitorCtx, cfg.SweepInterval, func(stats ratelimit.SweepStats) {
		collectors.Swept(stats.Windows, stats.Blocks, stats.Violations, 0)
		log.Debug("rate_limiter_swept",
			slog.Int("windows", stats.Windows),
			slog.Int("blocks", stats.Blocks),
			slog.Int("violations", stats.Violations),
		)
	})

	if sweeper, ok := stores.store.(kv.Sweeper); ok {
		go sweepStore(janitorCtx, sweeper, cfg.SweepInterval, collectors, log)
	}

	// ── 7. Graceful Shutdown ──────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Block until OS signal or server error.
	select {
	case sig := <-quit:
		log.Info("shutdown_signal_received", slog.String("signal", sig.String()))
	case err := <-serverErr:
		log.Error("server_startup_error", slog.Any("error", err))
	}

	stopJanitors()

	log.Info("shutting_down_server", slog.Duration("timeout", constants.ShutdownTimeout))
	if err := server.Shutdown(constants.ShutdownTimeout); err != nil {
		log.Error("shutdown_error", slog.Any("error", err))
		os.Exit(1)
	}

	log.Info("server_stopped_cleanly")
}

// newLogger returns the process-wide JSON logger tagged with the app name.
func newLogger(level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With(slog.String("app", constants.AppName))
}

// openBackend connects the configured trust store and the matching user
// repository. Shared backends also hold the rate limiter state so every
// instance counts against the same windows. Accounts live in PostgreSQL only when the postgres backend is
// selected; otherwise they are held in memory and seeded from config.
func openBackend(ctx context.Context, cfg *config.Config, log *slog.Logger) (*backend, error) {
	switch cfg.StoreBackend {
	case config.StoreRedis:
		client, err := redisstore.NewClient(ctx, cfg.RedisURL, log)
		if err != nil {
			return nil, err
		}
		store := redisstore.NewStore(client, log)
		return &backend{
			store:  store,
			limits: ratelimit.NewKVStore(store),
			users:  auth.NewMemoryUserRepository(),
			checks: []api.ReadinessCheck{{
				Name: "redis",
				Ping: func(ctx context.Context) error { return redisstore.Ping(ctx, client) },
			}},
			close: func() {
				log.Info("closing_redis_client")
				if err := client.Close(); err != nil {
					log.Error("redis_close_error", slog.Any("error", err))
				}
			},
		}, nil

	case config.StorePostgres:
		if err := migration.Up(cfg.DatabaseURL, cfg.MigrationPath, log); err != nil {
			return nil, err
		}
		pool, err := pgstore.NewPool(ctx, cfg.DatabaseURL, log)
		if err != nil {
			return nil, err
		}
		store, err := kv.NewPostgresStore(pool, cfg.KVTable)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return &backend{
			store:  store,
			limits: ratelimit.NewKVStore(store),
			users:  auth.NewPostgresUserRepository(pool),
			checks: []api.ReadinessCheck{{
				Name: "postgres",
				Ping: func(ctx context.Context) error { return pgstore.Ping(ctx, pool) },
			}},
			close: func() {
				log.Info("closing_postgres_pool")
				pool.Close()
			},
		}, nil

	default:
		if cfg.IsProduction() {
			log.Warn("memory_store_in_production", slog.String("hint", "state is lost on restart and not shared across instances"))
		}
		return &backend{
			store: kv.NewMemoryStore(),
			users: auth.NewMemoryUserRepository(),
			close: func() {},
		}, nil
	}
}

// sweepStore removes expired keys from stores without native expiry.
func sweepStore(ctx context.Context, sweeper kv.Sweeper, interval time.Duration, collectors *metrics.Metrics, log *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := sweeper.Sweep(ctx)
			if err != nil {
				log.Warn("store_sweep_failed", slog.Any("error", err))
				continue
			}
			collectors.Swept(0, 0, 0, removed)
			if removed > 0 {
				log.Debug("store_swept", slog.Int("removed", removed))
			}
		}
	}
}

// must logs a structured fatal error and terminates the process if err is non-nil.
//
// It is intentionally limited to startup wiring. After startup, all errors
// must be returned and handled explicitly (never panic).
func must(log *slog.Logger, err error, context string) {
	if err != nil {
		log.Error("startup_failure",
			slog.String("context", context),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
}
