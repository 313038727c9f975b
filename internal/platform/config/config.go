// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package config handles application-wide settings and environment parsing.

It leverages 'caarlos0/env' to map OS environment variables into a strongly-typed
Go struct, providing early validation and default values.

Usage:

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal(err)
	}

Profiles:

ENVIRONMENT selects a profile (development, staging, production) that seeds the
rate table, CORS allow-list, CSP and HSTS. Plain variables override the
profile, and variables prefixed with the upper-cased profile name override
again, so a single env file can carry every environment:

	RATE_LIMITS=default=500/50
	PRODUCTION_RATE_LIMITS=auth:/api/v1/auth=5/3,default=100/20

Architecture:

  - Immutability: Once loaded, configuration is read-only.
  - DI-Friendly: Passed to core components (stores, token authority) via constructors.
  - Zero Hidden State: No global variables are used to store config.
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/taibuivan/aegis/internal/trust/ratelimit"
	"github.com/taibuivan/aegis/internal/trust/token"
)

// # Profiles

const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// Store backends accepted by STORE_BACKEND.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// StrictCSP is the Content-Security-Policy used outside development.
const StrictCSP = "default-src 'self'; frame-ancestors 'none'; object-src 'none'; base-uri 'self'"

// # Configuration Schema

// Config holds all runtime configuration for the Aegis gate.
type Config struct {

	// Server settings
	ServerPort  string `env:"SERVER_PORT"  envDefault:"8080"`
	Environment string `env:"ENVIRONMENT"  envDefault:"development"`
	Debug       bool   `env:"DEBUG"        envDefault:"false"`

	// Shared state store
	StoreBackend  string        `env:"STORE_BACKEND"  envDefault:"memory"`
	RedisURL      string        `env:"REDIS_URL"`
	DatabaseURL   string        `env:"DATABASE_URL"`
	MigrationPath string        `env:"MIGRATION_PATH" envDefault:"./migrations"`
	KVTable       string        `env:"KV_TABLE"       envDefault:"kv_entries"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`

	// Token authority
	AccessTokenSecret  string        `env:"ACCESS_TOKEN_SECRET"`
	RefreshTokenSecret string        `env:"REFRESH_TOKEN_SECRET"`
	TokenIssuer        string        `env:"TOKEN_ISSUER"         envDefault:"aegis"`
	AccessTokenTTL     time.Duration `env:"ACCESS_TOKEN_TTL"     envDefault:"15m"`
	RefreshTokenTTL    time.Duration `env:"REFRESH_TOKEN_TTL"    envDefault:"168h"`
	LockoutMaxAttempts int           `env:"LOCKOUT_MAX_ATTEMPTS" envDefault:"5"`
	LockoutWindow      time.Duration `env:"LOCKOUT_WINDOW"       envDefault:"30m"`
	BcryptCost         int           `env:"BCRYPT_COST"          envDefault:"12"`

	// CSRF guard
	CSRFSecret         string   `env:"CSRF_SECRET"`
	CSRFExemptPaths    []string `env:"CSRF_EXEMPT_PATHS"    envDefault:"/auth/login,/auth/register" envSeparator:","`
	CSRFExemptPrefixes []string `env:"CSRF_EXEMPT_PREFIXES" envDefault:"/webhooks"                  envSeparator:","`
	SecureCookies      bool     `env:"SECURE_COOKIES"`

	// Rate limiter. RateLimits has no envDefault: the profile seeds it.
	RateLimits          ratelimit.Table `env:"RATE_LIMITS"`
	RateBlockThreshold  int             `env:"RATE_BLOCK_THRESHOLD"  envDefault:"5"`
	RateBlockDuration   time.Duration   `env:"RATE_BLOCK_DURATION"   envDefault:"1h"`
	RateViolationWindow time.Duration   `env:"RATE_VIOLATION_WINDOW" envDefault:"1h"`

	// Input validation and response hardening
	MaxBodyBytes          int64    `env:"MAX_BODY_BYTES" envDefault:"1048576"`
	CORSOrigins           []string `env:"CORS_ORIGINS"   envSeparator:","`
	ContentSecurityPolicy string   `env:"CONTENT_SECURITY_POLICY"`
	HSTSEnabled           bool     `env:"HSTS_ENABLED"`

	// Seed account for the in-memory user directory
	AdminEmail        string `env:"ADMIN_EMAIL"`
	AdminPasswordHash string `env:"ADMIN_PASSWORD_HASH"`
}

// profile returns the per-environment defaults applied before parsing.
func profile(environment string) *Config {
	switch environment {
	case EnvProduction:
		return &Config{
			RateLimits:            ratelimit.DefaultTable(),
			ContentSecurityPolicy: StrictCSP,
			HSTSEnabled:           true,
			SecureCookies:         true,
		}
	case EnvStaging:
		return &Config{
			RateLimits:            ratelimit.DefaultTable(),
			ContentSecurityPolicy: StrictCSP,
			SecureCookies:         true,
		}
	default:
		table := ratelimit.DefaultTable()
		for index := range table.Classes {
			table.Classes[index].PerMinute *= 10
			table.Classes[index].Burst *= 10
		}
		table.Default.PerMinute *= 10
		table.Default.Burst *= 10

		return &Config{
			RateLimits:            table,
			CORSOrigins:           []string{"*"},
			ContentSecurityPolicy: "default-src 'self' 'unsafe-inline'",
		}
	}
}

// # Configuration Loading

// Load parses the process environment into a validated [Config].
func Load() (*Config, error) {
	return LoadFrom(env.ToMap(os.Environ()))
}

// LoadFrom parses the given variables into a validated [Config].
func LoadFrom(variables map[string]string) (*Config, error) {

	// 1. Pick the profile
	environment := strings.ToLower(strings.TrimSpace(variables["ENVIRONMENT"]))
	if environment == "" {
		environment = EnvDevelopment
	}

	// 2. Overlay <PROFILE>_ prefixed variables onto the plain ones
	merged := make(map[string]string, len(variables))
	for key, value := range variables {
		merged[key] = value
	}
	prefix := strings.ToUpper(environment) + "_"
	for key, value := range variables {
		if name, ok := strings.CutPrefix(key, prefix); ok && name != "" {
			merged[name] = value
		}
	}

	// 3. Parse on top of the profile. Unset variables keep the profile value.
	cfg := profile(environment)
	if err := env.ParseWithOptions(cfg, env.Options{Environment: merged}); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}
	cfg.Environment = environment

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// # Validation

// Validate reports every misconfiguration at once.
func (c *Config) Validate() error {
	var errs []error

	if !slices.Contains([]string{EnvDevelopment, EnvStaging, EnvProduction}, c.Environment) {
		errs = append(errs, fmt.Errorf("config: unknown ENVIRONMENT %q", c.Environment))
	}

	// Secrets
	if len(c.AccessTokenSecret) < token.MinSecretLength {
		errs = append(errs, fmt.Errorf("config: ACCESS_TOKEN_SECRET must be at least %d bytes", token.MinSecretLength))
	}
	if c.RefreshTokenSecret != "" {
		if len(c.RefreshTokenSecret) < token.MinSecretLength {
			errs = append(errs, fmt.Errorf("config: REFRESH_TOKEN_SECRET must be at least %d bytes", token.MinSecretLength))
		}
		if c.RefreshTokenSecret == c.AccessTokenSecret {
			errs = append(errs, errors.New("config: REFRESH_TOKEN_SECRET must differ from ACCESS_TOKEN_SECRET"))
		}
	}
	if len(c.CSRFSecret) < token.MinSecretLength {
		errs = append(errs, fmt.Errorf("config: CSRF_SECRET must be at least %d bytes", token.MinSecretLength))
	}

	// Store
	switch c.StoreBackend {
	case StoreMemory:
	case StoreRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("config: REDIS_URL is required for the redis store"))
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("config: DATABASE_URL is required for the postgres store"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown STORE_BACKEND %q", c.StoreBackend))
	}

	// Limits
	if err := c.RateLimits.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("config: RATE_LIMITS: %w", err))
	}
	if c.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("config: MAX_BODY_BYTES must be positive"))
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		errs = append(errs, errors.New("config: token TTLs must be positive"))
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, errors.New("config: SWEEP_INTERVAL must be positive"))
	}

	if c.IsProduction() && slices.Contains(c.CORSOrigins, "*") {
		errs = append(errs, errors.New("config: wildcard CORS_ORIGINS is not allowed in production"))
	}

	return errors.Join(errs...)
}

// IsDevelopment reports whether the server is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == EnvDevelopment
}

// IsProduction reports whether the server is running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}
