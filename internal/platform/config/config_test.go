// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/aegis/internal/platform/config"
)

func baseVariables() map[string]string {
	return map[string]string{
		"ACCESS_TOKEN_SECRET": strings.Repeat("a", 32),
		"CSRF_SECRET":         strings.Repeat("c", 32),
	}
}

/*
TestLoad_DevelopmentDefaults applies the development profile when ENVIRONMENT is unset.
*/
func TestLoad_DevelopmentDefaults(t *testing.T) {
	cfg, err := config.LoadFrom(baseVariables())
	require.NoError(t, err)

	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, config.StoreMemory, cfg.StoreBackend)
	assert.Equal(t, 15*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, 168*time.Hour, cfg.RefreshTokenTTL)
	assert.Equal(t, 5, cfg.LockoutMaxAttempts)
	assert.Equal(t, int64(1<<20), cfg.MaxBodyBytes)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.False(t, cfg.HSTSEnabled)
	assert.Equal(t, []string{"/auth/login", "/auth/register"}, cfg.CSRFExemptPaths)
	assert.Equal(t, []string{"/webhooks"}, cfg.CSRFExemptPrefixes)
	assert.Equal(t, 1000, cfg.RateLimits.Default.PerMinute)
}

/*
TestLoad_ProductionProfile hardens headers and keeps the stock limits.
*/
func TestLoad_ProductionProfile(t *testing.T) {
	variables := baseVariables()
	variables["ENVIRONMENT"] = "production"
	variables["CORS_ORIGINS"] = "https://app.example.com,https://admin.example.com"

	cfg, err := config.LoadFrom(variables)
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.True(t, cfg.HSTSEnabled)
	assert.True(t, cfg.SecureCookies)
	assert.Equal(t, config.StrictCSP, cfg.ContentSecurityPolicy)
	assert.Equal(t, 100, cfg.RateLimits.Default.PerMinute)
	assert.Equal(t, []string{"https://app.example.com", "https://admin.example.com"}, cfg.CORSOrigins)
}

/*
TestLoad_ProfilePrefixOverrides lets <PROFILE>_ variables win over plain ones.
*/
func TestLoad_ProfilePrefixOverrides(t *testing.T) {
	variables := baseVariables()
	variables["ENVIRONMENT"] = "staging"
	variables["RATE_LIMITS"] = "default=500/50"
	variables["STAGING_RATE_LIMITS"] = "auth:/api/v1/auth=7/2,default=70/10"
	variables["PRODUCTION_SERVER_PORT"] = "9999"

	cfg, err := config.LoadFrom(variables)
	require.NoError(t, err)

	require.Len(t, cfg.RateLimits.Classes, 1)
	assert.Equal(t, 7, cfg.RateLimits.Classes[0].PerMinute)
	assert.Equal(t, 70, cfg.RateLimits.Default.PerMinute)
	assert.Equal(t, "8080", cfg.ServerPort, "other profiles' overrides are ignored")
}

/*
TestLoad_Rejections reports invalid settings.
*/
func TestLoad_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(map[string]string)
		message string
	}{
		{
			name:    "short_access_secret",
			mutate:  func(v map[string]string) { v["ACCESS_TOKEN_SECRET"] = "short" },
			message: "ACCESS_TOKEN_SECRET",
		},
		{
			name:    "missing_csrf_secret",
			mutate:  func(v map[string]string) { delete(v, "CSRF_SECRET") },
			message: "CSRF_SECRET",
		},
		{
			name:    "shared_refresh_secret",
			mutate:  func(v map[string]string) { v["REFRESH_TOKEN_SECRET"] = v["ACCESS_TOKEN_SECRET"] },
			message: "must differ",
		},
		{
			name:    "redis_without_url",
			mutate:  func(v map[string]string) { v["STORE_BACKEND"] = "redis" },
			message: "REDIS_URL",
		},
		{
			name:    "unknown_backend",
			mutate:  func(v map[string]string) { v["STORE_BACKEND"] = "etcd" },
			message: "STORE_BACKEND",
		},
		{
			name:    "zero_sweep_interval",
			mutate:  func(v map[string]string) { v["SWEEP_INTERVAL"] = "0s" },
			message: "SWEEP_INTERVAL",
		},
		{
			name:    "unknown_environment",
			mutate:  func(v map[string]string) { v["ENVIRONMENT"] = "qa" },
			message: "ENVIRONMENT",
		},
		{
			name: "wildcard_cors_in_production",
			mutate: func(v map[string]string) {
				v["ENVIRONMENT"] = "production"
				v["CORS_ORIGINS"] = "*"
			},
			message: "wildcard",
		},
		{
			name:    "malformed_rate_table",
			mutate:  func(v map[string]string) { v["RATE_LIMITS"] = "auth:/api/v1/auth=five" },
			message: "invalid per-minute limit",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			variables := baseVariables()
			tt.mutate(variables)

			_, err := config.LoadFrom(variables)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}
