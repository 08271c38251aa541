package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wantamink/pledgeservice/internal/store"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, key := range []string{"HTTP_ADDR", "DB_DRIVER", "DATABASE_URL", "MPESA_SHORTCODE", "MPESA_BASE_URL", "RATE_LIMIT_BACKEND", "VOTE_APPLY_MODE", "COUNTY_CACHE_TTL", "CONTEST_TIMEZONE", "CORS_ALLOWED_ORIGINS", "CORS_MAX_AGE", "TIP_WALLET"} {
		t.Setenv(key, "")
	}

	cfg := FromEnv()
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, store.DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, RateLimitBackendDatabase, cfg.RateLimitBackend)
	assert.Equal(t, VoteModeAtomic, cfg.VoteApplyMode)
	assert.Equal(t, 30*time.Second, cfg.CountyCacheTTL)
	assert.Equal(t, DefaultMpesaBaseURL, cfg.Mpesa.BaseURL)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, 86400, cfg.CORSMaxAge)
	assert.Empty(t, cfg.TipWallet)

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MPESA_SHORTCODE is required")
	assert.Contains(t, err.Error(), "DATABASE_URL is required")
}

func TestFromEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9000")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", "/tmp/pledges.db")
	t.Setenv("DB_MAX_OPEN_CONNS", "not-a-number")
	t.Setenv("MPESA_SHORTCODE", "123456")
	t.Setenv("RATE_LIMIT_BACKEND", "redis")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("VOTE_APPLY_MODE", "two-phase")
	t.Setenv("COUNTY_CACHE_TTL", "45s")
	t.Setenv("TRUST_PROXY_HEADERS", "true")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://wantam.ink, ,https://www.wantam.ink")
	t.Setenv("CORS_MAX_AGE", "600")
	t.Setenv("TIP_WALLET", "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin")

	cfg := FromEnv()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ":9000", cfg.HTTPAddr)
	assert.Equal(t, "/tmp/pledges.db", cfg.Database.SQLitePath)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.Equal(t, "123456", cfg.Mpesa.ShortCode)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, VoteModeTwoPhase, cfg.VoteApplyMode)
	assert.Equal(t, 45*time.Second, cfg.CountyCacheTTL)
	assert.True(t, cfg.TrustProxyHeaders)
	assert.Equal(t, []string{"https://wantam.ink", "https://www.wantam.ink"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, 600, cfg.CORSMaxAge)
	assert.Equal(t, "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin", cfg.TipWallet)
}

func TestValidateRejectsUnknownModes(t *testing.T) {
	cfg := &Config{
		Database:         store.Config{Driver: "mysql"},
		Mpesa:            MpesaConfig{ShortCode: "123456"},
		RateLimitBackend: "memcached",
		VoteApplyMode:    "eventual",
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unsupported DB_DRIVER "mysql"`)
	assert.Contains(t, err.Error(), `unsupported RATE_LIMIT_BACKEND "memcached"`)
	assert.Contains(t, err.Error(), `unsupported VOTE_APPLY_MODE "eventual"`)
}

func TestContestLocation(t *testing.T) {
	cfg := &Config{ContestTimezone: "Africa/Nairobi"}
	loc, err := cfg.ContestLocation()
	require.NoError(t, err)
	assert.Equal(t, "Africa/Nairobi", loc.String())

	cfg.ContestTimezone = "Mars/Olympus"
	_, err = cfg.ContestLocation()
	assert.Error(t, err)
}

func TestLoadRateLimits(t *testing.T) {
	dir := t.TempDir()

	limits, err := LoadRateLimits(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultRateLimits, limits)

	path := filepath.Join(dir, "ratelimits.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rateLimits:\n  meme_vote: 50\n  pledge_lookup: 100\n"), 0o600))
	limits, err = LoadRateLimits(path)
	require.NoError(t, err)
	assert.Equal(t, 50, limits[EndpointMemeVote])
	assert.Equal(t, 5, limits[EndpointMemeSubmit])
	assert.Equal(t, 100, limits["pledge_lookup"])
	assert.Equal(t, 20, DefaultRateLimits[EndpointMemeVote], "defaults are not mutated")

	require.NoError(t, os.WriteFile(path, []byte("rateLimits:\n  meme_vote: 0\n"), 0o600))
	_, err = LoadRateLimits(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("rateLimits: [1, 2"), 0o600))
	_, err = LoadRateLimits(path)
	assert.Error(t, err)
}

func TestRepositoryRateLimitFile(t *testing.T) {
	limits, err := LoadRateLimits(filepath.Join("..", "..", DefaultRateLimitPath))
	require.NoError(t, err)
	assert.Equal(t, 20, limits[EndpointMemeVote])
	assert.Equal(t, 5, limits[EndpointMemeSubmit])
	assert.Equal(t, 3, limits[EndpointSTKPush])
}
