package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/wantamink/pledgeservice/internal/store"
)

const (
	RateLimitBackendDatabase = "database"
	RateLimitBackendRedis    = "redis"

	VoteModeAtomic   = "atomic"
	VoteModeTwoPhase = "two-phase"

	DefaultMpesaBaseURL = "https://sandbox.safaricom.co.ke"
)

// Config is the service configuration, read from the environment.
type Config struct {
	HTTPAddr          string
	TrustProxyHeaders bool

	CORSAllowedOrigins []string
	CORSMaxAge         int

	Database store.Config

	Mpesa MpesaConfig

	WebhookSecret   string
	PhoneHashSecret string
	SessionHashKey  string
	SessionBlockKey string

	RateLimitBackend       string
	RateLimitConfigPath    string
	RateLimitPruneInterval time.Duration
	Redis                  RedisConfig

	TipWallet string

	ContestTimezone string
	CountyCacheTTL  time.Duration
	VoteApplyMode   string

	LogLevel  string
	LogFormat string
}

type MpesaConfig struct {
	ShortCode      string
	ConsumerKey    string
	ConsumerSecret string
	Passkey        string
	BaseURL        string
	CallbackURL    string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// FromEnv reads the configuration from environment variables. Callers
// wanting .env support load it before calling.
func FromEnv() *Config {
	return &Config{
		HTTPAddr:           getEnvOrDefault("HTTP_ADDR", ":8080"),
		TrustProxyHeaders:  parseBoolOrDefault("TRUST_PROXY_HEADERS", false),
		CORSAllowedOrigins: parseListOrDefault("CORS_ALLOWED_ORIGINS", []string{"*"}),
		CORSMaxAge:         parseIntOrDefault("CORS_MAX_AGE", 86400),
		Database: store.Config{
			Driver:          getEnvOrDefault("DB_DRIVER", store.DriverPostgres),
			DSN:             os.Getenv("DATABASE_URL"),
			SQLitePath:      getEnvOrDefault("SQLITE_PATH", "pledges.db"),
			MaxOpenConns:    parseIntOrDefault("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    parseIntOrDefault("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: parseDurationOrDefault("DB_CONN_MAX_LIFETIME", time.Hour),
			ConnectTimeout:  parseDurationOrDefault("DB_CONNECT_TIMEOUT", 10*time.Second),
			RetryAttempts:   parseIntOrDefault("DB_RETRY_ATTEMPTS", 5),
			RetryDelay:      parseDurationOrDefault("DB_RETRY_DELAY", 2*time.Second),
		},
		Mpesa: MpesaConfig{
			ShortCode:      os.Getenv("MPESA_SHORTCODE"),
			ConsumerKey:    os.Getenv("MPESA_CONSUMER_KEY"),
			ConsumerSecret: os.Getenv("MPESA_CONSUMER_SECRET"),
			Passkey:        os.Getenv("MPESA_PASSKEY"),
			BaseURL:        getEnvOrDefault("MPESA_BASE_URL", DefaultMpesaBaseURL),
			CallbackURL:    os.Getenv("MPESA_CALLBACK_URL"),
		},
		WebhookSecret:          os.Getenv("WEBHOOK_SECRET"),
		PhoneHashSecret:        os.Getenv("PHONE_HASH_SECRET"),
		SessionHashKey:         os.Getenv("SESSION_HASH_KEY"),
		SessionBlockKey:        os.Getenv("SESSION_BLOCK_KEY"),
		RateLimitBackend:       getEnvOrDefault("RATE_LIMIT_BACKEND", RateLimitBackendDatabase),
		RateLimitConfigPath:    getEnvOrDefault("RATE_LIMIT_CONFIG", DefaultRateLimitPath),
		RateLimitPruneInterval: parseDurationOrDefault("RATE_LIMIT_PRUNE_INTERVAL", 10*time.Minute),
		Redis: RedisConfig{
			Addr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       parseIntOrDefault("REDIS_DB", 0),
		},
		TipWallet:       os.Getenv("TIP_WALLET"),
		ContestTimezone: getEnvOrDefault("CONTEST_TIMEZONE", "Africa/Nairobi"),
		CountyCacheTTL:  parseDurationOrDefault("COUNTY_CACHE_TTL", 30*time.Second),
		VoteApplyMode:   getEnvOrDefault("VOTE_APPLY_MODE", VoteModeAtomic),
		LogLevel:        getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       getEnvOrDefault("LOG_FORMAT", "json"),
	}
}

// Validate checks the values the service cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.Mpesa.ShortCode == "" {
		errs = append(errs, errors.New("MPESA_SHORTCODE is required"))
	}
	switch c.Database.Driver {
	case store.DriverPostgres:
		if c.Database.DSN == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres driver"))
		}
	case store.DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver))
	}
	switch c.RateLimitBackend {
	case RateLimitBackendDatabase, RateLimitBackendRedis:
	default:
		errs = append(errs, fmt.Errorf("unsupported RATE_LIMIT_BACKEND %q", c.RateLimitBackend))
	}
	switch c.VoteApplyMode {
	case VoteModeAtomic, VoteModeTwoPhase:
	default:
		errs = append(errs, fmt.Errorf("unsupported VOTE_APPLY_MODE %q", c.VoteApplyMode))
	}
	if c.CountyCacheTTL < 0 {
		errs = append(errs, errors.New("COUNTY_CACHE_TTL must not be negative"))
	}
	return errors.Join(errs...)
}

// ContestLocation resolves the time zone contest weeks are computed in.
func (c *Config) ContestLocation() (*time.Location, error) {
	loc, err := time.LoadLocation(c.ContestTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid CONTEST_TIMEZONE %q: %w", c.ContestTimezone, err)
	}
	return loc, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// parseListOrDefault splits a comma separated value, dropping empty items.
func parseListOrDefault(key string, defaultValue []string) []string {
	var items []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}

func parseBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
