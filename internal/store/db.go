package store

import (
	"context"
	"fmt"
	"time"

	"github.com/wantamink/pledgeservice/internal/models"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds database connection configuration
type Config struct {
	Driver          string
	DSN             string // postgres connection string
	SQLitePath      string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
	RetryAttempts   int
	RetryDelay      time.Duration
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	}
}

// Open connects to the configured database, retrying postgres connections
// while the database comes up.
func Open(cfg Config, logger *zap.Logger) (*gorm.DB, error) {
	switch cfg.Driver {
	case DriverSQLite:
		logger.Info("opening sqlite database", zap.String("path", cfg.SQLitePath))
		return OpenSQLite(cfg.SQLitePath)
	case DriverPostgres, "":
		return openPostgres(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// OpenSQLite opens a sqlite database. In-memory databases are pinned to a
// single connection so every query sees the same data.
func OpenSQLite(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

func openPostgres(cfg Config, logger *zap.Logger) (*gorm.DB, error) {
	attempts := cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		logger.Info("connecting to postgres", zap.Int("attempt", attempt), zap.Int("max_attempts", attempts))

		db, err := gorm.Open(postgres.Open(cfg.DSN), gormConfig())
		if err == nil {
			err = configurePool(db, cfg)
		}
		if err == nil {
			logger.Info("postgres connection established")
			return db, nil
		}

		lastErr = err
		logger.Warn("postgres connection failed", zap.Int("attempt", attempt), zap.Error(err))
		if attempt < attempts {
			time.Sleep(cfg.RetryDelay)
		}
	}
	return nil, fmt.Errorf("failed to connect to postgres after %d attempts: %w", attempts, lastErr)
}

func configurePool(db *gorm.DB, cfg Config) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return sqlDB.PingContext(ctx)
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
