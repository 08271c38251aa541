package main

import (
	"errors"
	"fmt"

	"github.com/gorilla/securecookie"
	"github.com/redis/go-redis/v9"
	"github.com/wantamink/pledgeservice/internal/config"
	"github.com/wantamink/pledgeservice/internal/contest"
	"github.com/wantamink/pledgeservice/internal/daraja"
	"github.com/wantamink/pledgeservice/internal/pledge"
	"github.com/wantamink/pledgeservice/internal/ratelimit"
	"github.com/wantamink/pledgeservice/internal/store"
	"github.com/wantamink/pledgeservice/internal/telemetry"
	"github.com/wantamink/pledgeservice/internal/tip"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// app owns the long lived dependencies shared by the commands.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *telemetry.Metrics
	db      *gorm.DB
	store   *store.Store
	redis   *redis.Client
}

func openApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	db, err := store.Open(cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	metrics := telemetry.NewMetrics()

	var opts []store.Option
	opts = append(opts, store.WithMetrics(metrics))
	if cfg.VoteApplyMode == config.VoteModeTwoPhase {
		opts = append(opts, store.WithTwoPhaseVotes())
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		db:      db,
		store:   store.New(db, logger, opts...),
	}
	if cfg.RateLimitBackend == config.RateLimitBackendRedis {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	return a, nil
}

func (a *app) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("failed to close redis client", zap.Error(err))
		}
	}
	if sqlDB, err := a.db.DB(); err == nil {
		sqlDB.Close()
	}
}

func (a *app) rateLimitStore() ratelimit.Store {
	if a.redis != nil {
		return ratelimit.NewRedisStore(a.redis)
	}
	return a.store
}

func (a *app) secureCookie() (*securecookie.SecureCookie, error) {
	hashKey := []byte(a.cfg.SessionHashKey)
	blockKey := []byte(a.cfg.SessionBlockKey)
	if len(hashKey) == 0 {
		a.logger.Warn("SESSION_HASH_KEY not set, sessions will not survive a restart")
		hashKey = securecookie.GenerateRandomKey(64)
		if len(blockKey) == 0 {
			blockKey = securecookie.GenerateRandomKey(32)
		}
	}
	switch len(blockKey) {
	case 0, 16, 24, 32:
	default:
		return nil, errors.New("SESSION_BLOCK_KEY must be 16, 24 or 32 bytes")
	}
	if len(blockKey) == 0 {
		blockKey = nil
	}
	return securecookie.New(hashKey, blockKey), nil
}

func (a *app) routes() (*routes, error) {
	loc, err := a.cfg.ContestLocation()
	if err != nil {
		return nil, err
	}
	limits, err := config.LoadRateLimits(a.cfg.RateLimitConfigPath)
	if err != nil {
		return nil, err
	}
	sc, err := a.secureCookie()
	if err != nil {
		return nil, err
	}

	var darajaClient *daraja.Client
	darajaClient, err = daraja.New(daraja.Config{
		BaseURL:        a.cfg.Mpesa.BaseURL,
		ShortCode:      a.cfg.Mpesa.ShortCode,
		ConsumerKey:    a.cfg.Mpesa.ConsumerKey,
		ConsumerSecret: a.cfg.Mpesa.ConsumerSecret,
		Passkey:        a.cfg.Mpesa.Passkey,
	})
	switch {
	case errors.Is(err, daraja.ErrNotConfigured):
		a.logger.Warn("MPESA API credentials not configured, STK push disabled")
	case err != nil:
		return nil, fmt.Errorf("failed to create daraja client: %w", err)
	}

	hasher := pledge.NewPhoneHasher(a.cfg.PhoneHashSecret)
	if a.cfg.PhoneHashSecret == "" {
		a.logger.Warn("PHONE_HASH_SECRET not set, phone digests are unkeyed SHA-256")
	}
	webhookAuth := pledge.NewWebhookAuth(a.cfg.WebhookSecret)
	if !webhookAuth.Enabled() {
		a.logger.Warn("WEBHOOK_SECRET not set, payment webhooks are not authenticated")
	}
	clock := contest.NewClock(loc)
	tips := tip.NewBuilder(a.cfg.TipWallet)
	if tips.Placeholder() {
		a.logger.Warn("TIP_WALLET not set, tips go to a placeholder wallet")
	}

	return &routes{
		Logger:       a.logger,
		Metrics:      a.metrics,
		Store:        a.store,
		Hasher:       hasher,
		Verifier:     pledge.NewVerifier(a.cfg.Mpesa.ShortCode),
		WebhookAuth:  webhookAuth,
		Recorder:     pledge.NewRecorder(a.store, hasher, a.logger, a.metrics),
		Tally:        pledge.NewTally(a.store, a.cfg.CountyCacheTTL, a.logger, a.metrics),
		Limiter:      ratelimit.New(a.rateLimitStore(), limits, a.logger, a.metrics),
		Coordinator:  contest.NewCoordinator(a.store, clock, a.logger, a.metrics),
		Submissions:  contest.NewSubmissions(a.store, clock, a.logger, a.metrics),
		SecureCookie: sc,
		Tips:         tips,
		Daraja:       darajaClient,
		CallbackURL:  a.cfg.Mpesa.CallbackURL,
	}, nil
}
