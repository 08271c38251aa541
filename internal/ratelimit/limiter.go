// Package ratelimit counts completed requests per client and endpoint in a
// trailing one hour window.
package ratelimit

import (
	"context"
	"time"

	"github.com/wantamink/pledgeservice/internal/telemetry"
	"go.uber.org/zap"
)

// Window is the trailing period requests are counted over.
const Window = time.Hour

// Store persists request records. The database store and RedisStore both
// implement it.
type Store interface {
	CountRequestsSince(ctx context.Context, clientKey, endpoint string, since time.Time) (int64, error)
	AddRequest(ctx context.Context, clientKey, endpoint string, at time.Time) error
}

type Limiter struct {
	store   Store
	limits  map[string]int
	logger  *zap.Logger
	metrics *telemetry.Metrics
	now     func() time.Time
}

// New builds a limiter with per-endpoint thresholds. Endpoints missing from
// limits are never limited.
func New(store Store, limits map[string]int, logger *zap.Logger, metrics *telemetry.Metrics) *Limiter {
	copied := make(map[string]int, len(limits))
	for endpoint, limit := range limits {
		copied[endpoint] = limit
	}
	return &Limiter{
		store:   store,
		limits:  copied,
		logger:  logger.Named("ratelimit"),
		metrics: metrics,
		now:     time.Now,
	}
}

// IsLimited reports whether the client has used up the endpoint's budget.
// It fails open: when the store cannot be read the request is allowed.
func (l *Limiter) IsLimited(ctx context.Context, clientKey, endpoint string) bool {
	limit, ok := l.limits[endpoint]
	if !ok {
		return false
	}

	count, err := l.store.CountRequestsSince(ctx, clientKey, endpoint, l.now().Add(-Window))
	if err != nil {
		l.metrics.RateLimitDecision(endpoint, "fail_open")
		l.logger.Warn("rate limit check failed, allowing request",
			zap.String("endpoint", endpoint),
			zap.Error(err))
		return false
	}
	if count >= int64(limit) {
		l.metrics.RateLimitDecision(endpoint, "limited")
		l.logger.Info("rate limited",
			zap.String("endpoint", endpoint),
			zap.String("client", clientKey),
			zap.Int64("count", count),
			zap.Int("limit", limit))
		return true
	}
	l.metrics.RateLimitDecision(endpoint, "allowed")
	return false
}

// Record counts one completed request. Call it only after the guarded action
// succeeded so rejected retries do not consume budget.
func (l *Limiter) Record(ctx context.Context, clientKey, endpoint string) {
	if _, ok := l.limits[endpoint]; !ok {
		return
	}
	if err := l.store.AddRequest(ctx, clientKey, endpoint, l.now()); err != nil {
		l.logger.Warn("failed to record rate limited request",
			zap.String("endpoint", endpoint),
			zap.Error(err))
	}
}

// Limit returns the hourly threshold configured for endpoint.
func (l *Limiter) Limit(endpoint string) (int, bool) {
	limit, ok := l.limits[endpoint]
	return limit, ok
}
