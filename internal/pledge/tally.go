package pledge

import (
	"context"
	"sync"
	"time"

	"github.com/wantamink/pledgeservice/internal/models"
	"github.com/wantamink/pledgeservice/internal/telemetry"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// lookupTimeout bounds a shared county query, which outlives the request
// that started it.
const lookupTimeout = 10 * time.Second

type CountySource interface {
	CountyCounts(ctx context.Context) ([]models.CountyCount, error)
}

// Tally caches the county leaderboard. Exact counts are not needed, so a
// result is reused for ttl and concurrent misses share one query.
type Tally struct {
	source  CountySource
	ttl     time.Duration
	logger  *zap.Logger
	metrics *telemetry.Metrics
	now     func() time.Time

	group   singleflight.Group
	mu      sync.RWMutex
	counts  []models.CountyCount
	expires time.Time
}

func NewTally(source CountySource, ttl time.Duration, logger *zap.Logger, metrics *telemetry.Metrics) *Tally {
	return &Tally{
		source:  source,
		ttl:     ttl,
		logger:  logger.Named("tally"),
		metrics: metrics,
		now:     time.Now,
	}
}

func (t *Tally) Counts(ctx context.Context) ([]models.CountyCount, error) {
	t.mu.RLock()
	counts, expires := t.counts, t.expires
	t.mu.RUnlock()
	if counts != nil && t.now().Before(expires) {
		t.metrics.CountyCache("hit")
		return counts, nil
	}
	t.metrics.CountyCache("miss")

	ch := t.group.DoChan("counties", func() (any, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lookupTimeout)
		defer cancel()
		fresh, err := t.source.CountyCounts(lookupCtx)
		if err != nil {
			return nil, err
		}
		t.mu.Lock()
		t.counts = fresh
		t.expires = t.now().Add(t.ttl)
		t.mu.Unlock()
		return fresh, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		if counts != nil {
			t.logger.Warn("serving stale county counts", zap.Error(res.Err))
			return counts, nil
		}
		return nil, res.Err
	}
	return res.Val.([]models.CountyCount), nil
}

// Total sums the pledge counts.
func Total(counts []models.CountyCount) int64 {
	var total int64
	for _, c := range counts {
		total += c.PledgeCount
	}
	return total
}
