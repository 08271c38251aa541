package ratelimit

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type Pruneable interface {
	PruneRequestsBefore(ctx context.Context, before time.Time) (int64, error)
}

// Pruner periodically deletes request records that fell out of the window.
type Pruner struct {
	store    Pruneable
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

func NewPruner(store Pruneable, interval time.Duration, logger *zap.Logger) *Pruner {
	return &Pruner{
		store:    store,
		interval: interval,
		logger:   logger.Named("ratelimit.pruner"),
		now:      time.Now,
	}
}

// PruneOnce deletes every record older than the window.
func (p *Pruner) PruneOnce(ctx context.Context) (int64, error) {
	return p.store.PruneRequestsBefore(ctx, p.now().Add(-Window))
}

// Run prunes on every tick until ctx is done.
func (p *Pruner) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := p.PruneOnce(ctx)
			if err != nil {
				p.logger.Warn("rate limit pruning failed", zap.Error(err))
				continue
			}
			if n > 0 {
				p.logger.Debug("pruned rate limit records", zap.Int64("deleted", n))
			}
		}
	}
}
