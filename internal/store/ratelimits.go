package store

import (
	"context"
	"fmt"
	"time"

	"github.com/wantamink/pledgeservice/internal/models"
)

func (s *Store) CountRequestsSince(ctx context.Context, clientKey, endpoint string, since time.Time) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&models.RateLimitRecord{}).
		Where("client_key = ? AND endpoint = ? AND created_at >= ?", clientKey, endpoint, since.UTC()).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count rate limit records: %w", err)
	}
	return n, nil
}

func (s *Store) AddRequest(ctx context.Context, clientKey, endpoint string, at time.Time) error {
	rec := &models.RateLimitRecord{
		ClientKey: clientKey,
		Endpoint:  endpoint,
		CreatedAt: at.UTC(),
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("failed to add rate limit record: %w", err)
	}
	return nil
}

func (s *Store) PruneRequestsBefore(ctx context.Context, before time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("created_at < ?", before.UTC()).
		Delete(&models.RateLimitRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to prune rate limit records: %w", res.Error)
	}
	return res.RowsAffected, nil
}
