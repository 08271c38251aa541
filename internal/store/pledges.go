package store

import (
	"context"
	"fmt"

	"github.com/wantamink/pledgeservice/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm/clause"
)

// InsertPledge stores a new pledge. A repeated transaction id yields
// ErrDuplicateTransaction and a second pledge from the same phone digest
// yields ErrPhoneAlreadyPledged.
func (s *Store) InsertPledge(ctx context.Context, p *models.Pledge) error {
	err := s.db.WithContext(ctx).Create(p).Error
	if err == nil {
		return nil
	}
	if !isUniqueViolation(err) {
		return fmt.Errorf("failed to insert pledge: %w", err)
	}

	var existing []models.Pledge
	lookup := s.db.WithContext(ctx).
		Where("transaction_id = ?", p.TransactionID).
		Limit(1).
		Find(&existing)
	if lookup.Error != nil {
		return fmt.Errorf("failed to resolve pledge conflict: %w", lookup.Error)
	}
	if len(existing) > 0 {
		return ErrDuplicateTransaction
	}
	return ErrPhoneAlreadyPledged
}

func (s *Store) UpsertVerifiedUser(ctx context.Context, u *models.VerifiedUser) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "phone_hash"}},
			DoUpdates: clause.AssignmentColumns([]string{"county", "last_transaction_id", "verified_at"}),
		}).
		Create(u).Error
	if err != nil {
		return fmt.Errorf("failed to upsert verified user: %w", err)
	}
	return nil
}

func (s *Store) FindVerifiedUser(ctx context.Context, phoneHash string) (*models.VerifiedUser, error) {
	var users []models.VerifiedUser
	err := s.db.WithContext(ctx).
		Where("phone_hash = ?", phoneHash).
		Limit(1).
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find verified user: %w", err)
	}
	if len(users) == 0 {
		return nil, ErrNotFound
	}
	return &users[0], nil
}

// IsVerified reports whether the user id (a phone digest) has a verified
// user marker.
func (s *Store) IsVerified(ctx context.Context, userID string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&models.VerifiedUser{}).
		Where("phone_hash = ?", userID).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("failed to check verified user: %w", err)
	}
	return n > 0, nil
}

func (s *Store) CountyCounts(ctx context.Context) ([]models.CountyCount, error) {
	counts := []models.CountyCount{}
	err := s.db.WithContext(ctx).
		Model(&models.Pledge{}).
		Select("county, COUNT(*) AS pledge_count").
		Group("county").
		Order("pledge_count DESC, county ASC").
		Scan(&counts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count pledges by county: %w", err)
	}
	return counts, nil
}

// ReconcileVerifiedUsers creates the verified user marker for every pledge
// that lacks one. It repairs best-effort upserts that failed after the
// pledge itself was stored.
func (s *Store) ReconcileVerifiedUsers(ctx context.Context) (int, error) {
	var missing []models.Pledge
	err := s.db.WithContext(ctx).
		Model(&models.Pledge{}).
		Select("pledges.*").
		Joins("LEFT JOIN verified_users ON verified_users.phone_hash = pledges.phone_hash").
		Where("verified_users.phone_hash IS NULL").
		Find(&missing).Error
	if err != nil {
		return 0, fmt.Errorf("failed to find pledges without verified users: %w", err)
	}

	repaired := 0
	for _, p := range missing {
		u := &models.VerifiedUser{
			PhoneHash:         p.PhoneHash,
			County:            p.County,
			LastTransactionID: p.TransactionID,
			VerifiedAt:        p.CreatedAt,
		}
		if err := s.UpsertVerifiedUser(ctx, u); err != nil {
			return repaired, err
		}
		repaired++
	}
	if repaired > 0 {
		s.logger.Info("reconciled verified users", zap.Int("repaired", repaired))
	}
	return repaired, nil
}
