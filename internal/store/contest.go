package store

import (
	"context"
	"fmt"

	"github.com/wantamink/pledgeservice/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func (s *Store) CreateMeme(ctx context.Context, m *models.MemeEntry) error {
	err := s.db.WithContext(ctx).Create(m).Error
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		return ErrDuplicateSubmission
	}
	return fmt.Errorf("failed to create meme: %w", err)
}

func (s *Store) FindMeme(ctx context.Context, id string) (*models.MemeEntry, error) {
	var memes []models.MemeEntry
	err := s.db.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&memes).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find meme: %w", err)
	}
	if len(memes) == 0 {
		return nil, ErrNotFound
	}
	return &memes[0], nil
}

func (s *Store) ListMemes(ctx context.Context, year, week int) ([]models.MemeEntry, error) {
	memes := []models.MemeEntry{}
	err := s.db.WithContext(ctx).
		Where("year = ? AND week = ?", year, week).
		Order("vote_count DESC, created_at ASC").
		Find(&memes).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list memes: %w", err)
	}
	return memes, nil
}

func (s *Store) FindVote(ctx context.Context, voterID string, year, week int) (*models.MemeVote, error) {
	var votes []models.MemeVote
	err := s.db.WithContext(ctx).
		Where("voter_id = ? AND year = ? AND week = ?", voterID, year, week).
		Limit(1).
		Find(&votes).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find vote: %w", err)
	}
	if len(votes) == 0 {
		return nil, ErrNotFound
	}
	return &votes[0], nil
}

// ApplyVote records the vote and increments the meme's counter. By default
// both writes happen in one transaction: the vote row's unique index on
// (voter, year, week) rejects double votes, and the increment only matches a
// meme of the same week that the voter did not submit.
func (s *Store) ApplyVote(ctx context.Context, v *models.MemeVote) error {
	if s.twoPhaseVotes {
		return s.applyVoteTwoPhase(ctx, v)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := insertVote(tx, v); err != nil {
			return err
		}
		res := incrementVoteCount(tx, v)
		if res.Error != nil {
			return fmt.Errorf("failed to increment vote count: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrVoteRejected
		}
		return nil
	})
}

// applyVoteTwoPhase inserts the vote first since it is the uniqueness guard.
// The counter is a cache of the vote ledger, so a failed increment is logged
// and left for RecountVotes.
func (s *Store) applyVoteTwoPhase(ctx context.Context, v *models.MemeVote) error {
	db := s.db.WithContext(ctx)
	if err := insertVote(db, v); err != nil {
		return err
	}

	res := incrementVoteCount(db, v)
	if res.Error == nil && res.RowsAffected == 1 {
		return nil
	}
	s.metrics.VoteIncrementFailed()
	s.logger.Warn("vote recorded without counter increment",
		zap.String("meme_id", v.MemeID),
		zap.Int("week", v.Week),
		zap.Int64("rows_affected", res.RowsAffected),
		zap.Error(res.Error))
	return nil
}

func insertVote(db *gorm.DB, v *models.MemeVote) error {
	err := db.Create(v).Error
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		return ErrAlreadyVoted
	}
	return fmt.Errorf("failed to insert vote: %w", err)
}

func incrementVoteCount(db *gorm.DB, v *models.MemeVote) *gorm.DB {
	return db.Model(&models.MemeEntry{}).
		Where("id = ? AND year = ? AND week = ? AND submitter_id <> ?", v.MemeID, v.Year, v.Week, v.VoterID).
		UpdateColumn("vote_count", gorm.Expr("vote_count + ?", 1))
}

// RecountVotes recomputes every meme's counter from the vote ledger.
func (s *Store) RecountVotes(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Exec(
		"UPDATE memes SET vote_count = (SELECT COUNT(*) FROM meme_votes WHERE meme_votes.meme_id = memes.id)",
	)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to recount votes: %w", res.Error)
	}
	return res.RowsAffected, nil
}
