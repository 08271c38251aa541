package contest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wantamink/pledgeservice/internal/models"
	"github.com/wantamink/pledgeservice/internal/store"
	"github.com/wantamink/pledgeservice/internal/telemetry"
	"go.uber.org/zap"
)

var (
	ErrNotVerified  = errors.New("voter is not verified")
	ErrAlreadyVoted = errors.New("already voted this week")
	ErrMemeNotFound = errors.New("meme not found")
	ErrStaleMeme    = errors.New("meme is not in the current contest week")
	ErrSelfVote     = errors.New("cannot vote for own meme")
	ErrUnavailable  = errors.New("contest store unavailable")
)

type VoteStore interface {
	IsVerified(ctx context.Context, userID string) (bool, error)
	FindVote(ctx context.Context, voterID string, year, week int) (*models.MemeVote, error)
	FindMeme(ctx context.Context, id string) (*models.MemeEntry, error)
	ApplyVote(ctx context.Context, v *models.MemeVote) error
}

type Coordinator struct {
	store   VoteStore
	clock   *Clock
	logger  *zap.Logger
	metrics *telemetry.Metrics
}

func NewCoordinator(s VoteStore, clock *Clock, logger *zap.Logger, metrics *telemetry.Metrics) *Coordinator {
	return &Coordinator{
		store:   s,
		clock:   clock,
		logger:  logger.Named("contest"),
		metrics: metrics,
	}
}

// CastVote records voterID's single vote of the current week for memeID.
// The checks below give precise errors; the store repeats the uniqueness,
// week and self-vote guards so concurrent requests cannot slip past them.
func (c *Coordinator) CastVote(ctx context.Context, voterID, memeID string) (*models.MemeVote, error) {
	week := c.clock.Current()
	log := c.logger.With(
		zap.String("voter_id", voterID),
		zap.String("meme_id", memeID),
		zap.Int("year", week.Year),
		zap.Int("week", week.Number),
	)

	vote, err := c.castVote(ctx, week, voterID, memeID)
	c.metrics.Vote(voteOutcome(err))
	switch {
	case err == nil:
		log.Info("vote recorded")
	case errors.Is(err, ErrUnavailable):
		log.Error("vote failed", zap.Error(err))
	default:
		log.Info("vote rejected", zap.Error(err))
	}
	return vote, err
}

func (c *Coordinator) castVote(ctx context.Context, week Week, voterID, memeID string) (*models.MemeVote, error) {
	verified, err := c.store.IsVerified(ctx, voterID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if !verified {
		return nil, ErrNotVerified
	}

	_, err = c.store.FindVote(ctx, voterID, week.Year, week.Number)
	switch {
	case err == nil:
		return nil, ErrAlreadyVoted
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	meme, err := c.store.FindMeme(ctx, memeID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, ErrMemeNotFound
	case err != nil:
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if meme.Year != week.Year || meme.Week != week.Number {
		return nil, ErrStaleMeme
	}
	if meme.SubmitterID == voterID {
		return nil, ErrSelfVote
	}

	vote := &models.MemeVote{
		CreatedAt: time.Now().UTC(),
		VoterID:   voterID,
		MemeID:    memeID,
		Year:      week.Year,
		Week:      week.Number,
	}
	err = c.store.ApplyVote(ctx, vote)
	switch {
	case err == nil:
		return vote, nil
	case errors.Is(err, store.ErrAlreadyVoted):
		return nil, ErrAlreadyVoted
	case errors.Is(err, store.ErrVoteRejected):
		return nil, c.explainRejection(ctx, week, voterID, memeID)
	}
	return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
}

// explainRejection re-reads the meme after the guarded increment matched
// nothing, which only happens when it changed between the checks and the
// write.
func (c *Coordinator) explainRejection(ctx context.Context, week Week, voterID, memeID string) error {
	meme, err := c.store.FindMeme(ctx, memeID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrMemeNotFound
	case err != nil:
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	case meme.SubmitterID == voterID:
		return ErrSelfVote
	case meme.Year != week.Year || meme.Week != week.Number:
		return ErrStaleMeme
	}
	return ErrMemeNotFound
}

func voteOutcome(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, ErrNotVerified):
		return "not_verified"
	case errors.Is(err, ErrAlreadyVoted):
		return "already_voted"
	case errors.Is(err, ErrMemeNotFound):
		return "meme_not_found"
	case errors.Is(err, ErrStaleMeme):
		return "stale_meme"
	case errors.Is(err, ErrSelfVote):
		return "self_vote"
	}
	return "error"
}
