package contest

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/lithammer/shortuuid"
	"github.com/wantamink/pledgeservice/internal/models"
	"github.com/wantamink/pledgeservice/internal/store"
	"github.com/wantamink/pledgeservice/internal/telemetry"
	"go.uber.org/zap"
)

var (
	ErrInvalidURL       = errors.New("meme url must be an absolute http or https url")
	ErrAlreadySubmitted = errors.New("already submitted a meme this week")
)

const maxURLLength = 2048

type SubmissionStore interface {
	IsVerified(ctx context.Context, userID string) (bool, error)
	CreateMeme(ctx context.Context, m *models.MemeEntry) error
	ListMemes(ctx context.Context, year, week int) ([]models.MemeEntry, error)
}

type Submissions struct {
	store   SubmissionStore
	clock   *Clock
	logger  *zap.Logger
	metrics *telemetry.Metrics
}

func NewSubmissions(s SubmissionStore, clock *Clock, logger *zap.Logger, metrics *telemetry.Metrics) *Submissions {
	return &Submissions{
		store:   s,
		clock:   clock,
		logger:  logger.Named("contest"),
		metrics: metrics,
	}
}

// Submit enters a meme into the current week's contest.
func (s *Submissions) Submit(ctx context.Context, submitterID, rawURL string) (*models.MemeEntry, error) {
	meme, err := s.submit(ctx, submitterID, rawURL)
	switch {
	case err == nil:
		s.metrics.MemeSubmission("accepted")
		s.logger.Info("meme submitted",
			zap.String("meme_id", meme.ID),
			zap.String("submitter_id", submitterID),
			zap.Int("week", meme.Week))
	case errors.Is(err, ErrNotVerified):
		s.metrics.MemeSubmission("not_verified")
	case errors.Is(err, ErrInvalidURL):
		s.metrics.MemeSubmission("invalid_url")
	case errors.Is(err, ErrAlreadySubmitted):
		s.metrics.MemeSubmission("already_submitted")
	default:
		s.metrics.MemeSubmission("error")
		s.logger.Error("meme submission failed", zap.Error(err))
	}
	return meme, err
}

func (s *Submissions) submit(ctx context.Context, submitterID, rawURL string) (*models.MemeEntry, error) {
	memeURL, err := normalizeURL(rawURL)
	if err != nil {
		return nil, err
	}

	verified, err := s.store.IsVerified(ctx, submitterID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if !verified {
		return nil, ErrNotVerified
	}

	week := s.clock.Current()
	meme := &models.MemeEntry{
		ID:          shortuuid.New(),
		CreatedAt:   time.Now().UTC(),
		SubmitterID: submitterID,
		URL:         memeURL,
		Year:        week.Year,
		Week:        week.Number,
	}
	err = s.store.CreateMeme(ctx, meme)
	switch {
	case err == nil:
		return meme, nil
	case errors.Is(err, store.ErrDuplicateSubmission):
		return nil, ErrAlreadySubmitted
	}
	return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
}

// List returns the current week's memes, most voted first.
func (s *Submissions) List(ctx context.Context) (Week, []models.MemeEntry, error) {
	week := s.clock.Current()
	memes, err := s.store.ListMemes(ctx, week.Year, week.Number)
	if err != nil {
		return week, nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return week, memes, nil
}

func normalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > maxURLLength {
		return "", ErrInvalidURL
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", ErrInvalidURL
	}
	return u.String(), nil
}
