package pledge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lithammer/shortuuid"
	"github.com/wantamink/pledgeservice/internal/models"
	"github.com/wantamink/pledgeservice/internal/store"
	"github.com/wantamink/pledgeservice/internal/telemetry"
	"go.uber.org/zap"
)

var ErrDatabaseUnavailable = errors.New("database unavailable")

// Store is the persistence the Recorder needs.
type Store interface {
	InsertPledge(ctx context.Context, p *models.Pledge) error
	UpsertVerifiedUser(ctx context.Context, u *models.VerifiedUser) error
}

type Outcome int

const (
	OutcomeRecorded Outcome = iota
	// OutcomeDuplicateTransaction is a redelivered notification.
	OutcomeDuplicateTransaction
	// OutcomeAlreadyPledged is a new payment from a phone that already has a
	// pledge on record.
	OutcomeAlreadyPledged
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRecorded:
		return "recorded"
	case OutcomeDuplicateTransaction:
		return "duplicate_transaction"
	case OutcomeAlreadyPledged:
		return "already_pledged"
	}
	return "unknown"
}

type Recorder struct {
	store   Store
	hasher  *PhoneHasher
	logger  *zap.Logger
	metrics *telemetry.Metrics
	now     func() time.Time
}

func NewRecorder(s Store, hasher *PhoneHasher, logger *zap.Logger, metrics *telemetry.Metrics) *Recorder {
	return &Recorder{
		store:   s,
		hasher:  hasher,
		logger:  logger.Named("pledge"),
		metrics: metrics,
		now:     time.Now,
	}
}

// Record stores the pledge for a verified notification exactly once per
// transaction and marks the payer verified. Only ErrDatabaseUnavailable is
// returned as an error; duplicates are reported through the Outcome.
func (r *Recorder) Record(ctx context.Context, v Verified) (Outcome, error) {
	phoneHash := r.hasher.Digest(v.PhoneNumber)
	now := r.now().UTC()
	log := r.logger.With(
		zap.String("transaction_id", v.TransactionID),
		zap.String("phone_hash", phoneHash),
		zap.String("county", v.County),
	)

	p := &models.Pledge{
		ID:            shortuuid.New(),
		CreatedAt:     now,
		PhoneHash:     phoneHash,
		County:        v.County,
		TransactionID: v.TransactionID,
		Amount:        v.Amount,
		PaymentMethod: "mpesa",
		Verified:      true,
	}

	outcome := OutcomeRecorded
	err := r.store.InsertPledge(ctx, p)
	switch {
	case err == nil:
		log.Info("pledge recorded", zap.String("pledge_id", p.ID))
	case errors.Is(err, store.ErrDuplicateTransaction):
		log.Info("duplicate transaction ignored")
		return OutcomeDuplicateTransaction, nil
	case errors.Is(err, store.ErrPhoneAlreadyPledged):
		log.Info("phone already pledged, refreshing verification")
		outcome = OutcomeAlreadyPledged
	default:
		log.Error("failed to record pledge", zap.Error(err))
		return outcome, fmt.Errorf("%w: %w", ErrDatabaseUnavailable, err)
	}

	user := &models.VerifiedUser{
		PhoneHash:         phoneHash,
		County:            v.County,
		LastTransactionID: v.TransactionID,
		VerifiedAt:        now,
	}
	if err := r.store.UpsertVerifiedUser(ctx, user); err != nil {
		r.metrics.VerifiedUpsertFailed()
		log.Warn("pledge stored but verified user upsert failed", zap.Error(err))
	}
	return outcome, nil
}
