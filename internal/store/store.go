package store

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"github.com/wantamink/pledgeservice/internal/telemetry"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrNotFound             = errors.New("record not found")
	ErrDuplicateTransaction = errors.New("transaction already recorded")
	ErrPhoneAlreadyPledged  = errors.New("phone already pledged")
	ErrDuplicateSubmission  = errors.New("meme already submitted this week")
	ErrAlreadyVoted         = errors.New("already voted this week")
	// ErrVoteRejected is returned when the guarded counter increment matched
	// no meme: it vanished, moved weeks, or belongs to the voter.
	ErrVoteRejected = errors.New("vote rejected by meme guard")
)

// Store is the gorm-backed persistence layer. It works against postgres in
// production and sqlite locally and in tests.
type Store struct {
	db      *gorm.DB
	logger  *zap.Logger
	metrics *telemetry.Metrics

	twoPhaseVotes bool
}

type Option func(*Store)

// WithTwoPhaseVotes applies votes as an insert followed by a separate
// counter increment instead of a single transaction.
func WithTwoPhaseVotes() Option {
	return func(s *Store) { s.twoPhaseVotes = true }
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

func New(db *gorm.DB, logger *zap.Logger, opts ...Option) *Store {
	s := &Store{
		db:     db,
		logger: logger.Named("store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) DB() *gorm.DB {
	return s.db
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
