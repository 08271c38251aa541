package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wantamink/pledgeservice/internal/models"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		TranslateError:         true,
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	return New(db, zap.NewNop()), mock
}

func testPledge() *models.Pledge {
	return &models.Pledge{
		ID:            "p1",
		CreatedAt:     time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC),
		PhoneHash:     "hash-a",
		County:        "Nairobi",
		TransactionID: "T1",
		Amount:        1,
		PaymentMethod: "mpesa",
		Verified:      true,
	}
}

func TestPostgresDuplicateTransaction(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO "pledges"`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "idx_pledges_transaction_id"})
	mock.ExpectQuery(`SELECT \* FROM "pledges" WHERE transaction_id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "transaction_id"}).AddRow("p0", "T1"))

	err := s.InsertPledge(context.Background(), testPledge())
	assert.ErrorIs(t, err, ErrDuplicateTransaction)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDuplicatePhone(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO "pledges"`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "idx_pledges_phone_hash"})
	mock.ExpectQuery(`SELECT \* FROM "pledges" WHERE transaction_id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "transaction_id"}))

	err := s.InsertPledge(context.Background(), testPledge())
	assert.ErrorIs(t, err, ErrPhoneAlreadyPledged)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUnavailable(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO "pledges"`).WillReturnError(errors.New("dial tcp: connection refused"))

	err := s.InsertPledge(context.Background(), testPledge())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDuplicateTransaction)
	assert.NotErrorIs(t, err, ErrPhoneAlreadyPledged)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresVoteRolledBackOnRejectedIncrement(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "meme_votes"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectExec(`UPDATE "memes" SET "vote_count"=vote_count \+ \$1`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.ApplyVote(context.Background(), &models.MemeVote{
		VoterID: "alice", MemeID: "m1", Year: 2024, Week: 23,
	})
	assert.ErrorIs(t, err, ErrVoteRejected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(gorm.ErrDuplicatedKey))
	assert.True(t, isUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("boom")))
}
