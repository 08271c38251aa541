package store_test

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wantamink/pledgeservice/internal/models"
	"github.com/wantamink/pledgeservice/internal/store"
	"github.com/wantamink/pledgeservice/internal/store/storetest"
	"github.com/wantamink/pledgeservice/internal/telemetry"
)

var now = time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)

func pledge(id, phoneHash, txID, county string) *models.Pledge {
	return &models.Pledge{
		ID:            id,
		CreatedAt:     now,
		PhoneHash:     phoneHash,
		County:        county,
		TransactionID: txID,
		Amount:        1,
		PaymentMethod: "mpesa",
		Verified:      true,
	}
}

func TestInsertPledgeConflicts(t *testing.T) {
	ctx := context.Background()
	s, _ := storetest.New(t)

	require.NoError(t, s.InsertPledge(ctx, pledge("p1", "hash-a", "T1", "Nairobi")))
	assert.ErrorIs(t, s.InsertPledge(ctx, pledge("p2", "hash-b", "T1", "Nairobi")), store.ErrDuplicateTransaction)
	assert.ErrorIs(t, s.InsertPledge(ctx, pledge("p3", "hash-a", "T2", "Kisumu")), store.ErrPhoneAlreadyPledged)
	require.NoError(t, s.InsertPledge(ctx, pledge("p4", "hash-b", "T3", "Kisumu")))
}

func TestVerifiedUsers(t *testing.T) {
	ctx := context.Background()
	s, _ := storetest.New(t)

	_, err := s.FindVerifiedUser(ctx, "hash-a")
	assert.ErrorIs(t, err, store.ErrNotFound)
	ok, err := s.IsVerified(ctx, "hash-a")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.UpsertVerifiedUser(ctx, &models.VerifiedUser{PhoneHash: "hash-a", County: "Nairobi", LastTransactionID: "T1", VerifiedAt: now}))
	require.NoError(t, s.UpsertVerifiedUser(ctx, &models.VerifiedUser{PhoneHash: "hash-a", County: "Kisumu", LastTransactionID: "T2", VerifiedAt: now.Add(time.Hour)}))

	u, err := s.FindVerifiedUser(ctx, "hash-a")
	require.NoError(t, err)
	assert.Equal(t, "Kisumu", u.County)
	assert.Equal(t, "T2", u.LastTransactionID)

	ok, err = s.IsVerified(ctx, "hash-a")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReconcileVerifiedUsers(t *testing.T) {
	ctx := context.Background()
	s, _ := storetest.New(t)

	require.NoError(t, s.InsertPledge(ctx, pledge("p1", "hash-a", "T1", "Nairobi")))
	require.NoError(t, s.InsertPledge(ctx, pledge("p2", "hash-b", "T2", "Mombasa")))
	require.NoError(t, s.UpsertVerifiedUser(ctx, &models.VerifiedUser{PhoneHash: "hash-a", County: "Nairobi", LastTransactionID: "T1", VerifiedAt: now}))

	n, err := s.ReconcileVerifiedUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	u, err := s.FindVerifiedUser(ctx, "hash-b")
	require.NoError(t, err)
	assert.Equal(t, "Mombasa", u.County)
	assert.Equal(t, "T2", u.LastTransactionID)

	n, err = s.ReconcileVerifiedUsers(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func meme(id, submitter string, week int) *models.MemeEntry {
	return &models.MemeEntry{ID: id, CreatedAt: now, SubmitterID: submitter, URL: "https://example.com/" + id, Year: 2024, Week: week}
}

func vote(voter, memeID string, week int) *models.MemeVote {
	return &models.MemeVote{CreatedAt: now, VoterID: voter, MemeID: memeID, Year: 2024, Week: week}
}

func TestCreateMemeOncePerWeek(t *testing.T) {
	ctx := context.Background()
	s, _ := storetest.New(t)

	require.NoError(t, s.CreateMeme(ctx, meme("m1", "alice", 23)))
	assert.ErrorIs(t, s.CreateMeme(ctx, meme("m2", "alice", 23)), store.ErrDuplicateSubmission)
	require.NoError(t, s.CreateMeme(ctx, meme("m3", "alice", 24)))

	_, err := s.FindMeme(ctx, "m2")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestApplyVoteAtomic(t *testing.T) {
	ctx := context.Background()
	s, db := storetest.New(t)
	require.NoError(t, s.CreateMeme(ctx, meme("m1", "alice", 23)))

	require.NoError(t, s.ApplyVote(ctx, vote("bob", "m1", 23)))
	assert.ErrorIs(t, s.ApplyVote(ctx, vote("bob", "m1", 23)), store.ErrAlreadyVoted)

	// the guarded increment rejects self votes, stale memes and missing memes,
	// and the vote row is rolled back with it
	assert.ErrorIs(t, s.ApplyVote(ctx, vote("alice", "m1", 23)), store.ErrVoteRejected)
	assert.ErrorIs(t, s.ApplyVote(ctx, vote("carol", "m1", 24)), store.ErrVoteRejected)
	assert.ErrorIs(t, s.ApplyVote(ctx, vote("dave", "missing", 23)), store.ErrVoteRejected)

	var votes int64
	require.NoError(t, db.Model(&models.MemeVote{}).Count(&votes).Error)
	assert.Equal(t, int64(1), votes)

	m, err := s.FindMeme(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 1, m.VoteCount)

	v, err := s.FindVote(ctx, "bob", 2024, 23)
	require.NoError(t, err)
	assert.Equal(t, "m1", v.MemeID)
	_, err = s.FindVote(ctx, "bob", 2024, 24)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestApplyVoteTwoPhaseKeepsLedger(t *testing.T) {
	ctx := context.Background()
	metrics := telemetry.NewMetrics()
	s, db := storetest.New(t, store.WithTwoPhaseVotes(), store.WithMetrics(metrics))
	require.NoError(t, s.CreateMeme(ctx, meme("m1", "alice", 23)))

	require.NoError(t, s.ApplyVote(ctx, vote("bob", "m1", 23)))
	// the increment matches nothing, the vote row stays
	require.NoError(t, s.ApplyVote(ctx, vote("alice", "m1", 23)))
	assert.ErrorIs(t, s.ApplyVote(ctx, vote("bob", "m1", 23)), store.ErrAlreadyVoted)

	var votes int64
	require.NoError(t, db.Model(&models.MemeVote{}).Count(&votes).Error)
	assert.Equal(t, int64(2), votes)

	m, err := s.FindMeme(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 1, m.VoteCount)

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), "pledgeservice_vote_counter_increment_failures_total 1")

	n, err := s.RecountVotes(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	m, err = s.FindMeme(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 2, m.VoteCount)
}

func TestListMemes(t *testing.T) {
	ctx := context.Background()
	s, _ := storetest.New(t)
	require.NoError(t, s.CreateMeme(ctx, meme("m1", "alice", 23)))
	require.NoError(t, s.CreateMeme(ctx, meme("m2", "bob", 23)))
	require.NoError(t, s.CreateMeme(ctx, meme("m3", "carol", 22)))
	require.NoError(t, s.ApplyVote(ctx, vote("carol", "m2", 23)))

	memes, err := s.ListMemes(ctx, 2024, 23)
	require.NoError(t, err)
	require.Len(t, memes, 2)
	assert.Equal(t, "m2", memes[0].ID)
	assert.Equal(t, "m1", memes[1].ID)

	memes, err = s.ListMemes(ctx, 2025, 23)
	require.NoError(t, err)
	assert.NotNil(t, memes)
	assert.Empty(t, memes)
}

func TestRateLimitRecords(t *testing.T) {
	ctx := context.Background()
	s, _ := storetest.New(t)

	require.NoError(t, s.AddRequest(ctx, "10.0.0.1", "meme_vote", now.Add(-2*time.Hour)))
	require.NoError(t, s.AddRequest(ctx, "10.0.0.1", "meme_vote", now.Add(-30*time.Minute)))
	require.NoError(t, s.AddRequest(ctx, "10.0.0.1", "meme_submit", now.Add(-30*time.Minute)))
	require.NoError(t, s.AddRequest(ctx, "10.0.0.2", "meme_vote", now))

	n, err := s.CountRequestsSince(ctx, "10.0.0.1", "meme_vote", now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	deleted, err := s.PruneRequestsBefore(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	n, err = s.CountRequestsSince(ctx, "10.0.0.1", "meme_vote", now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
