package models

import (
	"time"
)

// Pledge is a civic pledge created from a verified one shilling payment.
// Rows are append-only.
type Pledge struct {
	ID            string    `gorm:"primaryKey;size:32" json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	PhoneHash     string    `gorm:"size:64;not null;uniqueIndex:idx_pledges_phone_hash" json:"-"`
	County        string    `gorm:"size:32;not null;index" json:"county"`
	TransactionID string    `gorm:"size:64;not null;uniqueIndex:idx_pledges_transaction_id" json:"transaction_id"`
	Amount        float64   `gorm:"not null" json:"amount"`
	PaymentMethod string    `gorm:"size:16;not null" json:"payment_method"`
	Verified      bool      `gorm:"not null" json:"verified"`
}

func (Pledge) TableName() string { return "pledges" }

// VerifiedUser marks a phone digest as having completed a pledge payment.
type VerifiedUser struct {
	PhoneHash         string    `gorm:"primaryKey;size:64" json:"-"`
	County            string    `gorm:"size:32;not null" json:"county"`
	LastTransactionID string    `gorm:"size:64;not null" json:"-"`
	VerifiedAt        time.Time `gorm:"not null" json:"verified_at"`
}

func (VerifiedUser) TableName() string { return "verified_users" }

type MemeEntry struct {
	ID          string    `gorm:"primaryKey;size:32" json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	SubmitterID string    `gorm:"size:64;not null;uniqueIndex:idx_memes_submitter_week,priority:1" json:"-"`
	URL         string    `gorm:"size:2048;not null" json:"url"`
	Year        int       `gorm:"not null;uniqueIndex:idx_memes_submitter_week,priority:2;index:idx_memes_week,priority:1" json:"year"`
	Week        int       `gorm:"not null;uniqueIndex:idx_memes_submitter_week,priority:3;index:idx_memes_week,priority:2" json:"week"`
	VoteCount   int       `gorm:"not null" json:"vote_count"`
}

func (MemeEntry) TableName() string { return "memes" }

// MemeVote is the authoritative vote ledger. MemeEntry.VoteCount is derived
// from it and can be recomputed.
type MemeVote struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	CreatedAt time.Time `json:"created_at"`
	VoterID   string    `gorm:"size:64;not null;uniqueIndex:idx_meme_votes_voter_week,priority:1" json:"voter_id"`
	MemeID    string    `gorm:"size:32;not null;index" json:"meme_id"`
	Year      int       `gorm:"not null;uniqueIndex:idx_meme_votes_voter_week,priority:2" json:"year"`
	Week      int       `gorm:"not null;uniqueIndex:idx_meme_votes_voter_week,priority:3" json:"week"`
}

func (MemeVote) TableName() string { return "meme_votes" }

type RateLimitRecord struct {
	ID        uint      `gorm:"primaryKey"`
	ClientKey string    `gorm:"size:64;not null;index:idx_rate_limits_lookup,priority:1"`
	Endpoint  string    `gorm:"size:32;not null;index:idx_rate_limits_lookup,priority:2"`
	CreatedAt time.Time `gorm:"not null;index:idx_rate_limits_lookup,priority:3;index"`
}

func (RateLimitRecord) TableName() string { return "rate_limits" }

type CountyCount struct {
	County      string `json:"county"`
	PledgeCount int64  `json:"pledge_count"`
}

// All lists every model for AutoMigrate.
func All() []any {
	return []any{
		&Pledge{},
		&VerifiedUser{},
		&MemeEntry{},
		&MemeVote{},
		&RateLimitRecord{},
	}
}
