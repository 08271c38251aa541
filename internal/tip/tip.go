// Package tip builds Solana tip transfer descriptions for the frontend
// wallet to sign and send.
package tip

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

const (
	// DefaultPercentage applies when a request names no tip percentage.
	DefaultPercentage = 5.0

	// PlaceholderWallet receives tips when TIP_WALLET is not configured.
	PlaceholderWallet = "placeholder-tip-wallet"

	SystemProgramID = "11111111111111111111111111111111"
)

var (
	ErrMissingSender     = errors.New("sender public key is required")
	ErrInvalidSender     = errors.New("invalid sender public key")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidPercentage = errors.New("tip percentage must be between 0 and 100")
	ErrTipTooSmall       = errors.New("tip amount too small")
)

type Request struct {
	SenderPublicKey string   `json:"sender_public_key"`
	AmountLamports  int64    `json:"amount_lamports"`
	TipPercentage   *float64 `json:"tip_percentage,omitempty"`
}

type AccountMeta struct {
	Pubkey     string `json:"pubkey"`
	IsSigner   bool   `json:"isSigner"`
	IsWritable bool   `json:"isWritable"`
}

type Instruction struct {
	ProgramID string        `json:"programId"`
	Keys      []AccountMeta `json:"keys"`
	Data      string        `json:"data"`
	Lamports  int64         `json:"lamports"`
}

// Transaction is an unsigned transfer. The wallet adds a recent blockhash
// before signing.
type Transaction struct {
	FeePayer     string        `json:"feePayer"`
	Instructions []Instruction `json:"instructions"`
}

type Response struct {
	Transaction Transaction `json:"transaction"`
	TipAmount   int64       `json:"tip_amount"`
}

type Builder struct {
	wallet string
}

// NewBuilder sends tips to wallet, or to PlaceholderWallet when it is empty.
func NewBuilder(wallet string) *Builder {
	wallet = strings.TrimSpace(wallet)
	if wallet == "" {
		wallet = PlaceholderWallet
	}
	return &Builder{wallet: wallet}
}

func (b *Builder) Wallet() string {
	return b.wallet
}

func (b *Builder) Placeholder() bool {
	return b.wallet == PlaceholderWallet
}

// Amount returns the tip in whole lamports, rounded down.
func Amount(lamports int64, percentage float64) int64 {
	return int64(math.Floor(float64(lamports) * percentage / 100))
}

func (b *Builder) Build(r Request) (*Response, error) {
	sender := strings.TrimSpace(r.SenderPublicKey)
	if sender == "" {
		return nil, ErrMissingSender
	}
	if !isPublicKey(sender) {
		return nil, ErrInvalidSender
	}
	if r.AmountLamports <= 0 {
		return nil, ErrInvalidAmount
	}

	pct := DefaultPercentage
	if r.TipPercentage != nil && *r.TipPercentage != 0 {
		pct = *r.TipPercentage
	}
	if pct < 0 || pct > 100 || math.IsNaN(pct) {
		return nil, ErrInvalidPercentage
	}

	amount := Amount(r.AmountLamports, pct)
	if amount <= 0 {
		return nil, ErrTipTooSmall
	}

	return &Response{
		Transaction: Transaction{
			FeePayer: sender,
			Instructions: []Instruction{{
				ProgramID: SystemProgramID,
				Keys: []AccountMeta{
					{Pubkey: sender, IsSigner: true, IsWritable: true},
					{Pubkey: b.wallet, IsSigner: false, IsWritable: true},
				},
				Data:     fmt.Sprintf("Transfer: %d lamports", amount),
				Lamports: amount,
			}},
		},
		TipAmount: amount,
	}, nil
}

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// isPublicKey checks the shape of a base58 encoded ed25519 key.
func isPublicKey(s string) bool {
	if len(s) < 32 || len(s) > 44 {
		return false
	}
	for _, r := range s {
		if !strings.ContainsRune(base58Alphabet, r) {
			return false
		}
	}
	return true
}
