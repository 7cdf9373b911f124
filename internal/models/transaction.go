package models

import (
	"time"

	"github.com/Dan9191/bnpl-service/internal/scoring"
)

// TransactionType is the direction of a bank transaction
type TransactionType string

const (
	TransactionCredit TransactionType = "credit"
	TransactionDebit  TransactionType = "debit"
)

// BankTransaction represents a transaction returned by the bank-data API
type BankTransaction struct {
	Date         time.Time       `json:"date"`
	AmountCents  int64           `json:"amount_cents"`
	BalanceCents *int64          `json:"balance_cents,omitempty"`
	Type         TransactionType `json:"type"`
	NSF          bool            `json:"nsf"`
	Description  string          `json:"description,omitempty"`
}

// ToScoring converts the transaction into the scoring engine's input type
func (t BankTransaction) ToScoring() scoring.Transaction {
	return scoring.Transaction{
		Date:        t.Date,
		AmountCents: t.AmountCents,
		IsNSF:       t.NSF,
		Description: t.Description,
	}
}

// OpeningBalanceCents derives the balance before the first transaction from
// the bank-reported running balance. Returns 0 when the first transaction
// carries no balance.
func OpeningBalanceCents(txns []BankTransaction) int64 {
	if len(txns) == 0 {
		return 0
	}
	first := txns[0]
	for _, t := range txns[1:] {
		if t.Date.Before(first.Date) {
			first = t
		}
	}
	if first.BalanceCents == nil {
		return 0
	}
	return *first.BalanceCents - first.AmountCents
}
