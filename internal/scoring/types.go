// Package scoring turns a bank-transaction history and a requested amount
// into a credit decision: approval, a 0-100 risk score and a credit-limit
// tier. Everything in this package is pure. It performs no I/O and holds no
// mutable state, so an Engine can be shared by any number of goroutines.
package scoring

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is a single bank transaction. Positive amounts are inflows,
// negative amounts are outflows. Only the calendar day of Date matters.
type Transaction struct {
	Date        time.Time
	AmountCents int64
	IsNSF       bool
	Description string
}

// RiskFactors are the raw behavioural signals extracted from a history.
type RiskFactors struct {
	AvgDailyBalance   decimal.Decimal // currency units, may be negative
	IncomeSpendRatio  decimal.Decimal
	NSFCount          int
	IncomeConsistency float64 // 0 = highly irregular, 1 = perfectly regular
	TransactionCount  int
	HistoryDays       int
}

// FileStatus is the thin-file classification of a history.
type FileStatus int

const (
	Normal FileStatus = iota
	ThinFileClean
	ThinFileNegative
)

func (s FileStatus) String() string {
	switch s {
	case ThinFileClean:
		return "thin_file_clean"
	case ThinFileNegative:
		return "thin_file_negative"
	default:
		return "normal"
	}
}

// Outcome records which branch of the decision flow produced a Decision.
type Outcome string

const (
	OutcomeScored           Outcome = "scored"
	OutcomeThinFileClean    Outcome = "thin_file_clean"
	OutcomeThinFileNegative Outcome = "thin_file_negative"
	OutcomeNoHistory        Outcome = "no_history"
)

// Request is the input to Engine.Decide.
type Request struct {
	// UserID is carried through for audit only.
	UserID               string
	AmountRequestedCents int64
	Transactions         []Transaction
	// OpeningBalanceCents is the balance before the first transaction.
	// Zero when the caller has no balance information.
	OpeningBalanceCents int64
}

// Decision is the result of scoring one request.
type Decision struct {
	UserID             string
	Approved           bool
	RiskScore          int
	CreditLimitCents   int64
	AmountGrantedCents int64
	Outcome            Outcome
	GigBonusApplied    bool
	Factors            RiskFactors
}
