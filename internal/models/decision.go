package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DecisionRecord represents a persisted credit decision
type DecisionRecord struct {
	ID                 string          `db:"id"`
	UserID             string          `db:"user_id"`
	RequestedCents     int64           `db:"requested_cents"`
	Approved           bool            `db:"approved"`
	CreditLimitCents   int64           `db:"credit_limit_cents"`
	AmountGrantedCents int64           `db:"amount_granted_cents"`
	RiskScore          int             `db:"risk_score"`
	Outcome            string          `db:"outcome"`
	ScoreBand          string          `db:"score_band"`
	AvgDailyBalance    decimal.Decimal `db:"avg_daily_balance"`
	IncomeRatio        decimal.Decimal `db:"income_ratio"`
	NSFCount           int             `db:"nsf_count"`
	IncomeConsistency  float64         `db:"income_consistency"`
	TransactionCount   int             `db:"transaction_count"`
	HistoryDays        int             `db:"history_days"`
	GigBonusApplied    bool            `db:"gig_bonus_applied"`
	PlanID             *string         `db:"plan_id"`
	CreatedAt          time.Time       `db:"created_at"`
}

// ScoreBand labels a credit limit with the dollar bucket used in reporting
func ScoreBand(limitCents int64) string {
	switch {
	case limitCents <= 0:
		return "0"
	case limitCents <= 10000:
		return "100"
	case limitCents <= 20000:
		return "100-200"
	case limitCents <= 30000:
		return "200-300"
	case limitCents <= 40000:
		return "300-400"
	case limitCents <= 50000:
		return "400-500"
	default:
		return "500-600"
	}
}
