package models

import "time"

// Plan represents the repayment plan opened for an approved decision
type Plan struct {
	ID         string    `db:"id"`
	DecisionID string    `db:"decision_id"`
	UserID     string    `db:"user_id"`
	TotalCents int64     `db:"total_cents"`
	CreatedAt  time.Time `db:"created_at"`
}
