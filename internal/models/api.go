package models

import "time"

// DecisionRequest is the body of POST /v1/decision
type DecisionRequest struct {
	UserID               string `json:"user_id"`
	AmountCentsRequested int64  `json:"amount_cents_requested"`
	Email                string `json:"email,omitempty"`
}

// DecisionFactors are the risk factors reported with a decision
type DecisionFactors struct {
	AvgDailyBalance float64 `json:"avg_daily_balance"`
	IncomeRatio     float64 `json:"income_ratio"`
	NSFCount        int     `json:"nsf_count"`
	RiskScore       int     `json:"risk_score"`
}

// DecisionResponse is returned by POST /v1/decision and GET /v1/decision/{id}
type DecisionResponse struct {
	DecisionID         string          `json:"decision_id"`
	UserID             string          `json:"user_id,omitempty"`
	Approved           bool            `json:"approved"`
	CreditLimitCents   int64           `json:"credit_limit_cents"`
	AmountGrantedCents int64           `json:"amount_granted_cents"`
	PlanID             *string         `json:"plan_id"`
	Outcome            string          `json:"outcome,omitempty"`
	DecisionFactors    DecisionFactors `json:"decision_factors"`
	CreatedAt          *time.Time      `json:"created_at,omitempty"`
}

// DecisionSummary is one entry of a user's decision history
type DecisionSummary struct {
	DecisionID         string    `json:"decision_id"`
	Approved           bool      `json:"approved"`
	CreditLimitCents   int64     `json:"credit_limit_cents"`
	AmountGrantedCents int64     `json:"amount_granted_cents"`
	CreatedAt          time.Time `json:"created_at"`
}

// DecisionHistory is returned by GET /v1/decision/history
type DecisionHistory struct {
	UserID    string            `json:"user_id"`
	Decisions []DecisionSummary `json:"decisions"`
}

// PlanResponse is returned by GET /v1/plan/{id}
type PlanResponse struct {
	PlanID     string    `json:"plan_id"`
	DecisionID string    `json:"decision_id"`
	UserID     string    `json:"user_id"`
	TotalCents int64     `json:"total_cents"`
	CreatedAt  time.Time `json:"created_at"`
}

// ErrorBody is the JSON shape of every API error
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes an API error
type ErrorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}
