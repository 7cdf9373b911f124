package models

import (
	"errors"
	"time"
)

// ErrWebhookSettled is returned when a delivery result arrives for a webhook
// that is gone or was already delivered by another sender.
var ErrWebhookSettled = errors.New("webhook already settled")

// WebhookEvent is the type of a ledger notification
type WebhookEvent string

const (
	EventPlanCreated  WebhookEvent = "plan_created"
	EventDecisionMade WebhookEvent = "decision_made"
)

// WebhookStatus tracks outbox delivery
type WebhookStatus string

const (
	WebhookPending   WebhookStatus = "pending"
	WebhookRetrying  WebhookStatus = "retrying"
	WebhookDelivered WebhookStatus = "delivered"
	WebhookFailed    WebhookStatus = "failed"
)

// Webhook represents an outbound ledger notification stored in the outbox
type Webhook struct {
	ID            string        `db:"id"`
	EventType     WebhookEvent  `db:"event_type"`
	Payload       []byte        `db:"payload"`
	TargetURL     string        `db:"target_url"`
	Status        WebhookStatus `db:"status"`
	Attempts      int           `db:"attempts"`
	LastError     *string       `db:"last_error"`
	LastAttemptAt *time.Time    `db:"last_attempt_at"`
	CreatedAt     time.Time     `db:"created_at"`
}

// MarkAttempt records one delivery attempt. A failed attempt leaves the
// webhook retrying until maxAttempts is reached.
func (w *Webhook) MarkAttempt(at time.Time, deliveryErr error, maxAttempts int) {
	w.Attempts++
	w.LastAttemptAt = &at
	if deliveryErr == nil {
		w.Status = WebhookDelivered
		w.LastError = nil
		return
	}
	msg := deliveryErr.Error()
	w.LastError = &msg
	if w.Attempts >= maxAttempts {
		w.Status = WebhookFailed
	} else {
		w.Status = WebhookRetrying
	}
}

// PlanCreatedPayload is the body of a plan_created event
type PlanCreatedPayload struct {
	Event      WebhookEvent `json:"event"`
	EventID    string       `json:"event_id"`
	PlanID     string       `json:"plan_id"`
	DecisionID string       `json:"decision_id"`
	UserID     string       `json:"user_id"`
	TotalCents int64        `json:"total_cents"`
	CreatedAt  time.Time    `json:"created_at"`
}

// DecisionMadePayload is the body of a decision_made event
type DecisionMadePayload struct {
	Event       WebhookEvent `json:"event"`
	EventID     string       `json:"event_id"`
	DecisionID  string       `json:"decision_id"`
	UserID      string       `json:"user_id"`
	Approved    bool         `json:"approved"`
	AmountCents int64        `json:"amount_cents"`
	RiskScore   int          `json:"risk_score"`
}
