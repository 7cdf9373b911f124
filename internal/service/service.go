package service

import (
	"context"
	"errors"
	"strings"

	"github.com/Dan9191/bnpl-service/internal/models"
	"github.com/Dan9191/bnpl-service/internal/scoring"
	"github.com/Dan9191/bnpl-service/internal/utils/email"
)

var (
	// ErrInvalidRequest marks caller errors; see ValidationError
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNotFound is returned when a decision or plan does not exist
	ErrNotFound = errors.New("not found")
)

// ValidationError lists everything wrong with a request
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Problems, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidRequest
}

// DecisionStore persists decisions together with their plan and outbox rows
type DecisionStore interface {
	SaveDecisionWithPlan(ctx context.Context, d *models.DecisionRecord, p *models.Plan, hooks []*models.Webhook) error
	GetDecision(ctx context.Context, id string) (*models.DecisionRecord, error)
	ListDecisionsByUser(ctx context.Context, userID string, limit int) ([]models.DecisionRecord, error)
	UpdateWebhook(ctx context.Context, w *models.Webhook) error
}

// PlanStore reads plans
type PlanStore interface {
	GetPlan(ctx context.Context, id string) (*models.Plan, error)
}

// TransactionSource fetches a user's bank history
type TransactionSource interface {
	GetTransactions(ctx context.Context, userID string) ([]models.BankTransaction, error)
}

// TransactionCache stores histories by user pseudonym
type TransactionCache interface {
	Get(ctx context.Context, pseudonym string) ([]models.BankTransaction, bool)
	Set(ctx context.Context, pseudonym string, txns []models.BankTransaction)
}

// WebhookSender delivers one outbox webhook
type WebhookSender interface {
	Deliver(ctx context.Context, w *models.Webhook) error
	URL() string
}

// EngineSource returns the scoring engine to use for the next decision
type EngineSource interface {
	Engine() *scoring.Engine
}

// Notifier sends the customer a decision notification
type Notifier interface {
	SendDecisionNotification(to string, d email.Decision) error
}
