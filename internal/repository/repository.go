package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/Dan9191/bnpl-service/internal/models"
)

var (
	// ErrNotFound is returned when a row does not exist
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned on a unique-constraint violation
	ErrDuplicate = errors.New("record already exists")
)

const uniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS bnpl_decisions (
	id                   UUID PRIMARY KEY,
	user_id              VARCHAR(255) NOT NULL,
	requested_cents      BIGINT NOT NULL,
	approved             BOOLEAN NOT NULL,
	credit_limit_cents   BIGINT NOT NULL,
	amount_granted_cents BIGINT NOT NULL,
	risk_score           INTEGER NOT NULL,
	outcome              VARCHAR(32) NOT NULL,
	score_band           VARCHAR(16) NOT NULL,
	avg_daily_balance    NUMERIC(14,2) NOT NULL,
	income_ratio         NUMERIC(12,4) NOT NULL,
	nsf_count            INTEGER NOT NULL,
	income_consistency   DOUBLE PRECISION NOT NULL,
	transaction_count    INTEGER NOT NULL,
	history_days         INTEGER NOT NULL,
	gig_bonus_applied    BOOLEAN NOT NULL DEFAULT FALSE,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_bnpl_decisions_user ON bnpl_decisions (user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS bnpl_plans (
	id          UUID PRIMARY KEY,
	decision_id UUID NOT NULL UNIQUE REFERENCES bnpl_decisions (id) ON DELETE CASCADE,
	user_id     VARCHAR(255) NOT NULL,
	total_cents BIGINT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_bnpl_plans_user ON bnpl_plans (user_id);

CREATE TABLE IF NOT EXISTS outbound_webhooks (
	id              UUID PRIMARY KEY,
	event_type      VARCHAR(32) NOT NULL,
	payload         JSONB NOT NULL,
	target_url      TEXT NOT NULL,
	status          VARCHAR(16) NOT NULL DEFAULT 'pending',
	attempts        INTEGER NOT NULL DEFAULT 0,
	last_error      TEXT,
	last_attempt_at TIMESTAMPTZ,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_outbound_webhooks_status ON outbound_webhooks (status, created_at);
`

const decisionColumns = `
	d.id, d.user_id, d.requested_cents, d.approved, d.credit_limit_cents,
	d.amount_granted_cents, d.risk_score, d.outcome, d.score_band,
	d.avg_daily_balance, d.income_ratio, d.nsf_count, d.income_consistency,
	d.transaction_count, d.history_days, d.gig_bonus_applied, p.id AS plan_id, d.created_at`

const webhookColumns = `
	id, event_type, payload, target_url, status, attempts, last_error, last_attempt_at, created_at`

// Repository provides database operations
type Repository struct {
	db *sqlx.DB
}

// NewRepository initializes a new repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// Migrate creates the tables used by the service if they do not exist
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// Ping checks database connectivity
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// SaveDecisionWithPlan stores a decision, its plan (if any) and the webhooks
// announcing them in one transaction, so a committed decision always has its
// notifications queued.
func (r *Repository) SaveDecisionWithPlan(ctx context.Context, d *models.DecisionRecord, p *models.Plan, hooks []*models.Webhook) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO bnpl_decisions (
			id, user_id, requested_cents, approved, credit_limit_cents, amount_granted_cents,
			risk_score, outcome, score_band, avg_daily_balance, income_ratio, nsf_count,
			income_consistency, transaction_count, history_days, gig_bonus_applied, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, CURRENT_TIMESTAMP)
		RETURNING created_at`
	err = tx.QueryRowxContext(ctx, query,
		d.ID, d.UserID, d.RequestedCents, d.Approved, d.CreditLimitCents, d.AmountGrantedCents,
		d.RiskScore, d.Outcome, d.ScoreBand, d.AvgDailyBalance, d.IncomeRatio, d.NSFCount,
		d.IncomeConsistency, d.TransactionCount, d.HistoryDays, d.GigBonusApplied).
		Scan(&d.CreatedAt)
	if err != nil {
		return wrapWriteErr("decision", err)
	}

	if p != nil {
		query = `
			INSERT INTO bnpl_plans (id, decision_id, user_id, total_cents, created_at)
			VALUES ($1, $2, $3, $4, CURRENT_TIMESTAMP)
			RETURNING created_at`
		if err := tx.QueryRowxContext(ctx, query, p.ID, p.DecisionID, p.UserID, p.TotalCents).Scan(&p.CreatedAt); err != nil {
			return wrapWriteErr("plan", err)
		}
		d.PlanID = &p.ID
	}

	for _, w := range hooks {
		query = `
			INSERT INTO outbound_webhooks (id, event_type, payload, target_url, status, attempts, created_at)
			VALUES ($1, $2, $3, $4, $5, 0, CURRENT_TIMESTAMP)
			RETURNING created_at`
		err := tx.QueryRowxContext(ctx, query, w.ID, w.EventType, string(w.Payload), w.TargetURL, w.Status).
			Scan(&w.CreatedAt)
		if err != nil {
			return wrapWriteErr("webhook", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit decision: %w", err)
	}
	return nil
}

// GetDecision retrieves a decision by id
func (r *Repository) GetDecision(ctx context.Context, id string) (*models.DecisionRecord, error) {
	rec := &models.DecisionRecord{}
	query := `SELECT ` + decisionColumns + `
		FROM bnpl_decisions d
		LEFT JOIN bnpl_plans p ON p.decision_id = d.id
		WHERE d.id = $1`
	err := r.db.GetContext(ctx, rec, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get decision: %w", err)
	}
	return rec, nil
}

// ListDecisionsByUser returns a user's most recent decisions, newest first
func (r *Repository) ListDecisionsByUser(ctx context.Context, userID string, limit int) ([]models.DecisionRecord, error) {
	query := `SELECT ` + decisionColumns + `
		FROM bnpl_decisions d
		LEFT JOIN bnpl_plans p ON p.decision_id = d.id
		WHERE d.user_id = $1
		ORDER BY d.created_at DESC
		LIMIT $2`
	var recs []models.DecisionRecord
	if err := r.db.SelectContext(ctx, &recs, query, userID, limit); err != nil {
		return nil, fmt.Errorf("failed to list decisions: %w", err)
	}
	return recs, nil
}

// GetPlan retrieves a plan by id
func (r *Repository) GetPlan(ctx context.Context, id string) (*models.Plan, error) {
	plan := &models.Plan{}
	query := `
		SELECT id, decision_id, user_id, total_cents, created_at
		FROM bnpl_plans
		WHERE id = $1`
	err := r.db.GetContext(ctx, plan, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	return plan, nil
}

// ListPendingWebhooks returns undelivered webhooks, oldest first
func (r *Repository) ListPendingWebhooks(ctx context.Context, limit int) ([]*models.Webhook, error) {
	query := `SELECT ` + webhookColumns + `
		FROM outbound_webhooks
		WHERE status IN ($1, $2)
		ORDER BY created_at
		LIMIT $3`
	var hooks []*models.Webhook
	err := r.db.SelectContext(ctx, &hooks, query, models.WebhookPending, models.WebhookRetrying, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending webhooks: %w", err)
	}
	return hooks, nil
}

// UpdateWebhook stores the result of one delivery attempt. The attempt
// counter is incremented in the row and copied back into w. A row that is
// already delivered is left alone and models.ErrWebhookSettled is returned,
// so a late failure from a concurrent sender cannot undo a delivery.
func (r *Repository) UpdateWebhook(ctx context.Context, w *models.Webhook) error {
	query := `
		UPDATE outbound_webhooks
		SET status = $2, attempts = attempts + 1, last_error = $3, last_attempt_at = $4
		WHERE id = $1 AND status <> 'delivered'
		RETURNING attempts`
	err := r.db.QueryRowxContext(ctx, query, w.ID, w.Status, w.LastError, w.LastAttemptAt).Scan(&w.Attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrWebhookSettled
	}
	if err != nil {
		return fmt.Errorf("failed to update webhook: %w", err)
	}
	return nil
}

// CountPendingWebhooks returns the outbox depth
func (r *Repository) CountPendingWebhooks(ctx context.Context) (int, error) {
	var n int
	query := `SELECT COUNT(*) FROM outbound_webhooks WHERE status IN ($1, $2)`
	if err := r.db.GetContext(ctx, &n, query, models.WebhookPending, models.WebhookRetrying); err != nil {
		return 0, fmt.Errorf("failed to count pending webhooks: %w", err)
	}
	return n, nil
}

func wrapWriteErr(entity string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", entity, ErrDuplicate)
	}
	return fmt.Errorf("failed to create %s: %w", entity, err)
}
