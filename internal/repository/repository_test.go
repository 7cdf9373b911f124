package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dan9191/bnpl-service/internal/models"
)

func newMock(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRepository(sqlx.NewDb(db, "postgres")), mock
}

var decisionCols = []string{
	"id", "user_id", "requested_cents", "approved", "credit_limit_cents",
	"amount_granted_cents", "risk_score", "outcome", "score_band",
	"avg_daily_balance", "income_ratio", "nsf_count", "income_consistency",
	"transaction_count", "history_days", "gig_bonus_applied", "plan_id", "created_at",
}

func sampleDecision() *models.DecisionRecord {
	return &models.DecisionRecord{
		ID:                 "3b0f0c8e-8f5e-4c55-9d1c-2b8c0d5c7a11",
		UserID:             "user_good",
		RequestedCents:     30000,
		Approved:           true,
		CreditLimitCents:   40000,
		AmountGrantedCents: 30000,
		RiskScore:          77,
		Outcome:            "scored",
		ScoreBand:          "300-400",
		AvgDailyBalance:    decimal.RequireFromString("850.00"),
		IncomeRatio:        decimal.RequireFromString("1.45"),
		NSFCount:           1,
		IncomeConsistency:  0.9,
		TransactionCount:   40,
		HistoryDays:        90,
	}
}

func TestMigrate(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS bnpl_decisions").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveDecisionWithPlan(t *testing.T) {
	repo, mock := newMock(t)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	d := sampleDecision()
	p := &models.Plan{ID: "plan-1", DecisionID: d.ID, UserID: d.UserID, TotalCents: 30000}
	hooks := []*models.Webhook{
		{ID: "wh-1", EventType: models.EventPlanCreated, Payload: []byte(`{"event":"plan_created"}`), TargetURL: "http://ledger", Status: models.WebhookPending},
		{ID: "wh-2", EventType: models.EventDecisionMade, Payload: []byte(`{"event":"decision_made"}`), TargetURL: "http://ledger", Status: models.WebhookPending},
	}

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO bnpl_decisions").
		WithArgs(d.ID, d.UserID, d.RequestedCents, d.Approved, d.CreditLimitCents, d.AmountGrantedCents,
			d.RiskScore, d.Outcome, d.ScoreBand, "850", "1.45", d.NSFCount,
			d.IncomeConsistency, d.TransactionCount, d.HistoryDays, d.GigBonusApplied).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))
	mock.ExpectQuery("INSERT INTO bnpl_plans").
		WithArgs(p.ID, d.ID, d.UserID, p.TotalCents).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))
	mock.ExpectQuery("INSERT INTO outbound_webhooks").
		WithArgs("wh-1", "plan_created", `{"event":"plan_created"}`, "http://ledger", "pending").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))
	mock.ExpectQuery("INSERT INTO outbound_webhooks").
		WithArgs("wh-2", "decision_made", `{"event":"decision_made"}`, "http://ledger", "pending").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))
	mock.ExpectCommit()

	require.NoError(t, repo.SaveDecisionWithPlan(context.Background(), d, p, hooks))
	assert.Equal(t, now, d.CreatedAt)
	assert.Equal(t, now, p.CreatedAt)
	require.NotNil(t, d.PlanID)
	assert.Equal(t, "plan-1", *d.PlanID)
	assert.Equal(t, now, hooks[1].CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveDecisionWithPlan_RollsBackOnWebhookFailure(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO bnpl_decisions").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mock.ExpectQuery("INSERT INTO outbound_webhooks").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	hooks := []*models.Webhook{{ID: "wh-1", EventType: models.EventDecisionMade, Payload: []byte(`{}`), Status: models.WebhookPending}}
	err := repo.SaveDecisionWithPlan(context.Background(), sampleDecision(), nil, hooks)
	assert.ErrorContains(t, err, "failed to create webhook")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveDecisionWithPlan_Duplicate(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO bnpl_decisions").WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	err := repo.SaveDecisionWithPlan(context.Background(), sampleDecision(), nil, nil)
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDecision(t *testing.T) {
	repo, mock := newMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery("FROM bnpl_decisions d").
		WithArgs("dec-1").
		WillReturnRows(sqlmock.NewRows(decisionCols).AddRow(
			"dec-1", "user_good", 30000, true, 40000, 30000, 77, "scored", "300-400",
			"850.00", "1.4500", 1, 0.9, 40, 90, false, "plan-1", now))

	rec, err := repo.GetDecision(context.Background(), "dec-1")
	require.NoError(t, err)
	assert.Equal(t, 77, rec.RiskScore)
	assert.True(t, rec.AvgDailyBalance.Equal(decimal.NewFromInt(850)))
	assert.True(t, rec.IncomeRatio.Equal(decimal.RequireFromString("1.45")))
	require.NotNil(t, rec.PlanID)
	assert.Equal(t, "plan-1", *rec.PlanID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDecision_NotFound(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery("FROM bnpl_decisions d").WithArgs("missing").WillReturnRows(sqlmock.NewRows(decisionCols))

	_, err := repo.GetDecision(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListDecisionsByUser(t *testing.T) {
	repo, mock := newMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery("ORDER BY d.created_at DESC").
		WithArgs("user_good", 2).
		WillReturnRows(sqlmock.NewRows(decisionCols).
			AddRow("dec-2", "user_good", 10000, false, 0, 0, 13, "scored", "0",
				"-150.00", "0.5000", 4, 0.5, 40, 90, false, nil, now).
			AddRow("dec-1", "user_good", 30000, true, 40000, 30000, 77, "scored", "300-400",
				"850.00", "1.4500", 1, 0.9, 40, 90, false, "plan-1", now.Add(-time.Hour)))

	recs, err := repo.ListDecisionsByUser(context.Background(), "user_good", 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "dec-2", recs[0].ID)
	assert.Nil(t, recs[0].PlanID)
	assert.True(t, recs[0].AvgDailyBalance.IsNegative())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPlan(t *testing.T) {
	repo, mock := newMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery("FROM bnpl_plans").
		WithArgs("plan-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "decision_id", "user_id", "total_cents", "created_at"}).
			AddRow("plan-1", "dec-1", "user_good", 30000, now))

	plan, err := repo.GetPlan(context.Background(), "plan-1")
	require.NoError(t, err)
	assert.Equal(t, int64(30000), plan.TotalCents)

	mock.ExpectQuery("FROM bnpl_plans").WithArgs("nope").WillReturnError(errors.New("conn reset"))
	_, err = repo.GetPlan(context.Background(), "nope")
	assert.ErrorContains(t, err, "failed to get plan")
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestListPendingWebhooks(t *testing.T) {
	repo, mock := newMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery("FROM outbound_webhooks").
		WithArgs("pending", "retrying", 50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "event_type", "payload", "target_url", "status", "attempts", "last_error", "last_attempt_at", "created_at"}).
			AddRow("wh-1", "plan_created", []byte(`{"plan_id":"p"}`), "http://ledger", "retrying", 2, "timeout", now, now))

	hooks, err := repo.ListPendingWebhooks(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, hooks, 1)
	assert.Equal(t, models.EventPlanCreated, hooks[0].EventType)
	assert.Equal(t, models.WebhookRetrying, hooks[0].Status)
	assert.JSONEq(t, `{"plan_id":"p"}`, string(hooks[0].Payload))
	require.NotNil(t, hooks[0].LastError)
	assert.Equal(t, "timeout", *hooks[0].LastError)
}

func TestUpdateWebhook(t *testing.T) {
	repo, mock := newMock(t)
	at := time.Now().UTC()
	w := &models.Webhook{ID: "wh-1", Status: models.WebhookDelivered, Attempts: 1, LastAttemptAt: &at}

	mock.ExpectQuery(`UPDATE outbound_webhooks\s+SET status = \$2, attempts = attempts \+ 1, .*WHERE id = \$1 AND status <> 'delivered'\s+RETURNING attempts`).
		WithArgs("wh-1", "delivered", nil, at).
		WillReturnRows(sqlmock.NewRows([]string{"attempts"}).AddRow(2))
	require.NoError(t, repo.UpdateWebhook(context.Background(), w))
	assert.Equal(t, 2, w.Attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateWebhook_AlreadyDelivered(t *testing.T) {
	repo, mock := newMock(t)
	at := time.Now().UTC()
	msg := "ledger timeout"
	w := &models.Webhook{ID: "wh-1", Status: models.WebhookRetrying, Attempts: 1, LastError: &msg, LastAttemptAt: &at}

	// A sender that lost the race to a successful delivery matches no row.
	mock.ExpectQuery(`WHERE id = \$1 AND status <> 'delivered'`).
		WithArgs("wh-1", "retrying", msg, at).
		WillReturnRows(sqlmock.NewRows([]string{"attempts"}))
	assert.ErrorIs(t, repo.UpdateWebhook(context.Background(), w), models.ErrWebhookSettled)
	assert.Equal(t, 1, w.Attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountPendingWebhooks(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery("SELECT COUNT").
		WithArgs("pending", "retrying").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	n, err := repo.CountPendingWebhooks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}
