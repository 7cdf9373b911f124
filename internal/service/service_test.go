package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dan9191/bnpl-service/internal/integrations/bank"
	"github.com/Dan9191/bnpl-service/internal/metrics"
	"github.com/Dan9191/bnpl-service/internal/models"
	"github.com/Dan9191/bnpl-service/internal/repository"
	"github.com/Dan9191/bnpl-service/internal/scoring"
	"github.com/Dan9191/bnpl-service/internal/utils"
	"github.com/Dan9191/bnpl-service/internal/utils/email"
)

type fakeStore struct {
	mu        sync.Mutex
	decisions map[string]*models.DecisionRecord
	plans     map[string]*models.Plan
	hooks     map[string]models.Webhook
	saveErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		decisions: map[string]*models.DecisionRecord{},
		plans:     map[string]*models.Plan{},
		hooks:     map[string]models.Webhook{},
	}
}

func (f *fakeStore) SaveDecisionWithPlan(_ context.Context, d *models.DecisionRecord, p *models.Plan, hooks []*models.Webhook) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	d.CreatedAt = time.Now()
	if p != nil {
		p.CreatedAt = d.CreatedAt
		d.PlanID = &p.ID
		f.plans[p.ID] = p
	}
	f.decisions[d.ID] = d
	for _, w := range hooks {
		f.hooks[w.ID] = *w
	}
	return nil
}

func (f *fakeStore) GetDecision(_ context.Context, id string) (*models.DecisionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.decisions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return d, nil
}

func (f *fakeStore) ListDecisionsByUser(_ context.Context, userID string, limit int) ([]models.DecisionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.DecisionRecord
	for _, d := range f.decisions {
		if d.UserID == userID && len(out) < limit {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateWebhook(_ context.Context, w *models.Webhook) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hooks[w.ID] = *w
	return nil
}

func (f *fakeStore) GetPlan(_ context.Context, id string) (*models.Plan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.plans[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) webhooks() []models.Webhook {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Webhook, 0, len(f.hooks))
	for _, w := range f.hooks {
		out = append(out, w)
	}
	return out
}

type fakeBank struct {
	txns  []models.BankTransaction
	err   error
	calls int
}

func (f *fakeBank) GetTransactions(context.Context, string) ([]models.BankTransaction, error) {
	f.calls++
	return f.txns, f.err
}

type fakeCache struct {
	entries map[string][]models.BankTransaction
}

func (f *fakeCache) Get(_ context.Context, key string) ([]models.BankTransaction, bool) {
	t, ok := f.entries[key]
	return t, ok
}

func (f *fakeCache) Set(_ context.Context, key string, txns []models.BankTransaction) {
	f.entries[key] = txns
}

type fakeLedger struct {
	mu        sync.Mutex
	err       error
	delivered []models.WebhookEvent
}

func (f *fakeLedger) Deliver(_ context.Context, w *models.Webhook) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.delivered = append(f.delivered, w.EventType)
	return nil
}

func (f *fakeLedger) URL() string { return "http://ledger.test/hook" }

type fakeNotifier struct {
	mu   sync.Mutex
	sent []email.Decision
}

func (f *fakeNotifier) SendDecisionNotification(_ string, d email.Decision) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, d)
	return nil
}

type staticEngine struct{ e *scoring.Engine }

func (s staticEngine) Engine() *scoring.Engine { return s.e }

type fixture struct {
	svc      *DecisionService
	store    *fakeStore
	bank     *fakeBank
	cache    *fakeCache
	ledger   *fakeLedger
	notifier *fakeNotifier
	metrics  *metrics.Registry
}

func newFixture(t *testing.T, txns []models.BankTransaction) *fixture {
	t.Helper()
	logger, _ := test.NewNullLogger()
	engine, err := scoring.NewEngine(scoring.DefaultConfig())
	require.NoError(t, err)
	pseudonyms, err := utils.NewPseudonymizer("test-key")
	require.NoError(t, err)

	f := &fixture{
		store:    newFakeStore(),
		bank:     &fakeBank{txns: txns},
		cache:    &fakeCache{entries: map[string][]models.BankTransaction{}},
		ledger:   &fakeLedger{},
		notifier: &fakeNotifier{},
		metrics:  metrics.New(),
	}
	f.svc = NewDecisionService(DecisionDeps{
		Store:              f.store,
		Bank:               f.bank,
		Cache:              f.cache,
		Ledger:             f.ledger,
		Engines:            staticEngine{engine},
		Notifier:           f.notifier,
		Pseudonyms:         pseudonyms,
		Metrics:            f.metrics,
		Log:                logger,
		WebhookMaxAttempts: 3,
	})
	return f
}

func healthyTransactions() []models.BankTransaction {
	start := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	var txns []models.BankTransaction
	for day := 0; day < 90; day++ {
		if day%14 == 0 {
			txns = append(txns, models.BankTransaction{Date: start.AddDate(0, 0, day), AmountCents: 200000, Type: models.TransactionCredit})
		}
		if day%2 == 0 {
			txns = append(txns, models.BankTransaction{Date: start.AddDate(0, 0, day), AmountCents: -5000, Type: models.TransactionDebit})
		}
	}
	return txns
}

func TestMakeDecision_Approved(t *testing.T) {
	f := newFixture(t, healthyTransactions())

	resp, err := f.svc.MakeDecision(context.Background(), models.DecisionRequest{
		UserID:               " user_good ",
		AmountCentsRequested: 40000,
		Email:                "user@example.com",
	})
	require.NoError(t, err)
	f.svc.Wait()

	assert.True(t, resp.Approved)
	assert.Equal(t, int64(60000), resp.CreditLimitCents)
	assert.Equal(t, int64(40000), resp.AmountGrantedCents)
	assert.Equal(t, 100, resp.DecisionFactors.RiskScore)
	require.NotNil(t, resp.PlanID)
	_, err = uuid.Parse(resp.DecisionID)
	assert.NoError(t, err)

	rec := f.store.decisions[resp.DecisionID]
	require.NotNil(t, rec)
	assert.Equal(t, "user_good", rec.UserID)
	assert.Equal(t, "500-600", rec.ScoreBand)
	assert.Equal(t, string(scoring.OutcomeScored), rec.Outcome)

	plan := f.store.plans[*resp.PlanID]
	require.NotNil(t, plan)
	assert.Equal(t, int64(40000), plan.TotalCents)
	assert.Equal(t, resp.DecisionID, plan.DecisionID)

	hooks := f.store.webhooks()
	require.Len(t, hooks, 2)
	for _, w := range hooks {
		assert.Equal(t, models.WebhookDelivered, w.Status)
		assert.Equal(t, 1, w.Attempts)
		assert.Equal(t, "http://ledger.test/hook", w.TargetURL)
		if w.EventType == models.EventPlanCreated {
			var p models.PlanCreatedPayload
			require.NoError(t, json.Unmarshal(w.Payload, &p))
			assert.Equal(t, *resp.PlanID, p.PlanID)
			assert.Equal(t, w.ID, p.EventID)
		}
	}
	assert.ElementsMatch(t, []models.WebhookEvent{models.EventPlanCreated, models.EventDecisionMade}, f.ledger.delivered)

	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, *resp.PlanID, f.notifier.sent[0].PlanID)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.DecisionTotal.WithLabelValues("approved")))
	assert.Len(t, f.cache.entries, 1)
}

func TestMakeDecision_EmptyHistoryDeclined(t *testing.T) {
	f := newFixture(t, nil)

	resp, err := f.svc.MakeDecision(context.Background(), models.DecisionRequest{UserID: "user_new", AmountCentsRequested: 10000})
	require.NoError(t, err)
	f.svc.Wait()

	assert.False(t, resp.Approved)
	assert.Zero(t, resp.CreditLimitCents)
	assert.Zero(t, resp.AmountGrantedCents)
	assert.Nil(t, resp.PlanID)
	assert.Empty(t, f.store.plans)

	hooks := f.store.webhooks()
	require.Len(t, hooks, 1)
	assert.Equal(t, models.EventDecisionMade, hooks[0].EventType)
	assert.Empty(t, f.notifier.sent, "no email without an address")
}

func TestMakeDecision_Validation(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		name string
		req  models.DecisionRequest
	}{
		{"missing user", models.DecisionRequest{UserID: "  ", AmountCentsRequested: 100}},
		{"zero amount", models.DecisionRequest{UserID: "u", AmountCentsRequested: 0}},
		{"negative amount", models.DecisionRequest{UserID: "u", AmountCentsRequested: -5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.MakeDecision(context.Background(), tt.req)
			var ve *ValidationError
			assert.ErrorAs(t, err, &ve)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
	assert.Zero(t, f.bank.calls)
}

func TestMakeDecision_CacheHitSkipsBank(t *testing.T) {
	f := newFixture(t, nil)
	f.cache.entries[f.svc.Pseudonyms.Of("cached")] = healthyTransactions()

	resp, err := f.svc.MakeDecision(context.Background(), models.DecisionRequest{UserID: "cached", AmountCentsRequested: 20000})
	require.NoError(t, err)
	f.svc.Wait()

	assert.True(t, resp.Approved)
	assert.Zero(t, f.bank.calls)
}

func TestMakeDecision_BankErrorPropagates(t *testing.T) {
	f := newFixture(t, nil)
	f.bank.err = bank.ErrUserNotFound

	_, err := f.svc.MakeDecision(context.Background(), models.DecisionRequest{UserID: "ghost", AmountCentsRequested: 100})
	assert.ErrorIs(t, err, bank.ErrUserNotFound)
	assert.Empty(t, f.store.decisions)
}

func TestMakeDecision_SaveError(t *testing.T) {
	f := newFixture(t, healthyTransactions())
	f.store.saveErr = errors.New("db down")

	_, err := f.svc.MakeDecision(context.Background(), models.DecisionRequest{UserID: "u", AmountCentsRequested: 100})
	assert.Error(t, err)
	assert.Empty(t, f.ledger.delivered)
}

func TestMakeDecision_FailedDeliveryStaysQueued(t *testing.T) {
	f := newFixture(t, healthyTransactions())
	f.ledger.err = errors.New("ledger down")

	_, err := f.svc.MakeDecision(context.Background(), models.DecisionRequest{UserID: "u", AmountCentsRequested: 100})
	require.NoError(t, err, "delivery failure must not fail the decision")
	f.svc.Wait()

	for _, w := range f.store.webhooks() {
		assert.Equal(t, models.WebhookRetrying, w.Status)
		assert.Equal(t, 1, w.Attempts)
		require.NotNil(t, w.LastError)
		assert.Equal(t, "ledger down", *w.LastError)
	}
}

func TestGetDecision(t *testing.T) {
	f := newFixture(t, healthyTransactions())
	made, err := f.svc.MakeDecision(context.Background(), models.DecisionRequest{UserID: "u1", AmountCentsRequested: 30000})
	require.NoError(t, err)
	f.svc.Wait()

	got, err := f.svc.GetDecision(context.Background(), made.DecisionID)
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, made.AmountGrantedCents, got.AmountGrantedCents)
	assert.Equal(t, string(scoring.OutcomeScored), got.Outcome)
	assert.NotNil(t, got.CreatedAt)

	_, err = f.svc.GetDecision(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.GetDecision(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestGetDecisionHistory(t *testing.T) {
	f := newFixture(t, nil)
	for i := 0; i < 3; i++ {
		_, err := f.svc.MakeDecision(context.Background(), models.DecisionRequest{UserID: "u1", AmountCentsRequested: 100})
		require.NoError(t, err)
	}
	f.svc.Wait()

	h, err := f.svc.GetDecisionHistory(context.Background(), "u1", 0)
	require.NoError(t, err)
	assert.Equal(t, "u1", h.UserID)
	assert.Len(t, h.Decisions, 3)

	h, err = f.svc.GetDecisionHistory(context.Background(), "nobody", 5)
	require.NoError(t, err)
	assert.NotNil(t, h.Decisions)
	assert.Empty(t, h.Decisions)

	for _, limit := range []int{-1, 101} {
		_, err = f.svc.GetDecisionHistory(context.Background(), "u1", limit)
		assert.ErrorIs(t, err, ErrInvalidRequest)
	}
	_, err = f.svc.GetDecisionHistory(context.Background(), "", 10)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestGetPlan(t *testing.T) {
	logger, _ := test.NewNullLogger()
	store := newFakeStore()
	id := uuid.NewString()
	store.plans[id] = &models.Plan{ID: id, DecisionID: uuid.NewString(), UserID: "u1", TotalCents: 25000}
	svc := NewPlanService(store, logger)

	p, err := svc.GetPlan(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, int64(25000), p.TotalCents)
	assert.Equal(t, "u1", p.UserID)

	_, err = svc.GetPlan(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.GetPlan(context.Background(), "x")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestToResponse_RoundsFactors(t *testing.T) {
	resp := toResponse(&models.DecisionRecord{
		ID:              "d",
		AvgDailyBalance: decimal.RequireFromString("850.456"),
		IncomeRatio:     decimal.RequireFromString("1.4449"),
	})
	assert.Equal(t, 850.46, resp.DecisionFactors.AvgDailyBalance)
	assert.Equal(t, 1.44, resp.DecisionFactors.IncomeRatio)
}
