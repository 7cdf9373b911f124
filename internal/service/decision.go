package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/bnpl-service/internal/metrics"
	"github.com/Dan9191/bnpl-service/internal/models"
	"github.com/Dan9191/bnpl-service/internal/repository"
	"github.com/Dan9191/bnpl-service/internal/scoring"
	"github.com/Dan9191/bnpl-service/internal/utils"
	"github.com/Dan9191/bnpl-service/internal/utils/email"
)

const (
	defaultHistoryLimit = 10
	maxHistoryLimit     = 100
	maxUserIDLength     = 255
	deliveryTimeout     = 30 * time.Second
)

// DecisionDeps are the collaborators of DecisionService
type DecisionDeps struct {
	Store              DecisionStore
	Bank               TransactionSource
	Cache              TransactionCache
	Ledger             WebhookSender
	Engines            EngineSource
	Notifier           Notifier
	Pseudonyms         *utils.Pseudonymizer
	Metrics            *metrics.Registry
	Log                *logrus.Logger
	WebhookMaxAttempts int
}

// DecisionService handles the credit decision use cases
type DecisionService struct {
	DecisionDeps
	now      func() time.Time
	inflight sync.WaitGroup
}

// NewDecisionService initializes a new decision service
func NewDecisionService(deps DecisionDeps) *DecisionService {
	return &DecisionService{DecisionDeps: deps, now: time.Now}
}

// MakeDecision scores the user's bank history against the requested amount,
// stores the decision with its plan and queued webhooks, then starts
// delivering the webhooks.
func (s *DecisionService) MakeDecision(ctx context.Context, req models.DecisionRequest) (*models.DecisionResponse, error) {
	start := time.Now()
	defer func() { s.Metrics.DecisionLatency.Observe(time.Since(start).Seconds()) }()

	req.UserID = strings.TrimSpace(req.UserID)
	if err := validateDecisionRequest(req); err != nil {
		return nil, err
	}

	pseudonym := s.Pseudonyms.Of(req.UserID)
	log := s.Log.WithFields(logrus.Fields{
		"user":             pseudonym,
		"amount_requested": req.AmountCentsRequested,
	})
	log.Info("Decision requested")

	txns, err := s.history(ctx, req.UserID, pseudonym)
	if err != nil {
		log.WithError(err).Warn("Failed to fetch transactions")
		return nil, err
	}

	scoringTxns := make([]scoring.Transaction, len(txns))
	for i, t := range txns {
		scoringTxns[i] = t.ToScoring()
	}
	d, err := s.Engines.Engine().Decide(scoring.Request{
		UserID:               req.UserID,
		AmountRequestedCents: req.AmountCentsRequested,
		Transactions:         scoringTxns,
		OpeningBalanceCents:  models.OpeningBalanceCents(txns),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to score request: %w", err)
	}

	rec := toRecord(uuid.NewString(), req, d)
	var plan *models.Plan
	if d.Approved {
		plan = &models.Plan{
			ID:         uuid.NewString(),
			DecisionID: rec.ID,
			UserID:     req.UserID,
			TotalCents: d.AmountGrantedCents,
		}
	}
	hooks, err := s.webhooks(rec, plan)
	if err != nil {
		return nil, err
	}

	if err := s.Store.SaveDecisionWithPlan(ctx, rec, plan, hooks); err != nil {
		return nil, fmt.Errorf("failed to save decision: %w", err)
	}

	s.Metrics.RecordDecision(d.Approved, d.CreditLimitCents)
	log.WithFields(logrus.Fields{
		"decision_id":    rec.ID,
		"approved":       d.Approved,
		"outcome":        d.Outcome,
		"risk_score":     d.RiskScore,
		"credit_limit":   d.CreditLimitCents,
		"amount_granted": d.AmountGrantedCents,
	}).Info("Decision made")

	s.afterCommit(ctx, hooks, req.Email, rec)
	return toResponse(rec), nil
}

// GetDecisionHistory returns a user's recent decisions, newest first. A zero
// limit means the default of 10.
func (s *DecisionService) GetDecisionHistory(ctx context.Context, userID string, limit int) (*models.DecisionHistory, error) {
	userID = strings.TrimSpace(userID)
	var problems []string
	if userID == "" {
		problems = append(problems, "user_id is required")
	}
	if limit == 0 {
		limit = defaultHistoryLimit
	}
	if limit < 1 || limit > maxHistoryLimit {
		problems = append(problems, fmt.Sprintf("limit must be between 1 and %d", maxHistoryLimit))
	}
	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}

	recs, err := s.Store.ListDecisionsByUser(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	history := &models.DecisionHistory{UserID: userID, Decisions: make([]models.DecisionSummary, 0, len(recs))}
	for _, r := range recs {
		history.Decisions = append(history.Decisions, models.DecisionSummary{
			DecisionID:         r.ID,
			Approved:           r.Approved,
			CreditLimitCents:   r.CreditLimitCents,
			AmountGrantedCents: r.AmountGrantedCents,
			CreatedAt:          r.CreatedAt,
		})
	}
	return history, nil
}

// GetDecision returns one stored decision
func (s *DecisionService) GetDecision(ctx context.Context, id string) (*models.DecisionResponse, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, &ValidationError{Problems: []string{"decision id must be a UUID"}}
	}
	rec, err := s.Store.GetDecision(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("decision %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	resp := toResponse(rec)
	resp.UserID = rec.UserID
	resp.Outcome = rec.Outcome
	resp.CreatedAt = &rec.CreatedAt
	return resp, nil
}

// Wait blocks until background deliveries started by MakeDecision finish
func (s *DecisionService) Wait() {
	s.inflight.Wait()
}

func (s *DecisionService) history(ctx context.Context, userID, pseudonym string) ([]models.BankTransaction, error) {
	if s.Cache != nil {
		if txns, ok := s.Cache.Get(ctx, pseudonym); ok {
			s.Log.WithField("user", pseudonym).Debug("Transaction cache hit")
			return txns, nil
		}
	}
	txns, err := s.Bank.GetTransactions(ctx, userID)
	if err != nil {
		return nil, err
	}
	if s.Cache != nil {
		s.Cache.Set(ctx, pseudonym, txns)
	}
	return txns, nil
}

func (s *DecisionService) webhooks(rec *models.DecisionRecord, plan *models.Plan) ([]*models.Webhook, error) {
	var hooks []*models.Webhook
	add := func(event models.WebhookEvent, id string, payload any) error {
		body, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode %s webhook: %w", event, err)
		}
		hooks = append(hooks, &models.Webhook{
			ID:        id,
			EventType: event,
			Payload:   body,
			TargetURL: s.Ledger.URL(),
			Status:    models.WebhookPending,
		})
		return nil
	}

	if plan != nil {
		id := uuid.NewString()
		err := add(models.EventPlanCreated, id, models.PlanCreatedPayload{
			Event:      models.EventPlanCreated,
			EventID:    id,
			PlanID:     plan.ID,
			DecisionID: plan.DecisionID,
			UserID:     plan.UserID,
			TotalCents: plan.TotalCents,
			CreatedAt:  s.now().UTC(),
		})
		if err != nil {
			return nil, err
		}
	}

	id := uuid.NewString()
	err := add(models.EventDecisionMade, id, models.DecisionMadePayload{
		Event:       models.EventDecisionMade,
		EventID:     id,
		DecisionID:  rec.ID,
		UserID:      rec.UserID,
		Approved:    rec.Approved,
		AmountCents: rec.AmountGrantedCents,
		RiskScore:   rec.RiskScore,
	})
	if err != nil {
		return nil, err
	}
	return hooks, nil
}

// afterCommit delivers the queued webhooks and the optional email without
// holding up the response. Anything left undelivered stays in the outbox
// for the redelivery worker.
func (s *DecisionService) afterCommit(ctx context.Context, hooks []*models.Webhook, to string, rec *models.DecisionRecord) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deliveryTimeout)
		defer cancel()

		for _, w := range hooks {
			err := s.Ledger.Deliver(ctx, w)
			w.MarkAttempt(s.now().UTC(), err, s.WebhookMaxAttempts)
			switch err := s.Store.UpdateWebhook(ctx, w); {
			case errors.Is(err, models.ErrWebhookSettled):
				s.Log.WithField("webhook_id", w.ID).Debug("Webhook already delivered by the worker")
			case err != nil:
				s.Log.WithError(err).WithField("webhook_id", w.ID).Error("Failed to update webhook status")
			}
		}

		if s.Notifier != nil && to != "" {
			planID := ""
			if rec.PlanID != nil {
				planID = *rec.PlanID
			}
			// Failures are logged by the notifier.
			_ = s.Notifier.SendDecisionNotification(to, email.Decision{
				DecisionID:         rec.ID,
				Approved:           rec.Approved,
				CreditLimitCents:   rec.CreditLimitCents,
				AmountGrantedCents: rec.AmountGrantedCents,
				PlanID:             planID,
			})
		}
	}()
}

func validateDecisionRequest(req models.DecisionRequest) error {
	var problems []string
	if req.UserID == "" {
		problems = append(problems, "user_id is required")
	}
	if len(req.UserID) > maxUserIDLength {
		problems = append(problems, fmt.Sprintf("user_id must be at most %d characters", maxUserIDLength))
	}
	if req.AmountCentsRequested <= 0 {
		problems = append(problems, "amount_cents_requested must be positive")
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func toRecord(id string, req models.DecisionRequest, d scoring.Decision) *models.DecisionRecord {
	return &models.DecisionRecord{
		ID:                 id,
		UserID:             req.UserID,
		RequestedCents:     req.AmountCentsRequested,
		Approved:           d.Approved,
		CreditLimitCents:   d.CreditLimitCents,
		AmountGrantedCents: d.AmountGrantedCents,
		RiskScore:          d.RiskScore,
		Outcome:            string(d.Outcome),
		ScoreBand:          models.ScoreBand(d.CreditLimitCents),
		AvgDailyBalance:    d.Factors.AvgDailyBalance,
		IncomeRatio:        d.Factors.IncomeSpendRatio,
		NSFCount:           d.Factors.NSFCount,
		IncomeConsistency:  d.Factors.IncomeConsistency,
		TransactionCount:   d.Factors.TransactionCount,
		HistoryDays:        d.Factors.HistoryDays,
		GigBonusApplied:    d.GigBonusApplied,
	}
}

func toResponse(rec *models.DecisionRecord) *models.DecisionResponse {
	return &models.DecisionResponse{
		DecisionID:         rec.ID,
		Approved:           rec.Approved,
		CreditLimitCents:   rec.CreditLimitCents,
		AmountGrantedCents: rec.AmountGrantedCents,
		PlanID:             rec.PlanID,
		DecisionFactors: models.DecisionFactors{
			AvgDailyBalance: rec.AvgDailyBalance.Round(2).InexactFloat64(),
			IncomeRatio:     rec.IncomeRatio.Round(2).InexactFloat64(),
			NSFCount:        rec.NSFCount,
			RiskScore:       rec.RiskScore,
		},
	}
}
