package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/bnpl-service/internal/models"
	"github.com/Dan9191/bnpl-service/internal/repository"
)

// PlanService reads repayment plans
type PlanService struct {
	store PlanStore
	log   *logrus.Logger
}

// NewPlanService initializes a new plan service
func NewPlanService(store PlanStore, log *logrus.Logger) *PlanService {
	return &PlanService{store: store, log: log}
}

// GetPlan returns the plan with the given id
func (s *PlanService) GetPlan(ctx context.Context, id string) (*models.PlanResponse, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, &ValidationError{Problems: []string{"plan id must be a UUID"}}
	}
	p, err := s.store.GetPlan(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("plan %s: %w", id, ErrNotFound)
	}
	if err != nil {
		s.log.WithError(err).WithField("plan_id", id).Error("Failed to load plan")
		return nil, err
	}
	return &models.PlanResponse{
		PlanID:     p.ID,
		DecisionID: p.DecisionID,
		UserID:     p.UserID,
		TotalCents: p.TotalCents,
		CreatedAt:  p.CreatedAt,
	}, nil
}
