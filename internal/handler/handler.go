package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/bnpl-service/internal/integrations/bank"
	"github.com/Dan9191/bnpl-service/internal/metrics"
	"github.com/Dan9191/bnpl-service/internal/models"
	"github.com/Dan9191/bnpl-service/internal/service"
)

const maxRequestBytes = 1 << 20

// Decisions is the decision use-case surface used by the handler
type Decisions interface {
	MakeDecision(ctx context.Context, req models.DecisionRequest) (*models.DecisionResponse, error)
	GetDecisionHistory(ctx context.Context, userID string, limit int) (*models.DecisionHistory, error)
	GetDecision(ctx context.Context, id string) (*models.DecisionResponse, error)
}

// Plans is the plan use-case surface used by the handler
type Plans interface {
	GetPlan(ctx context.Context, id string) (*models.PlanResponse, error)
}

// Pinger is a dependency checked by /health
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	decisions Decisions
	plans     Plans
	checks    map[string]Pinger
	metrics   *metrics.Registry
	log       *logrus.Logger
}

func NewHandler(decisions Decisions, plans Plans, checks map[string]Pinger, m *metrics.Registry, log *logrus.Logger) *Handler {
	return &Handler{decisions: decisions, plans: plans, checks: checks, metrics: m, log: log}
}

// Router builds the HTTP routes and middleware
func (h *Handler) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(h.requestID, h.accessLog, h.recoverPanic)

	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.Handle("/metrics", h.metrics.Handler()).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/decision", h.MakeDecision).Methods(http.MethodPost)
	v1.HandleFunc("/decision/history", h.DecisionHistory).Methods(http.MethodGet)
	v1.HandleFunc("/decision/{id}", h.GetDecision).Methods(http.MethodGet)
	v1.HandleFunc("/plan/{id}", h.GetPlan).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.writeError(w, r, http.StatusNotFound, "not_found", "route not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})
	return r
}

// Health reports whether the service's dependencies are reachable
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(h.checks))
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			h.log.WithError(err).WithField("dependency", name).Warn("Health check failed")
			checks[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	writeJSON(w, status, map[string]any{"status": overall, "checks": checks})
}

// MakeDecision handles POST /v1/decision
func (h *Handler) MakeDecision(w http.ResponseWriter, r *http.Request) {
	var req models.DecisionRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes))
	if err := dec.Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid_request", "malformed JSON body: "+err.Error())
		return
	}

	resp, err := h.decisions.MakeDecision(r.Context(), req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// DecisionHistory handles GET /v1/decision/history?user_id=&limit=
func (h *Handler) DecisionHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			h.writeError(w, r, http.StatusBadRequest, "invalid_request", "limit must be an integer")
			return
		}
		limit = n
	}

	history, err := h.decisions.GetDecisionHistory(r.Context(), q.Get("user_id"), limit)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

// GetDecision handles GET /v1/decision/{id}
func (h *Handler) GetDecision(w http.ResponseWriter, r *http.Request) {
	resp, err := h.decisions.GetDecision(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetPlan handles GET /v1/plan/{id}
func (h *Handler) GetPlan(w http.ResponseWriter, r *http.Request) {
	resp, err := h.plans.GetPlan(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, models.ErrorBody{Error: models.ErrorDetail{
		Code:      code,
		Message:   message,
		RequestID: RequestIDFrom(r.Context()),
	}})
}

// handleError maps service and integration errors to HTTP responses
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		h.log.WithError(err).WithField("request_id", RequestIDFrom(r.Context())).Error("Request failed")
		message = "internal error"
	}
	h.writeError(w, r, status, code, message)
}

func classify(err error) (int, string) {
	var ve *service.ValidationError
	switch {
	case errors.As(err, &ve), errors.Is(err, service.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, bank.ErrUserNotFound):
		return http.StatusNotFound, "user_not_found"
	case errors.Is(err, bank.ErrInvalidData):
		return http.StatusBadGateway, "bank_data_invalid"
	case errors.Is(err, bank.ErrUnavailable):
		return http.StatusServiceUnavailable, "bank_unavailable"
	}
	return http.StatusInternalServerError, "internal_error"
}
