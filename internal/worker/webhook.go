package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/bnpl-service/internal/metrics"
	"github.com/Dan9191/bnpl-service/internal/models"
)

const (
	batchSize  = 50
	runTimeout = 2 * time.Minute
)

// Outbox is the webhook queue the redelivery worker drains
type Outbox interface {
	ListPendingWebhooks(ctx context.Context, limit int) ([]*models.Webhook, error)
	UpdateWebhook(ctx context.Context, w *models.Webhook) error
	CountPendingWebhooks(ctx context.Context) (int, error)
}

// Deliverer sends one webhook to the ledger
type Deliverer interface {
	Deliver(ctx context.Context, w *models.Webhook) error
}

// WebhookWorker periodically redelivers outbox webhooks that are still
// pending or retrying
type WebhookWorker struct {
	outbox      Outbox
	sender      Deliverer
	metrics     *metrics.Registry
	log         *logrus.Logger
	maxAttempts int
	schedule    string
	cron        *cron.Cron
	now         func() time.Time
}

// NewWebhookWorker initializes a new worker. schedule uses cron syntax,
// including descriptors such as "@every 30s".
func NewWebhookWorker(outbox Outbox, sender Deliverer, m *metrics.Registry, log *logrus.Logger, schedule string, maxAttempts int) *WebhookWorker {
	return &WebhookWorker{
		outbox:      outbox,
		sender:      sender,
		metrics:     m,
		log:         log,
		maxAttempts: maxAttempts,
		schedule:    schedule,
		now:         time.Now,
	}
}

// Start schedules RunOnce. Overlapping runs are skipped.
func (w *WebhookWorker) Start() error {
	c := cron.New(cron.WithChain(
		cron.Recover(cron.PrintfLogger(w.log)),
		cron.SkipIfStillRunning(cron.PrintfLogger(w.log)),
	))
	_, err := c.AddFunc(w.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()
		if _, err := w.RunOnce(ctx); err != nil {
			w.log.WithError(err).Error("Webhook redelivery run failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid webhook retry schedule %q: %w", w.schedule, err)
	}
	w.cron = c
	c.Start()
	w.log.WithField("schedule", w.schedule).Info("Webhook worker started")
	return nil
}

// Stop stops scheduling and waits for a running redelivery to finish or ctx
// to expire
func (w *WebhookWorker) Stop(ctx context.Context) {
	if w.cron == nil {
		return
	}
	select {
	case <-w.cron.Stop().Done():
	case <-ctx.Done():
		w.log.Warn("Webhook worker did not stop in time")
	}
}

// RunOnce makes one delivery attempt for each queued webhook, oldest first,
// and returns how many were delivered
func (w *WebhookWorker) RunOnce(ctx context.Context) (int, error) {
	hooks, err := w.outbox.ListPendingWebhooks(ctx, batchSize)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, hook := range hooks {
		if ctx.Err() != nil {
			break
		}
		deliveryErr := w.sender.Deliver(ctx, hook)
		hook.MarkAttempt(w.now().UTC(), deliveryErr, w.maxAttempts)

		log := w.log.WithFields(logrus.Fields{
			"webhook_id": hook.ID,
			"event":      hook.EventType,
			"attempts":   hook.Attempts,
			"status":     hook.Status,
		})
		switch hook.Status {
		case models.WebhookDelivered:
			delivered++
			log.Info("Webhook redelivered")
		case models.WebhookFailed:
			log.WithError(deliveryErr).Error("Webhook delivery abandoned")
		default:
			log.WithError(deliveryErr).Warn("Webhook delivery failed, will retry")
		}

		switch err := w.outbox.UpdateWebhook(ctx, hook); {
		case errors.Is(err, models.ErrWebhookSettled):
			log.Debug("Webhook already delivered elsewhere")
		case err != nil:
			log.WithError(err).Error("Failed to update webhook status")
		}
	}

	if depth, err := w.outbox.CountPendingWebhooks(ctx); err == nil {
		w.metrics.WebhookQueueDepth.Set(float64(depth))
	} else {
		w.log.WithError(err).Warn("Failed to count pending webhooks")
	}
	return delivered, nil
}
