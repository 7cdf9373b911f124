package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Dan9191/bnpl-service/internal/models"
)

// Registry holds the service's Prometheus metrics on a private registry
type Registry struct {
	reg *prometheus.Registry

	DecisionTotal      *prometheus.CounterVec
	CreditLimitBucket  *prometheus.CounterVec
	ApprovalRate       prometheus.Gauge
	AvgCreditLimit     prometheus.Gauge
	DecisionLatency    prometheus.Histogram
	BankFetchLatency   prometheus.Histogram
	BankFetchTotal     *prometheus.CounterVec
	BankFetchFailures  *prometheus.CounterVec
	WebhookLatency     prometheus.Histogram
	WebhookSuccess     prometheus.Counter
	WebhookFailures    prometheus.Counter
	WebhookRetries     prometheus.Counter
	WebhookQueueDepth  prometheus.Gauge
	HTTPRequests       *prometheus.CounterVec
	HTTPRequestLatency *prometheus.HistogramVec

	mu            sync.Mutex
	total         int
	approved      int
	approvedLimit int64
}

// New creates and registers all metrics
func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		DecisionTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bnpl_decision_total",
				Help: "Total number of BNPL decisions made",
			},
			[]string{"outcome"},
		),
		CreditLimitBucket: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bnpl_credit_limit_bucket",
				Help: "Credit limits granted by bucket",
			},
			[]string{"bucket", "outcome"},
		),
		ApprovalRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bnpl_approval_rate",
			Help: "Share of approved decisions since start (0.0-1.0)",
		}),
		AvgCreditLimit: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bnpl_avg_credit_limit_dollars",
			Help: "Average credit limit of approved decisions in dollars",
		}),
		DecisionLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bnpl_decision_latency_seconds",
			Help:    "Decision request latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}),
		BankFetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bnpl_bank_fetch_latency_seconds",
			Help:    "Bank API fetch latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}),
		BankFetchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bnpl_bank_fetch_total",
				Help: "Total number of bank API requests",
			},
			[]string{"status"},
		),
		BankFetchFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bnpl_bank_fetch_failures_total",
				Help: "Total number of bank API failures",
			},
			[]string{"error_type"},
		),
		WebhookLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bnpl_webhook_latency_seconds",
			Help:    "Webhook delivery latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		WebhookSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bnpl_webhook_success_total",
			Help: "Total number of successful webhook deliveries",
		}),
		WebhookFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bnpl_webhook_failures_total",
			Help: "Total number of webhook deliveries that exhausted their retries",
		}),
		WebhookRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bnpl_webhook_retry_total",
			Help: "Total number of webhook retries",
		}),
		WebhookQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bnpl_webhook_queue_depth",
			Help: "Webhooks waiting in the outbox",
		}),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bnpl_http_requests_total",
				Help: "Total HTTP requests by endpoint and status",
			},
			[]string{"method", "endpoint", "status"},
		),
		HTTPRequestLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bnpl_http_request_latency_seconds",
				Help:    "HTTP request latency by endpoint",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"method", "endpoint"},
		),
	}

	r.reg.MustRegister(
		r.DecisionTotal, r.CreditLimitBucket, r.ApprovalRate, r.AvgCreditLimit,
		r.DecisionLatency, r.BankFetchLatency, r.BankFetchTotal, r.BankFetchFailures,
		r.WebhookLatency, r.WebhookSuccess, r.WebhookFailures, r.WebhookRetries,
		r.WebhookQueueDepth, r.HTTPRequests, r.HTTPRequestLatency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Handler serves the registry in the Prometheus text format
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Gatherer exposes the underlying registry
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// RecordDecision updates the decision counters and the running approval gauges
func (r *Registry) RecordDecision(approved bool, limitCents int64) {
	outcome := "declined"
	if approved {
		outcome = "approved"
	}
	r.DecisionTotal.WithLabelValues(outcome).Inc()
	r.CreditLimitBucket.WithLabelValues(models.ScoreBand(limitCents), outcome).Inc()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.total++
	if approved {
		r.approved++
		r.approvedLimit += limitCents
	}
	r.ApprovalRate.Set(float64(r.approved) / float64(r.total))
	if r.approved > 0 {
		r.AvgCreditLimit.Set(float64(r.approvedLimit) / float64(r.approved) / 100)
	}
}

// RecordBankFetch records one bank API call. errorType is empty on success.
func (r *Registry) RecordBankFetch(d time.Duration, errorType string) {
	r.BankFetchLatency.Observe(d.Seconds())
	if errorType == "" {
		r.BankFetchTotal.WithLabelValues("success").Inc()
		return
	}
	r.BankFetchTotal.WithLabelValues("failure").Inc()
	r.BankFetchFailures.WithLabelValues(errorType).Inc()
}

// RecordHTTPRequest records one served request
func (r *Registry) RecordHTTPRequest(method, endpoint string, status int, d time.Duration) {
	r.HTTPRequests.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	r.HTTPRequestLatency.WithLabelValues(method, endpoint).Observe(d.Seconds())
}
