package bank

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/Dan9191/bnpl-service/internal/config"
	"github.com/Dan9191/bnpl-service/internal/metrics"
	"github.com/Dan9191/bnpl-service/internal/models"
)

var (
	// ErrUserNotFound is returned when the bank does not know the user
	ErrUserNotFound = errors.New("bank user not found")
	// ErrUnavailable is returned when the bank API cannot be reached or
	// keeps failing
	ErrUnavailable = errors.New("bank API unavailable")
)

const (
	breakerFailures = 5
	breakerCooldown = 30 * time.Second
	maxBodyBytes    = 10 << 20
)

// Client fetches transaction histories from the bank-data API
type Client struct {
	baseURL    string
	client     *http.Client
	maxRetries int
	retryDelay time.Duration
	breaker    *gobreaker.CircuitBreaker
	metrics    *metrics.Registry
	log        *logrus.Logger
}

// NewClient initializes a new bank API client
func NewClient(cfg *config.Config, m *metrics.Registry, log *logrus.Logger) *Client {
	c := &Client{
		baseURL: strings.TrimRight(cfg.BankAPIURL, "/"),
		client: &http.Client{
			Timeout: cfg.BankAPITimeout,
		},
		maxRetries: cfg.BankMaxRetries,
		retryDelay: 100 * time.Millisecond,
		metrics:    m,
		log:        log,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "bank-api",
		Timeout: breakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrInvalidData)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})
	return c
}

// GetTransactions fetches the user's transaction history. A 404 is returned
// as ErrUserNotFound without retrying. Other failures are retried with
// exponential backoff and end in ErrUnavailable.
func (c *Client) GetTransactions(ctx context.Context, userID string) ([]models.BankTransaction, error) {
	attempt := 0
	op := func() ([]models.BankTransaction, error) {
		attempt++
		start := time.Now()
		res, err := c.breaker.Execute(func() (interface{}, error) {
			return c.fetch(ctx, userID)
		})
		c.metrics.RecordBankFetch(time.Since(start), errorType(err))

		switch {
		case err == nil:
			return res.([]models.BankTransaction), nil
		case errors.Is(err, ErrUserNotFound), errors.Is(err, ErrInvalidData):
			return nil, backoff.Permanent(err)
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return nil, backoff.Permanent(fmt.Errorf("%w: %v", ErrUnavailable, err))
		}
		return nil, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0

	notify := func(err error, wait time.Duration) {
		c.log.WithFields(logrus.Fields{
			"attempt":     attempt,
			"max_retries": c.maxRetries,
			"retry_in":    wait.String(),
		}).WithError(err).Warn("Bank API request failed, retrying")
	}

	txns, err := backoff.RetryNotifyWithData(op,
		backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.maxRetries-1)), ctx), notify)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrInvalidData) || errors.Is(err, ErrUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return txns, nil
}

func (c *Client) fetch(ctx context.Context, userID string) ([]models.BankTransaction, error) {
	endpoint := fmt.Sprintf("%s/bank/transactions?user_id=%s", c.baseURL, url.QueryEscape(userID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json, application/xml")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrUserNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	c.log.Debugf("Bank API response: %d bytes", len(body))

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType == "application/xml" || mediaType == "text/xml" {
		return ParseStatement(body)
	}
	return ParseTransactions(body)
}

func errorType(err error) string {
	var netErr interface{ Timeout() bool }
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUserNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidData):
		return "invalid_data"
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "circuit_open"
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	}
	return "error"
}
