package ledger

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/bnpl-service/internal/config"
	"github.com/Dan9191/bnpl-service/internal/metrics"
	"github.com/Dan9191/bnpl-service/internal/models"
)

const (
	issuer   = "bnpl-service"
	tokenTTL = 5 * time.Minute
)

// ErrInvalidSignature is returned by Verify for a token that does not match
// the body or the secret
var ErrInvalidSignature = errors.New("invalid webhook signature")

// Claims are carried by the bearer token of every webhook request
type Claims struct {
	Event      string `json:"event"`
	BodySHA256 string `json:"body_sha256"`
	jwt.RegisteredClaims
}

// Client delivers outbox webhooks to the ledger service
type Client struct {
	url        string
	client     *http.Client
	secret     []byte
	maxRetries int
	retryDelay time.Duration
	metrics    *metrics.Registry
	log        *logrus.Logger
	now        func() time.Time
}

// NewClient initializes a new ledger webhook client
func NewClient(cfg *config.Config, m *metrics.Registry, log *logrus.Logger) *Client {
	return &Client{
		url: cfg.LedgerWebhookURL,
		client: &http.Client{
			Timeout: cfg.LedgerTimeout,
		},
		secret:     []byte(cfg.LedgerSigningSecret),
		maxRetries: cfg.LedgerMaxRetries,
		retryDelay: 100 * time.Millisecond,
		metrics:    m,
		log:        log,
		now:        time.Now,
	}
}

// URL is the default webhook target
func (c *Client) URL() string {
	return c.url
}

// Deliver posts one webhook, retrying with exponential backoff. It returns
// the last error once the retries are spent.
func (c *Client) Deliver(ctx context.Context, w *models.Webhook) error {
	target := w.TargetURL
	if target == "" {
		target = c.url
	}
	log := c.log.WithFields(logrus.Fields{
		"webhook_id": w.ID,
		"event_type": w.EventType,
	})

	attempt := 0
	op := func() error {
		attempt++
		start := time.Now()
		err := c.post(ctx, target, w)
		c.metrics.WebhookLatency.Observe(time.Since(start).Seconds())
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0

	notify := func(err error, wait time.Duration) {
		c.metrics.WebhookRetries.Inc()
		log.WithFields(logrus.Fields{
			"attempt":  attempt,
			"retry_in": wait.String(),
		}).WithError(err).Warn("Webhook delivery failed, retrying")
	}

	err := backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.maxRetries-1)), ctx), notify)
	if err != nil {
		c.metrics.WebhookFailures.Inc()
		log.WithError(err).WithField("attempts", attempt).Error("Webhook exhausted retries")
		return err
	}

	c.metrics.WebhookSuccess.Inc()
	log.Info("Webhook sent")
	return nil
}

func (c *Client) post(ctx context.Context, target string, w *models.Webhook) error {
	token, err := c.Sign(string(w.EventType), w.ID, w.Payload)
	if err != nil {
		return backoff.Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(w.Payload))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Webhook-Id", w.ID)
	req.Header.Set("X-Webhook-Event", string(w.EventType))

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode >= 400 {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return nil
}

// Sign returns an HS256 token binding the event id to the SHA-256 of body
func (c *Client) Sign(event, eventID string, body []byte) (string, error) {
	now := c.now()
	sum := sha256.Sum256(body)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Event:      event,
		BodySHA256: hex.EncodeToString(sum[:]),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        eventID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	})
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign webhook: %w", err)
	}
	return signed, nil
}

// Verify checks a bearer token against the received body. Ledger-side
// receivers use it to authenticate deliveries.
func Verify(tokenString string, body []byte, secret []byte) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(issuer))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	sum := sha256.Sum256(body)
	if claims.BodySHA256 != hex.EncodeToString(sum[:]) {
		return nil, fmt.Errorf("%w: body hash mismatch", ErrInvalidSignature)
	}
	return claims, nil
}
