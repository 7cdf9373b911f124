package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/bnpl-service/internal/models"
)

const keyPrefix = "bnpl:txns:"

// TransactionCache keeps recently fetched bank histories in Redis, keyed by
// user pseudonym. A nil *TransactionCache is a valid, disabled cache.
// Redis failures are logged and treated as misses.
type TransactionCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *logrus.Logger
}

// NewTransactionCache connects to Redis at addr. An empty addr disables
// caching and returns nil.
func NewTransactionCache(addr string, ttl time.Duration, log *logrus.Logger) *TransactionCache {
	if addr == "" {
		return nil
	}
	return NewWithClient(redis.NewClient(&redis.Options{Addr: addr}), ttl, log)
}

// NewWithClient wraps an existing client
func NewWithClient(client *redis.Client, ttl time.Duration, log *logrus.Logger) *TransactionCache {
	return &TransactionCache{client: client, ttl: ttl, log: log}
}

// Get returns the cached history for the pseudonymous user key
func (c *TransactionCache) Get(ctx context.Context, pseudonym string) ([]models.BankTransaction, bool) {
	if c == nil {
		return nil, false
	}
	data, err := c.client.Get(ctx, keyPrefix+pseudonym).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.log.WithError(err).WithField("user", pseudonym).Warn("Transaction cache read failed")
		return nil, false
	}

	var txns []models.BankTransaction
	if err := json.Unmarshal(data, &txns); err != nil {
		c.log.WithError(err).WithField("user", pseudonym).Warn("Discarding corrupt cache entry")
		return nil, false
	}
	return txns, true
}

// Set stores a history under the pseudonymous user key
func (c *TransactionCache) Set(ctx context.Context, pseudonym string, txns []models.BankTransaction) {
	if c == nil {
		return
	}
	data, err := json.Marshal(txns)
	if err != nil {
		c.log.WithError(err).Warn("Failed to encode transactions for cache")
		return
	}
	if err := c.client.Set(ctx, keyPrefix+pseudonym, data, c.ttl).Err(); err != nil {
		c.log.WithError(err).WithField("user", pseudonym).Warn("Transaction cache write failed")
	}
}

// Ping reports whether Redis is reachable. A disabled cache is always healthy.
func (c *TransactionCache) Ping(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.client.Ping(ctx).Err()
}

// Close releases the Redis connection pool
func (c *TransactionCache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
