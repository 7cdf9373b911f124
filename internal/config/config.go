package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Port      string
	DBConn    string
	LogLevel  string
	LogFormat string

	BankAPIURL     string
	BankAPITimeout time.Duration
	BankMaxRetries int

	LedgerWebhookURL    string
	LedgerTimeout       time.Duration
	LedgerMaxRetries    int
	LedgerSigningSecret string

	WebhookRetrySchedule string
	WebhookMaxAttempts   int

	PseudonymKey        string
	RedisAddr           string
	TransactionCacheTTL time.Duration

	ScoringConfigPath string

	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SenderEmail  string
}

// NewConfig loads configuration from environment variables
func NewConfig() (*Config, error) {
	cfg := &Config{
		Port:                 getEnv("PORT", "8080"),
		DBConn:               getEnv("DB_CONN", "host=localhost port=5436 user=test password=test dbname=bnpl sslmode=disable"),
		LogLevel:             getEnv("LOG_LEVEL", "INFO"),
		LogFormat:            getEnv("LOG_FORMAT", "json"),
		BankAPIURL:           getEnv("BANK_API_URL", "http://localhost:8001"),
		LedgerWebhookURL:     getEnv("LEDGER_WEBHOOK_URL", "http://localhost:8002/mock-ledger"),
		LedgerSigningSecret:  getEnv("LEDGER_SIGNING_SECRET", "a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6"),
		WebhookRetrySchedule: getEnv("WEBHOOK_RETRY_SCHEDULE", "@every 30s"),
		PseudonymKey:         getEnv("PSEUDONYM_KEY", "a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6"),
		RedisAddr:            getEnv("REDIS_ADDR", ""),
		ScoringConfigPath:    getEnv("SCORING_CONFIG_PATH", ""),
		SMTPHost:             getEnv("SMTP_HOST", ""),
		SMTPPort:             getEnv("SMTP_PORT", "587"),
		SMTPUsername:         getEnv("SMTP_USERNAME", ""),
		SMTPPassword:         getEnv("SMTP_PASSWORD", ""),
		SenderEmail:          getEnv("SENDER_EMAIL", "no-reply@bnpl.local"),
	}

	var err error
	if cfg.BankAPITimeout, err = getDuration("BANK_API_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.LedgerTimeout, err = getDuration("LEDGER_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.TransactionCacheTTL, err = getDuration("TRANSACTION_CACHE_TTL", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.BankMaxRetries, err = getInt("BANK_MAX_RETRIES", 3); err != nil {
		return nil, err
	}
	if cfg.LedgerMaxRetries, err = getInt("LEDGER_MAX_RETRIES", 5); err != nil {
		return nil, err
	}
	if cfg.WebhookMaxAttempts, err = getInt("WEBHOOK_MAX_ATTEMPTS", 10); err != nil {
		return nil, err
	}

	if cfg.DBConn == "" {
		return nil, fmt.Errorf("DB_CONN is required")
	}
	if cfg.BankAPIURL == "" {
		return nil, fmt.Errorf("BANK_API_URL is required")
	}
	if cfg.LedgerSigningSecret == "" {
		return nil, fmt.Errorf("LEDGER_SIGNING_SECRET is required")
	}
	if cfg.PseudonymKey == "" {
		return nil, fmt.Errorf("PSEUDONYM_KEY is required")
	}
	if cfg.BankMaxRetries < 1 || cfg.LedgerMaxRetries < 1 {
		return nil, fmt.Errorf("BANK_MAX_RETRIES and LEDGER_MAX_RETRIES must be at least 1")
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getInt(key string, defaultVal int) (int, error) {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func getFloat(key string, defaultVal float64) (float64, error) {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number: %w", key, err)
	}
	return f, nil
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration: %w", key, err)
	}
	return d, nil
}
