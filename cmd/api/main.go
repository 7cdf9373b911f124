package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/bnpl-service/internal/cache"
	"github.com/Dan9191/bnpl-service/internal/config"
	"github.com/Dan9191/bnpl-service/internal/handler"
	"github.com/Dan9191/bnpl-service/internal/integrations/bank"
	"github.com/Dan9191/bnpl-service/internal/integrations/ledger"
	"github.com/Dan9191/bnpl-service/internal/metrics"
	"github.com/Dan9191/bnpl-service/internal/repository"
	"github.com/Dan9191/bnpl-service/internal/service"
	"github.com/Dan9191/bnpl-service/internal/utils"
	"github.com/Dan9191/bnpl-service/internal/utils/email"
	"github.com/Dan9191/bnpl-service/internal/worker"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	if strings.EqualFold(cfg.LogFormat, "text") {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	logLevel, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Scoring engine; an invalid configuration is fatal at startup
	scoringStore, err := config.NewScoringStore(cfg.ScoringConfigPath, logger)
	if err != nil {
		logger.Fatalf("Failed to load scoring config: %v", err)
	}

	// Initialize database
	db, err := sqlx.Open("postgres", cfg.DBConn)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	startupCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	if err := db.PingContext(startupCtx); err != nil {
		logger.Fatalf("Failed to ping database: %v", err)
	}
	repo := repository.NewRepository(db)
	if err := repo.Migrate(startupCtx); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}
	cancel()

	pseudonyms, err := utils.NewPseudonymizer(cfg.PseudonymKey)
	if err != nil {
		logger.Fatalf("Invalid pseudonym key: %v", err)
	}

	// Initialize layers
	m := metrics.New()
	txCache := cache.NewTransactionCache(cfg.RedisAddr, cfg.TransactionCacheTTL, logger)
	defer txCache.Close()
	bankClient := bank.NewClient(cfg, m, logger)
	ledgerClient := ledger.NewClient(cfg, m, logger)

	deps := service.DecisionDeps{
		Store:              repo,
		Bank:               bankClient,
		Ledger:             ledgerClient,
		Engines:            scoringStore,
		Pseudonyms:         pseudonyms,
		Metrics:            m,
		Log:                logger,
		WebhookMaxAttempts: cfg.WebhookMaxAttempts,
	}
	if txCache != nil {
		deps.Cache = txCache
	}
	if sender := email.NewSender(cfg, logger); sender != nil {
		deps.Notifier = sender
	}
	decisions := service.NewDecisionService(deps)
	plans := service.NewPlanService(repo, logger)

	webhooks := worker.NewWebhookWorker(repo, ledgerClient, m, logger, cfg.WebhookRetrySchedule, cfg.WebhookMaxAttempts)
	if err := webhooks.Start(); err != nil {
		logger.Fatalf("Failed to start webhook worker: %v", err)
	}

	h := handler.NewHandler(decisions, plans, map[string]handler.Pinger{
		"database": repo,
		"cache":    txCache,
	}, m, logger)

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      h.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	go func() {
		logger.Infof("Starting server on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	for sig := range signals {
		if sig == syscall.SIGHUP {
			if err := scoringStore.Reload(); err == nil {
				logger.Info("Scoring config reloaded")
			}
			continue
		}
		logger.WithField("signal", sig.String()).Info("Shutting down")
		break
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Errorf("Server shutdown failed: %v", err)
	}
	webhooks.Stop(ctx)
	decisions.Wait()
	logger.Info("Server stopped")
}
