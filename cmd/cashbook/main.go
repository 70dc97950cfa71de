package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/cashbook-bfa-go/internal/app"
	"github.com/boddenberg/cashbook-bfa-go/internal/config"
	"github.com/boddenberg/cashbook-bfa-go/internal/handler"
	"github.com/boddenberg/cashbook-bfa-go/internal/infra/amqp"
	"github.com/boddenberg/cashbook-bfa-go/internal/infra/cache"
	"github.com/boddenberg/cashbook-bfa-go/internal/infra/observability"
	"github.com/boddenberg/cashbook-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/cashbook-bfa-go/internal/port"
	"github.com/boddenberg/cashbook-bfa-go/internal/report"
	"github.com/boddenberg/cashbook-bfa-go/internal/service"

	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("data_backend", cfg.DataBackend),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.String("report_timezone", cfg.ReportTimezone),
		zap.Bool("amqp_enabled", cfg.AMQPURL != ""),
	)

	// --- Tracing ---
	endpoint := ""
	if cfg.TracingEnabled {
		endpoint = cfg.OTLPEndpoint
	}
	shutdown, err := observability.InitTracer(context.Background(), "cashbook-bfa", endpoint)
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Backend ---
	backend, err := app.OpenBackend(cfg, logger)
	if err != nil {
		logger.Fatal("failed to open data backend", zap.Error(err))
	}
	defer backend.Close()

	// --- Messaging (optional) ---
	var publisher port.JobPublisher
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue,
			resilience.NewCircuitBreaker("amqp", app.BreakerLogger(logger)), logger)
		if err != nil {
			logger.Fatal("failed to connect to AMQP broker", zap.Error(err))
		}
		defer amqpClient.Close()
		publisher = amqpClient
		logger.Info("backups are queued to the backup worker", zap.String("queue", cfg.AMQPQueue))
	} else {
		logger.Info("AMQP not configured, backups run inline")
	}

	// --- Services ---
	loc := cfg.Location()
	snapshots := cache.New[*report.Batch](cfg.CacheTTL)
	defer snapshots.Close()

	reports := service.NewReportService(backend.Store, backend.Store, snapshots, loc, metrics, logger)
	svcs := handler.Services{
		Reports:      reports,
		Transactions: service.NewTransactionService(backend.Store, reports, loc, metrics, logger),
		Profiles:     service.NewProfileService(backend.Store, backend.Storage, logger),
		Family:       service.NewFamilyService(backend.Store, loc, metrics, logger),
		Backups: service.NewBackupService(reports, backend.Storage, publisher,
			resilience.NewBulkhead(cfg.MaxConcurrency), loc, metrics, logger),
		Tokens:  service.NewTokenVerifier(cfg.JWTSecret),
		Backend: backend.Name,
		Store:   backend.Store,
	}

	// --- Router ---
	router := handler.NewRouter(svcs, metrics, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
