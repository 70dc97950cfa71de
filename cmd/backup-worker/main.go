package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/cashbook-bfa-go/internal/app"
	"github.com/boddenberg/cashbook-bfa-go/internal/config"
	"github.com/boddenberg/cashbook-bfa-go/internal/infra/amqp"
	"github.com/boddenberg/cashbook-bfa-go/internal/infra/cache"
	"github.com/boddenberg/cashbook-bfa-go/internal/infra/observability"
	"github.com/boddenberg/cashbook-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/cashbook-bfa-go/internal/report"
	"github.com/boddenberg/cashbook-bfa-go/internal/service"
	"github.com/boddenberg/cashbook-bfa-go/internal/worker"

	"go.uber.org/zap"
)

func main() {
	_ = config.LoadDotEnv(".env")
	cfg := config.Load()

	logger := observability.NewLogger(cfg.LogLevel).With(zap.String("component", "backup-worker"))
	defer logger.Sync()

	if err := cfg.ValidateWorker(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	endpoint := ""
	if cfg.TracingEnabled {
		endpoint = cfg.OTLPEndpoint
	}
	shutdown, err := observability.InitTracer(context.Background(), "cashbook-backup-worker", endpoint)
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	metrics := observability.NewMetrics()

	backend, err := app.OpenBackend(cfg, logger)
	if err != nil {
		logger.Fatal("failed to open data backend", zap.Error(err))
	}
	defer backend.Close()

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue,
		resilience.NewCircuitBreaker("amqp", app.BreakerLogger(logger)), logger)
	if err != nil {
		logger.Fatal("failed to connect to AMQP broker", zap.Error(err))
	}
	defer amqpClient.Close()

	loc := cfg.Location()
	snapshots := cache.New[*report.Batch](cfg.CacheTTL)
	defer snapshots.Close()

	reports := service.NewReportService(backend.Store, backend.Store, snapshots, loc, metrics, logger)
	backups := service.NewBackupService(reports, backend.Storage, nil,
		resilience.NewBulkhead(cfg.MaxConcurrency), loc, metrics, logger)
	backupWorker := worker.NewBackupWorker(backups, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		err := amqpClient.ConsumeBackupJobs(ctx, cfg.MaxConcurrency, backupWorker.HandleBackupJob)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("backup job consumption failed", zap.Error(err))
		}
		cancel()
	}()
	logger.Info("backup worker started",
		zap.String("queue", cfg.AMQPQueue),
		zap.String("backend", backend.Name),
		zap.Int("concurrency", cfg.MaxConcurrency),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("consumer stopped")
	}
	cancel()

	select {
	case <-done:
		logger.Info("backup worker stopped")
	case <-time.After(30 * time.Second):
		logger.Warn("shutdown timeout reached")
	}
}
