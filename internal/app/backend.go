// Package app wires the configured data backend and backup storage so the
// server and the backup worker build them the same way.
package app

import (
	"fmt"
	"net/http"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/boddenberg/cashbook-bfa-go/internal/config"
	"github.com/boddenberg/cashbook-bfa-go/internal/infra/filestore"
	"github.com/boddenberg/cashbook-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/cashbook-bfa-go/internal/infra/sqlite"
	"github.com/boddenberg/cashbook-bfa-go/internal/infra/supabase"
	"github.com/boddenberg/cashbook-bfa-go/internal/port"
)

// Backend is the opened data store plus where backups are written.
type Backend struct {
	Name    string
	Store   port.Store
	Storage port.BackupStorage
	close   func() error
}

// Close releases the store. Safe to call on a nil close func.
func (b *Backend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

// ResilienceConfig maps the retry and bulkhead settings.
func ResilienceConfig(cfg *config.Config) resilience.Config {
	return resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
}

// BreakerLogger logs circuit breaker transitions.
func BreakerLogger(logger *zap.Logger) func(name string, from, to gobreaker.State) {
	return func(name string, from, to gobreaker.State) {
		logger.Warn("circuit breaker state changed",
			zap.String("breaker", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}
}

// OpenBackend opens the store selected by DATA_BACKEND.
func OpenBackend(cfg *config.Config, logger *zap.Logger) (*Backend, error) {
	switch cfg.DataBackend {
	case config.BackendSupabase:
		logger.Info("using Supabase as data backend", zap.String("supabase_url", cfg.SupabaseURL))
		client := supabase.NewClient(
			&http.Client{Timeout: cfg.HTTPTimeout},
			cfg.SupabaseURL,
			cfg.SupabaseAnonKey,
			cfg.SupabaseServiceKey,
			supabase.Options{LegacyTable: cfg.SupabaseLegacyTable, BackupBucket: cfg.SupabaseBackupBucket},
			resilience.NewCircuitBreaker("supabase", BreakerLogger(logger)),
			ResilienceConfig(cfg),
			logger,
		)
		b := &Backend{Name: config.BackendSupabase, Store: client}
		if cfg.UseSupabaseStorage() {
			logger.Info("backups go to Supabase Storage", zap.String("bucket", cfg.SupabaseBackupBucket))
			b.Storage = client
			return b, nil
		}
		storage, err := filestore.New(cfg.BackupDir, logger)
		if err != nil {
			return nil, err
		}
		b.Storage = storage
		return b, nil

	case config.BackendSQLite:
		logger.Info("using SQLite as data backend", zap.String("path", cfg.SQLitePath))
		store, err := sqlite.Open(cfg.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		storage, err := filestore.New(cfg.BackupDir, logger)
		if err != nil {
			store.Close()
			return nil, err
		}
		return &Backend{Name: config.BackendSQLite, Store: store, Storage: storage, close: store.Close}, nil
	}
	return nil, fmt.Errorf("unknown data backend %q", cfg.DataBackend)
}
