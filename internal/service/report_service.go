// Package service provides the business logic layer (use cases).
// ReportService turns a user's stored records into reports, exports and
// calendar grids using the pure report core.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/cashbook-bfa-go/internal/domain"
	"github.com/boddenberg/cashbook-bfa-go/internal/infra/observability"
	"github.com/boddenberg/cashbook-bfa-go/internal/port"
	"github.com/boddenberg/cashbook-bfa-go/internal/report"
)

var tracer = otel.Tracer("service")

// SnapshotCache holds each user's normalized transactions between writes.
// Batches with undated records are never stored.
type SnapshotCache = port.Cache[*report.Batch]

func snapshotKey(userID string) string {
	return "transactions:" + userID
}

// ReportService builds reports from the user's full transaction history.
type ReportService struct {
	store    port.TransactionStore
	profiles port.ProfileStore
	cache    SnapshotCache
	metrics  *observability.Metrics
	logger   *zap.Logger
	loc      *time.Location
	now      func() time.Time
}

// NewReportService creates a report service reporting in loc.
func NewReportService(
	store port.TransactionStore,
	profiles port.ProfileStore,
	cache SnapshotCache,
	loc *time.Location,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *ReportService {
	if loc == nil {
		loc = time.UTC
	}
	return &ReportService{
		store:    store,
		profiles: profiles,
		cache:    cache,
		metrics:  metrics,
		logger:   logger,
		loc:      loc,
		now:      time.Now,
	}
}

// GetReport resolves the period in the report time zone and aggregates the
// user's transactions over it.
func (s *ReportService) GetReport(ctx context.Context, userID, period, start, end string) (*domain.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "ReportService.GetReport")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID), attribute.String("report.period", period))

	begin := time.Now()
	defer func() {
		s.metrics.RecordDuration("report", time.Since(begin))
	}()

	batch, err := s.snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}

	if !report.KnownPeriod(period) {
		period = domain.Period7Days
	}
	r := report.ResolveRange(period, start, end, s.now().In(s.loc))
	agg := report.Aggregate(batch.Transactions, r)

	s.metrics.RecordReport(agg.Fallback)
	span.SetAttributes(attribute.Bool("report.fallback", agg.Fallback), attribute.Int("report.count", agg.Summary.Count))

	return agg.Report(period, r, batch.Rejected), nil
}

// Export renders the transactions inside the resolved range. Unlike the
// report it never substitutes recent transactions for an empty range.
func (s *ReportService) Export(ctx context.Context, userID, format, period, start, end string) (*domain.ExportFile, error) {
	ctx, span := tracer.Start(ctx, "ReportService.Export")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID), attribute.String("export.format", format))

	f, err := report.ParseFormat(format)
	if err != nil {
		return nil, err
	}

	batch, err := s.snapshot(ctx, userID)
	if err != nil {
		s.metrics.RecordExport(string(f), "error")
		return nil, err
	}

	now := s.now().In(s.loc)
	inRange := report.Filter(batch.Transactions, report.ResolveRange(period, start, end, now))

	file, err := report.Export(f, inRange, now, s.currencySymbol(ctx, userID))
	var noData *domain.ErrNoData
	switch {
	case errors.As(err, &noData):
		s.metrics.RecordExport(string(f), "empty")
		return nil, err
	case err != nil:
		s.metrics.RecordExport(string(f), "error")
		return nil, err
	}

	s.metrics.RecordExport(string(f), "ok")
	return file, nil
}

// Calendar groups the user's transactions into the month grid containing
// month (YYYY-MM). An empty month means the current one.
func (s *ReportService) Calendar(ctx context.Context, userID, month string) (*domain.CalendarMonth, error) {
	ctx, span := tracer.Start(ctx, "ReportService.Calendar")
	defer span.End()

	anchor := domain.DateOf(s.now().In(s.loc))
	if month != "" {
		m, err := report.ParseMonth(month)
		if err != nil {
			return nil, &domain.ErrValidation{Field: "month", Message: "must be YYYY-MM"}
		}
		anchor = m
	}

	batch, err := s.snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}

	cal := report.Calendar(batch.Transactions, anchor)
	return &cal, nil
}

// AllTransactions returns the user's normalized transactions, newest first.
func (s *ReportService) AllTransactions(ctx context.Context, userID string) ([]domain.Transaction, error) {
	batch, err := s.snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	return report.MostRecent(batch.Transactions, len(batch.Transactions)), nil
}

// Invalidate drops the cached snapshot after a write.
func (s *ReportService) Invalidate(userID string) {
	s.cache.Delete(snapshotKey(userID))
}

// snapshot returns the user's normalized records, reading the legacy table
// when the primary one has nothing for the user.
func (s *ReportService) snapshot(ctx context.Context, userID string) (*report.Batch, error) {
	key := snapshotKey(userID)
	if cached, ok := s.cache.Get(key); ok {
		s.metrics.IncrCacheHit("transactions")
		return cached, nil
	}
	s.metrics.IncrCacheMiss("transactions")

	raws, err := s.store.ListTransactions(ctx, userID)
	if err != nil {
		s.metrics.IncrExternalError("transactions")
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	if len(raws) == 0 {
		raws, err = s.store.ListLegacyTransactions(ctx, userID)
		if err != nil {
			s.metrics.IncrExternalError("legacy_transactions")
			return nil, fmt.Errorf("list legacy transactions: %w", err)
		}
		if len(raws) > 0 {
			s.logger.Info("serving report from legacy records",
				zap.String("user_id", userID),
				zap.Int("records", len(raws)),
			)
		}
	}

	batch := report.NormalizeAll(raws, s.now(), s.loc, s.logger)
	s.metrics.RecordNormalization(batch.Rejected, batch.Coerced)

	// Undated records take today's date, which a cached batch would freeze.
	if batch.Undated == 0 {
		s.cache.Set(key, &batch)
	}
	return &batch, nil
}

// currencySymbol looks up the display symbol of the user's currency. Any
// failure falls back to the default currency; the export itself still works.
func (s *ReportService) currencySymbol(ctx context.Context, userID string) string {
	code := domain.DefaultCurrency
	p, err := s.profiles.GetProfile(ctx, userID)
	switch {
	case err == nil && p.Currency != "":
		code = p.Currency
	case err != nil:
		var nf *domain.ErrNotFound
		if !errors.As(err, &nf) {
			s.logger.Warn("profile lookup failed, using default currency",
				zap.String("user_id", userID),
				zap.Error(err),
			)
		}
	}
	c, ok := domain.LookupCurrency(code)
	if !ok {
		c, _ = domain.LookupCurrency(domain.DefaultCurrency)
	}
	return c.Symbol
}
