package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/cashbook-bfa-go/internal/domain"
	"github.com/boddenberg/cashbook-bfa-go/internal/infra/observability"
	"github.com/boddenberg/cashbook-bfa-go/internal/port"
	"github.com/boddenberg/cashbook-bfa-go/internal/report"
)

const (
	// DefaultListLimit is how many transactions the dashboard shows.
	DefaultListLimit = 50
	maxListLimit     = 500
	maxNoteLength    = 500
)

// TransactionService handles the dashboard: recent list, create, delete
// and the running balance.
type TransactionService struct {
	store   port.TransactionStore
	reports *ReportService
	metrics *observability.Metrics
	logger  *zap.Logger
	loc     *time.Location
	now     func() time.Time
}

// NewTransactionService creates a transaction service. Writes invalidate
// the report snapshot held by reports.
func NewTransactionService(
	store port.TransactionStore,
	reports *ReportService,
	loc *time.Location,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *TransactionService {
	if loc == nil {
		loc = time.UTC
	}
	return &TransactionService{
		store:   store,
		reports: reports,
		metrics: metrics,
		logger:  logger,
		loc:     loc,
		now:     time.Now,
	}
}

// List returns the user's most recent transactions, newest first.
func (s *TransactionService) List(ctx context.Context, userID string, limit int) ([]domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "TransactionService.List")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	raws, err := s.store.ListRecentTransactions(ctx, userID, limit)
	if err != nil {
		s.metrics.IncrExternalError("transactions")
		return nil, fmt.Errorf("list recent transactions: %w", err)
	}

	batch := report.NormalizeAll(raws, s.now(), s.loc, s.logger)
	s.metrics.RecordNormalization(batch.Rejected, batch.Coerced)
	return report.MostRecent(batch.Transactions, limit), nil
}

// Create validates and stores a new transaction.
func (s *TransactionService) Create(ctx context.Context, userID string, req *domain.CreateTransactionRequest) (*domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "TransactionService.Create")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID), attribute.String("transaction.type", string(req.Type)))

	rec, err := s.validate(userID, req)
	if err != nil {
		return nil, err
	}

	id, err := s.store.CreateTransaction(ctx, rec)
	if err != nil {
		s.metrics.IncrExternalError("transactions")
		return nil, fmt.Errorf("create transaction: %w", err)
	}
	s.reports.Invalidate(userID)

	category := rec.Category
	if category == "" {
		category = rec.Source
	}
	s.logger.Info("transaction created",
		zap.String("user_id", userID),
		zap.String("transaction_id", id),
		zap.String("type", string(rec.Type)),
	)

	return &domain.Transaction{
		ID:       id,
		Type:     rec.Type,
		Amount:   rec.Amount,
		Category: category,
		Date:     rec.Date,
		Note:     rec.Note,
	}, nil
}

func (s *TransactionService) validate(userID string, req *domain.CreateTransactionRequest) (*domain.NewTransactionRecord, error) {
	if !req.Type.Valid() {
		return nil, &domain.ErrValidation{Field: "type", Message: "must be income or expense"}
	}

	if !req.Amount.IsPositive() {
		return nil, &domain.ErrValidation{Field: "amount", Message: "must be greater than zero"}
	}

	if strings.TrimSpace(req.Date) == "" {
		return nil, &domain.ErrValidation{Field: "date", Message: "is required"}
	}
	date, err := domain.ParseDate(req.Date)
	if err != nil {
		return nil, &domain.ErrValidation{Field: "date", Message: "must be YYYY-MM-DD"}
	}

	category := strings.TrimSpace(req.Category)
	source := strings.TrimSpace(req.Source)
	switch req.Type {
	case domain.TxExpense:
		if category == "" {
			return nil, &domain.ErrValidation{Field: "category", Message: "is required for expenses"}
		}
	case domain.TxIncome:
		if source == "" && category == "" {
			return nil, &domain.ErrValidation{Field: "source", Message: "is required for income"}
		}
		if source == "" {
			source = category
		}
		category = ""
	}

	note := strings.TrimSpace(req.Note)
	if len([]rune(note)) > maxNoteLength {
		return nil, &domain.ErrValidation{Field: "note", Message: fmt.Sprintf("must be at most %d characters", maxNoteLength)}
	}

	return &domain.NewTransactionRecord{
		UserID:    userID,
		Type:      req.Type,
		Amount:    req.Amount.Round(2),
		Category:  category,
		Source:    source,
		Date:      date,
		Note:      note,
		CreatedAt: s.now().UTC(),
	}, nil
}

// Delete removes one of the user's transactions.
func (s *TransactionService) Delete(ctx context.Context, userID, transactionID string) error {
	ctx, span := tracer.Start(ctx, "TransactionService.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID), attribute.String("transaction.id", transactionID))

	if err := s.store.DeleteTransaction(ctx, userID, transactionID); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	s.reports.Invalidate(userID)
	return nil
}

// Balance sums the user's whole history.
func (s *TransactionService) Balance(ctx context.Context, userID string) (*domain.Balance, error) {
	ctx, span := tracer.Start(ctx, "TransactionService.Balance")
	defer span.End()

	txs, err := s.reports.AllTransactions(ctx, userID)
	if err != nil {
		return nil, err
	}

	sum := report.Summarize(txs)
	return &domain.Balance{
		TotalIncome:   sum.TotalIncome,
		TotalExpenses: sum.TotalExpenses,
		Balance:       sum.NetSavings,
		Count:         sum.Count,
	}, nil
}
