package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/cashbook-bfa-go/internal/domain"
	"github.com/boddenberg/cashbook-bfa-go/internal/infra/observability"
	"github.com/boddenberg/cashbook-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/cashbook-bfa-go/internal/port"
	"github.com/boddenberg/cashbook-bfa-go/internal/report"
)

// BackupService renders a user's full history and stores it. Jobs go
// through the publisher when one is configured and run inline otherwise.
type BackupService struct {
	reports   *ReportService
	storage   port.BackupStorage
	publisher port.JobPublisher
	bulkhead  *resilience.Bulkhead
	metrics   *observability.Metrics
	logger    *zap.Logger
	loc       *time.Location
	now       func() time.Time
}

// NewBackupService creates a backup service. publisher may be nil.
func NewBackupService(
	reports *ReportService,
	storage port.BackupStorage,
	publisher port.JobPublisher,
	bulkhead *resilience.Bulkhead,
	loc *time.Location,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *BackupService {
	if loc == nil {
		loc = time.UTC
	}
	return &BackupService{
		reports:   reports,
		storage:   storage,
		publisher: publisher,
		bulkhead:  bulkhead,
		metrics:   metrics,
		logger:    logger,
		loc:       loc,
		now:       time.Now,
	}
}

// Request creates a backup job for the user.
func (s *BackupService) Request(ctx context.Context, userID, format string) (*domain.BackupResult, error) {
	ctx, span := tracer.Start(ctx, "BackupService.Request")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID), attribute.String("backup.format", format))

	f, err := backupFormat(format)
	if err != nil {
		return nil, err
	}

	job := &domain.BackupJob{
		ID:          uuid.NewString(),
		UserID:      userID,
		Format:      f,
		RequestedAt: s.now().UTC(),
	}

	if s.publisher != nil {
		if err := s.publisher.PublishBackupJob(ctx, job); err != nil {
			s.metrics.RecordBackup("failed")
			return nil, fmt.Errorf("queue backup: %w", err)
		}
		s.metrics.RecordBackup("queued")
		return &domain.BackupResult{JobID: job.ID, Queued: true}, nil
	}

	path, err := s.Run(ctx, job)
	if err != nil {
		return nil, err
	}
	return &domain.BackupResult{JobID: job.ID, Path: path}, nil
}

// Run renders and uploads one job. The worker calls it for every consumed
// message; concurrent runs are bounded by the bulkhead.
func (s *BackupService) Run(ctx context.Context, job *domain.BackupJob) (string, error) {
	ctx, span := tracer.Start(ctx, "BackupService.Run")
	defer span.End()
	span.SetAttributes(attribute.String("job.id", job.ID), attribute.String("user.id", job.UserID))

	var path string
	err := s.bulkhead.Do(ctx, func(ctx context.Context) error {
		// the worker must see writes made since its last snapshot
		s.reports.Invalidate(job.UserID)
		txs, err := s.reports.AllTransactions(ctx, job.UserID)
		if err != nil {
			return err
		}

		file, err := report.Export(job.Format, txs, s.now().In(s.loc), "")
		if err != nil {
			return err
		}

		path, err = s.storage.Upload(ctx, BackupPath(job, s.loc), file)
		if err != nil {
			return fmt.Errorf("upload backup: %w", err)
		}
		return nil
	})
	if err != nil {
		s.metrics.RecordBackup("failed")
		s.logger.Error("backup failed", zap.String("job_id", job.ID), zap.String("user_id", job.UserID), zap.Error(err))
		return "", err
	}

	s.metrics.RecordBackup("completed")
	s.logger.Info("backup stored", zap.String("job_id", job.ID), zap.String("path", path))
	return path, nil
}

// BackupPath is where a job's file lands: one file per user and month,
// so a second backup in the same month replaces the first.
func BackupPath(job *domain.BackupJob, loc *time.Location) string {
	return fmt.Sprintf("backups/%s/%s.%s", job.UserID, job.RequestedAt.In(loc).Format("2006-01"), job.Format)
}

func backupFormat(s string) (domain.ExportFormat, error) {
	if s == "" {
		return domain.ExportJSON, nil
	}
	f, err := report.ParseFormat(s)
	if err != nil || f == domain.ExportText {
		return "", &domain.ErrValidation{Field: "format", Message: "must be csv or json"}
	}
	return f, nil
}
