// Package worker holds the consumers that run behind the message queue.
package worker

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/boddenberg/cashbook-bfa-go/internal/domain"
)

// BackupRunner renders and stores one backup.
type BackupRunner interface {
	Run(ctx context.Context, job *domain.BackupJob) (string, error)
}

// BackupWorker handles backup jobs taken off the queue.
type BackupWorker struct {
	runner BackupRunner
	logger *zap.Logger
}

// NewBackupWorker creates a worker around runner.
func NewBackupWorker(runner BackupRunner, logger *zap.Logger) *BackupWorker {
	return &BackupWorker{runner: runner, logger: logger}
}

// HandleBackupJob runs the job. Jobs that can never succeed (nothing to
// back up, a bad format) are acknowledged; anything else is returned so
// the broker redelivers it.
func (w *BackupWorker) HandleBackupJob(ctx context.Context, job *domain.BackupJob) error {
	w.logger.Info("processing backup job",
		zap.String("job_id", job.ID),
		zap.String("user_id", job.UserID),
		zap.String("format", string(job.Format)),
	)

	path, err := w.runner.Run(ctx, job)
	var (
		noData     *domain.ErrNoData
		validation *domain.ErrValidation
	)
	switch {
	case errors.As(err, &noData):
		w.logger.Info("nothing to back up", zap.String("job_id", job.ID))
		return nil
	case errors.As(err, &validation):
		w.logger.Warn("dropping invalid backup job", zap.String("job_id", job.ID), zap.Error(err))
		return nil
	case err != nil:
		return err
	}

	w.logger.Info("backup job done", zap.String("job_id", job.ID), zap.String("path", path))
	return nil
}
