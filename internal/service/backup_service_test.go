package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/boddenberg/cashbook-bfa-go/internal/domain"
	"github.com/boddenberg/cashbook-bfa-go/internal/infra/observability"
	"github.com/boddenberg/cashbook-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/cashbook-bfa-go/internal/port"
)

func newBackupService(store *memStore, storage *memStorage, pub *memPublisher) *BackupService {
	var publisher port.JobPublisher
	if pub != nil {
		publisher = pub
	}
	svc := NewBackupService(newReportService(store), storage, publisher, resilience.NewBulkhead(2), dhaka, observability.NewMetrics(), zap.NewNop())
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func TestBackupRequest_InlineUpload(t *testing.T) {
	store := newMemStore()
	store.txs["u1"] = julyRecords()
	storage := &memStorage{}
	svc := newBackupService(store, storage, nil)

	res, err := svc.Request(context.Background(), "u1", "csv")
	require.NoError(t, err)
	assert.False(t, res.Queued)
	assert.Equal(t, "mem/backups/u1/2024-07.csv", res.Path)

	file := storage.files["backups/u1/2024-07.csv"]
	require.NotNil(t, file)
	assert.Contains(t, string(file.Content), "2024-07-01,income,Salary,5000.00,")
}

func TestBackupRequest_Queued(t *testing.T) {
	pub := &memPublisher{}
	svc := newBackupService(newMemStore(), &memStorage{}, pub)

	res, err := svc.Request(context.Background(), "u1", "")
	require.NoError(t, err)
	assert.True(t, res.Queued)
	require.Len(t, pub.jobs, 1)
	assert.Equal(t, domain.ExportJSON, pub.jobs[0].Format)
	assert.Equal(t, res.JobID, pub.jobs[0].ID)
}

func TestBackupRequest_PublishFailure(t *testing.T) {
	pub := &memPublisher{err: &domain.ErrCircuitOpen{Service: "amqp"}}
	svc := newBackupService(newMemStore(), &memStorage{}, pub)

	_, err := svc.Request(context.Background(), "u1", "json")
	var open *domain.ErrCircuitOpen
	assert.True(t, errors.As(err, &open))
}

func TestBackupRequest_TextIsNotABackupFormat(t *testing.T) {
	svc := newBackupService(newMemStore(), &memStorage{}, nil)
	_, err := svc.Request(context.Background(), "u1", "txt")
	var validation *domain.ErrValidation
	assert.True(t, errors.As(err, &validation))
}

func TestBackupRun_NoTransactions(t *testing.T) {
	svc := newBackupService(newMemStore(), &memStorage{}, nil)
	_, err := svc.Run(context.Background(), &domain.BackupJob{ID: "j1", UserID: "u1", Format: domain.ExportCSV, RequestedAt: fixedNow})
	var noData *domain.ErrNoData
	assert.True(t, errors.As(err, &noData))
}

func TestBackupPath_UsesReportZone(t *testing.T) {
	// 2024-07-31 20:00 UTC is already August in Dhaka
	job := &domain.BackupJob{UserID: "u1", Format: domain.ExportJSON, RequestedAt: time.Date(2024, time.July, 31, 20, 0, 0, 0, time.UTC)}
	assert.Equal(t, "backups/u1/2024-08.json", BackupPath(job, dhaka))
	assert.Equal(t, "backups/u1/2024-07.json", BackupPath(job, time.UTC))
}
