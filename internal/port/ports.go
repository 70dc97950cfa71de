// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the service layer
// from the hosted backend, the local SQLite store and the message broker.
package port

import (
	"context"

	"github.com/boddenberg/cashbook-bfa-go/internal/domain"
)

// TransactionStore reads and writes a user's transactions. Reads return the
// stored documents untouched; normalization happens in the report core.
type TransactionStore interface {
	ListTransactions(ctx context.Context, userID string) ([]domain.RawRecord, error)
	// ListLegacyTransactions reads the older shared table where records are
	// keyed by a userId field. Empty for stores that never had one.
	ListLegacyTransactions(ctx context.Context, userID string) ([]domain.RawRecord, error)
	ListRecentTransactions(ctx context.Context, userID string, limit int) ([]domain.RawRecord, error)
	CreateTransaction(ctx context.Context, rec *domain.NewTransactionRecord) (string, error)
	DeleteTransaction(ctx context.Context, userID, transactionID string) error
}

// ProfileStore persists user profiles.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*domain.UserProfile, error)
	// FindProfileByUsername returns ErrNotFound when no profile has the username.
	FindProfileByUsername(ctx context.Context, username string) (*domain.UserProfile, error)
	UpsertProfile(ctx context.Context, p *domain.UserProfile) error
}

// FamilyStore persists family links, the requests that create them and the
// expenses shared over them.
type FamilyStore interface {
	ListFamilyMemberIDs(ctx context.Context, userID string) ([]string, error)
	CreateFamilyRequest(ctx context.Context, req *domain.FamilyRequest) error
	GetFamilyRequest(ctx context.Context, requestID string) (*domain.FamilyRequest, error)
	// HasPendingRequest reports whether from already invited to and is waiting.
	HasPendingRequest(ctx context.Context, fromUserID, toUserID string) (bool, error)
	ListPendingRequests(ctx context.Context, toUserID string) ([]domain.FamilyRequest, error)
	// AcceptFamilyRequest links both users and marks the request accepted
	// in one atomic step.
	AcceptFamilyRequest(ctx context.Context, req *domain.FamilyRequest) error
	UpdateFamilyRequestStatus(ctx context.Context, requestID, status string) error
	// RemoveFamilyLink unlinks the two users in both directions.
	RemoveFamilyLink(ctx context.Context, userID, memberID string) error
	CreateSharedExpense(ctx context.Context, e *domain.SharedExpense) error
	// ListSharedExpenses returns up to limit expenses the user created,
	// newest first.
	ListSharedExpenses(ctx context.Context, userID string, limit int) ([]domain.SharedExpense, error)
}

// Store is everything the services need from a data backend.
type Store interface {
	TransactionStore
	ProfileStore
	FamilyStore
	Ping(ctx context.Context) error
}

// BackupStorage stores rendered backup files.
type BackupStorage interface {
	// Upload writes the file at path (e.g. backups/<uid>/2024-07.csv),
	// replacing any previous content, and returns where it landed.
	Upload(ctx context.Context, path string, file *domain.ExportFile) (string, error)
}

// JobPublisher hands backup jobs to the worker.
type JobPublisher interface {
	PublishBackupJob(ctx context.Context, job *domain.BackupJob) error
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}
