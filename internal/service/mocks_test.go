package service

import (
	"context"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/boddenberg/cashbook-bfa-go/internal/domain"
	"github.com/boddenberg/cashbook-bfa-go/internal/infra/cache"
	"github.com/boddenberg/cashbook-bfa-go/internal/infra/observability"
	"github.com/boddenberg/cashbook-bfa-go/internal/report"
)

// --- Mocks ---

type memStore struct {
	mu       sync.Mutex
	txs      map[string][]domain.RawRecord
	legacy   map[string][]domain.RawRecord
	profiles map[string]*domain.UserProfile
	links    map[string][]string
	requests map[string]*domain.FamilyRequest
	expenses []domain.SharedExpense

	listCalls  int
	listErr    error
	recentErrs map[string]error
	created    []*domain.NewTransactionRecord
}

func newMemStore() *memStore {
	return &memStore{
		txs:        map[string][]domain.RawRecord{},
		legacy:     map[string][]domain.RawRecord{},
		profiles:   map[string]*domain.UserProfile{},
		links:      map[string][]string{},
		requests:   map[string]*domain.FamilyRequest{},
		recentErrs: map[string]error{},
	}
}

func raw(id string, typ string, amount any, category, date string) domain.RawRecord {
	return domain.RawRecord{ID: id, Fields: map[string]any{
		"type":     typ,
		"amount":   amount,
		"category": category,
		"date":     date,
	}}
}

func (m *memStore) Ping(context.Context) error { return nil }

func (m *memStore) ListTransactions(_ context.Context, userID string) ([]domain.RawRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	return slices.Clone(m.txs[userID]), nil
}

func (m *memStore) ListLegacyTransactions(_ context.Context, userID string) ([]domain.RawRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.legacy[userID]), nil
}

func (m *memStore) ListRecentTransactions(_ context.Context, userID string, limit int) ([]domain.RawRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.recentErrs[userID]; err != nil {
		return nil, err
	}
	recs := m.txs[userID]
	if len(recs) > limit {
		recs = recs[:limit]
	}
	return slices.Clone(recs), nil
}

func (m *memStore) CreateTransaction(_ context.Context, rec *domain.NewTransactionRecord) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, rec)
	id := "new-" + rec.Date.String()
	m.txs[rec.UserID] = append(m.txs[rec.UserID], domain.RawRecord{ID: id, Fields: map[string]any{
		"type":       string(rec.Type),
		"amount":     rec.Amount.String(),
		"category":   rec.Category,
		"source":     rec.Source,
		"date":       rec.Date.String(),
		"note":       rec.Note,
		"created_at": rec.CreatedAt.Format(time.RFC3339),
	}})
	return id, nil
}

func (m *memStore) DeleteTransaction(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	recs := m.txs[userID]
	for i, r := range recs {
		if r.ID == id {
			m.txs[userID] = append(recs[:i:i], recs[i+1:]...)
			return nil
		}
	}
	return &domain.ErrNotFound{Resource: "transaction", ID: id}
}

func (m *memStore) GetProfile(_ context.Context, userID string) (*domain.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "profile", ID: userID}
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) FindProfileByUsername(_ context.Context, username string) (*domain.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.profiles {
		if p.Username == username {
			cp := *p
			return &cp, nil
		}
	}
	return nil, &domain.ErrNotFound{Resource: "profile", ID: username}
}

func (m *memStore) UpsertProfile(_ context.Context, p *domain.UserProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.profiles[p.UserID] = &cp
	return nil
}

func (m *memStore) ListFamilyMemberIDs(_ context.Context, userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.links[userID]), nil
}

func (m *memStore) CreateFamilyRequest(_ context.Context, req *domain.FamilyRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *req
	m.requests[req.ID] = &cp
	return nil
}

func (m *memStore) GetFamilyRequest(_ context.Context, id string) (*domain.FamilyRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "family request", ID: id}
	}
	cp := *r
	return &cp, nil
}

func (m *memStore) HasPendingRequest(_ context.Context, from, to string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.requests {
		if r.FromUserID == from && r.ToUserID == to && r.Status == domain.RequestPending {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) ListPendingRequests(_ context.Context, to string) ([]domain.FamilyRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.FamilyRequest
	for _, r := range m.requests {
		if r.ToUserID == to && r.Status == domain.RequestPending {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memStore) AcceptFamilyRequest(_ context.Context, req *domain.FamilyRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links[req.FromUserID] = append(m.links[req.FromUserID], req.ToUserID)
	m.links[req.ToUserID] = append(m.links[req.ToUserID], req.FromUserID)
	m.requests[req.ID].Status = domain.RequestAccepted
	return nil
}

func (m *memStore) UpdateFamilyRequestStatus(_ context.Context, id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return &domain.ErrNotFound{Resource: "family request", ID: id}
	}
	r.Status = status
	return nil
}

func (m *memStore) RemoveFamilyLink(_ context.Context, userID, memberID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links[userID] = slices.DeleteFunc(m.links[userID], func(id string) bool { return id == memberID })
	m.links[memberID] = slices.DeleteFunc(m.links[memberID], func(id string) bool { return id == userID })
	return nil
}

func (m *memStore) CreateSharedExpense(_ context.Context, e *domain.SharedExpense) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	cp.SharedWith = slices.Clone(e.SharedWith)
	m.expenses = append(m.expenses, cp)
	return nil
}

func (m *memStore) ListSharedExpenses(_ context.Context, userID string, limit int) ([]domain.SharedExpense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.SharedExpense
	for i := len(m.expenses) - 1; i >= 0 && len(out) < limit; i-- {
		if m.expenses[i].UserID == userID {
			out = append(out, m.expenses[i])
		}
	}
	return out, nil
}

type memStorage struct {
	mu    sync.Mutex
	files map[string]*domain.ExportFile
}

func (m *memStorage) Upload(_ context.Context, path string, file *domain.ExportFile) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.files == nil {
		m.files = map[string]*domain.ExportFile{}
	}
	m.files[path] = file
	return "mem/" + path, nil
}

type memPublisher struct {
	jobs []*domain.BackupJob
	err  error
}

func (m *memPublisher) PublishBackupJob(_ context.Context, job *domain.BackupJob) error {
	if m.err != nil {
		return m.err
	}
	m.jobs = append(m.jobs, job)
	return nil
}

// --- Fixtures ---

// fixedNow is 2024-07-20 09:00 in Dhaka.
var (
	dhaka    = time.FixedZone("Asia/Dhaka", 6*3600)
	fixedNow = time.Date(2024, time.July, 20, 9, 0, 0, 0, dhaka)
)

func newReportService(store *memStore) *ReportService {
	svc := NewReportService(store, store, cache.New[*report.Batch](time.Minute), dhaka, observability.NewMetrics(), zap.NewNop())
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func julyRecords() []domain.RawRecord {
	return []domain.RawRecord{
		raw("1", "income", 5000, "Salary", "2024-07-01"),
		raw("2", "expense", 500, "Food", "2024-07-02"),
		raw("3", "expense", "1,200", "Food", "2024-07-03"),
	}
}
