package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/boddenberg/cashbook-bfa-go/internal/domain"
	"github.com/boddenberg/cashbook-bfa-go/internal/infra/resilience"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	return NewClient(
		srv.Client(),
		srv.URL,
		"anon-key",
		"service-key",
		Options{LegacyTable: "legacy_transactions", BackupBucket: "exports"},
		resilience.NewCircuitBreaker("supabase-test", nil),
		resilience.Config{MaxRetries: 2, InitialBackoff: time.Millisecond},
		zap.NewNop(),
	)
}

func TestListTransactions_DecodesRawRows(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/transactions", r.URL.Path)
		assert.Equal(t, "eq.user-1", r.URL.Query().Get("user_id"))
		assert.Equal(t, "anon-key", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer service-key", r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `[
			{"id": 7, "type": "expense", "amount": 12.10, "category": "Food", "date": "2024-07-02"},
			{"id": "abc", "type": "income", "amount": "৳1,000", "source": "Salary", "timestamp": "2024-07-01T10:00:00Z"}
		]`)
	})

	recs, err := c.ListTransactions(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, "7", recs[0].ID)
	assert.Equal(t, json.Number("12.10"), recs[0].Fields["amount"])
	assert.Equal(t, "abc", recs[1].ID)
	assert.Equal(t, "৳1,000", recs[1].Fields["amount"])
}

func TestListLegacyTransactions_QueriesByUserIdColumn(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/legacy_transactions", r.URL.Path)
		assert.Equal(t, "eq.user-1", r.URL.Query().Get("userId"))
		_, _ = io.WriteString(w, `[]`)
	})

	recs, err := c.ListLegacyTransactions(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestRetriesServerErrors(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "upstream hiccup", http.StatusBadGateway)
			return
		}
		_, _ = io.WriteString(w, `[{"member_id":"m1"},{"member_id":"m2"}]`)
	})

	ids, err := c.ListFamilyMemberIDs(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2"}, ids)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, `{"message":"bad filter"}`, http.StatusBadRequest)
	})

	_, err := c.ListTransactions(context.Background(), "user-1")
	var ext *domain.ErrExternalService
	require.True(t, errors.As(err, &ext))
	assert.Equal(t, "supabase/transactions", ext.Service)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGetProfile_NotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[]`)
	})

	_, err := c.GetProfile(context.Background(), "ghost")
	var nf *domain.ErrNotFound
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "profile", nf.Resource)
}

func TestUpsertProfile_ConflictOnUsername(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "resolution=merge-duplicates,return=minimal", r.Header.Get("Prefer"))
		http.Error(w, `{"code":"23505"}`, http.StatusConflict)
	})

	err := c.UpsertProfile(context.Background(), &domain.UserProfile{UserID: "u1", Username: "taken"})
	var conflict *domain.ErrConflict
	assert.True(t, errors.As(err, &conflict))
}

func TestCreateTransaction_SendsRow(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var row map[string]any
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&row)) {
			return
		}
		assert.Equal(t, "u1", row["user_id"])
		assert.Equal(t, "expense", row["type"])
		assert.Equal(t, "42.5", row["amount"])
		assert.Equal(t, "2024-07-02", row["date"])
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `[{"id":"new-id"}]`)
	})

	id, err := c.CreateTransaction(context.Background(), &domain.NewTransactionRecord{
		UserID:    "u1",
		Type:      domain.TxExpense,
		Amount:    decimal.RequireFromString("42.5"),
		Category:  "Food",
		Date:      domain.NewDate(2024, time.July, 2),
		CreatedAt: time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, "new-id", id)
}

func TestDeleteTransaction_NotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		_, _ = io.WriteString(w, `[]`)
	})

	err := c.DeleteTransaction(context.Background(), "u1", "missing")
	var nf *domain.ErrNotFound
	assert.True(t, errors.As(err, &nf))
}

func TestRemoveFamilyLink_BothDirections(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/family_links", r.URL.Path)
		assert.Equal(t,
			"(and(user_id.eq.a,member_id.eq.b),and(user_id.eq.b,member_id.eq.a))",
			r.URL.Query().Get("or"))
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, c.RemoveFamilyLink(context.Background(), "a", "b"))
}

func TestUpload_PutsObjectWithUpsert(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/storage/v1/object/exports/backups/u1/2024-07.csv", r.URL.Path)
		assert.Equal(t, "true", r.Header.Get("x-upsert"))
		assert.Equal(t, "text/csv; charset=utf-8", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "Date,Type,Category,Amount,Note", string(body))
		_, _ = io.WriteString(w, `{"Key":"exports/backups/u1/2024-07.csv"}`)
	})

	path, err := c.Upload(context.Background(), "backups/u1/2024-07.csv", &domain.ExportFile{
		Filename:    "transactions.csv",
		ContentType: "text/csv; charset=utf-8",
		Content:     []byte("Date,Type,Category,Amount,Note"),
	})
	require.NoError(t, err)
	assert.Equal(t, "exports/backups/u1/2024-07.csv", path)
}

func TestCircuitOpen(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	})
	c.cfg.MaxRetries = 0

	var err error
	for i := 0; i < 6; i++ {
		_, err = c.ListTransactions(context.Background(), "u1")
	}
	var open *domain.ErrCircuitOpen
	assert.True(t, errors.As(err, &open))
}

func TestCreateSharedExpense_SendsRow(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/rest/v1/family_transactions", r.URL.Path)
		var row map[string]any
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&row)) {
			return
		}
		assert.Equal(t, "a", row["user_id"])
		assert.Equal(t, "Groceries", row["description"])
		assert.Equal(t, 90.5, row["amount"])
		assert.Equal(t, "2024-07-20", row["date"])
		assert.Equal(t, []any{"b", "c"}, row["shared_with"])
		w.WriteHeader(http.StatusCreated)
	})

	err := c.CreateSharedExpense(context.Background(), &domain.SharedExpense{
		ID:          "e1",
		UserID:      "a",
		Description: "Groceries",
		Amount:      decimal.RequireFromString("90.50"),
		Category:    domain.DefaultSharedCategory,
		Date:        domain.NewDate(2024, time.July, 20),
		SharedWith:  []string{"b", "c"},
		CreatedAt:   time.Now(),
	})
	require.NoError(t, err)
}

func TestListSharedExpenses_QueriesNewestFirst(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/family_transactions", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "eq.a", q.Get("user_id"))
		assert.Equal(t, "created_at.desc", q.Get("order"))
		assert.Equal(t, "50", q.Get("limit"))
		_, _ = io.WriteString(w, `[{"id":"e1","user_id":"a","description":"Groceries","amount":"90.50",
			"category":"Other","date":"2024-07-20","shared_with":["b"],"created_at":"2024-07-20T09:00:00Z"}]`)
	})

	list, err := c.ListSharedExpenses(context.Background(), "a", 50)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Amount.Equal(decimal.RequireFromString("90.5")))
	assert.Equal(t, "2024-07-20", list[0].Date.String())
	assert.Equal(t, []string{"b"}, list[0].SharedWith)
}
