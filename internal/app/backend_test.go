package app_test

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/boddenberg/cashbook-bfa-go/internal/app"
	"github.com/boddenberg/cashbook-bfa-go/internal/config"
	"github.com/boddenberg/cashbook-bfa-go/internal/handler"
	"github.com/boddenberg/cashbook-bfa-go/internal/infra/cache"
	"github.com/boddenberg/cashbook-bfa-go/internal/infra/filestore"
	"github.com/boddenberg/cashbook-bfa-go/internal/infra/observability"
	"github.com/boddenberg/cashbook-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/cashbook-bfa-go/internal/infra/sqlite"
	"github.com/boddenberg/cashbook-bfa-go/internal/report"
	"github.com/boddenberg/cashbook-bfa-go/internal/service"
)

func testConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	return &config.Config{
		Port:           8080,
		DataBackend:    config.BackendSQLite,
		SQLitePath:     filepath.Join(dir, "cashbook.db"),
		BackupDir:      filepath.Join(dir, "data"),
		JWTSecret:      "secret",
		HTTPTimeout:    time.Second,
		MaxRetries:     1,
		InitialBackoff: time.Millisecond,
		MaxConcurrency: 2,
		CacheTTL:       time.Minute,
		ReportTimezone: "UTC",
	}
}

func TestOpenBackend_SQLite(t *testing.T) {
	cfg := testConfig(t)

	b, err := app.OpenBackend(cfg, zap.NewNop())
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, config.BackendSQLite, b.Name)
	assert.IsType(t, &sqlite.Store{}, b.Store)
	assert.IsType(t, &filestore.Store{}, b.Storage)
}

func TestOpenBackend_SupabaseStorageSelection(t *testing.T) {
	cfg := testConfig(t)
	cfg.DataBackend = config.BackendSupabase
	cfg.SupabaseURL = "http://localhost:1"
	cfg.SupabaseServiceKey = "service"

	b, err := app.OpenBackend(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &filestore.Store{}, b.Storage)
	assert.NoError(t, b.Close())

	cfg.SupabaseBackupBucket = "exports"
	b, err = app.OpenBackend(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.Same(t, b.Store, b.Storage)
}

func TestOpenBackend_Unknown(t *testing.T) {
	cfg := testConfig(t)
	cfg.DataBackend = "mongo"
	_, err := app.OpenBackend(cfg, zap.NewNop())
	assert.Error(t, err)
}

// TestIntegration_SupabaseFullFlow serves a mock PostgREST and drives the
// whole HTTP stack against it.
func TestIntegration_SupabaseFullFlow(t *testing.T) {
	today := time.Now().UTC().Format("2006-01-02")

	supabaseMock := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/rest/v1/profiles":
			_, _ = io.WriteString(w, `[]`)
		case "/rest/v1/transactions":
			assert.Equal(t, "eq.user-1", r.URL.Query().Get("user_id"))
			_, _ = fmt.Fprintf(w, `[
				{"id": 1, "type": "income", "amount": 2500, "source": "Salary", "date": %q},
				{"id": 2, "type": "expense", "amount": "৳300.50", "category": "Transport", "date": %q},
				{"id": 3, "type": "expense", "amount": 99, "category": "Food", "date": "not a date"}
			]`, today, today)
		default:
			http.NotFound(w, r)
		}
	}))
	defer supabaseMock.Close()

	cfg := testConfig(t)
	cfg.DataBackend = config.BackendSupabase
	cfg.SupabaseURL = supabaseMock.URL
	cfg.SupabaseServiceKey = "service"

	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	b, err := app.OpenBackend(cfg, logger)
	require.NoError(t, err)

	snapshots := cache.New[*report.Batch](cfg.CacheTTL)
	defer snapshots.Close()
	reports := service.NewReportService(b.Store, b.Store, snapshots, cfg.Location(), metrics, logger)
	tokens := service.NewTokenVerifier(cfg.JWTSecret)

	router := handler.NewRouter(handler.Services{
		Reports: reports,
		Backups: service.NewBackupService(reports, b.Storage, nil, resilience.NewBulkhead(1), cfg.Location(), metrics, logger),
		Tokens:  tokens,
		Backend: b.Name,
		Store:   b.Store,
	}, metrics, logger)
	server := httptest.NewServer(router)
	defer server.Close()

	token, err := tokens.Sign(&service.Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}})
	require.NoError(t, err)

	get := func(path string) *http.Response {
		req, err := http.NewRequest(http.MethodGet, server.URL+path, nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	// --- Health ---
	resp := get("/healthz")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var health map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, "supabase", health["backend"])

	// --- Report ---
	resp = get("/v1/reports?period=thisMonth")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rep struct {
		Rejected int `json:"rejected"`
		Summary  struct {
			TotalIncome   float64 `json:"totalIncome"`
			TotalExpenses float64 `json:"totalExpenses"`
			NetSavings    float64 `json:"netSavings"`
		} `json:"summary"`
		TopCategories []struct {
			Category string `json:"category"`
		} `json:"topCategories"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rep))
	assert.Equal(t, 1, rep.Rejected)
	assert.Equal(t, 2500.0, rep.Summary.TotalIncome)
	assert.Equal(t, 300.5, rep.Summary.TotalExpenses)
	assert.Equal(t, 2199.5, rep.Summary.NetSavings)
	require.Len(t, rep.TopCategories, 1)
	assert.Equal(t, "Transport", rep.TopCategories[0].Category)

	// --- Text export uses the default currency without a profile ---
	resp = get("/v1/reports/export?format=txt&period=thisMonth")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "Total Income: ৳2500.00"), string(body))

	// --- Stats reflect the work done ---
	resp = get("/v1/stats")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stats map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, 1.0, stats["reportsBuilt"])
	assert.Equal(t, 1.0, stats["recordsRejected"])
}
