package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/boddenberg/cashbook-bfa-go/internal/domain"
	"github.com/boddenberg/cashbook-bfa-go/internal/infra/observability"
	"github.com/boddenberg/cashbook-bfa-go/internal/service"
)

var tracer = otel.Tracer("handler")

const healthCheckTimeout = 2 * time.Second

// Pinger is a dependency the health check can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services groups everything the routes call. Any field may be nil; the
// matching routes then answer 503.
type Services struct {
	Reports      *service.ReportService
	Transactions *service.TransactionService
	Profiles     *service.ProfileService
	Family       *service.FamilyService
	Backups      *service.BackupService
	Tokens       *service.TokenVerifier
	Backend      string
	Store        Pinger
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(svcs Services, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(svcs, logger))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		r.Get("/currencies", currenciesHandler())
		r.Get("/stats", statsHandler(metrics))

		if svcs.Tokens == nil {
			r.Handle("/*", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(w, http.StatusServiceUnavailable, "authentication is not configured")
			}))
			return
		}

		r.Group(func(r chi.Router) {
			r.Use(JWTAuthMiddleware(svcs.Tokens, logger))

			// Reports
			r.Get("/reports", requireService(svcs.Reports, reportHandler, logger))
			r.Get("/reports/export", requireService(svcs.Reports, exportHandler, logger))
			r.Get("/calendar", requireService(svcs.Reports, calendarHandler, logger))

			// Dashboard
			r.Get("/transactions", requireService(svcs.Transactions, listTransactionsHandler, logger))
			r.Post("/transactions", requireService(svcs.Transactions, createTransactionHandler, logger))
			r.Delete("/transactions/{transactionId}", requireService(svcs.Transactions, deleteTransactionHandler, logger))
			r.Get("/balance", requireService(svcs.Transactions, balanceHandler, logger))

			// Profile
			r.Get("/profile", requireService(svcs.Profiles, getProfileHandler, logger))
			r.Put("/profile", requireService(svcs.Profiles, updateProfileHandler, logger))
			r.Put("/profile/picture", requireService(svcs.Profiles, uploadProfilePictureHandler, logger))

			// Family
			r.Get("/family/members", requireService(svcs.Family, listMembersHandler, logger))
			r.Delete("/family/members/{memberId}", requireService(svcs.Family, removeMemberHandler, logger))
			r.Get("/family/requests", requireService(svcs.Family, listRequestsHandler, logger))
			r.Post("/family/requests", requireService(svcs.Family, sendRequestHandler, logger))
			r.Post("/family/requests/{requestId}/accept", requireService(svcs.Family, acceptRequestHandler, logger))
			r.Post("/family/requests/{requestId}/reject", requireService(svcs.Family, rejectRequestHandler, logger))
			r.Get("/family/transactions", requireService(svcs.Family, familyTransactionsHandler, logger))
			r.Get("/family/expenses", requireService(svcs.Family, listSharedExpensesHandler, logger))
			r.Post("/family/expenses", requireService(svcs.Family, createSharedExpenseHandler, logger))
			r.Get("/family/stats", requireService(svcs.Family, familyStatsHandler, logger))

			// Backups
			r.Post("/backups", requireService(svcs.Backups, requestBackupHandler, logger))
		})
	})

	return r
}

// requireService builds the handler, or a 503 stub when svc is nil.
func requireService[S any](svc *S, build func(*S, *zap.Logger) http.HandlerFunc, logger *zap.Logger) http.HandlerFunc {
	if svc == nil {
		return func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusServiceUnavailable, "service unavailable")
		}
	}
	return build(svc, logger)
}

// ============================================================
// Operational
// ============================================================

func healthzHandler(svcs Services, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().Format(time.RFC3339)

		services := []domain.ServiceHealth{
			{Name: "cashbook-bfa", Status: "healthy", LatencyMs: 0, LastChecked: now},
		}

		if svcs.Store != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			defer cancel()

			start := time.Now()
			err := svcs.Store.Ping(ctx)
			status := "healthy"
			if err != nil {
				logger.Warn("backend health check failed", zap.Error(err))
				status = "degraded"
			}
			services = append(services, domain.ServiceHealth{
				Name: svcs.Backend, Status: status,
				LatencyMs: time.Since(start).Milliseconds(), LastChecked: now,
			})
		}

		overallStatus := "healthy"
		for _, s := range services {
			if s.Status == "unhealthy" {
				overallStatus = "unhealthy"
				break
			}
			if s.Status == "degraded" {
				overallStatus = "degraded"
			}
		}

		writeJSON(w, http.StatusOK, domain.HealthStatus{
			Status:   overallStatus,
			Backend:  svcs.Backend,
			Services: services,
		})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func statsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.Snapshot())
	}
}

func currenciesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, domain.ListResponse[domain.Currency]{
			Data:  domain.Currencies,
			Total: len(domain.Currencies),
		})
	}
}
