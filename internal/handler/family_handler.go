package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/boddenberg/cashbook-bfa-go/internal/domain"
	"github.com/boddenberg/cashbook-bfa-go/internal/service"
)

// ============================================================
// Family sharing
// ============================================================

func listMembersHandler(svc *service.FamilyService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/family/members")
		defer span.End()

		members, err := svc.Members(ctx, UserIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.ListResponse[domain.FamilyMember]{Data: members, Total: len(members)})
	}
}

func removeMemberHandler(svc *service.FamilyService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/family/members/{memberId}")
		defer span.End()

		memberID := chi.URLParam(r, "memberId")
		if err := svc.RemoveMember(ctx, UserIDFromContext(ctx), memberID); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.SuccessResponse{Message: "family member removed", ID: memberID})
	}
}

func listRequestsHandler(svc *service.FamilyService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/family/requests")
		defer span.End()

		reqs, err := svc.PendingRequests(ctx, UserIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.ListResponse[domain.FamilyRequest]{Data: reqs, Total: len(reqs)})
	}
}

func sendRequestHandler(svc *service.FamilyService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/family/requests")
		defer span.End()

		var body struct {
			Username string `json:"username"`
		}
		if !decodeJSON(w, r, &body) {
			return
		}

		req, err := svc.SendRequest(ctx, UserIDFromContext(ctx), body.Username)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, req)
	}
}

func acceptRequestHandler(svc *service.FamilyService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/family/requests/{requestId}/accept")
		defer span.End()

		id := chi.URLParam(r, "requestId")
		if err := svc.Accept(ctx, UserIDFromContext(ctx), id); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.SuccessResponse{Message: "family request accepted", ID: id})
	}
}

func rejectRequestHandler(svc *service.FamilyService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/family/requests/{requestId}/reject")
		defer span.End()

		id := chi.URLParam(r, "requestId")
		if err := svc.Reject(ctx, UserIDFromContext(ctx), id); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.SuccessResponse{Message: "family request rejected", ID: id})
	}
}

// GET /v1/family/transactions?member=all|<userId>
func familyTransactionsHandler(svc *service.FamilyService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/family/transactions")
		defer span.End()

		ledger, err := svc.Transactions(ctx, UserIDFromContext(ctx), r.URL.Query().Get("member"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, ledger)
	}
}

func createSharedExpenseHandler(svc *service.FamilyService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/family/expenses")
		defer span.End()

		var req domain.CreateSharedExpenseRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		e, err := svc.CreateSharedExpense(ctx, UserIDFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, e)
	}
}

func listSharedExpensesHandler(svc *service.FamilyService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/family/expenses")
		defer span.End()

		list, err := svc.SharedExpenses(ctx, UserIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.ListResponse[domain.SharedExpense]{Data: list, Total: len(list)})
	}
}

func familyStatsHandler(svc *service.FamilyService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/family/stats")
		defer span.End()

		stats, err := svc.Stats(ctx, UserIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}
