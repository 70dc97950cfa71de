package handler

import (
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/cashbook-bfa-go/internal/domain"
	"github.com/boddenberg/cashbook-bfa-go/internal/service"
)

// ============================================================
// Reports: GET /v1/reports?period=7days|thisMonth|lastMonth|custom&start=&end=
// ============================================================

func reportHandler(svc *service.ReportService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/reports")
		defer span.End()

		q := r.URL.Query()
		period := q.Get("period")
		if period == "" {
			period = domain.Period7Days
		}
		span.SetAttributes(attribute.String("report.period", period))

		rep, err := svc.GetReport(ctx, UserIDFromContext(ctx), period, q.Get("start"), q.Get("end"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, rep)
	}
}

// ============================================================
// Export: GET /v1/reports/export?format=csv|json|txt&period=...
// ============================================================

func exportHandler(svc *service.ReportService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/reports/export")
		defer span.End()

		q := r.URL.Query()
		format := q.Get("format")
		if format == "" {
			format = string(domain.ExportCSV)
		}
		period := q.Get("period")
		if period == "" {
			period = domain.Period7Days
		}
		span.SetAttributes(attribute.String("export.format", format))

		file, err := svc.Export(ctx, UserIDFromContext(ctx), format, period, q.Get("start"), q.Get("end"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		w.Header().Set("Content-Type", file.ContentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(file.Content); err != nil {
			logger.Warn("export write failed", zap.Error(err))
		}
	}
}

// ============================================================
// Calendar: GET /v1/calendar?month=YYYY-MM
// ============================================================

func calendarHandler(svc *service.ReportService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/calendar")
		defer span.End()

		cal, err := svc.Calendar(ctx, UserIDFromContext(ctx), r.URL.Query().Get("month"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, cal)
	}
}
