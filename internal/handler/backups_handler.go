package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/boddenberg/cashbook-bfa-go/internal/service"
)

// POST /v1/backups {"format": "csv"|"json"}
func requestBackupHandler(svc *service.BackupService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/backups")
		defer span.End()

		var body struct {
			Format string `json:"format"`
		}
		if r.ContentLength != 0 && !decodeJSON(w, r, &body) {
			return
		}

		res, err := svc.Request(ctx, UserIDFromContext(ctx), body.Format)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		status := http.StatusCreated
		if res.Queued {
			status = http.StatusAccepted
		}
		writeJSON(w, status, res)
	}
}
