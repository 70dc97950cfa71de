package handler

import (
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/boddenberg/cashbook-bfa-go/internal/domain"
	"github.com/boddenberg/cashbook-bfa-go/internal/service"
)

func getProfileHandler(svc *service.ProfileService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/profile")
		defer span.End()

		p, err := svc.Get(ctx, UserIDFromContext(ctx), emailFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func updateProfileHandler(svc *service.ProfileService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/profile")
		defer span.End()

		var req domain.UpdateProfileRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		p, err := svc.Update(ctx, UserIDFromContext(ctx), emailFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// uploadProfilePictureHandler takes the raw image as the request body.
func uploadProfilePictureHandler(svc *service.ProfileService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/profile/picture")
		defer span.End()

		content, err := io.ReadAll(http.MaxBytesReader(w, r.Body, service.MaxPictureBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge, "image is too large")
				return
			}
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		contentType := r.Header.Get("Content-Type")
		if contentType == "" || contentType == "application/octet-stream" {
			contentType = http.DetectContentType(content)
		}

		p, err := svc.UploadPicture(ctx, UserIDFromContext(ctx), emailFromContext(ctx), contentType, content)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}
