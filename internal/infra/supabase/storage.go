package supabase

import (
	"context"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/boddenberg/cashbook-bfa-go/internal/domain"
)

// ============================================================
// Storage (implements port.BackupStorage)
// ============================================================

// Upload writes a backup file into the configured bucket, overwriting any
// previous object at the same path. It returns "<bucket>/<path>".
func (c *Client) Upload(ctx context.Context, path string, file *domain.ExportFile) (string, error) {
	ctx, span := tracer.Start(ctx, "Supabase.Upload")
	defer span.End()
	span.SetAttributes(attribute.String("storage.path", path), attribute.Int("storage.bytes", len(file.Content)))

	if c.bucket == "" {
		return "", &domain.ErrValidation{Field: "SUPABASE_BACKUP_BUCKET", Message: "no backup bucket configured"}
	}

	objectPath := c.bucket + "/" + strings.TrimLeft(path, "/")
	r := request{
		method:      http.MethodPost,
		path:        "/storage/v1/object/" + objectPath,
		body:        file.Content,
		contentType: file.ContentType,
		headers:     map[string]string{"x-upsert": "true"},
	}

	err := c.call(ctx, "supabase/storage", func() error {
		_, err := c.do(ctx, r)
		return err
	})
	if err != nil {
		return "", err
	}
	return objectPath, nil
}
