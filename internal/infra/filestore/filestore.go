// Package filestore keeps backup files on the local disk. It is the backup
// target when the hosted storage bucket is not configured.
package filestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/cashbook-bfa-go/internal/domain"
)

var tracer = otel.Tracer("filestore")

// Store writes backups below a root directory.
type Store struct {
	root   string
	logger *zap.Logger
}

// New returns a Store rooted at dir, creating it if needed.
func New(dir string, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup directory: %w", err)
	}
	return &Store{root: dir, logger: logger}, nil
}

// Upload writes file to root/path, replacing an earlier version. The write
// goes through a temp file and a rename so readers never see a partial file.
func (s *Store) Upload(ctx context.Context, path string, file *domain.ExportFile) (string, error) {
	_, span := tracer.Start(ctx, "FileStore.Upload")
	defer span.End()
	span.SetAttributes(attribute.String("backup.path", path))

	clean := filepath.Clean(filepath.FromSlash(path))
	if filepath.IsAbs(clean) || clean == "." || strings.HasPrefix(clean, "..") {
		return "", &domain.ErrValidation{Field: "path", Message: "backup path must stay inside the backup directory"}
	}

	dst := filepath.Join(s.root, clean)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("create backup directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(file.Content); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write backup: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close backup: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("move backup into place: %w", err)
	}

	s.logger.Debug("backup written", zap.String("path", dst), zap.Int("bytes", len(file.Content)))
	return dst, nil
}
