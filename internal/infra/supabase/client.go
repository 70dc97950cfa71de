// Package supabase provides a client for Supabase (PostgREST + Storage).
// It is the hosted data backend for transactions, profiles, family links
// and backup files.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/boddenberg/cashbook-bfa-go/internal/domain"
	"github.com/boddenberg/cashbook-bfa-go/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("supabase")

// Client wraps HTTP calls to the Supabase PostgREST and Storage APIs.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	apiKey         string
	serviceRoleKey string
	legacyTable    string
	bucket         string
	cb             *gobreaker.CircuitBreaker
	cfg            resilience.Config
	logger         *zap.Logger
}

// Options are the table and bucket names that vary between deployments.
type Options struct {
	LegacyTable  string
	BackupBucket string
}

// NewClient creates a Supabase client.
func NewClient(httpClient *http.Client, baseURL, apiKey, serviceRoleKey string, opts Options, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger) *Client {
	return &Client{
		httpClient:     httpClient,
		baseURL:        baseURL,
		apiKey:         apiKey,
		serviceRoleKey: serviceRoleKey,
		legacyTable:    opts.LegacyTable,
		bucket:         opts.BackupBucket,
		cb:             cb,
		cfg:            cfg,
		logger:         logger,
	}
}

// ============================================================
// Request plumbing
// ============================================================

// request describes one PostgREST or Storage call.
type request struct {
	method      string
	path        string // relative to baseURL, e.g. /rest/v1/profiles?...
	body        []byte
	contentType string
	prefer      string
	headers     map[string]string
}

// statusError is a non-2xx answer from Supabase.
type statusError struct {
	Status int
	Body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("supabase returned status %d: %s", e.Status, e.Body)
}

func jsonRequest(method, path string, payload any, prefer string) (request, error) {
	r := request{method: method, path: path, prefer: prefer, contentType: "application/json"}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return r, err
		}
		r.body = b
	}
	return r, nil
}

// do executes an authenticated request and returns the response body.
// 4xx answers are permanent so the retry loop gives up on them.
func (c *Client) do(ctx context.Context, r request) ([]byte, error) {
	var body io.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, body)
	if err != nil {
		return nil, resilience.Permanent(err)
	}

	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.serviceRoleKey)
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	if r.prefer != "" {
		req.Header.Set("Prefer", r.prefer)
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("supabase: request failed",
			zap.String("method", r.method),
			zap.String("path", r.path),
			zap.Error(err),
		)
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("supabase: non-2xx response",
			zap.String("method", r.method),
			zap.String("path", r.path),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(respBody)),
		)
		se := &statusError{Status: resp.StatusCode, Body: string(respBody)}
		if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, resilience.Permanent(se)
		}
		return nil, se
	}

	c.logger.Debug("supabase: request OK",
		zap.String("method", r.method),
		zap.String("path", r.path),
		zap.Int("status", resp.StatusCode),
	)
	return respBody, nil
}

// call runs fn under the circuit breaker and retry policy. Domain errors
// raised by fn (not found, conflict) pass through untouched; everything
// else is reported as a failure of service.
func (c *Client) call(ctx context.Context, service string, fn func() error) error {
	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, fn)
	})
	if err == nil {
		return nil
	}

	var notFound *domain.ErrNotFound
	var conflict *domain.ErrConflict
	var se *statusError
	switch {
	case errors.As(err, &notFound), errors.As(err, &conflict):
		return err
	case errors.As(err, &se) && se.Status == http.StatusConflict:
		return &domain.ErrConflict{Message: service + ": already exists"}
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return &domain.ErrCircuitOpen{Service: service}
	}
	return &domain.ErrExternalService{Service: service, Err: err}
}

// getRows GETs a PostgREST path and decodes the array into out.
func (c *Client) getRows(ctx context.Context, path string, out any) error {
	body, err := c.do(ctx, request{method: http.MethodGet, path: path})
	if err != nil {
		return err
	}
	if len(body) == 0 {
		body = []byte("[]")
	}
	if err := json.Unmarshal(body, out); err != nil {
		return resilience.Permanent(fmt.Errorf("decode %s: %w", path, err))
	}
	return nil
}

// Ping checks that PostgREST answers with the configured key.
func (c *Client) Ping(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Supabase.Ping")
	defer span.End()

	_, err := c.do(ctx, request{method: http.MethodGet, path: "/rest/v1/profiles?select=user_id&limit=1"})
	if err != nil {
		return &domain.ErrExternalService{Service: "supabase", Err: err}
	}
	return nil
}
