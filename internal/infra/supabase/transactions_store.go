package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/boddenberg/cashbook-bfa-go/internal/domain"
	"github.com/boddenberg/cashbook-bfa-go/internal/infra/resilience"
)

// ============================================================
// Transactions (implements port.TransactionStore)
// ============================================================

const transactionsTable = "transactions"

// transactionRow is what POST /transactions sends. The creation time goes
// to created_at, never timestamp, so the user's date is what reports see.
// Reads stay untyped because older writers used different columns.
type transactionRow struct {
	UserID    string `json:"user_id"`
	Type      string `json:"type"`
	Amount    string `json:"amount"`
	Category  string `json:"category,omitempty"`
	Source    string `json:"source,omitempty"`
	Date      string `json:"date"`
	Note      string `json:"note"`
	CreatedAt string `json:"created_at"`
}

// ListTransactions returns every stored transaction of the user.
func (c *Client) ListTransactions(ctx context.Context, userID string) ([]domain.RawRecord, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListTransactions")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	q := url.Values{}
	q.Set("user_id", "eq."+userID)
	q.Set("order", "date.desc")
	return c.listRaw(ctx, "supabase/transactions", transactionsTable, q)
}

// ListLegacyTransactions reads the shared legacy table, keyed by userId.
func (c *Client) ListLegacyTransactions(ctx context.Context, userID string) ([]domain.RawRecord, error) {
	if c.legacyTable == "" {
		return nil, nil
	}
	ctx, span := tracer.Start(ctx, "Supabase.ListLegacyTransactions")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	q := url.Values{}
	q.Set("userId", "eq."+userID)
	return c.listRaw(ctx, "supabase/legacy_transactions", c.legacyTable, q)
}

// ListRecentTransactions returns the user's latest transactions by date.
func (c *Client) ListRecentTransactions(ctx context.Context, userID string, limit int) ([]domain.RawRecord, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListRecentTransactions")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID), attribute.Int("limit", limit))

	q := url.Values{}
	q.Set("user_id", "eq."+userID)
	q.Set("order", "date.desc,created_at.desc")
	q.Set("limit", strconv.Itoa(limit))
	return c.listRaw(ctx, "supabase/transactions", transactionsTable, q)
}

func (c *Client) listRaw(ctx context.Context, service, table string, q url.Values) ([]domain.RawRecord, error) {
	var records []domain.RawRecord

	err := c.call(ctx, service, func() error {
		body, err := c.do(ctx, request{method: http.MethodGet, path: "/rest/v1/" + table + "?" + q.Encode()})
		if err != nil {
			return err
		}
		rows, err := decodeRows(body)
		if err != nil {
			return resilience.Permanent(fmt.Errorf("decode %s: %w", table, err))
		}
		records = make([]domain.RawRecord, 0, len(rows))
		for _, row := range rows {
			records = append(records, domain.RawRecord{ID: idString(row["id"]), Fields: row})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// CreateTransaction inserts a transaction and returns its id.
func (c *Client) CreateTransaction(ctx context.Context, rec *domain.NewTransactionRecord) (string, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateTransaction")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", rec.UserID))

	r, err := jsonRequest(http.MethodPost, "/rest/v1/"+transactionsTable, transactionRow{
		UserID:    rec.UserID,
		Type:      string(rec.Type),
		Amount:    rec.Amount.String(),
		Category:  rec.Category,
		Source:    rec.Source,
		Date:      rec.Date.String(),
		Note:      rec.Note,
		CreatedAt: rec.CreatedAt.UTC().Format(time.RFC3339),
	}, "return=representation")
	if err != nil {
		return "", err
	}

	var id string
	err = c.call(ctx, "supabase/transactions", func() error {
		body, err := c.do(ctx, r)
		if err != nil {
			return err
		}
		rows, err := decodeRows(body)
		if err != nil || len(rows) == 0 {
			return resilience.Permanent(fmt.Errorf("unexpected insert response: %s", body))
		}
		id = idString(rows[0]["id"])
		return nil
	})
	return id, err
}

// DeleteTransaction removes one of the user's transactions.
func (c *Client) DeleteTransaction(ctx context.Context, userID, transactionID string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteTransaction")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID), attribute.String("transaction.id", transactionID))

	q := url.Values{}
	q.Set("id", "eq."+transactionID)
	q.Set("user_id", "eq."+userID)

	return c.call(ctx, "supabase/transactions", func() error {
		body, err := c.do(ctx, request{
			method: http.MethodDelete,
			path:   "/rest/v1/" + transactionsTable + "?" + q.Encode(),
			prefer: "return=representation",
		})
		if err != nil {
			return err
		}
		rows, err := decodeRows(body)
		if err == nil && len(rows) == 0 {
			return resilience.Permanent(&domain.ErrNotFound{Resource: "transaction", ID: transactionID})
		}
		return nil
	})
}

// decodeRows keeps numbers as json.Number so amounts are not rounded
// through float64.
func decodeRows(body []byte) ([]map[string]any, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var rows []map[string]any
	if err := dec.Decode(&rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func idString(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	default:
		return fmt.Sprint(id)
	}
}
