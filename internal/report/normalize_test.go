package report

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/boddenberg/cashbook-bfa-go/internal/domain"
)

var fixedNow = time.Date(2024, time.July, 15, 12, 0, 0, 0, time.UTC)

func record(id string, fields map[string]any) domain.RawRecord {
	return domain.RawRecord{ID: id, Fields: fields}
}

func TestNormalize_DatePrecedence(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]any
		want   string
	}{
		{"timestamp wins over date", map[string]any{
			"timestamp": time.Date(2024, time.March, 2, 10, 0, 0, 0, time.UTC),
			"date":      "2024-01-01",
		}, "2024-03-02"},
		{"firestore style timestamp", map[string]any{
			"timestamp": map[string]any{"seconds": float64(1719792000), "nanoseconds": float64(0)},
		}, "2024-07-01"},
		{"epoch millis timestamp", map[string]any{"timestamp": float64(1719878400000)}, "2024-07-02"},
		{"rfc3339 timestamp string", map[string]any{"timestamp": "2024-07-03T08:00:00Z"}, "2024-07-03"},
		{"unconvertible timestamp falls through to date", map[string]any{
			"timestamp": "yesterday",
			"date":      "2024-05-20",
		}, "2024-05-20"},
		{"plain date", map[string]any{"date": "2024-05-20"}, "2024-05-20"},
		{"us date", map[string]any{"date": "5/20/2024"}, "2024-05-20"},
		{"no date uses now", map[string]any{}, "2024-07-15"},
		{"empty date uses now", map[string]any{"date": ""}, "2024-07-15"},
		{"createdAt is ignored", map[string]any{"createdAt": "2020-01-01T00:00:00Z"}, "2024-07-15"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := Normalize(record("r1", tt.fields), fixedNow, time.UTC)
			require.NoError(t, err)
			assert.Equal(t, tt.want, n.Transaction.Date.String())
		})
	}
}

func TestNormalize_TimestampUsesZone(t *testing.T) {
	dhaka := time.FixedZone("BST", 6*60*60)
	n, err := Normalize(record("r1", map[string]any{
		"timestamp": time.Date(2024, time.July, 1, 20, 0, 0, 0, time.UTC),
	}), fixedNow, dhaka)
	require.NoError(t, err)
	assert.Equal(t, "2024-07-02", n.Transaction.Date.String())
}

func TestNormalize_BadDateRejects(t *testing.T) {
	_, err := Normalize(record("r9", map[string]any{"date": "not a date", "amount": 10.0}), fixedNow, time.UTC)
	require.Error(t, err)
	var invalid *domain.ErrInvalidRecord
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "r9", invalid.ID)
}

func TestNormalize_Amount(t *testing.T) {
	tests := []struct {
		name    string
		amount  any
		want    string
		coerced bool
	}{
		{"float", 12.5, "12.5", false},
		{"int", 40, "40", false},
		{"json number", json.Number("99.99"), "99.99", false},
		{"negative is made absolute", -250.0, "250", false},
		{"currency string", "৳1,250.50", "1250.5", false},
		{"negative string", "-30", "30", false},
		{"trailing garbage", "1.2.3", "1.2", false},
		{"leading dot", ".5", "0.5", false},
		{"unparseable string", "abc", "0", true},
		{"missing", nil, "0", true},
		{"bool", true, "0", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := Normalize(record("r1", map[string]any{"amount": tt.amount}), fixedNow, time.UTC)
			require.NoError(t, err)
			assert.Equal(t, tt.want, n.Transaction.Amount.String())
			assert.Equal(t, tt.coerced, n.AmountCoerced)
			assert.False(t, n.Transaction.Amount.IsNegative())
		})
	}
}

func TestNormalize_TypeAndCategory(t *testing.T) {
	n, err := Normalize(record("r1", map[string]any{"amount": 1.0}), fixedNow, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, domain.TxExpense, n.Transaction.Type)
	assert.Equal(t, "Other", n.Transaction.Category)
	assert.Equal(t, "", n.Transaction.Note)

	n, err = Normalize(record("r2", map[string]any{"type": "Income", "source": "Salary"}), fixedNow, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, domain.TxIncome, n.Transaction.Type)
	assert.Equal(t, "Salary", n.Transaction.Category)

	n, err = Normalize(record("r3", map[string]any{"category": "Food", "source": "Salary", "note": "lunch"}), fixedNow, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, "Food", n.Transaction.Category)
	assert.Equal(t, "lunch", n.Transaction.Note)

	_, err = Normalize(record("r4", map[string]any{"type": "transfer"}), fixedNow, time.UTC)
	var invalid *domain.ErrInvalidRecord
	assert.True(t, errors.As(err, &invalid))
}

func TestNormalize_IDFromFields(t *testing.T) {
	n, err := Normalize(domain.RawRecord{Fields: map[string]any{"id": "abc"}}, fixedNow, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, "abc", n.Transaction.ID)
}

func TestNormalizeAll_DropsAndLogs(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	logger := zap.New(core)

	batch := NormalizeAll([]domain.RawRecord{
		record("ok", map[string]any{"amount": 10.0, "date": "2024-07-01"}),
		record("bad-date", map[string]any{"amount": 10.0, "date": "31/31/2024"}),
		record("bad-amount", map[string]any{"amount": "n/a", "date": "2024-07-02"}),
	}, fixedNow, time.UTC, logger)

	require.Len(t, batch.Transactions, 2)
	assert.Equal(t, "ok", batch.Transactions[0].ID)
	assert.Equal(t, "bad-amount", batch.Transactions[1].ID)
	assert.Equal(t, 1, batch.Rejected)
	assert.Equal(t, 1, batch.Coerced)
	assert.Zero(t, batch.Undated)

	entries := logs.FilterMessage("dropping transaction record").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "bad-date", entries[0].ContextMap()["record_id"])
}

func TestNormalizeAll_CountsUndatedRecords(t *testing.T) {
	batch := NormalizeAll([]domain.RawRecord{
		record("dated", map[string]any{"amount": 10.0, "date": "2024-07-01"}),
		record("undated", map[string]any{"amount": 10.0}),
		record("blank", map[string]any{"amount": 10.0, "date": "  "}),
	}, fixedNow, time.UTC, zap.NewNop())

	require.Len(t, batch.Transactions, 3)
	assert.Equal(t, 2, batch.Undated)

	n, err := Normalize(record("ts", map[string]any{"timestamp": "2024-07-02T10:00:00Z"}), fixedNow, time.UTC)
	require.NoError(t, err)
	assert.False(t, n.DateDefaulted)
}
