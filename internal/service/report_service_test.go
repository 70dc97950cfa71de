package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boddenberg/cashbook-bfa-go/internal/domain"
)

func TestGetReport_ThisMonth(t *testing.T) {
	store := newMemStore()
	store.txs["u1"] = julyRecords()
	svc := newReportService(store)

	rep, err := svc.GetReport(context.Background(), "u1", domain.PeriodThisMonth, "", "")
	require.NoError(t, err)

	assert.Equal(t, "2024-07-01", rep.Range.From.String())
	assert.Equal(t, "2024-07-31", rep.Range.To.String())
	assert.False(t, rep.Fallback)
	assert.True(t, rep.Summary.TotalIncome.Equal(decimal.NewFromInt(5000)))
	assert.True(t, rep.Summary.TotalExpenses.Equal(decimal.NewFromInt(1700)))
	assert.True(t, rep.Summary.NetSavings.Equal(decimal.NewFromInt(3300)))
	require.Len(t, rep.TopCategories, 1)
	assert.Equal(t, "Food", rep.TopCategories[0].Category)
	assert.Len(t, rep.Transactions, 3)
}

func TestGetReport_UnknownPeriodIsSevenDays(t *testing.T) {
	store := newMemStore()
	store.txs["u1"] = julyRecords()
	svc := newReportService(store)

	rep, err := svc.GetReport(context.Background(), "u1", "fortnight", "", "")
	require.NoError(t, err)
	assert.Equal(t, domain.Period7Days, rep.Period)
	assert.Equal(t, "2024-07-13", rep.Range.From.String())
	assert.Equal(t, "2024-07-20", rep.Range.To.String())
	// nothing in range, so the most recent transactions stand in
	assert.True(t, rep.Fallback)
	assert.Len(t, rep.Transactions, 3)
}

func TestGetReport_FallsBackToLegacyRecords(t *testing.T) {
	store := newMemStore()
	store.legacy["u1"] = julyRecords()
	svc := newReportService(store)

	rep, err := svc.GetReport(context.Background(), "u1", domain.PeriodThisMonth, "", "")
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Summary.Count)
}

func TestGetReport_CountsRejectedRecords(t *testing.T) {
	store := newMemStore()
	store.txs["u1"] = append(julyRecords(), raw("bad", "transfer", 10, "X", "2024-07-04"))
	svc := newReportService(store)

	rep, err := svc.GetReport(context.Background(), "u1", domain.PeriodThisMonth, "", "")
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Rejected)
	assert.Equal(t, 3, rep.Summary.Count)
}

func TestGetReport_SnapshotIsCachedUntilInvalidated(t *testing.T) {
	store := newMemStore()
	store.txs["u1"] = julyRecords()
	svc := newReportService(store)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.GetReport(ctx, "u1", domain.PeriodThisMonth, "", "")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, store.listCalls)

	svc.Invalidate("u1")
	_, err := svc.GetReport(ctx, "u1", domain.PeriodThisMonth, "", "")
	require.NoError(t, err)
	assert.Equal(t, 2, store.listCalls)
}

func TestGetReport_UndatedRecordsFollowTheClock(t *testing.T) {
	store := newMemStore()
	store.txs["u1"] = append(julyRecords(), domain.RawRecord{ID: "undated", Fields: map[string]any{
		"type":     "expense",
		"amount":   75,
		"category": "Misc",
	}})
	svc := newReportService(store)
	ctx := context.Background()

	rep, err := svc.GetReport(ctx, "u1", domain.Period7Days, "", "")
	require.NoError(t, err)
	require.NotEmpty(t, rep.Transactions)
	assert.Equal(t, "undated", rep.Transactions[0].ID)
	assert.Equal(t, "2024-07-20", rep.Transactions[0].Date.String())

	svc.now = func() time.Time { return fixedNow.AddDate(0, 0, 1) }
	rep, err = svc.GetReport(ctx, "u1", domain.Period7Days, "", "")
	require.NoError(t, err)
	assert.Equal(t, 2, store.listCalls)
	require.NotEmpty(t, rep.Transactions)
	assert.Equal(t, "undated", rep.Transactions[0].ID)
	assert.Equal(t, "2024-07-21", rep.Transactions[0].Date.String())
}

func TestGetReport_StoreError(t *testing.T) {
	store := newMemStore()
	store.listErr = &domain.ErrExternalService{Service: "supabase/transactions", Err: errors.New("boom")}
	svc := newReportService(store)

	_, err := svc.GetReport(context.Background(), "u1", domain.PeriodThisMonth, "", "")
	var ext *domain.ErrExternalService
	assert.True(t, errors.As(err, &ext))
}

func TestGetReport_CancelledContext(t *testing.T) {
	svc := newReportService(newMemStore())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.GetReport(ctx, "u1", domain.PeriodThisMonth, "", "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExport_UsesRangeNotFallback(t *testing.T) {
	store := newMemStore()
	store.txs["u1"] = julyRecords()
	svc := newReportService(store)
	ctx := context.Background()

	rep, err := svc.GetReport(ctx, "u1", domain.PeriodLastMonth, "", "")
	require.NoError(t, err)
	require.True(t, rep.Fallback)

	_, err = svc.Export(ctx, "u1", "csv", domain.PeriodLastMonth, "", "")
	var noData *domain.ErrNoData
	require.True(t, errors.As(err, &noData))
	assert.Equal(t, "no data to export", err.Error())
}

func TestExport_CSVAndTextSymbol(t *testing.T) {
	store := newMemStore()
	store.txs["u1"] = julyRecords()
	store.profiles["u1"] = &domain.UserProfile{UserID: "u1", Currency: "USD"}
	svc := newReportService(store)
	ctx := context.Background()

	csv, err := svc.Export(ctx, "u1", "csv", domain.PeriodThisMonth, "", "")
	require.NoError(t, err)
	lines := strings.Split(string(csv.Content), "\n")
	assert.Equal(t, "Date,Type,Category,Amount,Note", lines[0])
	assert.Len(t, lines, 4)
	assert.Equal(t, "2024-07-03,expense,Food,1200.00,", lines[1])

	txt, err := svc.Export(ctx, "u1", "txt", domain.PeriodThisMonth, "", "")
	require.NoError(t, err)
	assert.Equal(t, "transactions_report_2024-07-20.txt", txt.Filename)
	assert.Contains(t, string(txt.Content), "Total Income: $5000.00")
}

func TestExport_DefaultCurrencyWithoutProfile(t *testing.T) {
	store := newMemStore()
	store.txs["u1"] = julyRecords()
	svc := newReportService(store)

	txt, err := svc.Export(context.Background(), "u1", "pdf", domain.PeriodThisMonth, "", "")
	require.NoError(t, err)
	assert.Contains(t, string(txt.Content), "Total Income: ৳5000.00")
}

func TestExport_InvalidFormat(t *testing.T) {
	svc := newReportService(newMemStore())
	_, err := svc.Export(context.Background(), "u1", "xlsx", domain.PeriodThisMonth, "", "")
	var validation *domain.ErrValidation
	assert.True(t, errors.As(err, &validation))
}

func TestCalendar(t *testing.T) {
	store := newMemStore()
	store.txs["u1"] = julyRecords()
	svc := newReportService(store)
	ctx := context.Background()

	cal, err := svc.Calendar(ctx, "u1", "")
	require.NoError(t, err)
	assert.Equal(t, "2024-07", cal.Month)

	cal, err = svc.Calendar(ctx, "u1", "2024-02")
	require.NoError(t, err)
	assert.Equal(t, "2024-02", cal.Month)

	_, err = svc.Calendar(ctx, "u1", "July")
	var validation *domain.ErrValidation
	assert.True(t, errors.As(err, &validation))
}

func TestAllTransactions_NewestFirst(t *testing.T) {
	store := newMemStore()
	for i := 1; i <= 9; i++ {
		store.txs["u1"] = append(store.txs["u1"], raw(fmt.Sprint(i), "expense", i, "Misc", fmt.Sprintf("2024-07-0%d", i)))
	}
	svc := newReportService(store)

	txs, err := svc.AllTransactions(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, txs, 9)
	assert.Equal(t, "9", txs[0].ID)
	assert.Equal(t, "1", txs[8].ID)
}
