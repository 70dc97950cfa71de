package report

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boddenberg/cashbook-bfa-go/internal/domain"
)

func tx(id string, typ domain.TxType, amount int64, category, date string) domain.Transaction {
	d, err := domain.ParseDate(date)
	if err != nil {
		panic(err)
	}
	return domain.Transaction{
		ID:       id,
		Type:     typ,
		Amount:   decimal.NewFromInt(amount),
		Category: category,
		Date:     d,
	}
}

func julyScenario() []domain.Transaction {
	return []domain.Transaction{
		tx("1", domain.TxIncome, 5000, "Salary", "2024-07-01"),
		tx("2", domain.TxExpense, 500, "Food", "2024-07-02"),
		tx("3", domain.TxExpense, 1200, "Food", "2024-07-03"),
	}
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

func TestAggregate_JulyScenario(t *testing.T) {
	r := ResolveRange("thisMonth", "", "", time.Date(2024, time.July, 20, 0, 0, 0, 0, time.UTC))
	agg := Aggregate(julyScenario(), r)

	assert.False(t, agg.Fallback)
	assert.Len(t, agg.InRange, 3)
	assertDecimal(t, "5000.00", agg.Summary.TotalIncome)
	assertDecimal(t, "1700.00", agg.Summary.TotalExpenses)
	assertDecimal(t, "3300.00", agg.Summary.NetSavings)
	assert.Equal(t, 3, agg.Summary.Count)

	require.Len(t, agg.TopCategories, 1)
	assert.Equal(t, "Food", agg.TopCategories[0].Category)
	assertDecimal(t, "1700", agg.TopCategories[0].Amount)
	assertDecimal(t, "100", agg.TopCategories[0].PercentageOfExpenses)
}

func TestAggregate_FallbackToMostRecent(t *testing.T) {
	var txs []domain.Transaction
	start := domain.NewDate(2023, time.January, 1)
	for i := 0; i < 25; i++ {
		d := start.AddDays(i)
		txs = append(txs, domain.Transaction{
			ID:       fmt.Sprintf("t%02d", i),
			Type:     domain.TxExpense,
			Amount:   decimal.NewFromInt(int64(i + 1)),
			Category: "Misc",
			Date:     d,
		})
	}

	r := ResolveRange("thisMonth", "", "", time.Date(2024, time.July, 20, 0, 0, 0, 0, time.UTC))
	agg := Aggregate(txs, r)

	assert.True(t, agg.Fallback)
	assert.Empty(t, agg.InRange)
	require.Len(t, agg.Display, 20)
	assert.Equal(t, "t24", agg.Display[0].ID)
	assert.Equal(t, "t05", agg.Display[19].ID)
	for i := 1; i < len(agg.Display); i++ {
		assert.False(t, agg.Display[i].Date.After(agg.Display[i-1].Date))
	}
	assert.Equal(t, 20, agg.Summary.Count)
}

func TestAggregate_EmptyInput(t *testing.T) {
	agg := Aggregate(nil, domain.DateRange{From: domain.NewDate(2024, 1, 1), To: domain.NewDate(2024, 1, 31)})
	assert.False(t, agg.Fallback)
	assert.Empty(t, agg.Display)
	assert.True(t, agg.Summary.NetSavings.IsZero())
	assert.Empty(t, agg.TopCategories)
}

func TestAggregate_EmptyInputEncodesArrays(t *testing.T) {
	r := domain.DateRange{From: domain.NewDate(2024, 1, 1), To: domain.NewDate(2024, 1, 31)}
	agg := Aggregate(nil, r)

	assert.NotNil(t, agg.Display)
	assert.NotNil(t, agg.Categories)
	assert.NotNil(t, agg.TopCategories)
	assert.NotNil(t, agg.Daily)
	assert.NotNil(t, agg.Monthly)

	body, err := json.Marshal(agg.Report("7days", r, 0))
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))
	for _, key := range []string{"topCategories", "categories", "daily", "monthly", "transactions"} {
		assert.Equal(t, []any{}, decoded[key], key)
	}
}

func TestFilter_BoundsAndOrder(t *testing.T) {
	txs := []domain.Transaction{
		tx("a", domain.TxExpense, 1, "X", "2024-06-30"),
		tx("b", domain.TxExpense, 1, "X", "2024-07-01"),
		tx("c", domain.TxExpense, 1, "X", "2024-07-31"),
		tx("d", domain.TxExpense, 1, "X", "2024-08-01"),
		tx("e", domain.TxExpense, 1, "X", "2024-07-15"),
	}
	r := domain.DateRange{From: domain.NewDate(2024, time.July, 1), To: domain.NewDate(2024, time.July, 31)}

	got := Filter(txs, r)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"c", "e", "b"}, []string{got[0].ID, got[1].ID, got[2].ID})
	assert.LessOrEqual(t, len(got), len(txs))
	assert.Equal(t, "a", txs[0].ID, "input must not be reordered")
}

func TestCategoryBreakdown_RankingAndTies(t *testing.T) {
	txs := []domain.Transaction{
		tx("1", domain.TxExpense, 100, "Transport", "2024-07-01"),
		tx("2", domain.TxExpense, 300, "Rent", "2024-07-01"),
		tx("3", domain.TxExpense, 100, "Food", "2024-07-02"),
		tx("4", domain.TxExpense, 100, "Health", "2024-07-02"),
		tx("5", domain.TxIncome, 999, "Salary", "2024-07-03"),
	}
	s := Summarize(txs)
	cats := CategoryBreakdown(txs, s.TotalExpenses)

	require.Len(t, cats, 4)
	assert.Equal(t, "Rent", cats[0].Category)
	// equal amounts keep first-seen order
	assert.Equal(t, "Transport", cats[1].Category)
	assert.Equal(t, "Food", cats[2].Category)
	assert.Equal(t, "Health", cats[3].Category)
	assertDecimal(t, "50", cats[0].PercentageOfExpenses)
	assertDecimal(t, "16.67", cats[1].PercentageOfExpenses)

	top := Top(cats, TopCategoryCount)
	assert.Len(t, top, 3)
	for _, c := range top {
		assert.NotEqual(t, "Salary", c.Category)
	}
}

func TestCategoryBreakdown_NoExpenses(t *testing.T) {
	txs := []domain.Transaction{tx("1", domain.TxExpense, 0, "Food", "2024-07-01")}
	cats := CategoryBreakdown(txs, decimal.Zero)
	require.Len(t, cats, 1)
	assert.True(t, cats[0].PercentageOfExpenses.IsZero())
}

func TestBuckets_SumToTotalsAndAscending(t *testing.T) {
	txs := []domain.Transaction{
		tx("1", domain.TxExpense, 40, "Food", "2024-08-03"),
		tx("2", domain.TxIncome, 1000, "Salary", "2024-07-01"),
		tx("3", domain.TxExpense, 60, "Food", "2024-07-01"),
		tx("4", domain.TxExpense, 15, "Food", "2024-08-03"),
		tx("5", domain.TxIncome, 200, "Gift", "2024-08-10"),
	}
	s := Summarize(txs)

	daily := DailyBuckets(txs)
	require.Len(t, daily, 3)
	assert.Equal(t, "2024-07-01", daily[0].Date.String())
	assert.Equal(t, "2024-08-03", daily[1].Date.String())
	assert.Equal(t, "2024-08-10", daily[2].Date.String())
	assertDecimal(t, "55", daily[1].Expense)

	income, expense := decimal.Zero, decimal.Zero
	for _, b := range daily {
		income = income.Add(b.Income)
		expense = expense.Add(b.Expense)
	}
	assert.True(t, income.Equal(s.TotalIncome))
	assert.True(t, expense.Equal(s.TotalExpenses))

	monthly := MonthlyBuckets(txs)
	require.Len(t, monthly, 2)
	assert.Equal(t, "2024-07", monthly[0].Month)
	assert.Equal(t, "2024-08", monthly[1].Month)
	assertDecimal(t, "940", monthly[0].Net)
	assertDecimal(t, "145", monthly[1].Net)
}

func TestAggregate_Idempotent(t *testing.T) {
	txs := julyScenario()
	r := domain.DateRange{From: domain.NewDate(2024, time.July, 1), To: domain.NewDate(2024, time.July, 31)}

	first := Aggregate(txs, r)
	second := Aggregate(txs, r)
	assert.Equal(t, first, second)
	assert.Equal(t, julyScenario(), txs)
}
