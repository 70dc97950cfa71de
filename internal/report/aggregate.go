package report

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/boddenberg/cashbook-bfa-go/internal/domain"
)

const (
	// FallbackSize is how many recent transactions stand in for an empty range.
	FallbackSize = 20
	// TopCategoryCount is the length of the top categories list.
	TopCategoryCount = 3
)

var hundred = decimal.NewFromInt(100)

// Aggregation is the derived view of a transaction list over a range.
type Aggregation struct {
	// InRange holds the transactions inside the range, newest first.
	// Exports are built from this list.
	InRange []domain.Transaction
	// Display is InRange, or the most recent transactions when InRange is
	// empty but data exists. Every total below is computed over Display.
	Display       []domain.Transaction
	Fallback      bool
	Summary       domain.Summary
	Categories    []domain.CategoryTotal
	TopCategories []domain.CategoryTotal
	Daily         []domain.DayBucket
	Monthly       []domain.MonthBucket
}

// Aggregate filters txs to r and derives every total and series the report
// needs. txs is not modified.
func Aggregate(txs []domain.Transaction, r domain.DateRange) Aggregation {
	inRange := Filter(txs, r)

	display := inRange
	fallback := false
	if len(inRange) == 0 && len(txs) > 0 {
		display = MostRecent(txs, FallbackSize)
		fallback = true
	}

	summary := Summarize(display)
	categories := CategoryBreakdown(display, summary.TotalExpenses)

	return Aggregation{
		InRange:       inRange,
		Display:       display,
		Fallback:      fallback,
		Summary:       summary,
		Categories:    categories,
		TopCategories: Top(categories, TopCategoryCount),
		Daily:         DailyBuckets(display),
		Monthly:       MonthlyBuckets(display),
	}
}

// Report packages an aggregation as the report payload.
func (a Aggregation) Report(period string, r domain.DateRange, rejected int) *domain.Report {
	return &domain.Report{
		Period:        period,
		Range:         r,
		Fallback:      a.Fallback,
		Summary:       a.Summary,
		TopCategories: a.TopCategories,
		Categories:    a.Categories,
		Daily:         a.Daily,
		Monthly:       a.Monthly,
		Transactions:  a.Display,
		Rejected:      rejected,
	}
}

// Filter returns the transactions whose date lies in r, newest first.
func Filter(txs []domain.Transaction, r domain.DateRange) []domain.Transaction {
	out := make([]domain.Transaction, 0, len(txs))
	for _, t := range txs {
		if r.Contains(t.Date) {
			out = append(out, t)
		}
	}
	sortNewestFirst(out)
	return out
}

// MostRecent returns up to n transactions, newest first.
func MostRecent(txs []domain.Transaction, n int) []domain.Transaction {
	out := make([]domain.Transaction, len(txs))
	copy(out, txs)
	sortNewestFirst(out)
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// sortNewestFirst orders by date descending; same-day items keep input order.
func sortNewestFirst(txs []domain.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].Date.After(txs[j].Date)
	})
}

// Summarize sums income and expenses. NetSavings is exact.
func Summarize(txs []domain.Transaction) domain.Summary {
	s := domain.Summary{
		TotalIncome:   decimal.Zero,
		TotalExpenses: decimal.Zero,
		Count:         len(txs),
	}
	for _, t := range txs {
		if t.IsIncome() {
			s.TotalIncome = s.TotalIncome.Add(t.Amount)
		} else {
			s.TotalExpenses = s.TotalExpenses.Add(t.Amount)
		}
	}
	s.NetSavings = s.TotalIncome.Sub(s.TotalExpenses)
	return s
}

// CategoryBreakdown groups expenses by category, largest first. Ties keep
// the order in which the categories were first seen. Percentages are of
// totalExpenses, rounded to two places, and zero when there are no expenses.
func CategoryBreakdown(txs []domain.Transaction, totalExpenses decimal.Decimal) []domain.CategoryTotal {
	index := make(map[string]int)
	out := make([]domain.CategoryTotal, 0)
	for _, t := range txs {
		if t.IsIncome() {
			continue
		}
		i, ok := index[t.Category]
		if !ok {
			i = len(out)
			index[t.Category] = i
			out = append(out, domain.CategoryTotal{Category: t.Category, Amount: decimal.Zero})
		}
		out[i].Amount = out[i].Amount.Add(t.Amount)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Amount.GreaterThan(out[j].Amount)
	})

	for i := range out {
		out[i].PercentageOfExpenses = decimal.Zero
		if totalExpenses.IsPositive() {
			out[i].PercentageOfExpenses = out[i].Amount.Div(totalExpenses).Mul(hundred).Round(2)
		}
	}
	return out
}

// Top returns the first n entries of a ranked breakdown.
func Top(categories []domain.CategoryTotal, n int) []domain.CategoryTotal {
	if len(categories) <= n {
		return categories
	}
	return categories[:n]
}

// DailyBuckets totals income and expense per calendar day, oldest first.
// Only days with at least one transaction appear.
func DailyBuckets(txs []domain.Transaction) []domain.DayBucket {
	index := make(map[domain.Date]int)
	out := make([]domain.DayBucket, 0)
	for _, t := range txs {
		i, ok := index[t.Date]
		if !ok {
			i = len(out)
			index[t.Date] = i
			out = append(out, domain.DayBucket{Date: t.Date, Income: decimal.Zero, Expense: decimal.Zero})
		}
		if t.IsIncome() {
			out[i].Income = out[i].Income.Add(t.Amount)
		} else {
			out[i].Expense = out[i].Expense.Add(t.Amount)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// MonthlyBuckets totals income and expense per year-month, oldest first.
func MonthlyBuckets(txs []domain.Transaction) []domain.MonthBucket {
	index := make(map[string]int)
	out := make([]domain.MonthBucket, 0)
	for _, t := range txs {
		key := t.Date.MonthKey()
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, domain.MonthBucket{Month: key, Income: decimal.Zero, Expense: decimal.Zero})
		}
		if t.IsIncome() {
			out[i].Income = out[i].Income.Add(t.Amount)
		} else {
			out[i].Expense = out[i].Expense.Add(t.Amount)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	for i := range out {
		out[i].Net = out[i].Income.Sub(out[i].Expense)
	}
	return out
}
