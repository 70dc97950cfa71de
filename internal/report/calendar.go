package report

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/boddenberg/cashbook-bfa-go/internal/domain"
)

// ParseMonth parses a YYYY-MM month key and returns its first day.
func ParseMonth(s string) (domain.Date, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return domain.Date{}, fmt.Errorf("parse month %q: %w", s, err)
	}
	return domain.DateOf(t), nil
}

// Calendar lays out the month containing anchor as whole Sunday-first weeks.
// Days outside the month are included to complete the first and last week
// and carry their own totals.
func Calendar(txs []domain.Transaction, anchor domain.Date) domain.CalendarMonth {
	y, m, _ := anchor.Date()
	first := domain.NewDate(y, m, 1)
	last := domain.NewDate(y, m+1, 0)
	start := first.AddDays(-int(first.Weekday()))
	end := last.AddDays(int(time.Saturday - last.Weekday()))

	type cell struct {
		income, expense decimal.Decimal
		count           int
	}
	byDay := make(map[string]*cell)
	for _, t := range txs {
		if t.Date.Before(start) || t.Date.After(end) {
			continue
		}
		key := t.Date.String()
		c, ok := byDay[key]
		if !ok {
			c = &cell{income: decimal.Zero, expense: decimal.Zero}
			byDay[key] = c
		}
		c.count++
		if t.IsIncome() {
			c.income = c.income.Add(t.Amount)
		} else {
			c.expense = c.expense.Add(t.Amount)
		}
	}

	cal := domain.CalendarMonth{Month: first.MonthKey()}
	var week []domain.CalendarDay
	for d := start; !d.After(end); d = d.AddDays(1) {
		day := domain.CalendarDay{
			Date:    d,
			InMonth: d.Month() == m,
			Income:  decimal.Zero,
			Expense: decimal.Zero,
		}
		if c, ok := byDay[d.String()]; ok {
			day.Income, day.Expense, day.Count = c.income, c.expense, c.count
		}
		week = append(week, day)
		if len(week) == 7 {
			cal.Weeks = append(cal.Weeks, week)
			week = nil
		}
	}
	return cal
}
