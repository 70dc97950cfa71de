package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boddenberg/cashbook-bfa-go/internal/domain"
)

func TestCalendar_July2024(t *testing.T) {
	anchor, err := ParseMonth("2024-07")
	require.NoError(t, err)

	txs := []domain.Transaction{
		tx("1", domain.TxIncome, 5000, "Salary", "2024-07-01"),
		tx("2", domain.TxExpense, 500, "Food", "2024-07-01"),
		tx("3", domain.TxExpense, 80, "Food", "2024-06-30"),
		tx("4", domain.TxExpense, 99, "Food", "2024-09-01"),
	}
	cal := Calendar(txs, anchor)

	assert.Equal(t, "2024-07", cal.Month)
	// July 2024 starts on a Monday and ends on a Wednesday: 5 weeks.
	require.Len(t, cal.Weeks, 5)
	for _, w := range cal.Weeks {
		require.Len(t, w, 7)
		assert.Equal(t, time.Sunday, w[0].Date.Weekday())
	}

	first := cal.Weeks[0]
	assert.Equal(t, "2024-06-30", first[0].Date.String())
	assert.False(t, first[0].InMonth)
	assert.Equal(t, 1, first[0].Count)
	assertDecimal(t, "80", first[0].Expense)

	assert.True(t, first[1].InMonth)
	assert.Equal(t, 2, first[1].Count)
	assertDecimal(t, "5000", first[1].Income)
	assertDecimal(t, "500", first[1].Expense)

	last := cal.Weeks[4]
	assert.Equal(t, "2024-08-03", last[6].Date.String())
	assert.Equal(t, 0, last[6].Count)
}

func TestCalendar_FebruaryLeapYear(t *testing.T) {
	cal := Calendar(nil, domain.NewDate(2024, time.February, 17))
	assert.Equal(t, "2024-02", cal.Month)

	inMonth := 0
	for _, w := range cal.Weeks {
		for _, d := range w {
			if d.InMonth {
				inMonth++
			}
		}
	}
	assert.Equal(t, 29, inMonth)
}

func TestParseMonth_Invalid(t *testing.T) {
	_, err := ParseMonth("2024-13")
	assert.Error(t, err)
}
