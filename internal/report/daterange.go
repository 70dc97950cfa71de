// Package report is the pure reporting core: it resolves report periods,
// normalizes stored records, aggregates them into summaries and chart series,
// and serializes transaction lists for export. Nothing here performs I/O.
package report

import (
	"time"

	"github.com/boddenberg/cashbook-bfa-go/internal/domain"
)

const (
	trailingDays       = 7
	customTrailingDays = 30
)

// ResolveRange turns a period token into an inclusive day range relative to
// now. now should already be in the user's reporting time zone.
//
// For custom, each bound is resolved on its own: a missing or malformed
// start becomes today-30 and a missing or malformed end becomes today.
// Unknown tokens behave like 7days.
// A custom range with start after end is returned as given and matches nothing.
func ResolveRange(period, start, end string, now time.Time) domain.DateRange {
	today := domain.DateOf(now)
	y, m, _ := now.Date()

	switch period {
	case domain.PeriodThisMonth:
		return domain.DateRange{
			From: domain.NewDate(y, m, 1),
			To:   domain.NewDate(y, m+1, 0),
		}
	case domain.PeriodLastMonth:
		return domain.DateRange{
			From: domain.NewDate(y, m-1, 1),
			To:   domain.NewDate(y, m, 0),
		}
	case domain.PeriodCustom:
		from, err := domain.ParseDate(start)
		if err != nil {
			from = today.AddDays(-customTrailingDays)
		}
		to, err := domain.ParseDate(end)
		if err != nil {
			to = today
		}
		return domain.DateRange{From: from, To: to}
	default:
		return domain.DateRange{From: today.AddDays(-trailingDays), To: today}
	}
}

// KnownPeriod reports whether p is one of the recognized period tokens.
func KnownPeriod(p string) bool {
	switch p {
	case domain.Period7Days, domain.PeriodThisMonth, domain.PeriodLastMonth, domain.PeriodCustom:
		return true
	}
	return false
}
