package report

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/boddenberg/cashbook-bfa-go/internal/domain"
)

var (
	nonNumeric    = regexp.MustCompile(`[^\d.-]`)
	numericPrefix = regexp.MustCompile(`^-?(\d+(\.\d+)?|\.\d+)`)
)

// Layouts accepted for the free-form date field, tried in order.
var dateLayouts = []string{
	domain.DateLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"1/2/2006",
}

// Normalized is a canonical transaction plus what the normalizer had to fix up.
type Normalized struct {
	Transaction domain.Transaction
	// AmountCoerced is set when the stored amount was missing or unparseable
	// and was replaced by zero.
	AmountCoerced bool
	// DateDefaulted is set when the record had neither a timestamp nor a
	// date and was dated from now.
	DateDefaulted bool
}

// Normalize converts one stored record into the canonical shape. loc is the
// zone used to turn instants into calendar dates; now is the date of last
// resort for records that carry neither a timestamp nor a date.
//
// A record is rejected (ErrInvalidRecord) only when it has an unknown type
// or a date field that cannot be parsed. A bad amount never rejects it.
func Normalize(raw domain.RawRecord, now time.Time, loc *time.Location) (Normalized, error) {
	f := raw.Fields
	id := raw.ID
	if id == "" {
		id = stringField(f, "id")
	}

	txType, err := normalizeType(f["type"])
	if err != nil {
		return Normalized{}, &domain.ErrInvalidRecord{ID: id, Reason: err.Error()}
	}

	date, defaulted, err := normalizeDate(f, now, loc)
	if err != nil {
		return Normalized{}, &domain.ErrInvalidRecord{ID: id, Reason: err.Error()}
	}

	amount, ok := normalizeAmount(f["amount"])

	category := stringField(f, "category")
	if category == "" {
		category = stringField(f, "source")
	}
	if category == "" {
		category = domain.DefaultCategory
	}

	return Normalized{
		Transaction: domain.Transaction{
			ID:       id,
			Type:     txType,
			Amount:   amount.Abs(),
			Category: category,
			Date:     date,
			Note:     stringField(f, "note"),
		},
		AmountCoerced: !ok,
		DateDefaulted: defaulted,
	}, nil
}

// Batch is the outcome of normalizing a snapshot of stored records.
type Batch struct {
	Transactions []domain.Transaction
	Rejected     int
	Coerced      int
	// Undated counts records dated from now. Their date moves with the
	// clock, so a batch with any of them must not be reused later.
	Undated int
}

// NormalizeAll normalizes every record, dropping and logging the ones that
// cannot be represented. Input order is preserved.
func NormalizeAll(raws []domain.RawRecord, now time.Time, loc *time.Location, logger *zap.Logger) Batch {
	b := Batch{Transactions: make([]domain.Transaction, 0, len(raws))}
	for _, raw := range raws {
		n, err := Normalize(raw, now, loc)
		if err != nil {
			b.Rejected++
			logger.Warn("dropping transaction record", zap.String("record_id", raw.ID), zap.Error(err))
			continue
		}
		if n.AmountCoerced {
			b.Coerced++
			logger.Debug("amount coerced to zero",
				zap.String("record_id", n.Transaction.ID),
				zap.Any("amount", raw.Fields["amount"]),
			)
		}
		if n.DateDefaulted {
			b.Undated++
		}
		b.Transactions = append(b.Transactions, n.Transaction)
	}
	return b
}

// ============================================================
// Field decoders
// ============================================================

func normalizeType(v any) (domain.TxType, error) {
	s, _ := v.(string)
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return domain.TxExpense, nil
	}
	t := domain.TxType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown type %q", s)
	}
	return t, nil
}

// normalizeDate applies the precedence timestamp, then date, then now.
// An unconvertible timestamp is skipped; an unparseable date is an error.
// The bool reports whether the date came from now.
func normalizeDate(f map[string]any, now time.Time, loc *time.Location) (domain.Date, bool, error) {
	if ts, ok := instant(f["timestamp"]); ok {
		return domain.DateOf(ts.In(loc)), false, nil
	}

	switch v := f["date"].(type) {
	case nil:
	case time.Time:
		return domain.DateOf(v.In(loc)), false, nil
	case string:
		if strings.TrimSpace(v) == "" {
			break
		}
		d, err := parseDateString(strings.TrimSpace(v), loc)
		if err != nil {
			return domain.Date{}, false, err
		}
		return d, false, nil
	default:
		if ts, ok := instant(v); ok {
			return domain.DateOf(ts.In(loc)), false, nil
		}
		return domain.Date{}, false, fmt.Errorf("unsupported date value %v", v)
	}

	return domain.DateOf(now.In(loc)), true, nil
}

func parseDateString(s string, loc *time.Location) (domain.Date, error) {
	for _, layout := range dateLayouts {
		t, err := time.ParseInLocation(layout, s, loc)
		if err != nil {
			continue
		}
		return domain.DateOf(t.In(loc)), nil
	}
	return domain.Date{}, fmt.Errorf("unparseable date %q", s)
}

// instant converts the shapes a server timestamp is stored in: a time.Time,
// an RFC 3339 string, a {seconds, nanoseconds} document, or epoch millis.
func instant(v any) (time.Time, bool) {
	switch ts := v.(type) {
	case time.Time:
		return ts, !ts.IsZero()
	case string:
		t, err := time.Parse(time.RFC3339Nano, ts)
		return t, err == nil
	case map[string]any:
		secs, ok := number(ts["seconds"])
		if !ok {
			secs, ok = number(ts["_seconds"])
		}
		if !ok {
			return time.Time{}, false
		}
		nanos, _ := number(ts["nanoseconds"])
		return time.Unix(int64(secs), int64(nanos)).UTC(), true
	default:
		ms, ok := number(v)
		if !ok || ms <= 0 {
			return time.Time{}, false
		}
		return time.UnixMilli(int64(ms)).UTC(), true
	}
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// normalizeAmount returns the amount and whether it was usable as stored.
// Strings keep only digits, dots and minus signs and are then read up to the
// first character that cannot continue a number.
func normalizeAmount(v any) (decimal.Decimal, bool) {
	switch a := v.(type) {
	case decimal.Decimal:
		return a, true
	case float64:
		if math.IsNaN(a) || math.IsInf(a, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(a), true
	case int:
		return decimal.NewFromInt(int64(a)), true
	case int64:
		return decimal.NewFromInt(a), true
	case json.Number:
		d, err := decimal.NewFromString(a.String())
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	case string:
		cleaned := numericPrefix.FindString(nonNumeric.ReplaceAllString(a, ""))
		if cleaned == "" || cleaned == "-" {
			return decimal.Zero, false
		}
		if i := strings.Index(cleaned, "."); i == 0 || (i == 1 && cleaned[0] == '-') {
			cleaned = strings.Replace(cleaned, ".", "0.", 1)
		}
		d, err := decimal.NewFromString(cleaned)
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	}
	return decimal.Zero, false
}

func stringField(f map[string]any, key string) string {
	s, _ := f[key].(string)
	if strings.TrimSpace(s) == "" {
		return ""
	}
	return s
}
