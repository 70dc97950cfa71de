package report

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/boddenberg/cashbook-bfa-go/internal/domain"
)

var csvHeader = []string{"Date", "Type", "Category", "Amount", "Note"}

// Fixed column widths of the text report table.
const (
	colDate     = 12
	colType     = 8
	colCategory = 15
	colAmount   = 12
	ruleWidth   = 80
	notAvail    = "N/A"
)

// ParseFormat validates an export format name.
func ParseFormat(s string) (domain.ExportFormat, error) {
	switch f := domain.ExportFormat(strings.ToLower(s)); f {
	case domain.ExportCSV, domain.ExportJSON, domain.ExportText:
		return f, nil
	case "pdf", "text":
		return domain.ExportText, nil
	}
	return "", &domain.ErrValidation{Field: "format", Message: "must be one of csv, json, txt"}
}

// Export serializes txs in the given format together with its suggested
// file name. An empty list is refused with ErrNoData. symbol prefixes the
// money totals of the text report and may be empty.
func Export(format domain.ExportFormat, txs []domain.Transaction, generatedAt time.Time, symbol string) (*domain.ExportFile, error) {
	if len(txs) == 0 {
		return nil, &domain.ErrNoData{}
	}

	switch format {
	case domain.ExportCSV:
		return &domain.ExportFile{
			Filename:    "transactions.csv",
			ContentType: "text/csv; charset=utf-8",
			Content:     ToCSV(txs),
		}, nil
	case domain.ExportJSON:
		b, err := ToJSON(txs)
		if err != nil {
			return nil, fmt.Errorf("encode json export: %w", err)
		}
		return &domain.ExportFile{
			Filename:    "transactions.json",
			ContentType: "application/json; charset=utf-8",
			Content:     b,
		}, nil
	case domain.ExportText:
		return &domain.ExportFile{
			Filename:    fmt.Sprintf("transactions_report_%s.txt", generatedAt.UTC().Format(domain.DateLayout)),
			ContentType: "text/plain; charset=utf-8",
			Content:     ToText(txs, generatedAt, symbol),
		}, nil
	}
	return nil, &domain.ErrValidation{Field: "format", Message: fmt.Sprintf("unsupported export format %q", format)}
}

// ============================================================
// CSV
// ============================================================

// ToCSV renders a header row and one row per transaction, joined with
// commas and newlines. Fields are written as-is: a comma inside a note
// shifts the columns of that row.
func ToCSV(txs []domain.Transaction) []byte {
	rows := make([]string, 0, len(txs)+1)
	rows = append(rows, strings.Join(csvHeader, ","))
	for _, t := range txs {
		rows = append(rows, strings.Join([]string{
			t.Date.String(),
			string(t.Type),
			orNA(t.Category),
			t.Amount.StringFixed(2),
			t.Note,
		}, ","))
	}
	return []byte(strings.Join(rows, "\n"))
}

// ParseCSV reads what ToCSV writes. Rows with the wrong number of columns
// are an error, which is how an unescaped comma in a note surfaces.
func ParseCSV(data []byte) ([]domain.Transaction, error) {
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) == 0 || lines[0] != strings.Join(csvHeader, ",") {
		return nil, &domain.ErrValidation{Field: "csv", Message: "missing or unexpected header row"}
	}

	out := make([]domain.Transaction, 0, len(lines)-1)
	for i, line := range lines[1:] {
		row := i + 2
		cols := strings.Split(line, ",")
		if len(cols) != len(csvHeader) {
			return nil, &domain.ErrValidation{
				Field:   fmt.Sprintf("csv line %d", row),
				Message: fmt.Sprintf("expected %d columns, got %d", len(csvHeader), len(cols)),
			}
		}
		date, err := domain.ParseDate(cols[0])
		if err != nil {
			return nil, &domain.ErrValidation{Field: fmt.Sprintf("csv line %d", row), Message: err.Error()}
		}
		txType := domain.TxType(cols[1])
		if !txType.Valid() {
			return nil, &domain.ErrValidation{Field: fmt.Sprintf("csv line %d", row), Message: "unknown type " + cols[1]}
		}
		amount, err := decimal.NewFromString(cols[3])
		if err != nil {
			return nil, &domain.ErrValidation{Field: fmt.Sprintf("csv line %d", row), Message: err.Error()}
		}
		out = append(out, domain.Transaction{
			Type:     txType,
			Amount:   amount,
			Category: cols[2],
			Date:     date,
			Note:     cols[4],
		})
	}
	return out, nil
}

// ============================================================
// JSON
// ============================================================

// ToJSON pretty-prints the transaction list.
func ToJSON(txs []domain.Transaction) ([]byte, error) {
	return json.MarshalIndent(txs, "", "  ")
}

// ============================================================
// Text report
// ============================================================

// ToText renders the fixed-width plain-text report.
func ToText(txs []domain.Transaction, generatedAt time.Time, symbol string) []byte {
	s := Summarize(txs)

	var b strings.Builder
	b.WriteString("CASHBOOK TRANSACTION REPORT\n")
	fmt.Fprintf(&b, "Generated on: %s\n", generatedAt.Format(domain.DateLayout))
	fmt.Fprintf(&b, "Total Transactions: %d\n\n", len(txs))

	b.WriteString("SUMMARY\n")
	fmt.Fprintf(&b, "Total Income: %s%s\n", symbol, s.TotalIncome.StringFixed(2))
	fmt.Fprintf(&b, "Total Expense: %s%s\n", symbol, s.TotalExpenses.StringFixed(2))
	fmt.Fprintf(&b, "Net Balance: %s%s\n\n", symbol, s.NetSavings.StringFixed(2))

	b.WriteString("TRANSACTION DETAILS\n")
	fmt.Fprintf(&b, "%s %s %s %s Description\n",
		fit("Date", colDate), fit("Type", colType), fit("Category", colCategory), fit("Amount", colAmount))
	b.WriteString(strings.Repeat("-", ruleWidth) + "\n")

	for _, t := range txs {
		fmt.Fprintf(&b, "%s %s %s %s %s\n",
			fit(t.Date.String(), colDate),
			fit(strings.ToUpper(string(t.Type)), colType),
			fit(orNA(t.Category), colCategory),
			fit(t.Amount.StringFixed(2), colAmount),
			orNA(t.Note),
		)
	}
	return []byte(b.String())
}

// fit pads s with spaces to width runes, truncating longer values.
func fit(s string, width int) string {
	n := utf8.RuneCountInString(s)
	if n > width {
		return string([]rune(s)[:width])
	}
	return s + strings.Repeat(" ", width-n)
}

func orNA(s string) string {
	if s == "" {
		return notAvail
	}
	return s
}
