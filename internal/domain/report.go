package domain

import "github.com/shopspring/decimal"

// ============================================================
// Reports
// ============================================================

// Period tokens accepted by the report endpoints.
const (
	Period7Days     = "7days"
	PeriodThisMonth = "thisMonth"
	PeriodLastMonth = "lastMonth"
	PeriodCustom    = "custom"
)

// Summary holds the report totals. NetSavings is always
// TotalIncome - TotalExpenses.
type Summary struct {
	TotalIncome   decimal.Decimal `json:"totalIncome"`
	TotalExpenses decimal.Decimal `json:"totalExpenses"`
	NetSavings    decimal.Decimal `json:"netSavings"`
	Count         int             `json:"count"`
}

// CategoryTotal is an expense category with its share of total expenses.
// Derived, never persisted.
type CategoryTotal struct {
	Category             string          `json:"category"`
	Amount               decimal.Decimal `json:"amount"`
	PercentageOfExpenses decimal.Decimal `json:"percentageOfExpenses"`
}

// DayBucket accumulates totals for one calendar day.
type DayBucket struct {
	Date    Date            `json:"date"`
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
}

// MonthBucket accumulates totals for one year-month (YYYY-MM).
type MonthBucket struct {
	Month   string          `json:"month"`
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
	Net     decimal.Decimal `json:"net"`
}

// Report is everything the report screen renders for one request.
type Report struct {
	Period        string          `json:"period"`
	Range         DateRange       `json:"range"`
	Fallback      bool            `json:"fallback"` // Transactions holds the most recent items, not the range
	Summary       Summary         `json:"summary"`
	TopCategories []CategoryTotal `json:"topCategories"`
	Categories    []CategoryTotal `json:"categories"`
	Daily         []DayBucket     `json:"daily"`
	Monthly       []MonthBucket   `json:"monthly"`
	Transactions  []Transaction   `json:"transactions"`
	Rejected      int             `json:"rejected"` // records dropped by the normalizer
}

// ============================================================
// Calendar
// ============================================================

// CalendarDay is one cell of the month grid.
type CalendarDay struct {
	Date    Date            `json:"date"`
	InMonth bool            `json:"inMonth"`
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
	Count   int             `json:"count"`
}

// CalendarMonth is a Sunday-first grid of whole weeks covering a month.
type CalendarMonth struct {
	Month string          `json:"month"` // YYYY-MM
	Weeks [][]CalendarDay `json:"weeks"`
}

// ============================================================
// Export
// ============================================================

// ExportFormat selects the serializer.
type ExportFormat string

const (
	ExportCSV  ExportFormat = "csv"
	ExportJSON ExportFormat = "json"
	ExportText ExportFormat = "txt"
)

// ExportFile is a rendered export ready to be downloaded or uploaded.
type ExportFile struct {
	Filename    string
	ContentType string
	Content     []byte
}
