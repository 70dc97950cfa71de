package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================
// User profile
// ============================================================

// UserProfile is the per-user document kept alongside the auth account.
type UserProfile struct {
	UserID         string    `json:"userId"`
	FullName       string    `json:"fullName"`
	Username       string    `json:"username,omitempty"`
	Email          string    `json:"email,omitempty"`
	Mobile         string    `json:"mobile,omitempty"`
	Currency       string    `json:"currency"`
	ProfilePicture string    `json:"profilePicture,omitempty"`
	NeedsProfile   bool      `json:"needsProfile"`
	CreatedAt      time.Time `json:"createdAt,omitempty"`
}

// UpdateProfileRequest is the body of PUT /v1/profile. Nil fields are left unchanged.
type UpdateProfileRequest struct {
	FullName *string `json:"fullName,omitempty"`
	Username *string `json:"username,omitempty"`
	Mobile   *string `json:"mobile,omitempty"`
	Currency *string `json:"currency,omitempty"`
}

// Currency describes a supported display currency.
type Currency struct {
	Code   string `json:"code"`
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
	Locale string `json:"locale"`
}

// DefaultCurrency is used for profiles that never picked one.
const DefaultCurrency = "BDT"

// Currencies lists the supported display currencies in menu order.
var Currencies = []Currency{
	{Code: "BDT", Symbol: "৳", Name: "Bangladeshi Taka", Locale: "en-BD"},
	{Code: "INR", Symbol: "₹", Name: "Indian Rupee", Locale: "en-IN"},
	{Code: "USD", Symbol: "$", Name: "US Dollar", Locale: "en-US"},
	{Code: "EUR", Symbol: "€", Name: "Euro", Locale: "en-EU"},
	{Code: "GBP", Symbol: "£", Name: "British Pound", Locale: "en-GB"},
	{Code: "JPY", Symbol: "¥", Name: "Japanese Yen", Locale: "ja-JP"},
	{Code: "CNY", Symbol: "¥", Name: "Chinese Yuan", Locale: "zh-CN"},
	{Code: "KRW", Symbol: "₩", Name: "South Korean Won", Locale: "ko-KR"},
	{Code: "SGD", Symbol: "S$", Name: "Singapore Dollar", Locale: "en-SG"},
	{Code: "MYR", Symbol: "RM", Name: "Malaysian Ringgit", Locale: "en-MY"},
	{Code: "THB", Symbol: "฿", Name: "Thai Baht", Locale: "th-TH"},
	{Code: "PKR", Symbol: "Rs", Name: "Pakistani Rupee", Locale: "en-PK"},
	{Code: "LKR", Symbol: "Rs", Name: "Sri Lankan Rupee", Locale: "en-LK"},
	{Code: "NPR", Symbol: "Rs", Name: "Nepalese Rupee", Locale: "en-NP"},
	{Code: "AFN", Symbol: "Af", Name: "Afghan Afghani", Locale: "en-AF"},
}

// LookupCurrency returns the currency with the given code.
func LookupCurrency(code string) (Currency, bool) {
	for _, c := range Currencies {
		if c.Code == code {
			return c, true
		}
	}
	return Currency{}, false
}

// ============================================================
// Family sharing
// ============================================================

// Family request statuses.
const (
	RequestPending  = "pending"
	RequestAccepted = "accepted"
	RequestRejected = "rejected"
)

// FamilyRequest is an invitation from one user to another to share transactions.
type FamilyRequest struct {
	ID           string    `json:"id"`
	FromUserID   string    `json:"fromUserId"`
	FromUsername string    `json:"fromUsername"`
	ToUserID     string    `json:"toUserId"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
}

// FamilyMember is a linked user as shown on the family page.
type FamilyMember struct {
	UserID   string `json:"userId"`
	FullName string `json:"fullName"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
}

// FamilyTransaction is a member's transaction tagged with who made it.
type FamilyTransaction struct {
	Transaction
	MemberID   string `json:"memberId"`
	MemberName string `json:"memberName"`
}

// FamilyLedger is the merged view of the members' recent transactions.
type FamilyLedger struct {
	Transactions []FamilyTransaction `json:"transactions"`
	Summary      Summary             `json:"summary"`
}

// DefaultSharedCategory is used for shared expenses sent without a category.
const DefaultSharedCategory = "Other"

// SharedExpense is an expense a user paid and split with linked members.
type SharedExpense struct {
	ID          string          `json:"id"`
	UserID      string          `json:"userId"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category"`
	Date        Date            `json:"date"`
	SharedWith  []string        `json:"sharedWith"`
	// PerPerson is Amount split evenly between the payer and SharedWith.
	PerPerson decimal.Decimal `json:"perPerson"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Split returns the amount each participant carries, to two places.
func (e *SharedExpense) Split() decimal.Decimal {
	return e.Amount.Div(decimal.NewFromInt(int64(len(e.SharedWith) + 1))).Round(2)
}

// CreateSharedExpenseRequest is the body of POST /v1/family/expenses.
type CreateSharedExpenseRequest struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category,omitempty"`
	Date        string          `json:"date,omitempty"` // YYYY-MM-DD, today when empty
	SharedWith  []string        `json:"sharedWith"`
}

// FamilyStats are the headline numbers of the family page.
type FamilyStats struct {
	MemberCount        int             `json:"memberCount"`
	SharedExpenseCount int             `json:"sharedExpenseCount"`
	TotalShared        decimal.Decimal `json:"totalShared"`
}

// ============================================================
// Backups
// ============================================================

// BackupJob asks the worker to render and upload a user's transactions.
type BackupJob struct {
	ID          string       `json:"id"`
	UserID      string       `json:"userId"`
	Format      ExportFormat `json:"format"`
	RequestedAt time.Time    `json:"requestedAt"`
}

// BackupResult describes an uploaded backup.
type BackupResult struct {
	JobID  string `json:"jobId"`
	Path   string `json:"path,omitempty"`
	Queued bool   `json:"queued"`
}
