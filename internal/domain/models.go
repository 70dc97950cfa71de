// Package domain defines the core business entities for the CashBook BFA.
// These models are independent of external services and represent the
// canonical data structures used throughout the service.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Amounts travel as JSON numbers, matching what the frontend and the
	// hosted backend already exchange.
	decimal.MarshalJSONWithoutQuotes = true
}

// ============================================================
// Transactions
// ============================================================

// TxType is the direction of a transaction. The sign of an amount is never
// stored; it is carried by the type.
type TxType string

const (
	TxIncome  TxType = "income"
	TxExpense TxType = "expense"
)

// Valid reports whether t is one of the two known variants.
func (t TxType) Valid() bool {
	return t == TxIncome || t == TxExpense
}

// DefaultCategory is used when a record carries neither category nor source.
const DefaultCategory = "Other"

// Transaction is the canonical transaction shape, independent of the
// storage schema the record was read from.
type Transaction struct {
	ID       string          `json:"id"`
	Type     TxType          `json:"type"`
	Amount   decimal.Decimal `json:"amount"` // always >= 0
	Category string          `json:"category"`
	Date     Date            `json:"date"`
	Note     string          `json:"note"`
}

// IsIncome reports whether the transaction adds to the balance.
func (t Transaction) IsIncome() bool { return t.Type == TxIncome }

// RawRecord is a stored transaction document exactly as the backend returned
// it. Field names and value types vary between legacy and current writers.
type RawRecord struct {
	ID     string
	Fields map[string]any
}

// CreateTransactionRequest is the body of POST /v1/transactions.
type CreateTransactionRequest struct {
	Type     TxType          `json:"type"`
	Amount   decimal.Decimal `json:"amount"`
	Category string          `json:"category,omitempty"` // expense
	Source   string          `json:"source,omitempty"`   // income
	Date     string          `json:"date"`               // YYYY-MM-DD
	Note     string          `json:"note,omitempty"`
}

// NewTransactionRecord is what the stores persist for a new transaction.
type NewTransactionRecord struct {
	UserID    string
	Type      TxType
	Amount    decimal.Decimal
	Category  string
	Source    string
	Date      Date
	Note      string
	CreatedAt time.Time
}

// Balance is the running balance shown on the dashboard.
type Balance struct {
	TotalIncome   decimal.Decimal `json:"totalIncome"`
	TotalExpenses decimal.Decimal `json:"totalExpenses"`
	Balance       decimal.Decimal `json:"balance"`
	Count         int             `json:"count"`
}
