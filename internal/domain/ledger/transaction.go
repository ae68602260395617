// Package ledger turns raw bank-statement rows into canonical transactions.
//
// Normalization resolves the reference date (including the purchase date
// embedded in card labels), keeps the signed amount, extracts a vendor hint
// and classifies the row against the ignored-label patterns.
package ledger

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrUnparsableDate is returned when the statement date has no known shape
	ErrUnparsableDate = errors.New("unparsable transaction date")

	// ErrUnparsableAmount is returned when the amount is not a number
	ErrUnparsableAmount = errors.New("unparsable transaction amount")
)

// RawTransaction is a statement row as produced by the CSV layer.
// Amount is already signed: debits negative, credits positive.
type RawTransaction struct {
	Date      string `json:"date"`
	Reference string `json:"reference"`
	Label     string `json:"label"`
	Amount    string `json:"amount"`
	Detail    string `json:"detail,omitempty"`
}

// Transaction is the normalized, immutable view of a RawTransaction.
type Transaction struct {
	Reference          string
	Label              string
	Detail             string
	StatementDate      time.Time
	ReferenceDate      time.Time
	Amount             decimal.Decimal // signed, negative = debit
	IsCardSettlement   bool
	CardSettlementDate *time.Time
	VendorToken        string // empty when no vendor hint
	IsIgnored          bool
}

// AbsAmount is the value compared against document amounts.
func (t Transaction) AbsAmount() decimal.Decimal {
	return t.Amount.Abs()
}

// HasVendorToken reports whether a vendor hint was extracted.
func (t Transaction) HasVendorToken() bool {
	return t.VendorToken != ""
}

// SettlementOrReferenceDate returns the card settlement date when one was
// recovered, else the reference date.
func (t Transaction) SettlementOrReferenceDate() time.Time {
	if t.CardSettlementDate != nil {
		return *t.CardSettlementDate
	}
	return t.ReferenceDate
}

// IsDebit reports whether money left the account.
func (t Transaction) IsDebit() bool {
	return t.Amount.IsNegative()
}
