package matcher

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/eshaffer321/invoice-matcher/internal/domain/documents"
	"github.com/eshaffer321/invoice-matcher/internal/domain/ledger"
)

// Config holds matcher configuration
type Config struct {
	AmountTolerance decimal.Decimal // Default: 0.01 (1 cent)
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		AmountTolerance: decimal.New(1, -2),
	}
}

// StrategyName identifies which cascade step produced a match
type StrategyName string

const (
	StrategyVendor          StrategyName = "vendor"
	StrategyExactDateAmount StrategyName = "exact_date_amount"
	StrategyExactDate       StrategyName = "exact_date"
	StrategyAmountProximity StrategyName = "amount_proximity"
)

// Candidate is a document proposed by a strategy for one transaction
type Candidate struct {
	Document documents.Record
	Strategy StrategyName
	DateDiff float64 // Absolute days between document and transaction date
}

// Strategy is one step of the cascade. TryMatch returns nil when it has
// nothing to propose. Implementations must not mutate the corpus.
type Strategy interface {
	Name() StrategyName
	TryMatch(tx ledger.Transaction, corpus []documents.Record) *Candidate
}

// Match is the resolved document for one transaction
type Match struct {
	DocumentPath string
	DocumentDate time.Time
	Strategy     StrategyName
	DateDiff     float64
}

// Result maps transaction reference to its match. Unmatched transactions
// are absent from Matches and listed in Unmatched.
type Result struct {
	Matches   map[string]Match
	Unmatched []string
	Skipped   []string // ignored transactions, never scored
}

func newResult() *Result {
	return &Result{
		Matches:   make(map[string]Match),
		Unmatched: make([]string, 0),
		Skipped:   make([]string, 0),
	}
}
