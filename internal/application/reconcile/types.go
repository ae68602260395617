package reconcile

import (
	"time"

	"github.com/eshaffer321/invoice-matcher/internal/application/corpus"
	"github.com/eshaffer321/invoice-matcher/internal/domain/documents"
	"github.com/eshaffer321/invoice-matcher/internal/domain/ledger"
	"github.com/eshaffer321/invoice-matcher/internal/domain/matcher"
)

// Status is the terminal outcome of one statement row
type Status string

const (
	StatusMatched    Status = "matched"
	StatusUnmatched  Status = "unmatched"
	StatusIgnored    Status = "ignored"
	StatusUnparsable Status = "unparsable"
)

// Unparsable reasons
const (
	ReasonDate   = "date"
	ReasonAmount = "amount"
)

// Input is everything one run consumes. The caller owns the handles and rows.
type Input struct {
	Handles         []documents.Handle
	Transactions    []ledger.RawTransaction
	IgnoredPatterns []string
	StatementName   string // audit only
	CorpusRoot      string // audit only
}

// Progress is reported at document and transaction granularity.
// Percent never decreases within a run: indexing covers 0-50, matching 50-100.
type Progress struct {
	State   State
	Percent float64
	Done    int
	Total   int
}

// ProgressFunc receives progress updates. Calls are serialized.
type ProgressFunc func(Progress)

// Options holds per-run settings
type Options struct {
	Progress ProgressFunc
	RunID    string // generated when empty
}

// Outcome carries the diagnostics an audit view needs for one row
type Outcome struct {
	Reference          string
	Label              string
	StatementDate      *time.Time
	Amount             string
	Status             Status
	Strategy           matcher.StrategyName
	DocumentPath       string
	DocumentDate       *time.Time
	IsCardSettlement   bool
	CardSettlementDate *time.Time
	VendorToken        string
	IsIgnored          bool
	Reason             string // set for unparsable rows
}

// Counts summarizes a run
type Counts struct {
	Documents    int
	Indexed      int
	Failed       int
	Undateable   int
	Transactions int
	Matched      int
	Unmatched    int
	Ignored      int
	Unparsable   int
	ByStrategy   map[matcher.StrategyName]int
}

// Result is the output of a run. On cancellation it holds whatever was
// finished and State is StateCancelled.
type Result struct {
	RunID       string
	State       State
	StartedAt   time.Time
	CompletedAt time.Time
	Matches     map[string]matcher.Match
	Outcomes    []Outcome // statement order, decided rows only
	Corpus      *corpus.Result
	Counts      Counts
}

// Duration of the run
func (r *Result) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}
