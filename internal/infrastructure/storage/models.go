package storage

import "time"

// Outcome statuses
const (
	OutcomeMatched    = "matched"
	OutcomeUnmatched  = "unmatched"
	OutcomeIgnored    = "ignored"
	OutcomeUnparsable = "unparsable"
)

// Document issue kinds
const (
	IssueFailed     = "failed"
	IssueUndateable = "undateable"
)

// Run is one reconciliation run
type Run struct {
	ID                  string     `json:"id"`
	State               string     `json:"state"`
	StartedAt           time.Time  `json:"started_at"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
	StatementName       string     `json:"statement_name"`
	CorpusRoot          string     `json:"corpus_root"`
	DocumentsTotal      int        `json:"documents_total"`
	DocumentsIndexed    int        `json:"documents_indexed"`
	DocumentsFailed     int        `json:"documents_failed"`
	DocumentsUndateable int        `json:"documents_undateable"`
	TransactionsTotal   int        `json:"transactions_total"`
	Matched             int        `json:"matched"`
	Unmatched           int        `json:"unmatched"`
	Ignored             int        `json:"ignored"`
	Unparsable          int        `json:"unparsable"`
	ErrorMessage        string     `json:"error_message,omitempty"`
}

// Outcome is the audit row for one transaction of a run. Dates are
// YYYY-MM-DD, empty when absent.
type Outcome struct {
	RunID              string `json:"run_id"`
	Reference          string `json:"reference"`
	Label              string `json:"label"`
	StatementDate      string `json:"statement_date,omitempty"`
	Amount             string `json:"amount"`
	Status             string `json:"status"`
	Strategy           string `json:"strategy,omitempty"`
	DocumentPath       string `json:"document_path,omitempty"`
	DocumentDate       string `json:"document_date,omitempty"`
	IsCardSettlement   bool   `json:"is_card_settlement"`
	CardSettlementDate string `json:"card_settlement_date,omitempty"`
	VendorToken        string `json:"vendor_token,omitempty"`
	IsIgnored          bool   `json:"is_ignored"`
	Reason             string `json:"reason,omitempty"`
}

// DocumentIssue is a document dropped from a run's corpus
type DocumentIssue struct {
	RunID string `json:"run_id"`
	Path  string `json:"path"`
	Kind  string `json:"kind"`
	Error string `json:"error,omitempty"`
}

// Stats aggregates all runs
type Stats struct {
	TotalRuns         int            `json:"total_runs"`
	RunsByState       map[string]int `json:"runs_by_state"`
	TotalMatched      int            `json:"total_matched"`
	TotalUnmatched    int            `json:"total_unmatched"`
	MatchesByStrategy map[string]int `json:"matches_by_strategy"`
}
