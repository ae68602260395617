package dto

import "time"

// HealthResponse is returned by the health check endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version,omitempty"`
}

// RunResponse represents a stored reconciliation run.
type RunResponse struct {
	ID                  string  `json:"id"`
	State               string  `json:"state"`
	StartedAt           string  `json:"started_at"`
	CompletedAt         *string `json:"completed_at,omitempty"`
	StatementName       string  `json:"statement_name"`
	CorpusRoot          string  `json:"corpus_root"`
	DocumentsTotal      int     `json:"documents_total"`
	DocumentsIndexed    int     `json:"documents_indexed"`
	DocumentsFailed     int     `json:"documents_failed"`
	DocumentsUndateable int     `json:"documents_undateable"`
	TransactionsTotal   int     `json:"transactions_total"`
	Matched             int     `json:"matched"`
	Unmatched           int     `json:"unmatched"`
	Ignored             int     `json:"ignored"`
	Unparsable          int     `json:"unparsable"`
	ErrorMessage        string  `json:"error_message,omitempty"`
}

// RunListResponse is returned when listing runs.
type RunListResponse struct {
	Runs  []RunResponse `json:"runs"`
	Count int           `json:"count"`
}

// OutcomeResponse is the audit row of one statement transaction.
type OutcomeResponse struct {
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

// OutcomeListResponse is a page of a run's outcomes.
type OutcomeListResponse struct {
	Outcomes   []OutcomeResponse `json:"outcomes"`
	TotalCount int               `json:"total_count"`
	Limit      int               `json:"limit"`
	Offset     int               `json:"offset"`
}

// DocumentIssueResponse is a document a run could not use.
type DocumentIssueResponse struct {
	Path  string `json:"path"`
	Kind  string `json:"kind"`
	Error string `json:"error,omitempty"`
}

// DocumentIssueListResponse lists a run's dropped documents.
type DocumentIssueListResponse struct {
	Issues []DocumentIssueResponse `json:"issues"`
	Count  int                     `json:"count"`
}

// StrategyCountResponse is the number of matches one strategy produced.
type StrategyCountResponse struct {
	Strategy string `json:"strategy"`
	Count    int    `json:"count"`
}

// StatsResponse aggregates every stored run.
type StatsResponse struct {
	TotalRuns         int                     `json:"total_runs"`
	RunsByState       map[string]int          `json:"runs_by_state"`
	TotalMatched      int                     `json:"total_matched"`
	TotalUnmatched    int                     `json:"total_unmatched"`
	MatchRate         float64                 `json:"match_rate"`
	MatchesByStrategy []StrategyCountResponse `json:"matches_by_strategy"`
}

// StartReconciliationResponse is returned when a job is accepted.
type StartReconciliationResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// JobResponse represents a reconciliation job's status.
type JobResponse struct {
	JobID         string           `json:"job_id"`
	Status        string           `json:"status"`
	StatementPath string           `json:"statement_path"`
	CorpusRoot    string           `json:"corpus_root"`
	Folders       []string         `json:"folders,omitempty"`
	StartedAt     string           `json:"started_at"`
	CompletedAt   *string          `json:"completed_at,omitempty"`
	Progress      ProgressResponse `json:"progress"`
	Result        *ResultResponse  `json:"result,omitempty"`
	Error         *string          `json:"error,omitempty"`
}

// ProgressResponse represents real-time progress.
type ProgressResponse struct {
	State      string  `json:"state"`
	Percent    float64 `json:"percent"`
	Done       int     `json:"done"`
	Total      int     `json:"total"`
	LastUpdate string  `json:"last_update,omitempty"`
}

// ResultResponse summarizes a finished or cancelled run.
type ResultResponse struct {
	RunID             string            `json:"run_id"`
	State             string            `json:"state"`
	DurationSeconds   float64           `json:"duration_seconds"`
	Documents         int               `json:"documents"`
	DocumentsIndexed  int               `json:"documents_indexed"`
	DocumentsFailed   int               `json:"documents_failed"`
	Undateable        int               `json:"documents_undateable"`
	Transactions      int               `json:"transactions"`
	Matched           int               `json:"matched"`
	Unmatched         int               `json:"unmatched"`
	Ignored           int               `json:"ignored"`
	Unparsable        int               `json:"unparsable"`
	MatchesByStrategy map[string]int    `json:"matches_by_strategy,omitempty"`
	Outcomes          []OutcomeResponse `json:"outcomes"`
}

// JobListResponse lists reconciliation jobs.
type JobListResponse struct {
	Jobs  []JobResponse `json:"jobs"`
	Count int           `json:"count"`
}

// MessageResponse is a generic message response.
type MessageResponse struct {
	Message string `json:"message"`
}

// NewHealthResponse creates a health response with current timestamp.
func NewHealthResponse() HealthResponse {
	return HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// FormatTime renders t as RFC3339 UTC, nil when t is nil.
func FormatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
