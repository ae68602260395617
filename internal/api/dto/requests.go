package dto

import "strings"

// StartReconciliationRequest is the body of POST /api/reconciliations
type StartReconciliationRequest struct {
	StatementPath string   `json:"statement_path"`
	CorpusRoot    string   `json:"corpus_root"`
	Folders       []string `json:"folders,omitempty"` // empty = whole corpus
}

// Validate returns a message for the first missing field, or "".
func (r StartReconciliationRequest) Validate() string {
	switch {
	case strings.TrimSpace(r.StatementPath) == "":
		return "statement_path is required"
	case strings.TrimSpace(r.CorpusRoot) == "":
		return "corpus_root is required"
	}
	for _, f := range r.Folders {
		if strings.TrimSpace(f) == "" || strings.ContainsAny(f, `/\`) {
			return "folders must be first-level folder names"
		}
	}
	return ""
}

// RunListParams are the query parameters of GET /api/runs
type RunListParams struct {
	Limit int `json:"limit"`
}

// OutcomeListParams are the query parameters of GET /api/runs/{id}/outcomes
type OutcomeListParams struct {
	Status string `json:"status"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

// DefaultRunListParams returns default values for run list params.
func DefaultRunListParams() RunListParams {
	return RunListParams{Limit: 20}
}

// DefaultOutcomeListParams returns default values for outcome list params.
func DefaultOutcomeListParams() OutcomeListParams {
	return OutcomeListParams{Limit: 100}
}

// ValidOutcomeStatus reports whether s can filter outcomes. Empty means all.
func ValidOutcomeStatus(s string) bool {
	switch s {
	case "", "matched", "unmatched", "ignored", "unparsable":
		return true
	}
	return false
}
