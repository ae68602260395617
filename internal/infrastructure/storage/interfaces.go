package storage

import "errors"

// ErrNotFound is returned when a run does not exist
var ErrNotFound = errors.New("not found")

// Repository defines the complete storage interface.
// This interface allows swapping implementations (SQLite, in-memory)
// and makes testing with mocks straightforward.
type Repository interface {
	RunRepository
	OutcomeRepository
	GetStats() (*Stats, error)
	Close() error
}

// RunRepository handles reconciliation run tracking
type RunRepository interface {
	// CreateRun records the start of a run
	CreateRun(run *Run) error

	// CompleteRun stores the final state and counts of a run
	CompleteRun(run *Run) error

	// GetRun retrieves a run by ID, ErrNotFound if absent
	GetRun(id string) (*Run, error)

	// ListRuns returns the most recent runs first
	ListRuns(limit int) ([]Run, error)
}

// OutcomeRepository handles per-transaction audit rows
type OutcomeRepository interface {
	// SaveOutcomes stores outcomes for a run, replacing rows with the same reference
	SaveOutcomes(runID string, outcomes []Outcome) error

	// ListOutcomes returns a page of a run's outcomes
	ListOutcomes(runID string, filters OutcomeFilters) (*OutcomeListResult, error)

	// SaveDocumentIssues stores the documents a run dropped
	SaveDocumentIssues(runID string, issues []DocumentIssue) error

	// ListDocumentIssues returns the documents a run dropped
	ListDocumentIssues(runID string) ([]DocumentIssue, error)
}

// OutcomeFilters defines filters for listing outcomes
type OutcomeFilters struct {
	Status string // Filter by status (empty = all)
	Limit  int    // Max results (0 = default 100)
	Offset int    // Pagination offset
}

// OutcomeListResult contains paginated outcome results
type OutcomeListResult struct {
	Outcomes   []Outcome `json:"outcomes"`
	TotalCount int       `json:"total_count"`
	Limit      int       `json:"limit"`
	Offset     int       `json:"offset"`
}

const defaultOutcomeLimit = 100

func (f OutcomeFilters) normalized() OutcomeFilters {
	if f.Limit <= 0 {
		f.Limit = defaultOutcomeLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
