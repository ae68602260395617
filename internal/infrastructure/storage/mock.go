package storage

import (
	"sort"
	"sync"
)

// MockRepository is an in-memory implementation of Repository for testing.
// It stores all data in maps and slices, making tests fast and isolated.
type MockRepository struct {
	mu       sync.Mutex
	runs     map[string]*Run
	outcomes map[string][]Outcome       // Keyed by run_id
	issues   map[string][]DocumentIssue // Keyed by run_id

	// Hooks for test assertions
	CreateRunCalled    bool
	CompleteRunCalled  bool
	SaveOutcomesCalled bool
	LastCompletedRun   *Run

	// Error injection for testing error paths
	CreateRunErr    error
	CompleteRunErr  error
	SaveOutcomesErr error
	SaveIssuesErr   error
	GetRunErr       error
	ListRunsErr     error
	GetStatsErr     error
}

// NewMockRepository creates a new mock repository for testing
func NewMockRepository() *MockRepository {
	return &MockRepository{
		runs:     make(map[string]*Run),
		outcomes: make(map[string][]Outcome),
		issues:   make(map[string][]DocumentIssue),
	}
}

// Compile-time check that MockRepository implements Repository
var _ Repository = (*MockRepository)(nil)

// Close does nothing for mock
func (m *MockRepository) Close() error {
	return nil
}

// CreateRun stores a copy of the run
func (m *MockRepository) CreateRun(run *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CreateRunCalled = true
	if m.CreateRunErr != nil {
		return m.CreateRunErr
	}
	copied := *run
	m.runs[run.ID] = &copied
	return nil
}

// CompleteRun updates the final state and counters, leaving the
// statement, corpus and start time as created
func (m *MockRepository) CompleteRun(run *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CompleteRunCalled = true
	copied := *run
	m.LastCompletedRun = &copied
	if m.CompleteRunErr != nil {
		return m.CompleteRunErr
	}
	stored, ok := m.runs[run.ID]
	if !ok {
		return ErrNotFound
	}

	updated := *stored
	updated.State = run.State
	updated.CompletedAt = nil
	if run.CompletedAt != nil {
		t := *run.CompletedAt
		updated.CompletedAt = &t
	}
	updated.DocumentsTotal = run.DocumentsTotal
	updated.DocumentsIndexed = run.DocumentsIndexed
	updated.DocumentsFailed = run.DocumentsFailed
	updated.DocumentsUndateable = run.DocumentsUndateable
	updated.TransactionsTotal = run.TransactionsTotal
	updated.Matched = run.Matched
	updated.Unmatched = run.Unmatched
	updated.Ignored = run.Ignored
	updated.Unparsable = run.Unparsable
	updated.ErrorMessage = run.ErrorMessage
	m.runs[run.ID] = &updated
	return nil
}

// GetRun returns a copy of a stored run
func (m *MockRepository) GetRun(id string) (*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.GetRunErr != nil {
		return nil, m.GetRunErr
	}
	run, ok := m.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *run
	return &copied, nil
}

// ListRuns returns runs newest first
func (m *MockRepository) ListRuns(limit int) ([]Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ListRunsErr != nil {
		return nil, m.ListRunsErr
	}
	runs := make([]Run, 0, len(m.runs))
	for _, run := range m.runs {
		runs = append(runs, *run)
	}
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].ID < runs[j].ID
		}
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// SaveOutcomes appends outcomes, replacing those with the same reference
func (m *MockRepository) SaveOutcomes(runID string, outcomes []Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SaveOutcomesCalled = true
	if m.SaveOutcomesErr != nil {
		return m.SaveOutcomesErr
	}
	existing := m.outcomes[runID]
	for _, o := range outcomes {
		o.RunID = runID
		replaced := false
		for i := range existing {
			if existing[i].Reference == o.Reference {
				existing[i] = o
				replaced = true
				break
			}
		}
		if !replaced {
			existing = append(existing, o)
		}
	}
	m.outcomes[runID] = existing
	return nil
}

// ListOutcomes filters and pages the stored outcomes
func (m *MockRepository) ListOutcomes(runID string, filters OutcomeFilters) (*OutcomeListResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	filters = filters.normalized()
	matching := make([]Outcome, 0)
	for _, o := range m.outcomes[runID] {
		if filters.Status != "" && o.Status != filters.Status {
			continue
		}
		matching = append(matching, o)
	}

	page := make([]Outcome, 0)
	if filters.Offset < len(matching) {
		end := min(filters.Offset+filters.Limit, len(matching))
		page = append(page, matching[filters.Offset:end]...)
	}
	return &OutcomeListResult{
		Outcomes:   page,
		TotalCount: len(matching),
		Limit:      filters.Limit,
		Offset:     filters.Offset,
	}, nil
}

// SaveDocumentIssues appends issues for a run
func (m *MockRepository) SaveDocumentIssues(runID string, issues []DocumentIssue) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SaveIssuesErr != nil {
		return m.SaveIssuesErr
	}
	for _, issue := range issues {
		issue.RunID = runID
		m.issues[runID] = append(m.issues[runID], issue)
	}
	return nil
}

// ListDocumentIssues returns the stored issues for a run
func (m *MockRepository) ListDocumentIssues(runID string) ([]DocumentIssue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append(make([]DocumentIssue, 0), m.issues[runID]...), nil
}

// GetStats aggregates the in-memory data
func (m *MockRepository) GetStats() (*Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.GetStatsErr != nil {
		return nil, m.GetStatsErr
	}
	stats := &Stats{
		RunsByState:       make(map[string]int),
		MatchesByStrategy: make(map[string]int),
	}
	for _, run := range m.runs {
		stats.TotalRuns++
		stats.RunsByState[run.State]++
		stats.TotalMatched += run.Matched
		stats.TotalUnmatched += run.Unmatched
	}
	for _, outcomes := range m.outcomes {
		for _, o := range outcomes {
			if o.Status == OutcomeMatched {
				stats.MatchesByStrategy[o.Strategy]++
			}
		}
	}
	return stats, nil
}
