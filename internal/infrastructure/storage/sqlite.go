package storage

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Storage provides SQLite database access for runs and outcomes.
// It implements the Repository interface.
type Storage struct {
	db *sql.DB
}

// Compile-time check that Storage implements Repository
var _ Repository = (*Storage)(nil)

// NewStorage creates a new storage instance with SQLite database
func NewStorage(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer; a single connection also keeps :memory: databases shared
	db.SetMaxOpenConns(1)

	// Enable foreign key constraints (SQLite-specific)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Run all pending migrations
	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Storage{db: db}, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// CreateRun inserts a new run row
func (s *Storage) CreateRun(run *Run) error {
	_, err := s.db.Exec(`
	INSERT INTO reconciliation_runs (id, state, started_at, statement_name, corpus_root)
	VALUES (?, ?, ?, ?, ?)
	`, run.ID, run.State, run.StartedAt.UTC(), run.StatementName, run.CorpusRoot)
	if err != nil {
		return fmt.Errorf("failed to create run %s: %w", run.ID, err)
	}
	return nil
}

// CompleteRun updates the final state and counters of a run
func (s *Storage) CompleteRun(run *Run) error {
	var completedAt any
	if run.CompletedAt != nil {
		completedAt = run.CompletedAt.UTC()
	}

	res, err := s.db.Exec(`
	UPDATE reconciliation_runs SET
		state = ?, completed_at = ?,
		documents_total = ?, documents_indexed = ?, documents_failed = ?, documents_undateable = ?,
		transactions_total = ?, matched = ?, unmatched = ?, ignored = ?, unparsable = ?,
		error_message = ?
	WHERE id = ?
	`,
		run.State, completedAt,
		run.DocumentsTotal, run.DocumentsIndexed, run.DocumentsFailed, run.DocumentsUndateable,
		run.TransactionsTotal, run.Matched, run.Unmatched, run.Ignored, run.Unparsable,
		run.ErrorMessage,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run %s: %w", run.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("complete run %s: %w", run.ID, ErrNotFound)
	}
	return nil
}

const runColumns = `id, state, started_at, completed_at, statement_name, corpus_root,
	documents_total, documents_indexed, documents_failed, documents_undateable,
	transactions_total, matched, unmatched, ignored, unparsable, error_message`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	run := &Run{}
	var completedAt sql.NullTime
	err := row.Scan(
		&run.ID,
		&run.State,
		&run.StartedAt,
		&completedAt,
		&run.StatementName,
		&run.CorpusRoot,
		&run.DocumentsTotal,
		&run.DocumentsIndexed,
		&run.DocumentsFailed,
		&run.DocumentsUndateable,
		&run.TransactionsTotal,
		&run.Matched,
		&run.Unmatched,
		&run.Ignored,
		&run.Unparsable,
		&run.ErrorMessage,
	)
	if err != nil {
		return nil, err
	}
	if completedAt.Valid {
		t := completedAt.Time
		run.CompletedAt = &t
	}
	return run, nil
}

// GetRun retrieves a run by ID
func (s *Storage) GetRun(id string) (*Run, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM reconciliation_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns returns recent runs, newest first
func (s *Storage) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM reconciliation_runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]Run, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// SaveOutcomes stores outcomes in one transaction
func (s *Storage) SaveOutcomes(runID string, outcomes []Outcome) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
	INSERT OR REPLACE INTO match_outcomes
	(run_id, reference, label, statement_date, amount, status, strategy,
	 document_path, document_date, is_card_settlement, card_settlement_date,
	 vendor_token, is_ignored, reason)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, o := range outcomes {
		if _, err := stmt.Exec(
			runID, o.Reference, o.Label, o.StatementDate, o.Amount, o.Status, o.Strategy,
			o.DocumentPath, o.DocumentDate, o.IsCardSettlement, o.CardSettlementDate,
			o.VendorToken, o.IsIgnored, o.Reason,
		); err != nil {
			return fmt.Errorf("failed to save outcome %s: %w", o.Reference, err)
		}
	}
	return tx.Commit()
}

// ListOutcomes returns a page of outcomes in insertion order
func (s *Storage) ListOutcomes(runID string, filters OutcomeFilters) (*OutcomeListResult, error) {
	filters = filters.normalized()

	where := "WHERE run_id = ?"
	args := []any{runID}
	if filters.Status != "" {
		where += " AND status = ?"
		args = append(args, filters.Status)
	}

	var total int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM match_outcomes "+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count outcomes: %w", err)
	}

	rows, err := s.db.Query(`
	SELECT run_id, reference, label, statement_date, amount, status, strategy,
	       document_path, document_date, is_card_settlement, card_settlement_date,
	       vendor_token, is_ignored, reason
	FROM match_outcomes `+where+` ORDER BY id LIMIT ? OFFSET ?`,
		append(args, filters.Limit, filters.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("failed to list outcomes: %w", err)
	}
	defer rows.Close()

	outcomes := make([]Outcome, 0)
	for rows.Next() {
		var o Outcome
		if err := rows.Scan(
			&o.RunID, &o.Reference, &o.Label, &o.StatementDate, &o.Amount, &o.Status, &o.Strategy,
			&o.DocumentPath, &o.DocumentDate, &o.IsCardSettlement, &o.CardSettlementDate,
			&o.VendorToken, &o.IsIgnored, &o.Reason,
		); err != nil {
			return nil, err
		}
		outcomes = append(outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &OutcomeListResult{
		Outcomes:   outcomes,
		TotalCount: total,
		Limit:      filters.Limit,
		Offset:     filters.Offset,
	}, nil
}

// SaveDocumentIssues stores dropped documents in one transaction
func (s *Storage) SaveDocumentIssues(runID string, issues []DocumentIssue) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, issue := range issues {
		if _, err := tx.Exec(
			`INSERT INTO document_issues (run_id, path, kind, error) VALUES (?, ?, ?, ?)`,
			runID, issue.Path, issue.Kind, issue.Error,
		); err != nil {
			return fmt.Errorf("failed to save document issue %s: %w", issue.Path, err)
		}
	}
	return tx.Commit()
}

// ListDocumentIssues returns dropped documents in insertion order
func (s *Storage) ListDocumentIssues(runID string) ([]DocumentIssue, error) {
	rows, err := s.db.Query(`SELECT run_id, path, kind, error FROM document_issues WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list document issues: %w", err)
	}
	defer rows.Close()

	issues := make([]DocumentIssue, 0)
	for rows.Next() {
		var i DocumentIssue
		if err := rows.Scan(&i.RunID, &i.Path, &i.Kind, &i.Error); err != nil {
			return nil, err
		}
		issues = append(issues, i)
	}
	return issues, rows.Err()
}

// GetStats aggregates all runs and outcomes
func (s *Storage) GetStats() (*Stats, error) {
	stats := &Stats{
		RunsByState:       make(map[string]int),
		MatchesByStrategy: make(map[string]int),
	}

	rows, err := s.db.Query(`SELECT state, COUNT(*), COALESCE(SUM(matched), 0), COALESCE(SUM(unmatched), 0) FROM reconciliation_runs GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate runs: %w", err)
	}
	for rows.Next() {
		var state string
		var count, matched, unmatched int
		if err := rows.Scan(&state, &count, &matched, &unmatched); err != nil {
			rows.Close()
			return nil, err
		}
		stats.RunsByState[state] = count
		stats.TotalRuns += count
		stats.TotalMatched += matched
		stats.TotalUnmatched += unmatched
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.Query(`SELECT strategy, COUNT(*) FROM match_outcomes WHERE status = ? GROUP BY strategy`, OutcomeMatched)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate strategies: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var strategy string
		var count int
		if err := rows.Scan(&strategy, &count); err != nil {
			return nil, err
		}
		stats.MatchesByStrategy[strategy] = count
	}
	return stats, rows.Err()
}
