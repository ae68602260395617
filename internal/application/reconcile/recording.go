package reconcile

import (
	"log/slog"
	"time"

	"github.com/eshaffer321/invoice-matcher/internal/infrastructure/storage"
)

// Recording and audit trail functions for the orchestrator.
// Storage failures are logged and never block a run.

// startRecording creates the run row. Returns false when nothing will be recorded.
func (o *Orchestrator) startRecording(logger *slog.Logger, result *Result, in Input) bool {
	if o.storage == nil {
		return false
	}
	run := &storage.Run{
		ID:            result.RunID,
		State:         string(result.State),
		StartedAt:     result.StartedAt,
		StatementName: in.StatementName,
		CorpusRoot:    in.CorpusRoot,
	}
	if err := o.storage.CreateRun(run); err != nil {
		logger.Warn("Failed to start run tracking", "error", err)
		return false
	}
	return true
}

// completeRecording stores the dropped documents, the outcomes and the final run row
func (o *Orchestrator) completeRecording(logger *slog.Logger, result *Result, runErr error) {
	if issues := documentIssues(result); len(issues) > 0 {
		if err := o.storage.SaveDocumentIssues(result.RunID, issues); err != nil {
			logger.Error("Failed to save document issues", "error", err)
		}
	}

	outcomes := make([]storage.Outcome, 0, len(result.Outcomes))
	for _, out := range result.Outcomes {
		outcomes = append(outcomes, toStorageOutcome(result.RunID, out))
	}
	if len(outcomes) > 0 {
		if err := o.storage.SaveOutcomes(result.RunID, outcomes); err != nil {
			logger.Error("Failed to save outcomes", "error", err)
		}
	}

	completed := result.CompletedAt
	c := result.Counts
	run := &storage.Run{
		ID:                  result.RunID,
		State:               string(result.State),
		StartedAt:           result.StartedAt,
		CompletedAt:         &completed,
		DocumentsTotal:      c.Documents,
		DocumentsIndexed:    c.Indexed,
		DocumentsFailed:     c.Failed,
		DocumentsUndateable: c.Undateable,
		TransactionsTotal:   c.Transactions,
		Matched:             c.Matched,
		Unmatched:           c.Unmatched,
		Ignored:             c.Ignored,
		Unparsable:          c.Unparsable,
	}
	if runErr != nil {
		run.ErrorMessage = runErr.Error()
	}
	if err := o.storage.CompleteRun(run); err != nil {
		logger.Error("Failed to complete run tracking", "error", err)
	}
}

func documentIssues(result *Result) []storage.DocumentIssue {
	if result.Corpus == nil {
		return nil
	}
	issues := make([]storage.DocumentIssue, 0, len(result.Corpus.Failed)+len(result.Corpus.Undateable))
	for _, f := range result.Corpus.Failed {
		issues = append(issues, storage.DocumentIssue{Path: f.Path, Kind: storage.IssueFailed, Error: f.Error})
	}
	for _, path := range result.Corpus.Undateable {
		issues = append(issues, storage.DocumentIssue{Path: path, Kind: storage.IssueUndateable})
	}
	return issues
}

func toStorageOutcome(runID string, out Outcome) storage.Outcome {
	return storage.Outcome{
		RunID:              runID,
		Reference:          out.Reference,
		Label:              out.Label,
		StatementDate:      formatDate(out.StatementDate),
		Amount:             out.Amount,
		Status:             string(out.Status),
		Strategy:           string(out.Strategy),
		DocumentPath:       out.DocumentPath,
		DocumentDate:       formatDate(out.DocumentDate),
		IsCardSettlement:   out.IsCardSettlement,
		CardSettlementDate: formatDate(out.CardSettlementDate),
		VendorToken:        out.VendorToken,
		IsIgnored:          out.IsIgnored,
		Reason:             out.Reason,
	}
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}
