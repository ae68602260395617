package reconcile

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/invoice-matcher/internal/application/corpus"
	"github.com/eshaffer321/invoice-matcher/internal/domain/documents"
	"github.com/eshaffer321/invoice-matcher/internal/domain/ledger"
	"github.com/eshaffer321/invoice-matcher/internal/domain/matcher"
	"github.com/eshaffer321/invoice-matcher/internal/infrastructure/metrics"
	"github.com/eshaffer321/invoice-matcher/internal/infrastructure/storage"
)

type fakeHandle string

func (h fakeHandle) Identity() string       { return string(h) }
func (h fakeHandle) Read() ([]byte, error) { return []byte(h), nil }

// fakeExtractor returns canned content per identity
type fakeExtractor struct {
	contents map[string]documents.Content
	errs     map[string]error
}

func (f *fakeExtractor) Extract(ctx context.Context, h documents.Handle) (documents.Content, error) {
	if err := ctx.Err(); err != nil {
		return documents.Content{}, err
	}
	if err := f.errs[h.Identity()]; err != nil {
		return documents.Content{}, err
	}
	return f.contents[h.Identity()], nil
}

type fakeReleaser struct{ calls int }

func (r *fakeReleaser) Terminate() { r.calls++ }

type failingIndexer struct{ err error }

func (f failingIndexer) Index(context.Context, []documents.Handle, corpus.ProgressFunc) (*corpus.Result, error) {
	return &corpus.Result{}, f.err
}

func amounts(values ...string) []decimal.Decimal {
	out := make([]decimal.Decimal, 0, len(values))
	for _, v := range values {
		out = append(out, decimal.RequireFromString(v))
	}
	return out
}

// fixture is a small corpus and statement covering every row outcome
func fixture() (Input, *fakeExtractor) {
	extractor := &fakeExtractor{
		contents: map[string]documents.Content{
			"2024/amazon_invoice_010324.pdf": {Text: "Total 45,90 EUR", Amounts: amounts("45.90")},
			"edf/2024-03-10_facture.pdf":     {Text: "Montant 80.12", Amounts: amounts("80.12")},
			"misc/scan.pdf":                  {Text: "", IsScanned: true},
		},
		errs: map[string]error{
			"broken.pdf": errors.New("document unreadable"),
		},
	}
	in := Input{
		Handles: []documents.Handle{
			fakeHandle("2024/amazon_invoice_010324.pdf"),
			fakeHandle("broken.pdf"),
			fakeHandle("edf/2024-03-10_facture.pdf"),
			fakeHandle("misc/scan.pdf"),
		},
		Transactions: []ledger.RawTransaction{
			{Reference: "T1", Date: "05/03/24", Label: "CB AMAZON [010324]", Amount: "-45.90"},
			{Reference: "T2", Date: "10/03/2024", Label: "PRLV EDF", Amount: "-80.12"},
			{Reference: "T3", Date: "12/03/2024", Label: "VIR SEPA EPARGNE", Amount: "-100.00"},
			{Reference: "T4", Date: "32/13/2024", Label: "CB FNAC", Amount: "-10.00"},
			{Reference: "T5", Date: "14/03/2024", Label: "FRAIS", Amount: "abc"},
			{Reference: "T6", Date: "15/03/2024", Label: "PRLV FREE", Amount: "-999.99"},
		},
		IgnoredPatterns: []string{"VIR SEPA EPARGNE"},
		StatementName:   "releve-2024-03.csv",
		CorpusRoot:      "/data/factures",
	}
	return in, extractor
}

func newOrchestrator(extractor corpus.Extractor, opts ...Option) *Orchestrator {
	indexer := corpus.NewIndexer(extractor, corpus.Options{Workers: 2}, nil, nil)
	return NewOrchestrator(indexer, matcher.NewMatcher(matcher.DefaultConfig()), opts...)
}

func outcomeByRef(t *testing.T, result *Result, ref string) Outcome {
	t.Helper()
	for _, o := range result.Outcomes {
		if o.Reference == ref {
			return o
		}
	}
	t.Fatalf("no outcome for %s", ref)
	return Outcome{}
}

func TestOrchestrator_Run_EndToEnd(t *testing.T) {
	// Arrange
	in, extractor := fixture()
	orch := newOrchestrator(extractor)

	// Act
	result, err := orch.Run(context.Background(), in, Options{RunID: "run-1"})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "run-1", result.RunID)
	assert.Equal(t, StateDone, result.State)
	assert.False(t, result.CompletedAt.Before(result.StartedAt))

	c := result.Counts
	assert.Equal(t, 4, c.Documents)
	assert.Equal(t, 2, c.Indexed)
	assert.Equal(t, 1, c.Failed)
	assert.Equal(t, 1, c.Undateable)
	assert.Equal(t, 6, c.Transactions)
	assert.Equal(t, 2, c.Matched)
	assert.Equal(t, 1, c.Unmatched)
	assert.Equal(t, 1, c.Ignored)
	assert.Equal(t, 2, c.Unparsable)
	assert.Equal(t, 1, c.ByStrategy[matcher.StrategyVendor])
	assert.Equal(t, 1, c.ByStrategy[matcher.StrategyExactDateAmount])

	// Every row reported, statement order
	refs := make([]string, 0, len(result.Outcomes))
	for _, o := range result.Outcomes {
		refs = append(refs, o.Reference)
	}
	assert.Equal(t, []string{"T1", "T2", "T3", "T4", "T5", "T6"}, refs)

	t1 := outcomeByRef(t, result, "T1")
	assert.Equal(t, StatusMatched, t1.Status)
	assert.Equal(t, matcher.StrategyVendor, t1.Strategy)
	assert.Equal(t, "2024/amazon_invoice_010324.pdf", t1.DocumentPath)
	assert.True(t, t1.IsCardSettlement)
	require.NotNil(t, t1.CardSettlementDate)
	assert.Equal(t, "2024-03-01", t1.CardSettlementDate.Format("2006-01-02"))
	assert.Equal(t, "amazon", t1.VendorToken)
	assert.Equal(t, "-45.90", t1.Amount)

	t2 := outcomeByRef(t, result, "T2")
	assert.Equal(t, StatusMatched, t2.Status)
	assert.Equal(t, "edf/2024-03-10_facture.pdf", t2.DocumentPath)
	assert.Empty(t, t2.VendorToken)

	t3 := outcomeByRef(t, result, "T3")
	assert.Equal(t, StatusIgnored, t3.Status)
	assert.True(t, t3.IsIgnored)

	t4 := outcomeByRef(t, result, "T4")
	assert.Equal(t, StatusUnparsable, t4.Status)
	assert.Equal(t, ReasonDate, t4.Reason)
	assert.Nil(t, t4.StatementDate)

	t5 := outcomeByRef(t, result, "T5")
	assert.Equal(t, StatusUnparsable, t5.Status)
	assert.Equal(t, ReasonAmount, t5.Reason)
	require.NotNil(t, t5.StatementDate)

	assert.Equal(t, StatusUnmatched, outcomeByRef(t, result, "T6").Status)

	assert.Contains(t, result.Matches, "T1")
	assert.NotContains(t, result.Matches, "T6")
}

func TestOrchestrator_Run_ProgressIsMonotonic(t *testing.T) {
	in, extractor := fixture()
	orch := newOrchestrator(extractor)

	var updates []Progress
	_, err := orch.Run(context.Background(), in, Options{
		Progress: func(p Progress) { updates = append(updates, p) },
	})
	require.NoError(t, err)

	require.NotEmpty(t, updates)
	assert.Equal(t, 0.0, updates[0].Percent)
	assert.Equal(t, StateIndexing, updates[0].State)
	last := updates[len(updates)-1]
	assert.Equal(t, 100.0, last.Percent)
	assert.Equal(t, StateDone, last.State)

	sawHalf := false
	for i := 1; i < len(updates); i++ {
		assert.GreaterOrEqual(t, updates[i].Percent, updates[i-1].Percent)
		if updates[i].State == StateMatching {
			assert.GreaterOrEqual(t, updates[i].Percent, 50.0)
		}
		if updates[i].Percent == 50 {
			sawHalf = true
		}
	}
	assert.True(t, sawHalf, "indexing ends at 50%")
}

func TestOrchestrator_Run_EmptyInputs(t *testing.T) {
	orch := newOrchestrator(&fakeExtractor{})

	var last Progress
	result, err := orch.Run(context.Background(), Input{}, Options{
		Progress: func(p Progress) { last = p },
	})

	require.NoError(t, err)
	assert.Equal(t, StateDone, result.State)
	assert.Empty(t, result.Outcomes)
	assert.NotEmpty(t, result.RunID, "uuid generated")
	assert.Equal(t, 100.0, last.Percent)
}

func TestOrchestrator_Run_RecordsAuditTrail(t *testing.T) {
	// Arrange
	in, extractor := fixture()
	repo := storage.NewMockRepository()
	orch := newOrchestrator(extractor, WithStorage(repo))

	// Act
	_, err := orch.Run(context.Background(), in, Options{RunID: "run-1"})
	require.NoError(t, err)

	// Assert
	run, err := repo.GetRun("run-1")
	require.NoError(t, err)
	assert.Equal(t, string(StateDone), run.State)
	assert.Equal(t, "releve-2024-03.csv", run.StatementName)
	assert.Equal(t, "/data/factures", run.CorpusRoot)
	assert.Equal(t, 2, run.Matched)
	assert.Equal(t, 2, run.Unparsable)
	assert.Equal(t, 1, run.DocumentsFailed)
	require.NotNil(t, run.CompletedAt)

	outcomes, err := repo.ListOutcomes("run-1", storage.OutcomeFilters{})
	require.NoError(t, err)
	assert.Equal(t, 6, outcomes.TotalCount)
	assert.Equal(t, "2024-03-01", outcomes.Outcomes[0].DocumentDate)
	assert.Equal(t, "vendor", outcomes.Outcomes[0].Strategy)

	issues, err := repo.ListDocumentIssues("run-1")
	require.NoError(t, err)
	require.Len(t, issues, 2)
	assert.Equal(t, storage.IssueFailed, issues[0].Kind)
	assert.Equal(t, "misc/scan.pdf", issues[1].Path)
}

func TestOrchestrator_Run_StorageFailureDoesNotBlock(t *testing.T) {
	in, extractor := fixture()
	repo := storage.NewMockRepository()
	repo.CreateRunErr = errors.New("disk full")
	orch := newOrchestrator(extractor, WithStorage(repo))

	result, err := orch.Run(context.Background(), in, Options{})

	require.NoError(t, err)
	assert.Equal(t, StateDone, result.State)
	assert.False(t, repo.SaveOutcomesCalled)
	assert.False(t, repo.CompleteRunCalled)
}

func TestOrchestrator_Run_CancelledBeforeIndexing(t *testing.T) {
	in, extractor := fixture()
	repo := storage.NewMockRepository()
	releaser := &fakeReleaser{}
	orch := newOrchestrator(extractor, WithStorage(repo), WithReleaser(releaser))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := orch.Run(ctx, in, Options{RunID: "run-1"})

	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	assert.Equal(t, StateCancelled, result.State)
	assert.Zero(t, result.Counts.Matched)
	for _, o := range result.Outcomes {
		assert.Equal(t, StatusUnparsable, o.Status, "only rows decided before indexing")
	}
	assert.Equal(t, 1, releaser.calls)

	run, err := repo.GetRun("run-1")
	require.NoError(t, err)
	assert.Equal(t, string(StateCancelled), run.State)
	assert.Contains(t, run.ErrorMessage, "canceled")
}

func TestOrchestrator_Run_CancelledBetweenTransactions(t *testing.T) {
	extractor := &fakeExtractor{contents: map[string]documents.Content{
		"2024-03-10_a.pdf": {Amounts: amounts("10.00")},
	}}
	in := Input{
		Handles: []documents.Handle{fakeHandle("2024-03-10_a.pdf")},
		Transactions: []ledger.RawTransaction{
			{Reference: "T1", Date: "10/03/2024", Label: "PRLV A", Amount: "-10.00"},
			{Reference: "T2", Date: "10/03/2024", Label: "PRLV B", Amount: "-10.00"},
		},
	}
	orch := newOrchestrator(extractor)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	result, err := orch.Run(ctx, in, Options{
		Progress: func(p Progress) {
			if p.State == StateMatching && p.Done == 1 {
				cancel()
			}
		},
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateCancelled, result.State)
	require.Len(t, result.Outcomes, 1)
	assert.Equal(t, "T1", result.Outcomes[0].Reference)
	assert.Equal(t, StatusMatched, result.Outcomes[0].Status)
}

func TestOrchestrator_Run_IndexerFailure(t *testing.T) {
	releaser := &fakeReleaser{}
	orch := NewOrchestrator(
		failingIndexer{err: errors.New("corpus root vanished")},
		matcher.NewMatcher(matcher.DefaultConfig()),
		WithReleaser(releaser),
	)

	result, err := orch.Run(context.Background(), Input{}, Options{})

	require.Error(t, err)
	assert.Equal(t, StateFailed, result.State)
	assert.Equal(t, 1, releaser.calls)
}

func TestOrchestrator_Run_ReleasesOnSuccess(t *testing.T) {
	in, extractor := fixture()
	releaser := &fakeReleaser{}
	orch := newOrchestrator(extractor, WithReleaser(releaser))

	_, err := orch.Run(context.Background(), in, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, releaser.calls)
}

func TestOrchestrator_Run_CustomCardMarker(t *testing.T) {
	extractor := &fakeExtractor{contents: map[string]documents.Content{
		"fnac/fnac_150324.pdf": {Amounts: amounts("19.99")},
	}}
	in := Input{
		Handles:      []documents.Handle{fakeHandle("fnac/fnac_150324.pdf")},
		Transactions: []ledger.RawTransaction{{Reference: "T1", Date: "18/03/2024", Label: "CARTE FNAC 150324", Amount: "-19.99"}},
	}
	orch := newOrchestrator(extractor, WithCardMarker("CARTE "))

	result, err := orch.Run(context.Background(), in, Options{})

	require.NoError(t, err)
	out := outcomeByRef(t, result, "T1")
	assert.Equal(t, "fnac", out.VendorToken)
	assert.Equal(t, matcher.StrategyVendor, out.Strategy)
}

func TestOrchestrator_Run_Metrics(t *testing.T) {
	in, extractor := fixture()
	m := metrics.New()
	orch := newOrchestrator(extractor, WithMetrics(m))

	_, err := orch.Run(context.Background(), in, Options{})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, `invoice_matcher_reconcile_runs_total{state="done"} 1`)
	assert.Contains(t, body, `invoice_matcher_matcher_transactions_total{strategy="vendor"} 1`)
	assert.Contains(t, body, `invoice_matcher_matcher_transactions_total{strategy="unmatched"} 1`)
}
