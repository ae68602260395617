// Package reconcile runs one statement against one document corpus.
//
// A run normalizes the statement rows, indexes the corpus, then matches.
// Its lifecycle is an explicit state machine (idle, indexing, matching,
// done) with cancelled and failed as the other terminal states. Per-row
// problems never abort a run: they become outcomes and counts.
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/eshaffer321/invoice-matcher/internal/application/corpus"
	"github.com/eshaffer321/invoice-matcher/internal/domain/documents"
	"github.com/eshaffer321/invoice-matcher/internal/domain/extract"
	"github.com/eshaffer321/invoice-matcher/internal/domain/ledger"
	"github.com/eshaffer321/invoice-matcher/internal/domain/matcher"
	"github.com/eshaffer321/invoice-matcher/internal/infrastructure/metrics"
	"github.com/eshaffer321/invoice-matcher/internal/infrastructure/storage"
)

// CorpusIndexer builds the dated corpus
type CorpusIndexer interface {
	Index(ctx context.Context, handles []documents.Handle, progress corpus.ProgressFunc) (*corpus.Result, error)
}

// TransactionMatcher runs the matching cascade
type TransactionMatcher interface {
	MatchAll(ctx context.Context, txs []ledger.Transaction, corpus []documents.Record, progress matcher.ProgressFunc) (*matcher.Result, error)
}

// Releaser frees a shared resource once a run ends (the OCR pool)
type Releaser interface {
	Terminate()
}

// Orchestrator runs reconciliations
type Orchestrator struct {
	indexer    CorpusIndexer
	matcher    TransactionMatcher
	storage    storage.Repository
	releaser   Releaser
	cardMarker string
	logger     *slog.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithStorage records runs and outcomes
func WithStorage(repo storage.Repository) Option {
	return func(o *Orchestrator) { o.storage = repo }
}

// WithReleaser terminates r when each run ends
func WithReleaser(r Releaser) Option {
	return func(o *Orchestrator) { o.releaser = r }
}

// WithCardMarker overrides ledger.DefaultCardMarker
func WithCardMarker(marker string) Option {
	return func(o *Orchestrator) { o.cardMarker = marker }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// NewOrchestrator creates a new reconciliation orchestrator
func NewOrchestrator(indexer CorpusIndexer, m TransactionMatcher, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		indexer:    indexer,
		matcher:    m,
		cardMarker: ledger.DefaultCardMarker,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// row is one statement line: either normalized or rejected
type row struct {
	tx      *ledger.Transaction
	outcome *Outcome
}

// Run executes one reconciliation. It returns ErrInvalidTransition on
// state misuse and ctx.Err() when cancelled; in the latter case the
// partial Result is returned too. The releaser runs on every exit path.
func (o *Orchestrator) Run(ctx context.Context, in Input, opts Options) (*Result, error) {
	if o.releaser != nil {
		defer o.releaser.Terminate()
	}

	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	logger := o.logger.With(slog.String("run_id", runID))
	machine := NewMachine()
	progress := newProgressReporter(opts.Progress)

	result := &Result{
		RunID:     runID,
		State:     machine.State(),
		StartedAt: o.now(),
		Matches:   make(map[string]matcher.Match),
		Outcomes:  make([]Outcome, 0, len(in.Transactions)),
		Counts: Counts{
			Documents:    len(in.Handles),
			Transactions: len(in.Transactions),
			ByStrategy:   make(map[matcher.StrategyName]int),
		},
	}
	recorded := o.startRecording(logger, result, in)

	logger.Info("starting reconciliation",
		slog.Int("documents", len(in.Handles)),
		slog.Int("transactions", len(in.Transactions)),
		slog.Int("ignored_patterns", len(in.IgnoredPatterns)),
	)

	rows, txs := o.normalize(logger, in)

	// 1. Index the corpus
	if err := machine.Transition(StateIndexing); err != nil {
		return nil, err
	}
	progress.report(StateIndexing, 0, 0, len(in.Handles))

	corpusResult, err := o.indexer.Index(ctx, in.Handles, func(done, total int) {
		progress.report(StateIndexing, 50*fraction(done, total), done, total)
	})
	result.Corpus = corpusResult
	if corpusResult != nil {
		result.Counts.Indexed = len(corpusResult.Records)
		result.Counts.Failed = len(corpusResult.Failed)
		result.Counts.Undateable = len(corpusResult.Undateable)
	}
	if err != nil {
		return o.finish(logger, machine, result, rows, nil, recorded, err)
	}
	if corpusResult == nil {
		corpusResult = &corpus.Result{Total: len(in.Handles)}
		result.Corpus = corpusResult
	}
	progress.report(StateIndexing, 50, len(in.Handles), len(in.Handles))

	logger.Info("corpus indexed",
		slog.Int("indexed", result.Counts.Indexed),
		slog.Int("failed", result.Counts.Failed),
		slog.Int("undateable", result.Counts.Undateable),
	)

	// 2. Match the transactions
	if err := machine.Transition(StateMatching); err != nil {
		return nil, err
	}
	matchResult, err := o.matcher.MatchAll(ctx, txs, corpusResult.Records, func(done, total int) {
		progress.report(StateMatching, 50+50*fraction(done, total), done, total)
	})
	if err != nil {
		return o.finish(logger, machine, result, rows, matchResult, recorded, err)
	}

	if err := machine.Transition(StateDone); err != nil {
		return nil, err
	}
	progress.report(StateDone, 100, len(txs), len(txs))
	return o.finish(logger, machine, result, rows, matchResult, recorded, nil)
}

// normalize converts the statement rows. Unparsable rows are decided here.
func (o *Orchestrator) normalize(logger *slog.Logger, in Input) ([]row, []ledger.Transaction) {
	normalizer := ledger.NewNormalizer(o.cardMarker, in.IgnoredPatterns)
	rows := make([]row, 0, len(in.Transactions))
	txs := make([]ledger.Transaction, 0, len(in.Transactions))

	for _, raw := range in.Transactions {
		tx, err := normalizer.Normalize(raw)
		if err != nil {
			reason := ReasonAmount
			if errors.Is(err, ledger.ErrUnparsableDate) {
				reason = ReasonDate
			}
			logger.Warn("excluding unparsable transaction",
				slog.String("reference", raw.Reference),
				slog.String("reason", reason),
				slog.String("error", err.Error()),
			)
			out := &Outcome{
				Reference: raw.Reference,
				Label:     raw.Label,
				Amount:    raw.Amount,
				Status:    StatusUnparsable,
				IsIgnored: ledger.IsIgnored(raw.Label, in.IgnoredPatterns),
				Reason:    reason,
			}
			if d, ok := extract.ParseDate(strings.TrimSpace(raw.Date)); ok {
				out.StatementDate = &d
			}
			rows = append(rows, row{outcome: out})
			continue
		}
		rows = append(rows, row{tx: &tx})
		txs = append(txs, tx)
	}
	return rows, txs
}

// finish settles the terminal state, builds outcomes and records the run
func (o *Orchestrator) finish(
	logger *slog.Logger,
	machine *Machine,
	result *Result,
	rows []row,
	matchResult *matcher.Result,
	recorded bool,
	runErr error,
) (*Result, error) {
	if runErr != nil {
		terminal := StateFailed
		if errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded) {
			terminal = StateCancelled
		}
		if err := machine.Transition(terminal); err != nil {
			return nil, errors.Join(runErr, err)
		}
	}

	result.State = machine.State()
	result.CompletedAt = o.now()
	o.collectOutcomes(result, rows, matchResult)

	if recorded {
		o.completeRecording(logger, result, runErr)
	}
	o.metrics.ObserveRun(string(result.State), result.Duration())

	c := result.Counts
	if runErr != nil {
		logger.Warn("reconciliation stopped",
			slog.String("state", string(result.State)),
			slog.String("error", runErr.Error()),
			slog.Int("matched", c.Matched),
		)
		return result, runErr
	}
	logger.Info("reconciliation complete",
		slog.Int("matched", c.Matched),
		slog.Int("unmatched", c.Unmatched),
		slog.Int("ignored", c.Ignored),
		slog.Int("unparsable", c.Unparsable),
		slog.Duration("duration", result.Duration()),
	)
	return result, nil
}

// collectOutcomes walks the rows in statement order. Rows the matcher never
// reached (cancellation) have no outcome.
func (o *Orchestrator) collectOutcomes(result *Result, rows []row, matchResult *matcher.Result) {
	decided := make(map[string]Status)
	if matchResult != nil {
		result.Matches = matchResult.Matches
		for ref := range matchResult.Matches {
			decided[ref] = StatusMatched
		}
		for _, ref := range matchResult.Unmatched {
			decided[ref] = StatusUnmatched
		}
		for _, ref := range matchResult.Skipped {
			decided[ref] = StatusIgnored
		}
	}

	for _, r := range rows {
		if r.outcome != nil {
			result.Outcomes = append(result.Outcomes, *r.outcome)
			result.Counts.Unparsable++
			continue
		}
		tx := r.tx
		status, ok := decided[tx.Reference]
		if !ok {
			continue
		}

		statementDate := tx.StatementDate
		out := Outcome{
			Reference:          tx.Reference,
			Label:              tx.Label,
			StatementDate:      &statementDate,
			Amount:             tx.Amount.StringFixed(2),
			Status:             status,
			IsCardSettlement:   tx.IsCardSettlement,
			CardSettlementDate: tx.CardSettlementDate,
			VendorToken:        tx.VendorToken,
			IsIgnored:          tx.IsIgnored,
		}

		switch status {
		case StatusMatched:
			m := result.Matches[tx.Reference]
			docDate := m.DocumentDate
			out.Strategy = m.Strategy
			out.DocumentPath = m.DocumentPath
			out.DocumentDate = &docDate
			result.Counts.Matched++
			result.Counts.ByStrategy[m.Strategy]++
			o.metrics.ObserveMatch(string(m.Strategy))
		case StatusUnmatched:
			result.Counts.Unmatched++
			o.metrics.ObserveMatch(string(StatusUnmatched))
		case StatusIgnored:
			result.Counts.Ignored++
		}
		result.Outcomes = append(result.Outcomes, out)
	}
}

func fraction(done, total int) float64 {
	if total <= 0 {
		return 1
	}
	return float64(done) / float64(total)
}
