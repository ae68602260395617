package handlers_test

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/eshaffer321/invoice-matcher/internal/infrastructure/storage"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// Helper to set chi URL param in context
func setChiURLParam(ctx context.Context, key, value string) context.Context {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return context.WithValue(ctx, chi.RouteCtxKey, rctx)
}

// seedRun stores a completed run with two matched and one unmatched outcome
func seedRun(repo storage.Repository, id string, started time.Time) {
	completed := started.Add(time.Minute)
	_ = repo.CreateRun(&storage.Run{ID: id, State: "indexing", StartedAt: started, StatementName: "releve.csv", CorpusRoot: "/corpus"})
	_ = repo.SaveOutcomes(id, []storage.Outcome{
		{Reference: "T1", Label: "CB AMAZON", Amount: "25.50", Status: storage.OutcomeMatched, Strategy: "vendor", DocumentPath: "amazon/a.pdf"},
		{Reference: "T2", Label: "EDF", Amount: "80.12", Status: storage.OutcomeMatched, Strategy: "exact_date_amount", DocumentPath: "edf/b.pdf"},
		{Reference: "T3", Label: "FOO", Amount: "9.99", Status: storage.OutcomeUnmatched},
	})
	_ = repo.SaveDocumentIssues(id, []storage.DocumentIssue{
		{Path: "broken.pdf", Kind: storage.IssueFailed, Error: "cannot open"},
	})
	_ = repo.CompleteRun(&storage.Run{
		ID:                id,
		State:             "done",
		StartedAt:         started,
		CompletedAt:       &completed,
		StatementName:     "releve.csv",
		CorpusRoot:        "/corpus",
		DocumentsTotal:    3,
		DocumentsIndexed:  2,
		DocumentsFailed:   1,
		TransactionsTotal: 3,
		Matched:           2,
		Unmatched:         1,
	})
}
