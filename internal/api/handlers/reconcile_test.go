package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/invoice-matcher/internal/api/dto"
	"github.com/eshaffer321/invoice-matcher/internal/api/handlers"
	"github.com/eshaffer321/invoice-matcher/internal/application/reconcile"
	"github.com/eshaffer321/invoice-matcher/internal/application/service"
	"github.com/eshaffer321/invoice-matcher/internal/domain/matcher"
)

// blockingRunner finishes with one matched outcome once released
type blockingRunner struct {
	release chan struct{}
}

func (b *blockingRunner) Run(ctx context.Context, in reconcile.Input, opts reconcile.Options) (*reconcile.Result, error) {
	opts.Progress(reconcile.Progress{State: reconcile.StateIndexing, Percent: 10, Done: 1, Total: 5})

	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	result := &reconcile.Result{
		RunID:     opts.RunID,
		State:     reconcile.StateDone,
		StartedAt: day,
		Outcomes: []reconcile.Outcome{{
			Reference:     "T1",
			Label:         "CB AMAZON",
			StatementDate: &day,
			Amount:        "25.50",
			Status:        reconcile.StatusMatched,
			Strategy:      matcher.StrategyVendor,
			DocumentPath:  "amazon/a.pdf",
			DocumentDate:  &day,
		}},
		Counts: reconcile.Counts{
			Transactions: 1,
			Matched:      1,
			ByStrategy:   map[matcher.StrategyName]int{matcher.StrategyVendor: 1},
		},
	}

	select {
	case <-b.release:
		result.CompletedAt = day.Add(2 * time.Second)
		return result, nil
	case <-ctx.Done():
		result.State = reconcile.StateCancelled
		return result, ctx.Err()
	}
}

func newReconcileHandler(t *testing.T) (*handlers.ReconcileHandler, *service.ReconcileService, *blockingRunner) {
	t.Helper()
	runner := &blockingRunner{release: make(chan struct{})}
	loader := func(req service.ReconcileRequest) (reconcile.Input, error) {
		return reconcile.Input{CorpusRoot: req.CorpusRoot}, nil
	}
	svc := service.NewReconcileService(runner, loader, quietLogger)
	t.Cleanup(svc.Wait)
	return handlers.NewReconcileHandler(svc, quietLogger), svc, runner
}

func startJob(t *testing.T, h *handlers.ReconcileHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/reconciliations", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Start(rec, req)
	return rec
}

func jobRequest(h *handlers.ReconcileHandler, method, jobID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/api/reconciliations/"+jobID, nil)
	req = req.WithContext(setChiURLParam(req.Context(), "jobId", jobID))
	rec := httptest.NewRecorder()
	switch method {
	case http.MethodDelete:
		h.Cancel(rec, req)
	default:
		h.Get(rec, req)
	}
	return rec
}

const validBody = `{"statement_path":"releve.csv","corpus_root":"/data/factures","folders":["amazon"]}`

func TestReconcileHandler_Start(t *testing.T) {
	t.Run("accepts a valid request", func(t *testing.T) {
		// Arrange
		h, _, runner := newReconcileHandler(t)
		defer close(runner.release)

		// Act
		rec := startJob(t, h, validBody)

		// Assert
		require.Equal(t, http.StatusAccepted, rec.Code)

		var response dto.StartReconciliationResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
		assert.NotEmpty(t, response.JobID)
		assert.Equal(t, "pending", response.Status)
	})

	t.Run("rejects malformed JSON", func(t *testing.T) {
		h, _, _ := newReconcileHandler(t)

		rec := startJob(t, h, `{not json`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects missing fields", func(t *testing.T) {
		h, _, _ := newReconcileHandler(t)

		for _, body := range []string{
			`{"corpus_root":"/data"}`,
			`{"statement_path":"releve.csv"}`,
			`{"statement_path":"releve.csv","corpus_root":"/data","folders":["a/b"]}`,
		} {
			rec := startJob(t, h, body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, body)

			var response dto.APIError
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
			assert.Equal(t, dto.ErrCodeValidation, response.Code)
		}
	})

	t.Run("returns 409 while the corpus is busy", func(t *testing.T) {
		h, _, runner := newReconcileHandler(t)
		defer close(runner.release)

		require.Equal(t, http.StatusAccepted, startJob(t, h, validBody).Code)
		rec := startJob(t, h, validBody)

		assert.Equal(t, http.StatusConflict, rec.Code)

		var response dto.APIError
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
		assert.Equal(t, dto.ErrCodeConflict, response.Code)
	})
}

func TestReconcileHandler_Get(t *testing.T) {
	t.Run("reports the finished result with outcomes", func(t *testing.T) {
		h, svc, runner := newReconcileHandler(t)

		var started dto.StartReconciliationResponse
		require.NoError(t, json.NewDecoder(startJob(t, h, validBody).Body).Decode(&started))
		close(runner.release)
		require.Eventually(t, func() bool {
			job, err := svc.GetJob(started.JobID)
			return err == nil && job.Status == service.StatusCompleted
		}, 2*time.Second, 5*time.Millisecond)

		rec := jobRequest(h, http.MethodGet, started.JobID)
		require.Equal(t, http.StatusOK, rec.Code)

		var response dto.JobResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))

		assert.Equal(t, "completed", response.Status)
		assert.Equal(t, "/data/factures", response.CorpusRoot)
		assert.Equal(t, []string{"amazon"}, response.Folders)
		assert.Equal(t, float64(100), response.Progress.Percent)
		require.NotNil(t, response.CompletedAt)
		require.NotNil(t, response.Result)
		assert.Equal(t, started.JobID, response.Result.RunID)
		assert.Equal(t, "done", response.Result.State)
		assert.Equal(t, 2.0, response.Result.DurationSeconds)
		assert.Equal(t, 1, response.Result.MatchesByStrategy["vendor"])
		require.Len(t, response.Result.Outcomes, 1)

		outcome := response.Result.Outcomes[0]
		assert.Equal(t, "T1", outcome.Reference)
		assert.Equal(t, "2024-03-01", outcome.StatementDate)
		assert.Equal(t, "2024-03-01", outcome.DocumentDate)
		assert.Equal(t, "vendor", outcome.Strategy)
		assert.Empty(t, outcome.CardSettlementDate)
		assert.Nil(t, response.Error)
	})

	t.Run("returns 404 for unknown job", func(t *testing.T) {
		h, _, _ := newReconcileHandler(t)

		rec := jobRequest(h, http.MethodGet, "nope")

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestReconcileHandler_Lists(t *testing.T) {
	h, svc, runner := newReconcileHandler(t)

	var started dto.StartReconciliationResponse
	require.NoError(t, json.NewDecoder(startJob(t, h, validBody).Body).Decode(&started))
	require.Eventually(t, func() bool {
		job, _ := svc.GetJob(started.JobID)
		return job.Progress.Percent == 10
	}, 2*time.Second, 5*time.Millisecond)

	list := func(active bool) dto.JobListResponse {
		rec := httptest.NewRecorder()
		if active {
			h.ListActive(rec, httptest.NewRequest(http.MethodGet, "/api/reconciliations/active", nil))
		} else {
			h.List(rec, httptest.NewRequest(http.MethodGet, "/api/reconciliations", nil))
		}
		require.Equal(t, http.StatusOK, rec.Code)
		var response dto.JobListResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
		return response
	}

	active := list(true)
	require.Equal(t, 1, active.Count)
	assert.Equal(t, "running", active.Jobs[0].Status)
	assert.Equal(t, "indexing", active.Jobs[0].Progress.State)
	assert.Equal(t, 5, active.Jobs[0].Progress.Total)

	close(runner.release)
	require.Eventually(t, func() bool { return list(true).Count == 0 }, 2*time.Second, 5*time.Millisecond)

	all := list(false)
	require.Equal(t, 1, all.Count)
	require.NotNil(t, all.Jobs[0].Result)
	assert.Empty(t, all.Jobs[0].Result.Outcomes, "lists leave outcomes out")
}

func TestReconcileHandler_Cancel(t *testing.T) {
	h, svc, _ := newReconcileHandler(t)

	var started dto.StartReconciliationResponse
	require.NoError(t, json.NewDecoder(startJob(t, h, validBody).Body).Decode(&started))

	rec := jobRequest(h, http.MethodDelete, started.JobID)
	require.Equal(t, http.StatusOK, rec.Code)

	job, err := svc.GetJob(started.JobID)
	require.NoError(t, err)
	assert.Equal(t, service.StatusCancelled, job.Status)

	t.Run("second cancel conflicts", func(t *testing.T) {
		rec := jobRequest(h, http.MethodDelete, started.JobID)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("unknown job is 404", func(t *testing.T) {
		rec := jobRequest(h, http.MethodDelete, "nope")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
