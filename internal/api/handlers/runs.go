package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/eshaffer321/invoice-matcher/internal/api/dto"
	"github.com/eshaffer321/invoice-matcher/internal/infrastructure/storage"
)

const maxListLimit = 500

// RunsHandler serves the stored audit trail of reconciliation runs.
type RunsHandler struct {
	*Base
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(repo storage.Repository, logger *slog.Logger) *RunsHandler {
	return &RunsHandler{
		Base: NewBase(repo, logger),
	}
}

// List handles GET /api/runs - returns the most recent runs first.
func (h *RunsHandler) List(w http.ResponseWriter, r *http.Request) {
	params := dto.DefaultRunListParams()
	params.Limit = clampLimit(ParseIntParam(r, "limit", params.Limit), params.Limit)

	runs, err := h.repo.ListRuns(params.Limit)
	if err != nil {
		h.WriteInternalError(w, r, err)
		return
	}

	response := dto.RunListResponse{
		Runs:  make([]dto.RunResponse, 0, len(runs)),
		Count: len(runs),
	}
	for _, run := range runs {
		response.Runs = append(response.Runs, toRunResponse(run))
	}

	h.WriteJSON(w, http.StatusOK, response)
}

// Get handles GET /api/runs/{id}
func (h *RunsHandler) Get(w http.ResponseWriter, r *http.Request) {
	run, ok := h.loadRun(w, r)
	if !ok {
		return
	}
	h.WriteJSON(w, http.StatusOK, toRunResponse(*run))
}

// Outcomes handles GET /api/runs/{id}/outcomes?status=&limit=&offset=
func (h *RunsHandler) Outcomes(w http.ResponseWriter, r *http.Request) {
	params := dto.DefaultOutcomeListParams()
	params.Status = r.URL.Query().Get("status")
	if !dto.ValidOutcomeStatus(params.Status) {
		h.WriteError(w, http.StatusBadRequest, dto.ValidationError("unknown status: "+params.Status))
		return
	}
	params.Limit = clampLimit(ParseIntParam(r, "limit", params.Limit), params.Limit)
	params.Offset = max(ParseIntParam(r, "offset", 0), 0)

	run, ok := h.loadRun(w, r)
	if !ok {
		return
	}

	result, err := h.repo.ListOutcomes(run.ID, storage.OutcomeFilters{
		Status: params.Status,
		Limit:  params.Limit,
		Offset: params.Offset,
	})
	if err != nil {
		h.WriteInternalError(w, r, err)
		return
	}

	response := dto.OutcomeListResponse{
		Outcomes:   make([]dto.OutcomeResponse, 0, len(result.Outcomes)),
		TotalCount: result.TotalCount,
		Limit:      result.Limit,
		Offset:     result.Offset,
	}
	for _, o := range result.Outcomes {
		response.Outcomes = append(response.Outcomes, toStoredOutcomeResponse(o))
	}

	h.WriteJSON(w, http.StatusOK, response)
}

// Issues handles GET /api/runs/{id}/issues - documents the run dropped.
func (h *RunsHandler) Issues(w http.ResponseWriter, r *http.Request) {
	run, ok := h.loadRun(w, r)
	if !ok {
		return
	}

	issues, err := h.repo.ListDocumentIssues(run.ID)
	if err != nil {
		h.WriteInternalError(w, r, err)
		return
	}

	response := dto.DocumentIssueListResponse{
		Issues: make([]dto.DocumentIssueResponse, 0, len(issues)),
		Count:  len(issues),
	}
	for _, issue := range issues {
		response.Issues = append(response.Issues, dto.DocumentIssueResponse{
			Path:  issue.Path,
			Kind:  issue.Kind,
			Error: issue.Error,
		})
	}

	h.WriteJSON(w, http.StatusOK, response)
}

// loadRun writes the error response itself when it returns false.
func (h *RunsHandler) loadRun(w http.ResponseWriter, r *http.Request) (*storage.Run, bool) {
	id := chi.URLParam(r, "id")
	if id == "" {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("run ID is required"))
		return nil, false
	}

	run, err := h.repo.GetRun(id)
	if errors.Is(err, storage.ErrNotFound) {
		h.WriteError(w, http.StatusNotFound, dto.NotFoundError("run"))
		return nil, false
	}
	if err != nil {
		h.WriteInternalError(w, r, err)
		return nil, false
	}
	return run, true
}

func clampLimit(limit, defaultVal int) int {
	if limit <= 0 {
		return defaultVal
	}
	return min(limit, maxListLimit)
}

func toRunResponse(run storage.Run) dto.RunResponse {
	return dto.RunResponse{
		ID:                  run.ID,
		State:               run.State,
		StartedAt:           run.StartedAt.UTC().Format(time.RFC3339),
		CompletedAt:         dto.FormatTime(run.CompletedAt),
		StatementName:       run.StatementName,
		CorpusRoot:          run.CorpusRoot,
		DocumentsTotal:      run.DocumentsTotal,
		DocumentsIndexed:    run.DocumentsIndexed,
		DocumentsFailed:     run.DocumentsFailed,
		DocumentsUndateable: run.DocumentsUndateable,
		TransactionsTotal:   run.TransactionsTotal,
		Matched:             run.Matched,
		Unmatched:           run.Unmatched,
		Ignored:             run.Ignored,
		Unparsable:          run.Unparsable,
		ErrorMessage:        run.ErrorMessage,
	}
}

func toStoredOutcomeResponse(o storage.Outcome) dto.OutcomeResponse {
	return dto.OutcomeResponse{
		Reference:          o.Reference,
		Label:              o.Label,
		StatementDate:      o.StatementDate,
		Amount:             o.Amount,
		Status:             o.Status,
		Strategy:           o.Strategy,
		DocumentPath:       o.DocumentPath,
		DocumentDate:       o.DocumentDate,
		IsCardSettlement:   o.IsCardSettlement,
		CardSettlementDate: o.CardSettlementDate,
		VendorToken:        o.VendorToken,
		IsIgnored:          o.IsIgnored,
		Reason:             o.Reason,
	}
}
