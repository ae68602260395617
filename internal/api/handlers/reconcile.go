package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/eshaffer321/invoice-matcher/internal/api/dto"
	"github.com/eshaffer321/invoice-matcher/internal/application/reconcile"
	"github.com/eshaffer321/invoice-matcher/internal/application/service"
)

// ReconcileHandler drives background reconciliation jobs.
type ReconcileHandler struct {
	*Base
	reconcileService *service.ReconcileService
}

// NewReconcileHandler creates a new reconcile handler.
func NewReconcileHandler(reconcileService *service.ReconcileService, logger *slog.Logger) *ReconcileHandler {
	return &ReconcileHandler{
		Base:             NewBase(nil, logger),
		reconcileService: reconcileService,
	}
}

// Start handles POST /api/reconciliations - starts a new job.
func (h *ReconcileHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req dto.StartReconciliationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid request body"))
		return
	}
	if msg := req.Validate(); msg != "" {
		h.WriteError(w, http.StatusBadRequest, dto.ValidationError(msg))
		return
	}

	jobID, err := h.reconcileService.StartReconciliation(r.Context(), service.ReconcileRequest{
		StatementPath: req.StatementPath,
		CorpusRoot:    req.CorpusRoot,
		Folders:       req.Folders,
	})
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		h.WriteError(w, http.StatusBadRequest, dto.ValidationError(err.Error()))
		return
	case errors.Is(err, service.ErrCorpusBusy):
		h.WriteError(w, http.StatusConflict, dto.ConflictError(err.Error()))
		return
	case err != nil:
		h.WriteInternalError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusAccepted, dto.StartReconciliationResponse{
		JobID:  jobID,
		Status: string(service.StatusPending),
	})
}

// Get handles GET /api/reconciliations/{jobId}
func (h *ReconcileHandler) Get(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	if jobID == "" {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("job ID is required"))
		return
	}

	job, err := h.reconcileService.GetJob(jobID)
	if err != nil {
		h.WriteError(w, http.StatusNotFound, dto.NotFoundError("reconciliation job"))
		return
	}

	h.WriteJSON(w, http.StatusOK, toJobResponse(job, true))
}

// ListActive handles GET /api/reconciliations/active
func (h *ReconcileHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	h.writeJobs(w, h.reconcileService.ListActiveJobs())
}

// List handles GET /api/reconciliations - all retained jobs, newest first.
func (h *ReconcileHandler) List(w http.ResponseWriter, r *http.Request) {
	h.writeJobs(w, h.reconcileService.ListJobs())
}

// Cancel handles DELETE /api/reconciliations/{jobId}
func (h *ReconcileHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	if jobID == "" {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("job ID is required"))
		return
	}

	err := h.reconcileService.CancelReconciliation(jobID)
	switch {
	case errors.Is(err, service.ErrJobNotFound):
		h.WriteError(w, http.StatusNotFound, dto.NotFoundError("reconciliation job"))
		return
	case errors.Is(err, service.ErrNotCancellable):
		h.WriteError(w, http.StatusConflict, dto.ConflictError(err.Error()))
		return
	case err != nil:
		h.WriteInternalError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, dto.MessageResponse{
		Message: "Reconciliation job cancelled",
	})
}

// Lists leave outcomes out; fetch the job or the stored run for them.
func (h *ReconcileHandler) writeJobs(w http.ResponseWriter, jobs []service.Job) {
	response := dto.JobListResponse{
		Jobs:  make([]dto.JobResponse, 0, len(jobs)),
		Count: len(jobs),
	}
	for _, job := range jobs {
		response.Jobs = append(response.Jobs, toJobResponse(job, false))
	}
	h.WriteJSON(w, http.StatusOK, response)
}

func toJobResponse(job service.Job, withOutcomes bool) dto.JobResponse {
	response := dto.JobResponse{
		JobID:         job.ID,
		Status:        string(job.Status),
		StatementPath: job.Request.StatementPath,
		CorpusRoot:    job.Request.CorpusRoot,
		Folders:       job.Request.Folders,
		StartedAt:     job.StartedAt.UTC().Format(time.RFC3339),
		CompletedAt:   dto.FormatTime(job.CompletedAt),
		Progress:      toProgressResponse(job.Progress),
	}

	if job.Result != nil {
		response.Result = toResultResponse(job.Result, withOutcomes)
	}

	if job.Error != nil {
		errMsg := job.Error.Error()
		response.Error = &errMsg
	}

	return response
}

func toProgressResponse(progress service.JobProgress) dto.ProgressResponse {
	response := dto.ProgressResponse{
		State:   string(progress.State),
		Percent: progress.Percent,
		Done:    progress.Done,
		Total:   progress.Total,
	}
	if !progress.LastUpdate.IsZero() {
		response.LastUpdate = progress.LastUpdate.UTC().Format(time.RFC3339)
	}
	return response
}

func toResultResponse(result *reconcile.Result, withOutcomes bool) *dto.ResultResponse {
	c := result.Counts
	response := &dto.ResultResponse{
		RunID:            result.RunID,
		State:            string(result.State),
		DurationSeconds:  result.Duration().Seconds(),
		Documents:        c.Documents,
		DocumentsIndexed: c.Indexed,
		DocumentsFailed:  c.Failed,
		Undateable:       c.Undateable,
		Transactions:     c.Transactions,
		Matched:          c.Matched,
		Unmatched:        c.Unmatched,
		Ignored:          c.Ignored,
		Unparsable:       c.Unparsable,
		Outcomes:         []dto.OutcomeResponse{},
	}

	if len(c.ByStrategy) > 0 {
		response.MatchesByStrategy = make(map[string]int, len(c.ByStrategy))
		for strategy, n := range c.ByStrategy {
			response.MatchesByStrategy[string(strategy)] = n
		}
	}

	if withOutcomes {
		response.Outcomes = make([]dto.OutcomeResponse, 0, len(result.Outcomes))
		for _, o := range result.Outcomes {
			response.Outcomes = append(response.Outcomes, toOutcomeResponse(o))
		}
	}
	return response
}

func toOutcomeResponse(o reconcile.Outcome) dto.OutcomeResponse {
	return dto.OutcomeResponse{
		Reference:          o.Reference,
		Label:              o.Label,
		StatementDate:      formatDay(o.StatementDate),
		Amount:             o.Amount,
		Status:             string(o.Status),
		Strategy:           string(o.Strategy),
		DocumentPath:       o.DocumentPath,
		DocumentDate:       formatDay(o.DocumentDate),
		IsCardSettlement:   o.IsCardSettlement,
		CardSettlementDate: formatDay(o.CardSettlementDate),
		VendorToken:        o.VendorToken,
		IsIgnored:          o.IsIgnored,
		Reason:             o.Reason,
	}
}

func formatDay(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}
