package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eshaffer321/invoice-matcher/internal/application/reconcile"
)

var (
	// ErrJobNotFound is returned for unknown job IDs
	ErrJobNotFound = errors.New("job not found")

	// ErrInvalidRequest is returned when a request misses required fields
	ErrInvalidRequest = errors.New("invalid reconciliation request")

	// ErrCorpusBusy is returned when the corpus already has a running job
	ErrCorpusBusy = errors.New("reconciliation already running for corpus")

	// ErrNotCancellable is returned when cancelling a finished job
	ErrNotCancellable = errors.New("job cannot be cancelled")
)

// JobStatus represents the current state of a reconciliation job.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusCancelled JobStatus = "cancelled"
)

// Job staleness thresholds
const (
	// DefaultJobStaleThreshold is how long a job can go without progress updates
	// before being considered stale.
	DefaultJobStaleThreshold = 30 * time.Minute

	// DefaultJobMaxDuration is the maximum time a job can run before being
	// forcefully marked as failed.
	DefaultJobMaxDuration = 2 * time.Hour

	// DefaultJobRetention is how long finished jobs stay listed
	DefaultJobRetention = 24 * time.Hour
)

// ReconcileRequest holds parameters for starting a reconciliation.
type ReconcileRequest struct {
	StatementPath string
	CorpusRoot    string
	Folders       []string // first-level subfolders, empty = whole corpus
}

// JobProgress holds real-time progress information.
type JobProgress struct {
	State      reconcile.State
	Percent    float64
	Done       int
	Total      int
	LastUpdate time.Time
}

// Job is a snapshot of a running or finished reconciliation.
type Job struct {
	ID          string
	Status      JobStatus
	Request     ReconcileRequest
	StartedAt   time.Time
	CompletedAt *time.Time
	Progress    JobProgress
	Result      *reconcile.Result
	Error       error
}

type job struct {
	Job
	cancelFunc context.CancelFunc
}

// InputLoader resolves a request into run input (statement rows, document
// handles, ignored patterns).
type InputLoader func(req ReconcileRequest) (reconcile.Input, error)

// Runner executes one reconciliation
type Runner interface {
	Run(ctx context.Context, in reconcile.Input, opts reconcile.Options) (*reconcile.Result, error)
}

// ReconcileService manages background reconciliation jobs.
type ReconcileService struct {
	runner Runner
	loader InputLoader
	logger *slog.Logger

	// Job management
	jobs      map[string]*job
	jobsMutex sync.RWMutex

	// Corpus-level locking (only one job per corpus root at a time)
	corpusLocks map[string]string // root -> job ID
	locksMutex  sync.Mutex

	// Background cleanup
	cleanupStop chan struct{}
	cleanupDone chan struct{}

	wg sync.WaitGroup
}

// NewReconcileService creates a new reconciliation service.
func NewReconcileService(runner Runner, loader InputLoader, logger *slog.Logger) *ReconcileService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReconcileService{
		runner:      runner,
		loader:      loader,
		logger:      logger,
		jobs:        make(map[string]*job),
		corpusLocks: make(map[string]string),
	}
}

// StartReconciliation starts a new job asynchronously and returns its ID,
// which is also the run ID in storage.
// The passed context is NOT the parent of the job: background jobs use
// context.Background() so they outlive the HTTP request. Use
// CancelReconciliation to stop one.
func (s *ReconcileService) StartReconciliation(_ context.Context, req ReconcileRequest) (string, error) {
	if req.StatementPath == "" || req.CorpusRoot == "" {
		return "", fmt.Errorf("%w: statement and corpus are required", ErrInvalidRequest)
	}

	jobID := uuid.NewString()
	if !s.tryLockCorpus(req.CorpusRoot, jobID) {
		return "", fmt.Errorf("%w: %s", ErrCorpusBusy, req.CorpusRoot)
	}

	jobCtx, cancel := context.WithCancel(context.Background())
	now := time.Now()
	j := &job{
		Job: Job{
			ID:        jobID,
			Status:    StatusPending,
			Request:   req,
			StartedAt: now,
			Progress:  JobProgress{State: reconcile.StateIdle, LastUpdate: now},
		},
		cancelFunc: cancel,
	}

	s.jobsMutex.Lock()
	s.jobs[jobID] = j
	s.jobsMutex.Unlock()

	s.wg.Add(1)
	go s.runJob(jobCtx, j)

	s.logger.Info("reconciliation job started",
		"job_id", jobID,
		"statement", req.StatementPath,
		"corpus", req.CorpusRoot,
		"folders", len(req.Folders),
	)
	return jobID, nil
}

// GetJob returns a snapshot of a job.
func (s *ReconcileService) GetJob(jobID string) (Job, error) {
	s.jobsMutex.RLock()
	defer s.jobsMutex.RUnlock()

	j, exists := s.jobs[jobID]
	if !exists {
		return Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return j.Job, nil
}

// ListJobs returns snapshots of all jobs, newest first.
func (s *ReconcileService) ListJobs() []Job {
	s.jobsMutex.RLock()
	jobs := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j.Job)
	}
	s.jobsMutex.RUnlock()

	sort.Slice(jobs, func(i, k int) bool { return jobs[i].StartedAt.After(jobs[k].StartedAt) })
	return jobs
}

// ListActiveJobs returns pending or running jobs.
func (s *ReconcileService) ListActiveJobs() []Job {
	active := make([]Job, 0)
	for _, j := range s.ListJobs() {
		if j.Status == StatusPending || j.Status == StatusRunning {
			active = append(active, j)
		}
	}
	return active
}

// CancelReconciliation cancels a running job. Work finished before the
// cancellation stays attached to the job as a partial result.
func (s *ReconcileService) CancelReconciliation(jobID string) error {
	s.jobsMutex.Lock()
	defer s.jobsMutex.Unlock()

	j, exists := s.jobs[jobID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if j.Status != StatusPending && j.Status != StatusRunning {
		return fmt.Errorf("%w: status=%s", ErrNotCancellable, j.Status)
	}

	j.cancelFunc()
	now := time.Now()
	j.Status = StatusCancelled
	j.CompletedAt = &now
	j.Progress.State = reconcile.StateCancelled
	j.Progress.LastUpdate = now

	s.logger.Info("reconciliation job cancelled", "job_id", jobID)
	return nil
}

// Wait blocks until every started job goroutine has returned.
func (s *ReconcileService) Wait() {
	s.wg.Wait()
}

// runJob executes the job in a background goroutine.
func (s *ReconcileService) runJob(ctx context.Context, j *job) {
	defer s.wg.Done()
	defer s.unlockCorpus(j.Request.CorpusRoot, j.ID)

	s.updateJob(j.ID, func(j *job) {
		j.Status = StatusRunning
		j.Progress.LastUpdate = time.Now()
	})

	in, err := s.loader(j.Request)
	if err != nil {
		s.failJob(j.ID, fmt.Errorf("failed to load input: %w", err))
		return
	}

	result, err := s.runner.Run(ctx, in, reconcile.Options{
		RunID: j.ID,
		Progress: func(p reconcile.Progress) {
			s.updateJob(j.ID, func(j *job) {
				j.Progress.State = p.State
				j.Progress.Percent = p.Percent
				j.Progress.Done = p.Done
				j.Progress.Total = p.Total
				j.Progress.LastUpdate = time.Now()
			})
		},
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			// Already marked as cancelled in CancelReconciliation
			s.attachResult(j.ID, result)
			return
		}
		s.failJob(j.ID, err)
		return
	}

	s.completeJob(j.ID, result)
}

// updateJob applies fn to a job that is still pending or running.
func (s *ReconcileService) updateJob(jobID string, fn func(*job)) {
	s.jobsMutex.Lock()
	defer s.jobsMutex.Unlock()

	if j, exists := s.jobs[jobID]; exists && (j.Status == StatusPending || j.Status == StatusRunning) {
		fn(j)
	}
}

// attachResult keeps the partial result of a cancelled job.
func (s *ReconcileService) attachResult(jobID string, result *reconcile.Result) {
	s.jobsMutex.Lock()
	defer s.jobsMutex.Unlock()

	if j, exists := s.jobs[jobID]; exists {
		j.Result = result
	}
}

// completeJob marks a job as completed with results.
func (s *ReconcileService) completeJob(jobID string, result *reconcile.Result) {
	s.jobsMutex.Lock()
	defer s.jobsMutex.Unlock()

	j, exists := s.jobs[jobID]
	if !exists {
		return
	}
	if j.Status != StatusRunning {
		// a cancelled or stale job keeps its status
		j.Result = result
		return
	}

	now := time.Now()
	j.Status = StatusCompleted
	j.CompletedAt = &now
	j.Result = result
	j.Progress.State = result.State
	j.Progress.Percent = 100
	j.Progress.LastUpdate = now
	s.logger.Info("reconciliation job completed",
		"job_id", jobID,
		"matched", result.Counts.Matched,
		"unmatched", result.Counts.Unmatched,
		"ignored", result.Counts.Ignored,
		"unparsable", result.Counts.Unparsable,
	)
}

// failJob marks a job as failed with an error.
func (s *ReconcileService) failJob(jobID string, err error) {
	s.jobsMutex.Lock()
	defer s.jobsMutex.Unlock()

	if j, exists := s.jobs[jobID]; exists && j.Status != StatusCancelled {
		now := time.Now()
		j.Status = StatusFailed
		j.CompletedAt = &now
		j.Error = err
		j.Progress.State = reconcile.StateFailed
		j.Progress.LastUpdate = now
		s.logger.Error("reconciliation job failed", "job_id", jobID, "error", err)
	}
}

// tryLockCorpus claims a corpus root for jobID.
func (s *ReconcileService) tryLockCorpus(root, jobID string) bool {
	s.locksMutex.Lock()
	defer s.locksMutex.Unlock()

	if _, held := s.corpusLocks[root]; held {
		return false
	}
	s.corpusLocks[root] = jobID
	return true
}

// unlockCorpus releases root if jobID still holds it.
func (s *ReconcileService) unlockCorpus(root, jobID string) {
	s.locksMutex.Lock()
	defer s.locksMutex.Unlock()

	if s.corpusLocks[root] == jobID {
		delete(s.corpusLocks, root)
	}
}

// CleanupOldJobs removes finished jobs older than maxAge.
func (s *ReconcileService) CleanupOldJobs(maxAge time.Duration) int {
	s.jobsMutex.Lock()
	defer s.jobsMutex.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for id, j := range s.jobs {
		if j.Status == StatusCompleted || j.Status == StatusFailed || j.Status == StatusCancelled {
			if j.CompletedAt != nil && j.CompletedAt.Before(cutoff) {
				delete(s.jobs, id)
				removed++
			}
		}
	}

	if removed > 0 {
		s.logger.Debug("cleaned up old reconciliation jobs", "removed", removed)
	}
	return removed
}

// MarkStaleJobsAsFailed finds jobs that appear to be stuck and marks them as failed.
// A job is considered stale if it has been running longer than maxDuration or
// its progress has not moved for staleThreshold.
func (s *ReconcileService) MarkStaleJobsAsFailed(staleThreshold, maxDuration time.Duration) int {
	s.jobsMutex.Lock()
	defer s.jobsMutex.Unlock()

	now := time.Now()
	marked := 0
	for id, j := range s.jobs {
		if j.Status != StatusRunning && j.Status != StatusPending {
			continue
		}

		reason := ""
		switch {
		case now.Sub(j.StartedAt) > maxDuration:
			reason = fmt.Sprintf("exceeded max duration of %v (started %v ago)", maxDuration, now.Sub(j.StartedAt).Round(time.Second))
		case now.Sub(j.Progress.LastUpdate) > staleThreshold:
			reason = fmt.Sprintf("no progress update for %v (threshold: %v)", now.Sub(j.Progress.LastUpdate).Round(time.Second), staleThreshold)
		default:
			continue
		}

		j.cancelFunc()
		j.Status = StatusFailed
		j.CompletedAt = &now
		j.Error = fmt.Errorf("job marked as stale: %s", reason)
		j.Progress.State = reconcile.StateFailed
		j.Progress.LastUpdate = now

		s.logger.Warn("marked stale job as failed",
			"job_id", id,
			"corpus", j.Request.CorpusRoot,
			"reason", reason,
		)
		marked++
	}
	return marked
}

// IsJobStale checks if a specific job is considered stale.
func (s *ReconcileService) IsJobStale(jobID string, staleThreshold, maxDuration time.Duration) bool {
	s.jobsMutex.RLock()
	defer s.jobsMutex.RUnlock()

	j, exists := s.jobs[jobID]
	if !exists || (j.Status != StatusRunning && j.Status != StatusPending) {
		return false
	}
	now := time.Now()
	return now.Sub(j.StartedAt) > maxDuration || now.Sub(j.Progress.LastUpdate) > staleThreshold
}

// StartBackgroundCleanup periodically fails stale jobs and drops old ones.
// Call StopBackgroundCleanup to stop it.
func (s *ReconcileService) StartBackgroundCleanup(checkInterval time.Duration) {
	s.cleanupStop = make(chan struct{})
	s.cleanupDone = make(chan struct{})

	go func() {
		defer close(s.cleanupDone)

		ticker := time.NewTicker(checkInterval)
		defer ticker.Stop()

		s.logger.Info("background job cleanup started",
			"check_interval", checkInterval,
			"stale_threshold", DefaultJobStaleThreshold,
			"max_duration", DefaultJobMaxDuration,
		)

		for {
			select {
			case <-s.cleanupStop:
				s.logger.Info("background job cleanup stopped")
				return
			case <-ticker.C:
				if n := s.MarkStaleJobsAsFailed(DefaultJobStaleThreshold, DefaultJobMaxDuration); n > 0 {
					s.logger.Info("marked stale jobs as failed", "count", n)
				}
				s.CleanupOldJobs(DefaultJobRetention)
			}
		}
	}()
}

// StopBackgroundCleanup stops the cleanup goroutine and waits for it.
func (s *ReconcileService) StopBackgroundCleanup() {
	if s.cleanupStop == nil {
		return
	}
	close(s.cleanupStop)
	<-s.cleanupDone
}
