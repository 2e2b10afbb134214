package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"sync_server/core/domain"
	"sync_server/core/port/out"
	"sync_server/pkg/logger"
)

// processor handles the AI job kinds. Split as an interface so runner tests
// run against a stub.
type processor interface {
	HandleClassify(ctx context.Context, payload json.RawMessage) (json.RawMessage, error)
	HandleClassifyBatch(ctx context.Context, payload json.RawMessage) (json.RawMessage, error)
	HandleDraft(ctx context.Context, payload json.RawMessage) (json.RawMessage, error)
	HandleAutoDraftBatch(ctx context.Context, payload json.RawMessage) (json.RawMessage, error)
}

// Runner owns the job lifecycle: it records the queued row, runs the job on
// its own goroutine, and persists exactly one terminal state. Jobs run in the
// submitting process; durability of in-flight work is out of scope.
type Runner struct {
	jobs      out.JobRepository
	processor processor
	wg        sync.WaitGroup
	timeout   time.Duration
}

// NewRunner creates a runner. timeout bounds a single job's execution; zero
// means no bound.
func NewRunner(jobs out.JobRepository, p processor, timeout time.Duration) *Runner {
	return &Runner{
		jobs:      jobs,
		processor: p,
		timeout:   timeout,
	}
}

// Enqueue validates the job type, persists the queued row, and starts the job
// in the background. The returned id is pollable immediately.
func (r *Runner) Enqueue(ctx context.Context, jobType domain.JobType, payload json.RawMessage) (string, error) {
	if !domain.KnownJobType(jobType) {
		return "", fmt.Errorf("unknown job type %q", jobType)
	}

	job := domain.NewJob(jobType, payload)
	if err := r.jobs.Create(ctx, job); err != nil {
		return "", fmt.Errorf("failed to record job: %w", err)
	}

	r.wg.Add(1)
	go r.run(job)

	logger.WithField("job_id", job.ID).Info("[runner] job enqueued: %s", jobType)
	return job.ID, nil
}

// GetJob returns a job row for polling.
func (r *Runner) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	return r.jobs.GetByID(ctx, id)
}

// Wait blocks until every in-flight job has reached a terminal state.
// Used during shutdown and in tests.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// run executes one job to a terminal state. The job does not inherit the
// enqueueing request's context; it outlives the request that submitted it.
func (r *Runner) run(job *domain.Job) {
	defer r.wg.Done()

	ctx := context.Background()
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	log := logger.WithField("job_id", job.ID)

	defer func() {
		if rec := recover(); rec != nil {
			log.Error("[runner] job panicked: %v", rec)
			r.markFailed(ctx, job.ID, fmt.Sprintf("internal error: %v", rec))
		}
	}()

	if err := r.jobs.SetStatus(ctx, job.ID, domain.JobProcessing); err != nil {
		log.Error("[runner] failed to mark job processing: %v", err)
		r.markFailed(ctx, job.ID, "failed to start processing")
		return
	}

	result, err := r.dispatch(ctx, job)
	if err != nil {
		log.Warn("[runner] job failed: %v", err)
		r.markFailed(ctx, job.ID, err.Error())
		return
	}

	if err := r.jobs.MarkDone(ctx, job.ID, result); err != nil {
		log.Error("[runner] failed to record job result: %v", err)
	}
}

func (r *Runner) dispatch(ctx context.Context, job *domain.Job) (json.RawMessage, error) {
	switch job.Type {
	case domain.JobClassify:
		return r.processor.HandleClassify(ctx, job.Payload)
	case domain.JobClassifyBatch:
		return r.processor.HandleClassifyBatch(ctx, job.Payload)
	case domain.JobDraft:
		return r.processor.HandleDraft(ctx, job.Payload)
	case domain.JobAutoDraftBatch:
		return r.processor.HandleAutoDraftBatch(ctx, job.Payload)
	default:
		// Enqueue validates types, so this only fires on rows written by
		// a newer deployment.
		return nil, fmt.Errorf("no handler for job type %q", job.Type)
	}
}

func (r *Runner) markFailed(ctx context.Context, jobID, msg string) {
	if err := r.jobs.MarkFailed(ctx, jobID, msg); err != nil {
		logger.WithField("job_id", jobID).Error("[runner] failed to record job failure: %v", err)
	}
}
