package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"sync_server/core/domain"
	"sync_server/core/port/out"
)

type memJobRepo struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job
	// statuses records every transition per job, in order.
	statuses map[string][]domain.JobStatus
}

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{
		jobs:     map[string]*domain.Job{},
		statuses: map[string][]domain.JobStatus{},
	}
}

func (r *memJobRepo) Create(_ context.Context, job *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *job
	r.jobs[job.ID] = &copied
	r.statuses[job.ID] = append(r.statuses[job.ID], job.Status)
	return nil
}

func (r *memJobRepo) GetByID(_ context.Context, id string) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, out.ErrNotFound
	}
	copied := *job
	return &copied, nil
}

func (r *memJobRepo) SetStatus(_ context.Context, id string, status domain.JobStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[id].Status = status
	r.statuses[id] = append(r.statuses[id], status)
	return nil
}

func (r *memJobRepo) MarkDone(_ context.Context, id string, result []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[id].Status = domain.JobDone
	r.jobs[id].Result = result
	r.statuses[id] = append(r.statuses[id], domain.JobDone)
	return nil
}

func (r *memJobRepo) MarkFailed(_ context.Context, id string, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[id].Status = domain.JobFailed
	r.jobs[id].Error = errMsg
	r.statuses[id] = append(r.statuses[id], domain.JobFailed)
	return nil
}

func (r *memJobRepo) transitions(id string) []domain.JobStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.JobStatus(nil), r.statuses[id]...)
}

// stubProcessor returns canned behavior per job type.
type stubProcessor struct {
	classify func(context.Context, json.RawMessage) (json.RawMessage, error)
}

func (s *stubProcessor) HandleClassify(ctx context.Context, p json.RawMessage) (json.RawMessage, error) {
	return s.classify(ctx, p)
}

func (s *stubProcessor) HandleClassifyBatch(context.Context, json.RawMessage) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

func (s *stubProcessor) HandleDraft(context.Context, json.RawMessage) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

func (s *stubProcessor) HandleAutoDraftBatch(context.Context, json.RawMessage) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

func TestEnqueue_UnknownType(t *testing.T) {
	r := NewRunner(newMemJobRepo(), &stubProcessor{}, 0)

	_, err := r.Enqueue(context.Background(), "reindex", nil)
	if err == nil {
		t.Fatal("expected error for unknown job type")
	}
}

func TestRunner_SuccessLifecycle(t *testing.T) {
	repo := newMemJobRepo()
	proc := &stubProcessor{classify: func(context.Context, json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`{"category":"Work"}`), nil
	}}
	r := NewRunner(repo, proc, 5*time.Second)

	id, err := r.Enqueue(context.Background(), domain.JobClassify, json.RawMessage(`{"userId":"u1","emailId":"e1"}`))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	r.Wait()

	job, err := r.GetJob(context.Background(), id)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Status != domain.JobDone {
		t.Fatalf("expected done, got %s (error %q)", job.Status, job.Error)
	}
	if string(job.Result) != `{"category":"Work"}` {
		t.Fatalf("unexpected result %s", job.Result)
	}

	want := []domain.JobStatus{domain.JobQueued, domain.JobProcessing, domain.JobDone}
	got := repo.transitions(id)
	if len(got) != len(want) {
		t.Fatalf("expected transitions %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected transitions %v, got %v", want, got)
		}
	}
}

func TestRunner_FailureRecordsError(t *testing.T) {
	repo := newMemJobRepo()
	proc := &stubProcessor{classify: func(context.Context, json.RawMessage) (json.RawMessage, error) {
		return nil, errors.New("model unavailable")
	}}
	r := NewRunner(repo, proc, 0)

	id, _ := r.Enqueue(context.Background(), domain.JobClassify, json.RawMessage(`{}`))
	r.Wait()

	job, _ := r.GetJob(context.Background(), id)
	if job.Status != domain.JobFailed {
		t.Fatalf("expected failed, got %s", job.Status)
	}
	if job.Error == "" {
		t.Fatal("expected a human-readable error message")
	}
}

func TestRunner_PanicBecomesFailed(t *testing.T) {
	repo := newMemJobRepo()
	proc := &stubProcessor{classify: func(context.Context, json.RawMessage) (json.RawMessage, error) {
		panic("nil map write")
	}}
	r := NewRunner(repo, proc, 0)

	id, _ := r.Enqueue(context.Background(), domain.JobClassify, json.RawMessage(`{}`))
	r.Wait()

	job, _ := r.GetJob(context.Background(), id)
	if job.Status != domain.JobFailed {
		t.Fatalf("expected failed after panic, got %s", job.Status)
	}
}
