package domain

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// JobType identifies what a job does. Adding a kind means extending the
// runner's dispatch switch, not a lookup table.
type JobType string

const (
	JobClassify       JobType = "classify"
	JobClassifyBatch  JobType = "classify-batch"
	JobDraft          JobType = "draft"
	JobAutoDraftBatch JobType = "auto-draft-batch"
)

// KnownJobType reports whether t is a dispatchable job type.
func KnownJobType(t JobType) bool {
	switch t {
	case JobClassify, JobClassifyBatch, JobDraft, JobAutoDraftBatch:
		return true
	}
	return false
}

// JobStatus is the observable lifecycle state of a job.
type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobDone       JobStatus = "done"
	JobFailed     JobStatus = "failed"
)

// Terminal reports whether the status is final.
func (s JobStatus) Terminal() bool {
	return s == JobDone || s == JobFailed
}

// Job is one unit of asynchronous work. Rows are created at enqueue time and
// mutated only by the runner's own state transitions; Result is set only on
// done, Error only on failed.
type Job struct {
	ID        string          `json:"id" db:"id"`
	Type      JobType         `json:"type" db:"type"`
	Status    JobStatus       `json:"status" db:"status"`
	Payload   json.RawMessage `json:"payload,omitempty" db:"payload"`
	Result    json.RawMessage `json:"result,omitempty" db:"result"`
	Error     string          `json:"error,omitempty" db:"error"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// NewJob creates a queued job with a fresh id.
func NewJob(jobType JobType, payload json.RawMessage) *Job {
	now := time.Now()
	return &Job{
		ID:        uuid.New().String(),
		Type:      jobType,
		Status:    JobQueued,
		Payload:   payload,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
