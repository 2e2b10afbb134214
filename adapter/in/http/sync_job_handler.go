package http

import (
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"

	"sync_server/adapter/in/worker"
	"sync_server/core/domain"
	"sync_server/pkg/response"
)

// JobHandler exposes the job ledger: submit and poll.
type JobHandler struct {
	runner *worker.Runner
}

func NewJobHandler(runner *worker.Runner) *JobHandler {
	return &JobHandler{runner: runner}
}

func (h *JobHandler) Register(app fiber.Router) {
	jobs := app.Group("/jobs")
	jobs.Post("/", h.Enqueue)
	jobs.Get("/:id", h.Get)
}

type enqueueRequest struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type enqueueResponse struct {
	JobID string `json:"job_id"`
}

// Enqueue accepts a job and returns its id immediately; results arrive via
// polling, never in this response.
func (h *JobHandler) Enqueue(c *fiber.Ctx) error {
	var req enqueueRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "invalid request body")
	}

	jobType := domain.JobType(req.Type)
	if !domain.KnownJobType(jobType) {
		return response.BadRequest(c, "unknown job type: "+req.Type)
	}

	jobID, err := h.runner.Enqueue(c.Context(), jobType, req.Payload)
	if err != nil {
		return serviceError(c, err, "job submission")
	}

	return response.Created(c, enqueueResponse{JobID: jobID})
}

type jobView struct {
	ID     string          `json:"id"`
	Type   string          `json:"type"`
	Status string          `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

func (h *JobHandler) Get(c *fiber.Ctx) error {
	job, err := h.runner.GetJob(c.Context(), c.Params("id"))
	if err != nil {
		return serviceError(c, err, "job lookup")
	}

	return response.OK(c, jobView{
		ID:     job.ID,
		Type:   string(job.Type),
		Status: string(job.Status),
		Result: json.RawMessage(job.Result),
		Error:  job.Error,
	})
}
