// Package persistence provides PostgreSQL adapters implementing outbound
// ports.
package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"sync_server/core/domain"
	"sync_server/core/port/out"
)

// JobAdapter implements out.JobRepository on PostgreSQL.
type JobAdapter struct {
	db *sqlx.DB
}

func NewJobAdapter(db *sqlx.DB) *JobAdapter {
	return &JobAdapter{db: db}
}

type jobRow struct {
	ID        string         `db:"id"`
	Type      string         `db:"type"`
	Status    string         `db:"status"`
	Payload   []byte         `db:"payload"`
	Result    []byte         `db:"result"`
	Error     sql.NullString `db:"error"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
}

func (r *jobRow) toDomain() *domain.Job {
	job := &domain.Job{
		ID:        r.ID,
		Type:      domain.JobType(r.Type),
		Status:    domain.JobStatus(r.Status),
		Payload:   r.Payload,
		Result:    r.Result,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.Error.Valid {
		job.Error = r.Error.String
	}
	return job
}

func (a *JobAdapter) Create(ctx context.Context, job *domain.Job) error {
	const query = `
		INSERT INTO jobs (id, type, status, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := a.db.ExecContext(ctx, query,
		job.ID, string(job.Type), string(job.Status), []byte(job.Payload),
		job.CreatedAt, job.UpdatedAt)
	return err
}

func (a *JobAdapter) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	const query = `
		SELECT id, type, status, payload, result, error, created_at, updated_at
		FROM jobs
		WHERE id = $1
	`

	var row jobRow
	if err := a.db.GetContext(ctx, &row, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, out.ErrNotFound
		}
		return nil, err
	}
	return row.toDomain(), nil
}

func (a *JobAdapter) SetStatus(ctx context.Context, id string, status domain.JobStatus) error {
	const query = `
		UPDATE jobs SET status = $2, updated_at = NOW()
		WHERE id = $1
	`

	result, err := a.db.ExecContext(ctx, query, id, string(status))
	if err != nil {
		return err
	}
	return requireRow(result)
}

func (a *JobAdapter) MarkDone(ctx context.Context, id string, result []byte) error {
	const query = `
		UPDATE jobs SET status = $2, result = $3, updated_at = NOW()
		WHERE id = $1
	`

	res, err := a.db.ExecContext(ctx, query, id, string(domain.JobDone), result)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (a *JobAdapter) MarkFailed(ctx context.Context, id string, errMsg string) error {
	const query = `
		UPDATE jobs SET status = $2, error = $3, updated_at = NOW()
		WHERE id = $1
	`

	res, err := a.db.ExecContext(ctx, query, id, string(domain.JobFailed), errMsg)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// requireRow converts a zero-row update into out.ErrNotFound.
func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return out.ErrNotFound
	}
	return nil
}
