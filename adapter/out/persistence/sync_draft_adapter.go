package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"sync_server/core/domain"
	"sync_server/core/port/out"
)

// DraftAdapter implements out.DraftRepository on PostgreSQL. Version numbers
// come from a per-email high-water mark kept in draft_versions, so a version
// is never reused even after every draft for the email has been deleted.
type DraftAdapter struct {
	db *sqlx.DB
}

func NewDraftAdapter(db *sqlx.DB) *DraftAdapter {
	return &DraftAdapter{db: db}
}

type draftRow struct {
	ID          int64          `db:"id"`
	UserID      string         `db:"user_id"`
	EmailID     string         `db:"email_id"`
	Version     int            `db:"version"`
	Tone        string         `db:"tone"`
	Length      string         `db:"length"`
	Instruction sql.NullString `db:"instruction"`
	Content     string         `db:"content"`
	Status      string         `db:"status"`
	CreatedAt   time.Time      `db:"created_at"`
}

func (r *draftRow) toDomain() *domain.Draft {
	draft := &domain.Draft{
		ID:        r.ID,
		UserID:    r.UserID,
		EmailID:   r.EmailID,
		Version:   r.Version,
		Tone:      r.Tone,
		Length:    r.Length,
		Content:   r.Content,
		Status:    r.Status,
		CreatedAt: r.CreatedAt,
	}
	if r.Instruction.Valid {
		draft.Instruction = &r.Instruction.String
	}
	return draft
}

// Create inserts the draft at the next version for its email and writes the
// assigned version and id back into draft. The high-water row is bumped and
// read in one atomic upsert, so concurrent creates on the same email get
// distinct versions.
func (a *DraftAdapter) Create(ctx context.Context, draft *domain.Draft) error {
	const bumpQuery = `
		INSERT INTO draft_versions (email_id, last_version)
		VALUES ($1, 1)
		ON CONFLICT (email_id) DO UPDATE SET last_version = draft_versions.last_version + 1
		RETURNING last_version
	`
	const insertQuery = `
		INSERT INTO drafts (user_id, email_id, version, tone, length, instruction, content, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var version int
	if err := tx.GetContext(ctx, &version, bumpQuery, draft.EmailID); err != nil {
		return err
	}

	if draft.CreatedAt.IsZero() {
		draft.CreatedAt = time.Now()
	}

	var instruction sql.NullString
	if draft.Instruction != nil {
		instruction = sql.NullString{String: *draft.Instruction, Valid: true}
	}

	var id int64
	err = tx.GetContext(ctx, &id, insertQuery,
		draft.UserID, draft.EmailID, version, draft.Tone, draft.Length,
		instruction, draft.Content, draft.Status, draft.CreatedAt)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	draft.ID = id
	draft.Version = version
	return nil
}

func (a *DraftAdapter) ListByEmail(ctx context.Context, userID, emailID string) ([]*domain.Draft, error) {
	const query = `
		SELECT id, user_id, email_id, version, tone, length, instruction, content, status, created_at
		FROM drafts
		WHERE user_id = $1 AND email_id = $2
		ORDER BY version DESC
	`

	var rows []draftRow
	if err := a.db.SelectContext(ctx, &rows, query, userID, emailID); err != nil {
		return nil, err
	}

	drafts := make([]*domain.Draft, 0, len(rows))
	for i := range rows {
		drafts = append(drafts, rows[i].toDomain())
	}
	return drafts, nil
}

func (a *DraftAdapter) HasDraft(ctx context.Context, userID, emailID string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM drafts WHERE user_id = $1 AND email_id = $2)`

	var exists bool
	if err := a.db.GetContext(ctx, &exists, query, userID, emailID); err != nil {
		return false, err
	}
	return exists, nil
}

// DeleteByEmail removes every draft version for the email. The version
// high-water row is left in place on purpose.
func (a *DraftAdapter) DeleteByEmail(ctx context.Context, userID, emailID string) error {
	const query = `DELETE FROM drafts WHERE user_id = $1 AND email_id = $2`

	_, err := a.db.ExecContext(ctx, query, userID, emailID)
	return err
}

var _ out.DraftRepository = (*DraftAdapter)(nil)
