package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"

	"sync_server/core/domain"
	"sync_server/core/port/out"
)

// InsightAdapter implements out.InsightRepository on PostgreSQL. The
// (user_id, email_id) unique constraint makes every write an upsert, so
// concurrent batch workers cannot race into duplicate rows.
type InsightAdapter struct {
	db *sqlx.DB
}

func NewInsightAdapter(db *sqlx.DB) *InsightAdapter {
	return &InsightAdapter{db: db}
}

type insightRow struct {
	UserID     string    `db:"user_id"`
	EmailID    string    `db:"email_id"`
	Category   string    `db:"category"`
	Priority   int       `db:"priority"`
	NeedsReply bool      `db:"needs_reply"`
	Tags       []byte    `db:"tags"`
	Summary    string    `db:"summary"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func (r *insightRow) toDomain() *domain.Insight {
	insight := &domain.Insight{
		UserID:     r.UserID,
		EmailID:    r.EmailID,
		Category:   r.Category,
		Priority:   r.Priority,
		NeedsReply: r.NeedsReply,
		Summary:    r.Summary,
		UpdatedAt:  r.UpdatedAt,
	}
	if len(r.Tags) > 0 {
		// Tags written by this adapter are always a valid JSON array;
		// a decode failure means external tampering, surfaced as empty.
		_ = json.Unmarshal(r.Tags, &insight.Tags)
	}
	return insight
}

func (a *InsightAdapter) Upsert(ctx context.Context, insight *domain.Insight) error {
	const query = `
		INSERT INTO insights (user_id, email_id, category, priority, needs_reply, tags, summary, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, email_id) DO UPDATE SET
			category = EXCLUDED.category,
			priority = EXCLUDED.priority,
			needs_reply = EXCLUDED.needs_reply,
			tags = EXCLUDED.tags,
			summary = EXCLUDED.summary,
			updated_at = EXCLUDED.updated_at
	`

	tags, err := json.Marshal(insight.Tags)
	if err != nil {
		return err
	}

	updatedAt := insight.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	_, err = a.db.ExecContext(ctx, query,
		insight.UserID, insight.EmailID, insight.Category, insight.Priority,
		insight.NeedsReply, tags, insight.Summary, updatedAt)
	return err
}

func (a *InsightAdapter) GetByEmail(ctx context.Context, userID, emailID string) (*domain.Insight, error) {
	const query = `
		SELECT user_id, email_id, category, priority, needs_reply, tags, summary, updated_at
		FROM insights
		WHERE user_id = $1 AND email_id = $2
	`

	var row insightRow
	if err := a.db.GetContext(ctx, &row, query, userID, emailID); err != nil {
		if err == sql.ErrNoRows {
			return nil, out.ErrNotFound
		}
		return nil, err
	}
	return row.toDomain(), nil
}

func (a *InsightAdapter) ListByUser(ctx context.Context, userID string) ([]*domain.Insight, error) {
	const query = `
		SELECT user_id, email_id, category, priority, needs_reply, tags, summary, updated_at
		FROM insights
		WHERE user_id = $1
		ORDER BY updated_at DESC
	`

	var rows []insightRow
	if err := a.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, err
	}

	insights := make([]*domain.Insight, 0, len(rows))
	for i := range rows {
		insights = append(insights, rows[i].toDomain())
	}
	return insights, nil
}

func (a *InsightAdapter) DeleteByEmail(ctx context.Context, userID, emailID string) error {
	const query = `DELETE FROM insights WHERE user_id = $1 AND email_id = $2`

	_, err := a.db.ExecContext(ctx, query, userID, emailID)
	return err
}
