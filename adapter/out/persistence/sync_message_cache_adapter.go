package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"sync_server/core/domain"
	"sync_server/core/port/out"
)

// MessageCacheAdapter implements out.MessageCacheRepository on PostgreSQL.
// It backs the provider-less inbox and keeps copies of trashed messages.
type MessageCacheAdapter struct {
	db *sqlx.DB
}

func NewMessageCacheAdapter(db *sqlx.DB) *MessageCacheAdapter {
	return &MessageCacheAdapter{db: db}
}

type cachedMessageRow struct {
	UserID     string    `db:"user_id"`
	MessageID  string    `db:"message_id"`
	ThreadID   string    `db:"thread_id"`
	FromAddr   string    `db:"from_addr"`
	ToAddr     string    `db:"to_addr"`
	Subject    string    `db:"subject"`
	Snippet    string    `db:"snippet"`
	Body       string    `db:"body"`
	ReceivedAt time.Time `db:"received_at"`
	IsRead     bool      `db:"is_read"`
	Trashed    bool      `db:"trashed"`
}

func (r *cachedMessageRow) toDomain() domain.Message {
	return domain.Message{
		ID:         r.MessageID,
		ThreadID:   r.ThreadID,
		From:       r.FromAddr,
		To:         r.ToAddr,
		Subject:    r.Subject,
		Snippet:    r.Snippet,
		Body:       r.Body,
		ReceivedAt: r.ReceivedAt,
		IsRead:     r.IsRead,
	}
}

func (a *MessageCacheAdapter) Upsert(ctx context.Context, userID string, msg *domain.Message) error {
	const query = `
		INSERT INTO cached_messages (user_id, message_id, thread_id, from_addr, to_addr,
			subject, snippet, body, received_at, is_read, trashed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, false)
		ON CONFLICT (user_id, message_id) DO UPDATE SET
			thread_id = EXCLUDED.thread_id,
			from_addr = EXCLUDED.from_addr,
			to_addr = EXCLUDED.to_addr,
			subject = EXCLUDED.subject,
			snippet = EXCLUDED.snippet,
			body = EXCLUDED.body,
			received_at = EXCLUDED.received_at,
			is_read = EXCLUDED.is_read
	`

	_, err := a.db.ExecContext(ctx, query,
		userID, msg.ID, msg.ThreadID, msg.From, msg.To,
		msg.Subject, msg.Snippet, msg.Body, msg.ReceivedAt, msg.IsRead)
	return err
}

func (a *MessageCacheAdapter) GetByID(ctx context.Context, userID, id string) (*domain.Message, error) {
	const query = `
		SELECT user_id, message_id, thread_id, from_addr, to_addr,
		       subject, snippet, body, received_at, is_read, trashed
		FROM cached_messages
		WHERE user_id = $1 AND message_id = $2
	`

	var row cachedMessageRow
	if err := a.db.GetContext(ctx, &row, query, userID, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, out.ErrNotFound
		}
		return nil, err
	}
	msg := row.toDomain()
	return &msg, nil
}

func (a *MessageCacheAdapter) ListByUser(ctx context.Context, userID string, trashed bool) ([]domain.Message, error) {
	const query = `
		SELECT user_id, message_id, thread_id, from_addr, to_addr,
		       subject, snippet, body, received_at, is_read, trashed
		FROM cached_messages
		WHERE user_id = $1 AND trashed = $2
		ORDER BY received_at DESC
	`

	var rows []cachedMessageRow
	if err := a.db.SelectContext(ctx, &rows, query, userID, trashed); err != nil {
		return nil, err
	}

	msgs := make([]domain.Message, 0, len(rows))
	for i := range rows {
		msgs = append(msgs, rows[i].toDomain())
	}
	return msgs, nil
}

func (a *MessageCacheAdapter) SetReadState(ctx context.Context, userID, id string, read bool) error {
	const query = `
		UPDATE cached_messages SET is_read = $3
		WHERE user_id = $1 AND message_id = $2
	`

	result, err := a.db.ExecContext(ctx, query, userID, id, read)
	if err != nil {
		return err
	}
	return requireRow(result)
}

func (a *MessageCacheAdapter) SetTrashed(ctx context.Context, userID, id string, trashed bool) error {
	const query = `
		UPDATE cached_messages SET trashed = $3
		WHERE user_id = $1 AND message_id = $2
	`

	result, err := a.db.ExecContext(ctx, query, userID, id, trashed)
	if err != nil {
		return err
	}
	return requireRow(result)
}

func (a *MessageCacheAdapter) Delete(ctx context.Context, userID, id string) error {
	const query = `DELETE FROM cached_messages WHERE user_id = $1 AND message_id = $2`

	_, err := a.db.ExecContext(ctx, query, userID, id)
	return err
}

func (a *MessageCacheAdapter) CountByUser(ctx context.Context, userID string) (int, error) {
	const query = `SELECT COUNT(*) FROM cached_messages WHERE user_id = $1`

	var count int
	if err := a.db.GetContext(ctx, &count, query, userID); err != nil {
		return 0, err
	}
	return count, nil
}

var _ out.MessageCacheRepository = (*MessageCacheAdapter)(nil)
