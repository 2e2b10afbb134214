package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"sync_server/core/domain"
	"sync_server/core/port/out"
)

// SettingsAdapter implements out.SettingsRepository on PostgreSQL.
type SettingsAdapter struct {
	db *sqlx.DB
}

func NewSettingsAdapter(db *sqlx.DB) *SettingsAdapter {
	return &SettingsAdapter{db: db}
}

type settingsRow struct {
	UserID        string    `db:"user_id"`
	DefaultTone   string    `db:"default_tone"`
	DefaultLength string    `db:"default_length"`
	UpdatedAt     time.Time `db:"updated_at"`
}

func (a *SettingsAdapter) GetByUser(ctx context.Context, userID string) (*domain.UserSettings, error) {
	const query = `
		SELECT user_id, default_tone, default_length, updated_at
		FROM user_settings
		WHERE user_id = $1
	`

	var row settingsRow
	if err := a.db.GetContext(ctx, &row, query, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, out.ErrNotFound
		}
		return nil, err
	}

	return &domain.UserSettings{
		UserID:        row.UserID,
		DefaultTone:   row.DefaultTone,
		DefaultLength: row.DefaultLength,
		UpdatedAt:     row.UpdatedAt,
	}, nil
}

var _ out.SettingsRepository = (*SettingsAdapter)(nil)
