package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"sync_server/core/domain"
	"sync_server/core/port/out"
	"sync_server/pkg/crypto"
)

// AccountAdapter implements out.AccountRepository on PostgreSQL. Refresh
// tokens are stored encrypted at rest and decrypted on read; this adapter
// never writes, the auth subsystem owns the table.
type AccountAdapter struct {
	db *sqlx.DB
}

func NewAccountAdapter(db *sqlx.DB) *AccountAdapter {
	return &AccountAdapter{db: db}
}

type accountRow struct {
	UserID       string    `db:"user_id"`
	Provider     string    `db:"provider"`
	Email        string    `db:"email"`
	RefreshToken string    `db:"refresh_token"`
	CreatedAt    time.Time `db:"created_at"`
}

func (r *accountRow) toDomain() (*domain.Account, error) {
	token := r.RefreshToken
	if crypto.IsEncrypted(token) {
		decrypted, err := crypto.DecryptToken(token)
		if err != nil {
			return nil, fmt.Errorf("refresh token decrypt failed: %w", err)
		}
		token = decrypted
	}

	return &domain.Account{
		UserID:       r.UserID,
		Provider:     r.Provider,
		Email:        r.Email,
		RefreshToken: token,
		CreatedAt:    r.CreatedAt,
	}, nil
}

func (a *AccountAdapter) GetByProvider(ctx context.Context, userID, provider string) (*domain.Account, error) {
	const query = `
		SELECT user_id, provider, email, refresh_token, created_at
		FROM accounts
		WHERE user_id = $1 AND provider = $2
	`

	var row accountRow
	if err := a.db.GetContext(ctx, &row, query, userID, provider); err != nil {
		if err == sql.ErrNoRows {
			return nil, out.ErrNotFound
		}
		return nil, err
	}
	return row.toDomain()
}

func (a *AccountAdapter) ListByUser(ctx context.Context, userID string) ([]*domain.Account, error) {
	const query = `
		SELECT user_id, provider, email, refresh_token, created_at
		FROM accounts
		WHERE user_id = $1
		ORDER BY provider
	`

	var rows []accountRow
	if err := a.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, err
	}

	accounts := make([]*domain.Account, 0, len(rows))
	for i := range rows {
		account, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, nil
}

var _ out.AccountRepository = (*AccountAdapter)(nil)
