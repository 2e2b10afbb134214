package out

import (
	"context"
	"errors"

	"sync_server/core/domain"
)

// ErrNotFound is returned by repository lookups when no row matches.
// Adapters translate their driver's sentinel (sql.ErrNoRows, redis.Nil)
// into this one so callers never import driver packages.
var ErrNotFound = errors.New("not found")

// JobRepository is the persisted job ledger. Rows are never deleted by this
// subsystem; retention is an external concern.
type JobRepository interface {
	Create(ctx context.Context, job *domain.Job) error
	GetByID(ctx context.Context, id string) (*domain.Job, error)
	SetStatus(ctx context.Context, id string, status domain.JobStatus) error
	MarkDone(ctx context.Context, id string, result []byte) error
	MarkFailed(ctx context.Context, id string, errMsg string) error
}

// InsightRepository stores classification results keyed by (user, email).
// Upsert keeps concurrent or retried writes safe without external locking.
type InsightRepository interface {
	Upsert(ctx context.Context, insight *domain.Insight) error
	GetByEmail(ctx context.Context, userID, emailID string) (*domain.Insight, error)
	ListByUser(ctx context.Context, userID string) ([]*domain.Insight, error)
	DeleteByEmail(ctx context.Context, userID, emailID string) error
}

// DraftRepository stores versioned reply drafts. Create assigns the version
// atomically as max(version)+1 for the email.
type DraftRepository interface {
	Create(ctx context.Context, draft *domain.Draft) error
	ListByEmail(ctx context.Context, userID, emailID string) ([]*domain.Draft, error)
	HasDraft(ctx context.Context, userID, emailID string) (bool, error)
	DeleteByEmail(ctx context.Context, userID, emailID string) error
}

// MessageCacheRepository is the local fallback store used when no provider
// is linked, and the keeper of copies preserved for the trash view.
type MessageCacheRepository interface {
	Upsert(ctx context.Context, userID string, msg *domain.Message) error
	GetByID(ctx context.Context, userID, id string) (*domain.Message, error)
	ListByUser(ctx context.Context, userID string, trashed bool) ([]domain.Message, error)
	SetReadState(ctx context.Context, userID, id string, read bool) error
	SetTrashed(ctx context.Context, userID, id string, trashed bool) error
	Delete(ctx context.Context, userID, id string) error
	CountByUser(ctx context.Context, userID string) (int, error)
}

// AccountRepository reads linked provider accounts. Read-only from this
// core's perspective; the auth subsystem owns writes.
type AccountRepository interface {
	GetByProvider(ctx context.Context, userID, provider string) (*domain.Account, error)
	ListByUser(ctx context.Context, userID string) ([]*domain.Account, error)
}

// SettingsRepository reads per-user drafting preferences owned by the
// settings subsystem.
type SettingsRepository interface {
	GetByUser(ctx context.Context, userID string) (*domain.UserSettings, error)
}
