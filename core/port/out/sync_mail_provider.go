// Package out defines outbound ports (driven ports) for the application.
package out

import (
	"context"

	"sync_server/core/domain"
)

// ListOptions narrows a provider listing call.
type ListOptions struct {
	MaxResults int
	Search     string
}

// ReplyParams describes an outgoing same-thread reply.
type ReplyParams struct {
	// OriginalID is the provider-native id of the message being replied to.
	OriginalID string
	To         string
	Subject    string
	Body       string
}

// MailProvider is the capability interface every mailbox provider adapter
// implements. Tokens are short-lived access tokens resolved by the token
// lifecycle manager; adapters never refresh on their own.
type MailProvider interface {
	ProviderType() string

	// Profile returns the authenticated mailbox address, the reference
	// point for self-authored message exclusion.
	Profile(ctx context.Context, token string) (string, error)

	// ListInbox lists by conversation thread and returns at most one
	// message per thread: the most recently received message not authored
	// by the mailbox owner. Entirely self-authored threads are dropped.
	ListInbox(ctx context.Context, token string, opts *ListOptions) ([]domain.Message, error)

	GetMessage(ctx context.Context, token, id string) (*domain.Message, error)
	GetThread(ctx context.Context, token, threadID string) ([]domain.Message, error)
	SetReadState(ctx context.Context, token, id string, read bool) error

	// SendReply transmits a same-thread reply and returns the sent
	// message's provider id. Stripping the sender's own copy from the
	// inbox is best-effort and never fails the send.
	SendReply(ctx context.Context, token string, params *ReplyParams) (string, error)

	ListSent(ctx context.Context, token string, opts *ListOptions) ([]domain.Message, error)
	ListTrash(ctx context.Context, token string, opts *ListOptions) ([]domain.Message, error)
	Trash(ctx context.Context, token, id string) error
	Untrash(ctx context.Context, token, id string) error
	Delete(ctx context.Context, token, id string) error
}

// ProviderErrorCode classifies provider failures.
type ProviderErrorCode string

const (
	ProviderErrAuth         ProviderErrorCode = "auth_error"
	ProviderErrTokenExpired ProviderErrorCode = "token_expired"
	ProviderErrRateLimit    ProviderErrorCode = "rate_limit"
	ProviderErrNotFound     ProviderErrorCode = "not_found"
	ProviderErrNetwork      ProviderErrorCode = "network_error"
	ProviderErrServer       ProviderErrorCode = "server_error"
)

// ProviderError wraps a provider API failure with its origin and class.
type ProviderError struct {
	Provider  string
	Code      ProviderErrorCode
	Message   string
	Err       error
	Retryable bool
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError creates a new provider error.
func NewProviderError(provider string, code ProviderErrorCode, message string, err error, retryable bool) *ProviderError {
	return &ProviderError{
		Provider:  provider,
		Code:      code,
		Message:   message,
		Err:       err,
		Retryable: retryable,
	}
}
