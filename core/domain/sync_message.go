// Package domain contains the provider-agnostic mail domain model.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message is the canonical, provider-agnostic representation of one email.
// It is rebuilt on every provider fetch and never persisted verbatim; only
// the cache fallback store keeps a copy (no linked provider, or preserving
// a deleted message for the trash view).
type Message struct {
	ID         string    `json:"id"`
	ThreadID   string    `json:"thread_id,omitempty"`
	MessageID  string    `json:"message_id,omitempty"` // RFC 5322 Message-ID header
	From       string    `json:"from"`
	To         string    `json:"to"`
	Subject    string    `json:"subject"`
	Snippet    string    `json:"snippet"`
	Body       string    `json:"body"`
	ReceivedAt time.Time `json:"received_at"`
	IsRead     bool      `json:"is_read"`
	IsSent     bool      `json:"is_sent"`
	Labels     []string  `json:"labels,omitempty"`

	// Insight is merged in by the mailbox service when a cached
	// classification exists for this message. Nil otherwise.
	Insight *Insight `json:"insight,omitempty"`
}

// NewLocalMessage creates a message with a locally generated id, used by the
// cache store when no provider-native id exists.
func NewLocalMessage() Message {
	return Message{
		ID:         uuid.New().String(),
		ReceivedAt: time.Now(),
	}
}
