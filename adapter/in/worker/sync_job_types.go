package worker

import (
	"fmt"

	"github.com/goccy/go-json"
)

// ClassifyPayload asks for one message to be classified.
type ClassifyPayload struct {
	UserID  string `json:"userId"`
	EmailID string `json:"emailId"`
}

// ClassifyBatchPayload asks for a list of messages to be classified in order.
type ClassifyBatchPayload struct {
	UserID   string   `json:"userId"`
	EmailIDs []string `json:"emailIds"`
}

// DraftPayload asks for one reply draft, optionally overriding the user's
// default tone and length.
type DraftPayload struct {
	UserID      string `json:"userId"`
	EmailID     string `json:"emailId"`
	Tone        string `json:"tone,omitempty"`
	Length      string `json:"length,omitempty"`
	Instruction string `json:"instruction,omitempty"`
}

// AutoDraftBatchPayload asks for first drafts on messages flagged needsReply.
type AutoDraftBatchPayload struct {
	UserID   string   `json:"userId"`
	EmailIDs []string `json:"emailIds"`
}

// ParsePayload decodes a job's raw payload into a typed struct.
func ParsePayload[T any](raw json.RawMessage) (*T, error) {
	var payload T
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty payload")
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}
	return &payload, nil
}
