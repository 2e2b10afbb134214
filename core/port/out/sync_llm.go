package out

import (
	"context"

	"sync_server/core/domain"
)

// Classification is the normalized result of one classify call. Fields are
// already clamped and defaulted by the invocation layer.
type Classification struct {
	Category   string   `json:"category"`
	Priority   int      `json:"priorityScore"` // 0-100
	NeedsReply bool     `json:"needsReply"`
	Tags       []string `json:"tags"`
	Summary    string   `json:"summary"`
}

// DraftOptions tune a draft generation call.
type DraftOptions struct {
	Tone        string
	Length      string
	Instruction string
}

// LLM is the AI invocation port: prompt construction, model fallback and
// rate-limit retry live behind it.
type LLM interface {
	Classify(ctx context.Context, msg *domain.Message) (*Classification, error)
	GenerateDraft(ctx context.Context, msg *domain.Message, opts *DraftOptions) (string, error)
}
