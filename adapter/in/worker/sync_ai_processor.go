package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"sync_server/core/domain"
	"sync_server/core/port/out"
	"sync_server/pkg/logger"
)

// DefaultBatchDelay is the fixed pause between batch items, tuned low enough
// to stay under provider rate limits without an adaptive limiter.
const DefaultBatchDelay = 500 * time.Millisecond

// messageReader fetches canonical messages; the mailbox façade satisfies it.
type messageReader interface {
	GetMessage(ctx context.Context, userID, id string) (*domain.Message, error)
}

// Enqueuer submits follow-up jobs. Satisfied by the Runner; injected after
// construction because the runner itself depends on this processor.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobType domain.JobType, payload json.RawMessage) (string, error)
}

// AIProcessor executes the AI job kinds: classification, drafting and their
// batch forms.
type AIProcessor struct {
	messages messageReader
	llm      out.LLM
	insights out.InsightRepository
	drafts   out.DraftRepository
	settings out.SettingsRepository

	enqueuer   Enqueuer
	batchDelay time.Duration
	sleep      func(time.Duration)
}

func NewAIProcessor(
	messages messageReader,
	llm out.LLM,
	insights out.InsightRepository,
	drafts out.DraftRepository,
	settings out.SettingsRepository,
	batchDelay time.Duration,
) *AIProcessor {
	if batchDelay <= 0 {
		batchDelay = DefaultBatchDelay
	}
	return &AIProcessor{
		messages:   messages,
		llm:        llm,
		insights:   insights,
		drafts:     drafts,
		settings:   settings,
		batchDelay: batchDelay,
		sleep:      time.Sleep,
	}
}

// SetEnqueuer wires the follow-up job sink. Must be called before the runner
// starts dispatching; without it batch classification simply skips chaining.
func (p *AIProcessor) SetEnqueuer(e Enqueuer) {
	p.enqueuer = e
}

// HandleClassify classifies one message and upserts its insight.
func (p *AIProcessor) HandleClassify(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	req, err := ParsePayload[ClassifyPayload](payload)
	if err != nil {
		return nil, err
	}
	if req.UserID == "" || req.EmailID == "" {
		return nil, errors.New("userId and emailId are required")
	}

	insight, err := p.classifyOne(ctx, req.UserID, req.EmailID)
	if err != nil {
		return nil, err
	}
	return json.Marshal(insight)
}

// HandleClassifyBatch classifies messages sequentially with a fixed pause
// between items. A failing item is counted and logged, never fatal. When any
// classified message needs a reply, an auto-draft-batch job is enqueued for
// those messages, fire-and-forget.
func (p *AIProcessor) HandleClassifyBatch(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	req, err := ParsePayload[ClassifyBatchPayload](payload)
	if err != nil {
		return nil, err
	}
	if req.UserID == "" {
		return nil, errors.New("userId is required")
	}

	log := logger.WithField("user_id", req.UserID)

	classified := 0
	failed := 0
	var needsReply []string
	for i, emailID := range req.EmailIDs {
		if i > 0 {
			p.sleep(p.batchDelay)
		}

		insight, err := p.classifyOne(ctx, req.UserID, emailID)
		if err != nil {
			failed++
			log.Warn("[ai] batch classify item failed for %s: %v", emailID, err)
			continue
		}
		classified++
		if insight.NeedsReply {
			needsReply = append(needsReply, emailID)
		}
	}

	p.enqueueAutoDrafts(ctx, req.UserID, needsReply)

	return json.Marshal(map[string]int{
		"classified": classified,
		"failed":     failed,
		"total":      len(req.EmailIDs),
	})
}

// HandleDraft generates one reply draft at the next free version number.
func (p *AIProcessor) HandleDraft(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	req, err := ParsePayload[DraftPayload](payload)
	if err != nil {
		return nil, err
	}
	if req.UserID == "" || req.EmailID == "" {
		return nil, errors.New("userId and emailId are required")
	}

	tone, length, err := p.resolveStyle(ctx, req.UserID, req.Tone, req.Length)
	if err != nil {
		return nil, err
	}

	var instruction *string
	if req.Instruction != "" {
		instruction = &req.Instruction
	}

	draft, err := p.draftOne(ctx, req.UserID, req.EmailID, tone, length, instruction)
	if err != nil {
		return nil, err
	}
	return json.Marshal(draft)
}

// HandleAutoDraftBatch writes a first draft for each message that has none
// yet. Messages with any existing draft are skipped, which makes retried or
// overlapping batches idempotent.
func (p *AIProcessor) HandleAutoDraftBatch(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	req, err := ParsePayload[AutoDraftBatchPayload](payload)
	if err != nil {
		return nil, err
	}
	if req.UserID == "" {
		return nil, errors.New("userId is required")
	}

	tone, length, err := p.resolveStyle(ctx, req.UserID, "", "")
	if err != nil {
		return nil, err
	}
	log := logger.WithField("user_id", req.UserID)

	drafted := 0
	skipped := 0
	failed := 0
	for i, emailID := range req.EmailIDs {
		if i > 0 {
			p.sleep(p.batchDelay)
		}

		has, err := p.drafts.HasDraft(ctx, req.UserID, emailID)
		if err != nil {
			failed++
			log.Warn("[ai] draft lookup failed for %s: %v", emailID, err)
			continue
		}
		if has {
			skipped++
			continue
		}

		if _, err := p.draftOne(ctx, req.UserID, emailID, tone, length, nil); err != nil {
			failed++
			log.Warn("[ai] auto draft failed for %s: %v", emailID, err)
			continue
		}
		drafted++
	}

	return json.Marshal(map[string]int{
		"drafted": drafted,
		"skipped": skipped,
		"failed":  failed,
		"total":   len(req.EmailIDs),
	})
}

func (p *AIProcessor) classifyOne(ctx context.Context, userID, emailID string) (*domain.Insight, error) {
	msg, err := p.messages.GetMessage(ctx, userID, emailID)
	if err != nil {
		return nil, fmt.Errorf("message fetch failed: %w", err)
	}

	result, err := p.llm.Classify(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("classification failed: %w", err)
	}

	insight := &domain.Insight{
		UserID:     userID,
		EmailID:    emailID,
		Category:   result.Category,
		Priority:   result.Priority,
		NeedsReply: result.NeedsReply,
		Tags:       result.Tags,
		Summary:    result.Summary,
		UpdatedAt:  time.Now(),
	}
	if err := p.insights.Upsert(ctx, insight); err != nil {
		return nil, fmt.Errorf("insight upsert failed: %w", err)
	}
	return insight, nil
}

func (p *AIProcessor) draftOne(ctx context.Context, userID, emailID, tone, length string, instruction *string) (*domain.Draft, error) {
	msg, err := p.messages.GetMessage(ctx, userID, emailID)
	if err != nil {
		return nil, fmt.Errorf("message fetch failed: %w", err)
	}

	opts := &out.DraftOptions{Tone: tone, Length: length}
	if instruction != nil {
		opts.Instruction = *instruction
	}

	content, err := p.llm.GenerateDraft(ctx, msg, opts)
	if err != nil {
		return nil, fmt.Errorf("draft generation failed: %w", err)
	}

	draft := &domain.Draft{
		UserID:      userID,
		EmailID:     emailID,
		Tone:        tone,
		Length:      length,
		Instruction: instruction,
		Content:     content,
		Status:      domain.DraftStatusDraft,
		CreatedAt:   time.Now(),
	}
	if err := p.drafts.Create(ctx, draft); err != nil {
		return nil, fmt.Errorf("draft save failed: %w", err)
	}
	return draft, nil
}

// resolveStyle fills tone and length from the user's settings. A missing
// settings row falls back to the global defaults; any other settings store
// failure is returned so the caller fails the job instead of silently
// drafting with the wrong style.
func (p *AIProcessor) resolveStyle(ctx context.Context, userID, tone, length string) (string, string, error) {
	if tone != "" && length != "" {
		return tone, length, nil
	}

	defaults := domain.DefaultUserSettings(userID)
	settings, err := p.settings.GetByUser(ctx, userID)
	if err != nil && !errors.Is(err, out.ErrNotFound) {
		return "", "", fmt.Errorf("settings lookup failed: %w", err)
	}
	if settings != nil {
		defaults = settings
	}

	if tone == "" {
		tone = defaults.DefaultTone
	}
	if length == "" {
		length = defaults.DefaultLength
	}
	return tone, length, nil
}

// enqueueAutoDrafts chains an auto-draft-batch job for needsReply messages.
// Best-effort: a chaining failure is logged and never fails the parent batch.
func (p *AIProcessor) enqueueAutoDrafts(ctx context.Context, userID string, emailIDs []string) {
	if len(emailIDs) == 0 || p.enqueuer == nil {
		return
	}

	payload, err := json.Marshal(&AutoDraftBatchPayload{UserID: userID, EmailIDs: emailIDs})
	if err != nil {
		logger.WithField("user_id", userID).Error("[ai] failed to encode auto-draft payload: %v", err)
		return
	}

	jobID, err := p.enqueuer.Enqueue(ctx, domain.JobAutoDraftBatch, payload)
	if err != nil {
		logger.WithField("user_id", userID).Warn("[ai] failed to chain auto-draft batch: %v", err)
		return
	}
	logger.WithField("user_id", userID).Info("[ai] chained auto-draft batch %s for %d messages", jobID, len(emailIDs))
}
