// Package mailbox presents a single mailbox view over whatever providers a
// user has linked, falling back to a local cache store when none resolve.
package mailbox

import (
	"context"
	"fmt"

	"sync_server/core/domain"
	"sync_server/core/port/out"
	"sync_server/pkg/logger"
)

// tokenSource resolves (user, provider) to an access token. Returns "" with
// a nil error when the user has no usable account for the provider.
type tokenSource interface {
	GetAccessToken(ctx context.Context, userID, provider string) (string, error)
}

// Service is the mailbox façade. Providers are tried in the fixed
// domain.ProviderPriority order; the first one whose token resolves serves
// the whole call. Token or provider failures demote to the next provider,
// and finally to the cache store.
type Service struct {
	providers map[string]out.MailProvider
	tokens    tokenSource
	cache     out.MessageCacheRepository
	insights  out.InsightRepository
	drafts    out.DraftRepository
}

func NewService(
	providers []out.MailProvider,
	tokens tokenSource,
	cache out.MessageCacheRepository,
	insights out.InsightRepository,
	drafts out.DraftRepository,
) *Service {
	byType := make(map[string]out.MailProvider, len(providers))
	for _, p := range providers {
		byType[p.ProviderType()] = p
	}
	return &Service{
		providers: byType,
		tokens:    tokens,
		cache:     cache,
		insights:  insights,
		drafts:    drafts,
	}
}

// resolveProvider returns the first provider with a usable token. A nil
// provider with a nil error means no provider is linked and the caller
// should use the cache store.
func (s *Service) resolveProvider(ctx context.Context, userID string) (out.MailProvider, string, error) {
	for _, providerType := range domain.ProviderPriority {
		provider, ok := s.providers[providerType]
		if !ok {
			continue
		}
		token, err := s.tokens.GetAccessToken(ctx, userID, providerType)
		if err != nil {
			logger.WithField("user_id", userID).Warn("[mailbox] token for %s unavailable: %v", providerType, err)
			continue
		}
		if token == "" {
			continue
		}
		return provider, token, nil
	}
	return nil, "", nil
}

// ListInbox returns the user's inbox with cached insights merged in.
func (s *Service) ListInbox(ctx context.Context, userID string, opts *out.ListOptions) ([]domain.Message, error) {
	provider, token, err := s.resolveProvider(ctx, userID)
	if err != nil {
		return nil, err
	}

	var msgs []domain.Message
	if provider != nil {
		msgs, err = provider.ListInbox(ctx, token, opts)
		if err != nil {
			logger.WithField("user_id", userID).Warn("[mailbox] %s inbox listing failed, falling back to cache: %v", provider.ProviderType(), err)
			provider = nil
		}
	}
	if provider == nil {
		msgs, err = s.listCached(ctx, userID, false)
		if err != nil {
			return nil, err
		}
	}

	s.mergeInsights(ctx, userID, msgs)
	return msgs, nil
}

// GetMessage returns one message, preferring the linked provider and falling
// back to the cache store.
func (s *Service) GetMessage(ctx context.Context, userID, id string) (*domain.Message, error) {
	provider, token, err := s.resolveProvider(ctx, userID)
	if err != nil {
		return nil, err
	}

	var msg *domain.Message
	if provider != nil {
		msg, err = provider.GetMessage(ctx, token, id)
		if err != nil {
			logger.WithField("user_id", userID).Warn("[mailbox] %s message fetch failed, trying cache: %v", provider.ProviderType(), err)
			msg = nil
		}
	}
	if msg == nil {
		msg, err = s.cache.GetByID(ctx, userID, id)
		if err != nil {
			return nil, err
		}
	}

	if insight, err := s.insights.GetByEmail(ctx, userID, msg.ID); err == nil && insight != nil {
		msg.Insight = insight
	}
	return msg, nil
}

// GetThread returns every message in a conversation, oldest first.
func (s *Service) GetThread(ctx context.Context, userID, threadID string) ([]domain.Message, error) {
	provider, token, err := s.resolveProvider(ctx, userID)
	if err != nil {
		return nil, err
	}
	if provider == nil {
		msg, err := s.cache.GetByID(ctx, userID, threadID)
		if err != nil {
			return nil, err
		}
		return []domain.Message{*msg}, nil
	}

	msgs, err := provider.GetThread(ctx, token, threadID)
	if err != nil {
		return nil, fmt.Errorf("thread fetch failed: %w", err)
	}
	s.mergeInsights(ctx, userID, msgs)
	return msgs, nil
}

// SetReadState flips the read flag on the provider, or on the cached copy
// when no provider is linked.
func (s *Service) SetReadState(ctx context.Context, userID, id string, read bool) error {
	provider, token, err := s.resolveProvider(ctx, userID)
	if err != nil {
		return err
	}
	if provider == nil {
		return s.cache.SetReadState(ctx, userID, id, read)
	}
	return provider.SetReadState(ctx, token, id, read)
}

// SendReply sends a same-thread reply through the linked provider. Without a
// linked provider there is nowhere to send, so this fails.
func (s *Service) SendReply(ctx context.Context, userID string, params *out.ReplyParams) (string, error) {
	provider, token, err := s.resolveProvider(ctx, userID)
	if err != nil {
		return "", err
	}
	if provider == nil {
		return "", fmt.Errorf("no linked mail provider for user %s", userID)
	}
	return provider.SendReply(ctx, token, params)
}

// ListSent returns the user's sent messages.
func (s *Service) ListSent(ctx context.Context, userID string, opts *out.ListOptions) ([]domain.Message, error) {
	provider, token, err := s.resolveProvider(ctx, userID)
	if err != nil {
		return nil, err
	}
	if provider == nil {
		return []domain.Message{}, nil
	}
	return provider.ListSent(ctx, token, opts)
}

// ListTrash returns trashed messages: the provider's trash folder when
// linked, otherwise locally trashed cached copies.
func (s *Service) ListTrash(ctx context.Context, userID string, opts *out.ListOptions) ([]domain.Message, error) {
	provider, token, err := s.resolveProvider(ctx, userID)
	if err != nil {
		return nil, err
	}
	if provider == nil {
		return s.cache.ListByUser(ctx, userID, true)
	}
	return provider.ListTrash(ctx, token, opts)
}

// Trash moves a message to trash.
func (s *Service) Trash(ctx context.Context, userID, id string) error {
	provider, token, err := s.resolveProvider(ctx, userID)
	if err != nil {
		return err
	}
	if provider == nil {
		return s.cache.SetTrashed(ctx, userID, id, true)
	}
	return provider.Trash(ctx, token, id)
}

// Untrash restores a trashed message.
func (s *Service) Untrash(ctx context.Context, userID, id string) error {
	provider, token, err := s.resolveProvider(ctx, userID)
	if err != nil {
		return err
	}
	if provider == nil {
		return s.cache.SetTrashed(ctx, userID, id, false)
	}
	return provider.Untrash(ctx, token, id)
}

// Delete permanently removes a message and everything derived from it: the
// provider copy when linked, the cached copy, the insight row, and every
// draft version.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	provider, token, err := s.resolveProvider(ctx, userID)
	if err != nil {
		return err
	}
	if provider != nil {
		if err := provider.Delete(ctx, token, id); err != nil {
			return fmt.Errorf("provider delete failed: %w", err)
		}
	}

	if err := s.cache.Delete(ctx, userID, id); err != nil {
		logger.WithField("user_id", userID).Warn("[mailbox] cached copy cleanup failed for %s: %v", id, err)
	}
	if err := s.insights.DeleteByEmail(ctx, userID, id); err != nil {
		logger.WithField("user_id", userID).Warn("[mailbox] insight cleanup failed for %s: %v", id, err)
	}
	if err := s.drafts.DeleteByEmail(ctx, userID, id); err != nil {
		logger.WithField("user_id", userID).Warn("[mailbox] draft cleanup failed for %s: %v", id, err)
	}
	return nil
}

// listCached serves the inbox from the cache store, seeding two demo
// messages the first time a user with no linked provider shows up.
func (s *Service) listCached(ctx context.Context, userID string, trashed bool) ([]domain.Message, error) {
	count, err := s.cache.CountByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		if err := s.seedDemoMessages(ctx, userID); err != nil {
			logger.WithField("user_id", userID).Warn("[mailbox] demo seed failed: %v", err)
		}
	}
	return s.cache.ListByUser(ctx, userID, trashed)
}

func (s *Service) seedDemoMessages(ctx context.Context, userID string) error {
	welcome := domain.NewLocalMessage()
	welcome.From = "welcome@sync.example.com"
	welcome.To = userID
	welcome.Subject = "Welcome to your inbox"
	welcome.Snippet = "Connect a mail account to see your real messages here."
	welcome.Body = "Connect a Gmail or Outlook account to see your real messages here.\n\nUntil then this local inbox lets you try classification and drafting."
	if err := s.cache.Upsert(ctx, userID, &welcome); err != nil {
		return err
	}

	tips := domain.NewLocalMessage()
	tips.From = "tips@sync.example.com"
	tips.To = userID
	tips.Subject = "Getting started with AI triage"
	tips.Snippet = "Submit a classify job to see categories and priorities."
	tips.Body = "Submit a classify job for any message to get a category, a priority score, and a one-line summary.\nMessages that look like they need a reply get a draft generated automatically."
	return s.cache.Upsert(ctx, userID, &tips)
}

// mergeInsights attaches cached classification rows to their messages.
// One listing per call; failures leave messages bare rather than erroring.
func (s *Service) mergeInsights(ctx context.Context, userID string, msgs []domain.Message) {
	if len(msgs) == 0 {
		return
	}
	insights, err := s.insights.ListByUser(ctx, userID)
	if err != nil {
		logger.WithField("user_id", userID).Warn("[mailbox] insight listing failed: %v", err)
		return
	}
	byEmail := make(map[string]*domain.Insight, len(insights))
	for _, ins := range insights {
		byEmail[ins.EmailID] = ins
	}
	for i := range msgs {
		if ins, ok := byEmail[msgs[i].ID]; ok {
			msgs[i].Insight = ins
		}
	}
}
