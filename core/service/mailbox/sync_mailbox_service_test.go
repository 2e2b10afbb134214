package mailbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"sync_server/core/domain"
	"sync_server/core/port/out"
)

// fakeTokens maps provider to (token, err). Missing entries behave like an
// unlinked account.
type fakeTokens struct {
	tokens map[string]string
	errs   map[string]error
}

func (f *fakeTokens) GetAccessToken(_ context.Context, _, provider string) (string, error) {
	if err, ok := f.errs[provider]; ok {
		return "", err
	}
	return f.tokens[provider], nil
}

type fakeProvider struct {
	providerType string
	inbox        []domain.Message
	listErr      error
	deleted      []string
}

func (f *fakeProvider) ProviderType() string { return f.providerType }

func (f *fakeProvider) Profile(context.Context, string) (string, error) { return "me@example.com", nil }

func (f *fakeProvider) ListInbox(_ context.Context, _ string, _ *out.ListOptions) ([]domain.Message, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.inbox, nil
}

func (f *fakeProvider) GetMessage(_ context.Context, _, id string) (*domain.Message, error) {
	for i := range f.inbox {
		if f.inbox[i].ID == id {
			return &f.inbox[i], nil
		}
	}
	return nil, errors.New("no such message")
}

func (f *fakeProvider) GetThread(_ context.Context, _, _ string) ([]domain.Message, error) {
	return f.inbox, nil
}

func (f *fakeProvider) SetReadState(context.Context, string, string, bool) error { return nil }

func (f *fakeProvider) SendReply(_ context.Context, _ string, _ *out.ReplyParams) (string, error) {
	return "sent-1", nil
}

func (f *fakeProvider) ListSent(context.Context, string, *out.ListOptions) ([]domain.Message, error) {
	return nil, nil
}

func (f *fakeProvider) ListTrash(context.Context, string, *out.ListOptions) ([]domain.Message, error) {
	return nil, nil
}

func (f *fakeProvider) Trash(context.Context, string, string) error   { return nil }
func (f *fakeProvider) Untrash(context.Context, string, string) error { return nil }

func (f *fakeProvider) Delete(_ context.Context, _, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeCache struct {
	msgs    map[string]*domain.Message
	trashed map[string]bool
	deleted []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{msgs: map[string]*domain.Message{}, trashed: map[string]bool{}}
}

func (f *fakeCache) Upsert(_ context.Context, _ string, msg *domain.Message) error {
	copied := *msg
	f.msgs[msg.ID] = &copied
	return nil
}

func (f *fakeCache) GetByID(_ context.Context, _, id string) (*domain.Message, error) {
	msg, ok := f.msgs[id]
	if !ok {
		return nil, out.ErrNotFound
	}
	return msg, nil
}

func (f *fakeCache) ListByUser(_ context.Context, _ string, trashed bool) ([]domain.Message, error) {
	var result []domain.Message
	for id, msg := range f.msgs {
		if f.trashed[id] == trashed {
			result = append(result, *msg)
		}
	}
	return result, nil
}

func (f *fakeCache) SetReadState(_ context.Context, _, id string, read bool) error {
	if msg, ok := f.msgs[id]; ok {
		msg.IsRead = read
	}
	return nil
}

func (f *fakeCache) SetTrashed(_ context.Context, _, id string, trashed bool) error {
	f.trashed[id] = trashed
	return nil
}

func (f *fakeCache) Delete(_ context.Context, _, id string) error {
	delete(f.msgs, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeCache) CountByUser(context.Context, string) (int, error) {
	return len(f.msgs), nil
}

type fakeInsights struct {
	byEmail map[string]*domain.Insight
	deleted []string
}

func (f *fakeInsights) Upsert(_ context.Context, insight *domain.Insight) error {
	f.byEmail[insight.EmailID] = insight
	return nil
}

func (f *fakeInsights) GetByEmail(_ context.Context, _, emailID string) (*domain.Insight, error) {
	ins, ok := f.byEmail[emailID]
	if !ok {
		return nil, out.ErrNotFound
	}
	return ins, nil
}

func (f *fakeInsights) ListByUser(context.Context, string) ([]*domain.Insight, error) {
	var all []*domain.Insight
	for _, ins := range f.byEmail {
		all = append(all, ins)
	}
	return all, nil
}

func (f *fakeInsights) DeleteByEmail(_ context.Context, _, emailID string) error {
	delete(f.byEmail, emailID)
	f.deleted = append(f.deleted, emailID)
	return nil
}

type fakeDrafts struct {
	byEmail map[string][]*domain.Draft
	deleted []string
}

func (f *fakeDrafts) Create(_ context.Context, draft *domain.Draft) error {
	f.byEmail[draft.EmailID] = append(f.byEmail[draft.EmailID], draft)
	return nil
}

func (f *fakeDrafts) ListByEmail(_ context.Context, _, emailID string) ([]*domain.Draft, error) {
	return f.byEmail[emailID], nil
}

func (f *fakeDrafts) HasDraft(_ context.Context, _, emailID string) (bool, error) {
	return len(f.byEmail[emailID]) > 0, nil
}

func (f *fakeDrafts) DeleteByEmail(_ context.Context, _, emailID string) error {
	delete(f.byEmail, emailID)
	f.deleted = append(f.deleted, emailID)
	return nil
}

func newTestService(providers []out.MailProvider, tokens *fakeTokens) (*Service, *fakeCache, *fakeInsights, *fakeDrafts) {
	cache := newFakeCache()
	insights := &fakeInsights{byEmail: map[string]*domain.Insight{}}
	drafts := &fakeDrafts{byEmail: map[string][]*domain.Draft{}}
	return NewService(providers, tokens, cache, insights, drafts), cache, insights, drafts
}

func TestListInbox_ProviderPriority(t *testing.T) {
	gmail := &fakeProvider{providerType: domain.ProviderGmail, inbox: []domain.Message{{ID: "g1"}}}
	outlook := &fakeProvider{providerType: domain.ProviderOutlook, inbox: []domain.Message{{ID: "o1"}}}
	tokens := &fakeTokens{tokens: map[string]string{
		domain.ProviderGmail:   "gt",
		domain.ProviderOutlook: "ot",
	}}
	svc, _, _, _ := newTestService([]out.MailProvider{outlook, gmail}, tokens)

	msgs, err := svc.ListInbox(context.Background(), "u1", nil)
	if err != nil {
		t.Fatalf("ListInbox: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != "g1" {
		t.Fatalf("expected gmail to win priority, got %+v", msgs)
	}
}

func TestListInbox_TokenFailureFallsThrough(t *testing.T) {
	gmail := &fakeProvider{providerType: domain.ProviderGmail, inbox: []domain.Message{{ID: "g1"}}}
	outlook := &fakeProvider{providerType: domain.ProviderOutlook, inbox: []domain.Message{{ID: "o1"}}}
	tokens := &fakeTokens{
		tokens: map[string]string{domain.ProviderOutlook: "ot"},
		errs:   map[string]error{domain.ProviderGmail: errors.New("invalid_grant")},
	}
	svc, _, _, _ := newTestService([]out.MailProvider{gmail, outlook}, tokens)

	msgs, err := svc.ListInbox(context.Background(), "u1", nil)
	if err != nil {
		t.Fatalf("ListInbox: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != "o1" {
		t.Fatalf("expected outlook after gmail token failure, got %+v", msgs)
	}
}

func TestListInbox_NoProviderSeedsDemoCache(t *testing.T) {
	tokens := &fakeTokens{}
	svc, cache, _, _ := newTestService(nil, tokens)

	msgs, err := svc.ListInbox(context.Background(), "u1", nil)
	if err != nil {
		t.Fatalf("ListInbox: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 demo messages, got %d", len(msgs))
	}
	if len(cache.msgs) != 2 {
		t.Fatalf("expected demo messages persisted, got %d", len(cache.msgs))
	}

	// Second listing must not re-seed.
	msgs, err = svc.ListInbox(context.Background(), "u1", nil)
	if err != nil {
		t.Fatalf("ListInbox: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected seeding to be idempotent, got %d messages", len(msgs))
	}
}

func TestListInbox_ProviderErrorFallsBackToCache(t *testing.T) {
	gmail := &fakeProvider{providerType: domain.ProviderGmail, listErr: errors.New("503")}
	tokens := &fakeTokens{tokens: map[string]string{domain.ProviderGmail: "gt"}}
	svc, cache, _, _ := newTestService([]out.MailProvider{gmail}, tokens)
	cached := domain.Message{ID: "c1", Subject: "cached", ReceivedAt: time.Now()}
	cache.Upsert(context.Background(), "u1", &cached)

	msgs, err := svc.ListInbox(context.Background(), "u1", nil)
	if err != nil {
		t.Fatalf("ListInbox: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != "c1" {
		t.Fatalf("expected cached fallback message, got %+v", msgs)
	}
}

func TestListInbox_MergesInsights(t *testing.T) {
	gmail := &fakeProvider{providerType: domain.ProviderGmail, inbox: []domain.Message{{ID: "g1"}, {ID: "g2"}}}
	tokens := &fakeTokens{tokens: map[string]string{domain.ProviderGmail: "gt"}}
	svc, _, insights, _ := newTestService([]out.MailProvider{gmail}, tokens)
	insights.byEmail["g2"] = &domain.Insight{UserID: "u1", EmailID: "g2", Category: domain.CategoryWork, Priority: 80}

	msgs, err := svc.ListInbox(context.Background(), "u1", nil)
	if err != nil {
		t.Fatalf("ListInbox: %v", err)
	}
	var g1, g2 *domain.Message
	for i := range msgs {
		switch msgs[i].ID {
		case "g1":
			g1 = &msgs[i]
		case "g2":
			g2 = &msgs[i]
		}
	}
	if g1 == nil || g1.Insight != nil {
		t.Fatalf("expected g1 without insight, got %+v", g1)
	}
	if g2 == nil || g2.Insight == nil || g2.Insight.Priority != 80 {
		t.Fatalf("expected g2 with merged insight, got %+v", g2)
	}
}

func TestDelete_Cascades(t *testing.T) {
	gmail := &fakeProvider{providerType: domain.ProviderGmail, inbox: []domain.Message{{ID: "g1"}}}
	tokens := &fakeTokens{tokens: map[string]string{domain.ProviderGmail: "gt"}}
	svc, cache, insights, drafts := newTestService([]out.MailProvider{gmail}, tokens)
	cache.Upsert(context.Background(), "u1", &domain.Message{ID: "g1"})
	insights.byEmail["g1"] = &domain.Insight{UserID: "u1", EmailID: "g1"}
	drafts.byEmail["g1"] = []*domain.Draft{{EmailID: "g1", Version: 1}}

	if err := svc.Delete(context.Background(), "u1", "g1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(gmail.deleted) != 1 || gmail.deleted[0] != "g1" {
		t.Fatalf("expected provider delete, got %v", gmail.deleted)
	}
	if _, ok := cache.msgs["g1"]; ok {
		t.Fatal("expected cached copy removed")
	}
	if _, ok := insights.byEmail["g1"]; ok {
		t.Fatal("expected insight removed")
	}
	if _, ok := drafts.byEmail["g1"]; ok {
		t.Fatal("expected drafts removed")
	}
}

func TestSendReply_NoProvider(t *testing.T) {
	svc, _, _, _ := newTestService(nil, &fakeTokens{})

	_, err := svc.SendReply(context.Background(), "u1", &out.ReplyParams{OriginalID: "x"})
	if err == nil {
		t.Fatal("expected error when no provider is linked")
	}
}
