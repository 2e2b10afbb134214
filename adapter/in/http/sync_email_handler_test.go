package http

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"

	"sync_server/core/domain"
	"sync_server/core/port/out"
)

type stubMailbox struct {
	sentID   string
	sendErr  error
	gotReply *out.ReplyParams
}

func (s *stubMailbox) ListInbox(context.Context, string, *out.ListOptions) ([]domain.Message, error) {
	return nil, nil
}

func (s *stubMailbox) GetMessage(context.Context, string, string) (*domain.Message, error) {
	return nil, out.ErrNotFound
}

func (s *stubMailbox) GetThread(context.Context, string, string) ([]domain.Message, error) {
	return nil, nil
}

func (s *stubMailbox) SetReadState(context.Context, string, string, bool) error { return nil }

func (s *stubMailbox) SendReply(_ context.Context, _ string, params *out.ReplyParams) (string, error) {
	s.gotReply = params
	return s.sentID, s.sendErr
}

func (s *stubMailbox) ListSent(context.Context, string, *out.ListOptions) ([]domain.Message, error) {
	return nil, nil
}

func (s *stubMailbox) ListTrash(context.Context, string, *out.ListOptions) ([]domain.Message, error) {
	return nil, nil
}

func (s *stubMailbox) Trash(context.Context, string, string) error   { return nil }
func (s *stubMailbox) Untrash(context.Context, string, string) error { return nil }
func (s *stubMailbox) Delete(context.Context, string, string) error  { return nil }

type replyEnvelope struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data"`
}

func postReply(t *testing.T, mb MailboxService, body string) (int, replyEnvelope) {
	t.Helper()

	app := fiber.New()
	NewEmailHandler(mb, nil).Register(app.Group("/api"))

	req := httptest.NewRequest("POST", "/api/emails/e1/reply", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "u1")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("body read: %v", err)
	}
	var env replyEnvelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("body decode: %v (%s)", err, raw)
		}
	}
	return resp.StatusCode, env
}

func TestReply_ReturnsSentMessageID(t *testing.T) {
	mb := &stubMailbox{sentID: "sent-123"}

	status, env := postReply(t, mb, `{"body":"thanks"}`)
	if status != fiber.StatusCreated {
		t.Fatalf("expected 201, got %d", status)
	}
	if env.Data["message_id"] != "sent-123" {
		t.Fatalf("expected message_id in response, got %v", env.Data)
	}
	if mb.gotReply == nil || mb.gotReply.OriginalID != "e1" {
		t.Fatalf("unexpected reply params %+v", mb.gotReply)
	}
}

func TestReply_OmitsUnknownSentMessageID(t *testing.T) {
	status, env := postReply(t, &stubMailbox{sentID: ""}, `{"body":"thanks"}`)
	if status != fiber.StatusCreated {
		t.Fatalf("expected 201, got %d", status)
	}
	if _, ok := env.Data["message_id"]; ok {
		t.Fatalf("expected message_id omitted when unknown, got %v", env.Data)
	}
}

func TestReply_RequiresBody(t *testing.T) {
	status, _ := postReply(t, &stubMailbox{}, `{"to":"a@b.c"}`)
	if status != fiber.StatusBadRequest {
		t.Fatalf("expected 400 for empty body, got %d", status)
	}
}
