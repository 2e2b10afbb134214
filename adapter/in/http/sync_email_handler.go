package http

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"sync_server/core/domain"
	"sync_server/core/port/out"
	"sync_server/pkg/response"
)

// MailboxService is the façade surface the handler needs. Satisfied by
// mailbox.Service.
type MailboxService interface {
	ListInbox(ctx context.Context, userID string, opts *out.ListOptions) ([]domain.Message, error)
	GetMessage(ctx context.Context, userID, id string) (*domain.Message, error)
	GetThread(ctx context.Context, userID, threadID string) ([]domain.Message, error)
	SetReadState(ctx context.Context, userID, id string, read bool) error
	SendReply(ctx context.Context, userID string, params *out.ReplyParams) (string, error)
	ListSent(ctx context.Context, userID string, opts *out.ListOptions) ([]domain.Message, error)
	ListTrash(ctx context.Context, userID string, opts *out.ListOptions) ([]domain.Message, error)
	Trash(ctx context.Context, userID, id string) error
	Untrash(ctx context.Context, userID, id string) error
	Delete(ctx context.Context, userID, id string) error
}

// EmailHandler exposes the unified mailbox view.
type EmailHandler struct {
	mailbox MailboxService
	drafts  out.DraftRepository
}

func NewEmailHandler(mb MailboxService, drafts out.DraftRepository) *EmailHandler {
	return &EmailHandler{mailbox: mb, drafts: drafts}
}

func (h *EmailHandler) Register(app fiber.Router) {
	emails := app.Group("/emails")
	emails.Get("/", h.List)
	emails.Get("/sent", h.ListSent)
	emails.Get("/trash", h.ListTrash)
	emails.Get("/:id", h.Get)
	emails.Get("/:id/thread", h.GetThread)
	emails.Get("/:id/drafts", h.ListDrafts)
	emails.Patch("/:id/read", h.SetReadState)
	emails.Post("/:id/reply", h.Reply)
	emails.Post("/:id/trash", h.Trash)
	emails.Post("/:id/untrash", h.Untrash)
	emails.Delete("/:id", h.Delete)
}

func (h *EmailHandler) listOptions(c *fiber.Ctx) *out.ListOptions {
	return &out.ListOptions{
		MaxResults: c.QueryInt("limit", 50),
		Search:     c.Query("q"),
	}
}

func (h *EmailHandler) List(c *fiber.Ctx) error {
	userID, err := UserID(c)
	if err != nil {
		return err
	}

	msgs, err := h.mailbox.ListInbox(c.Context(), userID, h.listOptions(c))
	if err != nil {
		return serviceError(c, err, "inbox listing")
	}
	return response.OKWithMeta(c, msgs, &response.Meta{Total: len(msgs)})
}

func (h *EmailHandler) Get(c *fiber.Ctx) error {
	userID, err := UserID(c)
	if err != nil {
		return err
	}

	msg, err := h.mailbox.GetMessage(c.Context(), userID, c.Params("id"))
	if err != nil {
		return serviceError(c, err, "message fetch")
	}
	return response.OK(c, msg)
}

func (h *EmailHandler) GetThread(c *fiber.Ctx) error {
	userID, err := UserID(c)
	if err != nil {
		return err
	}

	msgs, err := h.mailbox.GetThread(c.Context(), userID, c.Params("id"))
	if err != nil {
		return serviceError(c, err, "thread fetch")
	}
	return response.OK(c, msgs)
}

func (h *EmailHandler) ListDrafts(c *fiber.Ctx) error {
	userID, err := UserID(c)
	if err != nil {
		return err
	}

	drafts, err := h.drafts.ListByEmail(c.Context(), userID, c.Params("id"))
	if err != nil {
		return serviceError(c, err, "draft listing")
	}
	return response.OK(c, drafts)
}

type readStateRequest struct {
	Read bool `json:"read"`
}

func (h *EmailHandler) SetReadState(c *fiber.Ctx) error {
	userID, err := UserID(c)
	if err != nil {
		return err
	}

	var req readStateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "invalid request body")
	}

	if err := h.mailbox.SetReadState(c.Context(), userID, c.Params("id"), req.Read); err != nil {
		return serviceError(c, err, "read state update")
	}
	return response.NoContent(c)
}

type replyRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (h *EmailHandler) Reply(c *fiber.Ctx) error {
	userID, err := UserID(c)
	if err != nil {
		return err
	}

	var req replyRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "invalid request body")
	}
	if req.Body == "" {
		return response.BadRequest(c, "reply body required")
	}

	sentID, err := h.mailbox.SendReply(c.Context(), userID, &out.ReplyParams{
		OriginalID: c.Params("id"),
		To:         req.To,
		Subject:    req.Subject,
		Body:       req.Body,
	})
	if err != nil {
		return serviceError(c, err, "reply send")
	}

	// Outlook's reply action does not return the sent copy's id; omit the
	// field rather than returning an empty one.
	body := fiber.Map{}
	if sentID != "" {
		body["message_id"] = sentID
	}
	return response.Created(c, body)
}

func (h *EmailHandler) ListSent(c *fiber.Ctx) error {
	userID, err := UserID(c)
	if err != nil {
		return err
	}

	msgs, err := h.mailbox.ListSent(c.Context(), userID, h.listOptions(c))
	if err != nil {
		return serviceError(c, err, "sent listing")
	}
	return response.OKWithMeta(c, msgs, &response.Meta{Total: len(msgs)})
}

func (h *EmailHandler) ListTrash(c *fiber.Ctx) error {
	userID, err := UserID(c)
	if err != nil {
		return err
	}

	msgs, err := h.mailbox.ListTrash(c.Context(), userID, h.listOptions(c))
	if err != nil {
		return serviceError(c, err, "trash listing")
	}
	return response.OKWithMeta(c, msgs, &response.Meta{Total: len(msgs)})
}

func (h *EmailHandler) Trash(c *fiber.Ctx) error {
	userID, err := UserID(c)
	if err != nil {
		return err
	}

	if err := h.mailbox.Trash(c.Context(), userID, c.Params("id")); err != nil {
		return serviceError(c, err, "trash")
	}
	return response.NoContent(c)
}

func (h *EmailHandler) Untrash(c *fiber.Ctx) error {
	userID, err := UserID(c)
	if err != nil {
		return err
	}

	if err := h.mailbox.Untrash(c.Context(), userID, c.Params("id")); err != nil {
		return serviceError(c, err, "untrash")
	}
	return response.NoContent(c)
}

func (h *EmailHandler) Delete(c *fiber.Ctx) error {
	userID, err := UserID(c)
	if err != nil {
		return err
	}

	if err := h.mailbox.Delete(c.Context(), userID, c.Params("id")); err != nil {
		return serviceError(c, err, "delete")
	}
	return response.NoContent(c)
}
