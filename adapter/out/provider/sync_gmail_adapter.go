package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"sync_server/core/domain"
	"sync_server/core/port/out"
	"sync_server/pkg/logger"

	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// =============================================================================
// Gmail Adapter
// =============================================================================

// GmailAdapter implements out.MailProvider for Gmail.
type GmailAdapter struct {
	cb *gobreaker.CircuitBreaker
}

// NewGmailAdapter creates a new Gmail adapter.
func NewGmailAdapter() *GmailAdapter {
	cbSettings := gobreaker.Settings{
		Name:        "gmail-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("[CircuitBreaker] %s: state changed from %s to %s", name, from.String(), to.String())
		},
	}

	return &GmailAdapter{
		cb: gobreaker.NewCircuitBreaker(cbSettings),
	}
}

// ProviderType returns the provider type.
func (a *GmailAdapter) ProviderType() string {
	return domain.ProviderGmail
}

// Profile returns the authenticated mailbox address.
func (a *GmailAdapter) Profile(ctx context.Context, token string) (string, error) {
	svc, err := a.getService(ctx, token)
	if err != nil {
		return "", err
	}

	profile, err := svc.Users.GetProfile("me").Context(ctx).Do()
	if err != nil {
		return "", a.wrapError(err, "failed to get profile")
	}
	return profile.EmailAddress, nil
}

// =============================================================================
// Inbox Reconstruction
// =============================================================================

// ListInbox lists inbox conversations and surfaces one received message per
// thread. Gmail's INBOX label includes the user's own replies as a threading
// side effect, so listing goes thread by thread and each thread's messages
// pass through SelectReceived.
func (a *GmailAdapter) ListInbox(ctx context.Context, token string, opts *out.ListOptions) ([]domain.Message, error) {
	svc, err := a.getService(ctx, token)
	if err != nil {
		return nil, err
	}

	profile, err := svc.Users.GetProfile("me").Context(ctx).Do()
	if err != nil {
		return nil, a.wrapError(err, "failed to get profile")
	}
	ownerAddr := profile.EmailAddress

	maxResults := int64(50)
	if opts != nil && opts.MaxResults > 0 {
		maxResults = int64(opts.MaxResults)
	}

	req := svc.Users.Threads.List("me").LabelIds("INBOX").MaxResults(maxResults)
	if opts != nil && opts.Search != "" {
		req = req.Q(opts.Search)
	}

	var resp *gmail.ListThreadsResponse
	cbErr := a.executeWithCircuitBreaker(ctx, "ListThreads", func() error {
		var apiErr error
		resp, apiErr = req.Context(ctx).Do()
		return apiErr
	})
	if cbErr != nil {
		return nil, a.wrapError(cbErr, "failed to list threads")
	}

	threads := a.fetchThreadsParallel(ctx, svc, resp.Threads)

	messages := make([]domain.Message, 0, len(threads))
	for _, threadMsgs := range threads {
		if pick := SelectReceived(threadMsgs, ownerAddr); pick != nil {
			messages = append(messages, *pick)
		}
	}
	return messages, nil
}

// fetchThreadsParallel fetches full threads with a concurrency cap to stay
// under the Gmail API rate limit. Order of the thread listing is preserved;
// failed threads are skipped.
func (a *GmailAdapter) fetchThreadsParallel(ctx context.Context, svc *gmail.Service, refs []*gmail.Thread) [][]domain.Message {
	if len(refs) == 0 {
		return nil
	}

	const maxConcurrency = 10
	const perThreadTimeout = 15 * time.Second

	type result struct {
		index int
		msgs  []domain.Message
		err   error
	}

	results := make(chan result, len(refs))
	sem := make(chan struct{}, maxConcurrency)

	for i, ref := range refs {
		go func(idx int, id string) {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results <- result{index: idx, err: ctx.Err()}
				return
			}

			threadCtx, cancel := context.WithTimeout(ctx, perThreadTimeout)
			defer cancel()

			thread, err := svc.Users.Threads.Get("me", id).Format("full").Context(threadCtx).Do()
			if err != nil {
				results <- result{index: idx, err: err}
				return
			}

			msgs := make([]domain.Message, 0, len(thread.Messages))
			for _, m := range thread.Messages {
				msgs = append(msgs, a.convertMessage(m))
			}
			results <- result{index: idx, msgs: msgs}
		}(i, ref.Id)
	}

	ordered := make([][]domain.Message, len(refs))
	for collected := 0; collected < len(refs); collected++ {
		select {
		case r := <-results:
			if r.err == nil {
				ordered[r.index] = r.msgs
			} else {
				logger.Warn("[GmailAdapter] thread fetch failed: %v", r.err)
			}
		case <-ctx.Done():
			collected = len(refs)
		}
	}

	filtered := make([][]domain.Message, 0, len(refs))
	for _, msgs := range ordered {
		if len(msgs) > 0 {
			filtered = append(filtered, msgs)
		}
	}
	return filtered
}

// =============================================================================
// Message Reading
// =============================================================================

// GetMessage retrieves a single message with its full body.
func (a *GmailAdapter) GetMessage(ctx context.Context, token, id string) (*domain.Message, error) {
	svc, err := a.getService(ctx, token)
	if err != nil {
		return nil, err
	}

	var msg *gmail.Message
	cbErr := a.executeWithCircuitBreaker(ctx, "GetMessage", func() error {
		var apiErr error
		msg, apiErr = svc.Users.Messages.Get("me", id).Format("full").Context(ctx).Do()
		return apiErr
	})
	if cbErr != nil {
		return nil, a.wrapError(cbErr, "failed to get message")
	}

	result := a.convertMessage(msg)
	return &result, nil
}

// GetThread returns every message of one conversation, oldest first.
func (a *GmailAdapter) GetThread(ctx context.Context, token, threadID string) ([]domain.Message, error) {
	svc, err := a.getService(ctx, token)
	if err != nil {
		return nil, err
	}

	var thread *gmail.Thread
	cbErr := a.executeWithCircuitBreaker(ctx, "GetThread", func() error {
		var apiErr error
		thread, apiErr = svc.Users.Threads.Get("me", threadID).Format("full").Context(ctx).Do()
		return apiErr
	})
	if cbErr != nil {
		return nil, a.wrapError(cbErr, "failed to get thread")
	}

	messages := make([]domain.Message, 0, len(thread.Messages))
	for _, m := range thread.Messages {
		messages = append(messages, a.convertMessage(m))
	}
	return messages, nil
}

// SetReadState toggles the UNREAD label.
func (a *GmailAdapter) SetReadState(ctx context.Context, token, id string, read bool) error {
	if read {
		return a.modifyLabels(ctx, token, id, nil, []string{"UNREAD"})
	}
	return a.modifyLabels(ctx, token, id, []string{"UNREAD"}, nil)
}

// =============================================================================
// Message Sending
// =============================================================================

// SendReply builds a same-thread RFC 822 reply, sends it, then best-effort
// strips the INBOX label from the just-sent copy so the sender's own reply
// does not resurface as incoming mail on the next sync.
func (a *GmailAdapter) SendReply(ctx context.Context, token string, params *out.ReplyParams) (string, error) {
	svc, err := a.getService(ctx, token)
	if err != nil {
		return "", err
	}

	original, err := svc.Users.Messages.Get("me", params.OriginalID).Format("metadata").Context(ctx).Do()
	if err != nil {
		return "", a.wrapError(err, "failed to get original message")
	}

	originalMsgID := ""
	if original.Payload != nil {
		originalMsgID = a.getHeader(original.Payload.Headers, "Message-ID")
	}

	raw := a.buildRawReply(params, originalMsgID)
	gmailMsg := &gmail.Message{
		Raw:      base64.URLEncoding.EncodeToString([]byte(raw)),
		ThreadId: original.ThreadId,
	}

	var sent *gmail.Message
	cbErr := a.executeWithCircuitBreaker(ctx, "SendReply", func() error {
		var apiErr error
		sent, apiErr = svc.Users.Messages.Send("me", gmailMsg).Context(ctx).Do()
		return apiErr
	})
	if cbErr != nil {
		return "", a.wrapError(cbErr, "failed to send reply")
	}

	// Best-effort: failure here must not fail the send.
	if err := a.modifyLabels(ctx, token, sent.Id, nil, []string{"INBOX"}); err != nil {
		logger.Warn("[GmailAdapter] failed to strip INBOX label from sent reply %s: %v", sent.Id, err)
	}

	return sent.Id, nil
}

func (a *GmailAdapter) buildRawReply(params *out.ReplyParams, originalMsgID string) string {
	subject := params.Subject
	if subject != "" && !strings.HasPrefix(strings.ToLower(subject), "re:") {
		subject = "Re: " + subject
	}

	var b strings.Builder
	fmt.Fprintf(&b, "To: %s\r\n", params.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	if originalMsgID != "" {
		fmt.Fprintf(&b, "In-Reply-To: %s\r\n", originalMsgID)
		fmt.Fprintf(&b, "References: %s\r\n", originalMsgID)
	}
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(params.Body)
	return b.String()
}

// =============================================================================
// Folders
// =============================================================================

// ListSent lists messages in the SENT label.
func (a *GmailAdapter) ListSent(ctx context.Context, token string, opts *out.ListOptions) ([]domain.Message, error) {
	return a.listByLabel(ctx, token, "SENT", opts)
}

// ListTrash lists messages in the TRASH label.
func (a *GmailAdapter) ListTrash(ctx context.Context, token string, opts *out.ListOptions) ([]domain.Message, error) {
	return a.listByLabel(ctx, token, "TRASH", opts)
}

func (a *GmailAdapter) listByLabel(ctx context.Context, token, label string, opts *out.ListOptions) ([]domain.Message, error) {
	svc, err := a.getService(ctx, token)
	if err != nil {
		return nil, err
	}

	maxResults := int64(50)
	if opts != nil && opts.MaxResults > 0 {
		maxResults = int64(opts.MaxResults)
	}

	req := svc.Users.Messages.List("me").LabelIds(label).MaxResults(maxResults)
	if opts != nil && opts.Search != "" {
		req = req.Q(opts.Search)
	}

	resp, err := req.Context(ctx).Do()
	if err != nil {
		return nil, a.wrapError(err, "failed to list messages")
	}

	return a.fetchMessagesParallel(ctx, svc, resp.Messages), nil
}

// fetchMessagesParallel fetches full messages with a concurrency cap,
// preserving listing order and dropping failed fetches.
func (a *GmailAdapter) fetchMessagesParallel(ctx context.Context, svc *gmail.Service, refs []*gmail.Message) []domain.Message {
	if len(refs) == 0 {
		return nil
	}

	const maxConcurrency = 10
	const perMessageTimeout = 15 * time.Second

	type result struct {
		index int
		msg   domain.Message
		err   error
	}

	results := make(chan result, len(refs))
	sem := make(chan struct{}, maxConcurrency)

	for i, ref := range refs {
		go func(idx int, id string) {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results <- result{index: idx, err: ctx.Err()}
				return
			}

			msgCtx, cancel := context.WithTimeout(ctx, perMessageTimeout)
			defer cancel()

			msg, err := svc.Users.Messages.Get("me", id).Format("full").Context(msgCtx).Do()
			if err != nil {
				results <- result{index: idx, err: err}
				return
			}
			results <- result{index: idx, msg: a.convertMessage(msg)}
		}(i, ref.Id)
	}

	ordered := make([]domain.Message, len(refs))
	for collected := 0; collected < len(refs); collected++ {
		select {
		case r := <-results:
			if r.err == nil {
				ordered[r.index] = r.msg
			}
		case <-ctx.Done():
			collected = len(refs)
		}
	}

	filtered := make([]domain.Message, 0, len(refs))
	for _, msg := range ordered {
		if msg.ID != "" {
			filtered = append(filtered, msg)
		}
	}
	return filtered
}

// =============================================================================
// Trash / Delete
// =============================================================================

// Trash moves a message to trash.
func (a *GmailAdapter) Trash(ctx context.Context, token, id string) error {
	svc, err := a.getService(ctx, token)
	if err != nil {
		return err
	}

	_, err = svc.Users.Messages.Trash("me", id).Context(ctx).Do()
	if err != nil {
		return a.wrapError(err, "failed to trash message")
	}
	return nil
}

// Untrash restores a message from trash.
func (a *GmailAdapter) Untrash(ctx context.Context, token, id string) error {
	svc, err := a.getService(ctx, token)
	if err != nil {
		return err
	}

	_, err = svc.Users.Messages.Untrash("me", id).Context(ctx).Do()
	if err != nil {
		return a.wrapError(err, "failed to untrash message")
	}
	return nil
}

// Delete permanently deletes a message.
func (a *GmailAdapter) Delete(ctx context.Context, token, id string) error {
	svc, err := a.getService(ctx, token)
	if err != nil {
		return err
	}

	err = svc.Users.Messages.Delete("me", id).Context(ctx).Do()
	if err != nil {
		return a.wrapError(err, "failed to delete message")
	}
	return nil
}

// =============================================================================
// Conversion
// =============================================================================

func (a *GmailAdapter) convertMessage(msg *gmail.Message) domain.Message {
	result := domain.Message{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
		Snippet:  msg.Snippet,
		Labels:   msg.LabelIds,
		IsRead:   true,
	}

	if msg.InternalDate > 0 {
		result.ReceivedAt = time.UnixMilli(msg.InternalDate)
	}

	for _, label := range msg.LabelIds {
		switch label {
		case "UNREAD":
			result.IsRead = false
		case "SENT":
			result.IsSent = true
		}
	}

	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			switch h.Name {
			case "From":
				result.From = h.Value
			case "To":
				result.To = h.Value
			case "Subject":
				result.Subject = h.Value
			case "Message-ID", "Message-Id":
				result.MessageID = h.Value
			}
		}
		result.Body = extractGmailBody(msg.Payload)
	}

	return result
}

// extractGmailBody walks the MIME tree preferring text/plain over text/html,
// recursing into nested multipart containers. Malformed or missing bodies
// resolve to an empty string.
func extractGmailBody(part *gmail.MessagePart) string {
	if part == nil {
		return ""
	}

	plain := findPartByMime(part, "text/plain")
	if plain != "" {
		return plain
	}
	return findPartByMime(part, "text/html")
}

func findPartByMime(part *gmail.MessagePart, mimeType string) string {
	if part == nil {
		return ""
	}

	if part.MimeType == mimeType && part.Body != nil && part.Body.Data != "" {
		data, err := base64.URLEncoding.DecodeString(part.Body.Data)
		if err != nil {
			return ""
		}
		return string(data)
	}

	for _, child := range part.Parts {
		if body := findPartByMime(child, mimeType); body != "" {
			return body
		}
	}
	return ""
}

// =============================================================================
// Internal Helpers
// =============================================================================

func (a *GmailAdapter) getService(ctx context.Context, token string) (*gmail.Service, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
	}

	return gmail.NewService(ctx, option.WithTokenSource(
		oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
	))
}

func (a *GmailAdapter) modifyLabels(ctx context.Context, token, messageID string, addLabels, removeLabels []string) error {
	svc, err := a.getService(ctx, token)
	if err != nil {
		return err
	}

	req := &gmail.ModifyMessageRequest{
		AddLabelIds:    addLabels,
		RemoveLabelIds: removeLabels,
	}

	_, err = svc.Users.Messages.Modify("me", messageID, req).Context(ctx).Do()
	if err != nil {
		return a.wrapError(err, "failed to modify labels")
	}
	return nil
}

func (a *GmailAdapter) getHeader(headers []*gmail.MessagePartHeader, name string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// executeWithCircuitBreaker wraps an API call with circuit breaker
// protection. Client errors (4xx) are wrapped so they don't trip the
// circuit; only server-side failures count.
func (a *GmailAdapter) executeWithCircuitBreaker(ctx context.Context, operation string, fn func() error) error {
	_, err := a.cb.Execute(func() (interface{}, error) {
		if err := fn(); err != nil {
			if apiErr, ok := err.(*googleapi.Error); ok {
				switch apiErr.Code {
				case 500, 502, 503, 429:
					return nil, err
				case 400, 401, 403, 404:
					return nil, &nonCircuitError{err: err}
				}
			}
			return nil, err
		}
		return nil, nil
	})

	if nce, ok := err.(*nonCircuitError); ok {
		return nce.err
	}

	if err != nil {
		logger.Error("[GmailAdapter] circuit breaker error for %s: state=%s, err=%v",
			operation, a.cb.State().String(), err)
	}

	return err
}

// nonCircuitError wraps errors that should not trip the circuit breaker.
type nonCircuitError struct {
	err error
}

func (e *nonCircuitError) Error() string {
	return e.err.Error()
}

func (a *GmailAdapter) wrapError(err error, message string) error {
	code := out.ProviderErrServer
	retryable := false

	if apiErr, ok := err.(*googleapi.Error); ok {
		switch apiErr.Code {
		case 401:
			code = out.ProviderErrTokenExpired
		case 403:
			code = out.ProviderErrAuth
		case 404:
			code = out.ProviderErrNotFound
		case 429:
			code = out.ProviderErrRateLimit
			retryable = true
		case 500, 502, 503:
			retryable = true
		}
	}

	return out.NewProviderError(domain.ProviderGmail, code, message, err, retryable)
}

var _ out.MailProvider = (*GmailAdapter)(nil)
