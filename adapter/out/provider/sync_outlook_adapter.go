package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"sync_server/core/domain"
	"sync_server/core/port/out"
	"sync_server/pkg/logger"

	"golang.org/x/oauth2"
)

const graphBaseURL = "https://graph.microsoft.com/v1.0"

// =============================================================================
// Outlook Adapter
// =============================================================================

// OutlookAdapter implements out.MailProvider for Microsoft Outlook over the
// Graph REST API.
type OutlookAdapter struct{}

// NewOutlookAdapter creates a new Outlook adapter.
func NewOutlookAdapter() *OutlookAdapter {
	return &OutlookAdapter{}
}

// ProviderType returns the provider type.
func (a *OutlookAdapter) ProviderType() string {
	return domain.ProviderOutlook
}

// Profile returns the authenticated mailbox address.
func (a *OutlookAdapter) Profile(ctx context.Context, token string) (string, error) {
	client := a.httpClient(ctx, token)

	var user struct {
		Mail              string `json:"mail"`
		UserPrincipalName string `json:"userPrincipalName"`
	}
	if err := a.doGet(client, graphBaseURL+"/me?$select=mail,userPrincipalName", &user); err != nil {
		return "", err
	}

	if user.Mail != "" {
		return user.Mail, nil
	}
	return user.UserPrincipalName, nil
}

// =============================================================================
// Inbox Reconstruction
// =============================================================================

// ListInbox lists inbox messages grouped by conversation and surfaces one
// received message per conversation. Graph files sent replies under the same
// conversationId, so each conversation is fetched across folders and passed
// through SelectReceived; messages sitting in Sent Items carry the sent flag.
func (a *OutlookAdapter) ListInbox(ctx context.Context, token string, opts *out.ListOptions) ([]domain.Message, error) {
	client := a.httpClient(ctx, token)

	ownerAddr, err := a.Profile(ctx, token)
	if err != nil {
		return nil, err
	}

	sentFolderID, err := a.folderID(client, "sentitems")
	if err != nil {
		logger.Warn("[OutlookAdapter] failed to resolve sent folder: %v", err)
	}

	maxResults := 50
	if opts != nil && opts.MaxResults > 0 {
		maxResults = opts.MaxResults
	}

	params := url.Values{}
	params.Set("$top", fmt.Sprintf("%d", maxResults))
	params.Set("$orderby", "receivedDateTime desc")
	params.Set("$select", graphMessageSelect)
	if opts != nil && opts.Search != "" {
		params.Set("$search", fmt.Sprintf("%q", opts.Search))
		// $search and $orderby are mutually exclusive on Graph.
		params.Del("$orderby")
	}

	var listing struct {
		Value []graphMessage `json:"value"`
	}
	if err := a.doGet(client, graphBaseURL+"/me/mailFolders/inbox/messages?"+params.Encode(), &listing); err != nil {
		return nil, err
	}

	// One entry per conversation, in listing order.
	seen := make(map[string]bool)
	var conversations []string
	for _, msg := range listing.Value {
		if msg.ConversationID == "" || seen[msg.ConversationID] {
			continue
		}
		seen[msg.ConversationID] = true
		conversations = append(conversations, msg.ConversationID)
	}

	messages := make([]domain.Message, 0, len(conversations))
	for _, convID := range conversations {
		threadMsgs, err := a.fetchConversation(client, convID, sentFolderID)
		if err != nil {
			logger.Warn("[OutlookAdapter] conversation fetch failed: %v", err)
			continue
		}
		if pick := SelectReceived(threadMsgs, ownerAddr); pick != nil {
			messages = append(messages, *pick)
		}
	}
	return messages, nil
}

// fetchConversation fetches every message of a conversation across folders.
func (a *OutlookAdapter) fetchConversation(client *http.Client, conversationID, sentFolderID string) ([]domain.Message, error) {
	params := url.Values{}
	params.Set("$filter", fmt.Sprintf("conversationId eq '%s'", strings.ReplaceAll(conversationID, "'", "''")))
	params.Set("$select", graphMessageSelect)

	var resp struct {
		Value []graphMessage `json:"value"`
	}
	if err := a.doGet(client, graphBaseURL+"/me/messages?"+params.Encode(), &resp); err != nil {
		return nil, err
	}

	msgs := make([]domain.Message, 0, len(resp.Value))
	for i := range resp.Value {
		m := a.convertMessage(&resp.Value[i])
		if sentFolderID != "" && resp.Value[i].ParentFolderID == sentFolderID {
			m.IsSent = true
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// =============================================================================
// Message Reading
// =============================================================================

// GetMessage retrieves a single message with its body.
func (a *OutlookAdapter) GetMessage(ctx context.Context, token, id string) (*domain.Message, error) {
	client := a.httpClient(ctx, token)

	var msg graphMessage
	if err := a.doGet(client, graphBaseURL+"/me/messages/"+id+"?$select="+graphMessageSelect, &msg); err != nil {
		return nil, err
	}

	result := a.convertMessage(&msg)
	return &result, nil
}

// GetThread returns every message of one conversation.
func (a *OutlookAdapter) GetThread(ctx context.Context, token, threadID string) ([]domain.Message, error) {
	client := a.httpClient(ctx, token)
	return a.fetchConversation(client, threadID, "")
}

// SetReadState toggles the isRead flag.
func (a *OutlookAdapter) SetReadState(ctx context.Context, token, id string, read bool) error {
	client := a.httpClient(ctx, token)
	return a.doPatch(client, graphBaseURL+"/me/messages/"+id, map[string]bool{"isRead": read})
}

// =============================================================================
// Message Sending
// =============================================================================

// SendReply posts a Graph reply action, which keeps the conversation and the
// In-Reply-To chain on the provider side. Graph files the sent copy directly
// in Sent Items, so there is no inbox label to strip afterwards.
func (a *OutlookAdapter) SendReply(ctx context.Context, token string, params *out.ReplyParams) (string, error) {
	client := a.httpClient(ctx, token)

	payload := map[string]any{"comment": params.Body}
	if err := a.doPost(client, graphBaseURL+"/me/messages/"+params.OriginalID+"/reply", payload, nil); err != nil {
		return "", err
	}

	// The reply action returns 202 with no body; surface the most recent
	// sent message id, best-effort.
	var sent struct {
		Value []graphMessage `json:"value"`
	}
	if err := a.doGet(client, graphBaseURL+"/me/mailFolders/sentitems/messages?$top=1&$orderby=sentDateTime desc&$select=id", &sent); err == nil && len(sent.Value) > 0 {
		return sent.Value[0].ID, nil
	}
	return "", nil
}

// =============================================================================
// Folders
// =============================================================================

// ListSent lists the Sent Items folder.
func (a *OutlookAdapter) ListSent(ctx context.Context, token string, opts *out.ListOptions) ([]domain.Message, error) {
	return a.listFolder(ctx, token, "sentitems", opts, true)
}

// ListTrash lists the Deleted Items folder.
func (a *OutlookAdapter) ListTrash(ctx context.Context, token string, opts *out.ListOptions) ([]domain.Message, error) {
	return a.listFolder(ctx, token, "deleteditems", opts, false)
}

func (a *OutlookAdapter) listFolder(ctx context.Context, token, folder string, opts *out.ListOptions, sent bool) ([]domain.Message, error) {
	client := a.httpClient(ctx, token)

	maxResults := 50
	if opts != nil && opts.MaxResults > 0 {
		maxResults = opts.MaxResults
	}

	params := url.Values{}
	params.Set("$top", fmt.Sprintf("%d", maxResults))
	params.Set("$orderby", "receivedDateTime desc")
	params.Set("$select", graphMessageSelect)

	var resp struct {
		Value []graphMessage `json:"value"`
	}
	if err := a.doGet(client, graphBaseURL+"/me/mailFolders/"+folder+"/messages?"+params.Encode(), &resp); err != nil {
		return nil, err
	}

	messages := make([]domain.Message, 0, len(resp.Value))
	for i := range resp.Value {
		m := a.convertMessage(&resp.Value[i])
		m.IsSent = sent
		messages = append(messages, m)
	}
	return messages, nil
}

// =============================================================================
// Trash / Delete
// =============================================================================

// Trash moves a message to Deleted Items.
func (a *OutlookAdapter) Trash(ctx context.Context, token, id string) error {
	client := a.httpClient(ctx, token)
	return a.doPost(client, graphBaseURL+"/me/messages/"+id+"/move",
		map[string]string{"destinationId": "deleteditems"}, nil)
}

// Untrash moves a message back to the inbox.
func (a *OutlookAdapter) Untrash(ctx context.Context, token, id string) error {
	client := a.httpClient(ctx, token)
	return a.doPost(client, graphBaseURL+"/me/messages/"+id+"/move",
		map[string]string{"destinationId": "inbox"}, nil)
}

// Delete permanently deletes a message.
func (a *OutlookAdapter) Delete(ctx context.Context, token, id string) error {
	client := a.httpClient(ctx, token)
	return a.doDelete(client, graphBaseURL+"/me/messages/"+id)
}

// =============================================================================
// Internal Helpers
// =============================================================================

const graphMessageSelect = "id,conversationId,internetMessageId,subject,bodyPreview,body,from,toRecipients,isRead,receivedDateTime,categories,parentFolderId"

func (a *OutlookAdapter) httpClient(ctx context.Context, token string) *http.Client {
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	client.Timeout = 30 * time.Second
	return client
}

func (a *OutlookAdapter) folderID(client *http.Client, wellKnown string) (string, error) {
	var folder struct {
		ID string `json:"id"`
	}
	if err := a.doGet(client, graphBaseURL+"/me/mailFolders/"+wellKnown+"?$select=id", &folder); err != nil {
		return "", err
	}
	return folder.ID, nil
}

func (a *OutlookAdapter) doGet(client *http.Client, requestURL string, result interface{}) error {
	req, err := http.NewRequest("GET", requestURL, nil)
	if err != nil {
		return err
	}
	// Have Graph transcode HTML bodies to plain text where possible.
	req.Header.Set("Prefer", `outlook.body-content-type="text"`)

	resp, err := client.Do(req)
	if err != nil {
		return a.wrapError(err, "request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return a.wrapHTTPError(resp.StatusCode, string(body))
	}

	if result != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

func (a *OutlookAdapter) doPost(client *http.Client, url string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest("POST", url, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return a.wrapError(err, "request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return a.wrapHTTPError(resp.StatusCode, string(respBody))
	}

	if result != nil && resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusAccepted {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

func (a *OutlookAdapter) doPatch(client *http.Client, url string, body interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequest("PATCH", url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return a.wrapError(err, "request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return a.wrapHTTPError(resp.StatusCode, string(respBody))
	}

	return nil
}

func (a *OutlookAdapter) doDelete(client *http.Client, url string) error {
	req, err := http.NewRequest("DELETE", url, nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return a.wrapError(err, "request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return a.wrapHTTPError(resp.StatusCode, string(body))
	}

	return nil
}

func (a *OutlookAdapter) convertMessage(msg *graphMessage) domain.Message {
	result := domain.Message{
		ID:        msg.ID,
		ThreadID:  msg.ConversationID,
		MessageID: msg.InternetMessageID,
		Subject:   msg.Subject,
		Snippet:   msg.BodyPreview,
		Body:      msg.Body.Content,
		IsRead:    msg.IsRead,
		Labels:    msg.Categories,
	}

	if msg.From.EmailAddress.Address != "" {
		if msg.From.EmailAddress.Name != "" {
			result.From = fmt.Sprintf("%s <%s>", msg.From.EmailAddress.Name, msg.From.EmailAddress.Address)
		} else {
			result.From = msg.From.EmailAddress.Address
		}
	}

	addrs := make([]string, 0, len(msg.ToRecipients))
	for _, r := range msg.ToRecipients {
		addrs = append(addrs, r.EmailAddress.Address)
	}
	result.To = strings.Join(addrs, ", ")

	if msg.ReceivedDateTime != "" {
		result.ReceivedAt, _ = time.Parse(time.RFC3339, msg.ReceivedDateTime)
	}

	return result
}

func (a *OutlookAdapter) wrapError(err error, defaultMsg string) error {
	if err == nil {
		return nil
	}
	return out.NewProviderError(domain.ProviderOutlook, out.ProviderErrNetwork, defaultMsg, err, true)
}

func (a *OutlookAdapter) wrapHTTPError(statusCode int, body string) error {
	switch statusCode {
	case 401:
		return out.NewProviderError(domain.ProviderOutlook, out.ProviderErrTokenExpired, "Token expired", nil, false)
	case 403:
		return out.NewProviderError(domain.ProviderOutlook, out.ProviderErrAuth, "Access denied", nil, false)
	case 404:
		return out.NewProviderError(domain.ProviderOutlook, out.ProviderErrNotFound, "Not found", nil, false)
	case 429:
		return out.NewProviderError(domain.ProviderOutlook, out.ProviderErrRateLimit, "Too many requests", nil, true)
	default:
		return out.NewProviderError(domain.ProviderOutlook, out.ProviderErrServer, fmt.Sprintf("HTTP %d: %s", statusCode, body), nil, true)
	}
}

// Graph API types

type graphMessage struct {
	ID                string           `json:"id"`
	ConversationID    string           `json:"conversationId"`
	InternetMessageID string           `json:"internetMessageId"`
	Subject           string           `json:"subject"`
	BodyPreview       string           `json:"bodyPreview"`
	Body              graphBody        `json:"body"`
	From              graphRecipient   `json:"from"`
	ToRecipients      []graphRecipient `json:"toRecipients"`
	IsRead            bool             `json:"isRead"`
	Categories        []string         `json:"categories"`
	ReceivedDateTime  string           `json:"receivedDateTime"`
	ParentFolderID    string           `json:"parentFolderId"`
}

type graphBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type graphRecipient struct {
	EmailAddress graphEmailAddress `json:"emailAddress"`
}

type graphEmailAddress struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

var _ out.MailProvider = (*OutlookAdapter)(nil)
