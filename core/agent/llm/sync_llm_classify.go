package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"sync_server/core/domain"
	"sync_server/core/port/out"
)

const defaultPriority = 50

// Classify asks the model for a single JSON object describing the message
// and defensively normalizes every field: priority clamped into [0,100]
// (default 50 when unparsable), needsReply coerced to bool, tags defaulted
// to empty, category coerced into the known set with "Other" as catch-all.
func (c *Client) Classify(ctx context.Context, msg *domain.Message) (*out.Classification, error) {
	systemPrompt := fmt.Sprintf(`You are an email classification AI. Analyze the email and respond with a single JSON object only.

Categories (pick ONE): %s

Respond with this exact JSON format:
{
  "category": "category_name",
  "priorityScore": 0-100,
  "needsReply": true|false,
  "tags": ["tag1", "tag2"],
  "summary": "brief 1-2 sentence summary"
}

priorityScore: 0 (ignorable) to 100 (urgent, needs immediate attention).
needsReply: true when the email asks the recipient a question or expects a response.`,
		strings.Join(domain.Categories, ", "))

	userPrompt := fmt.Sprintf("From: %s\nSubject: %s\n\nBody:\n%s",
		msg.From, msg.Subject, truncateBody(msg.Body, 2000))

	resp, err := c.complete(ctx, systemPrompt, userPrompt, true)
	if err != nil {
		return nil, err
	}

	return parseClassification(resp), nil
}

// parseClassification never fails: unparsable responses degrade to defaults
// field by field.
func parseClassification(resp string) *out.Classification {
	resp = strings.TrimSpace(resp)
	resp = strings.TrimPrefix(resp, "```json")
	resp = strings.TrimPrefix(resp, "```")
	resp = strings.TrimSuffix(resp, "```")
	resp = strings.TrimSpace(resp)

	result := &out.Classification{
		Category: domain.CategoryOther,
		Priority: defaultPriority,
		Tags:     []string{},
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(resp), &raw); err != nil {
		return result
	}

	if cat, ok := raw["category"].(string); ok && domain.ValidCategory(cat) {
		result.Category = cat
	}
	result.Priority = coercePriority(raw["priorityScore"])
	result.NeedsReply = coerceBool(raw["needsReply"])
	result.Tags = coerceTags(raw["tags"])
	if summary, ok := raw["summary"].(string); ok {
		result.Summary = summary
	}

	return result
}

func coercePriority(v any) int {
	switch n := v.(type) {
	case float64:
		return clampPriority(int(n))
	case string:
		var parsed float64
		if _, err := fmt.Sscanf(n, "%f", &parsed); err == nil {
			return clampPriority(int(parsed))
		}
	}
	return defaultPriority
}

func clampPriority(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

func coerceBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return strings.EqualFold(b, "true") || strings.EqualFold(b, "yes")
	}
	return false
}

func coerceTags(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return []string{}
	}
	tags := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && s != "" {
			tags = append(tags, s)
		}
	}
	return tags
}
