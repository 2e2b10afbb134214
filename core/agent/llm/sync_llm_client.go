// Package llm implements the AI invocation layer on top of the OpenAI API:
// prompt construction, defensive response parsing, model fallback and
// rate-limit backoff.
package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"sync_server/pkg/logger"
)

const (
	DefaultModel  = "gpt-4o-mini"
	FallbackModel = "gpt-3.5-turbo"

	maxRateLimitAttempts = 5
	baseBackoff          = 2000 * time.Millisecond
	maxBackoff           = 30000 * time.Millisecond
)

// chatCompleter is the slice of the OpenAI client this layer uses.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type Client struct {
	api           chatCompleter
	model         string
	fallbackModel string
	maxTokens     int
	temperature   float32

	sleep func(time.Duration)
}

type ClientConfig struct {
	APIKey        string
	Model         string
	FallbackModel string
	MaxTokens     int
	Temperature   float64
}

func NewClient(cfg ClientConfig) *Client {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 2048
	}
	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = 0.7
	}
	fallback := cfg.FallbackModel
	if fallback == "" {
		fallback = FallbackModel
	}
	return &Client{
		api:           openai.NewClient(cfg.APIKey),
		model:         model,
		fallbackModel: fallback,
		maxTokens:     maxTokens,
		temperature:   float32(temperature),
		sleep:         time.Sleep,
	}
}

// complete runs one chat completion with model fallback and rate-limit
// backoff. A 429 retries the same model with exponential backoff up to
// maxRateLimitAttempts; a model-access failure moves on to the fallback
// model; any other failure aborts immediately.
func (c *Client) complete(ctx context.Context, systemPrompt, userPrompt string, jsonMode bool) (string, error) {
	models := []string{c.model}
	if c.fallbackModel != "" && c.fallbackModel != c.model {
		models = append(models, c.fallbackModel)
	}

	var lastErr error
	for i, model := range models {
		content, err := c.completeWithBackoff(ctx, model, systemPrompt, userPrompt, jsonMode)
		if err == nil {
			return content, nil
		}
		lastErr = err

		if isModelAccessError(err) && i < len(models)-1 {
			logger.Warn("[llm] model %s unavailable, falling back to %s: %v", model, models[i+1], err)
			continue
		}
		return "", err
	}
	return "", lastErr
}

func (c *Client) completeWithBackoff(ctx context.Context, model, systemPrompt, userPrompt string, jsonMode bool) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:     model,
		MaxTokens: c.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: userPrompt,
			},
		},
		Temperature: c.temperature,
	}
	if jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	var lastErr error
	for attempt := 0; attempt < maxRateLimitAttempts; attempt++ {
		resp, err := c.api.CreateChatCompletion(ctx, req)
		if err == nil {
			if len(resp.Choices) == 0 {
				return "", nil
			}
			return resp.Choices[0].Message.Content, nil
		}

		lastErr = err
		if !isRateLimited(err) {
			return "", err
		}
		if attempt == maxRateLimitAttempts-1 {
			break
		}

		delay := backoffDelay(attempt)
		logger.Warn("[llm] rate limited on %s, retrying in %s (attempt %d/%d)", model, delay, attempt+1, maxRateLimitAttempts)
		c.sleep(delay)
	}
	return "", lastErr
}

// backoffDelay returns min(baseBackoff * 2^attempt, maxBackoff).
func backoffDelay(attempt int) time.Duration {
	delay := baseBackoff << attempt
	if delay > maxBackoff || delay <= 0 {
		return maxBackoff
	}
	return delay
}

func isRateLimited(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429
	}
	return strings.Contains(err.Error(), "429")
}

// isModelAccessError reports whether the failure looks like a model-access
// problem worth retrying on the fallback model, rather than a request error.
func isModelAccessError(err error) bool {
	s := strings.ToLower(err.Error())
	if !strings.Contains(s, "model") {
		return false
	}
	return strings.Contains(s, "not found") ||
		strings.Contains(s, "not available") ||
		strings.Contains(s, "permission") ||
		strings.Contains(s, "access")
}

func truncateBody(body string, maxLen int) string {
	if len(body) <= maxLen {
		return body
	}
	return body[:maxLen] + "..."
}
