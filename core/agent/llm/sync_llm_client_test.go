package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"sync_server/core/domain"
	"sync_server/core/port/out"
)

// fakeCompleter scripts one response per call, keyed by call order.
type fakeCompleter struct {
	responses []func(req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	calls     []openai.ChatCompletionRequest
}

func (f *fakeCompleter) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.calls = append(f.calls, req)
	idx := len(f.calls) - 1
	if idx >= len(f.responses) {
		return openai.ChatCompletionResponse{}, errors.New("unexpected extra call")
	}
	return f.responses[idx](req)
}

func chatText(content string) func(openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return func(openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		return openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Content: content}},
			},
		}, nil
	}
}

func chatErr(err error) func(openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return func(openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		return openai.ChatCompletionResponse{}, err
	}
}

func newTestClient(api *fakeCompleter) (*Client, *[]time.Duration) {
	var slept []time.Duration
	c := &Client{
		api:           api,
		model:         "primary-model",
		fallbackModel: "fallback-model",
		maxTokens:     256,
		temperature:   0.7,
		sleep:         func(d time.Duration) { slept = append(slept, d) },
	}
	return c, &slept
}

func TestComplete_FallsBackOnModelAccessError(t *testing.T) {
	api := &fakeCompleter{responses: []func(openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error){
		chatErr(errors.New("the model `primary-model` was not found")),
		chatText("from fallback"),
	}}
	c, _ := newTestClient(api)

	content, err := c.complete(context.Background(), "sys", "user", false)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if content != "from fallback" {
		t.Fatalf("expected fallback content, got %q", content)
	}
	if api.calls[0].Model != "primary-model" || api.calls[1].Model != "fallback-model" {
		t.Fatalf("unexpected model sequence: %s, %s", api.calls[0].Model, api.calls[1].Model)
	}
}

func TestComplete_NoFallbackOnOtherErrors(t *testing.T) {
	api := &fakeCompleter{responses: []func(openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error){
		chatErr(errors.New("context length exceeded")),
		chatText("never reached"),
	}}
	c, _ := newTestClient(api)

	_, err := c.complete(context.Background(), "sys", "user", false)
	if err == nil {
		t.Fatal("expected error to propagate")
	}
	if len(api.calls) != 1 {
		t.Fatalf("expected exactly one call, got %d", len(api.calls))
	}
}

func TestCompleteWithBackoff_RetriesRateLimits(t *testing.T) {
	rateLimited := &openai.APIError{HTTPStatusCode: 429, Message: "rate limit exceeded"}
	api := &fakeCompleter{responses: []func(openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error){
		chatErr(rateLimited),
		chatErr(rateLimited),
		chatText("finally"),
	}}
	c, slept := newTestClient(api)

	content, err := c.completeWithBackoff(context.Background(), "primary-model", "sys", "user", false)
	if err != nil {
		t.Fatalf("completeWithBackoff: %v", err)
	}
	if content != "finally" {
		t.Fatalf("expected success after retries, got %q", content)
	}

	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(*slept) != len(want) {
		t.Fatalf("expected sleeps %v, got %v", want, *slept)
	}
	for i := range want {
		if (*slept)[i] != want[i] {
			t.Fatalf("expected sleeps %v, got %v", want, *slept)
		}
	}
}

func TestCompleteWithBackoff_GivesUpAfterMaxAttempts(t *testing.T) {
	rateLimited := &openai.APIError{HTTPStatusCode: 429, Message: "rate limit exceeded"}
	responses := make([]func(openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error), maxRateLimitAttempts)
	for i := range responses {
		responses[i] = chatErr(rateLimited)
	}
	api := &fakeCompleter{responses: responses}
	c, slept := newTestClient(api)

	_, err := c.completeWithBackoff(context.Background(), "primary-model", "sys", "user", false)
	if err == nil {
		t.Fatal("expected rate-limit error after exhausting attempts")
	}
	if len(api.calls) != maxRateLimitAttempts {
		t.Fatalf("expected %d attempts, got %d", maxRateLimitAttempts, len(api.calls))
	}
	if len(*slept) != maxRateLimitAttempts-1 {
		t.Fatalf("expected %d sleeps, got %d", maxRateLimitAttempts-1, len(*slept))
	}
}

func TestBackoffDelay_Capped(t *testing.T) {
	cases := map[int]time.Duration{
		0: 2 * time.Second,
		1: 4 * time.Second,
		2: 8 * time.Second,
		3: 16 * time.Second,
		4: 30 * time.Second, // 32s capped
		9: 30 * time.Second,
	}
	for attempt, want := range cases {
		if got := backoffDelay(attempt); got != want {
			t.Fatalf("attempt %d: expected %s, got %s", attempt, want, got)
		}
	}
}

func TestParseClassification(t *testing.T) {
	tests := []struct {
		name string
		resp string
		want out.Classification
	}{
		{
			name: "well formed",
			resp: `{"category":"Work","priorityScore":85,"needsReply":true,"tags":["meeting"],"summary":"standup moved"}`,
			want: out.Classification{Category: domain.CategoryWork, Priority: 85, NeedsReply: true, Tags: []string{"meeting"}, Summary: "standup moved"},
		},
		{
			name: "code-fenced",
			resp: "```json\n{\"category\":\"Finance\",\"priorityScore\":40,\"needsReply\":false,\"tags\":[]}\n```",
			want: out.Classification{Category: domain.CategoryFinance, Priority: 40, Tags: []string{}},
		},
		{
			name: "unknown category coerces to Other",
			resp: `{"category":"Spam","priorityScore":10,"needsReply":false,"tags":[]}`,
			want: out.Classification{Category: domain.CategoryOther, Priority: 10, Tags: []string{}},
		},
		{
			name: "priority above range clamps to 100",
			resp: `{"category":"Work","priorityScore":250,"needsReply":false,"tags":[]}`,
			want: out.Classification{Category: domain.CategoryWork, Priority: 100, Tags: []string{}},
		},
		{
			name: "negative priority clamps to 0",
			resp: `{"category":"Work","priorityScore":-5,"needsReply":false,"tags":[]}`,
			want: out.Classification{Category: domain.CategoryWork, Priority: 0, Tags: []string{}},
		},
		{
			name: "stringly typed fields coerce",
			resp: `{"category":"Travel","priorityScore":"72","needsReply":"true","tags":["trip",7]}`,
			want: out.Classification{Category: domain.CategoryTravel, Priority: 72, NeedsReply: true, Tags: []string{"trip"}},
		},
		{
			name: "unparsable priority defaults to 50",
			resp: `{"category":"Work","priorityScore":"high","needsReply":false,"tags":[]}`,
			want: out.Classification{Category: domain.CategoryWork, Priority: 50, Tags: []string{}},
		},
		{
			name: "garbage response degrades to defaults",
			resp: "I could not classify this email, sorry.",
			want: out.Classification{Category: domain.CategoryOther, Priority: 50, Tags: []string{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseClassification(tt.resp)
			if got.Category != tt.want.Category {
				t.Fatalf("category: expected %q, got %q", tt.want.Category, got.Category)
			}
			if got.Priority != tt.want.Priority {
				t.Fatalf("priority: expected %d, got %d", tt.want.Priority, got.Priority)
			}
			if got.NeedsReply != tt.want.NeedsReply {
				t.Fatalf("needsReply: expected %v, got %v", tt.want.NeedsReply, got.NeedsReply)
			}
			if len(got.Tags) != len(tt.want.Tags) {
				t.Fatalf("tags: expected %v, got %v", tt.want.Tags, got.Tags)
			}
			for i := range tt.want.Tags {
				if got.Tags[i] != tt.want.Tags[i] {
					t.Fatalf("tags: expected %v, got %v", tt.want.Tags, got.Tags)
				}
			}
			if got.Summary != tt.want.Summary {
				t.Fatalf("summary: expected %q, got %q", tt.want.Summary, got.Summary)
			}
		})
	}
}

func TestGenerateDraft_UsesToneAndLength(t *testing.T) {
	api := &fakeCompleter{responses: []func(openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error){
		chatText("Sounds good, see you then."),
	}}
	c, _ := newTestClient(api)

	msg := &domain.Message{From: "alice@example.com", Subject: "lunch?", Body: "Want to grab lunch Friday?"}
	draft, err := c.GenerateDraft(context.Background(), msg, &out.DraftOptions{
		Tone: domain.ToneCasual, Length: domain.LengthShort, Instruction: "accept the invitation",
	})
	if err != nil {
		t.Fatalf("GenerateDraft: %v", err)
	}
	if draft != "Sounds good, see you then." {
		t.Fatalf("unexpected draft %q", draft)
	}

	sys := strings.ToLower(api.calls[0].Messages[0].Content)
	for _, want := range []string{domain.ToneCasual, domain.LengthShort, "accept the invitation"} {
		if !strings.Contains(sys, strings.ToLower(want)) {
			t.Fatalf("expected system prompt to mention %q, got:\n%s", want, sys)
		}
	}
}
