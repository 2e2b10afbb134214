package llm

import (
	"context"
	"fmt"

	"sync_server/core/domain"
	"sync_server/core/port/out"
)

// GenerateDraft generates a reply body for the given message. The output is
// plain reply text only, no subject line or headers.
func (c *Client) GenerateDraft(ctx context.Context, msg *domain.Message, opts *out.DraftOptions) (string, error) {
	tone := domain.ToneProfessional
	length := domain.LengthMedium
	instruction := ""

	if opts != nil {
		if opts.Tone != "" {
			tone = opts.Tone
		}
		if opts.Length != "" {
			length = opts.Length
		}
		instruction = opts.Instruction
	}

	instructionBlock := ""
	if instruction != "" {
		instructionBlock = fmt.Sprintf("\nAdditional instructions from the user: %s\n", instruction)
	}

	systemPrompt := fmt.Sprintf(`You are an email reply assistant. Generate a reply to the email below.

Tone: %s
Length: %s (Short: 1-2 sentences, Medium: 3-5 sentences, Long: detailed response)
%s
Write a natural, contextually appropriate reply. Do not include a subject line, To/From headers, or a signature.
Only output the reply body.`, tone, length, instructionBlock)

	userPrompt := fmt.Sprintf("Original email from %s:\nSubject: %s\n\n%s\n\nGenerate a reply:",
		msg.From, msg.Subject, truncateBody(msg.Body, 2000))

	return c.complete(ctx, systemPrompt, userPrompt, false)
}

var _ out.LLM = (*Client)(nil)
