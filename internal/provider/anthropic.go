package provider

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ensemble-chat/ensemble/internal/model"
)

// AnthropicAdapter speaks the Anthropic messages protocol. Like the OpenAI
// adapter it is stateless; persona configuration travels with each call.
type AnthropicAdapter struct {
	opts Options
}

// NewAnthropicAdapter creates an Anthropic-compatible adapter.
func NewAnthropicAdapter(opts Options) *AnthropicAdapter {
	return &AnthropicAdapter{opts: opts.withDefaults()}
}

// Kind returns the wire protocol this adapter speaks.
func (a *AnthropicAdapter) Kind() model.ProviderKind {
	return model.ProviderAnthropicCompatible
}

// GenerateReply sends the mapped history and returns the completion text.
func (a *AnthropicAdapter) GenerateReply(ctx context.Context, p model.Persona, history []model.Message) (string, error) {
	client := anthropic.NewClient(
		option.WithAPIKey(p.APIKey),
		option.WithBaseURL(strings.TrimRight(p.BaseURL, "/")+"/"),
		option.WithHTTPClient(a.opts.HTTPClient),
		option.WithMaxRetries(0),
	)

	turns := Transcript(p, history)
	// The messages API requires the conversation to open with a user turn.
	// History eviction can leave the persona's own reply at the head.
	if len(turns) > 0 && turns[0].Role == RoleAssistant {
		turns = append([]Turn{{Role: RoleUser, Content: "(earlier conversation truncated)"}}, turns...)
	}

	messages := make([]anthropic.MessageParam, len(turns))
	for i, turn := range turns {
		role := anthropic.MessageParamRoleUser
		if turn.Role == RoleAssistant {
			role = anthropic.MessageParamRoleAssistant
		}
		messages[i] = anthropic.MessageParam{
			Role: anthropic.F(role),
			Content: anthropic.F([]anthropic.ContentBlockParamUnion{
				anthropic.TextBlockParam{
					Type: anthropic.F(anthropic.TextBlockParamTypeText),
					Text: anthropic.F(turn.Content),
				},
			}),
		}
	}

	resp, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.F(p.ModelID),
		MaxTokens: anthropic.F(int64(a.opts.MaxTokens)),
		System: anthropic.F([]anthropic.TextBlockParam{
			{
				Type: anthropic.F(anthropic.TextBlockParamTypeText),
				Text: anthropic.F(SystemPrompt(p)),
			},
		}),
		Messages:    anthropic.F(messages),
		Temperature: anthropic.F(*a.opts.Temperature),
	})
	if err != nil {
		return "", classifyAnthropicError(ctx, err)
	}

	var content strings.Builder
	for _, block := range resp.Content {
		if block.Type == anthropic.ContentBlockTypeText {
			content.WriteString(block.Text)
		}
	}
	if content.Len() == 0 {
		// An empty completion means the persona had nothing to say.
		return PassToken, nil
	}
	return content.String(), nil
}

func classifyAnthropicError(ctx context.Context, err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &HTTPError{StatusCode: apiErr.StatusCode, Message: apiErr.Error()}
	}
	if transportErr := classifyTransport(ctx, err); transportErr != nil {
		return transportErr
	}
	return &FormatError{Reason: err.Error()}
}
