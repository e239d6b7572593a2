package provider

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/ensemble-chat/ensemble/internal/model"
)

// OpenAIAdapter speaks the OpenAI chat-completion protocol. It is stateless
// and shared by every persona of this kind; the persona carries the API key,
// endpoint and model.
type OpenAIAdapter struct {
	opts Options
}

// NewOpenAIAdapter creates an OpenAI-compatible adapter.
func NewOpenAIAdapter(opts Options) *OpenAIAdapter {
	return &OpenAIAdapter{opts: opts.withDefaults()}
}

// Kind returns the wire protocol this adapter speaks.
func (a *OpenAIAdapter) Kind() model.ProviderKind {
	return model.ProviderOpenAICompatible
}

// GenerateReply sends the mapped history and returns the completion text.
func (a *OpenAIAdapter) GenerateReply(ctx context.Context, p model.Persona, history []model.Message) (string, error) {
	cfg := openai.DefaultConfig(p.APIKey)
	cfg.BaseURL = strings.TrimRight(p.BaseURL, "/")
	cfg.HTTPClient = a.opts.HTTPClient
	client := openai.NewClientWithConfig(cfg)

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: SystemPrompt(p)},
	}
	for _, turn := range Transcript(p, history) {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    turn.Role,
			Content: turn.Content,
		})
	}

	// The request struct drops a zero temperature on serialization; the
	// smallest positive float stands in for an explicit zero.
	temperature := float32(*a.opts.Temperature)
	if temperature == 0 {
		temperature = math.SmallestNonzeroFloat32
	}

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.ModelID,
		Messages:    messages,
		MaxTokens:   a.opts.MaxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return "", classifyOpenAIError(ctx, err)
	}

	if len(resp.Choices) == 0 {
		return "", &FormatError{Reason: "completion has no choices"}
	}
	return resp.Choices[0].Message.Content, nil
}

func classifyOpenAIError(ctx context.Context, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		status := apiErr.HTTPStatusCode
		if status == 0 {
			status = http.StatusInternalServerError
		}
		return &HTTPError{StatusCode: status, Message: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &HTTPError{StatusCode: reqErr.HTTPStatusCode, Message: reqErr.Error()}
	}
	if transportErr := classifyTransport(ctx, err); transportErr != nil {
		return transportErr
	}
	return &FormatError{Reason: err.Error()}
}
