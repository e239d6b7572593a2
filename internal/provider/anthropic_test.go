package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ensemble-chat/ensemble/internal/model"
)

const anthropicCompletion = `{
	"id": "msg_1",
	"type": "message",
	"role": "assistant",
	"model": "claude-3-5-sonnet-20241022",
	"content": [{"type": "text", "text": "greetings"}],
	"stop_reason": "end_turn",
	"usage": {"input_tokens": 10, "output_tokens": 5}
}`

type anthropicRequest struct {
	Model  string `json:"model"`
	System []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"system"`
	Messages []struct {
		Role    string `json:"role"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"messages"`
	MaxTokens   int      `json:"max_tokens"`
	Temperature *float64 `json:"temperature"`
}

func anthropicPersona(baseURL string) model.Persona {
	return model.Persona{
		Name:    "Grace",
		Kind:    model.ProviderAnthropicCompatible,
		ModelID: "claude-3-5-sonnet-20241022",
		APIKey:  "sk-ant-test",
		BaseURL: baseURL,
	}
}

func TestAnthropicGenerateReply(t *testing.T) {
	t.Parallel()

	var gotKey string
	var gotReq anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-Api-Key")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(anthropicCompletion))
	}))
	defer srv.Close()

	adapter := NewAnthropicAdapter(Options{})
	history := []model.Message{
		model.HumanMessage("c", "Alice", "hello", time.Now()),
		model.PersonaMessage("c", "Grace", "hi Alice", time.Now()),
		model.HumanMessage("c", "Alice", "and again", time.Now()),
	}

	reply, err := adapter.GenerateReply(context.Background(), anthropicPersona(srv.URL), history)
	require.NoError(t, err)
	assert.Equal(t, "greetings", reply)

	assert.Equal(t, "sk-ant-test", gotKey)
	assert.Equal(t, "claude-3-5-sonnet-20241022", gotReq.Model)
	assert.Equal(t, 1024, gotReq.MaxTokens)
	require.NotEmpty(t, gotReq.System)
	assert.Contains(t, gotReq.System[0].Text, "You are Grace")

	require.Len(t, gotReq.Messages, 3)
	assert.Equal(t, "user", gotReq.Messages[0].Role)
	assert.Equal(t, "Human [Alice]: hello", gotReq.Messages[0].Content[0].Text)
	assert.Equal(t, "assistant", gotReq.Messages[1].Role)
	assert.Equal(t, "hi Alice", gotReq.Messages[1].Content[0].Text)
	assert.Equal(t, "user", gotReq.Messages[2].Role)
}

func TestAnthropicLeadingAssistantTurnGetsUserPreamble(t *testing.T) {
	t.Parallel()

	var gotReq anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(anthropicCompletion))
	}))
	defer srv.Close()

	// Eviction can leave the persona's own reply first in history.
	history := []model.Message{
		model.PersonaMessage("c", "Grace", "my old reply", time.Now()),
		model.HumanMessage("c", "Alice", "hello again", time.Now()),
	}

	adapter := NewAnthropicAdapter(Options{})
	_, err := adapter.GenerateReply(context.Background(), anthropicPersona(srv.URL), history)
	require.NoError(t, err)

	require.Len(t, gotReq.Messages, 3)
	assert.Equal(t, "user", gotReq.Messages[0].Role)
	assert.Equal(t, "assistant", gotReq.Messages[1].Role)
	assert.Equal(t, "user", gotReq.Messages[2].Role)
}

func TestAnthropicZeroTemperatureIsSent(t *testing.T) {
	t.Parallel()

	var gotReq anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(anthropicCompletion))
	}))
	defer srv.Close()

	zero := 0.0
	adapter := NewAnthropicAdapter(Options{Temperature: &zero})
	_, err := adapter.GenerateReply(context.Background(), anthropicPersona(srv.URL), nil)
	require.NoError(t, err)

	require.NotNil(t, gotReq.Temperature)
	assert.Zero(t, *gotReq.Temperature)
}

func TestAnthropicEmptyContentIsPass(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-3-5-sonnet-20241022", "content": [], "stop_reason": "end_turn", "usage": {"input_tokens": 1, "output_tokens": 0}}`))
	}))
	defer srv.Close()

	adapter := NewAnthropicAdapter(Options{})
	reply, err := adapter.GenerateReply(context.Background(), anthropicPersona(srv.URL), nil)
	require.NoError(t, err)
	assert.True(t, IsPass(reply))
}

func TestAnthropicRateLimitError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"type": "error", "error": {"type": "rate_limit_error", "message": "slow down"}}`))
	}))
	defer srv.Close()

	adapter := NewAnthropicAdapter(Options{})
	_, err := adapter.GenerateReply(context.Background(), anthropicPersona(srv.URL), nil)

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusTooManyRequests, httpErr.StatusCode)
	assert.True(t, httpErr.RateLimited())
	assert.True(t, Retryable(err))
}

func TestAnthropicTimeout(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	adapter := NewAnthropicAdapter(Options{})
	_, err := adapter.GenerateReply(ctx, anthropicPersona(srv.URL), nil)

	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.True(t, Retryable(err))
}
