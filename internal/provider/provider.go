// Package provider translates conversation history into vendor chat-completion
// calls and back. Adapters are stateless; all per-persona settings travel in
// the Persona passed to each call.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/ensemble-chat/ensemble/internal/model"
)

// Adapter generates one reply for a persona given the chat history.
type Adapter interface {
	// GenerateReply issues a single completion request. The returned text is
	// the persona's reply; callers own retry and timeout policy via ctx.
	GenerateReply(ctx context.Context, p model.Persona, history []model.Message) (string, error)

	// Kind returns the wire protocol this adapter speaks.
	Kind() model.ProviderKind
}

// Options tunes the generation parameters shared by all adapters. A nil
// Temperature means the default; an explicit zero requests greedy decoding.
type Options struct {
	Temperature *float64
	MaxTokens   int
	HTTPClient  *http.Client
}

func (o Options) withDefaults() Options {
	if o.Temperature == nil {
		t := 0.7
		o.Temperature = &t
	}
	if o.MaxTokens == 0 {
		o.MaxTokens = 1024
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{}
	}
	return o
}

// New creates an adapter for the given provider kind.
func New(kind model.ProviderKind, opts Options) (Adapter, error) {
	switch kind {
	case model.ProviderOpenAICompatible:
		return NewOpenAIAdapter(opts), nil
	case model.ProviderAnthropicCompatible:
		return NewAnthropicAdapter(opts), nil
	default:
		return nil, fmt.Errorf("unknown provider kind %q", kind)
	}
}

// TimeoutError reports that a provider call exceeded its deadline.
type TimeoutError struct {
	Err error
}

func (e *TimeoutError) Error() string { return fmt.Sprintf("provider timeout: %v", e.Err) }
func (e *TimeoutError) Unwrap() error { return e.Err }

// TransportError reports a network-level failure before any HTTP response.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("provider unreachable: %v", e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// HTTPError reports a non-2xx response from the provider.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("provider returned HTTP %d: %s", e.StatusCode, e.Message)
}

// RateLimited reports whether the provider rejected the call for quota or
// rate-limit reasons.
func (e *HTTPError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// FormatError reports a response body that did not match the vendor contract.
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string { return "malformed provider response: " + e.Reason }

// Retryable reports whether a failed call is worth retrying: timeouts,
// transport failures, rate limits and provider-side 5xx errors.
func Retryable(err error) bool {
	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return true
	}
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return true
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.RateLimited() || httpErr.StatusCode >= http.StatusInternalServerError
	}
	return false
}

// classifyTransport maps SDK transport failures onto the provider error
// types. Returns nil when err is not a transport-level failure.
func classifyTransport(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &TimeoutError{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return &TimeoutError{Err: err}
		}
		return &TransportError{Err: err}
	}
	return nil
}
