// Package model defines data structures for the group chat orchestrator.
package model

// ProviderKind selects the wire protocol used to reach a persona's backend.
type ProviderKind string

const (
	ProviderOpenAICompatible    ProviderKind = "openai_compatible"
	ProviderAnthropicCompatible ProviderKind = "anthropic_compatible"
)

// Valid reports whether the kind is one of the supported protocols.
func (k ProviderKind) Valid() bool {
	return k == ProviderOpenAICompatible || k == ProviderAnthropicCompatible
}

// Persona is a configured AI participant. Personas are built once at startup
// and never mutated afterwards.
type Persona struct {
	Name         string       `json:"name"`
	Kind         ProviderKind `json:"provider_kind"`
	ModelID      string       `json:"model_id"`
	APIKey       string       `json:"-"`
	BaseURL      string       `json:"base_url"`
	SystemPrompt string       `json:"system_prompt"`
}
