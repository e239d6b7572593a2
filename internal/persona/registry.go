// Package persona holds the process-wide registry of configured AI personas.
package persona

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ensemble-chat/ensemble/internal/model"
)

var (
	// ErrNotFound is returned when no persona with the requested name exists.
	ErrNotFound = errors.New("persona not found")

	// ErrInvalidConfig is returned when the persona configuration is
	// malformed. It prevents startup.
	ErrInvalidConfig = errors.New("invalid persona configuration")
)

// Registry is the fixed, ordered set of configured personas. It is built once
// at startup and is safe for concurrent reads without locking.
type Registry struct {
	personas []model.Persona
	byName   map[string]model.Persona
}

// NewRegistry validates the configured personas and builds the registry.
// Configuration order is preserved; it determines default response order.
func NewRegistry(personas []model.Persona) (*Registry, error) {
	if len(personas) == 0 {
		return nil, fmt.Errorf("%w: at least one persona is required", ErrInvalidConfig)
	}

	byName := make(map[string]model.Persona, len(personas))
	for _, p := range personas {
		if p.Name == "" {
			return nil, fmt.Errorf("%w: persona with empty name", ErrInvalidConfig)
		}
		if !p.Kind.Valid() {
			return nil, fmt.Errorf("%w: persona %q has unknown provider kind %q", ErrInvalidConfig, p.Name, p.Kind)
		}
		if p.ModelID == "" {
			return nil, fmt.Errorf("%w: persona %q is missing model_id", ErrInvalidConfig, p.Name)
		}
		if p.APIKey == "" {
			return nil, fmt.Errorf("%w: persona %q is missing an API key", ErrInvalidConfig, p.Name)
		}
		if p.BaseURL == "" {
			return nil, fmt.Errorf("%w: persona %q is missing base_url", ErrInvalidConfig, p.Name)
		}
		key := strings.ToLower(p.Name)
		if _, dup := byName[key]; dup {
			return nil, fmt.Errorf("%w: duplicate persona name %q", ErrInvalidConfig, p.Name)
		}
		byName[key] = p
	}

	return &Registry{
		personas: append([]model.Persona(nil), personas...),
		byName:   byName,
	}, nil
}

// All returns the configured personas in configuration order.
func (r *Registry) All() []model.Persona {
	out := make([]model.Persona, len(r.personas))
	copy(out, r.personas)
	return out
}

// Get looks up a persona by name, case-insensitively.
func (r *Registry) Get(name string) (model.Persona, error) {
	p, ok := r.byName[strings.ToLower(name)]
	if !ok {
		return model.Persona{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return p, nil
}

// Has reports whether a persona with the given name is configured.
func (r *Registry) Has(name string) bool {
	_, ok := r.byName[strings.ToLower(name)]
	return ok
}

// Len returns the number of configured personas.
func (r *Registry) Len() int {
	return len(r.personas)
}
