// Package turn decides which personas respond to an incoming message.
package turn

import (
	"strings"
	"unicode"

	"github.com/ensemble-chat/ensemble/internal/model"
	"github.com/ensemble-chat/ensemble/internal/persona"
)

// Selector implements the turn-taking policy:
//
//   - only human-authored messages trigger a response round, so persona
//     replies can never recursively trigger each other;
//   - by default every persona responds, in registry order;
//   - a message starting with @name addresses a single persona
//     (case-insensitive); an @token matching no persona falls back to the
//     default all-personas policy.
//
// Selection is deterministic: the same message and registry always produce
// the same ordered list.
type Selector struct {
	registry *persona.Registry
}

// NewSelector creates a selector over the configured personas.
func NewSelector(registry *persona.Registry) *Selector {
	return &Selector{registry: registry}
}

// Select returns the ordered personas that should respond to msg.
func (s *Selector) Select(msg model.Message) []model.Persona {
	if msg.Speaker != model.SpeakerHuman {
		return nil
	}

	if name, ok := addressedPersona(msg.Content); ok {
		if p, err := s.registry.Get(name); err == nil {
			return []model.Persona{p}
		}
		// Unknown @token: treat as ordinary text rather than silently
		// dropping the round.
	}

	return s.registry.All()
}

// addressedPersona extracts a leading @name token from the message text.
func addressedPersona(text string) (string, bool) {
	trimmed := strings.TrimLeftFunc(text, unicode.IsSpace)
	if !strings.HasPrefix(trimmed, "@") {
		return "", false
	}
	token := trimmed[1:]
	if i := strings.IndexFunc(token, func(r rune) bool {
		return unicode.IsSpace(r) || r == ':' || r == ','
	}); i >= 0 {
		token = token[:i]
	}
	if token == "" {
		return "", false
	}
	return token, true
}
