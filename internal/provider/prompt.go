package provider

import (
	"fmt"
	"strings"

	"github.com/ensemble-chat/ensemble/internal/model"
)

// Chat-completion APIs know only two conversational roles. A persona's own
// prior replies map to the assistant role; everything else, including other
// personas' replies, is folded into the user role with a speaker tag so each
// persona sees the same conversation, differing only in which turns are
// attributed to "self".
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one provider-neutral conversation turn after role mapping.
type Turn struct {
	Role    string
	Content string
}

// PassToken is the reply a persona gives when it has nothing to add. Replies
// consisting solely of this token are suppressed rather than posted.
const PassToken = "PASS"

// IsPass reports whether a reply should be suppressed.
func IsPass(reply string) bool {
	return strings.EqualFold(strings.TrimSpace(reply), PassToken)
}

// SpeakerTag renders the tag prepended to messages folded into the user role.
func SpeakerTag(msg model.Message) string {
	if msg.Speaker == model.SpeakerPersona {
		return fmt.Sprintf("AI [%s]", msg.Sender)
	}
	return fmt.Sprintf("Human [%s]", msg.Sender)
}

// Transcript maps the chat history into the two-role vocabulary for the given
// persona. Consecutive turns with the same role are merged, since some
// providers reject same-role runs.
func Transcript(p model.Persona, history []model.Message) []Turn {
	var turns []Turn
	for _, msg := range history {
		var turn Turn
		if msg.FromPersona(p.Name) {
			turn = Turn{Role: RoleAssistant, Content: msg.Content}
		} else {
			turn = Turn{Role: RoleUser, Content: fmt.Sprintf("%s: %s", SpeakerTag(msg), msg.Content)}
		}
		if n := len(turns); n > 0 && turns[n-1].Role == turn.Role {
			turns[n-1].Content += "\n" + turn.Content
			continue
		}
		turns = append(turns, turn)
	}
	return turns
}

const preambleFormat = `You are %[1]s, one participant in a group chat with one or more humans and one or more other AIs.
Messages from humans appear as "Human [Name]: ...", messages from other AIs as "AI [Name]: ...".
These tags are added by the chat system; you must never start your own messages with "AI [%[1]s]".

Work with the other AIs to help the humans in the chat; you may respond to the
humans or to the other AIs as appropriate. When you respond to someone, make it
clear who you are addressing, using their name without the tag.

If you have nothing useful to add, reply with exactly "PASS" and nothing else.
Keep your response under 1024 tokens.`

// SystemPrompt composes the multi-party chat preamble with the persona's
// configured prompt.
func SystemPrompt(p model.Persona) string {
	preamble := fmt.Sprintf(preambleFormat, p.Name)
	if p.SystemPrompt == "" {
		return preamble
	}
	return preamble + "\n\n" + p.SystemPrompt
}
