package model

import (
	"time"
)

// Speaker identifies who authored a message.
type Speaker string

const (
	SpeakerHuman   Speaker = "human"
	SpeakerPersona Speaker = "persona"
)

// Message represents one turn in a chat's conversation history.
type Message struct {
	// Identity
	ID     string `json:"id"`
	ChatID string `json:"chat_id"`

	// Content
	Speaker Speaker `json:"speaker"`
	Sender  string  `json:"sender"` // platform user ID or persona name
	Content string  `json:"content"`

	Timestamp time.Time `json:"timestamp"`

	// Seq is the per-chat insertion sequence, assigned by the store.
	Seq uint64 `json:"seq,omitempty"`
}

// FromPersona reports whether the message was authored by the named persona.
func (m Message) FromPersona(name string) bool {
	return m.Speaker == SpeakerPersona && m.Sender == name
}

// HumanMessage builds a message authored by a platform user.
func HumanMessage(chatID, senderID, content string, ts time.Time) Message {
	return Message{
		ChatID:    chatID,
		Speaker:   SpeakerHuman,
		Sender:    senderID,
		Content:   content,
		Timestamp: ts,
	}
}

// PersonaMessage builds a message authored by a persona.
func PersonaMessage(chatID, personaName, content string, ts time.Time) Message {
	return Message{
		ChatID:    chatID,
		Speaker:   SpeakerPersona,
		Sender:    personaName,
		Content:   content,
		Timestamp: ts,
	}
}
