package model

import (
	"time"
)

// InboundEvent is a message received from the messaging platform connector.
type InboundEvent struct {
	ChatID    string    `json:"chat_id"`
	SenderID  string    `json:"sender_id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// OutboundEvent is a reply to be delivered back into the chat.
type OutboundEvent struct {
	ChatID      string `json:"chat_id"`
	PersonaName string `json:"persona_name"`
	Text        string `json:"text"`
}
