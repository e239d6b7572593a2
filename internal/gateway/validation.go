package gateway

import (
	"errors"
	"unicode/utf8"
)

// maxBodyBytes bounds an inbound event request body.
const maxBodyBytes = 128 * 1024

// maxTextLength bounds the message text forwarded into provider prompts.
const maxTextLength = 100000 // ~100KB limit

// validateText validates inbound message text.
func validateText(text string) error {
	if len(text) == 0 {
		return errors.New("text cannot be empty")
	}
	if len(text) > maxTextLength {
		return errors.New("text exceeds maximum length")
	}
	if !utf8.ValidString(text) {
		return errors.New("text must be valid UTF-8")
	}
	return nil
}

// validateChatID validates a platform chat identifier.
func validateChatID(id string) error {
	if len(id) == 0 {
		return errors.New("chat_id cannot be empty")
	}
	if len(id) > 64 {
		return errors.New("chat_id exceeds maximum length")
	}
	return nil
}
