// Package store provides the in-memory per-chat conversation state.
package store

import (
	"sync"

	"github.com/ensemble-chat/ensemble/internal/model"
)

// DefaultRetention is the default number of messages kept per chat.
const DefaultRetention = 200

// conversation holds the mutable state for one chat.
type conversation struct {
	history    []model.Message
	authorized bool
	nextSeq    uint64
}

// ConversationStore owns all conversation state. Histories are bounded to the
// retention limit; the oldest entries are evicted first. Safe for concurrent
// use across chats.
type ConversationStore struct {
	retention int

	mu    sync.RWMutex
	chats map[string]*conversation
}

// New creates a store with the given per-chat retention bound. A retention
// of zero or less falls back to DefaultRetention.
func New(retention int) *ConversationStore {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &ConversationStore{
		retention: retention,
		chats:     make(map[string]*conversation),
	}
}

// Append inserts a message at the tail of the chat's history, creating the
// conversation on first use. Once the history exceeds the retention bound the
// oldest message is evicted. The assigned per-chat sequence is returned.
func (s *ConversationStore) Append(chatID string, msg model.Message) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.conversation(chatID)
	conv.nextSeq++
	msg.Seq = conv.nextSeq
	conv.history = append(conv.history, msg)
	if len(conv.history) > s.retention {
		overflow := len(conv.history) - s.retention
		conv.history = append(conv.history[:0:0], conv.history[overflow:]...)
	}
	return msg.Seq
}

// History returns a copy of the chat's ordered message history. An unseen
// chat yields an empty slice. Reading never mutates state.
func (s *ConversationStore) History(chatID string) []model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.chats[chatID]
	if !ok {
		return nil
	}
	out := make([]model.Message, len(conv.history))
	copy(out, conv.history)
	return out
}

// Len returns the number of messages currently retained for the chat.
func (s *ConversationStore) Len(chatID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.chats[chatID]
	if !ok {
		return 0
	}
	return len(conv.history)
}

// IsAuthorized reports whether the chat has passed the activation gate.
func (s *ConversationStore) IsAuthorized(chatID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.chats[chatID]
	return ok && conv.authorized
}

// SetAuthorized marks the chat as authorized (or revokes it). This is the
// only mutation path for the authorization flag; it is invoked by the
// activation gate after a successful secret check.
func (s *ConversationStore) SetAuthorized(chatID string, authorized bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conversation(chatID).authorized = authorized
}

// conversation returns the chat's state, creating it if needed.
// Callers must hold the write lock.
func (s *ConversationStore) conversation(chatID string) *conversation {
	conv, ok := s.chats[chatID]
	if !ok {
		conv = &conversation{}
		s.chats[chatID] = conv
	}
	return conv
}
