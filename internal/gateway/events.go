// Package gateway is the HTTP boundary between platform connectors and the
// orchestrator. Connectors post inbound chat messages and receive the round's
// replies; delivery also fans out over NATS for subscribed connectors.
package gateway

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ensemble-chat/ensemble/internal/model"
	"github.com/ensemble-chat/ensemble/internal/orchestrator"
	"github.com/ensemble-chat/ensemble/internal/store"
	"github.com/ensemble-chat/ensemble/pkg/logger"
)

// activationCommand is the platform command that carries the shared secret.
const activationCommand = "/start"

// EventHandler handles inbound message events.
type EventHandler struct {
	orch   *orchestrator.Orchestrator
	store  *store.ConversationStore
	secret string
	log    *logger.Logger
}

// NewEventHandler creates the inbound event handler. secret is the shared
// activation secret; when empty, no chat can ever be activated.
func NewEventHandler(orch *orchestrator.Orchestrator, st *store.ConversationStore, secret string, log *logger.Logger) *EventHandler {
	return &EventHandler{
		orch:   orch,
		store:  st,
		secret: secret,
		log:    log,
	}
}

// inboundResponse is the reply envelope for a posted event.
type inboundResponse struct {
	Replies []model.OutboundEvent `json:"replies"`
}

// HandleInbound handles POST /v1/events.
func (h *EventHandler) HandleInbound(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var ev model.InboundEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validateChatID(ev.ChatID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validateText(ev.Text); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	if isActivationCommand(ev.Text) {
		writeJSON(w, http.StatusOK, inboundResponse{Replies: h.activate(ev)})
		return
	}

	replies, err := h.orch.HandleIncoming(r.Context(), ev)
	if err != nil {
		if errors.Is(err, orchestrator.ErrUnauthorizedChat) {
			writeJSON(w, http.StatusOK, inboundResponse{Replies: []model.OutboundEvent{notice(ev.ChatID,
				"This chat is not activated. Use /start with the secret key to begin.")}})
			return
		}
		h.log.WithChat(ev.ChatID).Error("round processing failed")
		writeError(w, http.StatusInternalServerError, "failed to process message")
		return
	}
	if replies == nil {
		replies = []model.OutboundEvent{}
	}

	writeJSON(w, http.StatusOK, inboundResponse{Replies: replies})
}

// activate validates the shared secret carried by an activation command.
// Activation never reaches the orchestrator or any provider.
func (h *EventHandler) activate(ev model.InboundEvent) []model.OutboundEvent {
	if h.store.IsAuthorized(ev.ChatID) {
		return []model.OutboundEvent{notice(ev.ChatID, "This chat is already activated.")}
	}

	fields := strings.Fields(ev.Text)
	if h.secret == "" || len(fields) != 2 ||
		subtle.ConstantTimeCompare([]byte(fields[1]), []byte(h.secret)) != 1 {
		h.log.WithChat(ev.ChatID).Warn("activation rejected")
		return []model.OutboundEvent{notice(ev.ChatID, "Unauthorized. Please provide the correct secret key.")}
	}

	h.store.SetAuthorized(ev.ChatID, true)
	h.log.WithChat(ev.ChatID).Info("chat activated")
	return []model.OutboundEvent{notice(ev.ChatID, "Chat activated. The personas are listening.")}
}

// isActivationCommand reports whether the message's first token is exactly
// the activation command. "/startup plans?" is ordinary text.
func isActivationCommand(text string) bool {
	fields := strings.Fields(text)
	return len(fields) > 0 && fields[0] == activationCommand
}

// notice builds a system outbound event not attributed to any persona.
func notice(chatID, text string) model.OutboundEvent {
	return model.OutboundEvent{ChatID: chatID, Text: text}
}
