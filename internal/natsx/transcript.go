package natsx

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/ensemble-chat/ensemble/internal/model"
)

const (
	// StreamName is the name of the transcript archive stream.
	StreamName = "TRANSCRIPTS"

	// SubjectPrefix is the prefix for all chat subjects.
	SubjectPrefix = "chat"
)

// Transcripts archives every conversation turn durably and carries outbound
// replies to platform connectors. The in-memory store stays authoritative for
// round context; the stream is the audit trail and delivery bus.
type Transcripts struct {
	client *Client
}

// NewTranscripts creates a transcript manager over an established client.
func NewTranscripts(client *Client) *Transcripts {
	return &Transcripts{client: client}
}

// EnsureStream ensures the transcript stream exists.
func (t *Transcripts) EnsureStream(ctx context.Context) error {
	js := t.client.JetStream()

	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      90 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Description: "Group chat transcripts and outbound replies",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// MessageSubject returns the archive subject for a conversation turn.
func MessageSubject(chatID string, speaker model.Speaker) string {
	return fmt.Sprintf("%s.%s.msg.%s", SubjectPrefix, chatID, speaker)
}

// OutboundSubject returns the delivery subject connectors subscribe to.
func OutboundSubject(chatID string) string {
	return fmt.Sprintf("%s.%s.out", SubjectPrefix, chatID)
}

// ArchiveMessage appends a conversation turn to the transcript stream.
func (t *Transcripts) ArchiveMessage(ctx context.Context, msg model.Message) (uint64, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal message: %w", err)
	}

	ack, err := t.client.JetStream().Publish(ctx, MessageSubject(msg.ChatID, msg.Speaker), data)
	if err != nil {
		return 0, fmt.Errorf("failed to publish message: %w", err)
	}

	return ack.Sequence, nil
}

// PublishReply delivers an outbound reply to the chat's connector subject.
// Delivery uses core NATS: a connector that is offline picks the reply up
// from the archive instead.
func (t *Transcripts) PublishReply(ctx context.Context, ev model.OutboundEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal outbound event: %w", err)
	}

	if err := t.client.Conn().Publish(OutboundSubject(ev.ChatID), data); err != nil {
		return fmt.Errorf("failed to publish reply: %w", err)
	}
	return nil
}
