// Package orchestrator coordinates response rounds for incoming chat messages.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/ensemble-chat/ensemble/internal/model"
	"github.com/ensemble-chat/ensemble/internal/provider"
	"github.com/ensemble-chat/ensemble/internal/store"
	"github.com/ensemble-chat/ensemble/internal/turn"
	"github.com/ensemble-chat/ensemble/pkg/logger"
	"github.com/ensemble-chat/ensemble/pkg/metrics"
	"github.com/ensemble-chat/ensemble/pkg/tracing"
)

// ErrUnauthorizedChat is returned when a chat has not passed the activation
// gate. Nothing is appended to history and no provider is called.
var ErrUnauthorizedChat = errors.New("chat is not authorized")

// Config tunes round processing.
type Config struct {
	// CallTimeout bounds each provider call, retries included.
	CallTimeout time.Duration

	// MaxRetries is the number of additional attempts for retryable provider
	// failures within the call timeout.
	MaxRetries uint64

	// FailureNotices, when true, emits a short notice attributed to a failed
	// persona instead of omitting it from the round.
	FailureNotices bool
}

func (c Config) withDefaults() Config {
	if c.CallTimeout <= 0 {
		c.CallTimeout = 60 * time.Second
	}
	return c
}

// Publisher receives conversation turns and outbound replies as they are
// produced, for archiving and delivery. Implementations must tolerate being
// called from concurrent rounds of different chats.
type Publisher interface {
	ArchiveMessage(ctx context.Context, msg model.Message) (uint64, error)
	PublishReply(ctx context.Context, ev model.OutboundEvent) error
}

// Orchestrator owns round processing: it updates conversation state, asks the
// selector who responds, and drives the providers in order. Rounds for
// different chats run concurrently; rounds for the same chat are serialized.
type Orchestrator struct {
	store    *store.ConversationStore
	selector *turn.Selector
	adapters map[model.ProviderKind]provider.Adapter
	pub      Publisher
	cfg      Config
	log      *logger.Logger

	mu        sync.Mutex
	chatLocks map[string]*sync.Mutex
}

// New creates an orchestrator. The adapters map must cover every provider
// kind used by the registry backing the selector. pub may be nil when no
// archive or delivery bus is attached.
func New(
	st *store.ConversationStore,
	selector *turn.Selector,
	adapters map[model.ProviderKind]provider.Adapter,
	pub Publisher,
	cfg Config,
	log *logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		store:     st,
		selector:  selector,
		adapters:  adapters,
		pub:       pub,
		cfg:       cfg.withDefaults(),
		log:       log,
		chatLocks: make(map[string]*sync.Mutex),
	}
}

// HandleIncoming processes one inbound human message and returns the ordered
// persona replies for the caller to deliver. Later personas in the round see
// earlier personas' fresh replies, so calls are strictly sequential. A failed
// persona never aborts the round for the others.
func (o *Orchestrator) HandleIncoming(ctx context.Context, ev model.InboundEvent) ([]model.OutboundEvent, error) {
	lock := o.chatLock(ev.ChatID)
	lock.Lock()
	defer lock.Unlock()

	log := o.log.WithChat(ev.ChatID)

	if !o.store.IsAuthorized(ev.ChatID) {
		log.Warn("dropping message from unauthorized chat")
		metrics.RoundsTotal.WithLabelValues("unauthorized").Inc()
		return nil, ErrUnauthorizedChat
	}

	ctx, span := tracing.Tracer().Start(ctx, "round")
	defer span.End()
	span.SetAttributes(attribute.String("chat.id", ev.ChatID))

	human := model.HumanMessage(ev.ChatID, ev.SenderID, ev.Text, ev.Timestamp)
	human.ID = uuid.Must(uuid.NewV7()).String()
	o.append(ctx, human)

	selected := o.selector.Select(human)
	span.SetAttributes(attribute.Int("round.personas", len(selected)))

	var replies []model.OutboundEvent
	failures := 0
	for _, p := range selected {
		reply, err := o.generate(ctx, ev.ChatID, p)
		if err != nil {
			failures++
			log.Warn("persona call failed",
				zap.String("persona", p.Name),
				zap.Error(err),
			)
			if o.cfg.FailureNotices {
				notice := model.OutboundEvent{
					ChatID:      ev.ChatID,
					PersonaName: p.Name,
					Text:        fmt.Sprintf("(%s is unavailable right now)", p.Name),
				}
				if o.pub != nil {
					if err := o.pub.PublishReply(ctx, notice); err != nil {
						log.Warn("notice delivery failed", zap.String("persona", p.Name), zap.Error(err))
					}
				}
				replies = append(replies, notice)
			}
			continue
		}

		if provider.IsPass(reply) {
			metrics.RepliesSuppressed.WithLabelValues(p.Name).Inc()
			log.Debug("persona passed", zap.String("persona", p.Name))
			continue
		}

		msg := model.PersonaMessage(ev.ChatID, p.Name, reply, time.Now())
		msg.ID = uuid.Must(uuid.NewV7()).String()
		o.append(ctx, msg)

		out := model.OutboundEvent{
			ChatID:      ev.ChatID,
			PersonaName: p.Name,
			Text:        reply,
		}
		if o.pub != nil {
			if err := o.pub.PublishReply(ctx, out); err != nil {
				log.Warn("reply delivery failed", zap.String("persona", p.Name), zap.Error(err))
			}
		}
		replies = append(replies, out)
	}

	outcome := "ok"
	switch {
	case failures == len(selected) && len(selected) > 0:
		outcome = "failed"
		span.SetStatus(codes.Error, "all personas failed")
	case failures > 0:
		outcome = "partial"
	}
	metrics.RoundsTotal.WithLabelValues(outcome).Inc()

	return replies, nil
}

// generate runs one provider call with timeout and bounded retries. Only
// transient failures (timeouts, transport errors, rate limits, 5xx) are
// retried; everything else fails the persona immediately.
func (o *Orchestrator) generate(ctx context.Context, chatID string, p model.Persona) (string, error) {
	adapter, ok := o.adapters[p.Kind]
	if !ok {
		return "", fmt.Errorf("no adapter for provider kind %q", p.Kind)
	}

	callCtx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
	defer cancel()

	callCtx, span := tracing.Tracer().Start(callCtx, "persona.generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("persona.name", p.Name),
		attribute.String("persona.kind", string(p.Kind)),
	)

	start := time.Now()
	var reply string
	operation := func() error {
		var err error
		reply, err = adapter.GenerateReply(callCtx, p, o.store.History(chatID))
		if err != nil {
			if provider.Retryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), o.cfg.MaxRetries),
		callCtx,
	)
	err := backoff.Retry(operation, policy)

	elapsed := time.Since(start).Seconds()
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		metrics.RecordProviderCall(p.Name, string(p.Kind), "error", elapsed)
		return "", err
	}
	metrics.RecordProviderCall(p.Name, string(p.Kind), "success", elapsed)
	return reply, nil
}

// append writes a message to the store, archives it, and keeps gauges
// current. Archive failures are logged, never fatal: the in-memory store
// stays authoritative for round context.
func (o *Orchestrator) append(ctx context.Context, msg model.Message) {
	msg.Seq = o.store.Append(msg.ChatID, msg)
	metrics.MessagesTotal.WithLabelValues(string(msg.Speaker)).Inc()
	metrics.HistoryLength.Observe(float64(o.store.Len(msg.ChatID)))

	if o.pub != nil {
		if _, err := o.pub.ArchiveMessage(ctx, msg); err != nil {
			o.log.WithChat(msg.ChatID).Warn("transcript archive failed", zap.Error(err))
		}
	}
}

// chatLock returns the mutex serializing rounds for one chat.
func (o *Orchestrator) chatLock(chatID string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()

	lock, ok := o.chatLocks[chatID]
	if !ok {
		lock = &sync.Mutex{}
		o.chatLocks[chatID] = lock
	}
	return lock
}
