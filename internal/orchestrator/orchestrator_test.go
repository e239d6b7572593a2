package orchestrator

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ensemble-chat/ensemble/internal/model"
	"github.com/ensemble-chat/ensemble/internal/persona"
	"github.com/ensemble-chat/ensemble/internal/provider"
	"github.com/ensemble-chat/ensemble/internal/store"
	"github.com/ensemble-chat/ensemble/internal/turn"
	"github.com/ensemble-chat/ensemble/pkg/logger"
)

type call struct {
	persona string
	history []string
}

// fakeAdapter scripts per-persona replies and records every call it receives.
type fakeAdapter struct {
	mu      sync.Mutex
	calls   []call
	replies map[string][]string
	errs    map[string][]error
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{
		replies: make(map[string][]string),
		errs:    make(map[string][]error),
	}
}

func (f *fakeAdapter) Kind() model.ProviderKind {
	return model.ProviderOpenAICompatible
}

func (f *fakeAdapter) GenerateReply(ctx context.Context, p model.Persona, history []model.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	contents := make([]string, len(history))
	for i, msg := range history {
		contents[i] = msg.Content
	}
	f.calls = append(f.calls, call{persona: p.Name, history: contents})

	if errs := f.errs[p.Name]; len(errs) > 0 {
		err := errs[0]
		f.errs[p.Name] = errs[1:]
		return "", err
	}

	queue := f.replies[p.Name]
	if len(queue) == 0 {
		return "reply from " + p.Name, nil
	}
	reply := queue[0]
	f.replies[p.Name] = queue[1:]
	return reply, nil
}

func (f *fakeAdapter) callsFor(name string) []call {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []call
	for _, c := range f.calls {
		if c.persona == name {
			out = append(out, c)
		}
	}
	return out
}

// fakePublisher records archived messages and delivered replies.
type fakePublisher struct {
	mu       sync.Mutex
	archived []model.Message
	replies  []model.OutboundEvent
}

func (f *fakePublisher) ArchiveMessage(ctx context.Context, msg model.Message) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.archived = append(f.archived, msg)
	return uint64(len(f.archived)), nil
}

func (f *fakePublisher) PublishReply(ctx context.Context, ev model.OutboundEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, ev)
	return nil
}

type fixture struct {
	orch    *Orchestrator
	store   *store.ConversationStore
	adapter *fakeAdapter
	pub     *fakePublisher
}

func newFixture(t *testing.T, cfg Config, names ...string) *fixture {
	t.Helper()

	personas := make([]model.Persona, len(names))
	for i, name := range names {
		personas[i] = model.Persona{
			Name:    name,
			Kind:    model.ProviderOpenAICompatible,
			ModelID: "gpt-4o",
			APIKey:  "sk-test",
			BaseURL: "https://api.openai.com/v1",
		}
	}
	registry, err := persona.NewRegistry(personas)
	require.NoError(t, err)

	st := store.New(100)
	adapter := newFakeAdapter()
	pub := &fakePublisher{}
	orch := New(st, turn.NewSelector(registry),
		map[model.ProviderKind]provider.Adapter{model.ProviderOpenAICompatible: adapter},
		pub, cfg, logger.NewNop())

	return &fixture{orch: orch, store: st, adapter: adapter, pub: pub}
}

func inbound(chatID, text string) model.InboundEvent {
	return model.InboundEvent{
		ChatID:    chatID,
		SenderID:  "user-1",
		Text:      text,
		Timestamp: time.Now(),
	}
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{}, "Ada", "Grace")
	f.store.SetAuthorized("chat-1", true)
	f.adapter.replies["Ada"] = []string{"r1"}
	f.adapter.replies["Grace"] = []string{"r2"}

	replies, err := f.orch.HandleIncoming(context.Background(), inbound("chat-1", "hello"))
	require.NoError(t, err)

	require.Len(t, replies, 2)
	assert.Equal(t, model.OutboundEvent{ChatID: "chat-1", PersonaName: "Ada", Text: "r1"}, replies[0])
	assert.Equal(t, model.OutboundEvent{ChatID: "chat-1", PersonaName: "Grace", Text: "r2"}, replies[1])

	history := f.store.History("chat-1")
	require.Len(t, history, 3)
	assert.Equal(t, model.SpeakerHuman, history[0].Speaker)
	assert.Equal(t, "hello", history[0].Content)
	assert.Equal(t, "Ada", history[1].Sender)
	assert.Equal(t, "r1", history[1].Content)
	assert.Equal(t, "Grace", history[2].Sender)
	assert.Equal(t, "r2", history[2].Content)
}

func TestLaterPersonasSeeEarlierReplies(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{}, "Ada", "Grace")
	f.store.SetAuthorized("chat-1", true)
	f.adapter.replies["Ada"] = []string{"Ada says hi"}

	_, err := f.orch.HandleIncoming(context.Background(), inbound("chat-1", "hello"))
	require.NoError(t, err)

	adaCalls := f.adapter.callsFor("Ada")
	require.Len(t, adaCalls, 1)
	assert.Equal(t, []string{"hello"}, adaCalls[0].history)

	graceCalls := f.adapter.callsFor("Grace")
	require.Len(t, graceCalls, 1)
	assert.Equal(t, []string{"hello", "Ada says hi"}, graceCalls[0].history)
}

func TestOneHumanMessageOneBoundedRound(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{}, "Ada", "Grace", "Alan")
	f.store.SetAuthorized("chat-1", true)

	replies, err := f.orch.HandleIncoming(context.Background(), inbound("chat-1", "hello"))
	require.NoError(t, err)

	// Exactly one reply per persona; persona replies never trigger more.
	assert.Len(t, replies, 3)
	f.adapter.mu.Lock()
	assert.Len(t, f.adapter.calls, 3)
	f.adapter.mu.Unlock()
}

func TestUnauthorizedChatCallsNoProvider(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{}, "Ada", "Grace")

	replies, err := f.orch.HandleIncoming(context.Background(), inbound("chat-1", "@Ada secrets"))
	assert.ErrorIs(t, err, ErrUnauthorizedChat)
	assert.Empty(t, replies)

	f.adapter.mu.Lock()
	assert.Empty(t, f.adapter.calls)
	f.adapter.mu.Unlock()
	assert.Empty(t, f.store.History("chat-1"))
	assert.Empty(t, f.pub.archived)
}

func TestDirectAddressSkipsOtherPersonas(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{}, "Ada", "Grace")
	f.store.SetAuthorized("chat-1", true)

	replies, err := f.orch.HandleIncoming(context.Background(), inbound("chat-1", "@Grace what time is it?"))
	require.NoError(t, err)

	require.Len(t, replies, 1)
	assert.Equal(t, "Grace", replies[0].PersonaName)
	assert.Empty(t, f.adapter.callsFor("Ada"))
	assert.Len(t, f.adapter.callsFor("Grace"), 1)
}

func TestPartialFailureIsolation(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{FailureNotices: false}, "Ada", "Grace")
	f.store.SetAuthorized("chat-1", true)
	f.adapter.errs["Ada"] = []error{&provider.FormatError{Reason: "bad body"}}
	f.adapter.replies["Grace"] = []string{"still here"}

	replies, err := f.orch.HandleIncoming(context.Background(), inbound("chat-1", "hello"))
	require.NoError(t, err)

	require.Len(t, replies, 1)
	assert.Equal(t, "Grace", replies[0].PersonaName)
	assert.Equal(t, "still here", replies[0].Text)

	// Grace's context contains the human message only; Ada produced nothing.
	graceCalls := f.adapter.callsFor("Grace")
	require.Len(t, graceCalls, 1)
	assert.Equal(t, []string{"hello"}, graceCalls[0].history)

	history := f.store.History("chat-1")
	require.Len(t, history, 2)
}

func TestFailureNoticeEmittedWhenConfigured(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{FailureNotices: true}, "Ada", "Grace")
	f.store.SetAuthorized("chat-1", true)
	f.adapter.errs["Ada"] = []error{&provider.FormatError{Reason: "bad body"}}

	replies, err := f.orch.HandleIncoming(context.Background(), inbound("chat-1", "hello"))
	require.NoError(t, err)

	require.Len(t, replies, 2)
	assert.Equal(t, "Ada", replies[0].PersonaName)
	assert.Contains(t, replies[0].Text, "unavailable")
	assert.Equal(t, "Grace", replies[1].PersonaName)

	// The notice is user-visible but never part of model context.
	history := f.store.History("chat-1")
	require.Len(t, history, 2)
	assert.Equal(t, "Grace", history[1].Sender)
}

func TestFailureNoticeReachesPublisher(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{FailureNotices: true}, "Ada", "Grace")
	f.store.SetAuthorized("chat-1", true)
	f.adapter.errs["Ada"] = []error{&provider.FormatError{Reason: "bad body"}}
	f.adapter.replies["Grace"] = []string{"still here"}

	_, err := f.orch.HandleIncoming(context.Background(), inbound("chat-1", "hello"))
	require.NoError(t, err)

	// Connectors on the delivery bus see the notice like any other reply.
	f.pub.mu.Lock()
	defer f.pub.mu.Unlock()
	require.Len(t, f.pub.replies, 2)
	assert.Equal(t, "Ada", f.pub.replies[0].PersonaName)
	assert.Contains(t, f.pub.replies[0].Text, "unavailable")
	assert.Equal(t, "Grace", f.pub.replies[1].PersonaName)
	assert.Equal(t, "still here", f.pub.replies[1].Text)
}

func TestRetryOnTransientFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{MaxRetries: 2}, "Ada")
	f.store.SetAuthorized("chat-1", true)
	f.adapter.errs["Ada"] = []error{&provider.HTTPError{StatusCode: http.StatusServiceUnavailable}}
	f.adapter.replies["Ada"] = []string{"recovered"}

	replies, err := f.orch.HandleIncoming(context.Background(), inbound("chat-1", "hello"))
	require.NoError(t, err)

	require.Len(t, replies, 1)
	assert.Equal(t, "recovered", replies[0].Text)
	assert.Len(t, f.adapter.callsFor("Ada"), 2)
}

func TestNoRetryOnPermanentFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{MaxRetries: 3, FailureNotices: false}, "Ada")
	f.store.SetAuthorized("chat-1", true)
	f.adapter.errs["Ada"] = []error{&provider.HTTPError{StatusCode: http.StatusUnauthorized}}

	replies, err := f.orch.HandleIncoming(context.Background(), inbound("chat-1", "hello"))
	require.NoError(t, err)

	assert.Empty(t, replies)
	assert.Len(t, f.adapter.callsFor("Ada"), 1)
}

func TestPassReplyIsSuppressed(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{}, "Ada", "Grace")
	f.store.SetAuthorized("chat-1", true)
	f.adapter.replies["Ada"] = []string{"PASS"}
	f.adapter.replies["Grace"] = []string{"I'll take this one"}

	replies, err := f.orch.HandleIncoming(context.Background(), inbound("chat-1", "hello"))
	require.NoError(t, err)

	require.Len(t, replies, 1)
	assert.Equal(t, "Grace", replies[0].PersonaName)

	// A pass never enters history, so Grace saw only the human message.
	graceCalls := f.adapter.callsFor("Grace")
	require.Len(t, graceCalls, 1)
	assert.Equal(t, []string{"hello"}, graceCalls[0].history)
}

func TestRepliesFlowToPublisher(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{}, "Ada")
	f.store.SetAuthorized("chat-1", true)
	f.adapter.replies["Ada"] = []string{"archived reply"}

	_, err := f.orch.HandleIncoming(context.Background(), inbound("chat-1", "hello"))
	require.NoError(t, err)

	f.pub.mu.Lock()
	defer f.pub.mu.Unlock()
	require.Len(t, f.pub.archived, 2)
	assert.Equal(t, model.SpeakerHuman, f.pub.archived[0].Speaker)
	assert.Equal(t, uint64(1), f.pub.archived[0].Seq)
	assert.Equal(t, model.SpeakerPersona, f.pub.archived[1].Speaker)
	assert.Equal(t, uint64(2), f.pub.archived[1].Seq)
	require.Len(t, f.pub.replies, 1)
	assert.Equal(t, "archived reply", f.pub.replies[0].Text)
}

func TestConcurrentRoundsDifferentChats(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{}, "Ada")
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		chatID := string(rune('a' + i))
		f.store.SetAuthorized(chatID, true)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				_, err := f.orch.HandleIncoming(context.Background(), inbound(chatID, "hi"))
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	for i := 0; i < 4; i++ {
		chatID := string(rune('a' + i))
		history := f.store.History(chatID)
		// 5 rounds, each a human message plus one reply, strictly interleaved.
		require.Len(t, history, 10)
		for j, msg := range history {
			if j%2 == 0 {
				assert.Equal(t, model.SpeakerHuman, msg.Speaker)
			} else {
				assert.Equal(t, model.SpeakerPersona, msg.Speaker)
			}
		}
	}
}
