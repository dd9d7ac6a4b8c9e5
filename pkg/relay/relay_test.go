package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/tinyland-inc/dlrelay/pkg/bus"
	"github.com/tinyland-inc/dlrelay/pkg/directline"
	"github.com/tinyland-inc/dlrelay/pkg/logger"
	"github.com/tinyland-inc/dlrelay/pkg/session"
)

type postCall struct {
	conversationID string
	activity       directline.Activity
}

type fakeBackend struct {
	mu         sync.Mutex
	starts     int
	startErr   error
	posts      []postCall
	postErr    error
	polls      int
	pollErr    error
	activities []directline.Activity
}

func (f *fakeBackend) StartConversation(context.Context) (*directline.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.startErr != nil {
		return nil, f.startErr
	}
	return &directline.Conversation{ConversationID: fmt.Sprintf("conv-%d", f.starts)}, nil
}

func (f *fakeBackend) PostActivity(_ context.Context, id string, a directline.Activity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts = append(f.posts, postCall{conversationID: id, activity: a})
	return f.postErr
}

func (f *fakeBackend) Activities(context.Context, string) (*directline.ActivitySet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if f.pollErr != nil {
		return nil, f.pollErr
	}
	return &directline.ActivitySet{Activities: f.activities}, nil
}

type sentMessage struct {
	to, body string
}

type fakeChannel struct {
	mu      sync.Mutex
	sent    []sentMessage
	err     error
	doPanic bool
}

func (c *fakeChannel) Name() string         { return "fake" }
func (c *fakeChannel) IsAllowed(string) bool { return true }

func (c *fakeChannel) Send(_ context.Context, msg bus.OutboundMessage) error {
	if c.doPanic {
		panic("twilio client exploded")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, sentMessage{to: msg.ChatID, body: msg.Content})
	return c.err
}

func text(s string) *string { return &s }

func msgActivity(from, s string) directline.Activity {
	return directline.Activity{Type: "message", From: directline.ChannelAccount{ID: from}, Text: text(s)}
}

func TestResolve_CreatesOnceThenReuses(t *testing.T) {
	store := session.NewMemoryStore()
	backend := &fakeBackend{}
	r := NewResolver(store, backend)

	first, err := r.Resolve(context.Background(), "whatsapp:+15551234")
	require.NoError(t, err)
	assert.Equal(t, "conv-1", first)
	assert.Equal(t, 1, backend.starts)

	second, err := r.Resolve(context.Background(), "whatsapp:+15551234")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, backend.starts, "known sender must not create a conversation")

	other, err := r.Resolve(context.Background(), "whatsapp:+15550000")
	require.NoError(t, err)
	assert.Equal(t, "conv-2", other)
	assert.Equal(t, 2, backend.starts)
}

func TestResolve_KnownSenderDoesNotMutateStore(t *testing.T) {
	store := session.NewMemoryStore()
	store.InsertIfAbsent("a", "existing")
	r := NewResolver(store, &fakeBackend{})

	before := store.Snapshot()
	got, err := r.Resolve(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "existing", got)
	assert.Equal(t, before, store.Snapshot())
}

func TestResolve_ServiceUnavailableLeavesStoreEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client, err := directline.NewClient(directline.Config{Token: "t", BaseURL: srv.URL})
	require.NoError(t, err)

	store := session.NewMemoryStore()
	r := NewResolver(store, client)

	_, err = r.Resolve(context.Background(), "a")
	require.ErrorIs(t, err, ErrBackendUnavailable)
	assert.Equal(t, 0, store.Len())
}

func TestResolve_TransportErrorIsBackendUnavailable(t *testing.T) {
	store := session.NewMemoryStore()
	r := NewResolver(store, &fakeBackend{startErr: errors.New("dial tcp: connection refused")})

	_, err := r.Resolve(context.Background(), "a")
	assert.ErrorIs(t, err, ErrBackendUnavailable)
	assert.Equal(t, 0, store.Len())
}

func TestResolve_ConcurrentFirstContactCreatesOneConversation(t *testing.T) {
	store := session.NewMemoryStore()
	backend := &fakeBackend{}
	r := NewResolver(store, backend)

	var wg sync.WaitGroup
	handles := make([]string, 32)
	for i := range handles {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := r.Resolve(context.Background(), "same-sender")
			assert.NoError(t, err)
			handles[i] = h
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, backend.starts)
	for _, h := range handles {
		assert.Equal(t, "conv-1", h)
	}
}

// cancelAwareBackend fails conversation starts whose context is done.
type cancelAwareBackend struct {
	fakeBackend
}

func (b *cancelAwareBackend) StartConversation(ctx context.Context) (*directline.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b.fakeBackend.StartConversation(ctx)
}

func TestResolve_CallerCancellationDoesNotFailSharedCreation(t *testing.T) {
	store := session.NewMemoryStore()
	backend := &cancelAwareBackend{}
	r := NewResolver(store, backend)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	handle, err := r.Resolve(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "conv-1", handle)
	assert.Equal(t, 1, store.Len())
}

func TestForward_LatestReplyRules(t *testing.T) {
	tests := []struct {
		name       string
		activities []directline.Activity
		wantKind   ReplyKind
		wantText   string
	}{
		{
			name:     "empty transcript",
			wantKind: ReplyNone,
			wantText: NoResponseText,
		},
		{
			name:       "only the echo",
			activities: []directline.Activity{msgActivity("user", "hi")},
			wantKind:   ReplyNone,
			wantText:   NoResponseText,
		},
		{
			name:       "bot replied",
			activities: []directline.Activity{msgActivity("user", "hi"), msgActivity("bot", "bot reply")},
			wantKind:   ReplyText,
			wantText:   "bot reply",
		},
		{
			name:       "last activity without text",
			activities: []directline.Activity{msgActivity("user", "hi"), {Type: "typing"}},
			wantKind:   ReplyNotUnderstood,
			wantText:   NotUnderstoodText,
		},
		{
			name: "only the last activity counts",
			activities: []directline.Activity{
				msgActivity("user", "hi"), msgActivity("bot", "first"), msgActivity("bot", "second"),
			},
			wantKind: ReplyText,
			wantText: "second",
		},
		{
			name:       "empty text is still text",
			activities: []directline.Activity{msgActivity("user", "hi"), msgActivity("bot", "")},
			wantKind:   ReplyText,
			wantText:   "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{activities: tt.activities}
			reply, err := NewForwarder(backend).Forward(context.Background(), "abc", "hi")
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, reply.Kind)
			assert.Equal(t, tt.wantText, reply.Text)
			assert.NoError(t, reply.Err)
		})
	}
}

func TestForward_PostsUserMessage(t *testing.T) {
	backend := &fakeBackend{}
	_, err := NewForwarder(backend).Forward(context.Background(), "abc", "Hello")
	require.NoError(t, err)

	require.Len(t, backend.posts, 1)
	p := backend.posts[0]
	assert.Equal(t, "abc", p.conversationID)
	assert.Equal(t, "message", p.activity.Type)
	assert.Equal(t, UserAccountID, p.activity.From.ID)
	require.NotNil(t, p.activity.Text)
	assert.Equal(t, "Hello", *p.activity.Text)
	assert.Equal(t, 1, backend.polls)
}

func TestForward_RejectedSendSkipsPoll(t *testing.T) {
	backend := &fakeBackend{postErr: &directline.StatusError{Op: "post activity", StatusCode: http.StatusBadRequest}}

	_, err := NewForwarder(backend).Forward(context.Background(), "abc", "Hello")
	assert.ErrorIs(t, err, ErrSendFailed)
	assert.Equal(t, 0, backend.polls)
}

func TestForward_SendTransportErrorIsBackendUnavailable(t *testing.T) {
	backend := &fakeBackend{postErr: errors.New("i/o timeout")}

	_, err := NewForwarder(backend).Forward(context.Background(), "abc", "Hello")
	assert.ErrorIs(t, err, ErrBackendUnavailable)
	assert.NotErrorIs(t, err, ErrSendFailed)
	assert.Equal(t, 0, backend.polls)
}

func TestForward_PollFailureBecomesPlaceholder(t *testing.T) {
	backend := &fakeBackend{pollErr: errors.New("connection reset")}

	reply, err := NewForwarder(backend).Forward(context.Background(), "abc", "Hello")
	require.NoError(t, err)
	assert.Equal(t, ReplyPollFailed, reply.Kind)
	assert.Equal(t, NoResponseText, reply.Text)
	assert.ErrorIs(t, reply.Err, ErrBackendUnavailable)
}

func TestDispatch_WrapsErrors(t *testing.T) {
	ch := &fakeChannel{err: errors.New("twilio 21211")}
	err := NewDispatcher(ch).Dispatch(context.Background(), "+1", "x")
	assert.ErrorIs(t, err, ErrDispatchFailed)
}

func TestDispatch_RecoversPanics(t *testing.T) {
	ch := &fakeChannel{doPanic: true}
	err := NewDispatcher(ch).Dispatch(context.Background(), "+1", "x")
	assert.ErrorIs(t, err, ErrDispatchFailed)
}

func TestHandle_EndToEnd(t *testing.T) {
	backend := &fakeBackend{activities: []directline.Activity{
		msgActivity("user", "Hello"),
		msgActivity("bot", "Hi there!"),
	}}
	ch := &fakeChannel{}
	r := New(session.NewMemoryStore(), backend, ch)

	out := r.Handle(context.Background(), bus.InboundMessage{SenderID: "+15551234", Content: "Hello"})

	require.False(t, out.Failed())
	assert.Equal(t, StageAcknowledged, out.Stage)
	assert.Equal(t, "conv-1", out.SessionID)
	assert.NoError(t, out.DispatchErr)
	assert.Equal(t, []sentMessage{{to: "+15551234", body: "Hi there!"}}, ch.sent)
	assert.Equal(t, 1, r.Sessions())
}

func TestHandle_ResolveFailureStopsChain(t *testing.T) {
	backend := &fakeBackend{startErr: errors.New("down")}
	ch := &fakeChannel{}
	r := New(session.NewMemoryStore(), backend, ch)

	out := r.Handle(context.Background(), bus.InboundMessage{SenderID: "+1", Content: "Hello"})

	require.True(t, out.Failed())
	assert.Equal(t, StageResolving, out.Stage)
	assert.ErrorIs(t, out.Err, ErrBackendUnavailable)
	assert.Empty(t, backend.posts)
	assert.Empty(t, ch.sent)
}

func TestHandle_SendFailureStopsBeforeDispatch(t *testing.T) {
	backend := &fakeBackend{postErr: &directline.StatusError{Op: "post activity", StatusCode: 502}}
	ch := &fakeChannel{}
	r := New(session.NewMemoryStore(), backend, ch)

	out := r.Handle(context.Background(), bus.InboundMessage{SenderID: "+1", Content: "Hello"})

	require.True(t, out.Failed())
	assert.Equal(t, StageForwarding, out.Stage)
	assert.ErrorIs(t, out.Err, ErrSendFailed)
	assert.Empty(t, ch.sent)
}

func TestHandle_PollFailureStillDispatchesPlaceholder(t *testing.T) {
	backend := &fakeBackend{pollErr: errors.New("reset")}
	ch := &fakeChannel{}
	r := New(session.NewMemoryStore(), backend, ch)

	out := r.Handle(context.Background(), bus.InboundMessage{SenderID: "+1", Content: "Hello"})

	require.False(t, out.Failed())
	assert.Equal(t, ReplyPollFailed, out.Reply.Kind)
	assert.Equal(t, []sentMessage{{to: "+1", body: NoResponseText}}, ch.sent)
}

func TestHandle_DispatchFailureIsSwallowed(t *testing.T) {
	backend := &fakeBackend{activities: []directline.Activity{msgActivity("user", "a"), msgActivity("bot", "b")}}
	for name, ch := range map[string]*fakeChannel{
		"error": {err: errors.New("twilio down")},
		"panic": {doPanic: true},
	} {
		t.Run(name, func(t *testing.T) {
			r := New(session.NewMemoryStore(), backend, ch)
			out := r.Handle(context.Background(), bus.InboundMessage{SenderID: "+1", Content: "a"})

			assert.False(t, out.Failed())
			assert.Equal(t, StageAcknowledged, out.Stage)
			assert.ErrorIs(t, out.DispatchErr, ErrDispatchFailed)
		})
	}
}

func TestHandle_ReusesSessionAcrossMessages(t *testing.T) {
	backend := &fakeBackend{}
	r := New(session.NewMemoryStore(), backend, &fakeChannel{})

	for range 3 {
		r.Handle(context.Background(), bus.InboundMessage{SenderID: "+1", Content: "again"})
	}

	assert.Equal(t, 1, backend.starts)
	require.Len(t, backend.posts, 3)
	for _, p := range backend.posts {
		assert.Equal(t, "conv-1", p.conversationID)
	}
}

func TestHandle_EmitsStageSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	backend := &fakeBackend{}
	r := New(session.NewMemoryStore(), backend, &fakeChannel{}, WithTracerProvider(tp))
	r.Handle(context.Background(), bus.InboundMessage{SenderID: "+1", Content: "hi"})

	names := make(map[string]bool)
	for _, s := range recorder.Ended() {
		names[s.Name()] = true
	}
	for _, want := range []string{"relay.handle", "relay.resolve", "relay.forward", "relay.dispatch"} {
		assert.True(t, names[want], "missing span %s", want)
	}
}

func TestHandle_LogsProfileName(t *testing.T) {
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	t.Cleanup(func() { logger.SetOutput(os.Stderr) })

	backend := &fakeBackend{activities: []directline.Activity{msgActivity("user", "a"), msgActivity("bot", "b")}}
	r := New(session.NewMemoryStore(), backend, &fakeChannel{})
	r.Handle(context.Background(), bus.InboundMessage{
		SenderID: "+1",
		Content:  "a",
		Metadata: map[string]string{"profile_name": "Ana"},
	})

	assert.Contains(t, buf.String(), `"profile_name":"Ana"`)
}
