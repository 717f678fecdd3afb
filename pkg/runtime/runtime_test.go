package runtime

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/agentbus/pkg/bus"
	"github.com/codeready-toolchain/agentbus/pkg/config"
	"github.com/codeready-toolchain/agentbus/pkg/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "runtime-test.db")
	s, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// fakeBus is a deterministic in-memory stand-in for BusClient.
type fakeBus struct {
	mu          sync.Mutex
	inbox       []bus.Message
	sent        []sentMessage
	pingErr     error
	reconnected int
}

type sentMessage struct {
	content  string
	parentID string
}

func (f *fakeBus) Send(_ context.Context, content, parentID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{content: content, parentID: parentID})
	return "sent-" + parentID, nil
}

func (f *fakeBus) Receive(_ context.Context, _ time.Duration) ([]bus.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.inbox
	f.inbox = nil
	return out, nil
}

func (f *fakeBus) Ping(context.Context) error { return f.pingErr }

func (f *fakeBus) Reconnect(context.Context) error {
	f.reconnected++
	f.pingErr = nil
	return nil
}

func (f *fakeBus) sentMessages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentMessage, len(f.sent))
	copy(out, f.sent)
	return out
}

// echoHandler returns the trigger content verbatim, grounded on spec.md's
// Echo variant.
type echoHandler struct{}

func (echoHandler) Handle(trigger store.Message, _ []store.Message, _ []store.Message) (string, bool) {
	return trigger.Content, true
}

func TestProcessOnceSendsEchoResponseAndCompletes(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	_, err := st.Enqueue(ctx, "m1", "alpha", "beta", "hello @alpha")
	require.NoError(t, err)

	fb := &fakeBus{}
	rt := New("alpha", st, fb, echoHandler{}, config.DefaultRuntimeConfig(), nil)

	require.NoError(t, rt.processOnce(ctx))

	sent := fb.sentMessages()
	require.Len(t, sent, 1)
	require.Equal(t, "hello @alpha", sent[0].content)
	require.Equal(t, "m1", sent[0].parentID)

	stats, err := st.Stats(ctx, "alpha")
	require.NoError(t, err)
	require.Equal(t, 0, stats.Pending)
	require.Equal(t, 1, stats.CompletedLast24h)
}

func TestProcessOnceDrainsBatchContextAsCompleted(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	_, err := st.Enqueue(ctx, "m1", "alpha", "beta", "first")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = st.Enqueue(ctx, "m2", "alpha", "beta", "second")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = st.Enqueue(ctx, "m3", "alpha", "beta", "third")
	require.NoError(t, err)

	fb := &fakeBus{}
	rt := New("alpha", st, fb, echoHandler{}, config.DefaultRuntimeConfig(), nil)

	require.NoError(t, rt.processOnce(ctx))

	stats, err := st.Stats(ctx, "alpha")
	require.NoError(t, err)
	require.Equal(t, 0, stats.Pending)
	require.Equal(t, 3, stats.CompletedLast24h)

	sent := fb.sentMessages()
	require.Len(t, sent, 1, "batch context is subsumed, not individually replied to")
}

func TestProcessOnceNoWorkReturnsSentinel(t *testing.T) {
	st := openTestStore(t)
	fb := &fakeBus{}
	rt := New("alpha", st, fb, echoHandler{}, config.DefaultRuntimeConfig(), nil)

	err := rt.processOnce(context.Background())
	require.ErrorIs(t, err, errNoWork)
}

func TestProcessOnceDoneCommandPausesStripsMentionsAndPurgesPending(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	_, err := st.Enqueue(ctx, "m1", "gamma", "alpha", "#done @gamma")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = st.Enqueue(ctx, "m2", "gamma", "alpha", "leftover work")
	require.NoError(t, err)

	fb := &fakeBus{}
	handler := stubHandler{response: "done. @alpha", ok: true}
	cfg := config.DefaultRuntimeConfig()
	cfg.BatchSize = 1 // leave "m2" un-drained by batch context so only the purge can clear it
	rt := New("gamma", st, fb, handler, cfg, nil)

	require.NoError(t, rt.processOnce(ctx))

	paused, until := rt.PauseStatus()
	require.True(t, paused)
	require.False(t, until.IsZero())

	sent := fb.sentMessages()
	require.Len(t, sent, 1)
	require.Equal(t, "done.", sent[0].content)

	stats, err := st.Stats(ctx, "gamma")
	require.NoError(t, err)
	require.Equal(t, 0, stats.Pending, "#done must purge remaining pending messages")
}

func TestProcessOnceStopCommandPausesIndefinitely(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	_, err := st.Enqueue(ctx, "m1", "gamma", "alpha", "#stop @gamma")
	require.NoError(t, err)

	fb := &fakeBus{}
	handler := stubHandler{response: "ok @gamma", ok: true}
	rt := New("gamma", st, fb, handler, config.DefaultRuntimeConfig(), nil)

	require.NoError(t, rt.processOnce(ctx))

	paused, until := rt.PauseStatus()
	require.True(t, paused)
	require.True(t, until.IsZero(), "#stop pauses indefinitely")

	sent := fb.sentMessages()
	require.Len(t, sent, 1)
	require.Contains(t, sent[0].content, "@gamma", "non-done pause does not strip mentions")
}

type stubHandler struct {
	response string
	ok       bool
}

func (s stubHandler) Handle(store.Message, []store.Message, []store.Message) (string, bool) {
	return s.response, s.ok
}

func TestHeartbeatReconnectsAfterThreshold(t *testing.T) {
	st := openTestStore(t)
	fb := &fakeBus{pingErr: assertError{}}
	cfg := config.DefaultRuntimeConfig()
	cfg.HeartbeatInterval = 5 * time.Millisecond
	cfg.HeartbeatFailureThreshold = 2

	rt := New("alpha", st, fb, echoHandler{}, cfg, nil)
	ctx, cancel := context.WithCancel(context.Background())
	rt.wg.Add(1)
	go rt.runHeartbeat(ctx)

	require.Eventually(t, func() bool {
		fb.mu.Lock()
		defer fb.mu.Unlock()
		return fb.reconnected > 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	rt.wg.Wait()
}

type assertError struct{}

func (assertError) Error() string { return "ping failed" }
