package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edge-sync/state-server/src/queue"
	"github.com/edge-sync/state-server/src/registry"
	"github.com/edge-sync/state-server/src/storage"
	"github.com/edge-sync/state-server/src/types"
)

type mockTransport struct {
	mu       sync.Mutex
	sent     []types.Envelope
	failSend bool
	closed   bool
}

func (m *mockTransport) Send(env types.Envelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSend {
		return errors.New("transport broken")
	}
	m.sent = append(m.sent, env)
	return nil
}

func (m *mockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockTransport) Name() string { return "mock" }

func (m *mockTransport) envelopes() []types.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]types.Envelope, len(m.sent))
	copy(cp, m.sent)
	return cp
}

// failingQueue simulates a storage-layer outage.
type failingQueue struct{}

func (failingQueue) Enqueue(context.Context, string, types.Action, time.Duration) error {
	return errors.New("storage down")
}

func (failingQueue) Drain(context.Context, string) ([]types.Action, error) {
	return nil, errors.New("storage down")
}

func newTestService(caps Capabilities) (*SyncService, *registry.Registry, *queue.MemoryQueue) {
	logger := zerolog.Nop()
	reg := registry.New(logger)
	q := queue.NewMemoryQueue(0)
	pages := storage.NewPageStates(storage.NewMemoryStore(), time.Hour, logger)
	svc := New(reg, q, pages, caps, time.Minute, logger)
	return svc, reg, q
}

func persistent() Capabilities {
	return Capabilities{PersistentConnections: true}
}

func TestDeliverPushesToLiveConnection(t *testing.T) {
	svc, reg, _ := newTestService(persistent())
	transport := &mockTransport{}
	reg.Register("bot-1", transport)

	action := types.Action{
		Type:    types.ActionNavigate,
		Payload: map[string]any{"url": "https://x"},
	}
	outcome, err := svc.Deliver(context.Background(), "bot-1", action)
	require.NoError(t, err)
	assert.Equal(t, OutcomePushed, outcome)

	envs := transport.envelopes()
	require.Len(t, envs, 2, "welcome plus exactly one action envelope")
	assert.Equal(t, types.EnvelopeAction, envs[1].Type)
	delivered := envs[1].Data.(types.Action)
	assert.Equal(t, types.ActionNavigate, delivered.Type)
	assert.NotZero(t, delivered.Timestamp)
}

func TestDeliverFallsBackToQueue(t *testing.T) {
	svc, _, _ := newTestService(persistent())

	outcome, err := svc.Deliver(context.Background(), "bot-1", types.Action{Type: types.ActionClick})
	require.NoError(t, err)
	assert.Equal(t, OutcomeQueued, outcome)

	actions, err := svc.Poll(context.Background(), "bot-1")
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, types.ActionClick, actions[0].Type)
}

func TestDeliverQueuesOnSendFailure(t *testing.T) {
	svc, reg, _ := newTestService(persistent())
	transport := &mockTransport{}
	reg.Register("bot-1", transport)
	transport.mu.Lock()
	transport.failSend = true
	transport.mu.Unlock()

	outcome, err := svc.Deliver(context.Background(), "bot-1", types.Action{Type: types.ActionScroll})
	require.NoError(t, err, "transport failure must not surface as an error")
	assert.Equal(t, OutcomeQueued, outcome)
	assert.False(t, reg.Has("bot-1"), "failed connection must be evicted")
}

func TestDeliverWithoutPersistentConnectionsAlwaysQueues(t *testing.T) {
	svc, reg, _ := newTestService(Capabilities{PersistentConnections: false})
	transport := &mockTransport{}
	reg.Register("bot-1", transport)

	outcome, err := svc.Deliver(context.Background(), "bot-1", types.Action{Type: types.ActionInput})
	require.NoError(t, err)
	assert.Equal(t, OutcomeQueued, outcome)
	assert.Len(t, transport.envelopes(), 1, "only the welcome; action must not be pushed")
}

func TestDeliverRejectsInvalidClientID(t *testing.T) {
	svc, _, _ := newTestService(persistent())

	for _, id := range []string{"", "   ", "has space"} {
		outcome, err := svc.Deliver(context.Background(), id, types.Action{Type: types.ActionClick})
		assert.ErrorIs(t, err, ErrInvalidClientID)
		assert.Equal(t, OutcomeFailed, outcome)
	}
}

func TestDeliverStorageFailure(t *testing.T) {
	logger := zerolog.Nop()
	reg := registry.New(logger)
	pages := storage.NewPageStates(storage.NewMemoryStore(), time.Hour, logger)
	svc := New(reg, failingQueue{}, pages, persistent(), time.Minute, logger)

	outcome, err := svc.Deliver(context.Background(), "bot-1", types.Action{Type: types.ActionClick})
	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, outcome)
	assert.Contains(t, err.Error(), "storage down")
}

func TestPollIsDestructive(t *testing.T) {
	svc, _, _ := newTestService(persistent())
	ctx := context.Background()

	_, err := svc.Deliver(ctx, "bot-1", types.Action{Type: types.ActionClick})
	require.NoError(t, err)

	first, err := svc.Poll(ctx, "bot-1")
	require.NoError(t, err)
	assert.Len(t, first, 1)

	second, err := svc.Poll(ctx, "bot-1")
	require.NoError(t, err)
	assert.Empty(t, second)
}

func TestBroadcastReachesAllConnections(t *testing.T) {
	svc, reg, _ := newTestService(persistent())
	a := &mockTransport{}
	b := &mockTransport{}
	reg.Register("a", a)
	reg.Register("b", b)

	sent, err := svc.Broadcast(context.Background(), types.Action{Type: types.ActionCustom})
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
}

func TestBroadcastWithNobodyListening(t *testing.T) {
	svc, _, _ := newTestService(persistent())
	sent, err := svc.Broadcast(context.Background(), types.Action{Type: types.ActionCustom})
	require.NoError(t, err)
	assert.Zero(t, sent, "empty room is a legitimate zero, not an error")
}

func TestBroadcastUnsupportedWithoutPersistentConnections(t *testing.T) {
	svc, _, _ := newTestService(Capabilities{PersistentConnections: false})
	sent, err := svc.Broadcast(context.Background(), types.Action{Type: types.ActionCustom})
	assert.ErrorIs(t, err, ErrBroadcastUnsupported)
	assert.Zero(t, sent)
}

func TestPageStateLifecycle(t *testing.T) {
	svc, _, _ := newTestService(persistent())
	ctx := context.Background()

	state := &types.PageState{URL: "https://example.com", Title: "Example"}
	require.NoError(t, svc.UpdatePageState(ctx, "bot-1", state))

	has, err := svc.HasPageState(ctx, "bot-1")
	require.NoError(t, err)
	assert.True(t, has)

	got, err := svc.PageState(ctx, "bot-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "bot-1", got.ClientID)

	require.NoError(t, svc.DeletePageState(ctx, "bot-1"))

	got, err = svc.PageState(ctx, "bot-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

// TestPushThenQueueScenario walks the full delivery story: push while
// connected, queue after eviction, drain exactly once.
func TestPushThenQueueScenario(t *testing.T) {
	svc, reg, _ := newTestService(persistent())
	ctx := context.Background()

	transport := &mockTransport{}
	reg.Register("bot-1", transport)

	action := types.Action{
		Type:    types.ActionNavigate,
		Payload: map[string]any{"url": "https://x"},
	}

	outcome, err := svc.Deliver(ctx, "bot-1", action)
	require.NoError(t, err)
	require.Equal(t, OutcomePushed, outcome)

	envs := transport.envelopes()
	require.Len(t, envs, 2)
	require.Equal(t, types.EnvelopeAction, envs[1].Type)

	reg.Evict("bot-1")

	outcome, err = svc.Deliver(ctx, "bot-1", action)
	require.NoError(t, err)
	require.Equal(t, OutcomeQueued, outcome)

	actions, err := svc.Poll(ctx, "bot-1")
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, types.ActionNavigate, actions[0].Type)

	actions, err = svc.Poll(ctx, "bot-1")
	require.NoError(t, err)
	assert.Empty(t, actions)
}
