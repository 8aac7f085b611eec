package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edge-sync/state-server/src/types"
)

func navAction(url string) types.Action {
	return types.Action{
		Type:    types.ActionNavigate,
		Payload: map[string]any{"url": url},
	}
}

func TestDrainIsDestructiveAndOrderPreserving(t *testing.T) {
	q := NewMemoryQueue(0)
	ctx := context.Background()

	for _, url := range []string{"https://a", "https://b", "https://c"} {
		require.NoError(t, q.Enqueue(ctx, "bot-1", navAction(url), time.Minute))
	}

	actions, err := q.Drain(ctx, "bot-1")
	require.NoError(t, err)
	require.Len(t, actions, 3)
	for i, url := range []string{"https://a", "https://b", "https://c"} {
		payload := actions[i].Payload.(map[string]any)
		assert.Equal(t, url, payload["url"])
	}

	again, err := q.Drain(ctx, "bot-1")
	require.NoError(t, err)
	assert.Empty(t, again, "second drain must be empty")
}

func TestDrainUnknownClientIsEmpty(t *testing.T) {
	q := NewMemoryQueue(0)
	actions, err := q.Drain(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, actions)
}

func TestCapDropsOldestFirst(t *testing.T) {
	const capacity = 5
	q := NewMemoryQueue(capacity)
	ctx := context.Background()

	for i := 0; i < capacity+3; i++ {
		require.NoError(t, q.Enqueue(ctx, "bot-1", navAction(fmt.Sprintf("https://page/%d", i)), time.Minute))
	}

	actions, err := q.Drain(ctx, "bot-1")
	require.NoError(t, err)
	require.Len(t, actions, capacity)

	// The 3 oldest were dropped; the survivors keep insertion order.
	for i := 0; i < capacity; i++ {
		payload := actions[i].Payload.(map[string]any)
		assert.Equal(t, fmt.Sprintf("https://page/%d", i+3), payload["url"])
	}
}

func TestZeroTTLNeverDelivered(t *testing.T) {
	q := NewMemoryQueue(0)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "bot-1", navAction("https://dead"), 0))

	actions, err := q.Drain(ctx, "bot-1")
	require.NoError(t, err)
	assert.Empty(t, actions)
}

func TestExpiredEntriesDiscardedSilently(t *testing.T) {
	q := NewMemoryQueue(0)
	ctx := context.Background()

	now := time.Unix(1700000000, 0)
	q.SetClock(func() time.Time { return now })

	require.NoError(t, q.Enqueue(ctx, "bot-1", navAction("https://old"), 10*time.Second))
	now = now.Add(5 * time.Second)
	require.NoError(t, q.Enqueue(ctx, "bot-1", navAction("https://fresh"), 10*time.Second))

	now = now.Add(7 * time.Second) // first expired, second still live
	actions, err := q.Drain(ctx, "bot-1")
	require.NoError(t, err)
	require.Len(t, actions, 1)
	payload := actions[0].Payload.(map[string]any)
	assert.Equal(t, "https://fresh", payload["url"])
}

func TestClientIsolation(t *testing.T) {
	q := NewMemoryQueue(0)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "bot-1", navAction("https://one"), time.Minute))
	require.NoError(t, q.Enqueue(ctx, "bot-2", navAction("https://two"), time.Minute))

	actions, err := q.Drain(ctx, "bot-1")
	require.NoError(t, err)
	require.Len(t, actions, 1)

	actions, err = q.Drain(ctx, "bot-2")
	require.NoError(t, err)
	require.Len(t, actions, 1)
}

func TestConcurrentProducersLoseNothing(t *testing.T) {
	const producers = 8
	const perProducer = 10

	q := NewMemoryQueue(producers * perProducer)
	ctx := context.Background()

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				_ = q.Enqueue(ctx, "bot-1", navAction(fmt.Sprintf("https://p%d/%d", p, i)), time.Minute)
			}
		}(p)
	}
	wg.Wait()

	actions, err := q.Drain(ctx, "bot-1")
	require.NoError(t, err)
	assert.Len(t, actions, producers*perProducer)
}
