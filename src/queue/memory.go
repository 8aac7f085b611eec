package queue

import (
	"context"
	"sync"
	"time"

	"github.com/edge-sync/state-server/src/types"
)

// MemoryQueue implements Queue in process memory. It mirrors the Redis
// semantics exactly (cap, lazy expiry, destructive drain) but does not
// survive restarts; it serves single-process deployments and tests.
type MemoryQueue struct {
	mu        sync.Mutex
	backlogs  map[string][]types.QueuedAction
	maxLength int
	clock     func() time.Time
}

// NewMemoryQueue creates an empty in-memory queue.
// maxLength <= 0 selects DefaultMaxLength.
func NewMemoryQueue(maxLength int) *MemoryQueue {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	return &MemoryQueue{
		backlogs:  make(map[string][]types.QueuedAction),
		maxLength: maxLength,
		clock:     time.Now,
	}
}

// SetClock injects a time source, for tests.
func (q *MemoryQueue) SetClock(clock func() time.Time) { q.clock = clock }

func (q *MemoryQueue) Enqueue(_ context.Context, clientID string, action types.Action, ttl time.Duration) error {
	now := q.clock()
	entry := types.QueuedAction{
		Action:    action,
		QueuedAt:  now.UnixMilli(),
		ExpiresAt: now.Add(ttl).UnixMilli(),
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	key := actionKey(clientID)
	backlog := append(q.backlogs[key], entry)
	if excess := len(backlog) - q.maxLength; excess > 0 {
		backlog = backlog[excess:]
	}
	q.backlogs[key] = backlog
	return nil
}

func (q *MemoryQueue) Drain(_ context.Context, clientID string) ([]types.Action, error) {
	key := actionKey(clientID)

	q.mu.Lock()
	entries := q.backlogs[key]
	delete(q.backlogs, key)
	q.mu.Unlock()

	return filterLive(entries, q.clock()), nil
}
