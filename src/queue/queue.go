// Package queue provides the durable per-client action backlog used
// when no live push channel exists. Queues are capped FIFOs with
// per-entry TTL; reads are destructive.
package queue

import (
	"context"
	"time"

	"github.com/edge-sync/state-server/src/types"
)

// DefaultMaxLength caps each client's backlog; enqueuing past the cap
// drops the oldest entries first.
const DefaultMaxLength = 100

// DefaultTTL bounds how long a queued action stays deliverable.
const DefaultTTL = 5 * time.Minute

// Queue is a bounded, TTL-expiring FIFO of pending actions per client.
// Implementations must tolerate concurrent producers for the same
// client id without losing entries.
type Queue interface {
	// Enqueue appends the action to the client's backlog with the given
	// time-to-live. When the backlog exceeds the cap, the oldest entries
	// are dropped. ttl <= 0 enqueues an entry that is already expired;
	// Drain will never return it.
	Enqueue(ctx context.Context, clientID string, action types.Action, ttl time.Duration) error

	// Drain atomically returns and removes all non-expired actions for
	// the client, in insertion order. Expired entries are discarded
	// silently. A missing backlog yields an empty result, not an error.
	// This is the only read path; callers must treat the result as the
	// full delivery.
	Drain(ctx context.Context, clientID string) ([]types.Action, error)
}

func actionKey(clientID string) string { return "actions:" + clientID }

// filterLive drops expired entries and unwraps the rest in order.
func filterLive(entries []types.QueuedAction, now time.Time) []types.Action {
	actions := make([]types.Action, 0, len(entries))
	for _, e := range entries {
		if e.Expired(now) {
			continue
		}
		actions = append(actions, e.Action)
	}
	return actions
}
