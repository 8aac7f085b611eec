// Package service holds the delivery coordinator: the one component
// that talks to both the connection registry and the action queue, and
// decides per delivery whether to push or to fall back to queuing.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/edge-sync/state-server/src/queue"
	"github.com/edge-sync/state-server/src/registry"
	"github.com/edge-sync/state-server/src/storage"
	"github.com/edge-sync/state-server/src/types"
)

// Outcome is the terminal result of one Deliver call. Every call
// resolves to exactly one of these; an action is never silently lost.
type Outcome int

const (
	// OutcomeFailed means the action was neither pushed nor queued; the
	// accompanying error carries the cause.
	OutcomeFailed Outcome = iota

	// OutcomePushed means the action went out over a live push channel.
	OutcomePushed

	// OutcomeQueued means the action sits in the durable backlog and
	// will reach the client via polling.
	OutcomeQueued
)

func (o Outcome) String() string {
	switch o {
	case OutcomePushed:
		return "pushed"
	case OutcomeQueued:
		return "queued"
	default:
		return "failed"
	}
}

// Capabilities describes what the execution environment supports.
// Decided once at startup by the host and injected here; never inferred
// from runtime type inspection.
type Capabilities struct {
	// PersistentConnections is true when live push channels survive
	// across requests in this process. When false, every delivery is
	// queued and broadcast is unsupported.
	PersistentConnections bool
}

// SyncService coordinates action delivery and fronts page-state CRUD.
// All collaborators are injected at construction.
type SyncService struct {
	registry *registry.Registry
	queue    queue.Queue
	pages    *storage.PageStates
	caps     Capabilities
	queueTTL time.Duration
	logger   zerolog.Logger
}

// New wires a SyncService. queueTTL bounds how long a queued action
// stays deliverable; <= 0 selects the queue default.
func New(reg *registry.Registry, q queue.Queue, pages *storage.PageStates, caps Capabilities, queueTTL time.Duration, logger zerolog.Logger) *SyncService {
	if queueTTL <= 0 {
		queueTTL = queue.DefaultTTL
	}
	return &SyncService{
		registry: reg,
		queue:    q,
		pages:    pages,
		caps:     caps,
		queueTTL: queueTTL,
		logger:   logger.With().Str("component", "sync").Logger(),
	}
}

// Deliver gets one action to one client: push when a live connection
// exists, queue otherwise. A push failure is recovered locally (the
// connection is evicted and the action queued); only a storage failure
// surfaces as an error.
func (s *SyncService) Deliver(ctx context.Context, clientID string, action types.Action) (Outcome, error) {
	if err := ValidateClientID(clientID); err != nil {
		return OutcomeFailed, err
	}
	action.Timestamp = time.Now().UnixMilli()

	if s.caps.PersistentConnections {
		env := types.NewEnvelope(types.EnvelopeAction, action)
		if s.registry.Send(clientID, env) {
			s.logger.Debug().
				Str("client_id", clientID).
				Str("type", string(action.Type)).
				Msg("action pushed")
			return OutcomePushed, nil
		}
	}

	if err := s.queue.Enqueue(ctx, clientID, action, s.queueTTL); err != nil {
		return OutcomeFailed, fmt.Errorf("queue action for %s: %w", clientID, err)
	}
	s.logger.Debug().
		Str("client_id", clientID).
		Str("type", string(action.Type)).
		Msg("action queued")
	return OutcomeQueued, nil
}

// Poll drains the client's backlog. The read is destructive: returned
// actions will not be returned again, so the caller must treat the
// response as the full delivery. Clients should poll once right after
// establishing a push connection to flush anything queued while they
// were offline.
func (s *SyncService) Poll(ctx context.Context, clientID string) ([]types.Action, error) {
	if err := ValidateClientID(clientID); err != nil {
		return nil, err
	}
	return s.queue.Drain(ctx, clientID)
}

// Broadcast fans the action out to every registered connection and
// returns the number reached (legitimately 0 when nobody is connected).
// Without persistent connections it returns ErrBroadcastUnsupported;
// queue-based broadcast to all known clients is out of scope.
func (s *SyncService) Broadcast(_ context.Context, action types.Action) (int, error) {
	if !s.caps.PersistentConnections {
		return 0, ErrBroadcastUnsupported
	}
	action.Timestamp = time.Now().UnixMilli()
	env := types.NewEnvelope(types.EnvelopeAction, action)
	sent := s.registry.Broadcast(env, "")
	s.logger.Debug().Int("sent", sent).Str("type", string(action.Type)).Msg("action broadcast")
	return sent, nil
}

// UpdatePageState overwrites the client's stored snapshot.
func (s *SyncService) UpdatePageState(ctx context.Context, clientID string, state *types.PageState) error {
	if err := ValidateClientID(clientID); err != nil {
		return err
	}
	return s.pages.Set(ctx, clientID, state)
}

// PageState returns the client's stored snapshot, or nil.
func (s *SyncService) PageState(ctx context.Context, clientID string) (*types.PageState, error) {
	if err := ValidateClientID(clientID); err != nil {
		return nil, err
	}
	return s.pages.Get(ctx, clientID)
}

// DeletePageState removes the client's stored snapshot.
func (s *SyncService) DeletePageState(ctx context.Context, clientID string) error {
	if err := ValidateClientID(clientID); err != nil {
		return err
	}
	return s.pages.Delete(ctx, clientID)
}

// HasPageState reports whether a snapshot exists for the client.
func (s *SyncService) HasPageState(ctx context.Context, clientID string) (bool, error) {
	if ValidateClientID(clientID) != nil {
		return false, nil
	}
	return s.pages.Exists(ctx, clientID)
}

// ConnectionStats exposes the registry's observability view.
func (s *SyncService) ConnectionStats() types.RegistryStats {
	return s.registry.Stats()
}
