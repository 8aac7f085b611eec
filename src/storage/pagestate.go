package storage

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/edge-sync/state-server/src/types"
)

// PageStates persists the last-known UI snapshot per client. Each
// update overwrites the previous snapshot wholesale.
type PageStates struct {
	store  KeyValueStore
	ttl    time.Duration
	logger zerolog.Logger
}

// NewPageStates creates a page-state layer over the given store.
func NewPageStates(store KeyValueStore, ttl time.Duration, logger zerolog.Logger) *PageStates {
	return &PageStates{
		store:  store,
		ttl:    ttl,
		logger: logger.With().Str("component", "pagestate").Logger(),
	}
}

func pageKey(clientID string) string { return "page:" + clientID }

// Set stores the snapshot for clientID, stamping the client id and the
// current time on the way in.
func (p *PageStates) Set(ctx context.Context, clientID string, state *types.PageState) error {
	state.ClientID = clientID
	state.Timestamp = time.Now().UnixMilli()

	if err := p.store.Set(ctx, pageKey(clientID), state, p.ttl); err != nil {
		return err
	}
	p.logger.Debug().Str("client_id", clientID).Str("url", state.URL).Msg("page state updated")
	return nil
}

// Get returns the snapshot for clientID, or nil when none is stored.
func (p *PageStates) Get(ctx context.Context, clientID string) (*types.PageState, error) {
	var state types.PageState
	ok, err := p.store.Get(ctx, pageKey(clientID), &state)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &state, nil
}

// Delete removes the snapshot for clientID.
func (p *PageStates) Delete(ctx context.Context, clientID string) error {
	return p.store.Delete(ctx, pageKey(clientID))
}

// Exists reports whether a snapshot is stored for clientID.
func (p *PageStates) Exists(ctx context.Context, clientID string) (bool, error) {
	return p.store.Exists(ctx, pageKey(clientID))
}
