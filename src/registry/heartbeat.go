package registry

import (
	"context"
	"time"

	"github.com/edge-sync/state-server/src/types"
)

// Start launches the heartbeat sweeper. It probes every connection at
// the configured interval and evicts any connection that has shown no
// activity for longer than three intervals. Call Stop to shut it down.
func (r *Registry) Start(ctx context.Context) {
	r.wg.Add(1)
	go r.sweepLoop(ctx)
}

// Stop halts the sweeper and closes all connections.
func (r *Registry) Stop() {
	r.once.Do(func() { close(r.done) })
	r.wg.Wait()

	for _, id := range r.ClientIDs() {
		r.Evict(id)
	}
}

func (r *Registry) sweepLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Sweep()
		case <-ctx.Done():
			return
		case <-r.done:
			return
		}
	}
}

// Sweep runs one heartbeat pass: stale connections are evicted, live
// ones receive a heartbeat probe. Unlike Send, a probe does not refresh
// lastActivity; only inbound traffic keeps a connection alive, so a
// writable but silent peer still times out. Exported so the policy can
// be tested without waiting on the ticker.
func (r *Registry) Sweep() {
	now := r.clock()

	type probe struct {
		clientID  string
		connID    string
		transport types.Transport
		stale     bool
	}

	r.mu.RLock()
	probes := make([]probe, 0, len(r.conns))
	for id, conn := range r.conns {
		probes = append(probes, probe{
			clientID:  id,
			connID:    conn.ConnID,
			transport: conn.transport,
			stale:     now.Sub(conn.lastActivity) > r.timeout,
		})
	}
	r.mu.RUnlock()

	for _, p := range probes {
		if p.stale {
			r.logger.Info().Str("client_id", p.clientID).Msg("heartbeat timeout")
			r.evict(p.clientID, p.connID)
			continue
		}
		env := types.NewEnvelope(types.EnvelopeHeartbeat, map[string]any{
			"timestamp": now.UnixMilli(),
		})
		if err := p.transport.Send(env); err != nil {
			r.logger.Warn().Err(err).Str("client_id", p.clientID).Msg("heartbeat probe failed")
			r.evict(p.clientID, p.connID)
		}
	}
}
