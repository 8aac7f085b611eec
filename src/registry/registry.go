package registry

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/edge-sync/state-server/src/types"
)

const (
	// DefaultHeartbeatInterval is how often the sweeper probes connections.
	DefaultHeartbeatInterval = 30 * time.Second

	// timeoutFactor tolerates one missed heartbeat before eviction.
	timeoutFactor = 3
)

// Registry tracks zero-or-one live push connection per client id.
// It is process-local and in-memory: connections never survive the
// process, which is why queued delivery goes through external storage.
type Registry struct {
	conns map[string]*Connection

	heartbeatInterval time.Duration
	timeout           time.Duration
	clock             func() time.Time

	mu     sync.RWMutex
	logger zerolog.Logger
	done   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// Option customizes a Registry.
type Option func(*Registry)

// WithHeartbeatInterval overrides the sweep interval. The eviction
// threshold follows as 3x the interval.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(r *Registry) {
		r.heartbeatInterval = d
		r.timeout = timeoutFactor * d
	}
}

// WithClock injects a time source, for tests.
func WithClock(clock func() time.Time) Option {
	return func(r *Registry) { r.clock = clock }
}

// New creates an empty registry.
func New(logger zerolog.Logger, opts ...Option) *Registry {
	r := &Registry{
		conns:             make(map[string]*Connection),
		heartbeatInterval: DefaultHeartbeatInterval,
		timeout:           timeoutFactor * DefaultHeartbeatInterval,
		clock:             time.Now,
		logger:            logger.With().Str("component", "registry").Logger(),
		done:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a connection for clientID, atomically closing and
// replacing any existing one. The new transport receives a welcome
// envelope; a transport that cannot even take the welcome is evicted
// immediately.
func (r *Registry) Register(clientID string, transport types.Transport) *Connection {
	now := r.clock()
	conn := &Connection{
		ClientID:     clientID,
		ConnID:       uuid.New().String(),
		transport:    transport,
		connectedAt:  now,
		lastActivity: now,
	}

	r.mu.Lock()
	old := r.conns[clientID]
	r.conns[clientID] = conn
	total := len(r.conns)
	r.mu.Unlock()

	if old != nil {
		_ = old.transport.Close()
		r.logger.Info().Str("client_id", clientID).Msg("replaced existing connection")
	}

	r.logger.Info().
		Str("client_id", clientID).
		Str("conn_id", conn.ConnID).
		Str("transport", transport.Name()).
		Int("total", total).
		Msg("connection registered")

	welcome := types.NewEnvelope(types.EnvelopeWelcome, map[string]any{
		"message":  "connection established",
		"clientId": clientID,
	})
	if err := transport.Send(welcome); err != nil {
		r.logger.Warn().Err(err).Str("client_id", clientID).Msg("welcome send failed")
		r.evict(clientID, conn.ConnID)
	}
	return conn
}

// Send delivers one envelope to the client's connection. It returns
// false when no connection exists or the send fails; a failed send
// evicts the connection so the caller can fall back to queuing.
// The registry lock is never held across the transport write.
func (r *Registry) Send(clientID string, env types.Envelope) bool {
	r.mu.RLock()
	conn, ok := r.conns[clientID]
	var transport types.Transport
	var connID string
	if ok {
		transport = conn.transport
		connID = conn.ConnID
	}
	r.mu.RUnlock()

	if !ok {
		return false
	}

	if err := transport.Send(env); err != nil {
		r.logger.Warn().Err(err).
			Str("client_id", clientID).
			Str("type", env.Type).
			Msg("send failed, evicting connection")
		r.evict(clientID, connID)
		return false
	}

	r.touch(clientID, connID)
	return true
}

// Broadcast sends the envelope to every registered connection except
// excludeID. Connections whose send fails are evicted. Returns the
// number of successful sends.
func (r *Registry) Broadcast(env types.Envelope, excludeID string) int {
	type target struct {
		clientID  string
		connID    string
		transport types.Transport
	}

	r.mu.RLock()
	targets := make([]target, 0, len(r.conns))
	for id, conn := range r.conns {
		if excludeID != "" && id == excludeID {
			continue
		}
		targets = append(targets, target{id, conn.ConnID, conn.transport})
	}
	r.mu.RUnlock()

	sent := 0
	for _, t := range targets {
		if err := t.transport.Send(env); err != nil {
			r.logger.Warn().Err(err).Str("client_id", t.clientID).Msg("broadcast send failed")
			r.evict(t.clientID, t.connID)
			continue
		}
		r.touch(t.clientID, t.connID)
		sent++
	}
	return sent
}

// Evict closes and removes the client's connection. Idempotent.
func (r *Registry) Evict(clientID string) {
	r.evict(clientID, "")
}

// EvictConn removes the connection only if it is still the given
// instance. Transport goroutines use this on teardown so they never
// tear down a replacement connection that registered meanwhile.
func (r *Registry) EvictConn(clientID, connID string) {
	r.evict(clientID, connID)
}

// Touch refreshes the connection's activity timestamp. Called on any
// inbound message, including heartbeat replies.
func (r *Registry) Touch(clientID string) {
	r.touch(clientID, "")
}

// Has reports whether a connection exists for clientID.
func (r *Registry) Has(clientID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[clientID]
	return ok
}

// Count returns the number of registered connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// ClientIDs returns the ids of all registered connections.
func (r *Registry) ClientIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	return ids
}

// Info returns connection metadata for clientID, or nil.
func (r *Registry) Info(clientID string) *types.ClientInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[clientID]
	if !ok {
		return nil
	}
	info := conn.Info()
	return &info
}

// Connections returns metadata for every registered connection.
func (r *Registry) Connections() []types.ClientInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	infos := make([]types.ClientInfo, 0, len(r.conns))
	for _, conn := range r.conns {
		infos = append(infos, conn.Info())
	}
	return infos
}

// Stats returns a derived view for observability.
func (r *Registry) Stats() types.RegistryStats {
	now := r.clock()

	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := types.RegistryStats{
		Total:     len(r.conns),
		ClientIDs: make([]string, 0, len(r.conns)),
	}
	var totalUptime time.Duration
	var oldest time.Duration
	for id, conn := range r.conns {
		stats.ClientIDs = append(stats.ClientIDs, id)
		uptime := now.Sub(conn.connectedAt)
		totalUptime += uptime
		if uptime > oldest {
			oldest = uptime
		}
	}
	if len(r.conns) > 0 {
		stats.AverageUptimeSec = int64(totalUptime.Seconds()) / int64(len(r.conns))
		stats.OldestUptimeSec = int64(oldest.Seconds())
	}
	return stats
}

// evict removes the connection for clientID. When connID is non-empty,
// only that connection instance is removed; this keeps a concurrent
// re-register from losing its fresh connection to a stale eviction.
func (r *Registry) evict(clientID, connID string) {
	r.mu.Lock()
	conn, ok := r.conns[clientID]
	if !ok || (connID != "" && conn.ConnID != connID) {
		r.mu.Unlock()
		return
	}
	delete(r.conns, clientID)
	remaining := len(r.conns)
	r.mu.Unlock()

	_ = conn.transport.Close()
	r.logger.Info().
		Str("client_id", clientID).
		Int("remaining", remaining).
		Msg("connection evicted")
}

func (r *Registry) touch(clientID, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.conns[clientID]
	if !ok || (connID != "" && conn.ConnID != connID) {
		return
	}
	conn.lastActivity = r.clock()
}
