package types

import "time"

// ActionType enumerates the UI actions a backend may push to a client.
type ActionType string

const (
	ActionNavigate ActionType = "navigate"
	ActionClick    ActionType = "click"
	ActionInput    ActionType = "input"
	ActionScroll   ActionType = "scroll"
	ActionCustom   ActionType = "custom"
)

// Valid reports whether t is one of the known action types.
func (t ActionType) Valid() bool {
	switch t {
	case ActionNavigate, ActionClick, ActionInput, ActionScroll, ActionCustom:
		return true
	}
	return false
}

// Action is a UI-control message addressed to one client.
type Action struct {
	Type      ActionType `json:"type"`
	Target    string     `json:"target,omitempty"`
	Payload   any        `json:"payload,omitempty"`
	Timestamp int64      `json:"timestamp"`
}

// QueuedAction wraps an Action while it sits in a client's durable backlog.
type QueuedAction struct {
	Action    Action `json:"action"`
	QueuedAt  int64  `json:"queuedAt"`
	ExpiresAt int64  `json:"expiresAt"`
}

// Expired reports whether the entry is past its expiry at the given time.
func (q QueuedAction) Expired(now time.Time) bool {
	return q.ExpiresAt <= now.UnixMilli()
}

// PageState is the last-known UI snapshot reported by a client.
// It is overwritten wholesale on each update.
type PageState struct {
	URL            string         `json:"url"`
	Title          string         `json:"title"`
	Timestamp      int64          `json:"timestamp"`
	ClientID       string         `json:"clientId,omitempty"`
	Inputs         map[string]any `json:"inputs,omitempty"`
	Forms          map[string]any `json:"forms,omitempty"`
	ScrollPosition *Point         `json:"scrollPosition,omitempty"`
	Viewport       *Size          `json:"viewport,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CustomData     map[string]any `json:"customData,omitempty"`
}

// Point is a scroll offset in CSS pixels.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Size is a viewport size in CSS pixels.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Envelope is the message frame sent on any push channel.
type Envelope struct {
	Type      string `json:"type"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Reserved envelope types.
const (
	EnvelopeWelcome   = "welcome"
	EnvelopePing      = "ping"
	EnvelopePong      = "pong"
	EnvelopeHeartbeat = "heartbeat"
	EnvelopeAction    = "action"
	EnvelopeError     = "error"
)

// NewEnvelope stamps an envelope of the given type with the current time.
func NewEnvelope(envType string, data any) Envelope {
	return Envelope{
		Type:      envType,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}
}

// Transport is one live push channel to a client (WebSocket, SSE, ...).
// The registry and the delivery path only ever use this interface and
// never branch on the concrete implementation.
type Transport interface {
	// Send writes one envelope to the peer. An error means the channel
	// is unusable; the caller evicts the connection.
	Send(env Envelope) error

	// Close tears the channel down. Safe to call more than once.
	Close() error

	// Name identifies the transport kind for observability ("websocket",
	// "sse"). Never used for control flow.
	Name() string
}

// ClientInfo holds metadata about one registered connection.
type ClientInfo struct {
	ClientID     string `json:"clientId"`
	ConnID       string `json:"connId"`
	Transport    string `json:"transport"`
	ConnectedAt  int64  `json:"connectedAt"`
	LastActivity int64  `json:"lastActivity"`
}

// RegistryStats is a derived, read-only view over the connection registry.
type RegistryStats struct {
	Total            int      `json:"total"`
	ClientIDs        []string `json:"clientIds"`
	AverageUptimeSec int64    `json:"averageUptime"`
	OldestUptimeSec  int64    `json:"oldestConnection"`
}
