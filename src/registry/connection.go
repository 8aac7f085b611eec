package registry

import (
	"time"

	"github.com/edge-sync/state-server/src/types"
)

// Connection is one live push channel for one client. At most one
// Connection per client id exists in the registry at any time.
type Connection struct {
	ClientID string
	ConnID   string

	transport    types.Transport
	connectedAt  time.Time
	lastActivity time.Time // guarded by the registry mutex
}

// Info returns metadata about this connection.
func (c *Connection) Info() types.ClientInfo {
	return types.ClientInfo{
		ClientID:     c.ClientID,
		ConnID:       c.ConnID,
		Transport:    c.transport.Name(),
		ConnectedAt:  c.connectedAt.UnixMilli(),
		LastActivity: c.lastActivity.UnixMilli(),
	}
}
