package routes

import (
	"net"
	"strings"
	"sync"

	"github.com/fasthttp/websocket"
	"github.com/valyala/fasthttp"

	"github.com/edge-sync/state-server/src/service"
	"github.com/edge-sync/state-server/src/types"
)

var upgrader = websocket.FastHTTPUpgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(_ *fasthttp.RequestCtx) bool { return true },
}

// wsTransport adapts a WebSocket connection to types.Transport.
// The mutex serializes writers: the delivery path, the heartbeat
// sweeper, and the pong replies all send concurrently.
type wsTransport struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	closed bool
}

func (t *wsTransport) Send(env types.Envelope) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return net.ErrClosed
	}
	return t.conn.WriteJSON(env)
}

func (t *wsTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.conn.Close()
}

func (t *wsTransport) Name() string { return "websocket" }

// WebSocketHandler returns a raw fasthttp handler for WebSocket
// upgrades at /ws/{clientId}. It is registered at the fasthttp server
// level because fiber v3 does not expose *fasthttp.RequestCtx.
func (r *Router) WebSocketHandler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		if !strings.EqualFold(string(ctx.Request.Header.Peek("Upgrade")), "websocket") {
			ctx.SetStatusCode(fasthttp.StatusUpgradeRequired)
			ctx.SetBodyString(`{"error":"websocket upgrade required"}`)
			return
		}

		clientID := clientIDFromPath(string(ctx.Path()), "/ws/")
		if err := service.ValidateClientID(clientID); err != nil {
			ctx.SetStatusCode(fasthttp.StatusBadRequest)
			ctx.SetBodyString(`{"error":"invalid clientId"}`)
			return
		}

		err := upgrader.Upgrade(ctx, func(conn *websocket.Conn) {
			transport := &wsTransport{conn: conn}
			registered := r.reg.Register(clientID, transport)
			r.readLoop(clientID, conn)
			r.reg.EvictConn(clientID, registered.ConnID)
		})
		if err != nil {
			r.logger.Warn().Err(err).Str("client_id", clientID).Msg("websocket upgrade failed")
		}
	}
}

// readLoop consumes inbound frames until the connection breaks. Any
// inbound message counts as liveness; pings are answered with pongs.
func (r *Router) readLoop(clientID string, conn *websocket.Conn) {
	for {
		var env types.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return
		}
		r.reg.Touch(clientID)

		switch env.Type {
		case types.EnvelopePing:
			r.reg.Send(clientID, types.NewEnvelope(types.EnvelopePong, nil))
		case types.EnvelopePong, types.EnvelopeHeartbeat:
			// liveness only, already touched
		default:
			r.logger.Debug().
				Str("client_id", clientID).
				Str("type", env.Type).
				Msg("unhandled inbound message")
		}
	}
}

// clientIDFromPath extracts the trailing path segment after prefix.
func clientIDFromPath(path, prefix string) string {
	id := strings.TrimPrefix(path, prefix)
	return strings.Trim(id, "/")
}
