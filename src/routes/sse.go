package routes

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/valyala/fasthttp"

	"github.com/edge-sync/state-server/src/service"
	"github.com/edge-sync/state-server/src/types"
)

// sseSendBuffer bounds envelopes waiting for the stream writer. A full
// buffer fails the send, which evicts the connection.
const sseSendBuffer = 64

var errSSEBufferFull = errors.New("sse send buffer full")

// sseTransport adapts a server-sent-events stream to types.Transport.
// Send hands envelopes to the stream writer goroutine; a broken stream
// surfaces as a flush error there, which tears the connection down.
type sseTransport struct {
	ch     chan types.Envelope
	mu     sync.Mutex
	closed bool
}

func newSSETransport() *sseTransport {
	return &sseTransport{ch: make(chan types.Envelope, sseSendBuffer)}
}

func (t *sseTransport) Send(env types.Envelope) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return net.ErrClosed
	}
	select {
	case t.ch <- env:
		return nil
	default:
		return errSSEBufferFull
	}
}

func (t *sseTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.ch)
	return nil
}

func (t *sseTransport) Name() string { return "sse" }

// SSEHandler returns a raw fasthttp handler streaming envelopes at
// /sse/{clientId}. SSE is one-directional, so a successful flush is
// the liveness signal: each flushed envelope refreshes the
// connection's activity.
func (r *Router) SSEHandler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		clientID := clientIDFromPath(string(ctx.Path()), "/sse/")
		if err := service.ValidateClientID(clientID); err != nil {
			ctx.SetStatusCode(fasthttp.StatusBadRequest)
			ctx.SetBodyString(`{"error":"invalid clientId"}`)
			return
		}

		ctx.Response.Header.Set("Content-Type", "text/event-stream")
		ctx.Response.Header.Set("Cache-Control", "no-cache")
		ctx.Response.Header.Set("Connection", "keep-alive")
		ctx.Response.Header.Set("Access-Control-Allow-Origin", "*")

		transport := newSSETransport()

		ctx.SetBodyStreamWriter(func(w *bufio.Writer) {
			registered := r.reg.Register(clientID, transport)
			defer r.reg.EvictConn(clientID, registered.ConnID)

			for env := range transport.ch {
				data, err := json.Marshal(env)
				if err != nil {
					r.logger.Error().Err(err).Str("client_id", clientID).Msg("sse encode failed")
					continue
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
				r.reg.Touch(clientID)
			}
		})
	}
}
