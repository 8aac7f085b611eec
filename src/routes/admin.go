package routes

import (
	"time"

	"github.com/gofiber/fiber/v3"
)

const serverVersion = "1.0.0"

func (r *Router) handleStatus(c fiber.Ctx) error {
	return ok(c, fiber.Map{
		"service":     "Edge Sync State Server",
		"version":     serverVersion,
		"uptime":      int64(time.Since(r.started).Seconds()),
		"connections": r.svc.ConnectionStats(),
	})
}

func (r *Router) handleConnections(c fiber.Ctx) error {
	conns := r.reg.Connections()
	return ok(c, fiber.Map{
		"total":       len(conns),
		"connections": conns,
	})
}

// handleDisconnect force-evicts a client's push connection. The client
// falls back to polling until it reconnects.
func (r *Router) handleDisconnect(c fiber.Ctx) error {
	clientID := c.Params("clientId")
	existed := r.reg.Has(clientID)
	r.reg.Evict(clientID)

	r.logger.Info().Str("client_id", clientID).Bool("existed", existed).Msg("admin disconnect")
	return ok(c, fiber.Map{
		"disconnected": existed,
	})
}
