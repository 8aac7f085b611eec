// Package routes wires the HTTP surface: the JSON API, the admin
// endpoints, and the push-channel upgrades (WebSocket, SSE). All
// delivery semantics live in the service; handlers are glue.
package routes

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/rs/zerolog"

	"github.com/edge-sync/state-server/src/registry"
	"github.com/edge-sync/state-server/src/service"
	"github.com/edge-sync/state-server/src/types"
)

// Router holds the handler dependencies.
type Router struct {
	svc     *service.SyncService
	reg     *registry.Registry
	logger  zerolog.Logger
	started time.Time
}

// New creates a Router over the given service and registry.
func New(svc *service.SyncService, reg *registry.Registry, logger zerolog.Logger) *Router {
	return &Router{
		svc:     svc,
		reg:     reg,
		logger:  logger.With().Str("component", "routes").Logger(),
		started: time.Now(),
	}
}

// Register mounts the API and admin routes on the fiber app.
func (r *Router) Register(app *fiber.App, corsOrigins []string) {
	corsMiddleware := cors.New(cors.Config{
		AllowOrigins: corsOrigins,
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Authorization"},
	})

	api := app.Group("/api", corsMiddleware)
	api.Get("/health", r.handleHealth)

	// Broadcast before the parameterized route so "broadcast" is never
	// read as a client id.
	api.Post("/action/broadcast", r.handleBroadcast)
	api.Post("/action/:clientId", r.handleDeliver)
	api.Get("/action/:clientId/poll", r.handlePoll)

	api.Get("/state/:clientId", r.handleGetState)
	api.Post("/state/:clientId", r.handleSetState)
	api.Delete("/state/:clientId", r.handleDeleteState)

	admin := app.Group("/admin", corsMiddleware)
	admin.Get("/status", r.handleStatus)
	admin.Get("/connections", r.handleConnections)
	admin.Delete("/connections/:clientId", r.handleDisconnect)
}

func (r *Router) handleHealth(c fiber.Ctx) error {
	return ok(c, fiber.Map{
		"status":      "healthy",
		"connections": r.svc.ConnectionStats(),
	})
}

// handleDeliver accepts an action for one client. A queued action is
// still a success: sent=false just means the client will pick it up by
// polling instead of push.
func (r *Router) handleDeliver(c fiber.Ctx) error {
	clientID := c.Params("clientId")

	var action types.Action
	if err := json.Unmarshal(c.Body(), &action); err != nil {
		return fail(c, fiber.StatusBadRequest, err)
	}
	if err := service.ValidateAction(action); err != nil {
		return fail(c, fiber.StatusBadRequest, err)
	}

	outcome, err := r.svc.Deliver(c.Context(), clientID, action)
	switch {
	case errors.Is(err, service.ErrInvalidClientID):
		return fail(c, fiber.StatusBadRequest, err)
	case err != nil:
		r.logger.Error().Err(err).Str("client_id", clientID).Msg("delivery failed")
		return fail(c, fiber.StatusInternalServerError, err)
	}

	message := "Action queued (connection not active)"
	if outcome == service.OutcomePushed {
		message = "Action sent successfully"
	}
	return ok(c, fiber.Map{
		"sent":    outcome == service.OutcomePushed,
		"message": message,
	})
}

// handlePoll drains the client's backlog. The response is the full
// delivery: these actions will not be returned again.
func (r *Router) handlePoll(c fiber.Ctx) error {
	clientID := c.Params("clientId")

	actions, err := r.svc.Poll(c.Context(), clientID)
	switch {
	case errors.Is(err, service.ErrInvalidClientID):
		return fail(c, fiber.StatusBadRequest, err)
	case err != nil:
		r.logger.Error().Err(err).Str("client_id", clientID).Msg("poll failed")
		return fail(c, fiber.StatusInternalServerError, err)
	}
	if actions == nil {
		actions = []types.Action{}
	}
	return ok(c, fiber.Map{
		"actions": actions,
		"count":   len(actions),
	})
}

func (r *Router) handleBroadcast(c fiber.Ctx) error {
	var action types.Action
	if err := json.Unmarshal(c.Body(), &action); err != nil {
		return fail(c, fiber.StatusBadRequest, err)
	}
	if err := service.ValidateAction(action); err != nil {
		return fail(c, fiber.StatusBadRequest, err)
	}

	sent, err := r.svc.Broadcast(c.Context(), action)
	if errors.Is(err, service.ErrBroadcastUnsupported) {
		return fail(c, fiber.StatusNotImplemented, err)
	}
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, err)
	}
	return ok(c, fiber.Map{"sent": sent})
}

func (r *Router) handleGetState(c fiber.Ctx) error {
	clientID := c.Params("clientId")

	state, err := r.svc.PageState(c.Context(), clientID)
	switch {
	case errors.Is(err, service.ErrInvalidClientID):
		return fail(c, fiber.StatusBadRequest, err)
	case err != nil:
		return fail(c, fiber.StatusInternalServerError, err)
	}
	return ok(c, state)
}

func (r *Router) handleSetState(c fiber.Ctx) error {
	clientID := c.Params("clientId")

	var state types.PageState
	if err := json.Unmarshal(c.Body(), &state); err != nil {
		return fail(c, fiber.StatusBadRequest, err)
	}
	if err := service.ValidatePageState(&state); err != nil {
		return fail(c, fiber.StatusBadRequest, err)
	}

	err := r.svc.UpdatePageState(c.Context(), clientID, &state)
	switch {
	case errors.Is(err, service.ErrInvalidClientID):
		return fail(c, fiber.StatusBadRequest, err)
	case err != nil:
		return fail(c, fiber.StatusInternalServerError, err)
	}
	return ok(c, fiber.Map{"message": "Page state updated successfully"})
}

func (r *Router) handleDeleteState(c fiber.Ctx) error {
	clientID := c.Params("clientId")

	err := r.svc.DeletePageState(c.Context(), clientID)
	switch {
	case errors.Is(err, service.ErrInvalidClientID):
		return fail(c, fiber.StatusBadRequest, err)
	case err != nil:
		return fail(c, fiber.StatusInternalServerError, err)
	}
	return ok(c, fiber.Map{"message": "Page state deleted successfully"})
}
