// Package handlers contains the fiber route handlers of the lobby server.
// Each exported function is a handler factory: it takes its dependencies and returns a
// fiber.Handler, so nothing here reaches for global state.
package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/trentd187/activity-lobby/internal/hub"
)

// HealthCheck handles GET /health: a cheap liveness probe for load balancers and the
// Discord proxy that also reports how many sessions and rooms are live.
func HealthCheck(h *hub.Hub) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":   "ok",
			"sessions": h.Registry().Count(),
			"rooms":    h.Matchmaker().RoomCount(),
		})
	}
}
