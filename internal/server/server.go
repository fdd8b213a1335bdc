// Package server assembles the fiber application: global middleware, the Admission Gate,
// the REST routes and the lobby WebSocket route.
package server

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"go.uber.org/zap"

	"github.com/trentd187/activity-lobby/internal/config"
	"github.com/trentd187/activity-lobby/internal/handlers"
	"github.com/trentd187/activity-lobby/internal/hub"
	"github.com/trentd187/activity-lobby/internal/middleware"
)

// Deps are the collaborators the routes are built from.
type Deps struct {
	Log      *zap.Logger
	Hub      *hub.Hub
	Verifier middleware.TokenVerifier

	// Exchanger and Signer back POST /api/token. When Exchanger is nil the route answers 503.
	Exchanger handlers.CodeExchanger
	Signer    handlers.TokenSigner
}

// New builds the application. Nothing is listening until the caller calls Listen.
func New(cfg *config.Config, deps Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "Activity Lobby",
		DisableStartupMessage: true,
	})

	// --- Global middleware ---
	// Request logging and CORS run first; the Admission Gate must see every upgrade request
	// before any route can, so it is registered ahead of all of them.
	app.Use(logger.New())
	app.Use(cors.New())
	app.Use(middleware.Admission(cfg.WSPath, deps.Verifier, deps.Log))

	// --- Public routes ---
	app.Get("/health", handlers.HealthCheck(deps.Hub))
	if deps.Exchanger != nil {
		app.Post("/api/token", handlers.ExchangeToken(deps.Exchanger, deps.Signer, deps.Log))
	} else {
		app.Post("/api/token", func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "token exchange is not configured",
			})
		})
	}

	// --- Authenticated API routes ---
	api := app.Group("/api/v1", middleware.Auth(deps.Verifier, deps.Log))
	api.Get("/rooms", handlers.GetRooms(deps.Hub.Matchmaker()))
	api.Get("/rooms/:instanceID", handlers.GetRoom(deps.Hub.Matchmaker()))

	// --- Lobby WebSocket ---
	app.Get(cfg.WSPath, handlers.WebSocket(deps.Hub, cfg.WriteTimeout, deps.Log))

	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	return app
}
