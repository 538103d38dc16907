package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jovemegidio/sistemaerp-suporte/internal/api/http/handlers"
	"github.com/jovemegidio/sistemaerp-suporte/internal/auth"
	"github.com/jovemegidio/sistemaerp-suporte/internal/relay"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health          *handlers.HealthHandler
	Tickets         *handlers.TicketsHandler
	Knowledge       *handlers.KnowledgeHandler
	Hub             *relay.Hub
	AdminMiddleware *auth.AdminMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	tickets := app.Group("/tickets")
	tickets.Post("/", cfg.Tickets.CreateTicket)
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Get("/stats", cfg.Tickets.Stats)
	tickets.Get("/knowledge/all", cfg.Knowledge.List)
	tickets.Post("/knowledge", cfg.AdminMiddleware.Handle, cfg.Knowledge.Create)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Get("/:id/messages", cfg.Tickets.ListMessages)

	app.Use("/ws", relay.UpgradeMiddleware())
	app.Get("/ws/suporte", cfg.Hub.Handler())
}
