package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spec-kit/helpdesk-sla/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-sla/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Users          *handlers.UsersHandler
	Tickets        *handlers.TicketsHandler
	SLA            *handlers.SLAHandler
	Assignment     *handlers.AssignmentHandler
	Notifications  *handlers.NotificationsHandler
	AuthMiddleware *auth.AuthMiddleware
	// Gatherer backs /metrics. Nil skips the endpoint.
	Gatherer prometheus.Gatherer
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	api := app.Group("", cfg.AuthMiddleware.Handle)
	api.Get("/me", cfg.Users.Me)

	tickets := api.Group("/tickets")
	tickets.Post("/", cfg.Tickets.CreateTicket)
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Post("/:id/comments", cfg.Tickets.AddComment)
	tickets.Post("/:id/close", cfg.Tickets.CloseTicket)
	tickets.Patch("/:id/status", auth.RequireStaff(), cfg.Tickets.UpdateStatus)
	tickets.Post("/:id/assign", auth.RequireStaff(), cfg.Tickets.AssignTicket)
	tickets.Get("/:id/history", cfg.Tickets.ListHistory)

	slaGroup := api.Group("/sla", auth.RequireStaff())
	slaGroup.Get("/configurations", cfg.SLA.ListConfigurations)
	slaGroup.Put("/configurations", auth.RequireAdmin(), cfg.SLA.UpsertConfiguration)
	slaGroup.Delete("/configurations/:id", auth.RequireAdmin(), cfg.SLA.DeactivateConfiguration)
	slaGroup.Get("/alerts", cfg.SLA.Alerts)
	slaGroup.Post("/alerts/refresh", cfg.SLA.RefreshAlerts)
	slaGroup.Get("/metrics", cfg.SLA.Metrics)

	rules := api.Group("/assignment/rules", auth.RequireStaff())
	rules.Get("/", cfg.Assignment.ListRules)
	rules.Post("/", auth.RequireAdmin(), cfg.Assignment.CreateRule)
	rules.Put("/:id", auth.RequireAdmin(), cfg.Assignment.UpdateRule)
	rules.Delete("/:id", auth.RequireAdmin(), cfg.Assignment.DeactivateRule)

	admin := api.Group("/admin", auth.RequireAdmin())
	admin.Get("/workload", cfg.Assignment.Workload)
	admin.Post("/rebalance", cfg.Assignment.Rebalance)
	admin.Post("/reassign", cfg.Assignment.Reassign)

	notifications := api.Group("/notifications")
	notifications.Get("/", cfg.Notifications.List)
	notifications.Post("/:id/delivered", cfg.Notifications.MarkDelivered)
}
