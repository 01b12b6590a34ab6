package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/helpdesk/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	Approvals      *handlers.ApprovalsHandler
	Workflows      *handlers.WorkflowsHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))

	api := app.Group("/api/v1")

	// Reached from emailed links, authenticated by the token itself.
	api.Get("/approvals/confirm/:token", cfg.Approvals.Confirm)

	protected := api.Group("", cfg.AuthMiddleware.Handle, auth.RequireRoles())

	tickets := protected.Group("/tickets")
	tickets.Post("", cfg.Tickets.CreateTicket)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Post("/:id/status", cfg.Tickets.ChangeStatus)
	tickets.Post("/:id/assign", auth.RequireStaff(), cfg.Tickets.Assign)

	approvals := protected.Group("/approvals")
	approvals.Get("/tickets/:ticketId/pending", cfg.Approvals.ListPending)
	approvals.Post("/:id/approve", cfg.Approvals.Approve)
	approvals.Post("/:id/reject", cfg.Approvals.Reject)

	protected.Post("/workflows/:id/execute", auth.RequireRoles(domain.UserRoleAdmin), cfg.Workflows.Execute)
}
