package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/api/dto"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/service"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// TicketsHandler manages ticket endpoints.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	requesterID := actor.UserID
	if req.RequesterID != nil && strings.TrimSpace(*req.RequesterID) != "" && *req.RequesterID != actor.UserID {
		if !actor.Role.IsStaff() {
			return apperrors.NewForbidden("only staff can file tickets for another requester")
		}
		requesterID = strings.TrimSpace(*req.RequesterID)
	}

	result, err := h.service.CreateTicket(c.UserContext(), service.CreateTicketInput{
		Title:               req.Title,
		Description:         req.Description,
		RequesterID:         requesterID,
		Priority:            req.Priority,
		SourceType:          req.SourceType,
		SourceReference:     req.SourceReference,
		IntegrationMetadata: req.IntegrationMetadata,
		PerformedBy:         actor.UserID,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": createTicketResponse(result)})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id", "ticket")
	if err != nil {
		return err
	}
	ticket, trail, err := h.service.GetTicket(c.UserContext(), id, actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket, trail)})
}

// ChangeStatus POST /tickets/:id/status.
func (h *TicketsHandler) ChangeStatus(c *fiber.Ctx) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return err
	}
	var req dto.ChangeStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	status := domain.TicketStatus(strings.ToUpper(strings.TrimSpace(string(req.Status))))
	if !status.Valid() {
		return apperrors.NewValidationError("unknown status", map[string]any{"status": req.Status})
	}
	id, err := pathID(c, "id", "ticket")
	if err != nil {
		return err
	}
	ticket, err := h.service.ChangeStatus(c.UserContext(), id, status, actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// Assign POST /tickets/:id/assign.
func (h *TicketsHandler) Assign(c *fiber.Ctx) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return err
	}
	var req dto.AssignTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if blank(req.TeamID) && blank(req.AgentID) {
		return apperrors.NewValidationError("team_id or agent_id required", nil)
	}
	id, err := pathID(c, "id", "ticket")
	if err != nil {
		return err
	}
	ticket, err := h.service.Assign(c.UserContext(), id, nonBlank(req.TeamID), nonBlank(req.AgentID), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

func blank(value *string) bool {
	return value == nil || strings.TrimSpace(*value) == ""
}

func nonBlank(value *string) *string {
	if blank(value) {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	return &trimmed
}
