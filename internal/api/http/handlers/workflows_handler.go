package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/api/dto"
	"github.com/spec-kit/helpdesk/internal/service"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// WorkflowsHandler lets administrators run a workflow by hand.
type WorkflowsHandler struct {
	service *service.TicketService
}

// NewWorkflowsHandler constructs handler.
func NewWorkflowsHandler(ticketService *service.TicketService) *WorkflowsHandler {
	return &WorkflowsHandler{service: ticketService}
}

// Execute POST /workflows/:id/execute.
func (h *WorkflowsHandler) Execute(c *fiber.Ctx) error {
	var req dto.ExecuteWorkflowRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}
	id, err := pathID(c, "id", "workflow")
	if err != nil {
		return err
	}
	execution, err := h.service.ExecuteWorkflowByID(c.UserContext(), id, req.Input, nonBlank(req.TicketID), nonBlank(req.SessionID))
	if errors.Is(err, service.ErrEngineUnavailable) {
		return apperrors.NewDomainError("WORKFLOWS_DISABLED", err.Error(), fiber.StatusServiceUnavailable, nil)
	}
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": executionResponse(execution)})
}
