package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/api/dto"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/service"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// ApprovalsHandler serves the approval gate endpoints.
type ApprovalsHandler struct {
	service *service.TicketService
}

// NewApprovalsHandler constructs handler.
func NewApprovalsHandler(ticketService *service.TicketService) *ApprovalsHandler {
	return &ApprovalsHandler{service: ticketService}
}

// ListPending GET /approvals/tickets/:ticketId/pending.
func (h *ApprovalsHandler) ListPending(c *fiber.Ctx) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return err
	}
	ticketID, err := pathID(c, "ticketId", "ticket")
	if err != nil {
		return err
	}
	pending, err := h.service.ListPendingApprovals(c.UserContext(), ticketID, actor)
	if err != nil {
		return err
	}
	items := make([]dto.ApprovalResponse, 0, len(pending))
	for i := range pending {
		items = append(items, approvalResponse(&pending[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Approve POST /approvals/:id/approve.
func (h *ApprovalsHandler) Approve(c *fiber.Ctx) error {
	return h.decide(c, domain.DecisionApprove)
}

// Reject POST /approvals/:id/reject.
func (h *ApprovalsHandler) Reject(c *fiber.Ctx) error {
	return h.decide(c, domain.DecisionReject)
}

func (h *ApprovalsHandler) decide(c *fiber.Ctx, decision domain.ApprovalDecision) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id", "approval request")
	if err != nil {
		return err
	}
	result, err := h.service.DecideApproval(c.UserContext(), id, decision, actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": decisionResponse(result)})
}

// Confirm GET /approvals/confirm/:token?decision=approve|reject. It is reached from the
// emailed links, so it redirects to the web app instead of answering with JSON. A token
// that was already used lands on the same page with the request's current status.
func (h *ApprovalsHandler) Confirm(c *fiber.Ctx) error {
	decision := domain.ApprovalDecision(strings.ToLower(strings.TrimSpace(c.Query("decision"))))
	if !decision.Valid() {
		return apperrors.NewValidationError("decision must be approve or reject", map[string]any{"decision": c.Query("decision")})
	}
	token := c.Params("token")

	result, err := h.service.DecideApprovalByToken(c.UserContext(), token, decision)
	if err == nil {
		return c.Redirect(h.service.ApprovalLink(result.Approval), fiber.StatusFound)
	}
	if !apperrors.IsNotFound(err) {
		return err
	}
	existing, lookupErr := h.service.FindApprovalByToken(c.UserContext(), token)
	if lookupErr != nil {
		return lookupErr
	}
	return c.Redirect(h.service.ApprovalLink(existing), fiber.StatusFound)
}
