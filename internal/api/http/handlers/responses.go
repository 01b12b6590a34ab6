package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/spec-kit/helpdesk/internal/api/dto"
	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/service"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

func actorFromContext(c *fiber.Ctx) (service.Actor, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return service.Actor{}, apperrors.NewUnauthorized("authentication required")
	}
	return service.Actor{UserID: principal.User.ID, Role: principal.Role()}, nil
}

// pathID returns the named route parameter. Ids are uuids, so anything else cannot exist.
func pathID(c *fiber.Ctx, param, resource string) (string, error) {
	id := c.Params(param)
	if _, err := uuid.Parse(id); err != nil {
		return "", apperrors.NewNotFound(resource, map[string]any{"id": id})
	}
	return id, nil
}

func ticketResponse(ticket *domain.Ticket) dto.TicketResponse {
	return dto.TicketResponse{
		ID:                  ticket.ID,
		Ref:                 ticket.Ref(),
		Title:               ticket.Title,
		Description:         ticket.Description,
		RequesterID:         ticket.RequesterID,
		Category:            ticket.Category,
		Priority:            ticket.Priority,
		Status:              ticket.Status,
		AssignedTeamID:      ticket.AssignedTeamID,
		AssignedAgentID:     ticket.AssignedAgentID,
		AIConfidence:        ticket.AIConfidence,
		FirstResponseDueAt:  ticket.FirstResponseDueAt,
		ResolutionDueAt:     ticket.ResolutionDueAt,
		FirstResponseAt:     ticket.FirstResponseAt,
		ResolvedAt:          ticket.ResolvedAt,
		ClosedAt:            ticket.ClosedAt,
		SourceType:          ticket.SourceType,
		SourceReference:     ticket.SourceReference,
		IntegrationMetadata: ticket.IntegrationMetadata,
		Version:             ticket.Version,
		CreatedAt:           ticket.CreatedAt,
		UpdatedAt:           ticket.UpdatedAt,
	}
}

func optionalTicket(ticket *domain.Ticket) *dto.TicketResponse {
	if ticket == nil {
		return nil
	}
	resp := ticketResponse(ticket)
	return &resp
}

func ticketDetail(ticket *domain.Ticket, trail []domain.TicketEvent) dto.TicketDetailResponse {
	entries := make([]dto.TicketEventResponse, 0, len(trail))
	for _, event := range trail {
		entries = append(entries, dto.TicketEventResponse{
			ID:          event.ID,
			Action:      event.Action,
			OldValue:    event.OldValue,
			NewValue:    event.NewValue,
			PerformedBy: event.PerformedBy,
			CreatedAt:   event.CreatedAt,
		})
	}
	return dto.TicketDetailResponse{TicketResponse: ticketResponse(ticket), Events: entries}
}

func stageResponse(outcome service.StageOutcome) dto.StageResponse {
	resp := dto.StageResponse{Stage: string(outcome.Stage), Attempted: outcome.Attempted}
	if outcome.Err != nil {
		resp.Error = outcome.Err.Error()
	}
	return resp
}

func routingResponse(result *domain.RoutingResult) *dto.RoutingResponse {
	if result == nil {
		return nil
	}
	return &dto.RoutingResponse{
		Method:       result.Method,
		TeamID:       result.TeamID,
		AgentID:      result.AgentID,
		Priority:     result.Priority,
		Confidence:   result.Confidence,
		AppliedRules: result.AppliedRules,
	}
}

func executionResponse(execution *domain.WorkflowExecution) *dto.ExecutionResponse {
	if execution == nil {
		return nil
	}
	return &dto.ExecutionResponse{
		ID:           execution.ID,
		WorkflowID:   execution.WorkflowID,
		TicketID:     execution.TicketID,
		SessionID:    execution.SessionID,
		Status:       execution.Status,
		CurrentStep:  execution.CurrentStep,
		Output:       execution.OutputData,
		ErrorMessage: execution.ErrorMessage,
		StartedAt:    execution.StartedAt,
		CompletedAt:  execution.CompletedAt,
	}
}

func createTicketResponse(result *service.CreateResult) dto.CreateTicketResponse {
	stages := make([]dto.StageResponse, 0, len(result.Stages))
	for _, outcome := range result.Stages {
		stages = append(stages, stageResponse(outcome))
	}
	return dto.CreateTicketResponse{
		Ticket:    ticketResponse(result.Ticket),
		Stages:    stages,
		Execution: executionResponse(result.Execution),
		Routing:   routingResponse(result.Routing),
		Alerts: dto.AlertSummaryResponse{
			Rules: len(result.Alerts.Rules),
			Sent:  result.Alerts.Sent(),
		},
	}
}

func approvalResponse(request *domain.ApprovalRequest) dto.ApprovalResponse {
	return dto.ApprovalResponse{
		ID:          request.ID,
		TicketID:    request.TicketID,
		WorkflowID:  request.WorkflowID,
		ExecutionID: request.ExecutionID,
		Status:      request.Status,
		ActionTitle: request.ActionTitle,
		ActionBody:  request.ActionBody,
		ExpiresAt:   request.ExpiresAt,
		DecidedAt:   request.DecidedAt,
		CreatedAt:   request.CreatedAt,
	}
}

func decisionResponse(result *service.DecisionResult) dto.DecisionResponse {
	return dto.DecisionResponse{
		Approval:  approvalResponse(result.Approval),
		Ticket:    optionalTicket(result.Ticket),
		Execution: executionResponse(result.Execution),
		Routing:   routingResponse(result.Routing),
		FollowUp:  stageResponse(result.FollowUp),
	}
}
