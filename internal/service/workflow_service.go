package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// ErrEngineUnavailable is returned when workflow automation is not wired.
var ErrEngineUnavailable = errors.New("workflow engine not configured")

// ExecuteWorkflow runs wf and auto-resolves the linked ticket when the workflow asks for it.
func (s *TicketService) ExecuteWorkflow(ctx context.Context, wf *domain.Workflow, input map[string]any, ticketID, sessionID *string) (*domain.WorkflowExecution, error) {
	if s.engine == nil {
		return nil, ErrEngineUnavailable
	}
	execution, err := s.engine.Execute(ctx, wf, input, ticketID, sessionID)
	if err != nil {
		return nil, err
	}
	s.afterExecution(ctx, wf, execution)
	return execution, nil
}

// ExecuteWorkflowByID loads a workflow and executes it on behalf of an administrator.
func (s *TicketService) ExecuteWorkflowByID(ctx context.Context, workflowID string, input map[string]any, ticketID, sessionID *string) (*domain.WorkflowExecution, error) {
	wf, err := s.workflows.GetByID(ctx, workflowID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("workflow", map[string]any{"id": workflowID})
		}
		return nil, err
	}
	if ticketID != nil {
		if _, err := s.loadTicket(ctx, *ticketID); err != nil {
			return nil, err
		}
	}
	if input == nil {
		input = map[string]any{}
	}
	return s.ExecuteWorkflow(ctx, wf, input, ticketID, sessionID)
}

func (s *TicketService) afterExecution(ctx context.Context, wf *domain.Workflow, execution *domain.WorkflowExecution) {
	s.metrics.RecordExecution(execution.Status)
	if execution.TicketID == nil {
		return
	}
	ticketID := *execution.TicketID
	s.publish(ctx, events.EventWorkflowFinished, ticketID, Actor{}, events.WorkflowFinishedPayload{
		WorkflowID:  wf.ID,
		ExecutionID: execution.ID,
		Status:      execution.Status,
	})

	if execution.Status != domain.ExecutionCompleted || !wf.AutoResolve {
		return
	}
	if success, ok := execution.OutputData["success"].(bool); ok && !success {
		return
	}
	s.autoResolve(ctx, ticketID, wf)
}

// autoResolve resolves the ticket as the first administrator, falling back to its requester.
func (s *TicketService) autoResolve(ctx context.Context, ticketID string, wf *domain.Workflow) {
	actor, err := s.resolutionActor(ctx, ticketID)
	if err != nil {
		s.logger.Warn("auto-resolve skipped",
			zap.String("ticket_id", ticketID),
			zap.String("workflow_id", wf.ID),
			zap.Error(err),
		)
		return
	}
	if _, err := s.changeStatus(ctx, ticketID, domain.TicketStatusResolved, actor); err != nil {
		s.logger.Warn("auto-resolve failed",
			zap.String("ticket_id", ticketID),
			zap.String("workflow_id", wf.ID),
			zap.Error(err),
		)
		return
	}
	s.logger.Info("ticket auto-resolved", zap.String("ticket_id", ticketID), zap.String("workflow_id", wf.ID))
}

func (s *TicketService) resolutionActor(ctx context.Context, ticketID string) (Actor, error) {
	admin, err := s.users.FindFirstAdmin(ctx)
	if err == nil {
		return Actor{UserID: admin.ID, Role: admin.Role}, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		s.logger.Warn("find admin failed", zap.Error(err))
	}
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return Actor{}, fmt.Errorf("no admin and ticket unavailable: %w", err)
	}
	return Actor{UserID: ticket.RequesterID, Role: domain.UserRoleEmployee}, nil
}
