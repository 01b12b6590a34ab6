package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// DecisionResult reports an approval decision and the automation it triggered.
type DecisionResult struct {
	Approval  *domain.ApprovalRequest
	Execution *domain.WorkflowExecution
	Routing   *domain.RoutingResult
	Ticket    *domain.Ticket
	FollowUp  StageOutcome
}

// ListPendingApprovals returns pending approvals of a ticket, newest first.
func (s *TicketService) ListPendingApprovals(ctx context.Context, ticketID string, actor Actor) ([]domain.ApprovalRequest, error) {
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if err := authorizeTicket(ticket, actor); err != nil {
		return nil, err
	}
	return s.approvals.ListPending(ctx, ticketID)
}

// FindApprovalByToken resolves an emailed token to its request.
func (s *TicketService) FindApprovalByToken(ctx context.Context, token string) (*domain.ApprovalRequest, error) {
	return s.approvals.FindByToken(ctx, token)
}

// ApprovalLink is where the confirm endpoint sends the browser after a decision.
func (s *TicketService) ApprovalLink(request *domain.ApprovalRequest) string {
	return s.approvals.ResultLink(request.ID, request.Status)
}

// DecideApproval records a decision by the requester or staff and runs the follow-up.
func (s *TicketService) DecideApproval(ctx context.Context, id string, decision domain.ApprovalDecision, actor Actor) (*DecisionResult, error) {
	request, err := s.approvals.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Role.IsStaff() && actor.UserID != request.RequestedBy {
		return nil, apperrors.NewForbidden("only the requester or staff can decide this approval")
	}
	decided, err := s.approvals.Decide(ctx, id, decision)
	if err != nil {
		return nil, err
	}
	return s.followUp(ctx, decided, actor), nil
}

// DecideApprovalByToken records a decision made through an emailed link.
func (s *TicketService) DecideApprovalByToken(ctx context.Context, token string, decision domain.ApprovalDecision) (*DecisionResult, error) {
	decided, err := s.approvals.DecideByToken(ctx, token, decision)
	if err != nil {
		return nil, err
	}
	actor := Actor{UserID: decided.RequestedBy, Role: domain.UserRoleEmployee}
	if user, err := s.users.GetByID(ctx, decided.RequestedBy); err == nil {
		actor.Role = user.Role
	}
	return s.followUp(ctx, decided, actor), nil
}

// HandleExpiredApprovals expires overdue requests, fails their executions and reroutes the tickets.
func (s *TicketService) HandleExpiredApprovals(ctx context.Context) (int, error) {
	expired, err := s.approvals.ExpireStale(ctx)
	if err != nil {
		return 0, err
	}
	for i := range expired {
		request := &expired[i]
		actor := Actor{UserID: request.RequestedBy, Role: domain.UserRoleEmployee}
		s.publishDecision(ctx, request, actor)
		_, outcome := s.rejectFollowUp(ctx, request, actor, "approval expired")
		if outcome.Err != nil {
			s.logger.Warn("expired approval follow-up failed",
				zap.String("approval_id", request.ID),
				zap.Error(outcome.Err),
			)
		}
	}
	return len(expired), nil
}

func (s *TicketService) followUp(ctx context.Context, request *domain.ApprovalRequest, actor Actor) *DecisionResult {
	s.publishDecision(ctx, request, actor)
	result := &DecisionResult{Approval: request}

	switch request.Status {
	case domain.ApprovalApproved:
		execution, err := s.resumeApproved(ctx, request)
		result.FollowUp = StageOutcome{Stage: StageWorkflow, Attempted: true, Err: err}
		result.Execution = execution
	case domain.ApprovalRejected:
		result.Routing, result.FollowUp = s.rejectFollowUp(ctx, request, actor, "approval rejected")
	}
	if result.FollowUp.Err != nil {
		s.logger.Warn("approval follow-up failed",
			zap.String("approval_id", request.ID),
			zap.String("stage", string(result.FollowUp.Stage)),
			zap.Error(result.FollowUp.Err),
		)
	}

	if ticket, err := s.tickets.GetByID(ctx, request.TicketID); err == nil {
		result.Ticket = ticket
	}
	return result
}

// resumeApproved continues the suspended execution from the approval step with approved=true.
func (s *TicketService) resumeApproved(ctx context.Context, request *domain.ApprovalRequest) (*domain.WorkflowExecution, error) {
	if s.engine == nil {
		return nil, ErrEngineUnavailable
	}
	wf, err := s.workflows.GetByID(ctx, request.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("load workflow %s: %w", request.WorkflowID, err)
	}

	input := make(map[string]any, len(request.InputData)+2)
	for key, value := range request.InputData {
		input[key] = value
	}
	input["approved"] = true
	input["approvalId"] = request.ID

	if request.ExecutionID == nil {
		ticketID := request.TicketID
		return s.ExecuteWorkflow(ctx, wf, input, &ticketID, nil)
	}
	execution, err := s.executions.GetByID(ctx, *request.ExecutionID)
	if err != nil {
		return nil, fmt.Errorf("load execution %s: %w", *request.ExecutionID, err)
	}
	resumed, err := s.engine.Resume(ctx, wf, execution, request.StepIndex, input)
	if err != nil {
		return nil, err
	}
	s.afterExecution(ctx, wf, resumed)
	return resumed, nil
}

// rejectFollowUp fails the suspended execution and routes the ticket to a human instead.
func (s *TicketService) rejectFollowUp(ctx context.Context, request *domain.ApprovalRequest, actor Actor, reason string) (*domain.RoutingResult, StageOutcome) {
	outcome := StageOutcome{Stage: StageRouting}
	if request.ExecutionID != nil {
		if err := s.failExecution(ctx, *request.ExecutionID, reason); err != nil {
			s.logger.Warn("fail execution after approval failed",
				zap.String("execution_id", *request.ExecutionID),
				zap.Error(err),
			)
		}
	}

	ticket, err := s.tickets.GetByID(ctx, request.TicketID)
	if err != nil {
		outcome.Attempted = true
		outcome.Err = fmt.Errorf("load ticket %s: %w", request.TicketID, err)
		return nil, outcome
	}
	if halted(ticket, nil) {
		return nil, outcome
	}
	outcome.Attempted = true
	routed, _, err := s.routeAndApply(ctx, ticket, actor)
	outcome.Err = err
	return routed, outcome
}

func (s *TicketService) failExecution(ctx context.Context, executionID, reason string) error {
	execution, err := s.executions.GetByID(ctx, executionID)
	if err != nil {
		return err
	}
	if execution.Status != domain.ExecutionPending {
		return nil
	}
	output := make(map[string]any, len(execution.OutputData)+2)
	for key, value := range execution.OutputData {
		output[key] = value
	}
	output["approved"] = false
	output["approvalPending"] = false
	if err := s.executions.Finish(ctx, executionID, domain.ExecutionFailed, output, &reason); err != nil {
		return err
	}
	s.metrics.RecordExecution(domain.ExecutionFailed)
	return nil
}

func (s *TicketService) publishDecision(ctx context.Context, request *domain.ApprovalRequest, actor Actor) {
	s.publish(ctx, events.EventApprovalDecided, request.TicketID, actor, events.ApprovalDecidedPayload{
		ApprovalID: request.ID,
		Status:     request.Status,
	})
}
