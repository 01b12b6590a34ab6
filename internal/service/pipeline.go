package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/classifier"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/repository"
	"github.com/spec-kit/helpdesk/internal/routing"
	"github.com/spec-kit/helpdesk/internal/sla"
	"github.com/spec-kit/helpdesk/internal/workflow"
)

// Stage names a post-commit step of ticket creation.
type Stage string

const (
	StageClassification Stage = "classification"
	StageWorkflow       Stage = "workflow"
	StageRouting        Stage = "routing"
	StageAlerts         Stage = "alerts"
)

// StageOutcome records whether a stage ran and how it ended. Stage errors never fail creation.
type StageOutcome struct {
	Stage     Stage
	Attempted bool
	Err       error
}

type classification struct {
	ticket *domain.Ticket
	result *classifier.Result
}

func (s *TicketService) classify(ctx context.Context, ticket *domain.Ticket) (*classification, StageOutcome) {
	outcome := StageOutcome{Stage: StageClassification}
	if s.classifier == nil {
		return nil, outcome
	}

	result, err := s.classifier.Classify(ctx, ticket.Title+" "+ticket.Description)
	if errors.Is(err, classifier.ErrDisabled) {
		return nil, outcome
	}
	outcome.Attempted = true
	if err != nil {
		outcome.Err = err
		return nil, outcome
	}

	update := repository.ClassificationUpdate{
		Category:   result.Category,
		Confidence: result.Confidence,
		AIMetadata: result.Metadata(),
	}
	if result.Priority != nil {
		priority := *result.Priority
		due := sla.DueDates(priority, ticket.CreatedAt)
		update.Priority = &priority
		update.Deadlines = &due
	}
	updated, err := s.tickets.ApplyClassification(ctx, ticket.ID, update)
	if err != nil {
		outcome.Err = fmt.Errorf("apply classification: %w", err)
		return nil, outcome
	}
	return &classification{ticket: updated, result: result}, outcome
}

// runMatchingWorkflow executes the first workflow matching the classified ticket.
func (s *TicketService) runMatchingWorkflow(ctx context.Context, ticket *domain.Ticket, requester *domain.User, cls *classification) (*domain.WorkflowExecution, StageOutcome) {
	outcome := StageOutcome{Stage: StageWorkflow}
	if s.engine == nil || s.workflows == nil {
		return nil, outcome
	}

	workflows, err := s.workflows.ListEnabled(ctx)
	if err != nil {
		outcome.Attempted = true
		outcome.Err = fmt.Errorf("list workflows: %w", err)
		return nil, outcome
	}

	attrs := workflow.Attributes{Description: ticket.Description}
	if ticket.Category != nil {
		attrs.Category = *ticket.Category
	}
	if cls != nil {
		if cls.result.Intent != nil {
			attrs.Intent = *cls.result.Intent
		}
		attrs.Keywords = cls.result.Keywords
	}
	wf := workflow.Match(workflows, attrs)
	if wf == nil {
		return nil, outcome
	}

	outcome.Attempted = true
	ticketID := ticket.ID
	execution, err := s.ExecuteWorkflow(ctx, wf, workflowInput(ticket, requester, cls), &ticketID, nil)
	if err != nil {
		outcome.Err = err
		return nil, outcome
	}
	if execution.Status == domain.ExecutionFailed && execution.ErrorMessage != nil {
		outcome.Err = fmt.Errorf("workflow %s failed: %s", wf.Name, *execution.ErrorMessage)
	}
	return execution, outcome
}

func workflowInput(ticket *domain.Ticket, requester *domain.User, cls *classification) map[string]any {
	input := map[string]any{
		"ticketId":    ticket.ID,
		"title":       ticket.Title,
		"description": ticket.Description,
		"priority":    string(ticket.Priority),
		"keywords":    []string{},
	}
	if ticket.Category != nil {
		input["category"] = *ticket.Category
	}
	if requester != nil {
		input["requesterEmail"] = requester.Email
		input["requesterName"] = requester.Name
	}
	if cls != nil {
		if cls.result.Intent != nil {
			input["intent"] = *cls.result.Intent
		}
		if len(cls.result.Keywords) > 0 {
			input["keywords"] = cls.result.Keywords
		}
		if len(cls.result.Entities) > 0 {
			input["entities"] = cls.result.Entities
		}
	}
	return input
}

// halted reports whether automation already settled the ticket or is waiting on its requester.
func halted(ticket *domain.Ticket, execution *domain.WorkflowExecution) bool {
	if ticket.Status == domain.TicketStatusResolved || ticket.Status == domain.TicketStatusClosed {
		return true
	}
	return execution != nil && execution.Status == domain.ExecutionPending
}

// routeAndApply asks the router for a suggestion, records it, re-prices the SLA when the
// suggested priority differs, and assigns when the suggestion is confident enough.
func (s *TicketService) routeAndApply(ctx context.Context, ticket *domain.Ticket, actor Actor) (*domain.RoutingResult, *domain.Ticket, error) {
	if s.router == nil {
		return nil, nil, nil
	}
	result, err := s.router.Route(ctx, routing.Attributes{
		Title:       ticket.Title,
		Description: ticket.Description,
		Category:    ticket.Category,
		Priority:    ticket.Priority,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("route ticket: %w", err)
	}

	applied := result.Confidence >= s.threshold && result.HasTarget()
	decision := &domain.RoutingDecision{
		TicketID:         ticket.ID,
		Method:           result.Method,
		SuggestedTeamID:  result.TeamID,
		SuggestedAgentID: result.AgentID,
		Priority:         result.Priority,
		Confidence:       result.Confidence,
		AppliedRules:     result.AppliedRules,
		Applied:          applied,
	}
	if s.routingHistory != nil {
		if err := s.routingHistory.Record(ctx, decision); err != nil {
			s.logger.Warn("record routing decision failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
		}
	}
	s.metrics.RecordRouting(result.Method, applied)

	current := ticket
	if result.Priority.Valid() && result.Priority != ticket.Priority {
		updated, err := s.tickets.UpdatePriority(ctx, ticket.ID, result.Priority, sla.DueDates(result.Priority, ticket.CreatedAt))
		if err != nil {
			return result, nil, fmt.Errorf("re-price ticket: %w", err)
		}
		current = updated
	}

	if applied {
		assigned, err := s.assign(ctx, ticket.ID, result.TeamID, result.AgentID, actor)
		if err != nil {
			return result, current, fmt.Errorf("apply routing: %w", err)
		}
		current = assigned
	}

	s.publish(ctx, events.EventTicketRouted, ticket.ID, actor, events.TicketRoutedPayload{
		Method:     result.Method,
		Confidence: result.Confidence,
		Applied:    applied,
		Priority:   current.Priority,
	})
	s.logger.Info("ticket routed",
		zap.String("ticket_id", ticket.ID),
		zap.String("method", string(result.Method)),
		zap.Float64("confidence", result.Confidence),
		zap.Bool("applied", applied),
	)
	return result, current, nil
}
