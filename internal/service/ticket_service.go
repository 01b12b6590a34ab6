package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/alerts"
	"github.com/spec-kit/helpdesk/internal/approval"
	"github.com/spec-kit/helpdesk/internal/classifier"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/observability"
	"github.com/spec-kit/helpdesk/internal/repository"
	"github.com/spec-kit/helpdesk/internal/routing"
	"github.com/spec-kit/helpdesk/internal/sla"
	"github.com/spec-kit/helpdesk/internal/workflow"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// DefaultConfidenceThreshold is the minimum routing confidence that gets applied to a ticket.
const DefaultConfidenceThreshold = 0.6

const breachBatchSize = 100

// Classifier suggests category, priority and intent for ticket text.
type Classifier interface {
	Classify(ctx context.Context, text string) (*classifier.Result, error)
}

// Router produces assignment suggestions.
type Router interface {
	Route(ctx context.Context, attrs routing.Attributes) (*domain.RoutingResult, error)
}

// AlertDispatcher delivers alert rules for ticket events.
type AlertDispatcher interface {
	Dispatch(ctx context.Context, eventType domain.AlertEventType, subject alerts.Subject) alerts.Report
}

// Actor is the authenticated user performing an operation.
type Actor struct {
	UserID string
	Role   domain.UserRole
}

// TicketService orchestrates the ticket pipeline.
type TicketService struct {
	tickets        repository.TicketRepository
	events         repository.TicketEventRepository
	users          repository.UserRepository
	teams          repository.TeamRepository
	workflows      repository.WorkflowRepository
	executions     repository.WorkflowExecutionRepository
	routingHistory repository.RoutingHistoryRepository
	classifier     Classifier
	engine         *workflow.Engine
	router         Router
	approvals      *approval.Gate
	alerts         AlertDispatcher
	dispatcher     events.Dispatcher
	metrics        *observability.Metrics
	logger         *zap.Logger
	now            func() time.Time
	threshold      float64
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo          repository.TicketRepository
	EventRepo           repository.TicketEventRepository
	UserRepo            repository.UserRepository
	TeamRepo            repository.TeamRepository
	WorkflowRepo        repository.WorkflowRepository
	ExecutionRepo       repository.WorkflowExecutionRepository
	RoutingHistoryRepo  repository.RoutingHistoryRepository
	Classifier          Classifier
	WorkflowEngine      *workflow.Engine
	Router              Router
	Approvals           *approval.Gate
	Alerts              AlertDispatcher
	Dispatcher          events.Dispatcher
	Metrics             *observability.Metrics
	Logger              *zap.Logger
	Clock               func() time.Time
	ConfidenceThreshold float64
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	s := &TicketService{
		tickets:        deps.TicketRepo,
		events:         deps.EventRepo,
		users:          deps.UserRepo,
		teams:          deps.TeamRepo,
		workflows:      deps.WorkflowRepo,
		executions:     deps.ExecutionRepo,
		routingHistory: deps.RoutingHistoryRepo,
		classifier:     deps.Classifier,
		engine:         deps.WorkflowEngine,
		router:         deps.Router,
		approvals:      deps.Approvals,
		alerts:         deps.Alerts,
		dispatcher:     deps.Dispatcher,
		metrics:        deps.Metrics,
		logger:         deps.Logger,
		now:            deps.Clock,
		threshold:      deps.ConfidenceThreshold,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.threshold <= 0 {
		s.threshold = DefaultConfidenceThreshold
	}
	return s
}

// CreateTicketInput is the normalized inbound ticket.
type CreateTicketInput struct {
	Title               string
	Description         string
	RequesterID         string
	Priority            domain.TicketPriority
	SourceType          domain.SourceType
	SourceReference     map[string]any
	IntegrationMetadata map[string]any
	// PerformedBy defaults to the requester.
	PerformedBy string
}

// CreateResult reports the created ticket and what each pipeline stage did.
type CreateResult struct {
	Ticket    *domain.Ticket
	Stages    []StageOutcome
	Execution *domain.WorkflowExecution
	Routing   *domain.RoutingResult
	Alerts    alerts.Report
}

// Stage returns the outcome recorded for name.
func (r *CreateResult) Stage(name Stage) (StageOutcome, bool) {
	for _, outcome := range r.Stages {
		if outcome.Stage == name {
			return outcome, true
		}
	}
	return StageOutcome{}, false
}

// CreateTicket commits the ticket with its SLA and audit event, then runs classification,
// workflow automation, routing and alerting. Only the initial commit can fail the call.
func (s *TicketService) CreateTicket(ctx context.Context, input CreateTicketInput) (*CreateResult, error) {
	ticket, requester, actor, err := s.insertTicket(ctx, input)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.EventTicketCreated, ticket.ID, actor, events.TicketCreatedPayload{
		Priority:   ticket.Priority,
		Category:   ticket.Category,
		SourceType: ticket.SourceType,
		Title:      ticket.Title,
	})

	result := &CreateResult{Ticket: ticket}
	record := func(outcome StageOutcome) {
		result.Stages = append(result.Stages, outcome)
		s.metrics.RecordStage(string(outcome.Stage), outcome.Attempted, outcome.Err)
		if outcome.Err != nil {
			s.logger.Warn("pipeline stage failed",
				zap.String("ticket_id", ticket.ID),
				zap.String("stage", string(outcome.Stage)),
				zap.Error(outcome.Err),
			)
		}
	}

	classification, outcome := s.classify(ctx, result.Ticket)
	record(outcome)
	if classification != nil {
		result.Ticket = classification.ticket
	}

	execution, outcome := s.runMatchingWorkflow(ctx, result.Ticket, requester, classification)
	record(outcome)
	result.Execution = execution
	if execution != nil {
		if reloaded, err := s.tickets.GetByID(ctx, ticket.ID); err == nil {
			result.Ticket = reloaded
		}
		// An approval decided during delivery has already resumed or failed the execution.
		if stored, err := s.executions.GetByID(ctx, execution.ID); err == nil {
			result.Execution = stored
		}
	}

	if halted(result.Ticket, execution) {
		record(StageOutcome{Stage: StageRouting})
	} else {
		routed, updated, err := s.routeAndApply(ctx, result.Ticket, actor)
		record(StageOutcome{Stage: StageRouting, Attempted: true, Err: err})
		result.Routing = routed
		if updated != nil {
			result.Ticket = updated
		}
	}

	if s.alerts != nil {
		result.Alerts = s.alerts.Dispatch(ctx, domain.AlertTicketCreated, alerts.Subject{Ticket: result.Ticket, Requester: requester})
		record(StageOutcome{Stage: StageAlerts, Attempted: true})
	} else {
		record(StageOutcome{Stage: StageAlerts})
	}

	s.logger.Info("ticket created",
		zap.String("ticket_id", ticket.ID),
		zap.String("status", string(result.Ticket.Status)),
		zap.String("priority", string(result.Ticket.Priority)),
	)
	return result, nil
}

// insertTicket validates and stores the ticket. The returned actor is whoever filed it,
// which is a staff member rather than the requester when filing on their behalf.
func (s *TicketService) insertTicket(ctx context.Context, input CreateTicketInput) (*domain.Ticket, *domain.User, Actor, error) {
	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)
	details := map[string]any{}
	if title == "" {
		details["title"] = "required"
	}
	if description == "" {
		details["description"] = "required"
	}
	if strings.TrimSpace(input.RequesterID) == "" {
		details["requesterId"] = "required"
	}
	priority := input.Priority
	if priority == "" {
		priority = domain.TicketPriorityMedium
	}
	if !priority.Valid() {
		details["priority"] = "must be LOW, MEDIUM or HIGH"
	}
	source := input.SourceType
	if source == "" {
		source = domain.SourceWeb
	}
	if !source.Valid() {
		details["sourceType"] = "unknown source type"
	}
	if len(details) > 0 {
		return nil, nil, Actor{}, apperrors.NewValidationError("invalid ticket", details)
	}

	requester, err := s.users.GetByID(ctx, input.RequesterID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, Actor{}, apperrors.NewValidationError("unknown requester", map[string]any{"requesterId": input.RequesterID})
		}
		return nil, nil, Actor{}, fmt.Errorf("load requester: %w", err)
	}

	actor := Actor{UserID: input.RequesterID, Role: requester.Role}
	if input.PerformedBy != "" && input.PerformedBy != input.RequesterID {
		filer, err := s.users.GetByID(ctx, input.PerformedBy)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, nil, Actor{}, apperrors.NewValidationError("unknown performer", map[string]any{"performedBy": input.PerformedBy})
			}
			return nil, nil, Actor{}, fmt.Errorf("load performer: %w", err)
		}
		actor = Actor{UserID: filer.ID, Role: filer.Role}
	}
	performer := actor.UserID
	now := s.now()
	ticket := &domain.Ticket{
		Title:               title,
		Description:         description,
		RequesterID:         input.RequesterID,
		Priority:            priority,
		Status:              domain.TicketStatusOpen,
		SourceType:          source,
		SourceReference:     input.SourceReference,
		IntegrationMetadata: input.IntegrationMetadata,
		CreatedAt:           now,
	}
	ticket.ApplyDeadlines(sla.DueDates(priority, now))

	event := &domain.TicketEvent{
		Action:      domain.TicketEventCreated,
		NewValue:    map[string]any{"title": ticket.Title, "status": string(ticket.Status), "priority": string(ticket.Priority)},
		PerformedBy: &performer,
		CreatedAt:   now,
	}
	if err := s.tickets.Create(ctx, ticket, event); err != nil {
		return nil, nil, Actor{}, fmt.Errorf("create ticket: %w", err)
	}
	return ticket, requester, actor, nil
}

// GetTicket returns a ticket and its audit trail to its requester or to staff.
func (s *TicketService) GetTicket(ctx context.Context, id string, actor Actor) (*domain.Ticket, []domain.TicketEvent, error) {
	ticket, err := s.loadTicket(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if err := authorizeTicket(ticket, actor); err != nil {
		return nil, nil, err
	}
	trail, err := s.events.ListByTicket(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return ticket, trail, nil
}

// ChangeStatus moves a ticket along the lifecycle. The requester and staff may change status.
func (s *TicketService) ChangeStatus(ctx context.Context, id string, to domain.TicketStatus, actor Actor) (*domain.Ticket, error) {
	ticket, err := s.loadTicket(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorizeTicket(ticket, actor); err != nil {
		return nil, err
	}
	return s.changeStatus(ctx, id, to, actor)
}

func (s *TicketService) changeStatus(ctx context.Context, id string, to domain.TicketStatus, actor Actor) (*domain.Ticket, error) {
	if !to.Valid() {
		return nil, apperrors.NewValidationError("unknown status", map[string]any{"status": to})
	}

	var from domain.TicketStatus
	now := s.now()
	ticket, err := s.tickets.Mutate(ctx, id, func(t *domain.Ticket) (*domain.TicketEvent, error) {
		from = t.Status
		if err := t.TransitionTo(to, now); err != nil {
			return nil, err
		}
		action := domain.TicketEventStatusChanged
		if to == domain.TicketStatusClosed {
			action = domain.TicketEventClosed
		}
		return &domain.TicketEvent{
			Action:      action,
			OldValue:    map[string]any{"status": string(from)},
			NewValue:    map[string]any{"status": string(to)},
			PerformedBy: actorID(actor),
			CreatedAt:   now,
		}, nil
	})
	if err != nil {
		var transition *domain.TransitionError
		if errors.As(err, &transition) {
			return nil, apperrors.NewIllegalTransition(err, string(transition.From), string(transition.To))
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"id": id})
		}
		return nil, err
	}

	s.publish(ctx, events.EventTicketStatusChanged, id, actor, events.TicketStatusChangedPayload{
		OldStatus: from,
		NewStatus: to,
	})
	return ticket, nil
}

// Assign sets the team and/or agent of a ticket. Only staff may assign.
func (s *TicketService) Assign(ctx context.Context, id string, teamID, agentID *string, actor Actor) (*domain.Ticket, error) {
	if !actor.Role.IsStaff() {
		return nil, apperrors.NewForbidden("only agents and admins can assign tickets")
	}
	if teamID == nil && agentID == nil {
		return nil, apperrors.NewValidationError("team or agent is required", nil)
	}
	if teamID != nil && s.teams != nil {
		if _, err := s.teams.GetByID(ctx, *teamID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, apperrors.NewValidationError("unknown team", map[string]any{"teamId": *teamID})
			}
			return nil, err
		}
	}
	if agentID != nil {
		agent, err := s.users.GetByID(ctx, *agentID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, apperrors.NewValidationError("unknown agent", map[string]any{"agentId": *agentID})
			}
			return nil, err
		}
		if !agent.Role.IsStaff() {
			return nil, apperrors.NewValidationError("assignee must be an agent or admin", map[string]any{"agentId": *agentID})
		}
	}
	return s.assign(ctx, id, teamID, agentID, actor)
}

func (s *TicketService) assign(ctx context.Context, id string, teamID, agentID *string, actor Actor) (*domain.Ticket, error) {
	now := s.now()
	ticket, err := s.tickets.Mutate(ctx, id, func(t *domain.Ticket) (*domain.TicketEvent, error) {
		old := map[string]any{"teamId": deref(t.AssignedTeamID), "agentId": deref(t.AssignedAgentID)}
		if teamID != nil {
			t.AssignedTeamID = copyString(teamID)
		}
		if agentID != nil {
			t.AssignedAgentID = copyString(agentID)
		}
		return &domain.TicketEvent{
			Action:      domain.TicketEventAssigned,
			OldValue:    old,
			NewValue:    map[string]any{"teamId": deref(t.AssignedTeamID), "agentId": deref(t.AssignedAgentID)},
			PerformedBy: actorID(actor),
			CreatedAt:   now,
		}, nil
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"id": id})
		}
		return nil, err
	}

	s.publish(ctx, events.EventTicketAssigned, id, actor, events.TicketAssignedPayload{
		TeamID:  ticket.AssignedTeamID,
		AgentID: ticket.AssignedAgentID,
	})
	return ticket, nil
}

// ScanSLABreaches claims tickets past a deadline and alerts on each exactly once.
func (s *TicketService) ScanSLABreaches(ctx context.Context) (int, error) {
	now := s.now()
	total := 0

	first, err := s.tickets.ClaimFirstResponseBreaches(ctx, now, breachBatchSize)
	if err != nil {
		return 0, fmt.Errorf("claim first response breaches: %w", err)
	}
	for i := range first {
		s.alertTicket(ctx, domain.AlertSLAFirstResponseBreach, &first[i])
	}
	total += len(first)

	resolution, err := s.tickets.ClaimResolutionBreaches(ctx, now, breachBatchSize)
	if err != nil {
		return total, fmt.Errorf("claim resolution breaches: %w", err)
	}
	for i := range resolution {
		s.alertTicket(ctx, domain.AlertSLAResolutionBreach, &resolution[i])
	}
	total += len(resolution)

	if total > 0 {
		s.logger.Info("sla breaches alerted", zap.Int("first_response", len(first)), zap.Int("resolution", len(resolution)))
	}
	return total, nil
}

// alertTicket dispatches eventType for ticket, loading the requester for templates.
func (s *TicketService) alertTicket(ctx context.Context, eventType domain.AlertEventType, ticket *domain.Ticket) alerts.Report {
	if s.alerts == nil {
		return alerts.Report{EventType: eventType}
	}
	subject := alerts.Subject{Ticket: ticket}
	if requester, err := s.users.GetByID(ctx, ticket.RequesterID); err == nil {
		subject.Requester = requester
	}
	return s.alerts.Dispatch(ctx, eventType, subject)
}

func (s *TicketService) loadTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"id": id})
		}
		return nil, err
	}
	return ticket, nil
}

func (s *TicketService) publish(ctx context.Context, eventType events.EventType, ticketID string, actor Actor, payload any) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  ticketID,
		Actor:     events.Actor{UserID: actorID(actor), Role: actor.Role},
		Timestamp: s.now(),
		Payload:   payload,
	})
}

func authorizeTicket(ticket *domain.Ticket, actor Actor) error {
	if actor.Role.IsStaff() || (actor.UserID != "" && actor.UserID == ticket.RequesterID) {
		return nil
	}
	return apperrors.NewForbidden("access denied")
}

func actorID(actor Actor) *string {
	if actor.UserID == "" {
		return nil
	}
	id := actor.UserID
	return &id
}

func deref(value *string) any {
	if value == nil {
		return nil
	}
	return *value
}

func copyString(value *string) *string {
	if value == nil {
		return nil
	}
	v := *value
	return &v
}
