package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/alerts"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/repository"
)

// NotificationService turns ticket domain events into alert rule deliveries.
type NotificationService struct {
	dispatcher events.Dispatcher
	alerts     AlertDispatcher
	tickets    repository.TicketRepository
	users      repository.UserRepository
	logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, alertDispatcher AlertDispatcher, tickets repository.TicketRepository, users repository.UserRepository, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		alerts:     alertDispatcher,
		tickets:    tickets,
		users:      users,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil || n.alerts == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketStatusChanged, n.handleTicketStatusChanged)
	n.dispatcher.Subscribe(events.EventTicketAssigned, n.handleTicketAssigned)
}

func (n *NotificationService) handleTicketStatusChanged(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketStatusChangedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	return n.dispatch(ctx, StatusAlertEvent(payload.NewStatus), event.TicketID)
}

func (n *NotificationService) handleTicketAssigned(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketAssignedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	if payload.AgentID == nil {
		return nil
	}
	return n.dispatch(ctx, domain.AlertTicketAssigned, event.TicketID)
}

func (n *NotificationService) dispatch(ctx context.Context, eventType domain.AlertEventType, ticketID string) error {
	ticket, err := n.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return fmt.Errorf("load ticket %s for %s alerts: %w", ticketID, eventType, err)
	}
	subject := alerts.Subject{Ticket: ticket}
	if requester, err := n.users.GetByID(ctx, ticket.RequesterID); err == nil {
		subject.Requester = requester
	}
	report := n.alerts.Dispatch(ctx, eventType, subject)
	n.logger.Debug("alerts dispatched",
		zap.String("ticket_id", ticketID),
		zap.String("event_type", string(eventType)),
		zap.Int("rules", len(report.Rules)),
		zap.Int("sent", report.Sent()),
	)
	return nil
}

// StatusAlertEvent maps a new ticket status to the alert event it fires.
func StatusAlertEvent(status domain.TicketStatus) domain.AlertEventType {
	switch status {
	case domain.TicketStatusResolved:
		return domain.AlertTicketResolved
	case domain.TicketStatusClosed:
		return domain.AlertTicketClosed
	default:
		return domain.AlertTicketStatusChanged
	}
}
