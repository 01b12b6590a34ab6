package events

import (
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketStatusChanged EventType = "ticket_status_changed"
	EventTicketAssigned      EventType = "ticket_assigned"
	EventTicketRouted        EventType = "ticket_routed"
	EventWorkflowFinished    EventType = "workflow_finished"
	EventApprovalDecided     EventType = "approval_decided"
)

// Actor identifies who caused an event. A nil UserID means the system.
type Actor struct {
	UserID *string         `json:"user_id,omitempty"`
	Role   domain.UserRole `json:"role,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	TicketID  string    `json:"ticket_id"`
	Actor     Actor     `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Priority   domain.TicketPriority `json:"priority"`
	Category   *string               `json:"category,omitempty"`
	SourceType domain.SourceType     `json:"source_type"`
	Title      string                `json:"title"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	TeamID  *string `json:"team_id,omitempty"`
	AgentID *string `json:"agent_id,omitempty"`
}

// TicketRoutedPayload payload.
type TicketRoutedPayload struct {
	Method     domain.RoutingMethod  `json:"method"`
	Confidence float64               `json:"confidence"`
	Applied    bool                  `json:"applied"`
	Priority   domain.TicketPriority `json:"priority"`
}

// WorkflowFinishedPayload payload.
type WorkflowFinishedPayload struct {
	WorkflowID  string                 `json:"workflow_id"`
	ExecutionID string                 `json:"execution_id"`
	Status      domain.ExecutionStatus `json:"status"`
}

// ApprovalDecidedPayload payload.
type ApprovalDecidedPayload struct {
	ApprovalID string                `json:"approval_id"`
	Status     domain.ApprovalStatus `json:"status"`
}
