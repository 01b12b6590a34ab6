package domain

import "time"

// TicketEventAction captures what kind of mutation an audit entry records.
type TicketEventAction string

const (
	TicketEventCreated       TicketEventAction = "CREATED"
	TicketEventStatusChanged TicketEventAction = "STATUS_CHANGED"
	TicketEventAssigned      TicketEventAction = "ASSIGNED"
	TicketEventClosed        TicketEventAction = "CLOSED"
)

// TicketEvent is an immutable audit trail entry written with its mutation.
type TicketEvent struct {
	ID          string
	TicketID    string
	Action      TicketEventAction
	OldValue    map[string]any
	NewValue    map[string]any
	PerformedBy *string
	CreatedAt   time.Time
}
