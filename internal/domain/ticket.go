package domain

import (
	"fmt"
	"strings"
	"time"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "OPEN"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusResolved   TicketStatus = "RESOLVED"
	TicketStatusClosed     TicketStatus = "CLOSED"
)

// TicketStatuses lists every lifecycle state.
var TicketStatuses = []TicketStatus{
	TicketStatusOpen,
	TicketStatusInProgress,
	TicketStatusResolved,
	TicketStatusClosed,
}

// Valid reports whether the status is a known lifecycle state.
func (s TicketStatus) Valid() bool {
	for _, candidate := range TicketStatuses {
		if s == candidate {
			return true
		}
	}
	return false
}

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "LOW"
	TicketPriorityMedium TicketPriority = "MEDIUM"
	TicketPriorityHigh   TicketPriority = "HIGH"
)

// Valid reports whether the priority is one of LOW, MEDIUM or HIGH.
func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh:
		return true
	}
	return false
}

// SourceType identifies the channel a ticket arrived through.
type SourceType string

const (
	SourceWeb     SourceType = "WEB"
	SourceMobile  SourceType = "MOBILE"
	SourceEmail   SourceType = "EMAIL"
	SourceGLPI    SourceType = "GLPI"
	SourceSolman  SourceType = "SOLMAN"
	SourceChatbot SourceType = "CHATBOT"
)

// Valid reports whether the source type is recognised.
func (s SourceType) Valid() bool {
	switch s {
	case SourceWeb, SourceMobile, SourceEmail, SourceGLPI, SourceSolman, SourceChatbot:
		return true
	}
	return false
}

// SLADeadlines holds priority-derived due times.
type SLADeadlines struct {
	FirstResponseDue time.Time
	ResolutionDue    time.Time
}

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID                  string
	Title               string
	Description         string
	RequesterID         string
	Category            *string
	Priority            TicketPriority
	Status              TicketStatus
	AssignedTeamID      *string
	AssignedAgentID     *string
	AIConfidence        *float64
	FirstResponseDueAt  *time.Time
	ResolutionDueAt     *time.Time
	FirstResponseAt     *time.Time
	ResolvedAt          *time.Time
	ClosedAt            *time.Time
	SourceType          SourceType
	SourceReference     map[string]any
	IntegrationMetadata map[string]any
	Version             int
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Ref returns the short uppercase reference used in subjects and SMS bodies.
func (t *Ticket) Ref() string {
	if len(t.ID) <= 8 {
		return strings.ToUpper(t.ID)
	}
	return strings.ToUpper(t.ID[:8])
}

// ApplyDeadlines sets both SLA deadlines at once.
func (t *Ticket) ApplyDeadlines(d SLADeadlines) {
	first := d.FirstResponseDue
	resolution := d.ResolutionDue
	t.FirstResponseDueAt = &first
	t.ResolutionDueAt = &resolution
}

// TransitionError reports a status change outside the allowed edge set.
type TransitionError struct {
	From TicketStatus
	To   TicketStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal transition: %s -> %s", e.From, e.To)
}

var allowedTransitions = map[TicketStatus][]TicketStatus{
	TicketStatusOpen:       {TicketStatusInProgress, TicketStatusResolved},
	TicketStatusInProgress: {TicketStatusResolved},
	TicketStatusResolved:   {TicketStatusClosed},
	TicketStatusClosed:     {},
}

// CanTransition reports whether current -> next is an allowed edge.
func CanTransition(current, next TicketStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

// TransitionTo moves the ticket to next, stamping the write-once lifecycle timestamps.
func (t *Ticket) TransitionTo(next TicketStatus, now time.Time) error {
	if !CanTransition(t.Status, next) {
		return &TransitionError{From: t.Status, To: next}
	}
	switch next {
	case TicketStatusInProgress:
		if t.FirstResponseAt == nil {
			t.FirstResponseAt = &now
		}
	case TicketStatusResolved:
		if t.ResolvedAt == nil {
			t.ResolvedAt = &now
		}
	case TicketStatusClosed:
		if t.ClosedAt == nil {
			t.ClosedAt = &now
		}
	}
	t.Status = next
	return nil
}
