package dto

import (
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// CreateTicketRequest payload. RequesterID is honoured only for staff filing on behalf of someone.
type CreateTicketRequest struct {
	Title               string                `json:"title"`
	Description         string                `json:"description"`
	Priority            domain.TicketPriority `json:"priority"`
	SourceType          domain.SourceType     `json:"source_type"`
	SourceReference     map[string]any        `json:"source_reference"`
	IntegrationMetadata map[string]any        `json:"integration_metadata"`
	RequesterID         *string               `json:"requester_id"`
}

// ChangeStatusRequest payload.
type ChangeStatusRequest struct {
	Status domain.TicketStatus `json:"status"`
}

// AssignTicketRequest payload. At least one of the ids is required.
type AssignTicketRequest struct {
	TeamID  *string `json:"team_id"`
	AgentID *string `json:"agent_id"`
}

// TicketResponse is the public shape of a ticket.
type TicketResponse struct {
	ID                  string                `json:"id"`
	Ref                 string                `json:"ref"`
	Title               string                `json:"title"`
	Description         string                `json:"description"`
	RequesterID         string                `json:"requester_id"`
	Category            *string               `json:"category"`
	Priority            domain.TicketPriority `json:"priority"`
	Status              domain.TicketStatus   `json:"status"`
	AssignedTeamID      *string               `json:"assigned_team_id"`
	AssignedAgentID     *string               `json:"assigned_agent_id"`
	AIConfidence        *float64              `json:"ai_confidence"`
	FirstResponseDueAt  *time.Time            `json:"first_response_due_at"`
	ResolutionDueAt     *time.Time            `json:"resolution_due_at"`
	FirstResponseAt     *time.Time            `json:"first_response_at"`
	ResolvedAt          *time.Time            `json:"resolved_at"`
	ClosedAt            *time.Time            `json:"closed_at"`
	SourceType          domain.SourceType     `json:"source_type"`
	SourceReference     map[string]any        `json:"source_reference,omitempty"`
	IntegrationMetadata map[string]any        `json:"integration_metadata,omitempty"`
	Version             int                   `json:"version"`
	CreatedAt           time.Time             `json:"created_at"`
	UpdatedAt           time.Time             `json:"updated_at"`
}

// TicketEventResponse is one audit trail entry.
type TicketEventResponse struct {
	ID          string                   `json:"id"`
	Action      domain.TicketEventAction `json:"action"`
	OldValue    map[string]any           `json:"old_value,omitempty"`
	NewValue    map[string]any           `json:"new_value,omitempty"`
	PerformedBy *string                  `json:"performed_by"`
	CreatedAt   time.Time                `json:"created_at"`
}

// TicketDetailResponse provides a ticket with its audit trail.
type TicketDetailResponse struct {
	TicketResponse
	Events []TicketEventResponse `json:"events"`
}

// StageResponse reports one pipeline stage of ticket creation.
type StageResponse struct {
	Stage     string `json:"stage"`
	Attempted bool   `json:"attempted"`
	Error     string `json:"error,omitempty"`
}

// RoutingResponse describes a routing decision.
type RoutingResponse struct {
	Method       domain.RoutingMethod  `json:"method"`
	TeamID       *string               `json:"team_id"`
	AgentID      *string               `json:"agent_id"`
	Priority     domain.TicketPriority `json:"priority"`
	Confidence   float64               `json:"confidence"`
	AppliedRules []string              `json:"applied_rules"`
}

// AlertSummaryResponse counts alert rules fired on creation.
type AlertSummaryResponse struct {
	Rules int `json:"rules"`
	Sent  int `json:"sent"`
}

// CreateTicketResponse is returned by POST /tickets.
type CreateTicketResponse struct {
	Ticket    TicketResponse       `json:"ticket"`
	Stages    []StageResponse      `json:"stages"`
	Execution *ExecutionResponse   `json:"execution,omitempty"`
	Routing   *RoutingResponse     `json:"routing,omitempty"`
	Alerts    AlertSummaryResponse `json:"alerts"`
}
