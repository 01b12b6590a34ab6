package dto

import (
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// ApprovalResponse is a pending or decided approval request. The token is never exposed.
type ApprovalResponse struct {
	ID          string                `json:"id"`
	TicketID    string                `json:"ticket_id"`
	WorkflowID  string                `json:"workflow_id"`
	ExecutionID *string               `json:"execution_id"`
	Status      domain.ApprovalStatus `json:"status"`
	ActionTitle string                `json:"action_title"`
	ActionBody  string                `json:"action_body"`
	ExpiresAt   *time.Time            `json:"expires_at"`
	DecidedAt   *time.Time            `json:"decided_at"`
	CreatedAt   time.Time             `json:"created_at"`
}

// DecisionResponse reports a decision and the automation it triggered.
type DecisionResponse struct {
	Approval  ApprovalResponse   `json:"approval"`
	Ticket    *TicketResponse    `json:"ticket,omitempty"`
	Execution *ExecutionResponse `json:"execution,omitempty"`
	Routing   *RoutingResponse   `json:"routing,omitempty"`
	FollowUp  StageResponse      `json:"follow_up"`
}
