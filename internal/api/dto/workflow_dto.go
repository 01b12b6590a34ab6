package dto

import (
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// ExecuteWorkflowRequest payload for a manual run.
type ExecuteWorkflowRequest struct {
	Input     map[string]any `json:"input"`
	TicketID  *string        `json:"ticket_id"`
	SessionID *string        `json:"session_id"`
}

// ExecutionResponse describes a workflow run.
type ExecutionResponse struct {
	ID           string                 `json:"id"`
	WorkflowID   string                 `json:"workflow_id"`
	TicketID     *string                `json:"ticket_id"`
	SessionID    *string                `json:"session_id,omitempty"`
	Status       domain.ExecutionStatus `json:"status"`
	CurrentStep  int                    `json:"current_step"`
	Output       map[string]any         `json:"output,omitempty"`
	ErrorMessage *string                `json:"error_message,omitempty"`
	StartedAt    time.Time              `json:"started_at"`
	CompletedAt  *time.Time             `json:"completed_at,omitempty"`
}
