package domain

import "time"

// ApprovalStatus enumerates approval request states.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
	ApprovalExpired  ApprovalStatus = "expired"
)

// ApprovalDecision is the answer given to a pending request.
type ApprovalDecision string

const (
	DecisionApprove ApprovalDecision = "approve"
	DecisionReject  ApprovalDecision = "reject"
)

// Valid reports whether the decision is approve or reject.
func (d ApprovalDecision) Valid() bool {
	return d == DecisionApprove || d == DecisionReject
}

// Status maps the decision onto the terminal request status.
func (d ApprovalDecision) Status() ApprovalStatus {
	if d == DecisionApprove {
		return ApprovalApproved
	}
	return ApprovalRejected
}

// ApprovalRequest suspends a workflow until its requester confirms.
type ApprovalRequest struct {
	ID          string
	TicketID    string
	WorkflowID  string
	ExecutionID *string
	StepIndex   int
	RequestedBy string
	Status      ApprovalStatus
	ActionTitle string
	ActionBody  string
	InputData   map[string]any
	TokenHash   string
	ExpiresAt   *time.Time
	DecidedAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsExpired reports whether the request has passed its expiry.
func (a *ApprovalRequest) IsExpired(now time.Time) bool {
	return a.ExpiresAt != nil && !a.ExpiresAt.After(now)
}
