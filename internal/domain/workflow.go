package domain

import (
	"encoding/json"
	"time"
)

// StepKind enumerates the closed set of workflow step kinds.
type StepKind string

const (
	StepKindAPICall   StepKind = "api_call"
	StepKindLDAPQuery StepKind = "ldap_query"
	StepKindScript    StepKind = "script"
	StepKindApproval  StepKind = "approval"
	StepKindCondition StepKind = "condition"
	StepKindDelay     StepKind = "delay"
)

// WorkflowStep is one declared step of a workflow definition.
type WorkflowStep struct {
	Kind      StepKind        `json:"type" yaml:"type"`
	Name      string          `json:"name" yaml:"name"`
	Config    json.RawMessage `json:"config,omitempty" yaml:"-"`
	OnSuccess string          `json:"onSuccess,omitempty" yaml:"onSuccess,omitempty"`
	OnFailure string          `json:"onFailure,omitempty" yaml:"onFailure,omitempty"`
}

// Workflow is an automation definition matched against new tickets.
type Workflow struct {
	ID             string
	Name           string
	Description    string
	Enabled        bool
	Priority       int
	IntentFilter   []string
	CategoryFilter []string
	KeywordFilter  []string
	Steps          []WorkflowStep
	AutoResolve    bool
	CreateTicket   bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ExecutionStatus enumerates workflow execution states.
type ExecutionStatus string

const (
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
)

// WorkflowExecution is one run of a workflow.
type WorkflowExecution struct {
	ID           string
	WorkflowID   string
	TicketID     *string
	SessionID    *string
	Status       ExecutionStatus
	CurrentStep  int
	InputData    map[string]any
	OutputData   map[string]any
	ErrorMessage *string
	StartedAt    time.Time
	CompletedAt  *time.Time
}

// WorkflowStepResult records a single step attempt.
type WorkflowStepResult struct {
	ID           string
	ExecutionID  string
	StepIndex    int
	StepKind     StepKind
	StepName     string
	Success      bool
	InputData    map[string]any
	OutputData   map[string]any
	ErrorMessage *string
	CreatedAt    time.Time
}
