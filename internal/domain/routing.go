package domain

import "time"

// RoutingMethod tells how a routing suggestion was produced.
type RoutingMethod string

const (
	RoutingMethodRule     RoutingMethod = "rule"
	RoutingMethodFallback RoutingMethod = "fallback"
)

// RoutingRule is an administrator-defined assignment rule.
type RoutingRule struct {
	ID              string
	Name            string
	Description     string
	Priority        int
	Enabled         bool
	CategoryFilter  []string
	PriorityFilter  []TicketPriority
	KeywordFilter   []string
	AssignedTeamID  *string
	AssignedAgentID *string
	AutoPriority    *TicketPriority
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// RoutingResult is a suggestion produced by the routing engine.
type RoutingResult struct {
	TeamID       *string
	AgentID      *string
	Priority     TicketPriority
	Confidence   float64
	Method       RoutingMethod
	AppliedRules []string
}

// HasTarget reports whether the suggestion names a team or an agent.
func (r *RoutingResult) HasTarget() bool {
	return r != nil && (r.TeamID != nil || r.AgentID != nil)
}

// RoutingDecision is a routing-history row.
type RoutingDecision struct {
	ID               string
	TicketID         string
	Method           RoutingMethod
	SuggestedTeamID  *string
	SuggestedAgentID *string
	Priority         TicketPriority
	Confidence       float64
	AppliedRules     []string
	Applied          bool
	CreatedAt        time.Time
}
