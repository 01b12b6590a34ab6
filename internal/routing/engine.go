// Package routing decides which team or agent a ticket should go to.
package routing

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
)

const (
	ruleConfidence     = 0.8
	fallbackConfidence = 0.6
)

// DefaultUrgencyKeywords are used when no urgency keywords are configured.
var DefaultUrgencyKeywords = []string{
	"urgent",
	"critical",
	"asap",
	"immediately",
	"emergency",
	"down",
	"broken",
	"not working",
	"blocked",
}

// Attributes are the ticket facts routing looks at.
type Attributes struct {
	Title       string
	Description string
	Category    *string
	Priority    domain.TicketPriority
}

func (a Attributes) text() string {
	return strings.ToLower(a.Title + " " + a.Description)
}

func (a Attributes) category() string {
	if a.Category == nil {
		return ""
	}
	return *a.Category
}

// MatchRule returns the first enabled rule whose filters all pass, by priority then age.
func MatchRule(rules []domain.RoutingRule, attrs Attributes) *domain.RoutingRule {
	ordered := make([]domain.RoutingRule, 0, len(rules))
	for _, rule := range rules {
		if rule.Enabled {
			ordered = append(ordered, rule)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority > ordered[j].Priority
		}
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	text := attrs.text()
	category := attrs.category()
	for i := range ordered {
		rule := &ordered[i]
		if len(rule.CategoryFilter) > 0 && (category == "" || !containsString(rule.CategoryFilter, category)) {
			continue
		}
		if len(rule.PriorityFilter) > 0 && !containsPriority(rule.PriorityFilter, attrs.Priority) {
			continue
		}
		if !allKeywordsPresent(rule.KeywordFilter, text) {
			continue
		}
		return rule
	}
	return nil
}

// DetectUrgency grades text by how many distinct urgency keywords it contains:
// three or more is HIGH, any is MEDIUM, none is LOW.
func DetectUrgency(text string, keywords []string) domain.TicketPriority {
	if len(keywords) == 0 {
		keywords = DefaultUrgencyKeywords
	}
	text = strings.ToLower(text)
	seen := map[string]struct{}{}
	for _, kw := range keywords {
		k := strings.ToLower(strings.TrimSpace(kw))
		if k == "" {
			continue
		}
		if strings.Contains(text, k) {
			seen[k] = struct{}{}
		}
	}
	switch {
	case len(seen) >= 3:
		return domain.TicketPriorityHigh
	case len(seen) > 0:
		return domain.TicketPriorityMedium
	default:
		return domain.TicketPriorityLow
	}
}

// Options tunes the engine.
type Options struct {
	WorkloadCeiling int
	UrgencyKeywords []string
	Logger          *zap.Logger
}

// Engine resolves routing suggestions from rules and fallbacks.
type Engine struct {
	rules    repository.RoutingRuleRepository
	agents   repository.AgentRepository
	teams    repository.TeamRepository
	ceiling  int
	keywords []string
	logger   *zap.Logger
}

// NewEngine wires the engine to its lookups.
func NewEngine(rules repository.RoutingRuleRepository, agents repository.AgentRepository, teams repository.TeamRepository, opts Options) *Engine {
	e := &Engine{
		rules:    rules,
		agents:   agents,
		teams:    teams,
		ceiling:  opts.WorkloadCeiling,
		keywords: opts.UrgencyKeywords,
		logger:   opts.Logger,
	}
	if e.ceiling <= 0 {
		e.ceiling = 20
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	return e
}

// Route produces a suggestion. It only errors when rules cannot be loaded or a rule's agent cannot be resolved.
func (e *Engine) Route(ctx context.Context, attrs Attributes) (*domain.RoutingResult, error) {
	rules, err := e.rules.ListEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("load routing rules: %w", err)
	}
	if rule := MatchRule(rules, attrs); rule != nil {
		return e.applyRule(ctx, rule, attrs)
	}
	return e.fallback(ctx, attrs), nil
}

func (e *Engine) applyRule(ctx context.Context, rule *domain.RoutingRule, attrs Attributes) (*domain.RoutingResult, error) {
	result := &domain.RoutingResult{
		TeamID:       rule.AssignedTeamID,
		AgentID:      rule.AssignedAgentID,
		Priority:     attrs.Priority,
		Confidence:   ruleConfidence,
		Method:       domain.RoutingMethodRule,
		AppliedRules: []string{rule.ID},
	}
	if rule.AutoPriority != nil && rule.AutoPriority.Valid() {
		result.Priority = *rule.AutoPriority
	}

	if result.TeamID != nil && result.AgentID == nil {
		agent, err := e.bestAgent(ctx, attrs, result.TeamID)
		if err != nil {
			return nil, err
		}
		result.AgentID = agent
	}

	if result.AgentID != nil {
		workload, err := e.agents.Workload(ctx, *result.AgentID)
		if err != nil {
			return nil, fmt.Errorf("agent workload: %w", err)
		}
		if workload > e.ceiling {
			agent, err := e.bestAgent(ctx, attrs, result.TeamID)
			if err != nil {
				return nil, err
			}
			result.AgentID = agent
		}
	}
	return result, nil
}

func (e *Engine) bestAgent(ctx context.Context, attrs Attributes, teamID *string) (*string, error) {
	category := attrs.category()
	if category == "" {
		return nil, nil
	}
	agent, err := e.agents.FindBestAgentForCategory(ctx, category, teamID, e.ceiling)
	if err != nil {
		return nil, fmt.Errorf("find agent for %s: %w", category, err)
	}
	return agent, nil
}

func (e *Engine) fallback(ctx context.Context, attrs Attributes) *domain.RoutingResult {
	result := &domain.RoutingResult{
		Priority:     attrs.Priority,
		Method:       domain.RoutingMethodFallback,
		AppliedRules: []string{},
	}

	if attrs.Priority != domain.TicketPriorityHigh && DetectUrgency(attrs.text(), e.keywords) == domain.TicketPriorityHigh {
		team, err := e.teams.FindUrgentTeam(ctx)
		if err != nil {
			e.logger.Warn("urgent team lookup failed", zap.Error(err))
		} else if team != nil {
			teamID := team.ID
			result.TeamID = &teamID
			result.Priority = domain.TicketPriorityHigh
			result.Confidence = fallbackConfidence
			return result
		}
	}

	agent, err := e.bestAgent(ctx, attrs, nil)
	if err != nil {
		e.logger.Warn("skilled agent lookup failed", zap.Error(err))
	} else if agent != nil {
		result.AgentID = agent
		result.Confidence = fallbackConfidence
		return result
	}

	agent, err = e.agents.FindLeastLoadedAgent(ctx)
	if err != nil {
		e.logger.Warn("least loaded agent lookup failed", zap.Error(err))
	} else if agent != nil {
		result.AgentID = agent
		result.Confidence = fallbackConfidence
		return result
	}

	return result
}

func allKeywordsPresent(keywords []string, text string) bool {
	for _, kw := range keywords {
		if !strings.Contains(text, strings.ToLower(kw)) {
			return false
		}
	}
	return true
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

func containsPriority(values []domain.TicketPriority, target domain.TicketPriority) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
