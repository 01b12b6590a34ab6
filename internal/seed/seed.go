// Package seed loads routing rules, workflows and alert rules from a YAML file.
// Entries are inserted only when no row with the same name exists.
package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
)

// File is the top-level document.
type File struct {
	RoutingRules []RoutingRule `yaml:"routingRules"`
	Workflows    []Workflow    `yaml:"workflows"`
	AlertRules   []AlertRule   `yaml:"alertRules"`
}

// RoutingRule is the YAML form of domain.RoutingRule.
type RoutingRule struct {
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description"`
	Priority     int      `yaml:"priority"`
	Enabled      *bool    `yaml:"enabled"`
	Categories   []string `yaml:"categories"`
	Priorities   []string `yaml:"priorities"`
	Keywords     []string `yaml:"keywords"`
	TeamID       string   `yaml:"teamId"`
	AgentID      string   `yaml:"agentId"`
	AutoPriority string   `yaml:"autoPriority"`
}

// Step is one workflow step. Config is free-form and stored as JSON.
type Step struct {
	Type      string         `yaml:"type"`
	Name      string         `yaml:"name"`
	Config    map[string]any `yaml:"config"`
	OnSuccess string         `yaml:"onSuccess"`
	OnFailure string         `yaml:"onFailure"`
}

// Workflow is the YAML form of domain.Workflow.
type Workflow struct {
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description"`
	Priority     int      `yaml:"priority"`
	Enabled      *bool    `yaml:"enabled"`
	Intents      []string `yaml:"intents"`
	Categories   []string `yaml:"categories"`
	Keywords     []string `yaml:"keywords"`
	AutoResolve  bool     `yaml:"autoResolve"`
	CreateTicket bool     `yaml:"createTicket"`
	Steps        []Step   `yaml:"steps"`
}

// AlertRule is the YAML form of domain.AlertRule.
type AlertRule struct {
	Name          string         `yaml:"name"`
	Description   string         `yaml:"description"`
	Event         string         `yaml:"event"`
	Priority      int            `yaml:"priority"`
	Enabled       *bool          `yaml:"enabled"`
	Conditions    map[string]any `yaml:"conditions"`
	Channels      []string       `yaml:"channels"`
	Users         []string       `yaml:"users"`
	Emails        []string       `yaml:"emails"`
	Phones        []string       `yaml:"phones"`
	Teams         []string       `yaml:"teams"`
	Roles         []string       `yaml:"roles"`
	EmailSubject  string         `yaml:"emailSubject"`
	EmailTemplate string         `yaml:"emailTemplate"`
	SMSTemplate   string         `yaml:"smsTemplate"`
	WebhookURL    string         `yaml:"webhookUrl"`
	WebhookSecret string         `yaml:"webhookSecret"`
}

// Stores are the repositories seeding writes to.
type Stores struct {
	RoutingRules repository.RoutingRuleRepository
	Workflows    repository.WorkflowRepository
	AlertRules   repository.AlertRuleRepository
}

// Summary counts inserted and skipped entries.
type Summary struct {
	Inserted int
	Skipped  int
}

// LoadFile reads and parses path.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator supplied seed file
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a seed document.
func Parse(data []byte) (*File, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	if err := file.validate(); err != nil {
		return nil, err
	}
	return &file, nil
}

func (f *File) validate() error {
	for i, r := range f.RoutingRules {
		if strings.TrimSpace(r.Name) == "" {
			return fmt.Errorf("routingRules[%d]: name is required", i)
		}
		for _, p := range r.Priorities {
			if !domain.TicketPriority(strings.ToUpper(p)).Valid() {
				return fmt.Errorf("routing rule %s: unknown priority %q", r.Name, p)
			}
		}
		if r.AutoPriority != "" && !domain.TicketPriority(strings.ToUpper(r.AutoPriority)).Valid() {
			return fmt.Errorf("routing rule %s: unknown autoPriority %q", r.Name, r.AutoPriority)
		}
	}
	for i, w := range f.Workflows {
		if strings.TrimSpace(w.Name) == "" {
			return fmt.Errorf("workflows[%d]: name is required", i)
		}
		for j, s := range w.Steps {
			if s.Name == "" || s.Type == "" {
				return fmt.Errorf("workflow %s: steps[%d] needs a name and a type", w.Name, j)
			}
		}
	}
	for i, a := range f.AlertRules {
		if strings.TrimSpace(a.Name) == "" {
			return fmt.Errorf("alertRules[%d]: name is required", i)
		}
		if a.Event == "" {
			return fmt.Errorf("alert rule %s: event is required", a.Name)
		}
		if len(a.Channels) == 0 {
			return fmt.Errorf("alert rule %s: at least one channel is required", a.Name)
		}
	}
	return nil
}

// Apply inserts every entry of file whose name is not taken yet.
func Apply(ctx context.Context, file *File, stores Stores, logger *zap.Logger) (Summary, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var summary Summary
	count := func(inserted bool) {
		if inserted {
			summary.Inserted++
		} else {
			summary.Skipped++
		}
	}

	for _, r := range file.RoutingRules {
		inserted, err := stores.RoutingRules.CreateIfAbsent(ctx, r.toDomain())
		if err != nil {
			return summary, fmt.Errorf("seed routing rule %s: %w", r.Name, err)
		}
		count(inserted)
	}
	for _, w := range file.Workflows {
		wf, err := w.toDomain()
		if err != nil {
			return summary, err
		}
		inserted, err := stores.Workflows.CreateIfAbsent(ctx, wf)
		if err != nil {
			return summary, fmt.Errorf("seed workflow %s: %w", w.Name, err)
		}
		count(inserted)
	}
	for _, a := range file.AlertRules {
		inserted, err := stores.AlertRules.CreateIfAbsent(ctx, a.toDomain())
		if err != nil {
			return summary, fmt.Errorf("seed alert rule %s: %w", a.Name, err)
		}
		count(inserted)
	}

	logger.Info("seed applied", zap.Int("inserted", summary.Inserted), zap.Int("skipped", summary.Skipped))
	return summary, nil
}

func (r RoutingRule) toDomain() *domain.RoutingRule {
	rule := &domain.RoutingRule{
		Name:            r.Name,
		Description:     r.Description,
		Priority:        r.Priority,
		Enabled:         enabled(r.Enabled),
		CategoryFilter:  r.Categories,
		KeywordFilter:   r.Keywords,
		AssignedTeamID:  optional(r.TeamID),
		AssignedAgentID: optional(r.AgentID),
	}
	for _, p := range r.Priorities {
		rule.PriorityFilter = append(rule.PriorityFilter, domain.TicketPriority(strings.ToUpper(p)))
	}
	if r.AutoPriority != "" {
		p := domain.TicketPriority(strings.ToUpper(r.AutoPriority))
		rule.AutoPriority = &p
	}
	return rule
}

func (w Workflow) toDomain() (*domain.Workflow, error) {
	wf := &domain.Workflow{
		Name:           w.Name,
		Description:    w.Description,
		Priority:       w.Priority,
		Enabled:        enabled(w.Enabled),
		IntentFilter:   w.Intents,
		CategoryFilter: w.Categories,
		KeywordFilter:  w.Keywords,
		AutoResolve:    w.AutoResolve,
		CreateTicket:   w.CreateTicket,
	}
	for _, s := range w.Steps {
		step := domain.WorkflowStep{
			Kind:      domain.StepKind(s.Type),
			Name:      s.Name,
			OnSuccess: s.OnSuccess,
			OnFailure: s.OnFailure,
		}
		if len(s.Config) > 0 {
			raw, err := json.Marshal(s.Config)
			if err != nil {
				return nil, fmt.Errorf("workflow %s: step %s config: %w", w.Name, s.Name, err)
			}
			step.Config = raw
		}
		wf.Steps = append(wf.Steps, step)
	}
	return wf, nil
}

func (a AlertRule) toDomain() *domain.AlertRule {
	rule := &domain.AlertRule{
		Name:             a.Name,
		Description:      a.Description,
		EventType:        domain.AlertEventType(strings.ToUpper(a.Event)),
		Conditions:       a.Conditions,
		RecipientUserIDs: a.Users,
		RecipientEmails:  a.Emails,
		RecipientPhones:  a.Phones,
		RecipientTeamIDs: a.Teams,
		EmailSubject:     optional(a.EmailSubject),
		EmailTemplate:    optional(a.EmailTemplate),
		SMSTemplate:      optional(a.SMSTemplate),
		WebhookURL:       optional(a.WebhookURL),
		WebhookSecret:    optional(a.WebhookSecret),
		Priority:         a.Priority,
		Enabled:          enabled(a.Enabled),
	}
	for _, c := range a.Channels {
		rule.Channels = append(rule.Channels, domain.AlertChannel(strings.ToUpper(c)))
	}
	for _, r := range a.Roles {
		rule.RecipientRoles = append(rule.RecipientRoles, domain.UserRole(strings.ToUpper(r)))
	}
	return rule
}

func enabled(v *bool) bool {
	return v == nil || *v
}

func optional(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}
