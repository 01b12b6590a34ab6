// Package testutil provides an in-memory implementation of the repository interfaces for tests.
package testutil

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
)

// Store keeps every table in memory behind one mutex.
type Store struct {
	mu   sync.Mutex
	seq  int
	base time.Time

	tickets        map[string]*domain.Ticket
	events         []domain.TicketEvent
	users          []domain.User
	teams          []domain.Team
	skills         []domain.AgentSkill
	routingRules   []domain.RoutingRule
	routingHistory []domain.RoutingDecision
	workflows      []domain.Workflow
	executions     map[string]*domain.WorkflowExecution
	stepResults    []domain.WorkflowStepResult
	approvals      map[string]*domain.ApprovalRequest
	alertRules     []domain.AlertRule
	alertHistory   []domain.AlertHistory
	notifications  []domain.Notification
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		base:       time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		tickets:    map[string]*domain.Ticket{},
		executions: map[string]*domain.WorkflowExecution{},
		approvals:  map[string]*domain.ApprovalRequest{},
	}
}

// stamp returns a strictly increasing creation time so ordering by created_at is stable.
func (s *Store) stamp() time.Time {
	s.seq++
	return s.base.Add(time.Duration(s.seq) * time.Second)
}

// AddUser inserts a user and returns its id.
func (s *Store) AddUser(user domain.User) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.stamp()
	}
	s.users = append(s.users, user)
	return user.ID
}

// AddTeam inserts a team and returns its id.
func (s *Store) AddTeam(team domain.Team) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if team.ID == "" {
		team.ID = uuid.NewString()
	}
	if team.CreatedAt.IsZero() {
		team.CreatedAt = s.stamp()
	}
	s.teams = append(s.teams, team)
	return team.ID
}

// AddSkill records an agent skill.
func (s *Store) AddSkill(skill domain.AgentSkill) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skills = append(s.skills, skill)
}

// AddRoutingRule inserts a routing rule and returns its id.
func (s *Store) AddRoutingRule(rule domain.RoutingRule) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = s.stamp()
	}
	s.routingRules = append(s.routingRules, rule)
	return rule.ID
}

// AddWorkflow inserts a workflow and returns its id.
func (s *Store) AddWorkflow(wf domain.Workflow) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if wf.ID == "" {
		wf.ID = uuid.NewString()
	}
	if wf.CreatedAt.IsZero() {
		wf.CreatedAt = s.stamp()
	}
	s.workflows = append(s.workflows, wf)
	return wf.ID
}

// AddAlertRule inserts an alert rule and returns its id.
func (s *Store) AddAlertRule(rule domain.AlertRule) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = s.stamp()
	}
	s.alertRules = append(s.alertRules, rule)
	return rule.ID
}

// PutTicket stores a ticket as is, bypassing the create path.
func (s *Store) PutTicket(ticket domain.Ticket) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = s.stamp()
	}
	s.tickets[ticket.ID] = &ticket
	return ticket.ID
}

// Ticket returns a copy of the stored ticket.
func (s *Store) Ticket(id string) (domain.Ticket, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return domain.Ticket{}, false
	}
	return *t, true
}

// TicketEvents returns the audit trail of one ticket in insertion order.
func (s *Store) TicketEvents(ticketID string) []domain.TicketEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.TicketEvent
	for _, e := range s.events {
		if e.TicketID == ticketID {
			out = append(out, e)
		}
	}
	return out
}

// RoutingHistory returns every recorded routing decision.
func (s *Store) RoutingHistory() []domain.RoutingDecision {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.RoutingDecision(nil), s.routingHistory...)
}

// Executions returns every workflow execution.
func (s *Store) Executions() []domain.WorkflowExecution {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.WorkflowExecution, 0, len(s.executions))
	for _, e := range s.executions {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// StepResults returns the step audit trail of one execution.
func (s *Store) StepResults(executionID string) []domain.WorkflowStepResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.WorkflowStepResult
	for _, r := range s.stepResults {
		if r.ExecutionID == executionID {
			out = append(out, r)
		}
	}
	return out
}

// Approvals returns every approval request.
func (s *Store) Approvals() []domain.ApprovalRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ApprovalRequest, 0, len(s.approvals))
	for _, a := range s.approvals {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// AlertHistory returns every alert history row.
func (s *Store) AlertHistory() []domain.AlertHistory {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.AlertHistory(nil), s.alertHistory...)
}

// Notifications returns every in-app notification.
func (s *Store) Notifications() []domain.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Notification(nil), s.notifications...)
}

func (s *Store) Tickets() repository.TicketRepository { return ticketRepo{s} }

func (s *Store) TicketEventRepository() repository.TicketEventRepository { return ticketEventRepo{s} }

func (s *Store) Users() repository.UserRepository { return userRepo{s} }

func (s *Store) Teams() repository.TeamRepository { return teamRepo{s} }

func (s *Store) Agents() repository.AgentRepository { return agentRepo{s} }

func (s *Store) RoutingRules() repository.RoutingRuleRepository { return routingRuleRepo{s} }

func (s *Store) RoutingDecisions() repository.RoutingHistoryRepository { return routingHistoryRepo{s} }

func (s *Store) Workflows() repository.WorkflowRepository { return workflowRepo{s} }

func (s *Store) WorkflowExecutions() repository.WorkflowExecutionRepository { return executionRepo{s} }

func (s *Store) ApprovalRequests() repository.ApprovalRepository { return approvalRepo{s} }

func (s *Store) AlertRules() repository.AlertRuleRepository { return alertRuleRepo{s} }

func (s *Store) AlertHistories() repository.AlertHistoryRepository { return alertHistoryRepo{s} }

func (s *Store) NotificationRepository() repository.NotificationRepository {
	return notificationRepo{s}
}

type ticketRepo struct{ s *Store }

func (r ticketRepo) Create(_ context.Context, ticket *domain.Ticket, event *domain.TicketEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ticket.ID = uuid.NewString()
	ticket.Version = 1
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = r.s.stamp()
	}
	ticket.UpdatedAt = ticket.CreatedAt
	if ticket.IntegrationMetadata == nil {
		ticket.IntegrationMetadata = map[string]any{}
	}
	stored := *ticket
	r.s.tickets[ticket.ID] = &stored
	if event != nil {
		event.TicketID = ticket.ID
		r.s.appendEvent(event)
	}
	return nil
}

func (r ticketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	out := *t
	return &out, nil
}

func (r ticketRepo) Mutate(_ context.Context, id string, mutate repository.TicketMutation) (*domain.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	working := *stored
	event, err := mutate(&working)
	if err != nil {
		return nil, err
	}
	if stored.FirstResponseAt != nil {
		working.FirstResponseAt = stored.FirstResponseAt
	}
	if stored.ResolvedAt != nil {
		working.ResolvedAt = stored.ResolvedAt
	}
	if stored.ClosedAt != nil {
		working.ClosedAt = stored.ClosedAt
	}
	working.Version = stored.Version + 1
	working.UpdatedAt = r.s.stamp()
	*stored = working
	if event != nil {
		event.TicketID = id
		r.s.appendEvent(event)
	}
	out := working
	return &out, nil
}

func (r ticketRepo) ApplyClassification(_ context.Context, id string, update repository.ClassificationUpdate) (*domain.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	if update.Category != nil && t.Category == nil {
		category := *update.Category
		t.Category = &category
	}
	if update.Confidence != nil {
		confidence := *update.Confidence
		t.AIConfidence = &confidence
	}
	if update.Priority != nil && update.Deadlines != nil {
		t.Priority = *update.Priority
		t.ApplyDeadlines(*update.Deadlines)
	}
	if len(update.AIMetadata) > 0 {
		meta := map[string]any{}
		for k, v := range t.IntegrationMetadata {
			meta[k] = v
		}
		meta["ai"] = update.AIMetadata
		t.IntegrationMetadata = meta
	}
	t.Version++
	out := *t
	return &out, nil
}

func (r ticketRepo) UpdatePriority(_ context.Context, id string, priority domain.TicketPriority, due domain.SLADeadlines) (*domain.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	t.Priority = priority
	t.ApplyDeadlines(due)
	t.Version++
	out := *t
	return &out, nil
}

func (r ticketRepo) ClaimFirstResponseBreaches(_ context.Context, now time.Time, limit int) ([]domain.Ticket, error) {
	return r.claim(limit, "first_response", func(t *domain.Ticket) bool {
		return t.Status == domain.TicketStatusOpen && t.FirstResponseAt == nil &&
			t.FirstResponseDueAt != nil && t.FirstResponseDueAt.Before(now)
	})
}

func (r ticketRepo) ClaimResolutionBreaches(_ context.Context, now time.Time, limit int) ([]domain.Ticket, error) {
	return r.claim(limit, "resolution", func(t *domain.Ticket) bool {
		return (t.Status == domain.TicketStatusOpen || t.Status == domain.TicketStatusInProgress) &&
			t.ResolvedAt == nil && t.ResolutionDueAt != nil && t.ResolutionDueAt.Before(now)
	})
}

func (r ticketRepo) claim(limit int, marker string, breached func(*domain.Ticket) bool) ([]domain.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	key := "breach_alerted_" + marker
	var out []domain.Ticket
	for _, t := range r.s.tickets {
		if len(out) >= limit {
			break
		}
		if _, done := t.IntegrationMetadata[key]; done || !breached(t) {
			continue
		}
		meta := map[string]any{}
		for k, v := range t.IntegrationMetadata {
			meta[k] = v
		}
		meta[key] = true
		t.IntegrationMetadata = meta
		out = append(out, *t)
	}
	return out, nil
}

func (s *Store) appendEvent(event *domain.TicketEvent) {
	event.ID = uuid.NewString()
	event.CreatedAt = s.stamp()
	s.events = append(s.events, *event)
}

type ticketEventRepo struct{ s *Store }

func (r ticketEventRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.TicketEvent, error) {
	return r.s.TicketEvents(ticketID), nil
}

type userRepo struct{ s *Store }

func (r userRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.ID == id {
			out := u
			return &out, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r userRepo) FindFirstAdmin(_ context.Context) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.sortedUsers() {
		if u.Role == domain.UserRoleAdmin {
			out := u
			return &out, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r userRepo) ListByIDs(_ context.Context, ids []string) ([]domain.User, error) {
	return r.filter(func(u domain.User) bool { return containsString(ids, u.ID) }), nil
}

func (r userRepo) ListByTeams(_ context.Context, teamIDs []string) ([]domain.User, error) {
	return r.filter(func(u domain.User) bool { return u.TeamID != nil && containsString(teamIDs, *u.TeamID) }), nil
}

func (r userRepo) ListByRoles(_ context.Context, roles []domain.UserRole) ([]domain.User, error) {
	return r.filter(func(u domain.User) bool {
		for _, role := range roles {
			if u.Role == role {
				return true
			}
		}
		return false
	}), nil
}

func (r userRepo) filter(keep func(domain.User) bool) []domain.User {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.User
	for _, u := range r.s.users {
		if keep(u) {
			out = append(out, u)
		}
	}
	return out
}

func (s *Store) sortedUsers() []domain.User {
	users := append([]domain.User(nil), s.users...)
	sort.SliceStable(users, func(i, j int) bool { return users[i].CreatedAt.Before(users[j].CreatedAt) })
	return users
}

type teamRepo struct{ s *Store }

func (r teamRepo) GetByID(_ context.Context, id string) (*domain.Team, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.teams {
		if t.ID == id {
			out := t
			return &out, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r teamRepo) FindUrgentTeam(_ context.Context) (*domain.Team, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.teams {
		name := strings.ToLower(t.Name)
		if strings.Contains(name, "urgent") || strings.Contains(name, "critical") {
			out := t
			return &out, nil
		}
	}
	return nil, nil
}

type agentRepo struct{ s *Store }

func (r agentRepo) FindBestAgentForCategory(_ context.Context, category string, teamID *string, maxWorkload int) (*string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	type candidate struct {
		user     domain.User
		skill    int
		workload int
	}
	var candidates []candidate
	for _, skill := range r.s.skills {
		if skill.Category != category {
			continue
		}
		user, ok := r.s.staffUser(skill.AgentID)
		if !ok {
			continue
		}
		if teamID != nil && (user.TeamID == nil || *user.TeamID != *teamID) {
			continue
		}
		load := r.s.workload(user.ID)
		if load > maxWorkload {
			continue
		}
		candidates = append(candidates, candidate{user: user, skill: skill.SkillLevel, workload: load})
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.skill != b.skill {
			return a.skill > b.skill
		}
		if a.workload != b.workload {
			return a.workload < b.workload
		}
		return a.user.CreatedAt.Before(b.user.CreatedAt)
	})
	id := candidates[0].user.ID
	return &id, nil
}

func (r agentRepo) FindLeastLoadedAgent(_ context.Context) (*string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var best *domain.User
	bestLoad := 0
	for _, u := range r.s.sortedUsers() {
		if !u.Role.IsStaff() {
			continue
		}
		load := r.s.workload(u.ID)
		if best == nil || load < bestLoad {
			user := u
			best = &user
			bestLoad = load
		}
	}
	if best == nil {
		return nil, nil
	}
	id := best.ID
	return &id, nil
}

func (r agentRepo) Workload(_ context.Context, agentID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.workload(agentID), nil
}

func (s *Store) staffUser(id string) (domain.User, bool) {
	for _, u := range s.users {
		if u.ID == id && u.Role.IsStaff() {
			return u, true
		}
	}
	return domain.User{}, false
}

func (s *Store) workload(agentID string) int {
	count := 0
	for _, t := range s.tickets {
		if t.AssignedAgentID == nil || *t.AssignedAgentID != agentID {
			continue
		}
		if t.Status == domain.TicketStatusOpen || t.Status == domain.TicketStatusInProgress {
			count++
		}
	}
	return count
}

type routingRuleRepo struct{ s *Store }

func (r routingRuleRepo) ListEnabled(_ context.Context) ([]domain.RoutingRule, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.RoutingRule
	for _, rule := range r.s.routingRules {
		if rule.Enabled {
			out = append(out, rule)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r routingRuleRepo) CreateIfAbsent(_ context.Context, rule *domain.RoutingRule) (bool, error) {
	r.s.mu.Lock()
	for _, existing := range r.s.routingRules {
		if existing.Name == rule.Name {
			r.s.mu.Unlock()
			return false, nil
		}
	}
	r.s.mu.Unlock()
	rule.ID = r.s.AddRoutingRule(*rule)
	return true, nil
}

type routingHistoryRepo struct{ s *Store }

func (r routingHistoryRepo) Record(_ context.Context, decision *domain.RoutingDecision) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	decision.ID = uuid.NewString()
	decision.CreatedAt = r.s.stamp()
	r.s.routingHistory = append(r.s.routingHistory, *decision)
	return nil
}

type workflowRepo struct{ s *Store }

func (r workflowRepo) ListEnabled(_ context.Context) ([]domain.Workflow, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Workflow
	for _, wf := range r.s.workflows {
		if wf.Enabled {
			out = append(out, wf)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r workflowRepo) GetByID(_ context.Context, id string) (*domain.Workflow, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, wf := range r.s.workflows {
		if wf.ID == id {
			out := wf
			return &out, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r workflowRepo) CreateIfAbsent(_ context.Context, wf *domain.Workflow) (bool, error) {
	r.s.mu.Lock()
	for _, existing := range r.s.workflows {
		if existing.Name == wf.Name {
			r.s.mu.Unlock()
			return false, nil
		}
	}
	r.s.mu.Unlock()
	wf.ID = r.s.AddWorkflow(*wf)
	return true, nil
}

type executionRepo struct{ s *Store }

func (r executionRepo) Create(_ context.Context, execution *domain.WorkflowExecution) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	execution.ID = uuid.NewString()
	execution.StartedAt = r.s.stamp()
	stored := *execution
	r.s.executions[execution.ID] = &stored
	return nil
}

func (r executionRepo) GetByID(_ context.Context, id string) (*domain.WorkflowExecution, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.executions[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	out := *e
	return &out, nil
}

func (r executionRepo) MarkRunning(_ context.Context, id string) error {
	return r.update(id, func(e *domain.WorkflowExecution) {
		e.Status = domain.ExecutionRunning
		e.ErrorMessage = nil
	})
}

func (r executionRepo) SetCurrentStep(_ context.Context, id string, step int) error {
	return r.update(id, func(e *domain.WorkflowExecution) { e.CurrentStep = step })
}

func (r executionRepo) AppendStepResult(_ context.Context, result *domain.WorkflowStepResult) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	result.ID = uuid.NewString()
	result.CreatedAt = r.s.stamp()
	r.s.stepResults = append(r.s.stepResults, *result)
	return nil
}

func (r executionRepo) Finish(_ context.Context, id string, status domain.ExecutionStatus, output map[string]any, errMessage *string) error {
	return r.update(id, func(e *domain.WorkflowExecution) {
		e.Status = status
		e.OutputData = copyMap(output)
		e.ErrorMessage = errMessage
		if status == domain.ExecutionCompleted || status == domain.ExecutionFailed {
			now := r.s.stamp()
			e.CompletedAt = &now
		}
	})
}

func (r executionRepo) update(id string, fn func(*domain.WorkflowExecution)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.executions[id]
	if !ok {
		return pgx.ErrNoRows
	}
	fn(e)
	return nil
}

type approvalRepo struct{ s *Store }

func (r approvalRepo) Create(_ context.Context, request *domain.ApprovalRequest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	request.Status = domain.ApprovalPending
	request.CreatedAt = r.s.stamp()
	request.UpdatedAt = request.CreatedAt
	stored := *request
	r.s.approvals[request.ID] = &stored
	return nil
}

func (r approvalRepo) GetByID(_ context.Context, id string) (*domain.ApprovalRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.approvals[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	out := *a
	return &out, nil
}

func (r approvalRepo) GetByTokenHash(_ context.Context, tokenHash string) (*domain.ApprovalRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.approvals {
		if a.TokenHash == tokenHash {
			out := *a
			return &out, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r approvalRepo) ListPendingForTicket(_ context.Context, ticketID string) ([]domain.ApprovalRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.ApprovalRequest
	for _, a := range r.s.approvals {
		if a.TicketID == ticketID && a.Status == domain.ApprovalPending {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r approvalRepo) Decide(_ context.Context, id string, status domain.ApprovalStatus, now time.Time) (*domain.ApprovalRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.approvals[id]
	if !ok || a.Status != domain.ApprovalPending || a.IsExpired(now) {
		return nil, pgx.ErrNoRows
	}
	a.Status = status
	decided := now
	a.DecidedAt = &decided
	a.UpdatedAt = now
	out := *a
	return &out, nil
}

func (r approvalRepo) ExpirePending(_ context.Context, now time.Time) ([]domain.ApprovalRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.ApprovalRequest
	for _, a := range r.s.approvals {
		if a.Status == domain.ApprovalPending && a.IsExpired(now) {
			a.Status = domain.ApprovalExpired
			a.UpdatedAt = now
			out = append(out, *a)
		}
	}
	return out, nil
}

type alertRuleRepo struct{ s *Store }

func (r alertRuleRepo) ListEnabledForEvent(_ context.Context, eventType domain.AlertEventType) ([]domain.AlertRule, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.AlertRule
	for _, rule := range r.s.alertRules {
		if rule.Enabled && rule.EventType == eventType {
			out = append(out, rule)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r alertRuleRepo) CreateIfAbsent(_ context.Context, rule *domain.AlertRule) (bool, error) {
	r.s.mu.Lock()
	for _, existing := range r.s.alertRules {
		if existing.Name == rule.Name {
			r.s.mu.Unlock()
			return false, nil
		}
	}
	r.s.mu.Unlock()
	rule.ID = r.s.AddAlertRule(*rule)
	return true, nil
}

type alertHistoryRepo struct{ s *Store }

func (r alertHistoryRepo) Create(_ context.Context, entry *domain.AlertHistory) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	entry.ID = uuid.NewString()
	entry.CreatedAt = r.s.stamp()
	r.s.alertHistory = append(r.s.alertHistory, *entry)
	return nil
}

type notificationRepo struct{ s *Store }

func (r notificationRepo) Create(_ context.Context, notification *domain.Notification) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	notification.ID = uuid.NewString()
	notification.CreatedAt = r.s.stamp()
	r.s.notifications = append(r.s.notifications, *notification)
	return nil
}

func (r notificationRepo) BulkCreate(_ context.Context, userIDs []string, template domain.Notification) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, id := range userIDs {
		n := template
		n.ID = uuid.NewString()
		n.UserID = id
		n.CreatedAt = r.s.stamp()
		r.s.notifications = append(r.s.notifications, n)
	}
	return int64(len(userIDs)), nil
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

func copyMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
