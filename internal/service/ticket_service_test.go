package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk/internal/alerts"
	"github.com/spec-kit/helpdesk/internal/approval"
	"github.com/spec-kit/helpdesk/internal/classifier"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/notify"
	"github.com/spec-kit/helpdesk/internal/routing"
	"github.com/spec-kit/helpdesk/internal/testutil"
	"github.com/spec-kit/helpdesk/internal/workflow"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

type fakeClassifier struct {
	result *classifier.Result
	err    error
	texts  []string
}

func (f *fakeClassifier) Classify(_ context.Context, text string) (*classifier.Result, error) {
	f.texts = append(f.texts, text)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type recordingAlerts struct {
	mu     sync.Mutex
	events []domain.AlertEventType
}

func (r *recordingAlerts) Dispatch(_ context.Context, eventType domain.AlertEventType, _ alerts.Subject) alerts.Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, eventType)
	return alerts.Report{EventType: eventType}
}

func (r *recordingAlerts) count(eventType domain.AlertEventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == eventType {
			n++
		}
	}
	return n
}

// harnessMailer hands approval emails to the harness hook, if one is set.
type harnessMailer struct{ h *harness }

func (m harnessMailer) Send(ctx context.Context, msg notify.Message) error {
	if m.h.onMail != nil {
		m.h.onMail(ctx, msg)
	}
	return nil
}

type harness struct {
	store       *testutil.Store
	svc         *TicketService
	alerts      *recordingAlerts
	classifier  *fakeClassifier
	published   []events.Event
	requesterID string
	now         time.Time
	onMail      func(ctx context.Context, msg notify.Message)
}

func newHarness(t *testing.T, cls *fakeClassifier) *harness {
	t.Helper()
	h := &harness{
		store:      testutil.NewStore(),
		alerts:     &recordingAlerts{},
		classifier: cls,
		now:        time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
	}
	h.requesterID = h.store.AddUser(domain.User{Name: "Ana", Email: "ana@example.com", Role: domain.UserRoleEmployee})

	clock := func() time.Time { return h.now }
	gate := approval.NewGate(h.store.ApprovalRequests(), h.store.Tickets(), h.store.Users(), h.store.NotificationRepository(), approval.Options{
		Mailer:       harnessMailer{h},
		PublicAPIURL: "https://api.example.com",
		PublicWebURL: "https://desk.example.com",
		Clock:        clock,
	})
	engine := workflow.NewEngine(h.store.WorkflowExecutions(), workflow.Options{Approver: gate})
	router := routing.NewEngine(h.store.RoutingRules(), h.store.Agents(), h.store.Teams(), routing.Options{})

	dispatcher := events.NewInMemoryDispatcher(nil)
	dispatcher.SubscribeAll(func(_ context.Context, e events.Event) error {
		h.published = append(h.published, e)
		return nil
	})
	NewNotificationService(dispatcher, h.alerts, h.store.Tickets(), h.store.Users(), nil).RegisterHandlers()

	deps := TicketDependencies{
		TicketRepo:         h.store.Tickets(),
		EventRepo:          h.store.TicketEventRepository(),
		UserRepo:           h.store.Users(),
		TeamRepo:           h.store.Teams(),
		WorkflowRepo:       h.store.Workflows(),
		ExecutionRepo:      h.store.WorkflowExecutions(),
		RoutingHistoryRepo: h.store.RoutingDecisions(),
		WorkflowEngine:     engine,
		Router:             router,
		Approvals:          gate,
		Alerts:             h.alerts,
		Dispatcher:         dispatcher,
		Clock:              clock,
	}
	if cls != nil {
		deps.Classifier = cls
	}
	h.svc = NewTicketService(deps)
	return h
}

func (h *harness) create(t *testing.T, description string) *CreateResult {
	t.Helper()
	result, err := h.svc.CreateTicket(context.Background(), CreateTicketInput{
		Title:       "Help needed",
		Description: description,
		RequesterID: h.requesterID,
		Priority:    domain.TicketPriorityLow,
	})
	require.NoError(t, err)
	return result
}

func step(kind domain.StepKind, name, config string) domain.WorkflowStep {
	s := domain.WorkflowStep{Kind: kind, Name: name}
	if config != "" {
		s.Config = json.RawMessage(config)
	}
	return s
}

func ptr[T any](v T) *T { return &v }

func TestCreateTicketWithoutAutomation(t *testing.T) {
	h := newHarness(t, nil)

	result := h.create(t, "VPN not connecting")

	ticket := result.Ticket
	assert.Equal(t, domain.TicketStatusOpen, ticket.Status)
	assert.Equal(t, domain.TicketPriorityLow, ticket.Priority)
	assert.Nil(t, ticket.Category)
	assert.Nil(t, ticket.AssignedTeamID)
	assert.Nil(t, ticket.AssignedAgentID)
	require.NotNil(t, ticket.FirstResponseDueAt)
	require.NotNil(t, ticket.ResolutionDueAt)
	assert.Equal(t, h.now.Add(24*time.Hour), *ticket.FirstResponseDueAt)
	assert.Equal(t, h.now.Add(120*time.Hour), *ticket.ResolutionDueAt)

	assert.Equal(t, 1, h.alerts.count(domain.AlertTicketCreated))
	assert.Nil(t, result.Execution)

	classification, ok := result.Stage(StageClassification)
	require.True(t, ok)
	assert.False(t, classification.Attempted)
	routed, ok := result.Stage(StageRouting)
	require.True(t, ok)
	assert.True(t, routed.Attempted)
	assert.NoError(t, routed.Err)

	history := h.store.RoutingHistory()
	require.Len(t, history, 1)
	assert.False(t, history[0].Applied)
	assert.Equal(t, domain.RoutingMethodFallback, history[0].Method)

	trail := h.store.TicketEvents(ticket.ID)
	require.Len(t, trail, 1)
	assert.Equal(t, domain.TicketEventCreated, trail[0].Action)
	assert.Equal(t, &h.requesterID, trail[0].PerformedBy)
}

func TestCreateTicketAutoResolvesWithoutRouting(t *testing.T) {
	h := newHarness(t, nil)
	h.store.AddUser(domain.User{Name: "Agent", Email: "agent@example.com", Role: domain.UserRoleAgent})
	h.store.AddWorkflow(domain.Workflow{
		Name:          "VPN self-heal",
		Enabled:       true,
		KeywordFilter: []string{"vpn"},
		AutoResolve:   true,
		Steps:         []domain.WorkflowStep{step(domain.StepKindScript, "check", `{"script":"1 + 1"}`)},
	})

	result := h.create(t, "VPN not connecting")

	require.NotNil(t, result.Execution)
	assert.Equal(t, domain.ExecutionCompleted, result.Execution.Status)
	assert.Equal(t, domain.TicketStatusResolved, result.Ticket.Status)
	assert.NotNil(t, result.Ticket.ResolvedAt)
	assert.Nil(t, result.Ticket.AssignedAgentID)
	assert.Empty(t, h.store.RoutingHistory())

	routed, _ := result.Stage(StageRouting)
	assert.False(t, routed.Attempted)
	assert.Equal(t, 1, h.alerts.count(domain.AlertTicketResolved))

	trail := h.store.TicketEvents(result.Ticket.ID)
	require.Len(t, trail, 2)
	assert.Equal(t, domain.TicketEventStatusChanged, trail[1].Action)
	// No admin exists, so the requester is recorded as the resolver.
	assert.Equal(t, &h.requesterID, trail[1].PerformedBy)
}

func TestAutoResolveSkippedWhenWorkflowReportsFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.store.AddWorkflow(domain.Workflow{
		Name:        "check only",
		Enabled:     true,
		AutoResolve: true,
		Steps:       []domain.WorkflowStep{step(domain.StepKindScript, "success", `{"script":"false"}`)},
	})

	result := h.create(t, "printer jam")

	assert.Equal(t, domain.ExecutionCompleted, result.Execution.Status)
	assert.Equal(t, domain.TicketStatusOpen, result.Ticket.Status)
	assert.Len(t, h.store.RoutingHistory(), 1)
}

func approvalWorkflow() domain.Workflow {
	return domain.Workflow{
		Name:          "Password reset",
		Enabled:       true,
		KeywordFilter: []string{"password"},
		AutoResolve:   true,
		Steps: []domain.WorkflowStep{
			step(domain.StepKindApproval, "confirm", `{"title":"Reset your password?"}`),
			step(domain.StepKindLDAPQuery, "reset", `{"action":"password_reset"}`),
		},
	}
}

func TestCreateTicketSuspendsOnApproval(t *testing.T) {
	h := newHarness(t, nil)
	h.store.AddWorkflow(approvalWorkflow())

	result := h.create(t, "forgot my password")

	require.NotNil(t, result.Execution)
	assert.Equal(t, domain.ExecutionPending, result.Execution.Status)
	assert.Equal(t, domain.TicketStatusOpen, result.Ticket.Status)
	assert.Empty(t, h.store.RoutingHistory())

	approvals := h.store.Approvals()
	require.Len(t, approvals, 1)
	assert.Equal(t, domain.ApprovalPending, approvals[0].Status)
	assert.Equal(t, result.Ticket.ID, approvals[0].TicketID)
	assert.Equal(t, h.requesterID, approvals[0].RequestedBy)
	assert.Equal(t, result.Execution.ID, *approvals[0].ExecutionID)
}

func TestApproveResumesAndResolves(t *testing.T) {
	h := newHarness(t, nil)
	h.store.AddWorkflow(approvalWorkflow())
	created := h.create(t, "forgot my password")
	request := h.store.Approvals()[0]

	decision, err := h.svc.DecideApproval(context.Background(), request.ID, domain.DecisionApprove,
		Actor{UserID: h.requesterID, Role: domain.UserRoleEmployee})
	require.NoError(t, err)

	assert.Equal(t, domain.ApprovalApproved, decision.Approval.Status)
	require.NotNil(t, decision.Execution)
	assert.Equal(t, created.Execution.ID, decision.Execution.ID)
	assert.Equal(t, domain.ExecutionCompleted, decision.Execution.Status)
	assert.Equal(t, true, decision.Execution.OutputData["passwordReset"])
	assert.Equal(t, "employee", decision.Execution.OutputData["approvedBy"])
	assert.NoError(t, decision.FollowUp.Err)
	assert.Equal(t, domain.TicketStatusResolved, decision.Ticket.Status)

	steps := h.store.StepResults(created.Execution.ID)
	require.Len(t, steps, 3)
	assert.Equal(t, "confirm", steps[1].StepName)
	assert.True(t, steps[1].Success)
	assert.Equal(t, "reset", steps[2].StepName)

	_, err = h.svc.DecideApproval(context.Background(), request.ID, domain.DecisionReject,
		Actor{UserID: h.requesterID, Role: domain.UserRoleEmployee})
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestRejectFailsExecutionAndRoutes(t *testing.T) {
	h := newHarness(t, nil)
	agentID := h.store.AddUser(domain.User{Name: "Agent", Email: "agent@example.com", Role: domain.UserRoleAgent})
	h.store.AddWorkflow(approvalWorkflow())
	created := h.create(t, "forgot my password")
	request := h.store.Approvals()[0]

	decision, err := h.svc.DecideApproval(context.Background(), request.ID, domain.DecisionReject,
		Actor{UserID: h.requesterID, Role: domain.UserRoleEmployee})
	require.NoError(t, err)

	assert.Equal(t, domain.ApprovalRejected, decision.Approval.Status)
	assert.Equal(t, StageRouting, decision.FollowUp.Stage)
	assert.True(t, decision.FollowUp.Attempted)
	require.NotNil(t, decision.Routing)
	assert.Equal(t, &agentID, decision.Ticket.AssignedAgentID)

	var execution domain.WorkflowExecution
	for _, e := range h.store.Executions() {
		if e.ID == created.Execution.ID {
			execution = e
		}
	}
	assert.Equal(t, domain.ExecutionFailed, execution.Status)
	require.NotNil(t, execution.ErrorMessage)
	assert.Equal(t, "approval rejected", *execution.ErrorMessage)
	assert.Equal(t, 1, h.alerts.count(domain.AlertTicketAssigned))
}

func TestDecideApprovalRequiresRequesterOrStaff(t *testing.T) {
	h := newHarness(t, nil)
	h.store.AddWorkflow(approvalWorkflow())
	h.create(t, "forgot my password")
	request := h.store.Approvals()[0]

	_, err := h.svc.DecideApproval(context.Background(), request.ID, domain.DecisionApprove,
		Actor{UserID: "someone-else", Role: domain.UserRoleEmployee})
	require.Error(t, err)
	assert.Equal(t, "FORBIDDEN", apperrors.ToDomainError(err).Code)
}

func TestHandleExpiredApprovals(t *testing.T) {
	h := newHarness(t, nil)
	h.store.AddWorkflow(approvalWorkflow())
	created := h.create(t, "forgot my password")

	h.now = h.now.Add(25 * time.Hour)
	count, err := h.svc.HandleExpiredApprovals(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	assert.Equal(t, domain.ApprovalExpired, h.store.Approvals()[0].Status)
	for _, e := range h.store.Executions() {
		if e.ID == created.Execution.ID {
			assert.Equal(t, domain.ExecutionFailed, e.Status)
		}
	}
	assert.Len(t, h.store.RoutingHistory(), 1)
}

func TestClassificationAppliesSuggestion(t *testing.T) {
	cls := &fakeClassifier{result: &classifier.Result{
		Category:   ptr("NETWORK"),
		Confidence: ptr(0.91),
		Priority:   ptr(domain.TicketPriorityHigh),
		Intent:     ptr("vpn_issue"),
		Keywords:   []string{"vpn"},
	}}
	h := newHarness(t, cls)

	result := h.create(t, "VPN not connecting")

	require.Len(t, cls.texts, 1)
	assert.Equal(t, "Help needed VPN not connecting", cls.texts[0])
	require.NotNil(t, result.Ticket.Category)
	assert.Equal(t, "NETWORK", *result.Ticket.Category)
	assert.Equal(t, domain.TicketPriorityHigh, result.Ticket.Priority)
	assert.Equal(t, h.now.Add(4*time.Hour), *result.Ticket.FirstResponseDueAt)
	ai, ok := result.Ticket.IntegrationMetadata["ai"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "vpn_issue", ai["intent"])
}

func TestClassificationFailureIsRecordedNotReturned(t *testing.T) {
	h := newHarness(t, &fakeClassifier{err: errors.New("classifier timeout")})

	result := h.create(t, "VPN not connecting")

	outcome, ok := result.Stage(StageClassification)
	require.True(t, ok)
	assert.True(t, outcome.Attempted)
	assert.EqualError(t, outcome.Err, "classifier timeout")
	assert.Equal(t, domain.TicketPriorityLow, result.Ticket.Priority)

	disabled := newHarness(t, &fakeClassifier{err: classifier.ErrDisabled})
	outcome, _ = disabled.create(t, "VPN not connecting").Stage(StageClassification)
	assert.False(t, outcome.Attempted)
}

func TestRoutingRuleAssignsAndReprices(t *testing.T) {
	h := newHarness(t, nil)
	teamID := h.store.AddTeam(domain.Team{Name: "Network"})
	agentID := h.store.AddUser(domain.User{Name: "Net", Email: "net@example.com", Role: domain.UserRoleAgent, TeamID: &teamID})
	h.store.AddRoutingRule(domain.RoutingRule{
		Name:            "vpn",
		Enabled:         true,
		KeywordFilter:   []string{"vpn"},
		AssignedTeamID:  &teamID,
		AssignedAgentID: &agentID,
		AutoPriority:    ptr(domain.TicketPriorityMedium),
	})

	result := h.create(t, "VPN not connecting")

	assert.Equal(t, &teamID, result.Ticket.AssignedTeamID)
	assert.Equal(t, &agentID, result.Ticket.AssignedAgentID)
	assert.Equal(t, domain.TicketPriorityMedium, result.Ticket.Priority)
	assert.Equal(t, h.now.Add(8*time.Hour), *result.Ticket.FirstResponseDueAt)
	require.Len(t, h.store.RoutingHistory(), 1)
	assert.True(t, h.store.RoutingHistory()[0].Applied)
	assert.Equal(t, 1, h.alerts.count(domain.AlertTicketAssigned))
}

func TestCreateTicketValidation(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.svc.CreateTicket(context.Background(), CreateTicketInput{Title: " ", Description: "x", RequesterID: h.requesterID})
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_FAILED", apperrors.ToDomainError(err).Code)

	_, err = h.svc.CreateTicket(context.Background(), CreateTicketInput{Title: "t", Description: "d", RequesterID: "ghost"})
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_FAILED", apperrors.ToDomainError(err).Code)

	_, err = h.svc.CreateTicket(context.Background(), CreateTicketInput{Title: "t", Description: "d", RequesterID: h.requesterID, Priority: "URGENT"})
	require.Error(t, err)
}

func TestChangeStatus(t *testing.T) {
	h := newHarness(t, nil)
	ticketID := h.create(t, "printer jam").Ticket.ID
	requester := Actor{UserID: h.requesterID, Role: domain.UserRoleEmployee}

	ticket, err := h.svc.ChangeStatus(context.Background(), ticketID, domain.TicketStatusInProgress, requester)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, ticket.Status)
	assert.NotNil(t, ticket.FirstResponseAt)
	assert.Equal(t, 1, h.alerts.count(domain.AlertTicketStatusChanged))

	_, err = h.svc.ChangeStatus(context.Background(), ticketID, domain.TicketStatusOpen, requester)
	require.Error(t, err)
	de := apperrors.ToDomainError(err)
	assert.Equal(t, "ILLEGAL_TRANSITION", de.Code)
	assert.Equal(t, "illegal transition: IN_PROGRESS -> OPEN", de.Message)

	_, err = h.svc.ChangeStatus(context.Background(), ticketID, domain.TicketStatusResolved, Actor{UserID: "stranger", Role: domain.UserRoleEmployee})
	assert.Equal(t, "FORBIDDEN", apperrors.ToDomainError(err).Code)

	_, err = h.svc.ChangeStatus(context.Background(), ticketID, domain.TicketStatusResolved, requester)
	require.NoError(t, err)
	ticket, err = h.svc.ChangeStatus(context.Background(), ticketID, domain.TicketStatusClosed, requester)
	require.NoError(t, err)
	assert.NotNil(t, ticket.ClosedAt)
	assert.Equal(t, 1, h.alerts.count(domain.AlertTicketClosed))

	trail := h.store.TicketEvents(ticketID)
	assert.Equal(t, domain.TicketEventClosed, trail[len(trail)-1].Action)

	_, err = h.svc.ChangeStatus(context.Background(), "missing", domain.TicketStatusClosed, requester)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestAssign(t *testing.T) {
	h := newHarness(t, nil)
	ticketID := h.create(t, "printer jam").Ticket.ID
	adminID := h.store.AddUser(domain.User{Name: "Admin", Email: "admin@example.com", Role: domain.UserRoleAdmin})
	teamID := h.store.AddTeam(domain.Team{Name: "Desk"})
	admin := Actor{UserID: adminID, Role: domain.UserRoleAdmin}

	_, err := h.svc.Assign(context.Background(), ticketID, &teamID, nil, Actor{UserID: h.requesterID, Role: domain.UserRoleEmployee})
	assert.Equal(t, "FORBIDDEN", apperrors.ToDomainError(err).Code)

	ticket, err := h.svc.Assign(context.Background(), ticketID, &teamID, nil, admin)
	require.NoError(t, err)
	assert.Equal(t, &teamID, ticket.AssignedTeamID)
	assert.Equal(t, 0, h.alerts.count(domain.AlertTicketAssigned))

	ticket, err = h.svc.Assign(context.Background(), ticketID, nil, &adminID, admin)
	require.NoError(t, err)
	assert.Equal(t, &adminID, ticket.AssignedAgentID)
	assert.Equal(t, &teamID, ticket.AssignedTeamID)
	assert.Equal(t, 1, h.alerts.count(domain.AlertTicketAssigned))

	_, err = h.svc.Assign(context.Background(), ticketID, nil, &h.requesterID, admin)
	assert.Equal(t, "VALIDATION_FAILED", apperrors.ToDomainError(err).Code)
}

func TestScanSLABreachesAlertsOnce(t *testing.T) {
	h := newHarness(t, nil)
	h.create(t, "printer jam")

	h.now = h.now.Add(25 * time.Hour)
	count, err := h.svc.ScanSLABreaches(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, 1, h.alerts.count(domain.AlertSLAFirstResponseBreach))

	count, err = h.svc.ScanSLABreaches(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)

	h.now = h.now.Add(100 * time.Hour)
	count, err = h.svc.ScanSLABreaches(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, 1, h.alerts.count(domain.AlertSLAResolutionBreach))
}

func TestGetTicketReturnsTrail(t *testing.T) {
	h := newHarness(t, nil)
	ticketID := h.create(t, "printer jam").Ticket.ID

	ticket, trail, err := h.svc.GetTicket(context.Background(), ticketID, Actor{UserID: h.requesterID, Role: domain.UserRoleEmployee})
	require.NoError(t, err)
	assert.Equal(t, ticketID, ticket.ID)
	assert.Len(t, trail, 1)

	_, _, err = h.svc.GetTicket(context.Background(), ticketID, Actor{UserID: "other", Role: domain.UserRoleEmployee})
	assert.Equal(t, "FORBIDDEN", apperrors.ToDomainError(err).Code)
}

func TestCreatePublishesDomainEvents(t *testing.T) {
	h := newHarness(t, nil)
	h.create(t, "printer jam")

	var types []events.EventType
	for _, e := range h.published {
		types = append(types, e.Type)
	}
	assert.Equal(t, []events.EventType{events.EventTicketCreated, events.EventTicketRouted}, types)
}

func TestStatusAlertEvent(t *testing.T) {
	assert.Equal(t, domain.AlertTicketResolved, StatusAlertEvent(domain.TicketStatusResolved))
	assert.Equal(t, domain.AlertTicketClosed, StatusAlertEvent(domain.TicketStatusClosed))
	assert.Equal(t, domain.AlertTicketStatusChanged, StatusAlertEvent(domain.TicketStatusInProgress))
}

func TestCreateOnBehalfUsesFilerRole(t *testing.T) {
	h := newHarness(t, nil)
	agentID := h.store.AddUser(domain.User{Name: "Bo", Email: "bo@example.com", Role: domain.UserRoleAgent})

	result, err := h.svc.CreateTicket(context.Background(), CreateTicketInput{
		Title:       "Printer jam",
		Description: "Floor 3 printer",
		RequesterID: h.requesterID,
		PerformedBy: agentID,
	})
	require.NoError(t, err)
	assert.Equal(t, h.requesterID, result.Ticket.RequesterID)

	var created *events.Event
	for i := range h.published {
		if h.published[i].Type == events.EventTicketCreated {
			created = &h.published[i]
		}
	}
	require.NotNil(t, created)
	require.NotNil(t, created.Actor.UserID)
	assert.Equal(t, agentID, *created.Actor.UserID)
	assert.Equal(t, domain.UserRoleAgent, created.Actor.Role)

	trail := h.store.TicketEvents(result.Ticket.ID)
	require.NotEmpty(t, trail)
	assert.Equal(t, &agentID, trail[0].PerformedBy)

	_, err = h.svc.CreateTicket(context.Background(), CreateTicketInput{
		Title:       "Printer jam",
		Description: "Floor 3 printer",
		RequesterID: h.requesterID,
		PerformedBy: "ghost",
	})
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_FAILED", apperrors.ToDomainError(err).Code)
}
