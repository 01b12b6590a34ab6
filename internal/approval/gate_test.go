package approval

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/notify"
	"github.com/spec-kit/helpdesk/internal/testutil"
	"github.com/spec-kit/helpdesk/internal/workflow"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

type captureMailer struct {
	mu       sync.Mutex
	messages []notify.Message
	err      error
}

func (m *captureMailer) Send(_ context.Context, msg notify.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return m.err
}

var tokenPattern = regexp.MustCompile(`/api/v1/approvals/confirm/([0-9a-f]+)\?decision=approve`)

func (m *captureMailer) token(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.messages)
	match := tokenPattern.FindStringSubmatch(m.messages[len(m.messages)-1].Text)
	require.Len(t, match, 2)
	return match[1]
}

type fixture struct {
	store    *testutil.Store
	gate     *Gate
	mailer   *captureMailer
	ticketID string
	userID   string
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := testutil.NewStore()
	userID := store.AddUser(domain.User{Name: "Ana", Email: "ana@example.com", Role: domain.UserRoleEmployee})
	ticketID := store.PutTicket(domain.Ticket{
		Title:       "Locked out",
		RequesterID: userID,
		Priority:    domain.TicketPriorityMedium,
		Status:      domain.TicketStatusOpen,
	})
	f := &fixture{
		store:    store,
		mailer:   &captureMailer{},
		ticketID: ticketID,
		userID:   userID,
		now:      time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	f.gate = NewGate(store.ApprovalRequests(), store.Tickets(), store.Users(), store.NotificationRepository(), Options{
		Mailer:       f.mailer,
		PublicAPIURL: "https://api.example.com/",
		PublicWebURL: "https://desk.example.com",
		Clock:        func() time.Time { return f.now },
	})
	return f
}

func TestPreparedApprovalStoresHashedTokenOnOpen(t *testing.T) {
	f := newFixture(t)

	prepared, err := f.gate.PrepareApproval(context.Background(), workflow.PendingApproval{
		TicketID:    f.ticketID,
		WorkflowID:  "wf-1",
		ExecutionID: "exec-1",
		StepIndex:   2,
		Title:       "Approve password reset",
		Body:        "We will reset your password.",
		Input:       map[string]any{"requesterEmail": "ana@example.com"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, prepared.ID)
	assert.Empty(t, f.store.Approvals())
	assert.Empty(t, f.mailer.messages)
	assert.Empty(t, f.store.Notifications())

	require.NoError(t, prepared.Open(context.Background()))

	stored := f.store.Approvals()
	require.Len(t, stored, 1)
	request := stored[0]
	assert.Equal(t, prepared.ID, request.ID)
	assert.Equal(t, f.userID, request.RequestedBy)
	assert.Equal(t, 2, request.StepIndex)
	require.NotNil(t, request.ExecutionID)
	assert.Equal(t, "exec-1", *request.ExecutionID)
	require.NotNil(t, request.ExpiresAt)
	assert.Equal(t, f.now.Add(DefaultTTL), *request.ExpiresAt)

	token := f.mailer.token(t)
	assert.Len(t, token, tokenBytes*2)
	assert.Equal(t, HashToken(token), request.TokenHash)
	assert.NotEqual(t, token, request.TokenHash)

	msg := f.mailer.messages[0]
	assert.Equal(t, "ana@example.com", msg.To)
	assert.Equal(t, "Approve password reset", msg.Subject)
	assert.Contains(t, msg.Text, "https://api.example.com/api/v1/approvals/confirm/"+token+"?decision=reject")
	assert.Contains(t, msg.Text, "https://desk.example.com/tickets/"+f.ticketID)

	notifications := f.store.Notifications()
	require.Len(t, notifications, 1)
	assert.Equal(t, domain.NotificationApprovalRequested, notifications[0].Type)
	assert.Equal(t, f.userID, notifications[0].UserID)
}

func TestRequestSurvivesMailerFailure(t *testing.T) {
	f := newFixture(t)
	f.mailer.err = errors.New("smtp down")

	request, err := f.gate.Request(context.Background(), RequestInput{
		TicketID:    f.ticketID,
		WorkflowID:  "wf-1",
		RequestedBy: f.userID,
		Title:       "Confirm",
		ExpiresIn:   time.Hour,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ApprovalPending, request.Status)
	assert.Equal(t, f.now.Add(time.Hour), *request.ExpiresAt)
}

func TestPrepareApprovalUnknownTicket(t *testing.T) {
	f := newFixture(t)
	_, err := f.gate.PrepareApproval(context.Background(), workflow.PendingApproval{TicketID: "missing"})
	require.Error(t, err)
	assert.Empty(t, f.store.Approvals())
}

func TestDecideOnceOnly(t *testing.T) {
	f := newFixture(t)
	request, err := f.gate.Request(context.Background(), RequestInput{TicketID: f.ticketID, RequestedBy: f.userID, Title: "Confirm"})
	require.NoError(t, err)

	decided, err := f.gate.Decide(context.Background(), request.ID, domain.DecisionReject)
	require.NoError(t, err)
	assert.Equal(t, domain.ApprovalRejected, decided.Status)
	require.NotNil(t, decided.DecidedAt)

	_, err = f.gate.Decide(context.Background(), request.ID, domain.DecisionApprove)
	require.ErrorIs(t, err, ErrAlreadyDecided)
	var domainErr *apperrors.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "NOT_FOUND", domainErr.Code)
}

func TestConcurrentDecisionsHaveOneWinner(t *testing.T) {
	f := newFixture(t)
	request, err := f.gate.Request(context.Background(), RequestInput{TicketID: f.ticketID, RequestedBy: f.userID, Title: "Confirm"})
	require.NoError(t, err)

	const racers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins, losses := 0, 0
	for i := 0; i < racers; i++ {
		decision := domain.DecisionApprove
		if i%2 == 1 {
			decision = domain.DecisionReject
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.gate.Decide(context.Background(), request.ID, decision)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
				return
			}
			if errors.Is(err, ErrAlreadyDecided) {
				losses++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, racers-1, losses)
}

func TestDecideByToken(t *testing.T) {
	f := newFixture(t)
	request, err := f.gate.Request(context.Background(), RequestInput{TicketID: f.ticketID, RequestedBy: f.userID, Title: "Confirm"})
	require.NoError(t, err)
	token := f.mailer.token(t)

	found, err := f.gate.FindByToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, request.ID, found.ID)

	decided, err := f.gate.DecideByToken(context.Background(), token, domain.DecisionApprove)
	require.NoError(t, err)
	assert.Equal(t, domain.ApprovalApproved, decided.Status)

	_, err = f.gate.DecideByToken(context.Background(), "not-a-token", domain.DecisionApprove)
	require.ErrorIs(t, err, ErrAlreadyDecided)
}

func TestDecideRejectsUnknownDecision(t *testing.T) {
	f := newFixture(t)
	_, err := f.gate.Decide(context.Background(), "any", domain.ApprovalDecision("maybe"))
	var domainErr *apperrors.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "VALIDATION_FAILED", domainErr.Code)
}

func TestExpiredRequestCannotBeDecided(t *testing.T) {
	f := newFixture(t)
	request, err := f.gate.Request(context.Background(), RequestInput{
		TicketID:    f.ticketID,
		RequestedBy: f.userID,
		Title:       "Confirm",
		ExpiresIn:   time.Hour,
	})
	require.NoError(t, err)

	f.now = f.now.Add(2 * time.Hour)
	_, err = f.gate.Decide(context.Background(), request.ID, domain.DecisionApprove)
	require.ErrorIs(t, err, ErrAlreadyDecided)

	expired, err := f.gate.ExpireStale(context.Background())
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, domain.ApprovalExpired, expired[0].Status)

	again, err := f.gate.ExpireStale(context.Background())
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestListPendingNewestFirst(t *testing.T) {
	f := newFixture(t)
	first, err := f.gate.Request(context.Background(), RequestInput{TicketID: f.ticketID, RequestedBy: f.userID, Title: "one"})
	require.NoError(t, err)
	second, err := f.gate.Request(context.Background(), RequestInput{TicketID: f.ticketID, RequestedBy: f.userID, Title: "two"})
	require.NoError(t, err)

	pending, err := f.gate.ListPending(context.Background(), f.ticketID)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, second.ID, pending[0].ID)
	assert.Equal(t, first.ID, pending[1].ID)
}

func TestResultLink(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, "https://desk.example.com/approvals/abc?status=approved", f.gate.ResultLink("abc", domain.ApprovalApproved))
}
