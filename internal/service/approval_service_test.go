package service

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/notify"
)

var confirmLink = regexp.MustCompile(`approvals/confirm/([0-9a-f]+)\?decision=(approve|reject)`)

// linkToken returns the token of the emailed confirm link for decision.
func linkToken(t *testing.T, text string, decision domain.ApprovalDecision) string {
	t.Helper()
	for _, match := range confirmLink.FindAllStringSubmatch(text, -1) {
		if match[2] == string(decision) {
			return match[1]
		}
	}
	t.Fatalf("no %s link in %q", decision, text)
	return ""
}

func TestApprovalDecidedDuringDeliveryResumes(t *testing.T) {
	h := newHarness(t, nil)
	h.store.AddWorkflow(approvalWorkflow())

	var decided *DecisionResult
	var decideErr error
	h.onMail = func(ctx context.Context, msg notify.Message) {
		decided, decideErr = h.svc.DecideApprovalByToken(ctx, linkToken(t, msg.Text, domain.DecisionApprove), domain.DecisionApprove)
	}

	created := h.create(t, "forgot my password")

	require.NoError(t, decideErr)
	require.NotNil(t, decided)
	assert.NoError(t, decided.FollowUp.Err)
	require.NotNil(t, decided.Execution)
	assert.Equal(t, domain.ExecutionCompleted, decided.Execution.Status)

	require.NotNil(t, created.Execution)
	assert.Equal(t, domain.ExecutionCompleted, created.Execution.Status)
	assert.Equal(t, domain.TicketStatusResolved, created.Ticket.Status)
	assert.Empty(t, h.store.RoutingHistory())

	approvals := h.store.Approvals()
	require.Len(t, approvals, 1)
	assert.Equal(t, domain.ApprovalApproved, approvals[0].Status)
	executions := h.store.Executions()
	require.Len(t, executions, 1)
	assert.Equal(t, domain.ExecutionCompleted, executions[0].Status)
}

func TestApprovalRejectedDuringDeliveryRoutesOnce(t *testing.T) {
	h := newHarness(t, nil)
	agentID := h.store.AddUser(domain.User{Name: "Agent", Email: "agent@example.com", Role: domain.UserRoleAgent})
	h.store.AddWorkflow(approvalWorkflow())

	var decideErr error
	h.onMail = func(ctx context.Context, msg notify.Message) {
		_, decideErr = h.svc.DecideApprovalByToken(ctx, linkToken(t, msg.Text, domain.DecisionReject), domain.DecisionReject)
	}

	created := h.create(t, "forgot my password")

	require.NoError(t, decideErr)
	require.NotNil(t, created.Execution)
	assert.Equal(t, domain.ExecutionFailed, created.Execution.Status)
	require.NotNil(t, created.Execution.ErrorMessage)
	assert.Equal(t, "approval rejected", *created.Execution.ErrorMessage)

	assert.Equal(t, domain.TicketStatusOpen, created.Ticket.Status)
	assert.Equal(t, &agentID, created.Ticket.AssignedAgentID)
	assert.Len(t, h.store.RoutingHistory(), 1)
}
