package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/testutil"
)

type recordingApprover struct {
	mu       sync.Mutex
	requests []PendingApproval
	err      error
	openErr  error
	// onOpen observes the execution store at the moment the request is opened.
	onOpen func(ctx context.Context)
	opened int
}

func (a *recordingApprover) PrepareApproval(_ context.Context, req PendingApproval) (*PreparedApproval, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return nil, a.err
	}
	a.requests = append(a.requests, req)
	return &PreparedApproval{
		ID: "approval-1",
		Open: func(ctx context.Context) error {
			if a.onOpen != nil {
				a.onOpen(ctx)
			}
			a.mu.Lock()
			defer a.mu.Unlock()
			a.opened++
			return a.openErr
		},
	}, nil
}

type failingDirectory struct{}

func (failingDirectory) ResetPassword(context.Context, DirectorySubject) error {
	return errors.New("directory unavailable")
}

func (failingDirectory) UnlockAccount(context.Context, DirectorySubject) error {
	return errors.New("directory unavailable")
}

func step(kind domain.StepKind, name string, config string) domain.WorkflowStep {
	s := domain.WorkflowStep{Kind: kind, Name: name}
	if config != "" {
		s.Config = json.RawMessage(config)
	}
	return s
}

func newTestEngine(store *testutil.Store, opts Options) *Engine {
	return NewEngine(store.WorkflowExecutions(), opts)
}

func strPtr(s string) *string { return &s }

func TestExecuteAPICallExtractsResponsePath(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/ana@example.com", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"result":{"ticketNumber":"INC-7"}}`))
	}))
	defer srv.Close()

	store := testutil.NewStore()
	engine := newTestEngine(store, Options{})
	wf := &domain.Workflow{ID: "wf", Steps: []domain.WorkflowStep{
		step(domain.StepKindAPICall, "lookup", `{
			"url": "`+srv.URL+`/users/{{email}}",
			"method": "post",
			"headers": {"X-Api-Key": "secret"},
			"body": {"requester": "{{email}}", "priority": 2},
			"responsePath": "result.ticketNumber"
		}`),
	}}

	exec, err := engine.Execute(context.Background(), wf, map[string]any{"email": "ana@example.com"}, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, domain.ExecutionCompleted, exec.Status)
	assert.Equal(t, "INC-7", exec.OutputData["lookup"])
	assert.Equal(t, "ana@example.com", gotBody["requester"])
	assert.Equal(t, float64(2), gotBody["priority"])

	results := store.StepResults(exec.ID)
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	assert.Equal(t, domain.StepKindAPICall, results[0].StepKind)
}

func TestExecuteFailureWithoutJumpFailsExecution(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	store := testutil.NewStore()
	engine := newTestEngine(store, Options{})
	wf := &domain.Workflow{ID: "wf", Steps: []domain.WorkflowStep{
		step(domain.StepKindAPICall, "call", `{"url":"`+srv.URL+`"}`),
		step(domain.StepKindScript, "never", `{"script":"1 + 1"}`),
	}}

	exec, err := engine.Execute(context.Background(), wf, nil, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, domain.ExecutionFailed, exec.Status)
	require.NotNil(t, exec.ErrorMessage)
	assert.Contains(t, *exec.ErrorMessage, "500")
	assert.NotNil(t, exec.CompletedAt)
	assert.Len(t, store.StepResults(exec.ID), 1)

	stored, err := store.WorkflowExecutions().GetByID(context.Background(), exec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionFailed, stored.Status)
}

func TestExecuteFailureJumpsToNamedStep(t *testing.T) {
	store := testutil.NewStore()
	engine := newTestEngine(store, Options{Directory: failingDirectory{}})
	wf := &domain.Workflow{ID: "wf", Steps: []domain.WorkflowStep{
		{Kind: domain.StepKindLDAPQuery, Name: "reset", Config: json.RawMessage(`{"action":"password_reset"}`), OnFailure: "fallback"},
		step(domain.StepKindScript, "skipped", `{"script":"'should not run'"}`),
		step(domain.StepKindScript, "fallback", `{"script":"'handled'"}`),
	}}

	exec, err := engine.Execute(context.Background(), wf, nil, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, domain.ExecutionCompleted, exec.Status)
	assert.Equal(t, "handled", exec.OutputData["fallback"])
	assert.NotContains(t, exec.OutputData, "skipped")
}

func TestExecuteConditionSelectsBranch(t *testing.T) {
	store := testutil.NewStore()
	engine := newTestEngine(store, Options{})
	wf := &domain.Workflow{ID: "wf", Steps: []domain.WorkflowStep{
		step(domain.StepKindCondition, "check", `{"condition":"state == locked","thenStep":"unlock","elseStep":"reset"}`),
		step(domain.StepKindLDAPQuery, "reset", `{"action":"password_reset"}`),
		{Kind: domain.StepKindLDAPQuery, Name: "unlock", Config: json.RawMessage(`{"action":"account_unlock"}`), OnSuccess: "done"},
		step(domain.StepKindScript, "unreached", `{"script":"true"}`),
		step(domain.StepKindScript, "done", `{"script":"'ok'"}`),
	}}

	exec, err := engine.Execute(context.Background(), wf, map[string]any{
		"state":    "locked",
		"entities": map[string]any{"usernames": []any{"ana"}},
	}, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, domain.ExecutionCompleted, exec.Status)
	assert.Equal(t, true, exec.OutputData["conditionMet"])
	assert.Equal(t, true, exec.OutputData["accountUnlocked"])
	assert.Equal(t, "Account unlocked for ana", exec.OutputData["message"])
	assert.NotContains(t, exec.OutputData, "passwordReset")
	assert.NotContains(t, exec.OutputData, "unreached")
	assert.Equal(t, "ok", exec.OutputData["done"])
}

func TestExecuteScriptSeesContext(t *testing.T) {
	store := testutil.NewStore()
	engine := newTestEngine(store, Options{})
	wf := &domain.Workflow{ID: "wf", Steps: []domain.WorkflowStep{
		step(domain.StepKindScript, "score", `{"script":"attempts * 2 + len(context.tags)"}`),
		step(domain.StepKindScript, "label", `{"script":"score > 5 ? 'high' : 'low'"}`),
	}}

	exec, err := engine.Execute(context.Background(), wf, map[string]any{
		"attempts": 3,
		"tags":     []any{"vpn"},
	}, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, domain.ExecutionCompleted, exec.Status)
	assert.EqualValues(t, 7, exec.OutputData["score"])
	assert.Equal(t, "high", exec.OutputData["label"])
}

func TestExecuteConfigurationErrorsAreStepFailures(t *testing.T) {
	store := testutil.NewStore()
	engine := newTestEngine(store, Options{})

	for name, s := range map[string]domain.WorkflowStep{
		"empty script":  step(domain.StepKindScript, "s", `{}`),
		"unknown kind":  step(domain.StepKind("shell"), "s", `{}`),
		"missing url":   step(domain.StepKindAPICall, "s", `{"method":"GET"}`),
		"bad config":    step(domain.StepKindDelay, "s", `{"durationMs":"soon"}`),
		"script syntax": step(domain.StepKindScript, "s", `{"script":"1 +"}`),
	} {
		wf := &domain.Workflow{ID: "wf", Steps: []domain.WorkflowStep{s}}
		exec, err := engine.Execute(context.Background(), wf, nil, nil, nil)
		require.NoError(t, err, name)
		assert.Equal(t, domain.ExecutionFailed, exec.Status, name)
	}
}

func TestExecuteUnknownJumpTargetFails(t *testing.T) {
	store := testutil.NewStore()
	engine := newTestEngine(store, Options{})
	wf := &domain.Workflow{ID: "wf", Steps: []domain.WorkflowStep{
		{Kind: domain.StepKindScript, Name: "a", Config: json.RawMessage(`{"script":"1"}`), OnSuccess: "nowhere"},
	}}

	exec, err := engine.Execute(context.Background(), wf, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionFailed, exec.Status)
	assert.Equal(t, "unknown step: nowhere", *exec.ErrorMessage)
}

func TestExecuteStopsRunawayLoops(t *testing.T) {
	store := testutil.NewStore()
	engine := newTestEngine(store, Options{MaxStepVisits: 5})
	wf := &domain.Workflow{ID: "wf", Steps: []domain.WorkflowStep{
		{Kind: domain.StepKindScript, Name: "loop", Config: json.RawMessage(`{"script":"1"}`), OnSuccess: "loop"},
	}}

	exec, err := engine.Execute(context.Background(), wf, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionFailed, exec.Status)
	assert.Contains(t, *exec.ErrorMessage, "step limit")
	assert.Len(t, store.StepResults(exec.ID), 5)
}

func TestExecuteDelayHonoursCancellation(t *testing.T) {
	store := testutil.NewStore()
	engine := newTestEngine(store, Options{})
	wf := &domain.Workflow{ID: "wf", Steps: []domain.WorkflowStep{
		step(domain.StepKindDelay, "wait", `{"durationMs":60000}`),
	}}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	exec, err := engine.Execute(ctx, wf, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionFailed, exec.Status)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestExecuteDelayIsCapped(t *testing.T) {
	store := testutil.NewStore()
	engine := newTestEngine(store, Options{MaxDelay: 10 * time.Millisecond})
	wf := &domain.Workflow{ID: "wf", Steps: []domain.WorkflowStep{
		step(domain.StepKindDelay, "wait", `{"durationMs":60000}`),
	}}

	exec, err := engine.Execute(context.Background(), wf, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionCompleted, exec.Status)
}

func TestApprovalWithoutTicketTakesFailureJump(t *testing.T) {
	store := testutil.NewStore()
	approver := &recordingApprover{}
	engine := newTestEngine(store, Options{Approver: approver})
	wf := &domain.Workflow{ID: "wf", Steps: []domain.WorkflowStep{
		{Kind: domain.StepKindApproval, Name: "confirm", OnFailure: "notify"},
		step(domain.StepKindScript, "notify", `{"script":"'manual'"}`),
	}}

	exec, err := engine.Execute(context.Background(), wf, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionCompleted, exec.Status)
	assert.Equal(t, "manual", exec.OutputData["notify"])
	assert.Empty(t, approver.requests)
}

func TestAutoApproveSucceedsImmediately(t *testing.T) {
	store := testutil.NewStore()
	engine := newTestEngine(store, Options{})
	wf := &domain.Workflow{ID: "wf", Steps: []domain.WorkflowStep{
		step(domain.StepKindApproval, "confirm", `{"autoApprove":true}`),
	}}

	exec, err := engine.Execute(context.Background(), wf, nil, strPtr("ticket-1"), nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionCompleted, exec.Status)
	assert.Equal(t, "system", exec.OutputData["approvedBy"])
}

func TestApprovalSuspendsAndResumeContinues(t *testing.T) {
	store := testutil.NewStore()
	approver := &recordingApprover{}
	engine := newTestEngine(store, Options{Approver: approver})
	wf := &domain.Workflow{ID: "wf", Steps: []domain.WorkflowStep{
		step(domain.StepKindScript, "prepare", `{"script":"'prepared'"}`),
		step(domain.StepKindApproval, "confirm", `{"title":"Reset password?","expiresInHours":2}`),
		step(domain.StepKindLDAPQuery, "reset", `{"action":"password_reset"}`),
	}}

	ticketID := "ticket-1"
	exec, err := engine.Execute(context.Background(), wf, map[string]any{"requesterEmail": "ana@example.com"}, &ticketID, nil)
	require.NoError(t, err)

	assert.Equal(t, domain.ExecutionPending, exec.Status)
	assert.Equal(t, 1, exec.CurrentStep)
	assert.Nil(t, exec.CompletedAt)
	assert.Equal(t, true, exec.OutputData["approvalPending"])
	assert.Equal(t, "approval-1", exec.OutputData["approvalId"])

	require.Len(t, approver.requests, 1)
	req := approver.requests[0]
	assert.Equal(t, "Reset password?", req.Title)
	assert.Equal(t, 2*time.Hour, req.ExpiresIn)
	assert.Equal(t, 1, req.StepIndex)
	assert.Equal(t, "prepared", req.Input["prepare"])

	input := map[string]any{}
	for k, v := range req.Input {
		input[k] = v
	}
	input["approved"] = true

	resumed, err := engine.Resume(context.Background(), wf, exec, req.StepIndex, input)
	require.NoError(t, err)

	assert.Equal(t, domain.ExecutionCompleted, resumed.Status)
	assert.Equal(t, true, resumed.OutputData["passwordReset"])
	assert.Equal(t, "Password reset email sent to ana@example.com", resumed.OutputData["message"])
	assert.Equal(t, "employee", resumed.OutputData["approvedBy"])

	results := store.StepResults(exec.ID)
	require.Len(t, results, 4)
	assert.Equal(t, "prepare", results[0].StepName)
	assert.Equal(t, "confirm", results[1].StepName)
	assert.Equal(t, "confirm", results[2].StepName)
	assert.True(t, results[2].Success)
	assert.Equal(t, "reset", results[3].StepName)
}

func TestResumeRejectsNonPendingExecution(t *testing.T) {
	store := testutil.NewStore()
	engine := newTestEngine(store, Options{})
	wf := &domain.Workflow{ID: "wf", Steps: []domain.WorkflowStep{step(domain.StepKindScript, "a", `{"script":"1"}`)}}

	exec, err := engine.Execute(context.Background(), wf, nil, nil, nil)
	require.NoError(t, err)

	_, err = engine.Resume(context.Background(), wf, exec, 0, nil)
	require.ErrorIs(t, err, ErrNotPending)
}

func TestApprovalRequestErrorFailsStep(t *testing.T) {
	store := testutil.NewStore()
	engine := newTestEngine(store, Options{Approver: &recordingApprover{err: errors.New("db down")}})
	wf := &domain.Workflow{ID: "wf", Steps: []domain.WorkflowStep{step(domain.StepKindApproval, "confirm", "")}}

	exec, err := engine.Execute(context.Background(), wf, nil, strPtr("ticket-1"), nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionFailed, exec.Status)
	assert.Contains(t, *exec.ErrorMessage, "db down")
}

func TestApprovalOpensOnlyAfterExecutionIsPending(t *testing.T) {
	store := testutil.NewStore()
	approver := &recordingApprover{}
	engine := newTestEngine(store, Options{Approver: approver})
	wf := &domain.Workflow{ID: "wf", Steps: []domain.WorkflowStep{
		step(domain.StepKindApproval, "confirm", ""),
		step(domain.StepKindScript, "after", `{"script":"'done'"}`),
	}}

	var seen domain.ExecutionStatus
	approver.onOpen = func(ctx context.Context) {
		executions := store.Executions()
		require.Len(t, executions, 1)
		seen = executions[0].Status
	}

	exec, err := engine.Execute(context.Background(), wf, nil, strPtr("ticket-1"), nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionPending, exec.Status)
	assert.Equal(t, domain.ExecutionPending, seen)
	assert.Equal(t, 1, approver.opened)
}

func TestApprovalOpenErrorFailsExecution(t *testing.T) {
	store := testutil.NewStore()
	engine := newTestEngine(store, Options{Approver: &recordingApprover{openErr: errors.New("insert failed")}})
	wf := &domain.Workflow{ID: "wf", Steps: []domain.WorkflowStep{step(domain.StepKindApproval, "confirm", "")}}

	exec, err := engine.Execute(context.Background(), wf, nil, strPtr("ticket-1"), nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionFailed, exec.Status)
	assert.Equal(t, "request approval: insert failed", *exec.ErrorMessage)
	assert.Equal(t, false, exec.OutputData["approvalPending"])
	assert.NotContains(t, exec.OutputData, "approvalId")

	stored := store.Executions()
	require.Len(t, stored, 1)
	assert.Equal(t, domain.ExecutionFailed, stored[0].Status)
}
