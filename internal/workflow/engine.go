package workflow

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
)

// ErrNotPending is returned when resuming an execution that is not suspended.
var ErrNotPending = errors.New("workflow: execution is not pending")

// PendingApproval describes the approval an approval step asks for.
type PendingApproval struct {
	TicketID    string
	WorkflowID  string
	ExecutionID string
	StepIndex   int
	Title       string
	Body        string
	Input       map[string]any
	ExpiresIn   time.Duration
}

// PreparedApproval is an approval request that does not exist until Open succeeds.
// Open stores the request and delivers it to the approver.
type PreparedApproval struct {
	ID   string
	Open func(ctx context.Context) error
}

// Approver prepares approval requests on behalf of suspending executions. The engine
// opens a prepared request only after the execution is stored as pending, so a decision
// can never reach an execution that is still running.
type Approver interface {
	PrepareApproval(ctx context.Context, req PendingApproval) (*PreparedApproval, error)
}

// Options tunes the engine.
type Options struct {
	HTTPClient        *http.Client
	Directory         Directory
	Approver          Approver
	Logger            *zap.Logger
	DefaultAPITimeout time.Duration
	MaxAPITimeout     time.Duration
	MaxDelay          time.Duration
	MaxStepVisits     int
}

// Engine runs workflow steps and persists their audit trail.
type Engine struct {
	executions    repository.WorkflowExecutionRepository
	http          *http.Client
	directory     Directory
	approver      Approver
	logger        *zap.Logger
	apiTimeout    time.Duration
	maxAPITimeout time.Duration
	maxDelay      time.Duration
	maxVisits     int
}

// NewEngine builds an engine backed by the given execution store.
func NewEngine(executions repository.WorkflowExecutionRepository, opts Options) *Engine {
	e := &Engine{
		executions:    executions,
		http:          opts.HTTPClient,
		directory:     opts.Directory,
		approver:      opts.Approver,
		logger:        opts.Logger,
		apiTimeout:    opts.DefaultAPITimeout,
		maxAPITimeout: opts.MaxAPITimeout,
		maxDelay:      opts.MaxDelay,
		maxVisits:     opts.MaxStepVisits,
	}
	if e.http == nil {
		e.http = &http.Client{}
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.directory == nil {
		e.directory = SimulatedDirectory{Logger: e.logger}
	}
	if e.apiTimeout <= 0 {
		e.apiTimeout = 10 * time.Second
	}
	if e.maxVisits <= 0 {
		e.maxVisits = 100
	}
	return e
}

// Execute starts a new execution of wf with the given input context.
func (e *Engine) Execute(ctx context.Context, wf *domain.Workflow, input map[string]any, ticketID, sessionID *string) (*domain.WorkflowExecution, error) {
	execution := &domain.WorkflowExecution{
		WorkflowID: wf.ID,
		TicketID:   ticketID,
		SessionID:  sessionID,
		Status:     domain.ExecutionRunning,
		InputData:  cloneMap(input),
	}
	if err := e.executions.Create(ctx, execution); err != nil {
		return nil, fmt.Errorf("create execution: %w", err)
	}
	e.logger.Info("workflow execution started",
		zap.String("workflow_id", wf.ID),
		zap.String("execution_id", execution.ID),
	)
	return e.run(ctx, wf, execution, 0, cloneMap(input), map[string]any{}), nil
}

// Resume continues a pending execution from the step that suspended it.
// input replaces the execution's context; callers pass the approval snapshot with the decision.
func (e *Engine) Resume(ctx context.Context, wf *domain.Workflow, execution *domain.WorkflowExecution, fromStep int, input map[string]any) (*domain.WorkflowExecution, error) {
	if execution.Status != domain.ExecutionPending {
		return nil, ErrNotPending
	}
	if fromStep < 0 || fromStep >= len(wf.Steps) {
		return nil, fmt.Errorf("resume step %d out of range", fromStep)
	}
	if err := e.executions.MarkRunning(ctx, execution.ID); err != nil {
		return nil, fmt.Errorf("mark execution running: %w", err)
	}
	execution.Status = domain.ExecutionRunning
	execution.ErrorMessage = nil

	output := cloneMap(execution.OutputData)
	if output == nil {
		output = map[string]any{}
	}
	e.logger.Info("workflow execution resumed",
		zap.String("workflow_id", wf.ID),
		zap.String("execution_id", execution.ID),
		zap.Int("step", fromStep),
	)
	return e.run(ctx, wf, execution, fromStep, cloneMap(input), output), nil
}

func (e *Engine) run(ctx context.Context, wf *domain.Workflow, execution *domain.WorkflowExecution, start int, input, output map[string]any) *domain.WorkflowExecution {
	index := start
	visits := 0
	for index < len(wf.Steps) {
		visits++
		if visits > e.maxVisits {
			return e.finish(ctx, execution, domain.ExecutionFailed, output, fmt.Sprintf("step limit of %d exceeded", e.maxVisits))
		}

		step := wf.Steps[index]
		execution.CurrentStep = index
		if err := e.executions.SetCurrentStep(ctx, execution.ID, index); err != nil {
			e.logger.Warn("persist current step failed", zap.String("execution_id", execution.ID), zap.Error(err))
		}

		data := merge(input, output)
		result := e.runStep(ctx, wf, execution, index, step, data)
		e.recordStep(ctx, execution, index, step, data, result)

		if result.pending {
			for key, value := range result.output {
				output[key] = value
			}
			return e.suspend(ctx, execution, output, result.open)
		}

		if !result.success {
			if step.OnFailure == "" {
				return e.finish(ctx, execution, domain.ExecutionFailed, output, firstNonEmpty(result.err, "step failed"))
			}
			next, ok := stepIndex(wf, step.OnFailure)
			if !ok {
				return e.finish(ctx, execution, domain.ExecutionFailed, output, "unknown step: "+step.OnFailure)
			}
			index = next
			continue
		}

		for key, value := range result.output {
			output[key] = value
		}

		jump := result.next
		if jump == "" {
			jump = step.OnSuccess
		}
		if jump == "" {
			index++
			continue
		}
		next, ok := stepIndex(wf, jump)
		if !ok {
			return e.finish(ctx, execution, domain.ExecutionFailed, output, "unknown step: "+jump)
		}
		index = next
	}
	return e.finish(ctx, execution, domain.ExecutionCompleted, output, "")
}

func (e *Engine) runStep(ctx context.Context, wf *domain.Workflow, execution *domain.WorkflowExecution, index int, step domain.WorkflowStep, data map[string]any) (result outcome) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("workflow step panicked", zap.String("step", step.Name), zap.Any("panic", r))
			result = failed("step panicked: %v", r)
		}
	}()

	runner, err := compileStep(step)
	if err != nil {
		return failed("%v", err)
	}
	return runner.run(ctx, e, &stepEnv{
		workflow:  wf,
		execution: execution,
		index:     index,
		step:      step,
		data:      data,
	})
}

func (e *Engine) recordStep(ctx context.Context, execution *domain.WorkflowExecution, index int, step domain.WorkflowStep, data map[string]any, result outcome) {
	record := &domain.WorkflowStepResult{
		ExecutionID: execution.ID,
		StepIndex:   index,
		StepKind:    step.Kind,
		StepName:    step.Name,
		Success:     result.success,
		InputData:   data,
		OutputData:  result.output,
	}
	if result.err != "" {
		msg := result.err
		record.ErrorMessage = &msg
	}
	if err := e.executions.AppendStepResult(ctx, record); err != nil {
		e.logger.Warn("record step result failed",
			zap.String("execution_id", execution.ID),
			zap.Int("step", index),
			zap.Error(err),
		)
	}
}

// suspend stores the execution as pending and only then opens the approval it waits on.
// If either write fails the execution fails instead, leaving nothing to decide.
func (e *Engine) suspend(ctx context.Context, execution *domain.WorkflowExecution, output map[string]any, open func(context.Context) error) *domain.WorkflowExecution {
	if err := e.settle(ctx, execution, domain.ExecutionPending, output, ""); err != nil {
		return e.finish(ctx, execution, domain.ExecutionFailed, withoutApproval(output), "suspend execution: "+err.Error())
	}
	if open == nil {
		return execution
	}
	if err := open(ctx); err != nil {
		return e.finish(ctx, execution, domain.ExecutionFailed, withoutApproval(output), "request approval: "+err.Error())
	}
	return execution
}

func withoutApproval(output map[string]any) map[string]any {
	out := cloneMap(output)
	if out == nil {
		out = map[string]any{}
	}
	delete(out, "approvalId")
	out["approvalPending"] = false
	return out
}

func (e *Engine) finish(ctx context.Context, execution *domain.WorkflowExecution, status domain.ExecutionStatus, output map[string]any, errMessage string) *domain.WorkflowExecution {
	_ = e.settle(ctx, execution, status, output, errMessage)
	return execution
}

func (e *Engine) settle(ctx context.Context, execution *domain.WorkflowExecution, status domain.ExecutionStatus, output map[string]any, errMessage string) error {
	execution.Status = status
	execution.OutputData = output
	execution.ErrorMessage = nil
	if errMessage != "" {
		execution.ErrorMessage = &errMessage
	}
	if status == domain.ExecutionCompleted || status == domain.ExecutionFailed {
		now := time.Now().UTC()
		execution.CompletedAt = &now
	}

	persistErr := e.executions.Finish(ctx, execution.ID, status, output, execution.ErrorMessage)
	if persistErr != nil {
		e.logger.Error("persist execution outcome failed", zap.String("execution_id", execution.ID), zap.Error(persistErr))
	}

	fields := []zap.Field{
		zap.String("execution_id", execution.ID),
		zap.String("status", string(status)),
		zap.Int("step", execution.CurrentStep),
	}
	if errMessage != "" {
		fields = append(fields, zap.String("error", errMessage))
	}
	e.logger.Info("workflow execution finished", fields...)
	return persistErr
}

func stepIndex(wf *domain.Workflow, name string) (int, bool) {
	for i, step := range wf.Steps {
		if step.Name == name {
			return i, true
		}
	}
	return 0, false
}

func merge(base, overlay map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(overlay))
	for key, value := range base {
		out[key] = value
	}
	for key, value := range overlay {
		out[key] = value
	}
	return out
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
