package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// WorkflowRepository stores workflow definitions.
type WorkflowRepository interface {
	ListEnabled(ctx context.Context) ([]domain.Workflow, error)
	GetByID(ctx context.Context, id string) (*domain.Workflow, error)
	CreateIfAbsent(ctx context.Context, workflow *domain.Workflow) (bool, error)
}

// WorkflowExecutionRepository stores executions and their step audit trail.
type WorkflowExecutionRepository interface {
	Create(ctx context.Context, execution *domain.WorkflowExecution) error
	GetByID(ctx context.Context, id string) (*domain.WorkflowExecution, error)
	MarkRunning(ctx context.Context, id string) error
	SetCurrentStep(ctx context.Context, id string, step int) error
	AppendStepResult(ctx context.Context, result *domain.WorkflowStepResult) error
	Finish(ctx context.Context, id string, status domain.ExecutionStatus, output map[string]any, errMessage *string) error
}

const workflowColumns = `id, name, description, enabled, priority, intent_filter, category_filter, keyword_filter,
               steps, auto_resolve, create_ticket, created_at, updated_at`

type workflowRepository struct {
	pool *pgxpool.Pool
}

// NewWorkflowRepository creates repository.
func NewWorkflowRepository(pool *pgxpool.Pool) WorkflowRepository {
	return &workflowRepository{pool: pool}
}

func (r *workflowRepository) ListEnabled(ctx context.Context) ([]domain.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE enabled = TRUE ORDER BY priority DESC, created_at ASC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Workflow
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *wf)
	}
	return result, rows.Err()
}

func (r *workflowRepository) GetByID(ctx context.Context, id string) (*domain.Workflow, error) {
	return scanWorkflow(r.pool.QueryRow(ctx, `SELECT `+workflowColumns+` FROM workflows WHERE id=$1`, id))
}

func (r *workflowRepository) CreateIfAbsent(ctx context.Context, workflow *domain.Workflow) (bool, error) {
	const query = `
        INSERT INTO workflows (name, description, enabled, priority, intent_filter, category_filter,
            keyword_filter, steps, auto_resolve, create_ticket)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        ON CONFLICT (name) DO NOTHING`
	steps, err := json.Marshal(workflow.Steps)
	if err != nil {
		return false, fmt.Errorf("encode steps: %w", err)
	}
	cmd, err := r.pool.Exec(ctx, query,
		workflow.Name,
		workflow.Description,
		workflow.Enabled,
		workflow.Priority,
		workflow.IntentFilter,
		workflow.CategoryFilter,
		workflow.KeywordFilter,
		string(steps),
		workflow.AutoResolve,
		workflow.CreateTicket,
	)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func scanWorkflow(row pgx.Row) (*domain.Workflow, error) {
	var wf domain.Workflow
	var steps []byte
	if err := row.Scan(
		&wf.ID,
		&wf.Name,
		&wf.Description,
		&wf.Enabled,
		&wf.Priority,
		&wf.IntentFilter,
		&wf.CategoryFilter,
		&wf.KeywordFilter,
		&steps,
		&wf.AutoResolve,
		&wf.CreateTicket,
		&wf.CreatedAt,
		&wf.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(steps) > 0 {
		if err := json.Unmarshal(steps, &wf.Steps); err != nil {
			return nil, fmt.Errorf("decode steps for workflow %s: %w", wf.ID, err)
		}
	}
	return &wf, nil
}

type workflowExecutionRepository struct {
	pool *pgxpool.Pool
}

// NewWorkflowExecutionRepository creates repository.
func NewWorkflowExecutionRepository(pool *pgxpool.Pool) WorkflowExecutionRepository {
	return &workflowExecutionRepository{pool: pool}
}

func (r *workflowExecutionRepository) Create(ctx context.Context, execution *domain.WorkflowExecution) error {
	const query = `
        INSERT INTO workflow_executions (workflow_id, ticket_id, session_id, status, current_step, input_data)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, started_at`
	input := execution.InputData
	if input == nil {
		input = map[string]any{}
	}
	return r.pool.QueryRow(ctx, query,
		execution.WorkflowID,
		execution.TicketID,
		execution.SessionID,
		execution.Status,
		execution.CurrentStep,
		input,
	).Scan(&execution.ID, &execution.StartedAt)
}

func (r *workflowExecutionRepository) GetByID(ctx context.Context, id string) (*domain.WorkflowExecution, error) {
	const query = `
        SELECT id, workflow_id, ticket_id, session_id, status, current_step, input_data, output_data,
               error_message, started_at, completed_at
        FROM workflow_executions WHERE id=$1`
	var exec domain.WorkflowExecution
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&exec.ID,
		&exec.WorkflowID,
		&exec.TicketID,
		&exec.SessionID,
		&exec.Status,
		&exec.CurrentStep,
		&exec.InputData,
		&exec.OutputData,
		&exec.ErrorMessage,
		&exec.StartedAt,
		&exec.CompletedAt,
	); err != nil {
		return nil, err
	}
	return &exec, nil
}

func (r *workflowExecutionRepository) MarkRunning(ctx context.Context, id string) error {
	return r.exec(ctx, `UPDATE workflow_executions SET status='running', error_message=NULL WHERE id=$1`, id)
}

func (r *workflowExecutionRepository) SetCurrentStep(ctx context.Context, id string, step int) error {
	return r.exec(ctx, `UPDATE workflow_executions SET current_step=$1 WHERE id=$2`, step, id)
}

func (r *workflowExecutionRepository) AppendStepResult(ctx context.Context, result *domain.WorkflowStepResult) error {
	const query = `
        INSERT INTO workflow_step_results (execution_id, step_index, step_kind, step_name, success,
            input_data, output_data, error_message)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		result.ExecutionID,
		result.StepIndex,
		result.StepKind,
		result.StepName,
		result.Success,
		result.InputData,
		result.OutputData,
		result.ErrorMessage,
	).Scan(&result.ID, &result.CreatedAt)
}

// Finish records the outcome. Pending executions keep completed_at empty.
func (r *workflowExecutionRepository) Finish(ctx context.Context, id string, status domain.ExecutionStatus, output map[string]any, errMessage *string) error {
	var completedAt *time.Time
	if status == domain.ExecutionCompleted || status == domain.ExecutionFailed {
		now := time.Now()
		completedAt = &now
	}
	const query = `
        UPDATE workflow_executions SET status=$1, output_data=$2, error_message=$3, completed_at=$4
        WHERE id=$5`
	return r.exec(ctx, query, status, output, errMessage, completedAt, id)
}

func (r *workflowExecutionRepository) exec(ctx context.Context, query string, args ...any) error {
	cmd, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
