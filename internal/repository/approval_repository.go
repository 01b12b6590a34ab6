package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// ApprovalRepository persists approval requests.
type ApprovalRepository interface {
	Create(ctx context.Context, request *domain.ApprovalRequest) error
	GetByID(ctx context.Context, id string) (*domain.ApprovalRequest, error)
	GetByTokenHash(ctx context.Context, tokenHash string) (*domain.ApprovalRequest, error)
	ListPendingForTicket(ctx context.Context, ticketID string) ([]domain.ApprovalRequest, error)
	// Decide moves a pending, unexpired request to status. It returns pgx.ErrNoRows when
	// the request is missing, already decided or expired.
	Decide(ctx context.Context, id string, status domain.ApprovalStatus, now time.Time) (*domain.ApprovalRequest, error)
	ExpirePending(ctx context.Context, now time.Time) ([]domain.ApprovalRequest, error)
}

const approvalColumns = `id, ticket_id, workflow_id, execution_id, step_index, requested_by, status,
               action_title, action_body, input_data, token_hash, expires_at, decided_at,
               created_at, updated_at`

type approvalRepository struct {
	pool *pgxpool.Pool
}

// NewApprovalRepository creates repository.
func NewApprovalRepository(pool *pgxpool.Pool) ApprovalRepository {
	return &approvalRepository{pool: pool}
}

func (r *approvalRepository) Create(ctx context.Context, request *domain.ApprovalRequest) error {
	const query = `
        INSERT INTO approval_requests (id, ticket_id, workflow_id, execution_id, step_index, requested_by, status,
            action_title, action_body, input_data, token_hash, expires_at)
        VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()),$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
        RETURNING id, created_at, updated_at`
	input := request.InputData
	if input == nil {
		input = map[string]any{}
	}
	return r.pool.QueryRow(ctx, query,
		request.ID,
		request.TicketID,
		request.WorkflowID,
		request.ExecutionID,
		request.StepIndex,
		request.RequestedBy,
		request.Status,
		request.ActionTitle,
		request.ActionBody,
		input,
		request.TokenHash,
		request.ExpiresAt,
	).Scan(&request.ID, &request.CreatedAt, &request.UpdatedAt)
}

func (r *approvalRepository) GetByID(ctx context.Context, id string) (*domain.ApprovalRequest, error) {
	return scanApproval(r.pool.QueryRow(ctx, `SELECT `+approvalColumns+` FROM approval_requests WHERE id=$1`, id))
}

func (r *approvalRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.ApprovalRequest, error) {
	return scanApproval(r.pool.QueryRow(ctx, `SELECT `+approvalColumns+` FROM approval_requests WHERE token_hash=$1`, tokenHash))
}

func (r *approvalRepository) ListPendingForTicket(ctx context.Context, ticketID string) ([]domain.ApprovalRequest, error) {
	query := `SELECT ` + approvalColumns + ` FROM approval_requests
        WHERE ticket_id=$1 AND status='pending' ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanApprovals(rows)
}

func (r *approvalRepository) Decide(ctx context.Context, id string, status domain.ApprovalStatus, now time.Time) (*domain.ApprovalRequest, error) {
	query := `
        UPDATE approval_requests SET status=$1, decided_at=$2, updated_at=$2
        WHERE id=$3 AND status='pending' AND (expires_at IS NULL OR expires_at > $2)
        RETURNING ` + approvalColumns
	return scanApproval(r.pool.QueryRow(ctx, query, status, now, id))
}

func (r *approvalRepository) ExpirePending(ctx context.Context, now time.Time) ([]domain.ApprovalRequest, error) {
	query := `
        UPDATE approval_requests SET status='expired', decided_at=$1, updated_at=$1
        WHERE status='pending' AND expires_at IS NOT NULL AND expires_at <= $1
        RETURNING ` + approvalColumns
	rows, err := r.pool.Query(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanApprovals(rows)
}

func scanApproval(row pgx.Row) (*domain.ApprovalRequest, error) {
	var req domain.ApprovalRequest
	if err := row.Scan(
		&req.ID,
		&req.TicketID,
		&req.WorkflowID,
		&req.ExecutionID,
		&req.StepIndex,
		&req.RequestedBy,
		&req.Status,
		&req.ActionTitle,
		&req.ActionBody,
		&req.InputData,
		&req.TokenHash,
		&req.ExpiresAt,
		&req.DecidedAt,
		&req.CreatedAt,
		&req.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &req, nil
}

func scanApprovals(rows pgx.Rows) ([]domain.ApprovalRequest, error) {
	var result []domain.ApprovalRequest
	for rows.Next() {
		req, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *req)
	}
	return result, rows.Err()
}
