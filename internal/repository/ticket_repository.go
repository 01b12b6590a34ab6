package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// TicketMutation changes a locked ticket in memory and returns the audit event to persist with it.
type TicketMutation func(ticket *domain.Ticket) (*domain.TicketEvent, error)

// ClassificationUpdate carries the fields written after classification.
type ClassificationUpdate struct {
	Category   *string
	Confidence *float64
	Priority   *domain.TicketPriority
	Deadlines  *domain.SLADeadlines
	AIMetadata map[string]any
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket, event *domain.TicketEvent) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	Mutate(ctx context.Context, id string, mutate TicketMutation) (*domain.Ticket, error)
	ApplyClassification(ctx context.Context, id string, update ClassificationUpdate) (*domain.Ticket, error)
	UpdatePriority(ctx context.Context, id string, priority domain.TicketPriority, due domain.SLADeadlines) (*domain.Ticket, error)
	ClaimFirstResponseBreaches(ctx context.Context, now time.Time, limit int) ([]domain.Ticket, error)
	ClaimResolutionBreaches(ctx context.Context, now time.Time, limit int) ([]domain.Ticket, error)
}

const ticketColumns = `id, title, description, requester_id, category, priority, status,
               assigned_team_id, assigned_agent_id, ai_confidence,
               sla_first_response_due_at, sla_resolution_due_at,
               first_response_at, resolved_at, closed_at,
               source_type, source_reference, integration_metadata,
               version, created_at, updated_at`

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket, event *domain.TicketEvent) error {
	const query = `
        INSERT INTO tickets (title, description, requester_id, category, priority, status,
            sla_first_response_due_at, sla_resolution_due_at, source_type, source_reference,
            integration_metadata, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$12)
        RETURNING id, version, created_at, updated_at`

	metadata := ticket.IntegrationMetadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, query,
			ticket.Title,
			ticket.Description,
			ticket.RequesterID,
			ticket.Category,
			ticket.Priority,
			ticket.Status,
			ticket.FirstResponseDueAt,
			ticket.ResolutionDueAt,
			ticket.SourceType,
			ticket.SourceReference,
			metadata,
			ticket.CreatedAt,
		).Scan(&ticket.ID, &ticket.Version, &ticket.CreatedAt, &ticket.UpdatedAt); err != nil {
			return fmt.Errorf("insert ticket: %w", err)
		}
		if event == nil {
			return nil
		}
		event.TicketID = ticket.ID
		return insertTicketEvent(ctx, tx, event)
	})
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	return scanTicket(r.pool.QueryRow(ctx, query, id))
}

func (r *ticketRepository) Mutate(ctx context.Context, id string, mutate TicketMutation) (*domain.Ticket, error) {
	const update = `
        UPDATE tickets SET status=$1, assigned_team_id=$2, assigned_agent_id=$3,
            first_response_at=COALESCE(first_response_at, $4),
            resolved_at=COALESCE(resolved_at, $5),
            closed_at=COALESCE(closed_at, $6),
            version=version+1, updated_at=NOW()
        WHERE id=$7 AND version=$8
        RETURNING version, updated_at`

	var result *domain.Ticket
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		ticket, err := scanTicket(tx.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id=$1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		event, err := mutate(ticket)
		if err != nil {
			return err
		}
		if err := tx.QueryRow(ctx, update,
			ticket.Status,
			ticket.AssignedTeamID,
			ticket.AssignedAgentID,
			ticket.FirstResponseAt,
			ticket.ResolvedAt,
			ticket.ClosedAt,
			ticket.ID,
			ticket.Version,
		).Scan(&ticket.Version, &ticket.UpdatedAt); err != nil {
			return fmt.Errorf("update ticket: %w", err)
		}
		if event != nil {
			event.TicketID = ticket.ID
			if err := insertTicketEvent(ctx, tx, event); err != nil {
				return err
			}
		}
		result = ticket
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *ticketRepository) ApplyClassification(ctx context.Context, id string, update ClassificationUpdate) (*domain.Ticket, error) {
	sets := []string{"version=version+1", "updated_at=NOW()"}
	args := []any{}

	if update.Category != nil {
		args = append(args, *update.Category)
		sets = append(sets, fmt.Sprintf("category=COALESCE(category, $%d)", len(args)))
	}
	if update.Confidence != nil {
		args = append(args, *update.Confidence)
		sets = append(sets, fmt.Sprintf("ai_confidence=$%d", len(args)))
	}
	if update.Priority != nil && update.Deadlines != nil {
		args = append(args, *update.Priority)
		sets = append(sets, fmt.Sprintf("priority=$%d", len(args)))
		args = append(args, update.Deadlines.FirstResponseDue)
		sets = append(sets, fmt.Sprintf("sla_first_response_due_at=$%d", len(args)))
		args = append(args, update.Deadlines.ResolutionDue)
		sets = append(sets, fmt.Sprintf("sla_resolution_due_at=$%d", len(args)))
	}
	if len(update.AIMetadata) > 0 {
		args = append(args, update.AIMetadata)
		sets = append(sets, fmt.Sprintf("integration_metadata=integration_metadata || jsonb_build_object('ai', $%d::jsonb)", len(args)))
	}

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE tickets SET %s WHERE id=$%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), ticketColumns)
	return scanTicket(r.pool.QueryRow(ctx, query, args...))
}

func (r *ticketRepository) UpdatePriority(ctx context.Context, id string, priority domain.TicketPriority, due domain.SLADeadlines) (*domain.Ticket, error) {
	query := `
        UPDATE tickets SET priority=$1, sla_first_response_due_at=$2, sla_resolution_due_at=$3,
            version=version+1, updated_at=NOW()
        WHERE id=$4
        RETURNING ` + ticketColumns
	return scanTicket(r.pool.QueryRow(ctx, query, priority, due.FirstResponseDue, due.ResolutionDue, id))
}

func (r *ticketRepository) ClaimFirstResponseBreaches(ctx context.Context, now time.Time, limit int) ([]domain.Ticket, error) {
	query := `
        UPDATE tickets SET first_response_breach_alerted_at=$1
        WHERE id IN (
            SELECT id FROM tickets
            WHERE status='OPEN' AND first_response_at IS NULL
              AND sla_first_response_due_at < $1 AND first_response_breach_alerted_at IS NULL
            ORDER BY sla_first_response_due_at ASC
            LIMIT $2
            FOR UPDATE SKIP LOCKED)
        RETURNING ` + ticketColumns
	return r.claim(ctx, query, now, limit)
}

func (r *ticketRepository) ClaimResolutionBreaches(ctx context.Context, now time.Time, limit int) ([]domain.Ticket, error) {
	query := `
        UPDATE tickets SET resolution_breach_alerted_at=$1
        WHERE id IN (
            SELECT id FROM tickets
            WHERE status IN ('OPEN','IN_PROGRESS') AND resolved_at IS NULL
              AND sla_resolution_due_at < $1 AND resolution_breach_alerted_at IS NULL
            ORDER BY sla_resolution_due_at ASC
            LIMIT $2
            FOR UPDATE SKIP LOCKED)
        RETURNING ` + ticketColumns
	return r.claim(ctx, query, now, limit)
}

func (r *ticketRepository) claim(ctx context.Context, query string, now time.Time, limit int) ([]domain.Ticket, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.Title,
		&ticket.Description,
		&ticket.RequesterID,
		&ticket.Category,
		&ticket.Priority,
		&ticket.Status,
		&ticket.AssignedTeamID,
		&ticket.AssignedAgentID,
		&ticket.AIConfidence,
		&ticket.FirstResponseDueAt,
		&ticket.ResolutionDueAt,
		&ticket.FirstResponseAt,
		&ticket.ResolvedAt,
		&ticket.ClosedAt,
		&ticket.SourceType,
		&ticket.SourceReference,
		&ticket.IntegrationMetadata,
		&ticket.Version,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}
