package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// TicketEventRepository reads the append-only ticket audit log.
// Events are written by TicketRepository inside the mutation transaction.
type TicketEventRepository interface {
	ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketEvent, error)
}

type ticketEventRepository struct {
	pool *pgxpool.Pool
}

// NewTicketEventRepository builds repository.
func NewTicketEventRepository(pool *pgxpool.Pool) TicketEventRepository {
	return &ticketEventRepository{pool: pool}
}

func insertTicketEvent(ctx context.Context, q querier, event *domain.TicketEvent) error {
	const query = `
        INSERT INTO ticket_events (ticket_id, action, old_value, new_value, performed_by)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at`
	if err := q.QueryRow(ctx, query,
		event.TicketID,
		event.Action,
		event.OldValue,
		event.NewValue,
		event.PerformedBy,
	).Scan(&event.ID, &event.CreatedAt); err != nil {
		return fmt.Errorf("insert ticket event: %w", err)
	}
	return nil
}

func (r *ticketEventRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketEvent, error) {
	const query = `
        SELECT id, ticket_id, action, old_value, new_value, performed_by, created_at
        FROM ticket_events WHERE ticket_id=$1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketEvent
	for rows.Next() {
		var event domain.TicketEvent
		if err := rows.Scan(
			&event.ID,
			&event.TicketID,
			&event.Action,
			&event.OldValue,
			&event.NewValue,
			&event.PerformedBy,
			&event.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, event)
	}
	return result, rows.Err()
}
