package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// NotificationRepository writes in-app notifications.
type NotificationRepository interface {
	Create(ctx context.Context, notification *domain.Notification) error
	// BulkCreate inserts one copy of template per user id in a single statement.
	BulkCreate(ctx context.Context, userIDs []string, template domain.Notification) (int64, error)
}

type notificationRepository struct {
	pool *pgxpool.Pool
}

// NewNotificationRepository creates repository.
func NewNotificationRepository(pool *pgxpool.Pool) NotificationRepository {
	return &notificationRepository{pool: pool}
}

func (r *notificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	const query = `
        INSERT INTO notifications (user_id, ticket_id, type, title, body)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query, n.UserID, n.TicketID, n.Type, n.Title, n.Body).Scan(&n.ID, &n.CreatedAt)
}

func (r *notificationRepository) BulkCreate(ctx context.Context, userIDs []string, template domain.Notification) (int64, error) {
	if len(userIDs) == 0 {
		return 0, nil
	}
	const query = `
        INSERT INTO notifications (user_id, ticket_id, type, title, body)
        SELECT uid::uuid, $2::uuid, $3::text, $4::text, $5::text FROM unnest($1::text[]) AS uid`
	cmd, err := r.pool.Exec(ctx, query, userIDs, template.TicketID, template.Type, template.Title, template.Body)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
