package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// TeamRepository provides read access to routing teams.
type TeamRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Team, error)
	FindUrgentTeam(ctx context.Context) (*domain.Team, error)
}

type teamRepository struct {
	pool *pgxpool.Pool
}

// NewTeamRepository creates repository.
func NewTeamRepository(pool *pgxpool.Pool) TeamRepository {
	return &teamRepository{pool: pool}
}

func (r *teamRepository) GetByID(ctx context.Context, id string) (*domain.Team, error) {
	const query = `SELECT id, name, description, created_at, updated_at FROM teams WHERE id=$1`
	var team domain.Team
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&team.ID,
		&team.Name,
		&team.Description,
		&team.CreatedAt,
		&team.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &team, nil
}

// FindUrgentTeam returns the oldest team whose name marks it as an urgent or critical queue,
// or nil when there is none.
func (r *teamRepository) FindUrgentTeam(ctx context.Context) (*domain.Team, error) {
	const query = `
        SELECT id, name, description, created_at, updated_at FROM teams
        WHERE name ILIKE '%urgent%' OR name ILIKE '%critical%'
        ORDER BY created_at ASC LIMIT 1`
	var team domain.Team
	if err := r.pool.QueryRow(ctx, query).Scan(
		&team.ID,
		&team.Name,
		&team.Description,
		&team.CreatedAt,
		&team.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &team, nil
}
