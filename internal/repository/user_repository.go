package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// UserRepository defines persistence access for helpdesk users.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	FindFirstAdmin(ctx context.Context) (*domain.User, error)
	ListByIDs(ctx context.Context, ids []string) ([]domain.User, error)
	ListByTeams(ctx context.Context, teamIDs []string) ([]domain.User, error)
	ListByRoles(ctx context.Context, roles []domain.UserRole) ([]domain.User, error)
}

const userColumns = `id, name, email, phone, role, team_id, created_at, updated_at`

type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id))
}

func (r *userRepository) FindFirstAdmin(ctx context.Context) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE role='ADMIN' ORDER BY created_at ASC LIMIT 1`
	return scanUser(r.pool.QueryRow(ctx, query))
}

func (r *userRepository) ListByIDs(ctx context.Context, ids []string) ([]domain.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.list(ctx, `SELECT `+userColumns+` FROM users WHERE id::text = ANY($1)`, ids)
}

func (r *userRepository) ListByTeams(ctx context.Context, teamIDs []string) ([]domain.User, error) {
	if len(teamIDs) == 0 {
		return nil, nil
	}
	return r.list(ctx, `SELECT `+userColumns+` FROM users WHERE team_id::text = ANY($1)`, teamIDs)
}

func (r *userRepository) ListByRoles(ctx context.Context, roles []domain.UserRole) ([]domain.User, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	values := make([]string, len(roles))
	for i, role := range roles {
		values[i] = string(role)
	}
	return r.list(ctx, `SELECT `+userColumns+` FROM users WHERE role = ANY($1)`, values)
}

func (r *userRepository) list(ctx context.Context, query string, arg []string) ([]domain.User, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *user)
	}
	return result, rows.Err()
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var user domain.User
	if err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.Phone,
		&user.Role,
		&user.TeamID,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &user, nil
}
