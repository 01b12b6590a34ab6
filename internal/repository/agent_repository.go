package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AgentRepository answers skill and workload questions for routing.
// Workload is the live count of an agent's OPEN and IN_PROGRESS tickets.
type AgentRepository interface {
	FindBestAgentForCategory(ctx context.Context, category string, teamID *string, maxWorkload int) (*string, error)
	FindLeastLoadedAgent(ctx context.Context) (*string, error)
	Workload(ctx context.Context, agentID string) (int, error)
}

const workloadLateral = `
        LEFT JOIN LATERAL (
            SELECT COUNT(*) AS workload FROM tickets t
            WHERE t.assigned_agent_id = u.id AND t.status IN ('OPEN','IN_PROGRESS')
        ) w ON TRUE`

type agentRepository struct {
	pool *pgxpool.Pool
}

// NewAgentRepository creates repository.
func NewAgentRepository(pool *pgxpool.Pool) AgentRepository {
	return &agentRepository{pool: pool}
}

func (r *agentRepository) FindBestAgentForCategory(ctx context.Context, category string, teamID *string, maxWorkload int) (*string, error) {
	query := `
        SELECT u.id FROM users u
        JOIN agent_skills s ON s.agent_id = u.id AND s.category = $1` + workloadLateral + `
        WHERE u.role IN ('AGENT','ADMIN')
          AND ($2::uuid IS NULL OR u.team_id = $2::uuid)
          AND w.workload <= $3
        ORDER BY s.skill_level DESC, w.workload ASC, u.created_at ASC
        LIMIT 1`
	return r.optionalID(ctx, query, category, teamID, maxWorkload)
}

func (r *agentRepository) FindLeastLoadedAgent(ctx context.Context) (*string, error) {
	query := `
        SELECT u.id FROM users u` + workloadLateral + `
        WHERE u.role IN ('AGENT','ADMIN')
        ORDER BY w.workload ASC, u.created_at ASC
        LIMIT 1`
	return r.optionalID(ctx, query)
}

func (r *agentRepository) Workload(ctx context.Context, agentID string) (int, error) {
	const query = `SELECT COUNT(*) FROM tickets WHERE assigned_agent_id=$1 AND status IN ('OPEN','IN_PROGRESS')`
	var count int
	if err := r.pool.QueryRow(ctx, query, agentID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *agentRepository) optionalID(ctx context.Context, query string, args ...any) (*string, error) {
	var id string
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &id, nil
}
