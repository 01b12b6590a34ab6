package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// RoutingRuleRepository stores administrator routing rules.
type RoutingRuleRepository interface {
	ListEnabled(ctx context.Context) ([]domain.RoutingRule, error)
	CreateIfAbsent(ctx context.Context, rule *domain.RoutingRule) (bool, error)
}

// RoutingHistoryRepository appends routing decisions.
type RoutingHistoryRepository interface {
	Record(ctx context.Context, decision *domain.RoutingDecision) error
}

type routingRuleRepository struct {
	pool *pgxpool.Pool
}

// NewRoutingRuleRepository creates repository.
func NewRoutingRuleRepository(pool *pgxpool.Pool) RoutingRuleRepository {
	return &routingRuleRepository{pool: pool}
}

func (r *routingRuleRepository) ListEnabled(ctx context.Context) ([]domain.RoutingRule, error) {
	const query = `
        SELECT id, name, description, priority, enabled, category_filter, priority_filter, keyword_filter,
               assigned_team_id, assigned_agent_id, auto_priority, created_at, updated_at
        FROM routing_rules WHERE enabled = TRUE
        ORDER BY priority DESC, created_at ASC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.RoutingRule
	for rows.Next() {
		var rule domain.RoutingRule
		var priorities []string
		if err := rows.Scan(
			&rule.ID,
			&rule.Name,
			&rule.Description,
			&rule.Priority,
			&rule.Enabled,
			&rule.CategoryFilter,
			&priorities,
			&rule.KeywordFilter,
			&rule.AssignedTeamID,
			&rule.AssignedAgentID,
			&rule.AutoPriority,
			&rule.CreatedAt,
			&rule.UpdatedAt,
		); err != nil {
			return nil, err
		}
		rule.PriorityFilter = stringsToPriorities(priorities)
		result = append(result, rule)
	}
	return result, rows.Err()
}

// CreateIfAbsent inserts the rule unless one with the same name exists. It reports whether a row was written.
func (r *routingRuleRepository) CreateIfAbsent(ctx context.Context, rule *domain.RoutingRule) (bool, error) {
	const query = `
        INSERT INTO routing_rules (name, description, priority, enabled, category_filter, priority_filter,
            keyword_filter, assigned_team_id, assigned_agent_id, auto_priority)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        ON CONFLICT (name) DO NOTHING`
	cmd, err := r.pool.Exec(ctx, query,
		rule.Name,
		rule.Description,
		rule.Priority,
		rule.Enabled,
		rule.CategoryFilter,
		prioritiesToStrings(rule.PriorityFilter),
		rule.KeywordFilter,
		rule.AssignedTeamID,
		rule.AssignedAgentID,
		rule.AutoPriority,
	)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

type routingHistoryRepository struct {
	pool *pgxpool.Pool
}

// NewRoutingHistoryRepository creates repository.
func NewRoutingHistoryRepository(pool *pgxpool.Pool) RoutingHistoryRepository {
	return &routingHistoryRepository{pool: pool}
}

func (r *routingHistoryRepository) Record(ctx context.Context, decision *domain.RoutingDecision) error {
	const query = `
        INSERT INTO routing_history (ticket_id, method, suggested_team_id, suggested_agent_id, priority,
            confidence, applied_rules, applied)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		decision.TicketID,
		decision.Method,
		decision.SuggestedTeamID,
		decision.SuggestedAgentID,
		decision.Priority,
		decision.Confidence,
		nonNil(decision.AppliedRules),
		decision.Applied,
	).Scan(&decision.ID, &decision.CreatedAt)
}
