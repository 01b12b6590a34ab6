package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// AlertRuleRepository stores alert rules.
type AlertRuleRepository interface {
	ListEnabledForEvent(ctx context.Context, eventType domain.AlertEventType) ([]domain.AlertRule, error)
	CreateIfAbsent(ctx context.Context, rule *domain.AlertRule) (bool, error)
}

// AlertHistoryRepository appends alert delivery outcomes.
type AlertHistoryRepository interface {
	Create(ctx context.Context, entry *domain.AlertHistory) error
}

type alertRuleRepository struct {
	pool *pgxpool.Pool
}

// NewAlertRuleRepository creates repository.
func NewAlertRuleRepository(pool *pgxpool.Pool) AlertRuleRepository {
	return &alertRuleRepository{pool: pool}
}

func (r *alertRuleRepository) ListEnabledForEvent(ctx context.Context, eventType domain.AlertEventType) ([]domain.AlertRule, error) {
	const query = `
        SELECT id, name, description, event_type, conditions, channels, recipient_user_ids, recipient_emails,
               recipient_phones, recipient_team_ids, recipient_roles, email_subject, email_template,
               sms_template, webhook_url, webhook_secret, priority, enabled, created_at, updated_at
        FROM alert_rules WHERE enabled = TRUE AND event_type=$1
        ORDER BY priority DESC, created_at ASC`
	rows, err := r.pool.Query(ctx, query, eventType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.AlertRule
	for rows.Next() {
		var rule domain.AlertRule
		var channels, roles []string
		if err := rows.Scan(
			&rule.ID,
			&rule.Name,
			&rule.Description,
			&rule.EventType,
			&rule.Conditions,
			&channels,
			&rule.RecipientUserIDs,
			&rule.RecipientEmails,
			&rule.RecipientPhones,
			&rule.RecipientTeamIDs,
			&roles,
			&rule.EmailSubject,
			&rule.EmailTemplate,
			&rule.SMSTemplate,
			&rule.WebhookURL,
			&rule.WebhookSecret,
			&rule.Priority,
			&rule.Enabled,
			&rule.CreatedAt,
			&rule.UpdatedAt,
		); err != nil {
			return nil, err
		}
		for _, ch := range channels {
			rule.Channels = append(rule.Channels, domain.AlertChannel(ch))
		}
		for _, role := range roles {
			rule.RecipientRoles = append(rule.RecipientRoles, domain.UserRole(role))
		}
		result = append(result, rule)
	}
	return result, rows.Err()
}

func (r *alertRuleRepository) CreateIfAbsent(ctx context.Context, rule *domain.AlertRule) (bool, error) {
	const query = `
        INSERT INTO alert_rules (name, description, event_type, conditions, channels, recipient_user_ids,
            recipient_emails, recipient_phones, recipient_team_ids, recipient_roles, email_subject,
            email_template, sms_template, webhook_url, webhook_secret, priority, enabled)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
        ON CONFLICT (name) DO NOTHING`
	channels := make([]string, len(rule.Channels))
	for i, ch := range rule.Channels {
		channels[i] = string(ch)
	}
	roles := make([]string, len(rule.RecipientRoles))
	for i, role := range rule.RecipientRoles {
		roles[i] = string(role)
	}
	conditions := rule.Conditions
	if conditions == nil {
		conditions = map[string]any{}
	}
	cmd, err := r.pool.Exec(ctx, query,
		rule.Name,
		rule.Description,
		rule.EventType,
		conditions,
		channels,
		nonNil(rule.RecipientUserIDs),
		nonNil(rule.RecipientEmails),
		nonNil(rule.RecipientPhones),
		nonNil(rule.RecipientTeamIDs),
		roles,
		rule.EmailSubject,
		rule.EmailTemplate,
		rule.SMSTemplate,
		rule.WebhookURL,
		rule.WebhookSecret,
		rule.Priority,
		rule.Enabled,
	)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

type alertHistoryRepository struct {
	pool *pgxpool.Pool
}

// NewAlertHistoryRepository creates repository.
func NewAlertHistoryRepository(pool *pgxpool.Pool) AlertHistoryRepository {
	return &alertHistoryRepository{pool: pool}
}

func (r *alertHistoryRepository) Create(ctx context.Context, entry *domain.AlertHistory) error {
	const query = `
        INSERT INTO alert_history (alert_rule_id, ticket_id, event_type, channel, recipients, status,
            error_message, sent_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		entry.AlertRuleID,
		entry.TicketID,
		entry.EventType,
		entry.Channels,
		entry.Recipients,
		entry.Status,
		entry.ErrorMessage,
		entry.SentAt,
	).Scan(&entry.ID, &entry.CreatedAt)
}
