package domain

import "time"

// AlertEventType enumerates the ticket events alert rules subscribe to.
type AlertEventType string

const (
	AlertTicketCreated          AlertEventType = "TICKET_CREATED"
	AlertTicketAssigned         AlertEventType = "TICKET_ASSIGNED"
	AlertTicketStatusChanged    AlertEventType = "TICKET_STATUS_CHANGED"
	AlertTicketResolved         AlertEventType = "TICKET_RESOLVED"
	AlertTicketClosed           AlertEventType = "TICKET_CLOSED"
	AlertSLAFirstResponseBreach AlertEventType = "SLA_FIRST_RESPONSE_BREACH"
	AlertSLAResolutionBreach    AlertEventType = "SLA_RESOLUTION_BREACH"
)

// AlertChannel enumerates delivery channels.
type AlertChannel string

const (
	ChannelEmail   AlertChannel = "EMAIL"
	ChannelSMS     AlertChannel = "SMS"
	ChannelWebhook AlertChannel = "WEBHOOK"
	ChannelInApp   AlertChannel = "IN_APP"
)

// AlertRule describes who to notify, where, and for which ticket events.
type AlertRule struct {
	ID               string
	Name             string
	Description      string
	EventType        AlertEventType
	Conditions       map[string]any
	Channels         []AlertChannel
	RecipientUserIDs []string
	RecipientEmails  []string
	RecipientPhones  []string
	RecipientTeamIDs []string
	RecipientRoles   []UserRole
	EmailSubject     *string
	EmailTemplate    *string
	SMSTemplate      *string
	WebhookURL       *string
	WebhookSecret    *string
	Priority         int
	Enabled          bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// AlertStatus is the outcome recorded for a rule delivery.
type AlertStatus string

const (
	AlertStatusSent   AlertStatus = "sent"
	AlertStatusFailed AlertStatus = "failed"
)

// AlertHistory records one rule delivery for one ticket event.
type AlertHistory struct {
	ID           string
	AlertRuleID  string
	TicketID     string
	EventType    AlertEventType
	Channels     string
	Recipients   map[string]any
	Status       AlertStatus
	ErrorMessage *string
	SentAt       *time.Time
	CreatedAt    time.Time
}
