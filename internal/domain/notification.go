package domain

import "time"

// NotificationType classifies in-app notification rows.
type NotificationType string

const (
	NotificationApprovalRequested NotificationType = "APPROVAL_REQUESTED"
	NotificationAlert             NotificationType = "ALERT"
)

// Notification is an in-app message shown to a single user.
type Notification struct {
	ID        string
	UserID    string
	TicketID  *string
	Type      NotificationType
	Title     string
	Body      string
	ReadAt    *time.Time
	CreatedAt time.Time
}
