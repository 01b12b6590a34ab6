package domain

import "time"

// UserRole enumerates the roles known to the helpdesk.
type UserRole string

const (
	UserRoleEmployee UserRole = "EMPLOYEE"
	UserRoleAgent    UserRole = "AGENT"
	UserRoleAdmin    UserRole = "ADMIN"
)

// IsStaff reports whether the role may act on other people's tickets.
func (r UserRole) IsStaff() bool {
	return r == UserRoleAgent || r == UserRoleAdmin
}

// User is anyone who can raise, work on or approve tickets.
type User struct {
	ID        string
	Name      string
	Email     string
	Phone     *string
	Role      UserRole
	TeamID    *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AgentSkill ranks an agent's competence for a ticket category.
type AgentSkill struct {
	AgentID    string
	Category   string
	SkillLevel int
}
