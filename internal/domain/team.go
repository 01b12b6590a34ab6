package domain

import "time"

// Team is a group of agents tickets can be routed to.
type Team struct {
	ID          string
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
