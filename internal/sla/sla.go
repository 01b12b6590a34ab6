// Package sla prices ticket deadlines from their priority.
package sla

import (
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// Offsets are the hours to first response and to resolution.
type Offsets struct {
	FirstResponse time.Duration
	Resolution    time.Duration
}

var table = map[domain.TicketPriority]Offsets{
	domain.TicketPriorityHigh:   {FirstResponse: 4 * time.Hour, Resolution: 24 * time.Hour},
	domain.TicketPriorityMedium: {FirstResponse: 8 * time.Hour, Resolution: 72 * time.Hour},
	domain.TicketPriorityLow:    {FirstResponse: 24 * time.Hour, Resolution: 120 * time.Hour},
}

// OffsetsFor returns the offsets for priority. Unknown priorities are priced as LOW.
func OffsetsFor(priority domain.TicketPriority) Offsets {
	if o, ok := table[priority]; ok {
		return o
	}
	return table[domain.TicketPriorityLow]
}

// DueDates computes both deadlines for a ticket created at createdAt.
func DueDates(priority domain.TicketPriority, createdAt time.Time) domain.SLADeadlines {
	o := OffsetsFor(priority)
	return domain.SLADeadlines{
		FirstResponseDue: createdAt.Add(o.FirstResponse),
		ResolutionDue:    createdAt.Add(o.Resolution),
	}
}
