package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransitionToCoversAllPairs(t *testing.T) {
	allowed := map[[2]TicketStatus]bool{
		{TicketStatusOpen, TicketStatusInProgress}:     true,
		{TicketStatusOpen, TicketStatusResolved}:       true,
		{TicketStatusInProgress, TicketStatusResolved}: true,
		{TicketStatusResolved, TicketStatusClosed}:     true,
	}
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	for _, from := range TicketStatuses {
		for _, to := range TicketStatuses {
			from, to := from, to
			t.Run(string(from)+"_to_"+string(to), func(t *testing.T) {
				ticket := &Ticket{Status: from}
				err := ticket.TransitionTo(to, now)
				if allowed[[2]TicketStatus{from, to}] {
					require.NoError(t, err)
					assert.Equal(t, to, ticket.Status)
					return
				}
				require.Error(t, err)
				var transitionErr *TransitionError
				require.True(t, errors.As(err, &transitionErr))
				assert.Equal(t, from, transitionErr.From)
				assert.Equal(t, to, transitionErr.To)
				assert.Equal(t, "illegal transition: "+string(from)+" -> "+string(to), err.Error())
				assert.Equal(t, from, ticket.Status)
			})
		}
	}
}

func TestTransitionToStampsTimestampsOnce(t *testing.T) {
	first := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	later := first.Add(2 * time.Hour)

	ticket := &Ticket{Status: TicketStatusOpen}
	require.NoError(t, ticket.TransitionTo(TicketStatusInProgress, first))
	require.NotNil(t, ticket.FirstResponseAt)
	assert.Equal(t, first, *ticket.FirstResponseAt)

	earlierResolve := first.Add(-time.Hour)
	ticket.ResolvedAt = &earlierResolve
	require.NoError(t, ticket.TransitionTo(TicketStatusResolved, later))
	assert.Equal(t, earlierResolve, *ticket.ResolvedAt)
	assert.Equal(t, first, *ticket.FirstResponseAt)

	require.NoError(t, ticket.TransitionTo(TicketStatusClosed, later))
	require.NotNil(t, ticket.ClosedAt)
	assert.Equal(t, later, *ticket.ClosedAt)
}

func TestTransitionOpenToResolvedSkipsFirstResponse(t *testing.T) {
	now := time.Now()
	ticket := &Ticket{Status: TicketStatusOpen}
	require.NoError(t, ticket.TransitionTo(TicketStatusResolved, now))
	assert.Nil(t, ticket.FirstResponseAt)
	require.NotNil(t, ticket.ResolvedAt)
}

func TestTicketRef(t *testing.T) {
	ticket := &Ticket{ID: "3f2a9c1e-aaaa-bbbb-cccc-123456789012"}
	assert.Equal(t, "3F2A9C1E", ticket.Ref())
}
