package routing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/testutil"
)

func ptr[T any](v T) *T { return &v }

func newEngine(store *testutil.Store) *Engine {
	return NewEngine(store.RoutingRules(), store.Agents(), store.Teams(), Options{})
}

func loadAgent(store *testutil.Store, agentID string, tickets int) {
	for i := 0; i < tickets; i++ {
		store.PutTicket(domain.Ticket{
			Title:           "busy",
			Status:          domain.TicketStatusInProgress,
			Priority:        domain.TicketPriorityLow,
			AssignedAgentID: ptr(agentID),
		})
	}
}

func TestMatchRuleFiltersAreAnded(t *testing.T) {
	rules := []domain.RoutingRule{{
		ID:             "net",
		Enabled:        true,
		CategoryFilter: []string{"NETWORK"},
		PriorityFilter: []domain.TicketPriority{domain.TicketPriorityHigh},
		KeywordFilter:  []string{"VPN", "office"},
	}}

	assert.Nil(t, MatchRule(rules, Attributes{Title: "VPN", Description: "office", Category: ptr("NETWORK"), Priority: domain.TicketPriorityLow}))
	assert.Nil(t, MatchRule(rules, Attributes{Title: "VPN", Description: "home", Category: ptr("NETWORK"), Priority: domain.TicketPriorityHigh}))
	assert.Nil(t, MatchRule(rules, Attributes{Title: "VPN", Description: "office", Priority: domain.TicketPriorityHigh}))

	got := MatchRule(rules, Attributes{Title: "vpn broken", Description: "in the Office", Category: ptr("NETWORK"), Priority: domain.TicketPriorityHigh})
	require.NotNil(t, got)
	assert.Equal(t, "net", got.ID)
}

func TestDetectUrgency(t *testing.T) {
	assert.Equal(t, domain.TicketPriorityLow, DetectUrgency("printer out of toner", nil))
	assert.Equal(t, domain.TicketPriorityMedium, DetectUrgency("printer is broken", nil))
	assert.Equal(t, domain.TicketPriorityMedium, DetectUrgency("urgent urgent urgent", nil))
	assert.Equal(t, domain.TicketPriorityHigh, DetectUrgency("URGENT: server down, everyone blocked", nil))
	assert.Equal(t, domain.TicketPriorityMedium, DetectUrgency("sev1 outage", []string{"sev1"}))
}

func TestRouteRuleWithTeamResolvesSkilledAgent(t *testing.T) {
	store := testutil.NewStore()
	team := store.AddTeam(domain.Team{Name: "Network"})
	junior := store.AddUser(domain.User{Name: "junior", Role: domain.UserRoleAgent, TeamID: ptr(team)})
	senior := store.AddUser(domain.User{Name: "senior", Role: domain.UserRoleAgent, TeamID: ptr(team)})
	store.AddSkill(domain.AgentSkill{AgentID: junior, Category: "NETWORK", SkillLevel: 2})
	store.AddSkill(domain.AgentSkill{AgentID: senior, Category: "NETWORK", SkillLevel: 5})
	ruleID := store.AddRoutingRule(domain.RoutingRule{
		Enabled:        true,
		CategoryFilter: []string{"NETWORK"},
		AssignedTeamID: ptr(team),
		AutoPriority:   ptr(domain.TicketPriorityHigh),
	})

	result, err := newEngine(store).Route(context.Background(), Attributes{
		Title:    "VPN",
		Category: ptr("NETWORK"),
		Priority: domain.TicketPriorityLow,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.RoutingMethodRule, result.Method)
	assert.Equal(t, 0.8, result.Confidence)
	assert.Equal(t, team, *result.TeamID)
	require.NotNil(t, result.AgentID)
	assert.Equal(t, senior, *result.AgentID)
	assert.Equal(t, domain.TicketPriorityHigh, result.Priority)
	assert.Equal(t, []string{ruleID}, result.AppliedRules)
}

func TestRouteRuleReResolvesOverloadedAgent(t *testing.T) {
	store := testutil.NewStore()
	busy := store.AddUser(domain.User{Name: "busy", Role: domain.UserRoleAgent})
	free := store.AddUser(domain.User{Name: "free", Role: domain.UserRoleAgent})
	store.AddSkill(domain.AgentSkill{AgentID: busy, Category: "EMAIL", SkillLevel: 9})
	store.AddSkill(domain.AgentSkill{AgentID: free, Category: "EMAIL", SkillLevel: 1})
	loadAgent(store, busy, 21)
	store.AddRoutingRule(domain.RoutingRule{Enabled: true, AssignedAgentID: ptr(busy)})

	result, err := newEngine(store).Route(context.Background(), Attributes{Category: ptr("EMAIL"), Priority: domain.TicketPriorityMedium})
	require.NoError(t, err)

	require.NotNil(t, result.AgentID)
	assert.Equal(t, free, *result.AgentID)
}

func TestRouteRuleKeepsAgentAtCeiling(t *testing.T) {
	store := testutil.NewStore()
	agent := store.AddUser(domain.User{Name: "steady", Role: domain.UserRoleAgent})
	loadAgent(store, agent, 20)
	store.AddRoutingRule(domain.RoutingRule{Enabled: true, AssignedAgentID: ptr(agent)})

	result, err := newEngine(store).Route(context.Background(), Attributes{Priority: domain.TicketPriorityMedium})
	require.NoError(t, err)
	assert.Equal(t, agent, *result.AgentID)
}

func TestRouteFallbackUrgentTeam(t *testing.T) {
	store := testutil.NewStore()
	urgent := store.AddTeam(domain.Team{Name: "Critical Incidents"})
	store.AddUser(domain.User{Name: "agent", Role: domain.UserRoleAgent})

	result, err := newEngine(store).Route(context.Background(), Attributes{
		Title:       "URGENT",
		Description: "mail server down, sales blocked",
		Priority:    domain.TicketPriorityLow,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.RoutingMethodFallback, result.Method)
	assert.Equal(t, urgent, *result.TeamID)
	assert.Nil(t, result.AgentID)
	assert.Equal(t, domain.TicketPriorityHigh, result.Priority)
	assert.Equal(t, 0.6, result.Confidence)
}

func TestRouteFallbackSkipsUrgencyForHighPriority(t *testing.T) {
	store := testutil.NewStore()
	store.AddTeam(domain.Team{Name: "Urgent"})
	agent := store.AddUser(domain.User{Name: "agent", Role: domain.UserRoleAgent})

	result, err := newEngine(store).Route(context.Background(), Attributes{
		Description: "urgent critical emergency",
		Priority:    domain.TicketPriorityHigh,
	})
	require.NoError(t, err)
	assert.Nil(t, result.TeamID)
	assert.Equal(t, agent, *result.AgentID)
}

func TestRouteFallbackSkilledThenLeastLoaded(t *testing.T) {
	store := testutil.NewStore()
	admin := store.AddUser(domain.User{Name: "admin", Role: domain.UserRoleAdmin})
	agent := store.AddUser(domain.User{Name: "agent", Role: domain.UserRoleAgent})
	store.AddUser(domain.User{Name: "employee", Role: domain.UserRoleEmployee})
	store.AddSkill(domain.AgentSkill{AgentID: agent, Category: "HARDWARE", SkillLevel: 3})
	loadAgent(store, admin, 2)

	skilled, err := newEngine(store).Route(context.Background(), Attributes{Category: ptr("HARDWARE"), Priority: domain.TicketPriorityLow})
	require.NoError(t, err)
	assert.Equal(t, agent, *skilled.AgentID)
	assert.Equal(t, 0.6, skilled.Confidence)

	loadAgent(store, agent, 3)
	leastLoaded, err := newEngine(store).Route(context.Background(), Attributes{Category: ptr("SOFTWARE"), Priority: domain.TicketPriorityLow})
	require.NoError(t, err)
	assert.Equal(t, admin, *leastLoaded.AgentID)
	assert.Equal(t, 0.6, leastLoaded.Confidence)
}

func TestRouteFallbackNothingAvailable(t *testing.T) {
	store := testutil.NewStore()
	result, err := newEngine(store).Route(context.Background(), Attributes{Description: "VPN not connecting", Priority: domain.TicketPriorityLow})
	require.NoError(t, err)
	assert.False(t, result.HasTarget())
	assert.Equal(t, 0.0, result.Confidence)
	assert.Equal(t, domain.RoutingMethodFallback, result.Method)
}
