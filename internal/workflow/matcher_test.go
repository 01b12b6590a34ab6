package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk/internal/domain"
)

func TestMatchEmptyFiltersMatchEverything(t *testing.T) {
	workflows := []domain.Workflow{{ID: "catch-all", Enabled: true}}
	got := Match(workflows, Attributes{Description: "anything at all"})
	require.NotNil(t, got)
	assert.Equal(t, "catch-all", got.ID)
}

func TestMatchRequiresEveryKeyword(t *testing.T) {
	workflows := []domain.Workflow{{ID: "vpn-reset", Enabled: true, KeywordFilter: []string{"vpn", "password"}}}

	assert.Nil(t, Match(workflows, Attributes{Description: "VPN not connecting"}))

	got := Match(workflows, Attributes{Description: "VPN not connecting", Keywords: []string{"Password"}})
	require.NotNil(t, got)
	assert.Equal(t, "vpn-reset", got.ID)
}

func TestMatchIntentAndCategoryFilters(t *testing.T) {
	workflows := []domain.Workflow{{
		ID:             "reset",
		Enabled:        true,
		IntentFilter:   []string{"PASSWORD_RESET"},
		CategoryFilter: []string{"ACCESS"},
	}}

	assert.Nil(t, Match(workflows, Attributes{Category: "ACCESS"}))
	assert.Nil(t, Match(workflows, Attributes{Intent: "PASSWORD_RESET", Category: "NETWORK"}))
	assert.NotNil(t, Match(workflows, Attributes{Intent: "PASSWORD_RESET", Category: "ACCESS"}))
}

func TestMatchOrdersByPriorityThenAge(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	workflows := []domain.Workflow{
		{ID: "low", Enabled: true, Priority: 1, CreatedAt: base},
		{ID: "high-newer", Enabled: true, Priority: 5, CreatedAt: base.Add(time.Hour)},
		{ID: "high-older", Enabled: true, Priority: 5, CreatedAt: base},
		{ID: "disabled", Enabled: false, Priority: 100},
	}
	got := Match(workflows, Attributes{})
	require.NotNil(t, got)
	assert.Equal(t, "high-older", got.ID)
}
