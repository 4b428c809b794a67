package eligibility

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pollboard/backend/internal/models"
)

const (
	guildID = "123456789012345678"
	voterID = "223456789012345678"
	roleMod = "323456789012345678"
	roleVIP = "423456789012345678"
)

func testPoll(settings models.Settings) *models.Poll {
	return &models.Poll{
		ID:       "523456789012345678",
		GuildID:  guildID,
		Title:    "Lunch?",
		Options:  []models.Option{{Index: 0, Label: "Pizza"}, {Index: 1, Label: "Tacos"}},
		Settings: settings,
		Active:   true,
	}
}

func TestCheckOpenPollDefaultWeight(t *testing.T) {
	engine := NewEngine(StaticRoles{}, nil, nil)
	decision, err := engine.Check(context.Background(), testPoll(models.DefaultSettings()), voterID)
	require.NoError(t, err)
	assert.True(t, decision.Eligible)
	assert.Equal(t, 1, decision.Weight)
	assert.NoError(t, decision.Reason)
}

func TestCheckAllowedRolesGate(t *testing.T) {
	roles := StaticRoles{guildID: {voterID: {roleMod}}}
	engine := NewEngine(roles, nil, nil)

	settings := models.DefaultSettings()
	settings.AllowedRoleIDs = []string{roleMod}
	decision, err := engine.Check(context.Background(), testPoll(settings), voterID)
	require.NoError(t, err)
	assert.True(t, decision.Eligible)

	settings.AllowedRoleIDs = []string{roleVIP}
	decision, err = engine.Check(context.Background(), testPoll(settings), voterID)
	require.NoError(t, err)
	assert.False(t, decision.Eligible)
	assert.ErrorIs(t, decision.Reason, models.ErrIneligible)
}

func TestCheckWeightTakesMaxMatchingRole(t *testing.T) {
	roles := StaticRoles{guildID: {voterID: {roleMod, roleVIP}}}
	engine := NewEngine(roles, nil, nil)

	settings := models.DefaultSettings()
	settings.VoteWeightsByRole = map[string]int{
		roleMod:              3,
		roleVIP:              10,
		"523456789012345678": 50, // not held
	}
	decision, err := engine.Check(context.Background(), testPoll(settings), voterID)
	require.NoError(t, err)
	assert.True(t, decision.Eligible)
	assert.Equal(t, 10, decision.Weight)
}

func TestCheckWeightNeverBelowOne(t *testing.T) {
	engine := NewEngine(StaticRoles{}, nil, nil)
	settings := models.DefaultSettings()
	settings.VoteWeightsByRole = map[string]int{roleMod: 25}
	decision, err := engine.Check(context.Background(), testPoll(settings), voterID)
	require.NoError(t, err)
	assert.Equal(t, 1, decision.Weight)
}

func TestPremiumGrantIdempotentPerBucket(t *testing.T) {
	store := NewMemoryPremiumStore()
	ctx := context.Background()
	at := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)

	applied, err := store.Grant(ctx, voterID, at)
	require.NoError(t, err)
	assert.True(t, applied)

	// Second delivery in the same hour bucket is a duplicate.
	applied, err = store.Grant(ctx, voterID, at.Add(10*time.Minute))
	require.NoError(t, err)
	assert.False(t, applied)

	// Next bucket grants again.
	applied, err = store.Grant(ctx, voterID, at.Add(EventBucket))
	require.NoError(t, err)
	assert.True(t, applied)

	unlocked, err := store.IsUnlocked(ctx, voterID)
	require.NoError(t, err)
	assert.True(t, unlocked)
}

func TestIsPremiumUnlocked(t *testing.T) {
	store := NewMemoryPremiumStore()
	engine := NewEngine(StaticRoles{}, store, nil)
	ctx := context.Background()

	unlocked, err := engine.IsPremiumUnlocked(ctx, voterID)
	require.NoError(t, err)
	assert.False(t, unlocked)

	_, err = store.Grant(ctx, voterID, time.Now())
	require.NoError(t, err)

	unlocked, err = engine.IsPremiumUnlocked(ctx, voterID)
	require.NoError(t, err)
	assert.True(t, unlocked)
}
