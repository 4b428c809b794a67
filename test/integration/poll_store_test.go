package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pollboard/backend/internal/models"
	"github.com/pollboard/backend/internal/polls"
)

func newStoredPoll(id, guildID string) *models.Poll {
	settings := models.DefaultSettings()
	settings.MaxVotesPerUser = 2
	settings.VoteWeightsByRole = map[string]int{"423456789012345678": 5}
	return &models.Poll{
		ID:          id,
		GuildID:     guildID,
		ChannelID:   "323456789012345678",
		CreatorID:   "423456789012345678",
		Title:       "Lunch?",
		Description: "Team lunch vote",
		Options: []models.Option{
			{Index: 0, Label: "Pizza"},
			{Index: 1, Label: "Tacos"},
			{Index: 2, Label: "Sushi"},
		},
		Settings:  settings,
		Active:    true,
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
}

func TestPostgresRepositoryRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	app := setupTestApp(t)
	defer app.Teardown(t)
	ctx := context.Background()
	repo := polls.NewPostgresRepository(app.Pool)

	poll := newStoredPoll("123456789012345678", "223456789012345678")
	require.NoError(t, repo.Save(ctx, poll))

	got, err := repo.GetByID(ctx, poll.ID)
	require.NoError(t, err)
	assert.Equal(t, poll.Title, got.Title)
	assert.Equal(t, poll.Options, got.Options)
	assert.Equal(t, poll.Settings, got.Settings)
	assert.True(t, got.Active)

	_, err = repo.GetByID(ctx, "999456789012345678")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestPostgresRepositoryLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	app := setupTestApp(t)
	defer app.Teardown(t)
	ctx := context.Background()
	repo := polls.NewPostgresRepository(app.Pool)

	poll := newStoredPoll("123456789012345678", "223456789012345678")
	require.NoError(t, repo.Save(ctx, poll))

	closedAt := time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, repo.SetClosed(ctx, poll.ID, closedAt))
	assert.ErrorIs(t, repo.SetClosed(ctx, poll.ID, closedAt), models.ErrInvalidState)

	require.NoError(t, repo.SetReopened(ctx, poll.ID))
	got, err := repo.GetByID(ctx, poll.ID)
	require.NoError(t, err)
	assert.True(t, got.Active)
	assert.True(t, got.Reopened)
	assert.Nil(t, got.ClosedAt)

	// The reopen is single-use.
	require.NoError(t, repo.SetClosed(ctx, poll.ID, time.Now().UTC()))
	assert.ErrorIs(t, repo.SetReopened(ctx, poll.ID), models.ErrInvalidState)
}

func TestPostgresRepositoryListAndRetention(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	app := setupTestApp(t)
	defer app.Teardown(t)
	ctx := context.Background()
	repo := polls.NewPostgresRepository(app.Pool)

	guildID := "223456789012345678"
	ids := []string{"123456789012345678", "133456789012345678", "143456789012345678"}
	for _, id := range ids {
		require.NoError(t, repo.Save(ctx, newStoredPoll(id, guildID)))
	}
	require.NoError(t, repo.Save(ctx, newStoredPoll("153456789012345678", "933456789012345678")))

	list, err := repo.ListByGuild(ctx, guildID, 10, 0)
	require.NoError(t, err)
	assert.Len(t, list, 3)

	list, err = repo.ListByGuild(ctx, guildID, 2, 2)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, repo.SetClosed(ctx, ids[0], time.Now().UTC().Add(-48*time.Hour)))
	n, err := repo.DeleteClosedBefore(ctx, time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = repo.GetByID(ctx, ids[0])
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestPostgresRepositoryUpdateSettings(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	app := setupTestApp(t)
	defer app.Teardown(t)
	ctx := context.Background()
	repo := polls.NewPostgresRepository(app.Pool)

	poll := newStoredPoll("123456789012345678", "223456789012345678")
	require.NoError(t, repo.Save(ctx, poll))

	updated := poll.Settings
	updated.Public = false
	updated.AllowedRoleIDs = []string{"523456789012345678"}
	require.NoError(t, repo.UpdateSettings(ctx, poll.ID, updated))

	got, err := repo.GetByID(ctx, poll.ID)
	require.NoError(t, err)
	assert.Equal(t, updated, got.Settings)

	// once closed, a racing settings write must not land
	require.NoError(t, repo.SetClosed(ctx, poll.ID, time.Now().UTC()))
	updated.Public = true
	err = repo.UpdateSettings(ctx, poll.ID, updated)
	assert.ErrorIs(t, err, models.ErrInvalidState)

	got, err = repo.GetByID(ctx, poll.ID)
	require.NoError(t, err)
	assert.False(t, got.Settings.Public)
}
