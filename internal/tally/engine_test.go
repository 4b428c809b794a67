package tally_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pollboard/backend/internal/models"
	"github.com/pollboard/backend/internal/polls"
	"github.com/pollboard/backend/internal/tally"
	"github.com/pollboard/backend/internal/votes"
)

func lunchPoll() *models.Poll {
	return &models.Poll{
		ID:        "123456789012345678",
		GuildID:   "223456789012345678",
		ChannelID: "323456789012345678",
		CreatorID: "423456789012345678",
		Title:     "Lunch?",
		Options: []models.Option{
			{Index: 0, Label: "Pizza"},
			{Index: 1, Label: "Tacos"},
			{Index: 2, Label: "Sushi"},
		},
		Settings: models.DefaultSettings(),
		Active:   true,
	}
}

func rec(voterID string, idx, weight int) models.VoteRecord {
	return models.VoteRecord{
		PollID:      "123456789012345678",
		VoterID:     voterID,
		OptionIndex: idx,
		Weight:      weight,
	}
}

func TestForPollDeclaredOrderWithZeroVoteOptions(t *testing.T) {
	result := tally.ForPoll(lunchPoll(), []models.VoteRecord{
		rec("523456789012345678", 2, 1),
		rec("623456789012345678", 0, 1),
		rec("723456789012345678", 2, 1),
	})

	require.Len(t, result.Options, 3)
	assert.Equal(t, "Pizza", result.Options[0].Label)
	assert.Equal(t, "Tacos", result.Options[1].Label)
	assert.Equal(t, "Sushi", result.Options[2].Label)
	assert.Equal(t, int64(1), result.Options[0].Count)
	assert.Equal(t, int64(0), result.Options[1].Count, "zero-vote option stays in the result")
	assert.Equal(t, int64(2), result.Options[2].Count)
	assert.Equal(t, int64(3), result.TotalVotes)
}

func TestForPollWeightedSums(t *testing.T) {
	result := tally.ForPoll(lunchPoll(), []models.VoteRecord{
		rec("523456789012345678", 0, 1),
		rec("623456789012345678", 0, 10),
		rec("723456789012345678", 1, 3),
	})

	assert.Equal(t, int64(2), result.Options[0].Count)
	assert.Equal(t, int64(11), result.Options[0].WeightedSum)
	assert.Equal(t, int64(3), result.Options[1].WeightedSum)
}

func TestForPollSkipsUndeclaredOptionRecords(t *testing.T) {
	result := tally.ForPoll(lunchPoll(), []models.VoteRecord{
		rec("523456789012345678", 0, 1),
		rec("623456789012345678", 7, 1),
		rec("723456789012345678", -1, 1),
	})

	assert.Equal(t, int64(1), result.TotalVotes)
	assert.Equal(t, int64(1), result.Options[0].Count)
}

func TestForPollEmptyLedger(t *testing.T) {
	result := tally.ForPoll(lunchPoll(), nil)
	assert.Equal(t, int64(0), result.TotalVotes)
	require.Len(t, result.Options, 3)
	for _, opt := range result.Options {
		assert.Equal(t, int64(0), opt.Count)
	}
}

func TestComputeAgainstStores(t *testing.T) {
	ctx := context.Background()
	repo := polls.NewMemoryRepository()
	ledger := votes.NewMemoryLedger()
	engine := tally.NewEngine(repo, ledger)

	poll := lunchPoll()
	require.NoError(t, repo.Save(ctx, poll))
	for i, voter := range []string{"523456789012345678", "623456789012345678"} {
		_, err := ledger.InsertWithLimit(ctx, rec(voter, i, 1), 1)
		require.NoError(t, err)
	}

	result, err := engine.Compute(ctx, poll.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.TotalVotes)
	assert.Equal(t, int64(1), result.Options[0].Count)
	assert.Equal(t, int64(1), result.Options[1].Count)

	_, err = engine.Compute(ctx, "999456789012345678")
	assert.ErrorIs(t, err, models.ErrNotFound)
}
