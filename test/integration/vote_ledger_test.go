package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pollboard/backend/internal/models"
	"github.com/pollboard/backend/internal/polls"
	"github.com/pollboard/backend/internal/votes"
)

func seedPoll(t *testing.T, repo *polls.PostgresRepository) *models.Poll {
	t.Helper()
	poll := newStoredPoll("123456789012345678", "223456789012345678")
	require.NoError(t, repo.Save(context.Background(), poll))
	return poll
}

func record(pollID, voterID string, idx int) models.VoteRecord {
	return models.VoteRecord{
		PollID:      pollID,
		VoterID:     voterID,
		OptionIndex: idx,
		Weight:      1,
		CastAt:      time.Now().UTC().Truncate(time.Microsecond),
	}
}

func TestPostgresLedgerInsertAndRetract(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	app := setupTestApp(t)
	defer app.Teardown(t)
	ctx := context.Background()
	poll := seedPoll(t, polls.NewPostgresRepository(app.Pool))
	ledger := votes.NewPostgresLedger(app.Pool)
	voterID := "523456789012345678"

	inserted, err := ledger.InsertWithLimit(ctx, record(poll.ID, voterID, 0), 2)
	require.NoError(t, err)
	assert.True(t, inserted)

	// Re-casting the held option is a no-op, not a limit violation.
	inserted, err = ledger.InsertWithLimit(ctx, record(poll.ID, voterID, 0), 2)
	require.NoError(t, err)
	assert.False(t, inserted)

	count, err := ledger.CountByOption(ctx, poll.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	removed, err := ledger.Delete(ctx, poll.ID, voterID, 0)
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = ledger.Delete(ctx, poll.ID, voterID, 0)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestPostgresLedgerEnforcesLimit(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	app := setupTestApp(t)
	defer app.Teardown(t)
	ctx := context.Background()
	poll := seedPoll(t, polls.NewPostgresRepository(app.Pool))
	ledger := votes.NewPostgresLedger(app.Pool)
	voterID := "523456789012345678"

	_, err := ledger.InsertWithLimit(ctx, record(poll.ID, voterID, 0), 2)
	require.NoError(t, err)
	_, err = ledger.InsertWithLimit(ctx, record(poll.ID, voterID, 1), 2)
	require.NoError(t, err)

	_, err = ledger.InsertWithLimit(ctx, record(poll.ID, voterID, 2), 2)
	assert.ErrorIs(t, err, models.ErrVoteLimitExceeded)
}

func TestPostgresLedgerLimitUnderConcurrency(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	app := setupTestApp(t)
	defer app.Teardown(t)
	ctx := context.Background()
	poll := seedPoll(t, polls.NewPostgresRepository(app.Pool))
	ledger := votes.NewPostgresLedger(app.Pool)
	voterID := "523456789012345678"

	// One voter fires casts for all three options concurrently with limit 1;
	// the advisory lock must let exactly one through.
	var wg sync.WaitGroup
	results := make([]bool, 3)
	for idx := 0; idx < 3; idx++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			inserted, err := ledger.InsertWithLimit(ctx, record(poll.ID, voterID, idx), 1)
			if err == nil && inserted {
				results[idx] = true
			}
		}(idx)
	}
	wg.Wait()

	landed := 0
	for _, ok := range results {
		if ok {
			landed++
		}
	}
	assert.Equal(t, 1, landed)

	held, err := ledger.ListByVoter(ctx, poll.ID, voterID)
	require.NoError(t, err)
	assert.Len(t, held, 1)
}

func TestPostgresLedgerListByPollOrdering(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	app := setupTestApp(t)
	defer app.Teardown(t)
	ctx := context.Background()
	poll := seedPoll(t, polls.NewPostgresRepository(app.Pool))
	ledger := votes.NewPostgresLedger(app.Pool)

	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	for _, r := range []models.VoteRecord{
		{PollID: poll.ID, VoterID: "523456789012345678", OptionIndex: 1, Weight: 1, CastAt: base},
		{PollID: poll.ID, VoterID: "623456789012345678", OptionIndex: 0, Weight: 5, CastAt: base.Add(2 * time.Minute)},
		{PollID: poll.ID, VoterID: "723456789012345678", OptionIndex: 0, Weight: 1, CastAt: base.Add(time.Minute)},
	} {
		_, err := ledger.InsertWithLimit(ctx, r, 2)
		require.NoError(t, err)
	}

	records, err := ledger.ListByPoll(ctx, poll.ID)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "723456789012345678", records[0].VoterID)
	assert.Equal(t, "623456789012345678", records[1].VoterID)
	assert.Equal(t, "523456789012345678", records[2].VoterID)
	assert.Equal(t, 5, records[1].Weight, "weight snapshot survives storage")
}

func TestPostgresCascadeDeleteClearsLedger(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	app := setupTestApp(t)
	defer app.Teardown(t)
	ctx := context.Background()
	repo := polls.NewPostgresRepository(app.Pool)
	poll := seedPoll(t, repo)
	ledger := votes.NewPostgresLedger(app.Pool)

	_, err := ledger.InsertWithLimit(ctx, record(poll.ID, "523456789012345678", 0), 1)
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, poll.ID))

	records, err := ledger.ListByPoll(ctx, poll.ID)
	require.NoError(t, err)
	assert.Empty(t, records)
}
