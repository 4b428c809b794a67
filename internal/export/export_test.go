package export_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pollboard/backend/internal/export"
	"github.com/pollboard/backend/internal/models"
	"github.com/pollboard/backend/internal/polls"
	"github.com/pollboard/backend/internal/votes"
)

const pollID = "123456789012345678"

func setup(t *testing.T, allowLive bool, optionLabels ...string) (*polls.MemoryRepository, *votes.MemoryLedger, *export.Builder) {
	t.Helper()
	if len(optionLabels) == 0 {
		optionLabels = []string{"Pizza", "Tacos"}
	}
	poll := &models.Poll{
		ID:        pollID,
		GuildID:   "223456789012345678",
		ChannelID: "323456789012345678",
		CreatorID: "423456789012345678",
		Title:     "Lunch?",
		Settings:  models.DefaultSettings(),
		Active:    true,
	}
	for i, label := range optionLabels {
		poll.Options = append(poll.Options, models.Option{Index: i, Label: label})
	}
	repo := polls.NewMemoryRepository()
	require.NoError(t, repo.Save(context.Background(), poll))
	ledger := votes.NewMemoryLedger()
	return repo, ledger, export.NewBuilder(repo, ledger, allowLive)
}

func closePoll(t *testing.T, repo *polls.MemoryRepository) {
	t.Helper()
	require.NoError(t, repo.SetClosed(context.Background(), pollID, time.Now().UTC()))
}

func castAt(t *testing.T, ledger *votes.MemoryLedger, voterID string, idx, weight int, at time.Time) {
	t.Helper()
	inserted, err := ledger.InsertWithLimit(context.Background(), models.VoteRecord{
		PollID:      pollID,
		VoterID:     voterID,
		OptionIndex: idx,
		Weight:      weight,
		CastAt:      at,
	}, models.MaxVotesCap)
	require.NoError(t, err)
	require.True(t, inserted)
}

func TestBuildRowsOrderedByOptionThenTime(t *testing.T) {
	repo, ledger, builder := setup(t, false)
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	castAt(t, ledger, "523456789012345678", 1, 1, base)
	castAt(t, ledger, "623456789012345678", 0, 1, base.Add(2*time.Minute))
	castAt(t, ledger, "723456789012345678", 0, 1, base.Add(time.Minute))
	closePoll(t, repo)

	exp, err := builder.Build(context.Background(), pollID)
	require.NoError(t, err)
	assert.Equal(t, "poll-"+pollID+"-results.csv", exp.Filename)
	assert.Equal(t, int64(3), exp.TotalVotes)
	require.Len(t, exp.Rows, 3)

	// Pizza rows first (cast-time ascending), then Tacos.
	assert.Equal(t, []string{"723456789012345678", "Pizza", "1", "2025-06-01T10:01:00Z"}, exp.Rows[0])
	assert.Equal(t, []string{"623456789012345678", "Pizza", "1", "2025-06-01T10:02:00Z"}, exp.Rows[1])
	assert.Equal(t, []string{"523456789012345678", "Tacos", "1", "2025-06-01T10:00:00Z"}, exp.Rows[2])
}

func TestBuildGating(t *testing.T) {
	repo, _, builder := setup(t, false)

	// Open poll, live export disabled.
	_, err := builder.Build(context.Background(), pollID)
	assert.ErrorIs(t, err, models.ErrExportUnavailable)

	// Closed poll with exports disabled in settings.
	closePoll(t, repo)
	poll, err := repo.GetByID(context.Background(), pollID)
	require.NoError(t, err)
	poll.Settings.AllowExports = false
	require.NoError(t, repo.UpdateSettings(context.Background(), pollID, poll.Settings))
	_, err = builder.Build(context.Background(), pollID)
	assert.ErrorIs(t, err, models.ErrExportUnavailable)

	// Unknown poll.
	_, err = builder.Build(context.Background(), "999456789012345678")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestBuildLiveWhenConfigured(t *testing.T) {
	_, ledger, builder := setup(t, true)
	castAt(t, ledger, "523456789012345678", 0, 1, time.Now())

	exp, err := builder.Build(context.Background(), pollID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), exp.TotalVotes)
}

func TestBuildEmptyLedgerStillExports(t *testing.T) {
	repo, _, builder := setup(t, false)
	closePoll(t, repo)

	exp, err := builder.Build(context.Background(), pollID)
	require.NoError(t, err)
	assert.Empty(t, exp.Rows)

	var buf bytes.Buffer
	require.NoError(t, exp.WriteCSV(&buf))
	assert.Equal(t, "voterId,option,weight,timestamp\n", buf.String())
}

func TestWriteCSVRoundTripsSpecialCharacters(t *testing.T) {
	repo, ledger, builder := setup(t, false, `He said "hi", twice`, "Plain")
	castAt(t, ledger, "523456789012345678", 0, 2, time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	closePoll(t, repo)

	exp, err := builder.Build(context.Background(), pollID)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, exp.WriteCSV(&buf))

	parsed, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, parsed, 2)
	assert.Equal(t, export.Header, parsed[0])
	assert.Equal(t, []string{"523456789012345678", `He said "hi", twice`, "2", "2025-06-01T10:00:00Z"}, parsed[1])
}

func TestWriteCSVTimestampsAreUTC(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	repo, ledger, builder := setup(t, false)
	castAt(t, ledger, "523456789012345678", 0, 1, time.Date(2025, 6, 1, 15, 0, 0, 0, loc))
	closePoll(t, repo)

	exp, err := builder.Build(context.Background(), pollID)
	require.NoError(t, err)
	require.Len(t, exp.Rows, 1)
	assert.Equal(t, "2025-06-01T10:00:00Z", exp.Rows[0][3])
}
