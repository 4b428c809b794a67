package votes

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pollboard/backend/internal/models"
)

type flakyLedger struct {
	*MemoryLedger
	failures int
	calls    int
}

func (l *flakyLedger) InsertWithLimit(ctx context.Context, rec models.VoteRecord, maxVotes int) (bool, error) {
	l.calls++
	if l.failures > 0 {
		l.failures--
		return false, errors.New("write tcp: broken pipe")
	}
	return l.MemoryLedger.InsertWithLimit(ctx, rec, maxVotes)
}

func newFlakyLedger(failures int) (*flakyLedger, *RetryingLedger) {
	flaky := &flakyLedger{MemoryLedger: NewMemoryLedger(), failures: failures}
	retrying := NewRetryingLedger(flaky)
	retrying.delay = time.Millisecond
	return flaky, retrying
}

func voteRecord(voterID string, idx int) models.VoteRecord {
	return models.VoteRecord{
		PollID:      "123456789012345678",
		VoterID:     voterID,
		OptionIndex: idx,
		Weight:      1,
		CastAt:      time.Now().UTC(),
	}
}

func TestLedgerRetryRecoversFromTransientFailure(t *testing.T) {
	flaky, ledger := newFlakyLedger(1)

	applied, err := ledger.InsertWithLimit(context.Background(), voteRecord("523456789012345678", 0), 1)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, 2, flaky.calls)
}

func TestLedgerRetrySurfacesStorageErrorWhenFailurePersists(t *testing.T) {
	flaky, ledger := newFlakyLedger(5)

	_, err := ledger.InsertWithLimit(context.Background(), voteRecord("523456789012345678", 0), 1)
	assert.ErrorIs(t, err, models.ErrStorage)
	assert.Equal(t, 2, flaky.calls, "retries are bounded to one extra attempt")
}

func TestLedgerRetryPassesLimitErrorThroughWithoutRetry(t *testing.T) {
	flaky, ledger := newFlakyLedger(0)
	ctx := context.Background()

	_, err := ledger.InsertWithLimit(ctx, voteRecord("523456789012345678", 0), 1)
	require.NoError(t, err)

	_, err = ledger.InsertWithLimit(ctx, voteRecord("523456789012345678", 1), 1)
	assert.ErrorIs(t, err, models.ErrVoteLimitExceeded)
	assert.NotErrorIs(t, err, models.ErrStorage)
	assert.Equal(t, 2, flaky.calls)
}
