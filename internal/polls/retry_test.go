package polls

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pollboard/backend/internal/models"
)

// flakyRepository fails the first n GetByID calls with an infrastructure
// error, then delegates to the in-memory store.
type flakyRepository struct {
	*MemoryRepository
	failures int
	calls    int
}

func (r *flakyRepository) GetByID(ctx context.Context, id string) (*models.Poll, error) {
	r.calls++
	if r.failures > 0 {
		r.failures--
		return nil, errors.New("read tcp: connection reset by peer")
	}
	return r.MemoryRepository.GetByID(ctx, id)
}

func newFlakyRepository(failures int) (*flakyRepository, *RetryingRepository) {
	flaky := &flakyRepository{MemoryRepository: NewMemoryRepository(), failures: failures}
	retrying := NewRetryingRepository(flaky)
	retrying.delay = time.Millisecond
	return flaky, retrying
}

func TestRetryRecoversFromTransientFailure(t *testing.T) {
	flaky, repo := newFlakyRepository(1)
	ctx := context.Background()
	require.NoError(t, flaky.Save(ctx, &models.Poll{ID: testPollID, Active: true}))

	got, err := repo.GetByID(ctx, testPollID)
	require.NoError(t, err)
	assert.Equal(t, testPollID, got.ID)
	assert.Equal(t, 2, flaky.calls)
}

func TestRetrySurfacesStorageErrorWhenFailurePersists(t *testing.T) {
	flaky, repo := newFlakyRepository(5)

	_, err := repo.GetByID(context.Background(), testPollID)
	assert.ErrorIs(t, err, models.ErrStorage)
	assert.Equal(t, 2, flaky.calls, "retries are bounded to one extra attempt")
}

func TestRetryPassesDomainErrorsThroughWithoutRetry(t *testing.T) {
	flaky, repo := newFlakyRepository(0)

	_, err := repo.GetByID(context.Background(), "823456789012345678")
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.NotErrorIs(t, err, models.ErrStorage)
	assert.Equal(t, 1, flaky.calls)
}
