package polls

import (
	"context"
	"fmt"
	"time"

	"github.com/pollboard/backend/internal/models"
)

const retryDelay = 100 * time.Millisecond

// RetryingRepository decorates a Repository with one bounded retry per call.
// Domain outcomes pass through untouched; an infrastructure failure is
// retried once and then surfaces wrapped in models.ErrStorage. Every write
// is idempotent on its keys, so a retry after an ambiguous failure is safe.
type RetryingRepository struct {
	inner Repository
	delay time.Duration
}

// NewRetryingRepository wraps inner with the retry policy.
func NewRetryingRepository(inner Repository) *RetryingRepository {
	return &RetryingRepository{inner: inner, delay: retryDelay}
}

func (r *RetryingRepository) do(ctx context.Context, op func() error) error {
	err := op()
	if err == nil || models.IsDomain(err) || ctx.Err() != nil {
		return err
	}
	select {
	case <-time.After(r.delay):
	case <-ctx.Done():
		return ctx.Err()
	}
	if err = op(); err == nil || models.IsDomain(err) {
		return err
	}
	return fmt.Errorf("%w: %v", models.ErrStorage, err)
}

func (r *RetryingRepository) Save(ctx context.Context, p *models.Poll) error {
	return r.do(ctx, func() error { return r.inner.Save(ctx, p) })
}

func (r *RetryingRepository) GetByID(ctx context.Context, id string) (*models.Poll, error) {
	var p *models.Poll
	err := r.do(ctx, func() (e error) { p, e = r.inner.GetByID(ctx, id); return })
	return p, err
}

func (r *RetryingRepository) ListByGuild(ctx context.Context, guildID string, limit, offset int) ([]*models.Poll, error) {
	var out []*models.Poll
	err := r.do(ctx, func() (e error) { out, e = r.inner.ListByGuild(ctx, guildID, limit, offset); return })
	return out, err
}

func (r *RetryingRepository) UpdateSettings(ctx context.Context, id string, settings models.Settings) error {
	return r.do(ctx, func() error { return r.inner.UpdateSettings(ctx, id, settings) })
}

func (r *RetryingRepository) SetClosed(ctx context.Context, id string, closedAt time.Time) error {
	return r.do(ctx, func() error { return r.inner.SetClosed(ctx, id, closedAt) })
}

func (r *RetryingRepository) SetReopened(ctx context.Context, id string) error {
	return r.do(ctx, func() error { return r.inner.SetReopened(ctx, id) })
}

func (r *RetryingRepository) Delete(ctx context.Context, id string) error {
	return r.do(ctx, func() error { return r.inner.Delete(ctx, id) })
}

func (r *RetryingRepository) DeleteClosedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := r.do(ctx, func() (e error) { n, e = r.inner.DeleteClosedBefore(ctx, cutoff); return })
	return n, err
}
