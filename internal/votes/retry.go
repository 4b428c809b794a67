package votes

import (
	"context"
	"fmt"
	"time"

	"github.com/pollboard/backend/internal/models"
)

const retryDelay = 100 * time.Millisecond

// RetryingLedger decorates a Ledger with one bounded retry per call. Domain
// outcomes pass through untouched; an infrastructure failure is retried once
// and then surfaces wrapped in models.ErrStorage. InsertWithLimit and Delete
// are idempotent on (pollID, voterID, optionIdx), so a retry after an
// ambiguous failure cannot double-apply.
type RetryingLedger struct {
	inner Ledger
	delay time.Duration
}

// NewRetryingLedger wraps inner with the retry policy.
func NewRetryingLedger(inner Ledger) *RetryingLedger {
	return &RetryingLedger{inner: inner, delay: retryDelay}
}

func (l *RetryingLedger) do(ctx context.Context, op func() error) error {
	err := op()
	if err == nil || models.IsDomain(err) || ctx.Err() != nil {
		return err
	}
	select {
	case <-time.After(l.delay):
	case <-ctx.Done():
		return ctx.Err()
	}
	if err = op(); err == nil || models.IsDomain(err) {
		return err
	}
	return fmt.Errorf("%w: %v", models.ErrStorage, err)
}

func (l *RetryingLedger) InsertWithLimit(ctx context.Context, rec models.VoteRecord, maxVotes int) (bool, error) {
	var applied bool
	err := l.do(ctx, func() (e error) { applied, e = l.inner.InsertWithLimit(ctx, rec, maxVotes); return })
	return applied, err
}

func (l *RetryingLedger) Delete(ctx context.Context, pollID, voterID string, optionIdx int) (bool, error) {
	var removed bool
	err := l.do(ctx, func() (e error) { removed, e = l.inner.Delete(ctx, pollID, voterID, optionIdx); return })
	return removed, err
}

func (l *RetryingLedger) ListByVoter(ctx context.Context, pollID, voterID string) ([]models.VoteRecord, error) {
	var out []models.VoteRecord
	err := l.do(ctx, func() (e error) { out, e = l.inner.ListByVoter(ctx, pollID, voterID); return })
	return out, err
}

func (l *RetryingLedger) ListByPoll(ctx context.Context, pollID string) ([]models.VoteRecord, error) {
	var out []models.VoteRecord
	err := l.do(ctx, func() (e error) { out, e = l.inner.ListByPoll(ctx, pollID); return })
	return out, err
}

func (l *RetryingLedger) CountByOption(ctx context.Context, pollID string, optionIdx int) (int64, error) {
	var n int64
	err := l.do(ctx, func() (e error) { n, e = l.inner.CountByOption(ctx, pollID, optionIdx); return })
	return n, err
}

func (l *RetryingLedger) DeleteByPoll(ctx context.Context, pollID string) error {
	return l.do(ctx, func() error { return l.inner.DeleteByPoll(ctx, pollID) })
}
