// Package tally aggregates the vote ledger into per-option counts and
// weighted sums on demand. Results are derived, never persisted.
package tally

import (
	"context"
	"time"

	"github.com/pollboard/backend/internal/models"
)

// PollGetter loads the poll whose ledger is being aggregated.
type PollGetter interface {
	GetByID(ctx context.Context, id string) (*models.Poll, error)
}

// RecordLister streams a poll's ledger rows; implemented by the vote ledger.
type RecordLister interface {
	ListByPoll(ctx context.Context, pollID string) ([]models.VoteRecord, error)
}

// Engine computes tallies. Read-only: it tolerates concurrent ledger writes,
// and a read may miss a vote committed microseconds earlier, but never double
// counts or drops a vote committed before the read started.
type Engine struct {
	polls  PollGetter
	ledger RecordLister
}

// NewEngine creates a tally engine.
func NewEngine(polls PollGetter, ledger RecordLister) *Engine {
	return &Engine{polls: polls, ledger: ledger}
}

// Compute aggregates the poll's ledger. Output order is exactly the poll's
// declared option order, zero-vote options included. Weighted sums use the
// weight snapshotted into each record at cast time.
func (e *Engine) Compute(ctx context.Context, pollID string) (models.TallyResult, error) {
	poll, err := e.polls.GetByID(ctx, pollID)
	if err != nil {
		return models.TallyResult{}, err
	}
	records, err := e.ledger.ListByPoll(ctx, pollID)
	if err != nil {
		return models.TallyResult{}, err
	}
	return ForPoll(poll, records), nil
}

// ForPoll aggregates an already-loaded ledger snapshot for a poll.
func ForPoll(poll *models.Poll, records []models.VoteRecord) models.TallyResult {
	result := models.TallyResult{
		PollID:     poll.ID,
		Options:    make([]models.OptionTally, len(poll.Options)),
		ComputedAt: time.Now().UTC(),
	}
	for i, opt := range poll.Options {
		result.Options[i] = models.OptionTally{Index: opt.Index, Label: opt.Label}
	}
	for _, rec := range records {
		if rec.OptionIndex < 0 || rec.OptionIndex >= len(result.Options) {
			continue // record for an option the poll no longer declares
		}
		entry := &result.Options[rec.OptionIndex]
		entry.Count++
		entry.WeightedSum += int64(rec.Weight)
		result.TotalVotes++
	}
	return result
}
