package votes

import (
	"context"
	"sort"
	"sync"

	"github.com/pollboard/backend/internal/models"
)

// MemoryLedger is an in-process Ledger used by tests and local runs. A single
// mutex makes the limit-check-plus-insert atomic.
type MemoryLedger struct {
	mu sync.Mutex
	// pollID -> voterID -> optionIdx -> record
	records map[string]map[string]map[int]models.VoteRecord
}

// NewMemoryLedger creates an empty in-memory vote ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{records: make(map[string]map[string]map[int]models.VoteRecord)}
}

// InsertWithLimit inserts the record under the voter's vote-limit, atomically.
func (l *MemoryLedger) InsertWithLimit(_ context.Context, rec models.VoteRecord, maxVotes int) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	voters, ok := l.records[rec.PollID]
	if !ok {
		voters = make(map[string]map[int]models.VoteRecord)
		l.records[rec.PollID] = voters
	}
	held, ok := voters[rec.VoterID]
	if !ok {
		held = make(map[int]models.VoteRecord)
		voters[rec.VoterID] = held
	}
	if _, ok := held[rec.OptionIndex]; ok {
		return false, nil
	}
	if len(held) >= maxVotes {
		return false, models.ErrVoteLimitExceeded
	}
	held[rec.OptionIndex] = rec
	return true, nil
}

// Delete removes one vote record; absent records are a no-op.
func (l *MemoryLedger) Delete(_ context.Context, pollID, voterID string, optionIdx int) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	held := l.records[pollID][voterID]
	if _, ok := held[optionIdx]; !ok {
		return false, nil
	}
	delete(held, optionIdx)
	return true, nil
}

// ListByVoter returns the voter's records for a poll, in option order.
func (l *MemoryLedger) ListByVoter(_ context.Context, pollID, voterID string) ([]models.VoteRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.VoteRecord
	for _, rec := range l.records[pollID][voterID] {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OptionIndex < out[j].OptionIndex })
	return out, nil
}

// ListByPoll returns every record for a poll ordered by option then cast time.
func (l *MemoryLedger) ListByPoll(_ context.Context, pollID string) ([]models.VoteRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.VoteRecord
	for _, held := range l.records[pollID] {
		for _, rec := range held {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OptionIndex != out[j].OptionIndex {
			return out[i].OptionIndex < out[j].OptionIndex
		}
		return out[i].CastAt.Before(out[j].CastAt)
	})
	return out, nil
}

// CountByOption returns the number of votes an option currently holds.
func (l *MemoryLedger) CountByOption(_ context.Context, pollID string, optionIdx int) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var n int64
	for _, held := range l.records[pollID] {
		if _, ok := held[optionIdx]; ok {
			n++
		}
	}
	return n, nil
}

// DeleteByPoll removes the poll's entire ledger partition.
func (l *MemoryLedger) DeleteByPoll(_ context.Context, pollID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.records, pollID)
	return nil
}
