// Package votes owns the vote ledger: per-user, per-poll vote records and
// the operations that mutate them under the poll's cardinality constraints.
package votes

import (
	"context"

	"github.com/pollboard/backend/internal/models"
)

// Ledger is the durable record of votes. Implementations must make
// InsertWithLimit a single atomic unit scoped to (pollID, voterID): two
// simultaneous casts for one voter can never overshoot maxVotes.
type Ledger interface {
	// InsertWithLimit inserts the record unless the voter already holds it
	// (idempotent no-op, returns false) or already holds maxVotes distinct
	// options (returns models.ErrVoteLimitExceeded).
	InsertWithLimit(ctx context.Context, rec models.VoteRecord, maxVotes int) (bool, error)
	// Delete removes the record if present; idempotent when absent.
	Delete(ctx context.Context, pollID, voterID string, optionIdx int) (bool, error)
	ListByVoter(ctx context.Context, pollID, voterID string) ([]models.VoteRecord, error)
	ListByPoll(ctx context.Context, pollID string) ([]models.VoteRecord, error)
	CountByOption(ctx context.Context, pollID string, optionIdx int) (int64, error)
	DeleteByPoll(ctx context.Context, pollID string) error
}
