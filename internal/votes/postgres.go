package votes

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pollboard/backend/internal/models"
)

// PostgresLedger implements Ledger on a pgx pool. Atomicity of the
// limit-check-plus-insert comes from an advisory transaction lock keyed by
// (pollID, voterID); concurrent casts for the same voter serialize on it
// while different voters and polls proceed independently.
type PostgresLedger struct {
	pool *pgxpool.Pool
}

// NewPostgresLedger creates a vote ledger.
func NewPostgresLedger(pool *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{pool: pool}
}

// InsertWithLimit inserts the record under the voter's vote-limit, atomically.
func (l *PostgresLedger) InsertWithLimit(ctx context.Context, rec models.VoteRecord, maxVotes int) (bool, error) {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, rec.PollID+":"+rec.VoterID); err != nil {
		return false, fmt.Errorf("acquire vote lock: %w", err)
	}

	var exists bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM vote_records WHERE poll_id = $1 AND voter_id = $2 AND option_idx = $3)`,
		rec.PollID, rec.VoterID, rec.OptionIndex).Scan(&exists); err != nil {
		return false, fmt.Errorf("check existing vote: %w", err)
	}
	if exists {
		return false, nil
	}

	var held int
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM vote_records WHERE poll_id = $1 AND voter_id = $2`,
		rec.PollID, rec.VoterID).Scan(&held); err != nil {
		return false, fmt.Errorf("count votes: %w", err)
	}
	if held >= maxVotes {
		return false, models.ErrVoteLimitExceeded
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO vote_records (poll_id, voter_id, option_idx, weight, cast_at) VALUES ($1, $2, $3, $4, $5)`,
		rec.PollID, rec.VoterID, rec.OptionIndex, rec.Weight, rec.CastAt); err != nil {
		return false, fmt.Errorf("insert vote: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

// Delete removes one vote record; absent records are a no-op.
func (l *PostgresLedger) Delete(ctx context.Context, pollID, voterID string, optionIdx int) (bool, error) {
	tag, err := l.pool.Exec(ctx,
		`DELETE FROM vote_records WHERE poll_id = $1 AND voter_id = $2 AND option_idx = $3`,
		pollID, voterID, optionIdx)
	if err != nil {
		return false, fmt.Errorf("delete vote: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListByVoter returns the voter's records for a poll, in option order.
func (l *PostgresLedger) ListByVoter(ctx context.Context, pollID, voterID string) ([]models.VoteRecord, error) {
	return l.list(ctx,
		`SELECT poll_id, voter_id, option_idx, weight, cast_at FROM vote_records
		 WHERE poll_id = $1 AND voter_id = $2 ORDER BY option_idx`, pollID, voterID)
}

// ListByPoll returns every record for a poll ordered by option then cast time,
// the order exports rely on.
func (l *PostgresLedger) ListByPoll(ctx context.Context, pollID string) ([]models.VoteRecord, error) {
	return l.list(ctx,
		`SELECT poll_id, voter_id, option_idx, weight, cast_at FROM vote_records
		 WHERE poll_id = $1 ORDER BY option_idx, cast_at`, pollID)
}

// CountByOption returns the number of votes an option currently holds.
func (l *PostgresLedger) CountByOption(ctx context.Context, pollID string, optionIdx int) (int64, error) {
	var n int64
	err := l.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM vote_records WHERE poll_id = $1 AND option_idx = $2`,
		pollID, optionIdx).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count option votes: %w", err)
	}
	return n, nil
}

// DeleteByPoll removes the poll's entire ledger partition.
func (l *PostgresLedger) DeleteByPoll(ctx context.Context, pollID string) error {
	if _, err := l.pool.Exec(ctx, `DELETE FROM vote_records WHERE poll_id = $1`, pollID); err != nil {
		return fmt.Errorf("delete poll votes: %w", err)
	}
	return nil
}

func (l *PostgresLedger) list(ctx context.Context, query string, args ...any) ([]models.VoteRecord, error) {
	rows, err := l.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list votes: %w", err)
	}
	defer rows.Close()

	var records []models.VoteRecord
	for rows.Next() {
		var rec models.VoteRecord
		if err := rows.Scan(&rec.PollID, &rec.VoterID, &rec.OptionIndex, &rec.Weight, &rec.CastAt); err != nil {
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate votes: %w", err)
	}
	return records, nil
}
