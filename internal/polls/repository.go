package polls

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pollboard/backend/internal/models"
)

// Repository is the durable store of polls, their options and settings.
// Votes are never embedded here; the ledger owns them.
type Repository interface {
	Save(ctx context.Context, poll *models.Poll) error
	GetByID(ctx context.Context, id string) (*models.Poll, error)
	ListByGuild(ctx context.Context, guildID string, limit, offset int) ([]*models.Poll, error)
	UpdateSettings(ctx context.Context, id string, settings models.Settings) error
	SetClosed(ctx context.Context, id string, closedAt time.Time) error
	SetReopened(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	DeleteClosedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// PostgresRepository implements Repository on a pgx pool.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a poll repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Save inserts the poll row and its option rows in one transaction. Either
// both persist or neither does.
func (r *PostgresRepository) Save(ctx context.Context, p *models.Poll) error {
	settings, err := json.Marshal(p.Settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	const insertPoll = `INSERT INTO polls (id, guild_id, channel_id, creator_id, title, description, settings, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, $8)`
	if _, err := tx.Exec(ctx, insertPoll,
		p.ID, p.GuildID, p.ChannelID, p.CreatorID, p.Title, p.Description, settings, p.CreatedAt); err != nil {
		return fmt.Errorf("insert poll: %w", err)
	}

	const insertOption = `INSERT INTO poll_options (poll_id, idx, label) VALUES ($1, $2, $3)`
	for _, opt := range p.Options {
		if _, err := tx.Exec(ctx, insertOption, p.ID, opt.Index, opt.Label); err != nil {
			return fmt.Errorf("insert option %d: %w", opt.Index, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GetByID returns a poll with its ordered options, or models.ErrNotFound.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Poll, error) {
	const query = `SELECT id, guild_id, channel_id, creator_id, title, description, settings, active, reopened, created_at, closed_at
		FROM polls WHERE id = $1`
	p, err := scanPoll(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("get poll: %w", err)
	}

	const optQuery = `SELECT idx, label FROM poll_options WHERE poll_id = $1 ORDER BY idx`
	rows, err := r.pool.Query(ctx, optQuery, id)
	if err != nil {
		return nil, fmt.Errorf("get options: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var opt models.Option
		if err := rows.Scan(&opt.Index, &opt.Label); err != nil {
			return nil, fmt.Errorf("scan option: %w", err)
		}
		p.Options = append(p.Options, opt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate options: %w", err)
	}
	return p, nil
}

// ListByGuild returns a guild's polls, newest first, without option lists.
func (r *PostgresRepository) ListByGuild(ctx context.Context, guildID string, limit, offset int) ([]*models.Poll, error) {
	const query = `SELECT id, guild_id, channel_id, creator_id, title, description, settings, active, reopened, created_at, closed_at
		FROM polls WHERE guild_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, guildID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list polls: %w", err)
	}
	defer rows.Close()

	var polls []*models.Poll
	for rows.Next() {
		p, err := scanPoll(rows)
		if err != nil {
			return nil, fmt.Errorf("scan poll: %w", err)
		}
		polls = append(polls, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate polls: %w", err)
	}
	return polls, nil
}

// UpdateSettings replaces the settings JSON of an open poll. The active
// guard keeps a patch racing a concurrent close from landing on a closed
// poll.
func (r *PostgresRepository) UpdateSettings(ctx context.Context, id string, settings models.Settings) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	tag, err := r.pool.Exec(ctx, `UPDATE polls SET settings = $2 WHERE id = $1 AND active`, id, raw)
	if err != nil {
		return fmt.Errorf("update settings: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrInvalidState
	}
	return nil
}

// SetClosed marks the poll inactive. Only an active poll transitions.
func (r *PostgresRepository) SetClosed(ctx context.Context, id string, closedAt time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE polls SET active = FALSE, closed_at = $2 WHERE id = $1 AND active`, id, closedAt)
	if err != nil {
		return fmt.Errorf("close poll: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrInvalidState
	}
	return nil
}

// SetReopened flips a closed poll back to active once. The reopened flag
// guards against a second transition.
func (r *PostgresRepository) SetReopened(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE polls SET active = TRUE, reopened = TRUE, closed_at = NULL WHERE id = $1 AND NOT active AND NOT reopened`, id)
	if err != nil {
		return fmt.Errorf("reopen poll: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrInvalidState
	}
	return nil
}

// Delete removes the poll row; options and vote records cascade.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM polls WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete poll: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// DeleteClosedBefore purges polls closed before the cutoff. Used by the
// retention sweep.
func (r *PostgresRepository) DeleteClosedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM polls WHERE NOT active AND closed_at IS NOT NULL AND closed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("retention delete: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanPoll(row pgx.Row) (*models.Poll, error) {
	var (
		p        models.Poll
		settings []byte
	)
	if err := row.Scan(&p.ID, &p.GuildID, &p.ChannelID, &p.CreatorID, &p.Title, &p.Description,
		&settings, &p.Active, &p.Reopened, &p.CreatedAt, &p.ClosedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(settings, &p.Settings); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}
	return &p, nil
}
