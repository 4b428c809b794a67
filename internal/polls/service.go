// Package polls owns the poll store and the lifecycle state machine: a poll
// is Open from creation until Close, which is terminal except for a single
// policy-gated reopen.
package polls

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pollboard/backend/internal/models"
	"github.com/pollboard/backend/internal/tally"
	"github.com/pollboard/backend/internal/validate"
	"github.com/pollboard/backend/internal/votes"
)

// Publisher fans out poll-state-changed events, best effort.
type Publisher interface {
	Publish(pollID, event string, payload any)
}

// ExportEnqueuer schedules the export upload job produced on close.
type ExportEnqueuer interface {
	EnqueueExport(ctx context.Context, pollID string) error
}

// Service is the lifecycle controller. All poll mutations outside the vote
// ledger go through it; illegal transitions return models.ErrInvalidState and
// never partially apply.
type Service struct {
	repo        Repository
	ledger      votes.Ledger
	tallies     *tally.Engine
	counter     Counter
	events      Publisher
	exports     ExportEnqueuer
	allowReopen bool
	logger      *zap.Logger
	now         func() time.Time
}

// NewService creates the lifecycle controller. events, counter and exports
// may be nil (tests, worker binary).
func NewService(repo Repository, ledger votes.Ledger, tallies *tally.Engine, counter Counter,
	events Publisher, exports ExportEnqueuer, allowReopen bool, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:        repo,
		ledger:      ledger,
		tallies:     tallies,
		counter:     counter,
		events:      events,
		exports:     exports,
		allowReopen: allowReopen,
		logger:      logger,
		now:         time.Now,
	}
}

// CreatedEvent is the payload emitted on poll creation.
type CreatedEvent struct {
	PollID  string          `json:"poll_id"`
	Title   string          `json:"title"`
	Options []models.Option `json:"options"`
}

// ClosedEvent is the payload emitted on close, carrying the final tally the
// embed layer needs to re-render.
type ClosedEvent struct {
	PollID string             `json:"poll_id"`
	Title  string             `json:"title"`
	Tally  models.TallyResult `json:"tally"`
}

// Create validates the raw payload and provisions the poll row plus its empty
// ledger partition atomically. id is the hosting message's snowflake.
func (s *Service) Create(ctx context.Context, id string, input map[string]any) (*models.Poll, []validate.FieldError, error) {
	if !validate.Snowflake(id) {
		return nil, []validate.FieldError{{Field: "id", Message: "must be a 17-20 digit snowflake id"}}, nil
	}
	data, fieldErrs := validate.Create(input)
	if len(fieldErrs) > 0 {
		return nil, fieldErrs, nil
	}
	if err := checkVoteBounds(data.Settings, len(data.Options)); err != nil {
		return nil, nil, err
	}

	poll := &models.Poll{
		ID:          id,
		GuildID:     data.GuildID,
		ChannelID:   data.ChannelID,
		CreatorID:   data.CreatorID,
		Title:       data.Title,
		Description: data.Description,
		Settings:    data.Settings,
		Active:      true,
		CreatedAt:   s.now().UTC(),
	}
	for i, label := range data.Options {
		poll.Options = append(poll.Options, models.Option{Index: i, Label: label})
	}

	if err := s.repo.Save(ctx, poll); err != nil {
		return nil, nil, fmt.Errorf("save poll: %w", err)
	}

	if s.counter != nil {
		if _, err := s.counter.Inc(ctx, "polls_created"); err != nil {
			s.logger.Warn("polls_created counter increment failed", zap.Error(err))
		}
	}
	s.publish(poll.ID, "poll_created", CreatedEvent{PollID: poll.ID, Title: poll.Title, Options: poll.Options})
	s.logger.Info("poll created",
		zap.String("poll_id", poll.ID),
		zap.String("guild_id", poll.GuildID),
		zap.Int("options", len(poll.Options)))
	return poll, nil, nil
}

// Get returns the poll by id.
func (s *Service) Get(ctx context.Context, id string) (*models.Poll, error) {
	return s.repo.GetByID(ctx, id)
}

// ListByGuild returns a guild's polls, newest first.
func (s *Service) ListByGuild(ctx context.Context, guildID string, limit, offset int) ([]*models.Poll, error) {
	return s.repo.ListByGuild(ctx, guildID, limit, offset)
}

// UpdateSettings applies a partial settings patch to an open poll, re-checking
// the min <= max <= |options| invariant after the merge.
func (s *Service) UpdateSettings(ctx context.Context, id string, input map[string]any) (*models.Poll, []validate.FieldError, error) {
	poll, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if !poll.Active {
		return nil, nil, models.ErrInvalidState
	}

	patch, fieldErrs := validate.UpdateSettings(input)
	if len(fieldErrs) > 0 {
		return nil, fieldErrs, nil
	}
	merged := patch.Apply(poll.Settings)
	if err := checkVoteBounds(merged, len(poll.Options)); err != nil {
		return nil, nil, err
	}

	if err := s.repo.UpdateSettings(ctx, id, merged); err != nil {
		return nil, nil, err
	}
	poll.Settings = merged
	s.publish(id, "poll_updated", CreatedEvent{PollID: id, Title: poll.Title, Options: poll.Options})
	return poll, nil, nil
}

// Close freezes the poll: further casts and retracts fail with ErrPollClosed,
// the final tally is computed and the export (when enabled) becomes
// retrievable. Closing a closed poll is ErrInvalidState.
func (s *Service) Close(ctx context.Context, id string) (*models.Poll, models.TallyResult, error) {
	poll, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, models.TallyResult{}, err
	}
	closedAt := s.now().UTC()
	if err := s.repo.SetClosed(ctx, id, closedAt); err != nil {
		return nil, models.TallyResult{}, err
	}
	poll.Active = false
	poll.ClosedAt = &closedAt

	final, err := s.tallies.Compute(ctx, id)
	if err != nil {
		return nil, models.TallyResult{}, fmt.Errorf("final tally: %w", err)
	}

	s.publish(id, "poll_closed", ClosedEvent{PollID: id, Title: poll.Title, Tally: final})
	if poll.Settings.AllowExports && s.exports != nil {
		if err := s.exports.EnqueueExport(ctx, id); err != nil {
			s.logger.Warn("export enqueue failed", zap.Error(err), zap.String("poll_id", id))
		}
	}
	s.logger.Info("poll closed", zap.String("poll_id", id), zap.Int64("total_votes", final.TotalVotes))
	return poll, final, nil
}

// Reopen performs the single permitted Closed -> Open transition. It requires
// the instance-level policy knob, allowClose on the poll, and that the poll
// has not been reopened before.
func (s *Service) Reopen(ctx context.Context, id string) (*models.Poll, error) {
	if !s.allowReopen {
		return nil, models.ErrInvalidState
	}
	poll, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !poll.Settings.AllowClose {
		return nil, models.ErrInvalidState
	}
	if err := s.repo.SetReopened(ctx, id); err != nil {
		return nil, err
	}
	poll.Active = true
	poll.Reopened = true
	poll.ClosedAt = nil
	s.publish(id, "poll_reopened", CreatedEvent{PollID: id, Title: poll.Title, Options: poll.Options})
	return poll, nil
}

// Delete removes the poll and its entire ledger partition. Irreversible.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	// Postgres cascades this; the in-memory ledger needs it explicitly.
	if err := s.ledger.DeleteByPoll(ctx, id); err != nil {
		s.logger.Warn("ledger purge after delete failed", zap.Error(err), zap.String("poll_id", id))
	}
	s.publish(id, "poll_deleted", map[string]string{"poll_id": id})
	return nil
}

// Tally computes the current tally for the poll.
func (s *Service) Tally(ctx context.Context, id string) (models.TallyResult, error) {
	return s.tallies.Compute(ctx, id)
}

func (s *Service) publish(pollID, event string, payload any) {
	if s.events != nil {
		s.events.Publish(pollID, event, payload)
	}
}

func checkVoteBounds(settings models.Settings, optionCount int) error {
	if settings.MinVotesPerUser > settings.MaxVotesPerUser || settings.MaxVotesPerUser > optionCount {
		return models.ErrInvalidSettings
	}
	return nil
}
