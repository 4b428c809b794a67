package votes

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pollboard/backend/internal/eligibility"
	"github.com/pollboard/backend/internal/models"
)

// PollGetter loads the poll a vote targets.
type PollGetter interface {
	GetByID(ctx context.Context, id string) (*models.Poll, error)
}

// Checker gates vote attempts; implemented by eligibility.Engine.
type Checker interface {
	Check(ctx context.Context, poll *models.Poll, voterID string) (eligibility.Decision, error)
}

// Publisher fans out poll-state-changed events. Delivery is best effort;
// failures are logged by the implementation, never surfaced to the voter.
type Publisher interface {
	Publish(pollID, event string, payload any)
}

// CastResult is what the command layer renders after a cast or retract.
type CastResult struct {
	PollID      string `json:"poll_id"`
	OptionIndex int    `json:"option_index"`
	OptionLabel string `json:"option_label"`
	Count       int64  `json:"count"`
	Weight      int    `json:"weight,omitempty"`
	Applied     bool   `json:"applied"`
}

// Service coordinates eligibility, the ledger and event fanout for votes.
type Service struct {
	polls    PollGetter
	ledger   Ledger
	checker  Checker
	events   Publisher
	logger   *zap.Logger
	now      func() time.Time
}

// NewService creates a vote service.
func NewService(polls PollGetter, ledger Ledger, checker Checker, events Publisher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{polls: polls, ledger: ledger, checker: checker, events: events, logger: logger, now: time.Now}
}

// Cast records a vote for one option. Re-casting an already-held option is an
// idempotent no-op. The updated per-option count is returned either way.
func (s *Service) Cast(ctx context.Context, pollID, voterID string, optionIdx int) (CastResult, error) {
	poll, err := s.polls.GetByID(ctx, pollID)
	if err != nil {
		return CastResult{}, err
	}
	if !poll.Active {
		return CastResult{}, models.ErrPollClosed
	}
	if !poll.HasOption(optionIdx) {
		return CastResult{}, models.ErrOptionNotFound
	}

	decision, err := s.checker.Check(ctx, poll, voterID)
	if err != nil {
		return CastResult{}, fmt.Errorf("eligibility check: %w", err)
	}
	if !decision.Eligible {
		return CastResult{}, decision.Reason
	}

	rec := models.VoteRecord{
		PollID:      pollID,
		VoterID:     voterID,
		OptionIndex: optionIdx,
		Weight:      decision.Weight,
		CastAt:      s.now().UTC(),
	}
	inserted, err := s.ledger.InsertWithLimit(ctx, rec, poll.Settings.MaxVotesPerUser)
	if err != nil {
		return CastResult{}, err
	}

	count, err := s.ledger.CountByOption(ctx, pollID, optionIdx)
	if err != nil {
		return CastResult{}, err
	}
	result := CastResult{
		PollID:      pollID,
		OptionIndex: optionIdx,
		OptionLabel: poll.OptionLabel(optionIdx),
		Count:       count,
		Weight:      decision.Weight,
		Applied:     inserted,
	}
	if inserted && s.events != nil {
		// The ledger write is the durable fact of record; notification
		// failure is the publisher's to log, not ours to roll back.
		s.events.Publish(pollID, "vote_cast", result)
	}
	return result, nil
}

// Retract removes the voter's record for one option. Absent records are an
// idempotent no-op.
func (s *Service) Retract(ctx context.Context, pollID, voterID string, optionIdx int) (CastResult, error) {
	poll, err := s.polls.GetByID(ctx, pollID)
	if err != nil {
		return CastResult{}, err
	}
	if !poll.Active {
		return CastResult{}, models.ErrPollClosed
	}
	if !poll.HasOption(optionIdx) {
		return CastResult{}, models.ErrOptionNotFound
	}

	removed, err := s.ledger.Delete(ctx, pollID, voterID, optionIdx)
	if err != nil {
		return CastResult{}, err
	}
	count, err := s.ledger.CountByOption(ctx, pollID, optionIdx)
	if err != nil {
		return CastResult{}, err
	}
	result := CastResult{
		PollID:      pollID,
		OptionIndex: optionIdx,
		OptionLabel: poll.OptionLabel(optionIdx),
		Count:       count,
		Applied:     removed,
	}
	if removed && s.events != nil {
		s.events.Publish(pollID, "vote_retracted", result)
	}
	return result, nil
}

// ListForVoter returns the set of options the voter currently holds.
func (s *Service) ListForVoter(ctx context.Context, pollID, voterID string) ([]models.VoteRecord, error) {
	if _, err := s.polls.GetByID(ctx, pollID); err != nil {
		return nil, err
	}
	return s.ledger.ListByVoter(ctx, pollID, voterID)
}
