package polls

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pollboard/backend/internal/models"
)

// MemoryRepository is an in-process Repository used by tests and local runs
// without PostgreSQL.
type MemoryRepository struct {
	mu    sync.RWMutex
	polls map[string]*models.Poll
}

// NewMemoryRepository creates an empty in-memory poll store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{polls: make(map[string]*models.Poll)}
}

// Save stores a copy of the poll.
func (r *MemoryRepository) Save(_ context.Context, p *models.Poll) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := clonePoll(p)
	r.polls[p.ID] = cp
	return nil
}

// GetByID returns a copy of the poll, or models.ErrNotFound.
func (r *MemoryRepository) GetByID(_ context.Context, id string) (*models.Poll, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.polls[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return clonePoll(p), nil
}

// ListByGuild returns a guild's polls, newest first.
func (r *MemoryRepository) ListByGuild(_ context.Context, guildID string, limit, offset int) ([]*models.Poll, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.Poll
	for _, p := range r.polls {
		if p.GuildID == guildID {
			out = append(out, clonePoll(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// UpdateSettings replaces the settings of an open poll. Closed polls reject
// the write so a patch racing a close cannot land.
func (r *MemoryRepository) UpdateSettings(_ context.Context, id string, settings models.Settings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.polls[id]
	if !ok || !p.Active {
		return models.ErrInvalidState
	}
	p.Settings = settings
	return nil
}

// SetClosed marks the poll inactive.
func (r *MemoryRepository) SetClosed(_ context.Context, id string, closedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.polls[id]
	if !ok || !p.Active {
		return models.ErrInvalidState
	}
	p.Active = false
	t := closedAt
	p.ClosedAt = &t
	return nil
}

// SetReopened flips a closed poll back to active once.
func (r *MemoryRepository) SetReopened(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.polls[id]
	if !ok || p.Active || p.Reopened {
		return models.ErrInvalidState
	}
	p.Active = true
	p.Reopened = true
	p.ClosedAt = nil
	return nil
}

// Delete removes the poll.
func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.polls[id]; !ok {
		return models.ErrNotFound
	}
	delete(r.polls, id)
	return nil
}

// DeleteClosedBefore purges polls closed before the cutoff.
func (r *MemoryRepository) DeleteClosedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, p := range r.polls {
		if !p.Active && p.ClosedAt != nil && p.ClosedAt.Before(cutoff) {
			delete(r.polls, id)
			n++
		}
	}
	return n, nil
}

func clonePoll(p *models.Poll) *models.Poll {
	cp := *p
	cp.Options = append([]models.Option(nil), p.Options...)
	cp.Settings.AllowedRoleIDs = append([]string(nil), p.Settings.AllowedRoleIDs...)
	if p.Settings.VoteWeightsByRole != nil {
		cp.Settings.VoteWeightsByRole = make(map[string]int, len(p.Settings.VoteWeightsByRole))
		for k, v := range p.Settings.VoteWeightsByRole {
			cp.Settings.VoteWeightsByRole[k] = v
		}
	}
	if p.ClosedAt != nil {
		t := *p.ClosedAt
		cp.ClosedAt = &t
	}
	return &cp
}
