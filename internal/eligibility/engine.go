// Package eligibility decides, per vote attempt, whether a voter may cast a
// vote and the numeric weight the vote carries, based on role membership.
package eligibility

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pollboard/backend/internal/models"
)

// RoleProvider resolves a guild member's role ids. The Discord gateway
// process implements this; tests use StaticRoles.
type RoleProvider interface {
	MemberRoles(ctx context.Context, guildID, userID string) ([]string, error)
}

// PremiumStore answers whether a user has the premium unlock entitlement
// granted via the voting-site webhook.
type PremiumStore interface {
	IsUnlocked(ctx context.Context, userID string) (bool, error)
}

// Decision is the outcome of one eligibility check.
type Decision struct {
	Eligible bool
	Weight   int
	Reason   error // models.ErrIneligible when Eligible is false
}

// Engine gates vote attempts and computes vote weights.
type Engine struct {
	roles   RoleProvider
	premium PremiumStore
	logger  *zap.Logger
}

// NewEngine creates an eligibility engine.
func NewEngine(roles RoleProvider, premium PremiumStore, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{roles: roles, premium: premium, logger: logger}
}

// Check resolves the voter's roles once and applies the poll's gate and
// weighting rules. The minimum-votes setting is advisory and never gates a
// cast; only the maximum is enforced, by the ledger.
func (e *Engine) Check(ctx context.Context, poll *models.Poll, voterID string) (Decision, error) {
	roles, err := e.roles.MemberRoles(ctx, poll.GuildID, voterID)
	if err != nil {
		return Decision{}, fmt.Errorf("resolve member roles: %w", err)
	}
	held := make(map[string]bool, len(roles))
	for _, r := range roles {
		held[r] = true
	}

	if len(poll.Settings.AllowedRoleIDs) > 0 {
		permitted := false
		for _, r := range poll.Settings.AllowedRoleIDs {
			if held[r] {
				permitted = true
				break
			}
		}
		if !permitted {
			return Decision{Eligible: false, Reason: models.ErrIneligible}, nil
		}
	}

	weight := 1
	for role, w := range poll.Settings.VoteWeightsByRole {
		if held[role] && w > weight {
			weight = w
		}
	}
	return Decision{Eligible: true, Weight: weight}, nil
}

// IsPremiumUnlocked reports whether the user holds the premium entitlement.
func (e *Engine) IsPremiumUnlocked(ctx context.Context, userID string) (bool, error) {
	if e.premium == nil {
		return false, nil
	}
	return e.premium.IsUnlocked(ctx, userID)
}

// StaticRoles is a RoleProvider backed by a fixed guild -> user -> roles map.
// The bot process uses it as a per-request cache; tests seed it directly.
type StaticRoles map[string]map[string][]string

// MemberRoles returns the seeded roles for the member, or none.
func (s StaticRoles) MemberRoles(_ context.Context, guildID, userID string) ([]string, error) {
	return s[guildID][userID], nil
}
