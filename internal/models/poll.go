package models

import "time"

// Limits on poll content, matching what Discord renders.
const (
	MaxTitleLen       = 256
	MaxDescriptionLen = 4096
	MaxOptionLen      = 100
	MinOptions        = 2
	MaxOptions        = 25
	MaxVotesCap       = 25
	MaxWeight         = 100
)

// Settings holds per-poll behavior flags and voting constraints.
type Settings struct {
	Public            bool           `json:"public"`
	AllowThread       bool           `json:"allow_thread"`
	AllowClose        bool           `json:"allow_close"`
	AllowExports      bool           `json:"allow_exports"`
	MaxVotesPerUser   int            `json:"max_votes_per_user"`
	MinVotesPerUser   int            `json:"min_votes_per_user"`
	AllowedRoleIDs    []string       `json:"allowed_role_ids,omitempty"`
	VoteWeightsByRole map[string]int `json:"vote_weights_by_role,omitempty"`
}

// DefaultSettings returns the settings applied when a creation request omits them.
func DefaultSettings() Settings {
	return Settings{
		Public:          true,
		AllowThread:     true,
		AllowClose:      true,
		AllowExports:    true,
		MaxVotesPerUser: 1,
		MinVotesPerUser: 1,
	}
}

// Option is one entry of a poll's ordered option list. The index is the
// stable identifier voters reference; labels are display text.
type Option struct {
	Index int    `json:"index"`
	Label string `json:"label"`
}

// Poll is a single voting question hosted by a Discord message. The ID is the
// hosting message's snowflake and is immutable, as are the provenance fields.
type Poll struct {
	ID          string     `json:"id"`
	GuildID     string     `json:"guild_id"`
	ChannelID   string     `json:"channel_id"`
	CreatorID   string     `json:"creator_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Options     []Option   `json:"options"`
	Settings    Settings   `json:"settings"`
	Active      bool       `json:"active"`
	Reopened    bool       `json:"reopened"`
	CreatedAt   time.Time  `json:"created_at"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
}

// HasOption reports whether idx refers to one of the poll's options.
func (p *Poll) HasOption(idx int) bool {
	return idx >= 0 && idx < len(p.Options)
}

// OptionLabel returns the label for idx, or "" when out of range.
func (p *Poll) OptionLabel(idx int) string {
	if !p.HasOption(idx) {
		return ""
	}
	return p.Options[idx].Label
}
