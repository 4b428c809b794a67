package models

import "time"

// VoteRecord is one voter's selection of one option within one poll.
// (PollID, VoterID, OptionIndex) is the composite identity; a voter holds at
// most one record per option. Weight is snapshotted at cast time.
type VoteRecord struct {
	PollID      string    `json:"poll_id"`
	VoterID     string    `json:"voter_id"`
	OptionIndex int       `json:"option_index"`
	Weight      int       `json:"weight"`
	CastAt      time.Time `json:"cast_at"`
}

// OptionTally is the aggregate for one option.
type OptionTally struct {
	Index       int    `json:"index"`
	Label       string `json:"label"`
	Count       int64  `json:"count"`
	WeightedSum int64  `json:"weighted_sum"`
}

// TallyResult is the derived per-option aggregate, ordered exactly like the
// poll's declared options (zero-vote options included). Never persisted.
type TallyResult struct {
	PollID     string        `json:"poll_id"`
	Options    []OptionTally `json:"options"`
	TotalVotes int64         `json:"total_votes"`
	ComputedAt time.Time     `json:"computed_at"`
}
