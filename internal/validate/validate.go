// Package validate normalizes and rejects malformed poll creation and
// settings-update payloads before they reach storage. All functions are pure:
// errors are accumulated and returned as a field/message list, never thrown.
package validate

import (
	"encoding/json"
	"fmt"
	"regexp"
	"unicode/utf8"

	"github.com/pollboard/backend/internal/models"
)

var snowflakeRe = regexp.MustCompile(`^\d{17,20}$`)

// Snowflake reports whether s is a platform-issued 17-20 digit id.
func Snowflake(s string) bool {
	return snowflakeRe.MatchString(s)
}

// FieldError describes one violated constraint on one input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// CreateData is the normalized output of a successful Create validation.
type CreateData struct {
	GuildID     string
	ChannelID   string
	CreatorID   string
	Title       string
	Description string
	Options     []string
	Settings    models.Settings
}

// SettingsPatch is a partial settings update. Nil fields were absent from the
// input and leave the current value untouched.
type SettingsPatch struct {
	Public            *bool
	AllowThread       *bool
	AllowClose        *bool
	AllowExports      *bool
	MaxVotesPerUser   *int
	MinVotesPerUser   *int
	AllowedRoleIDs    *[]string
	VoteWeightsByRole *map[string]int
}

// Create validates a raw poll-creation payload. All applicable errors are
// accumulated; a missing or mistyped required field suppresses only the
// follow-up checks for that same field. The cross-field invariant
// min <= max <= len(options) is re-checked by the lifecycle controller.
func Create(input map[string]any) (CreateData, []FieldError) {
	var (
		data CreateData
		errs []FieldError
	)

	data.GuildID = requireSnowflake(input, "guildId", &errs)
	data.ChannelID = requireSnowflake(input, "channelId", &errs)
	data.CreatorID = requireSnowflake(input, "creatorId", &errs)

	if raw, ok := input["title"]; !ok {
		errs = append(errs, FieldError{"title", "is required"})
	} else if s, ok := raw.(string); !ok {
		errs = append(errs, FieldError{"title", "must be a string"})
	} else {
		data.Title = Sanitize(s)
		// limits are in characters, not bytes
		if n := utf8.RuneCountInString(data.Title); n < 1 || n > models.MaxTitleLen {
			errs = append(errs, FieldError{"title", fmt.Sprintf("length must be between 1 and %d", models.MaxTitleLen)})
		}
	}

	if raw, ok := input["description"]; ok {
		if s, ok := raw.(string); !ok {
			errs = append(errs, FieldError{"description", "must be a string"})
		} else {
			data.Description = Sanitize(s)
			if utf8.RuneCountInString(data.Description) > models.MaxDescriptionLen {
				errs = append(errs, FieldError{"description", fmt.Sprintf("length must be at most %d", models.MaxDescriptionLen)})
			}
		}
	}

	data.Options = validateOptions(input, &errs)
	data.Settings = validateSettings(input, &errs)

	if len(errs) > 0 {
		return CreateData{}, errs
	}
	return data, nil
}

// UpdateSettings validates a partial settings patch. Unknown fields are
// ignored, not rejected.
func UpdateSettings(input map[string]any) (SettingsPatch, []FieldError) {
	var (
		patch SettingsPatch
		errs  []FieldError
	)

	patch.Public = optionalBool(input, "public", &errs)
	patch.AllowThread = optionalBool(input, "allowThread", &errs)
	patch.AllowClose = optionalBool(input, "allowClose", &errs)
	patch.AllowExports = optionalBool(input, "allowExports", &errs)
	patch.MaxVotesPerUser = optionalVoteBound(input, "maxVotes", &errs)
	patch.MinVotesPerUser = optionalVoteBound(input, "minVotes", &errs)

	if raw, ok := input["allowedRoles"]; ok {
		if roles, ok := snowflakeList(raw); ok {
			patch.AllowedRoleIDs = &roles
		} else {
			errs = append(errs, FieldError{"allowedRoles", "must be an array of snowflake ids"})
		}
	}
	if raw, ok := input["voteWeights"]; ok {
		if weights, ok := weightMap(raw); ok {
			patch.VoteWeightsByRole = &weights
		} else {
			errs = append(errs, FieldError{"voteWeights", fmt.Sprintf("must map snowflake ids to integers between 1 and %d", models.MaxWeight)})
		}
	}

	if len(errs) > 0 {
		return SettingsPatch{}, errs
	}
	return patch, nil
}

// Apply merges the patch onto s and returns the result.
func (p SettingsPatch) Apply(s models.Settings) models.Settings {
	if p.Public != nil {
		s.Public = *p.Public
	}
	if p.AllowThread != nil {
		s.AllowThread = *p.AllowThread
	}
	if p.AllowClose != nil {
		s.AllowClose = *p.AllowClose
	}
	if p.AllowExports != nil {
		s.AllowExports = *p.AllowExports
	}
	if p.MaxVotesPerUser != nil {
		s.MaxVotesPerUser = *p.MaxVotesPerUser
	}
	if p.MinVotesPerUser != nil {
		s.MinVotesPerUser = *p.MinVotesPerUser
	}
	if p.AllowedRoleIDs != nil {
		s.AllowedRoleIDs = *p.AllowedRoleIDs
	}
	if p.VoteWeightsByRole != nil {
		s.VoteWeightsByRole = *p.VoteWeightsByRole
	}
	return s
}

func validateOptions(input map[string]any, errs *[]FieldError) []string {
	raw, ok := input["options"]
	if !ok {
		*errs = append(*errs, FieldError{"options", "is required"})
		return nil
	}
	items, ok := anySlice(raw)
	if !ok {
		*errs = append(*errs, FieldError{"options", "must be an array"})
		return nil
	}

	var options []string
	seen := make(map[string]bool)
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			*errs = append(*errs, FieldError{"options", "entries must be strings"})
			return nil
		}
		s = Sanitize(s)
		if s == "" {
			continue // blanks dropped, not rejected
		}
		if utf8.RuneCountInString(s) > models.MaxOptionLen {
			*errs = append(*errs, FieldError{"options", fmt.Sprintf("entry %q exceeds %d characters", truncateRunes(s, models.MaxOptionLen), models.MaxOptionLen)})
			continue
		}
		if seen[s] {
			*errs = append(*errs, FieldError{"options", fmt.Sprintf("duplicate entry %q", s)})
			continue
		}
		seen[s] = true
		options = append(options, s)
	}
	if n := len(options); n < models.MinOptions || n > models.MaxOptions {
		*errs = append(*errs, FieldError{"options", fmt.Sprintf("need between %d and %d distinct non-blank entries, got %d", models.MinOptions, models.MaxOptions, n)})
	}
	return options
}

func validateSettings(input map[string]any, errs *[]FieldError) models.Settings {
	settings := models.DefaultSettings()
	raw, ok := input["settings"]
	if !ok {
		return settings
	}
	m, ok := raw.(map[string]any)
	if !ok {
		*errs = append(*errs, FieldError{"settings", "must be an object"})
		return settings
	}

	patch, patchErrs := UpdateSettings(m)
	*errs = append(*errs, patchErrs...)
	settings = patch.Apply(settings)

	// min <= max is checked here when both bounds are known; the full
	// invariant against the option count belongs to the lifecycle layer.
	if settings.MinVotesPerUser > settings.MaxVotesPerUser {
		*errs = append(*errs, FieldError{"settings.minVotes", "must not exceed maxVotes"})
	}
	return settings
}

func requireSnowflake(input map[string]any, field string, errs *[]FieldError) string {
	raw, ok := input[field]
	if !ok {
		*errs = append(*errs, FieldError{field, "is required"})
		return ""
	}
	s, ok := raw.(string)
	if !ok {
		*errs = append(*errs, FieldError{field, "must be a string"})
		return ""
	}
	if !snowflakeRe.MatchString(s) {
		*errs = append(*errs, FieldError{field, "must be a 17-20 digit snowflake id"})
		return ""
	}
	return s
}

func optionalBool(input map[string]any, field string, errs *[]FieldError) *bool {
	raw, ok := input[field]
	if !ok {
		return nil
	}
	b, ok := raw.(bool)
	if !ok {
		*errs = append(*errs, FieldError{field, "must be a boolean"})
		return nil
	}
	return &b
}

func optionalVoteBound(input map[string]any, field string, errs *[]FieldError) *int {
	raw, ok := input[field]
	if !ok {
		return nil
	}
	n, ok := asInt(raw)
	if !ok || n < 1 || n > models.MaxVotesCap {
		*errs = append(*errs, FieldError{field, fmt.Sprintf("must be an integer between 1 and %d", models.MaxVotesCap)})
		return nil
	}
	return &n
}

func snowflakeList(raw any) ([]string, bool) {
	items, ok := anySlice(raw)
	if !ok {
		return nil, false
	}
	roles := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok || !snowflakeRe.MatchString(s) {
			return nil, false
		}
		roles = append(roles, s)
	}
	return roles, true
}

func weightMap(raw any) (map[string]int, bool) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, false
	}
	weights := make(map[string]int, len(m))
	for role, v := range m {
		n, ok := asInt(v)
		if !ok || !snowflakeRe.MatchString(role) || n < 1 || n > models.MaxWeight {
			return nil, false
		}
		weights[role] = n
	}
	return weights, true
}

// truncateRunes shortens s to at most n characters without splitting a rune.
func truncateRunes(s string, n int) string {
	for i := range s {
		if n == 0 {
			return s[:i]
		}
		n--
	}
	return s
}

func anySlice(raw any) ([]any, bool) {
	switch v := raw.(type) {
	case []any:
		return v, true
	case []string:
		items := make([]any, len(v))
		for i, s := range v {
			items[i] = s
		}
		return items, true
	}
	return nil, false
}

// asInt accepts the numeric shapes a decoded JSON payload can carry.
// Non-integral floats are rejected.
func asInt(raw any) (int, bool) {
	switch v := raw.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v != float64(int(v)) {
			return 0, false
		}
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return int(n), true
	}
	return 0, false
}
