package models

import "errors"

// Typed results crossing component boundaries. Handlers map these to HTTP
// codes with errors.Is; the command layer renders them as user-facing text.
var (
	ErrNotFound          = errors.New("poll not found")
	ErrOptionNotFound    = errors.New("option not found on this poll")
	ErrPollClosed        = errors.New("poll is closed")
	ErrIneligible        = errors.New("voter does not hold a permitted role")
	ErrVoteLimitExceeded = errors.New("vote limit for this poll reached")
	ErrInvalidState      = errors.New("illegal lifecycle transition")
	ErrInvalidSettings   = errors.New("settings violate poll constraints")
	ErrExportUnavailable = errors.New("export is not available for this poll")
	ErrStorage           = errors.New("storage failure")
)

// IsDomain reports whether err carries one of the typed outcomes above.
// Infrastructure failures (connection loss, timeouts) are not domain errors
// and are eligible for retry before surfacing as ErrStorage.
func IsDomain(err error) bool {
	for _, sentinel := range []error{
		ErrNotFound, ErrOptionNotFound, ErrPollClosed, ErrIneligible,
		ErrVoteLimitExceeded, ErrInvalidState, ErrInvalidSettings,
		ErrExportUnavailable,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
