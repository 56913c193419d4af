package session

import "errors"

// Domain errors returned by the session App. Callers classify them with errors.Is.
var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrPlayerNotFound   = errors.New("player not found in session")
	ErrNoActiveRound    = errors.New("no active round")
	ErrPlayerNotInRound = errors.New("player not found in round")
	ErrNoVotes          = errors.New("no votes placed")
	ErrInvalidEstimate  = errors.New("invalid estimate")
	ErrInvalidPlayer    = errors.New("invalid player")
)

// ErrStore marks failures of the underlying session store. It is an
// infrastructure error, never a result of the caller's input.
var ErrStore = errors.New("session store failure")

// IsDomainError reports whether err is one of the recoverable domain errors
// above rather than an infrastructure failure.
func IsDomainError(err error) bool {
	switch {
	case errors.Is(err, ErrSessionNotFound),
		errors.Is(err, ErrPlayerNotFound),
		errors.Is(err, ErrNoActiveRound),
		errors.Is(err, ErrPlayerNotInRound),
		errors.Is(err, ErrNoVotes),
		errors.Is(err, ErrInvalidEstimate),
		errors.Is(err, ErrInvalidPlayer):
		return true
	default:
		return false
	}
}
