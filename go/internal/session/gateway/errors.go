package gateway

import (
	"errors"

	"github.com/mcdev12/planning-poker/go/internal/session"
)

var (
	ErrForbidden    = errors.New("only the dealer can do that")
	ErrUnknownEvent = errors.New("unknown event")
	ErrBadPayload   = errors.New("malformed payload")
	ErrNotJoined    = errors.New("join the session first")
)

// Error codes sent to clients in error events and REST error bodies.
const (
	CodeJoinFailed        = "JOIN_FAILED"
	CodeLeaveFailed       = "LEAVE_FAILED"
	CodeVoteFailed        = "VOTE_FAILED"
	CodeStartRoundFailed  = "START_ROUND_FAILED"
	CodeRevealFailed      = "REVEAL_FAILED"
	CodeCancelRoundFailed = "CANCEL_ROUND_FAILED"
	CodeBadRequest        = "BAD_REQUEST"
	CodeUnknownEvent      = "UNKNOWN_EVENT"
	CodeForbidden         = "FORBIDDEN"
	CodeNotFound          = "NOT_FOUND"
	CodeInternal          = "INTERNAL"
)

var failureCodes = map[EventType]string{
	EventSessionJoin:  CodeJoinFailed,
	EventSessionLeave: CodeLeaveFailed,
	EventVotePlace:    CodeVoteFailed,
	EventRoundStart:   CodeStartRoundFailed,
	EventRoundReveal:  CodeRevealFailed,
	EventRoundCancel:  CodeCancelRoundFailed,
}

// ErrorCode classifies a failed room event for the client.
func ErrorCode(eventType EventType, err error) string {
	switch {
	case errors.Is(err, ErrBadPayload):
		return CodeBadRequest
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	case errors.Is(err, ErrUnknownEvent):
		return CodeUnknownEvent
	}
	if code, ok := failureCodes[eventType]; ok {
		return code
	}
	return CodeInternal
}

// clientMessage hides infrastructure failures from clients.
func clientMessage(err error) string {
	if errors.Is(err, session.ErrStore) {
		return "internal error"
	}
	return err.Error()
}
