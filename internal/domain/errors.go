package domain

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the session-facing error notification.
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindAuthMismatch Kind = "auth_mismatch"
	KindInvalidInput Kind = "invalid_input"
	KindConflict     Kind = "conflict"
	KindForbidden    Kind = "forbidden"
	KindTransient    Kind = "transient"
	KindInternal     Kind = "internal"
)

// Error is a kinded error. Sentinels below are compared by identity with errors.Is.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

var (
	// ErrRoomNotFound is returned when no active room has the requested name.
	ErrRoomNotFound = newError(KindNotFound, "room not found")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = newError(KindNotFound, "quiz not found")
	// ErrPollIndexOutOfRange is returned when activating a poll that was never saved.
	ErrPollIndexOutOfRange = newError(KindNotFound, "poll index out of range")
	// ErrParticipantNotFound is returned when a user acts on a room they never joined.
	ErrParticipantNotFound = newError(KindNotFound, "participant not found in room")
	// ErrNotInRoom is returned when a session issues a room command without a room binding.
	ErrNotInRoom = newError(KindNotFound, "session has not joined this room")

	// ErrAuthMismatch is returned for a wrong room passcode.
	ErrAuthMismatch = newError(KindAuthMismatch, "invalid room name or passcode")
	// ErrUnauthenticated is returned when a session token cannot be validated.
	ErrUnauthenticated = newError(KindAuthMismatch, "invalid or expired token")

	// ErrInvalidConfig is returned when a room is created without its required fields.
	ErrInvalidConfig = newError(KindInvalidInput, "room name, passcode and host are required")
	// ErrInvalidInput covers malformed command payloads.
	ErrInvalidInput = newError(KindInvalidInput, "invalid input")
	// ErrQuizMismatch is returned when a completion names a quiz other than the room's.
	ErrQuizMismatch = newError(KindInvalidInput, "quiz does not belong to this room")
	// ErrUnknownCommand is returned for inbound events the dispatcher does not know.
	ErrUnknownCommand = newError(KindInvalidInput, "unsupported message type")

	// ErrDuplicateRoom is returned when the room name is already active.
	ErrDuplicateRoom = newError(KindConflict, "room already exists")
	// ErrQuizAlreadyStarted is returned when starting a quiz that is running.
	ErrQuizAlreadyStarted = newError(KindConflict, "quiz already started")
	// ErrQuizNotStarted is returned when a completion arrives before the quiz was ever started.
	ErrQuizNotStarted = newError(KindConflict, "quiz has not started")
	// ErrSessionClosed is returned when a join races with the session's termination.
	ErrSessionClosed = newError(KindConflict, "session is closed")

	// ErrHostOnly is returned when a non-host issues a host command.
	ErrHostOnly = newError(KindForbidden, "only the host can do that")
	// ErrHostCannotVote is returned when the host submits a vote or a quiz completion.
	ErrHostCannotVote = newError(KindForbidden, "host is not allowed to vote")
	// ErrUserMismatch is returned when a session submits on behalf of another user.
	ErrUserMismatch = newError(KindForbidden, "user does not match session")
)

// Transient wraps a failed persistence call.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) && de.Kind != KindTransient && de.Kind != KindInternal {
		return err
	}
	return &Error{Kind: KindTransient, Message: op, Err: err}
}

// Internal wraps an unexpected failure.
func Internal(op string, err error) error {
	return &Error{Kind: KindInternal, Message: op, Err: err}
}

// KindOf reports the kind of err, defaulting to KindInternal.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}
