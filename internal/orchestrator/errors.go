package orchestrator

import "errors"

// MaxContentLength is the longest user turn accepted, in characters.
const MaxContentLength = 50000

var (
	// ErrSessionNotFound is returned when the session does not exist.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionNotActive is returned for turns on completed or abandoned sessions.
	ErrSessionNotActive = errors.New("session is not active")
	// ErrTurnInProgress is returned when another turn holds the session lock.
	ErrTurnInProgress = errors.New("a turn is already in progress for this session")
	// ErrEmptyContent is returned for a blank user turn.
	ErrEmptyContent = errors.New("message content is required")
	// ErrContentTooLong is returned when a turn exceeds MaxContentLength.
	ErrContentTooLong = errors.New("message content is too long")
)
