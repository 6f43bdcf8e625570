package dojo

import "errors"

var (
	// ErrInvalidInput wraps malformed requests.
	ErrInvalidInput = errors.New("invalid input")
	// ErrAlreadyEnrolled is returned when a learner enrolls in the same skill twice.
	ErrAlreadyEnrolled = errors.New("already enrolled")
	// ErrInvalidSessionType is returned for an unknown session type.
	ErrInvalidSessionType = errors.New("invalid session type")
	// ErrAssessmentUnavailable is returned when an assessment is requested
	// before the coach has unlocked one.
	ErrAssessmentUnavailable = errors.New("no belt assessment is available for this skill")
)
