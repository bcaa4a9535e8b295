package apperrors

import "errors"

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")

	ErrAlreadyCheckedIn    = errors.New("already checked in")
	ErrNotCheckedIn        = errors.New("not checked in")
	ErrLocationDenied      = errors.New("location permission denied")
	ErrLocationUnavailable = errors.New("location unavailable")
	ErrRemoteUnavailable   = errors.New("remote session service unavailable")
	ErrTransitionInFlight  = errors.New("another transition is in flight")
	ErrEngineClosed        = errors.New("attendance engine closed")
	ErrSessionReset        = errors.New("session reset while the transition was in flight")
	ErrNotInitialized      = errors.New("attendance engine not initialized")
)
