package debug

import "errors"

var (
	// ErrNotSupported indicates the adapter does not advertise the
	// capability required by the request.
	ErrNotSupported = errors.New("debug: not supported by adapter")

	// ErrSessionNotFound indicates no session exists with the given ID.
	ErrSessionNotFound = errors.New("debug: session not found")

	// ErrSessionActive indicates the session is still the active one and
	// cannot be removed.
	ErrSessionActive = errors.New("debug: session is active")

	// ErrBreakpointNotFound indicates no breakpoint exists with the given ID.
	ErrBreakpointNotFound = errors.New("debug: breakpoint not found")

	// ErrInvalidHitCondition indicates a hit-condition string that does not
	// parse.
	ErrInvalidHitCondition = errors.New("debug: invalid hit condition")

	// ErrWatchNotFound indicates no watch exists with the given ID.
	ErrWatchNotFound = errors.New("debug: watch not found")
)
