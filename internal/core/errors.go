package core

import "errors"

// Error taxonomy of the coordinator. Every failure surfaced to a caller is one
// of these, wrapped with context; none of them is allowed to escape as a crash.
var (
	// ErrNotFound covers unknown staff ids, request ids, and session ids.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized is returned when a connection acts on a session or
	// request it is not a participant of.
	ErrUnauthorized = errors.New("not authorized")

	// ErrDuplicateSession is an internal invariant violation: a freshly
	// minted session id already exists. The caller must regenerate and
	// retry, never overwrite.
	ErrDuplicateSession = errors.New("duplicate session id")

	// ErrStaffUnavailable means the staff member resolved but is marked
	// unavailable for calls; distinct from being offline (which queues).
	ErrStaffUnavailable = errors.New("staff unavailable")

	// ErrRequestExpired means the request sat unanswered past the
	// operational window and was closed.
	ErrRequestExpired = errors.New("request expired")

	// ErrBackpressure is returned by a SignalConnection whose send buffer
	// is full; the frame is dropped, not queued.
	ErrBackpressure = errors.New("backpressure")
)
