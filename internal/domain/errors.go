package domain

import "errors"

var (
	// ErrInvalidSession is returned when a session payload fails validation.
	ErrInvalidSession = errors.New("invalid session")
	// ErrRecordFailed is the generic failure surfaced when a session could not be persisted.
	ErrRecordFailed = errors.New("failed to save session")
	// ErrStatsUnavailable is the generic failure surfaced when statistics could not be read.
	ErrStatsUnavailable = errors.New("failed to fetch statistics")
)

// ValidationError describes which field of a session payload is malformed.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return ErrInvalidSession.Error() + ": " + e.Field + " " + e.Reason
}

func (e *ValidationError) Unwrap() error { return ErrInvalidSession }
