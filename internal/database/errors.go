package database

import "errors"

var (
	// ErrLockConflict marks a driver error that was classified as a lock
	// conflict or deadlock. Transactions failing with it may be retried.
	ErrLockConflict = errors.New("lock conflict")

	// ErrParamIndex is returned when a parameter index is outside the
	// statement's placeholder range.
	ErrParamIndex = errors.New("parameter index out of range")

	// ErrParamUnbound is returned when a statement is executed with a
	// placeholder that has no value.
	ErrParamUnbound = errors.New("parameter not bound")

	// ErrParamTooLarge is returned when a string or blob parameter exceeds
	// the maximum length a single placeholder accepts.
	ErrParamTooLarge = errors.New("parameter too large")

	// ErrStatementFreed is returned when a prepared statement is used after
	// it was released.
	ErrStatementFreed = errors.New("prepared statement freed")

	// ErrConnectorNotFound is returned by Registry.Resolve for unknown names.
	ErrConnectorNotFound = errors.New("connector not registered")
)
