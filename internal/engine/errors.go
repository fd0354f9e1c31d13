package engine

import "errors"

var (
	// ErrInvalidOperation is returned by a worker that popped an operation
	// it cannot trust. The worker stops instead of executing it.
	ErrInvalidOperation = errors.New("invalid operation handle")

	// ErrOperationDropped settles the future of an operation that was
	// destroyed without executing.
	ErrOperationDropped = errors.New("operation dropped before execution")

	// ErrOperationPanicked wraps a panic recovered from an execute function.
	ErrOperationPanicked = errors.New("operation panicked")

	// ErrPoolClosed settles futures for work submitted after Stop.
	ErrPoolClosed = errors.New("worker pool closed")

	// ErrTransactionFrozen is returned when a transaction is committed twice.
	ErrTransactionFrozen = errors.New("transaction already committed")

	// ErrDeadlockRetryExhausted is returned when a transaction kept hitting
	// lock conflicts for the whole retry window.
	ErrDeadlockRetryExhausted = errors.New("deadlock retry window exhausted")

	// ErrHolderFreed is returned when a query holder is released before or
	// during its execution.
	ErrHolderFreed = errors.New("query holder freed")
)
