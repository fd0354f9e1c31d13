// Package engine provides the asynchronous database worker pool. Callers
// on any goroutine enqueue operations (ad-hoc SQL, prepared statements,
// transactions, query holders) onto a shared queue; one worker goroutine per
// database connection pops and executes them, resolving futures that the
// caller can wait on or hand to a CallbackProcessor.
package engine
