package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/sync/semaphore"

	"github.com/seantiz/sqlworker/internal/database"
	"github.com/seantiz/sqlworker/internal/model"
)

// retryGate admits one deadlocked transaction at a time into its retry
// loop, process-wide.
var retryGate = semaphore.NewWeighted(1)

// Transaction is an ordered list of raw SQL and prepared statements
// executed atomically on one connection. It is built by one goroutine,
// then frozen when committed to a pool.
type Transaction struct {
	mu     sync.Mutex
	elems  []database.TxElement
	owner  atomic.Uint64
	frozen atomic.Bool

	cleanupMu sync.Mutex
	cleanedUp atomic.Bool
	cleanups  atomic.Int32

	logger *slog.Logger
}

// NewTransaction creates an empty transaction in the building state.
func NewTransaction(logger *slog.Logger) *Transaction {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Transaction{logger: logger}
}

// Append adds a raw SQL statement.
func (t *Transaction) Append(query string) {
	t.append(database.RawElement(query))
}

// AppendPrepared adds a prepared statement. The transaction takes ownership
// of stmt and frees it during cleanup.
func (t *Transaction) AppendPrepared(stmt *database.PreparedStatement) {
	if stmt == nil {
		t.logger.Error("ignoring nil prepared statement appended to transaction")
		return
	}
	t.append(database.PreparedElement(stmt))
}

func (t *Transaction) append(el database.TxElement) {
	if t.frozen.Load() {
		t.logger.Error("append to committed transaction ignored", "query", el.Query())
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	fp := goroutineFingerprint()
	if !t.owner.CompareAndSwap(0, fp) {
		if owner := t.owner.Load(); owner != fp {
			t.logger.Error("transaction appended from a second goroutine",
				"owner_fingerprint", owner,
				"caller_fingerprint", fp,
			)
		}
	}
	t.elems = append(t.elems, el)
}

// Len returns the number of elements.
func (t *Transaction) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.elems)
}

// Frozen reports whether the transaction was committed to a pool.
func (t *Transaction) Frozen() bool {
	return t.frozen.Load()
}

// CleanedUp reports whether the transaction's statements were released.
func (t *Transaction) CleanedUp() bool {
	return t.cleanedUp.Load()
}

func (t *Transaction) freeze() bool {
	return t.frozen.CompareAndSwap(false, true)
}

func (t *Transaction) elements() []database.TxElement {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]database.TxElement(nil), t.elems...)
}

// Cleanup frees every alive prepared statement and clears the element
// list. Only the first call does any work.
func (t *Transaction) Cleanup() {
	if t.cleanedUp.Load() {
		return
	}
	t.cleanupMu.Lock()
	defer t.cleanupMu.Unlock()
	if t.cleanedUp.Load() {
		return
	}

	t.mu.Lock()
	for i, el := range t.elems {
		if !el.IsPrepared() {
			continue
		}
		if !el.Stmt.Free() {
			t.logger.Error("transaction statement already freed", "index", i, "query", el.Stmt.Query())
		}
	}
	t.elems = nil
	t.mu.Unlock()

	t.cleanups.Add(1)
	t.cleanedUp.Store(true)
}

type transactionTask struct {
	tx      *Transaction
	result  *Future[bool]
	window  time.Duration
	backoff time.Duration
	logger  *slog.Logger
}

func newTransactionOperation(tx *Transaction, result *Future[bool], window, backoff time.Duration, logger *slog.Logger) *Operation {
	t := &transactionTask{
		tx:      tx,
		result:  result,
		window:  window,
		backoff: backoff,
		logger:  logger,
	}
	return NewOperation(model.KindTransaction, fmt.Sprintf("transaction(%d)", tx.Len()), t.execute, t.destroy)
}

func (t *transactionTask) execute(ctx context.Context, op *Operation) error {
	err := t.run(ctx, op)
	t.tx.Cleanup()
	if t.result != nil {
		t.result.Resolve(err == nil, err)
	}
	return err
}

func (t *transactionTask) run(ctx context.Context, op *Operation) error {
	elems := t.tx.elements()
	conn := op.Conn()

	err := conn.ExecuteTransaction(ctx, elems)
	if err == nil {
		return nil
	}
	if !errors.Is(err, database.ErrLockConflict) {
		return fmt.Errorf("transaction: %w", err)
	}

	if err := retryGate.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire deadlock retry gate: %w", err)
	}
	defer retryGate.Release(1)

	windowCtx, cancel := context.WithTimeout(ctx, t.window)
	defer cancel()

	start := time.Now()
	lastErr := err
	t.retrying(op, start, 0, err)

	err = retry.Do(
		func() error {
			err := conn.ExecuteTransaction(ctx, elems)
			if err != nil {
				lastErr = err
			}
			return err
		},
		retry.Context(windowCtx),
		retry.Attempts(0),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, database.ErrLockConflict)
		}),
		retry.Delay(t.backoff),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			t.retrying(op, start, n+1, err)
		}),
	)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return fmt.Errorf("transaction retry: %w", ctx.Err())
	case !errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("transaction retry: %w", err)
	}

	transactionRetryExhausted.Inc()
	t.logger.Error("deadlocked transaction exceeded retry window",
		"operation_id", op.ID(),
		"window", t.window.String(),
		"fatal", true,
		"error", lastErr,
	)
	return fmt.Errorf("%w after %s: %w", ErrDeadlockRetryExhausted, t.window, lastErr)
}

func (t *transactionTask) retrying(op *Operation, start time.Time, retries uint, err error) {
	transactionRetries.Inc()
	t.logger.Warn("deadlocked transaction, retrying",
		"operation_id", op.ID(),
		"retry", retries+1,
		"elapsed_ms", time.Since(start).Milliseconds(),
		"error", err,
	)
}

func (t *transactionTask) destroy(*Operation) {
	if t.result != nil {
		t.result.Resolve(false, ErrOperationDropped)
	}
	t.tx.Cleanup()
}
