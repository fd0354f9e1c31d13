package engine

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seantiz/sqlworker/internal/database"
)

func lockConflict() error {
	return fmt.Errorf("%w: database is locked", database.ErrLockConflict)
}

func TestTransactionRetriesThenSucceeds(t *testing.T) {
	conn := &fakeConn{tx: func(attempt int, elems []database.TxElement) error {
		if attempt <= 2 {
			return lockConflict()
		}
		return nil
	}}
	tx := NewTransaction(discardLogger())
	stmt := newStatement(t, "UPDATE t SET v = ? WHERE id = 1", 5)
	tx.Append("INSERT INTO t VALUES (1)")
	tx.AppendPrepared(stmt)
	require.True(t, tx.freeze())

	logger, logs := captureLogger()
	retriesBefore := testutil.ToFloat64(transactionRetries)
	f := NewFuture[bool]()
	op := newTransactionOperation(tx, f, time.Second, time.Millisecond, logger)
	require.NoError(t, runOps(t, conn, logger, op))

	ok, err := f.Get()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, conn.attempts())
	assert.Equal(t, 2.0, testutil.ToFloat64(transactionRetries)-retriesBefore, "one retry per conflicting attempt")
	assert.Equal(t, 2, strings.Count(logs.String(), "deadlocked transaction, retrying"))
	assert.NotContains(t, logs.String(), "exceeded retry window")
	assert.Equal(t, int32(1), tx.cleanups.Load(), "cleanup must run exactly once")
	assert.True(t, tx.CleanedUp())
	assert.False(t, stmt.Alive())
	assert.Equal(t, 0, tx.Len())
}

func TestTransactionRetryIsTimeBounded(t *testing.T) {
	conn := &fakeConn{tx: func(int, []database.TxElement) error {
		return lockConflict()
	}}
	logger, logs := captureLogger()
	tx := NewTransaction(logger)
	tx.Append("UPDATE t SET v = v + 1")
	tx.freeze()

	const window = 50 * time.Millisecond
	f := NewFuture[bool]()
	op := newTransactionOperation(tx, f, window, 5*time.Millisecond, logger)

	start := time.Now()
	require.NoError(t, runOps(t, conn, logger, op))
	elapsed := time.Since(start)

	ok, err := f.Get()
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrDeadlockRetryExhausted)
	assert.ErrorIs(t, err, database.ErrLockConflict)
	assert.GreaterOrEqual(t, elapsed, window)
	assert.Less(t, elapsed, 5*time.Second)
	assert.Greater(t, conn.attempts(), 2)
	assert.Equal(t, int32(1), tx.cleanups.Load())
	assert.Contains(t, logs.String(), "exceeded retry window")
}

func TestTransactionNonConflictFailsImmediately(t *testing.T) {
	conn := &fakeConn{tx: func(int, []database.TxElement) error {
		return errors.New("syntax error near UPDAT")
	}}
	tx := NewTransaction(discardLogger())
	tx.Append("UPDAT t")
	tx.freeze()

	f := NewFuture[bool]()
	require.NoError(t, runOps(t, conn, discardLogger(), newTransactionOperation(tx, f, time.Second, 0, discardLogger())))

	ok, err := f.Get()
	assert.False(t, ok)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDeadlockRetryExhausted)
	assert.Equal(t, 1, conn.attempts())
	assert.True(t, tx.CleanedUp())
}

func TestTransactionNonConflictDuringRetryStops(t *testing.T) {
	conn := &fakeConn{tx: func(attempt int, _ []database.TxElement) error {
		if attempt == 1 {
			return lockConflict()
		}
		return errors.New("constraint failed")
	}}
	tx := NewTransaction(discardLogger())
	tx.Append("INSERT INTO t VALUES (1)")
	tx.freeze()

	f := NewFuture[bool]()
	require.NoError(t, runOps(t, conn, discardLogger(), newTransactionOperation(tx, f, time.Second, 0, discardLogger())))

	_, err := f.Get()
	require.Error(t, err)
	assert.NotErrorIs(t, err, database.ErrLockConflict)
	assert.Equal(t, 2, conn.attempts())
}

func TestTransactionAppendAfterFreezeIgnored(t *testing.T) {
	logger, logs := captureLogger()
	tx := NewTransaction(logger)
	tx.Append("INSERT INTO t VALUES (1)")
	tx.AppendPrepared(nil)
	require.True(t, tx.freeze())
	assert.False(t, tx.freeze())

	tx.Append("INSERT INTO t VALUES (2)")
	assert.Equal(t, 1, tx.Len())
	assert.True(t, tx.Frozen())
	assert.Contains(t, logs.String(), "append to committed transaction ignored")
	assert.Contains(t, logs.String(), "ignoring nil prepared statement")
}

func TestTransactionCrossGoroutineAppendLogged(t *testing.T) {
	logger, logs := captureLogger()
	tx := NewTransaction(logger)
	tx.Append("INSERT INTO t VALUES (1)")

	done := make(chan struct{})
	go func() {
		defer close(done)
		tx.Append("INSERT INTO t VALUES (2)")
	}()
	<-done

	assert.Equal(t, 2, tx.Len(), "cross-goroutine append must not be rejected")
	assert.Contains(t, logs.String(), "transaction appended from a second goroutine")
}

func TestTransactionCleanupOnce(t *testing.T) {
	logger, logs := captureLogger()
	tx := NewTransaction(logger)
	alive := newStatement(t, "DELETE FROM t WHERE id = ?", 1)
	freed := newStatement(t, "DELETE FROM t WHERE id = ?", 2)
	tx.AppendPrepared(alive)
	tx.AppendPrepared(freed)
	freed.Free()

	tx.Cleanup()
	tx.Cleanup()

	assert.Equal(t, int32(1), tx.cleanups.Load())
	assert.False(t, alive.Alive())
	assert.Contains(t, logs.String(), "transaction statement already freed")
}

func TestTransactionDroppedResolvesFuture(t *testing.T) {
	tx := NewTransaction(discardLogger())
	stmt := newStatement(t, "DELETE FROM t WHERE id = ?", 1)
	tx.AppendPrepared(stmt)
	tx.freeze()

	f := NewFuture[bool]()
	op := newTransactionOperation(tx, f, time.Second, 0, discardLogger())
	op.Destroy()

	ok, err := f.Get()
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrOperationDropped)
	assert.False(t, stmt.Alive())
	assert.Equal(t, int32(1), tx.cleanups.Load())
}

func TestGoroutineFingerprint(t *testing.T) {
	here := goroutineFingerprint()
	assert.NotZero(t, here)
	assert.Equal(t, here, goroutineFingerprint())

	other := make(chan uint64)
	go func() { other <- goroutineFingerprint() }()
	assert.NotEqual(t, here, <-other)
}
