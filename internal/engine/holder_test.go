package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seantiz/sqlworker/internal/database"
)

func TestQueryHolderSetSizeAndReleaseEmpty(t *testing.T) {
	h := NewQueryHolder(0, discardLogger())
	h.SetSize(3)
	assert.Equal(t, 3, h.Size())
	assert.Nil(t, h.Result(0))

	h.Release()
	h.Release()
	assert.False(t, h.Alive())
	assert.Nil(t, h.Result(0))
}

func TestQueryHolderSetPreparedQueryOutOfRange(t *testing.T) {
	logger, logs := captureLogger()
	h := NewQueryHolder(2, logger)

	assert.True(t, h.SetPreparedQuery(1, database.NewPreparedStatement("SELECT 1")))
	assert.False(t, h.SetPreparedQuery(2, database.NewPreparedStatement("SELECT 1")))
	assert.False(t, h.SetPreparedQuery(-1, database.NewPreparedStatement("SELECT 1")))
	assert.Nil(t, h.Result(5))
	assert.Contains(t, logs.String(), "query holder index out of range")
}

func TestQueryHolderAbortsOnFreedStatement(t *testing.T) {
	conn := &fakeConn{prepared: func(*database.PreparedStatement) (*database.ResultSet, error) {
		return rows(1), nil
	}}
	logger, logs := captureLogger()
	h := NewQueryHolder(4, logger)
	for i := range 4 {
		require.True(t, h.SetPreparedQuery(i, newStatement(t, "SELECT v FROM t WHERE id = ?", int64(i))))
	}
	h.statement(2).Free()

	f := NewFuture[*QueryHolder]()
	require.NoError(t, runOps(t, conn, logger, newHolderOperation(h, f, logger)))

	got, err := f.Get()
	assert.ErrorIs(t, err, database.ErrStatementFreed)
	require.Same(t, h, got)
	assert.NotNil(t, h.Result(0))
	assert.NotNil(t, h.Result(1))
	assert.Nil(t, h.Result(2))
	assert.Nil(t, h.Result(3))
	assert.Len(t, conn.executed(), 2, "statements after the freed slot must not run")
	assert.Contains(t, logs.String(), "aborting remaining batch")

	h.Release()
}

func TestQueryHolderNormalisesEmptyResults(t *testing.T) {
	conn := &fakeConn{prepared: func(stmt *database.PreparedStatement) (*database.ResultSet, error) {
		p, _ := stmt.Param(0)
		switch p.Value() {
		case int64(0):
			return rows(0), nil
		case int64(1):
			return nil, errors.New("table missing")
		}
		return rows(3), nil
	}}
	h := NewQueryHolder(4, discardLogger())
	require.True(t, h.SetPreparedQuery(0, newStatement(t, "SELECT ?", 0)))
	require.True(t, h.SetPreparedQuery(1, newStatement(t, "SELECT ?", 1)))
	require.True(t, h.SetPreparedQuery(3, newStatement(t, "SELECT ?", 3)))

	f := NewFuture[*QueryHolder]()
	require.NoError(t, runOps(t, conn, discardLogger(), newHolderOperation(h, f, discardLogger())))

	_, err := f.Get()
	require.NoError(t, err)
	assert.Nil(t, h.Result(0), "zero-row result should be nil")
	assert.Nil(t, h.Result(1), "failed slot should be nil")
	assert.Nil(t, h.Result(2), "empty slot should be nil")
	assert.Equal(t, 3, h.Result(3).RowCount())
}

func TestQueryHolderReleasedBeforeExecution(t *testing.T) {
	h := NewQueryHolder(1, discardLogger())
	stmt := newStatement(t, "SELECT ?", 1)
	require.True(t, h.SetPreparedQuery(0, stmt))
	h.Release()
	assert.False(t, stmt.Alive())

	conn := &fakeConn{}
	f := NewFuture[*QueryHolder]()
	require.NoError(t, runOps(t, conn, discardLogger(), newHolderOperation(h, f, discardLogger())))

	_, err := f.Get()
	assert.ErrorIs(t, err, ErrHolderFreed)
	assert.Empty(t, conn.executed())
}

func TestQueryHolderDroppedResolvesFuture(t *testing.T) {
	h := NewQueryHolder(1, discardLogger())
	f := NewFuture[*QueryHolder]()
	op := newHolderOperation(h, f, discardLogger())
	op.Destroy()

	got, err := f.Get()
	assert.ErrorIs(t, err, ErrOperationDropped)
	assert.Same(t, h, got)
}

func TestQueryHolderSetSizeKeepsSlots(t *testing.T) {
	h := NewQueryHolder(1, discardLogger())
	stmt := database.NewPreparedStatement("SELECT 1")
	require.True(t, h.SetPreparedQuery(0, stmt))

	h.SetSize(3)
	assert.Same(t, stmt, h.statement(0))
	h.SetSize(-1)
	assert.Equal(t, 0, h.Size())
}

func TestQueryHolderShrinkFreesTruncatedStatements(t *testing.T) {
	logger, logs := captureLogger()
	h := NewQueryHolder(3, logger)
	kept := database.NewPreparedStatement("SELECT 1")
	dropped := database.NewPreparedStatement("SELECT 2")
	stale := database.NewPreparedStatement("SELECT 3")
	require.True(t, h.SetPreparedQuery(0, kept))
	require.True(t, h.SetPreparedQuery(1, dropped))
	require.True(t, h.SetPreparedQuery(2, stale))
	stale.Free()

	h.SetSize(1)
	assert.Equal(t, 1, h.Size())
	assert.True(t, kept.Alive())
	assert.False(t, dropped.Alive(), "statement in a truncated slot must be freed")
	assert.Contains(t, logs.String(), "query holder statement already freed")

	h.SetSize(2)
	assert.Nil(t, h.statement(1), "regrown slot must start empty")
	h.Release()
	assert.False(t, kept.Alive())
}
