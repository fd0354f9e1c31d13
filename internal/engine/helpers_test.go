package engine

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/seantiz/sqlworker/internal/database"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// lockedBuffer is an io.Writer safe for concurrent log writes.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func captureLogger() (*slog.Logger, *lockedBuffer) {
	buf := &lockedBuffer{}
	return slog.New(slog.NewJSONHandler(buf, nil)), buf
}

// fakeConn is a scriptable database.Conn.
type fakeConn struct {
	mu         sync.Mutex
	queries    []string
	txAttempts int
	closed     bool

	execute  func(query string) (*database.ResultSet, error)
	prepared func(stmt *database.PreparedStatement) (*database.ResultSet, error)
	tx       func(attempt int, elems []database.TxElement) error
}

func (c *fakeConn) Execute(_ context.Context, query string) (*database.ResultSet, error) {
	c.mu.Lock()
	c.queries = append(c.queries, query)
	fn := c.execute
	c.mu.Unlock()
	if fn != nil {
		return fn(query)
	}
	return nil, nil
}

func (c *fakeConn) ExecutePrepared(_ context.Context, stmt *database.PreparedStatement) (*database.ResultSet, error) {
	if stmt == nil || !stmt.Alive() {
		return nil, database.ErrStatementFreed
	}
	c.mu.Lock()
	c.queries = append(c.queries, stmt.Query())
	fn := c.prepared
	c.mu.Unlock()
	if fn != nil {
		return fn(stmt)
	}
	return nil, nil
}

func (c *fakeConn) ExecuteTransaction(_ context.Context, elems []database.TxElement) error {
	c.mu.Lock()
	c.txAttempts++
	attempt := c.txAttempts
	fn := c.tx
	c.mu.Unlock()
	if fn != nil {
		return fn(attempt, elems)
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) executed() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.queries...)
}

func (c *fakeConn) attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.txAttempts
}

// fakeConnector hands out fakeConns built by newConn.
type fakeConnector struct {
	mu      sync.Mutex
	conns   []*fakeConn
	newConn func() *fakeConn
}

func (c *fakeConnector) Connect(context.Context) (database.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	conn := &fakeConn{}
	if c.newConn != nil {
		conn = c.newConn()
	}
	c.conns = append(c.conns, conn)
	return conn, nil
}

func (c *fakeConnector) Info() database.ConnectorInfo {
	return database.ConnectorInfo{Dialect: "fake"}
}

func (c *fakeConnector) Close() error { return nil }

// runOps executes ops in order on a single worker bound to conn and
// returns once the worker has drained the queue.
func runOps(t *testing.T, conn database.Conn, logger *slog.Logger, ops ...*Operation) error {
	t.Helper()
	q := NewQueue(0, logger)
	for _, op := range ops {
		q.Push(op)
	}
	q.Close()
	return NewWorker(0, q, conn, logger).Run(context.Background())
}

func rows(n int) *database.ResultSet {
	rs := &database.ResultSet{Columns: []string{"v"}}
	for i := range n {
		rs.Rows = append(rs.Rows, []any{int64(i)})
	}
	return rs
}

func newStatement(t *testing.T, query string, args ...int64) *database.PreparedStatement {
	t.Helper()
	ps := database.NewPreparedStatement(query)
	for i, a := range args {
		require.NoError(t, ps.SetInt64(i, a))
	}
	return ps
}
