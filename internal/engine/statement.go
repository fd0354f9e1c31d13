package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/seantiz/sqlworker/internal/database"
	"github.com/seantiz/sqlworker/internal/model"
)

const maxNameLen = 64

// debugName shortens query text for logs and the journal.
func debugName(query string) string {
	q := strings.Join(strings.Fields(query), " ")
	if len(q) > maxNameLen {
		return q[:maxNameLen] + "..."
	}
	return q
}

type adhocTask struct {
	query  string
	result *Future[*database.ResultSet]
}

// NewAdhocOperation returns an operation that runs raw SQL. When result is
// non-nil it is resolved with the rows (nil for statements without rows)
// and any error.
func NewAdhocOperation(query string, result *Future[*database.ResultSet]) *Operation {
	t := &adhocTask{query: query, result: result}
	return NewOperation(model.KindAdhoc, debugName(query), t.execute, t.destroy)
}

func (t *adhocTask) execute(ctx context.Context, op *Operation) error {
	rs, err := op.Conn().Execute(ctx, t.query)
	if t.result != nil {
		t.result.Resolve(rs, err)
	}
	if err != nil {
		return fmt.Errorf("adhoc statement: %w", err)
	}
	return nil
}

func (t *adhocTask) destroy(*Operation) {
	if t.result != nil {
		t.result.Resolve(nil, ErrOperationDropped)
	}
}

type preparedTask struct {
	stmt   *database.PreparedStatement
	result *Future[*database.ResultSet]
}

// NewPreparedOperation returns an operation that runs stmt. The operation
// takes ownership of stmt and frees it when destroyed.
func NewPreparedOperation(stmt *database.PreparedStatement, result *Future[*database.ResultSet]) *Operation {
	t := &preparedTask{stmt: stmt, result: result}
	name := ""
	if stmt != nil {
		name = debugName(stmt.Query())
	}
	return NewOperation(model.KindPrepared, name, t.execute, t.destroy)
}

func (t *preparedTask) execute(ctx context.Context, op *Operation) error {
	rs, err := op.Conn().ExecutePrepared(ctx, t.stmt)
	if t.result != nil {
		t.result.Resolve(rs, err)
	}
	if err != nil {
		return fmt.Errorf("prepared statement: %w", err)
	}
	return nil
}

func (t *preparedTask) destroy(*Operation) {
	if t.result != nil {
		t.result.Resolve(nil, ErrOperationDropped)
	}
	if t.stmt != nil {
		t.stmt.Free()
	}
}
