package engine

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/seantiz/sqlworker/internal/database"
	"github.com/seantiz/sqlworker/internal/model"
)

// ExecuteFunc performs an operation's work on the connection assigned by
// the worker. A nil error means success.
type ExecuteFunc func(ctx context.Context, op *Operation) error

// DestroyFunc releases everything the operation owns. It runs exactly once,
// whether or not the operation executed.
type DestroyFunc func(op *Operation)

// Operation liveness. The zero value marks a handle that was never built
// by NewOperation.
const (
	opUnset uint32 = iota
	opAlive
	opFreed
)

// Operation is one queued unit of database work.
type Operation struct {
	id        string
	kind      string
	name      string
	state     atomic.Uint32
	execute   ExecuteFunc
	destroy   DestroyFunc
	conn      database.Conn
	createdAt time.Time
}

// NewOperation builds an alive operation. It panics if execute or destroy
// is nil.
func NewOperation(kind, name string, execute ExecuteFunc, destroy DestroyFunc) *Operation {
	if execute == nil || destroy == nil {
		panic("engine: NewOperation requires execute and destroy functions")
	}
	op := &Operation{
		id:        model.NewID(),
		kind:      kind,
		name:      name,
		execute:   execute,
		destroy:   destroy,
		createdAt: time.Now().UTC(),
	}
	op.state.Store(opAlive)
	return op
}

func (op *Operation) ID() string   { return op.id }
func (op *Operation) Kind() string { return op.kind }
func (op *Operation) Name() string { return op.name }

// Conn returns the connection assigned by the executing worker. It is nil
// until the operation is executing.
func (op *Operation) Conn() database.Conn { return op.conn }

// Alive reports whether the operation has not been destroyed.
func (op *Operation) Alive() bool {
	return op.state.Load() == opAlive
}

// valid reports whether op is a handle built by NewOperation.
func (op *Operation) valid() bool {
	if op == nil {
		return false
	}
	s := op.state.Load()
	return (s == opAlive || s == opFreed) && op.execute != nil && op.destroy != nil
}

// Destroy runs the destroy function on the first call and marks the
// operation freed. Later calls do nothing. It reports whether this call
// performed the destruction.
func (op *Operation) Destroy() bool {
	if !op.state.CompareAndSwap(opAlive, opFreed) {
		return false
	}
	op.destroy(op)
	op.conn = nil
	return true
}

// record returns the journal entry for a newly queued operation.
func (op *Operation) record() *model.OperationRecord {
	return &model.OperationRecord{
		ID:        op.id,
		Kind:      op.kind,
		Name:      op.name,
		Status:    model.StatusPending,
		CreatedAt: op.createdAt,
	}
}
