package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/seantiz/sqlworker/internal/database"
	"github.com/seantiz/sqlworker/internal/model"
)

const (
	holderAlive uint32 = iota + 1
	holderFreed
)

type holderSlot struct {
	stmt   *database.PreparedStatement
	result *database.ResultSet
}

// QueryHolder is a batch of prepared statements executed in order by one
// operation, with one result slot per statement. The caller keeps the
// holder and reads results once the returned future resolves.
type QueryHolder struct {
	mu     sync.Mutex
	slots  []holderSlot
	state  atomic.Uint32
	logger *slog.Logger
}

// NewQueryHolder creates an alive holder with size empty slots.
func NewQueryHolder(size int, logger *slog.Logger) *QueryHolder {
	h := &QueryHolder{logger: logger}
	h.state.Store(holderAlive)
	h.SetSize(size)
	return h
}

// SetSize resizes the holder to n slots. Existing slots below n are kept
// and statements in truncated slots are freed.
func (h *QueryHolder) SetSize(n int) {
	if n < 0 {
		n = 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	for i := n; i < len(h.slots); i++ {
		stmt := h.slots[i].stmt
		if stmt != nil && !stmt.Free() {
			h.logger.Error("query holder statement already freed", "index", i, "query", stmt.Query())
		}
	}
	slots := make([]holderSlot, n)
	copy(slots, h.slots)
	h.slots = slots
}

// Size returns the number of slots.
func (h *QueryHolder) Size() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.slots)
}

// Alive reports whether the holder has not been released.
func (h *QueryHolder) Alive() bool {
	return h.state.Load() == holderAlive
}

// SetPreparedQuery stores stmt in slot index. The holder takes ownership
// of stmt. It returns false if index is out of range.
func (h *QueryHolder) SetPreparedQuery(index int, stmt *database.PreparedStatement) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if index < 0 || index >= len(h.slots) {
		h.logger.Error("query holder index out of range", "index", index, "size", len(h.slots))
		return false
	}
	h.slots[index].stmt = stmt
	h.slots[index].result = nil
	return true
}

// Result returns the rows produced by slot index, or nil when the slot
// produced no rows, failed, was skipped, or the holder was released.
func (h *QueryHolder) Result(index int) *database.ResultSet {
	if !h.Alive() {
		h.logger.Error("reading result from released query holder", "index", index)
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if index < 0 || index >= len(h.slots) {
		h.logger.Error("query holder index out of range", "index", index, "size", len(h.slots))
		return nil
	}
	return h.slots[index].result
}

func (h *QueryHolder) statement(index int) *database.PreparedStatement {
	h.mu.Lock()
	defer h.mu.Unlock()
	if index >= len(h.slots) {
		return nil
	}
	return h.slots[index].stmt
}

func (h *QueryHolder) setResult(index int, rs *database.ResultSet) {
	if rs.RowCount() == 0 {
		rs = nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if index < len(h.slots) {
		h.slots[index].result = rs
	}
}

// Release frees every statement the holder still owns and marks it
// released. Only the first call does any work.
func (h *QueryHolder) Release() {
	if !h.state.CompareAndSwap(holderAlive, holderFreed) {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	for i := range h.slots {
		stmt := h.slots[i].stmt
		if stmt != nil && !stmt.Free() {
			h.logger.Error("query holder statement already freed", "index", i, "query", stmt.Query())
		}
		h.slots[i] = holderSlot{}
	}
}

type holderTask struct {
	holder *QueryHolder
	result *Future[*QueryHolder]
	logger *slog.Logger
}

func newHolderOperation(h *QueryHolder, result *Future[*QueryHolder], logger *slog.Logger) *Operation {
	t := &holderTask{holder: h, result: result, logger: logger}
	name := "holder"
	if h != nil {
		name = fmt.Sprintf("holder(%d)", h.Size())
	}
	return NewOperation(model.KindHolder, name, t.execute, t.destroy)
}

func (t *holderTask) execute(ctx context.Context, op *Operation) error {
	err := t.run(ctx, op)
	t.result.Resolve(t.holder, err)
	return err
}

func (t *holderTask) run(ctx context.Context, op *Operation) error {
	h := t.holder
	if h == nil || !h.Alive() {
		t.logger.Error("query holder released before execution", "operation_id", op.ID())
		return ErrHolderFreed
	}

	for i := range h.Size() {
		if !h.Alive() {
			t.logger.Error("query holder released during execution, aborting batch",
				"operation_id", op.ID(), "index", i)
			return ErrHolderFreed
		}

		stmt := h.statement(i)
		if stmt == nil {
			continue
		}
		if !stmt.Alive() {
			t.logger.Error("query holder statement freed, aborting remaining batch",
				"operation_id", op.ID(), "index", i)
			return fmt.Errorf("slot %d: %w", i, database.ErrStatementFreed)
		}

		rs, err := op.Conn().ExecutePrepared(ctx, stmt)
		if err != nil {
			t.logger.Warn("query holder statement failed",
				"operation_id", op.ID(), "index", i, "error", err)
			continue
		}
		h.setResult(i, rs)
	}
	return nil
}

func (t *holderTask) destroy(*Operation) {
	t.result.Resolve(t.holder, ErrOperationDropped)
}
