package engine

import (
	"log/slog"
	"sync"
)

// Queue is an unbounded multi-producer multi-consumer FIFO of operations.
// Push never blocks; Pop blocks until an operation is available or the
// queue is closed and drained.
type Queue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	items    []*Operation
	closed   bool
	capacity int
	logger   *slog.Logger

	// onDrop, when set, takes over operations pushed after Close.
	onDrop func(op *Operation)
}

// NewQueue creates a queue. capacity is advisory: pushes beyond it are
// logged and counted but never refused. Zero disables the check.
func NewQueue(capacity int, logger *slog.Logger) *Queue {
	q := &Queue{capacity: capacity, logger: logger}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends op. After Close the operation is passed to onDrop, or
// destroyed when no onDrop is set.
func (q *Queue) Push(op *Operation) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.logger.Warn("push to closed queue, dropping operation", operationAttrs(op)...)
		switch {
		case op == nil || !op.valid():
		case q.onDrop != nil:
			q.onDrop(op)
		default:
			op.Destroy()
		}
		return
	}
	q.items = append(q.items, op)
	depth := len(q.items)
	q.mu.Unlock()
	q.cond.Signal()

	queueDepth.Inc()
	if q.capacity > 0 && depth > q.capacity {
		queueOverCapacity.Inc()
		q.logger.Warn("queue depth over capacity", "depth", depth, "capacity", q.capacity)
	}
}

// Pop removes the oldest operation. ok is false once the queue is closed
// and empty.
func (q *Queue) Pop() (op *Operation, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}

	op = q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	queueDepth.Dec()
	return op, true
}

// Close wakes every waiting consumer. Operations already queued are still
// returned by Pop.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// Len returns the number of queued operations.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// operationAttrs returns log attributes identifying op, tolerating nil.
func operationAttrs(op *Operation) []any {
	if op == nil {
		return []any{"operation_id", ""}
	}
	return []any{"operation_id", op.id, "kind", op.kind, "name", op.name}
}
