package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/seantiz/sqlworker/internal/database"
)

// WorkerState is the position of a worker in its loop.
type WorkerState int32

const (
	WorkerIdle WorkerState = iota
	WorkerPopWait
	WorkerValidating
	WorkerExecuting
	WorkerDestroying
	WorkerStopped
)

func (s WorkerState) String() string {
	switch s {
	case WorkerIdle:
		return "idle"
	case WorkerPopWait:
		return "pop_wait"
	case WorkerValidating:
		return "validating"
	case WorkerExecuting:
		return "executing"
	case WorkerDestroying:
		return "destroying"
	case WorkerStopped:
		return "stopped"
	}
	return fmt.Sprintf("WorkerState(%d)", int32(s))
}

// observer is notified of operation lifecycle transitions.
type observer interface {
	started(op *Operation, workerID int)
	finished(op *Operation, workerID int, err error, elapsed time.Duration)
	dropped(op *Operation, workerID int)
	destroyed(op *Operation)
}

type nopObserver struct{}

func (nopObserver) started(*Operation, int)                       {}
func (nopObserver) finished(*Operation, int, error, time.Duration) {}
func (nopObserver) dropped(*Operation, int)                       {}
func (nopObserver) destroyed(*Operation)                          {}

// Worker owns one connection and executes operations popped from a queue
// until the queue is closed.
type Worker struct {
	id      int
	queue   *Queue
	conn    database.Conn
	timeout time.Duration
	logger  *slog.Logger
	obs     observer
	state   atomic.Int32
}

// NewWorker creates a worker bound to conn.
func NewWorker(id int, q *Queue, conn database.Conn, logger *slog.Logger) *Worker {
	return &Worker{
		id:     id,
		queue:  q,
		conn:   conn,
		logger: logger.With("worker_id", id),
		obs:    nopObserver{},
	}
}

// ID returns the worker's index in its pool.
func (w *Worker) ID() int { return w.id }

// State returns the worker's current loop state.
func (w *Worker) State() WorkerState {
	return WorkerState(w.state.Load())
}

func (w *Worker) setState(s WorkerState) {
	w.state.Store(int32(s))
}

// Run executes operations until the queue is closed and drained, then
// returns nil. It returns ErrInvalidOperation, without executing anything
// further, if it pops a handle that was not built by NewOperation.
func (w *Worker) Run(ctx context.Context) error {
	defer w.setState(WorkerStopped)

	for {
		w.setState(WorkerPopWait)
		op, ok := w.queue.Pop()
		if !ok {
			w.logger.Debug("queue closed, worker exiting")
			return nil
		}

		w.setState(WorkerValidating)
		if !op.valid() {
			corruptedOperations.Inc()
			w.logger.Error("popped invalid operation handle, stopping worker", "fatal", true)
			return ErrInvalidOperation
		}

		if !op.Alive() {
			w.logger.Error("operation already freed, skipping execution", operationAttrs(op)...)
			w.obs.dropped(op, w.id)
			w.setState(WorkerDestroying)
			w.destroy(op)
			w.setState(WorkerIdle)
			continue
		}

		w.setState(WorkerExecuting)
		op.conn = w.conn
		w.obs.started(op, w.id)
		start := time.Now()
		err := w.execute(ctx, op)
		w.obs.finished(op, w.id, err, time.Since(start))

		w.setState(WorkerDestroying)
		w.destroy(op)
		w.setState(WorkerIdle)
	}
}

// execute runs op, converting a panic into a failed execution.
func (w *Worker) execute(ctx context.Context, op *Operation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("operation panicked", append(operationAttrs(op), "panic", r)...)
			err = fmt.Errorf("%w: %v", ErrOperationPanicked, r)
		}
	}()

	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	if err := op.execute(ctx, op); err != nil {
		w.logger.Warn("operation failed", append(operationAttrs(op), "error", err)...)
		return err
	}
	return nil
}

func (w *Worker) destroy(op *Operation) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("operation destroy panicked", append(operationAttrs(op), "panic", r)...)
		}
		w.obs.destroyed(op)
	}()
	op.Destroy()
}
