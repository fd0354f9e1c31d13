package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/seantiz/sqlworker/internal/database"
	"github.com/seantiz/sqlworker/internal/model"
	"github.com/seantiz/sqlworker/internal/store"
)

// Pool defaults.
const (
	DefaultWorkers       = 4
	DefaultQueueCapacity = 1024
	DefaultRetryWindow   = time.Minute
	DefaultRetryBackoff  = 10 * time.Millisecond
)

// journalTimeout bounds each journal write so a slow journal cannot stall
// a worker indefinitely.
const journalTimeout = 5 * time.Second

// Options configures a Pool. Zero values select the defaults.
type Options struct {
	Name          string
	Workers       int
	QueueCapacity int
	RetryWindow   time.Duration
	RetryBackoff  time.Duration

	// OpTimeout bounds each operation's execution. Zero means no limit.
	OpTimeout time.Duration

	// Journal, when set, records every operation's lifecycle.
	Journal store.Store

	// Broker receives lifecycle events. Pools may share one; nil creates
	// a private broker.
	Broker *Broker

	Logger *slog.Logger
}

func (o *Options) setDefaults() {
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if o.QueueCapacity <= 0 {
		o.QueueCapacity = DefaultQueueCapacity
	}
	if o.RetryWindow <= 0 {
		o.RetryWindow = DefaultRetryWindow
	}
	if o.RetryBackoff < 0 {
		o.RetryBackoff = 0
	}
	if o.Name == "" {
		o.Name = "default"
	}
}

// PoolStats is a point-in-time view of a pool.
type PoolStats struct {
	Name          string   `json:"name"`
	Workers       int      `json:"workers"`
	ActiveWorkers int      `json:"active_workers"`
	QueueDepth    int      `json:"queue_depth"`
	WorkerStates  []string `json:"worker_states"`
	Closed        bool     `json:"closed"`
}

// Pool runs one worker goroutine per database connection, all fed from a
// single queue.
type Pool struct {
	opts    Options
	queue   *Queue
	workers []*Worker
	conns   []database.Conn
	journal store.Store
	broker  *Broker
	logger  *slog.Logger

	group  errgroup.Group
	done   chan struct{}
	runErr error
	closed atomic.Bool
	active atomic.Int32
}

// Open connects opts.Workers connections through c and starts a worker for
// each. If any connection fails, the ones already opened are closed.
func Open(ctx context.Context, c database.Connector, opts Options) (*Pool, error) {
	opts.setDefaults()
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("pool", opts.Name)

	broker := opts.Broker
	if broker == nil {
		broker = NewBroker()
	}

	p := &Pool{
		opts:    opts,
		queue:   NewQueue(opts.QueueCapacity, logger),
		journal: opts.Journal,
		broker:  broker,
		logger:  logger,
		done:    make(chan struct{}),
	}
	p.queue.onDrop = p.abandon

	for i := range opts.Workers {
		conn, err := c.Connect(ctx)
		if err != nil {
			p.closeConns()
			return nil, fmt.Errorf("open connection %d: %w", i, err)
		}
		p.conns = append(p.conns, conn)

		w := NewWorker(i, p.queue, conn, logger)
		w.timeout = opts.OpTimeout
		w.obs = p
		p.workers = append(p.workers, w)
	}

	// Execution is never cancelled mid-flight; only OpTimeout bounds it.
	runCtx := context.WithoutCancel(ctx)
	for _, w := range p.workers {
		p.active.Add(1)
		activeWorkers.Inc()
		p.group.Go(func() error {
			defer func() {
				p.active.Add(-1)
				activeWorkers.Dec()
			}()
			err := w.Run(runCtx)
			if err != nil {
				p.logger.Error("worker stopped", "worker_id", w.ID(), "error", err)
			}
			return err
		})
	}
	go func() {
		p.runErr = p.group.Wait()
		close(p.done)
	}()

	p.logger.Info("worker pool started",
		"dialect", c.Info().Dialect,
		"workers", opts.Workers,
		"queue_capacity", opts.QueueCapacity,
	)
	return p, nil
}

// Broker returns the pool's lifecycle event broker.
func (p *Pool) Broker() *Broker {
	return p.broker
}

// Logger returns the pool's logger.
func (p *Pool) Logger() *slog.Logger {
	return p.logger
}

// Enqueue submits op for execution. The pool takes ownership of op: it is
// destroyed after it runs, or immediately if the pool is stopped.
func (p *Pool) Enqueue(op *Operation) {
	if p.closed.Load() {
		p.logger.Warn("enqueue on stopped pool, dropping operation", operationAttrs(op)...)
		if op.valid() {
			op.Destroy()
		}
		return
	}
	if op.valid() {
		p.recordQueued(op)
		p.broker.Publish(Event{
			OperationID: op.ID(),
			Status:      model.StatusPending,
			At:          time.Now().UTC(),
		})
	}
	p.queue.Push(op)
}

// Execute runs raw SQL asynchronously without a result.
func (p *Pool) Execute(query string) {
	p.Enqueue(NewAdhocOperation(query, nil))
}

// Query runs raw SQL asynchronously and returns its rows.
func (p *Pool) Query(query string) *Future[*database.ResultSet] {
	if p.closed.Load() {
		return resolvedFuture[*database.ResultSet](nil, ErrPoolClosed)
	}
	f := NewFuture[*database.ResultSet]()
	p.Enqueue(NewAdhocOperation(query, f))
	return f
}

// ExecutePrepared runs stmt asynchronously without a result. The pool
// takes ownership of stmt.
func (p *Pool) ExecutePrepared(stmt *database.PreparedStatement) {
	p.Enqueue(NewPreparedOperation(stmt, nil))
}

// QueryPrepared runs stmt asynchronously and returns its rows. The pool
// takes ownership of stmt.
func (p *Pool) QueryPrepared(stmt *database.PreparedStatement) *Future[*database.ResultSet] {
	if p.closed.Load() {
		if stmt != nil {
			stmt.Free()
		}
		return resolvedFuture[*database.ResultSet](nil, ErrPoolClosed)
	}
	f := NewFuture[*database.ResultSet]()
	p.Enqueue(NewPreparedOperation(stmt, f))
	return f
}

// BeginTransaction returns an empty transaction logging through the pool.
func (p *Pool) BeginTransaction() *Transaction {
	return NewTransaction(p.logger)
}

// CommitTransaction submits tx without waiting for its outcome.
func (p *Pool) CommitTransaction(tx *Transaction) {
	p.commit(tx, nil)
}

// AsyncCommitTransaction submits tx and returns a future resolved with
// whether it committed.
func (p *Pool) AsyncCommitTransaction(tx *Transaction) *Future[bool] {
	f := NewFuture[bool]()
	p.commit(tx, f)
	return f
}

func (p *Pool) commit(tx *Transaction, result *Future[bool]) {
	if !tx.freeze() {
		p.logger.Error("transaction committed twice", "elements", tx.Len())
		if result != nil {
			result.Resolve(false, ErrTransactionFrozen)
		}
		return
	}
	if p.closed.Load() {
		tx.Cleanup()
		if result != nil {
			result.Resolve(false, ErrPoolClosed)
		}
		return
	}
	if tx.Len() == 0 {
		p.logger.Debug("transaction has no statements, not executing")
		tx.Cleanup()
		if result != nil {
			result.Resolve(true, nil)
		}
		return
	}
	p.Enqueue(newTransactionOperation(tx, result, p.opts.RetryWindow, p.opts.RetryBackoff, p.logger))
}

// NewQueryHolder returns a holder with size slots logging through the pool.
func (p *Pool) NewQueryHolder(size int) *QueryHolder {
	return NewQueryHolder(size, p.logger)
}

// DelayQueryHolder executes every statement in h asynchronously and
// returns a future resolved with h once the batch finishes.
func (p *Pool) DelayQueryHolder(h *QueryHolder) *Future[*QueryHolder] {
	if p.closed.Load() {
		return resolvedFuture(h, ErrPoolClosed)
	}
	f := NewFuture[*QueryHolder]()
	p.Enqueue(newHolderOperation(h, f, p.logger))
	return f
}

// Stats reports the pool's current state.
func (p *Pool) Stats() PoolStats {
	states := make([]string, len(p.workers))
	for i, w := range p.workers {
		states[i] = w.State().String()
	}
	return PoolStats{
		Name:          p.opts.Name,
		Workers:       len(p.workers),
		ActiveWorkers: int(p.active.Load()),
		QueueDepth:    p.queue.Len(),
		WorkerStates:  states,
		Closed:        p.closed.Load(),
	}
}

// Stop closes the queue, lets workers drain it and closes every
// connection. Operations still queued after every worker exited are
// dropped. It returns early with ctx's error if workers do not finish
// in time; connections are then left open. Any worker that stopped on an
// invalid operation is reported in the returned error.
func (p *Pool) Stop(ctx context.Context) error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	p.queue.Close()

	select {
	case <-p.done:
	case <-ctx.Done():
		return fmt.Errorf("wait for workers: %w", ctx.Err())
	}
	if n := p.drain(); n > 0 {
		p.logger.Warn("no workers left, dropped queued operations", "count", n)
	}

	err := errors.Join(p.runErr, p.closeConns())
	p.logger.Info("worker pool stopped")
	return err
}

// drain drops whatever is still queued once the queue is closed and every
// worker has exited.
func (p *Pool) drain() int {
	n := 0
	for {
		op, ok := p.queue.Pop()
		if !ok {
			return n
		}
		if !op.valid() {
			corruptedOperations.Inc()
			continue
		}
		p.abandon(op)
		n++
	}
}

func (p *Pool) closeConns() error {
	var errs []error
	for i, conn := range p.conns {
		if err := conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close connection %d: %w", i, err))
		}
	}
	p.conns = nil
	return errors.Join(errs...)
}

func (p *Pool) journalCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), journalTimeout)
}

func (p *Pool) recordQueued(op *Operation) {
	if p.journal == nil {
		return
	}
	ctx, cancel := p.journalCtx()
	defer cancel()
	if err := p.journal.CreateOperation(ctx, op.record()); err != nil {
		p.logger.Error("failed to journal queued operation", "operation_id", op.ID(), "error", err)
	}
}

func (p *Pool) started(op *Operation, workerID int) {
	p.broker.Publish(Event{
		OperationID: op.ID(),
		Status:      model.StatusRunning,
		WorkerID:    &workerID,
		At:          time.Now().UTC(),
	})
	if p.journal == nil {
		return
	}
	ctx, cancel := p.journalCtx()
	defer cancel()
	if err := p.journal.UpdateOperationStatus(ctx, op.ID(), model.StatusRunning); err != nil {
		p.logger.Error("failed to journal running operation", "operation_id", op.ID(), "error", err)
	}
}

func (p *Pool) finished(op *Operation, workerID int, err error, elapsed time.Duration) {
	status := model.StatusCompleted
	var errMsg string
	if err != nil {
		status = model.StatusFailed
		errMsg = err.Error()
	}

	operationsTotal.WithLabelValues(op.Kind(), status).Inc()
	operationDuration.WithLabelValues(op.Kind()).Observe(elapsed.Seconds())

	now := time.Now().UTC()
	p.broker.Publish(Event{
		OperationID: op.ID(),
		Status:      status,
		WorkerID:    &workerID,
		Error:       errMsg,
		At:          now,
	})
	if p.journal == nil {
		return
	}

	durationMS := int(elapsed.Milliseconds())
	rec := &model.OperationRecord{
		ID:         op.ID(),
		Status:     status,
		Error:      errMsg,
		WorkerID:   &workerID,
		DurationMS: &durationMS,
		FinishedAt: &now,
	}
	ctx, cancel := p.journalCtx()
	defer cancel()
	if err := p.journal.UpdateOperation(ctx, rec); err != nil {
		p.logger.Error("failed to journal finished operation", "operation_id", op.ID(), "error", err)
	}
}

func (p *Pool) dropped(op *Operation, workerID int) {
	p.recordDropped(op, &workerID)
}

// abandon drops op without handing it to a worker.
func (p *Pool) abandon(op *Operation) {
	p.recordDropped(op, nil)
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("operation destroy panicked", append(operationAttrs(op), "panic", r)...)
		}
		p.destroyed(op)
	}()
	op.Destroy()
}

func (p *Pool) recordDropped(op *Operation, workerID *int) {
	operationsTotal.WithLabelValues(op.Kind(), model.StatusDropped).Inc()
	p.broker.Publish(Event{
		OperationID: op.ID(),
		Status:      model.StatusDropped,
		WorkerID:    workerID,
		At:          time.Now().UTC(),
	})
	if p.journal == nil {
		return
	}
	ctx, cancel := p.journalCtx()
	defer cancel()
	if err := p.journal.UpdateOperationStatus(ctx, op.ID(), model.StatusDropped); err != nil {
		p.logger.Error("failed to journal dropped operation", "operation_id", op.ID(), "error", err)
	}
}

func (p *Pool) destroyed(op *Operation) {
	p.broker.Close(op.ID())
}
