package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type pendingCallback interface {
	ready() bool
	invoke()
}

type futureCallback[T any] struct {
	future *Future[T]
	fn     func(T, error)
}

func (c *futureCallback[T]) ready() bool { return c.future.Ready() }

func (c *futureCallback[T]) invoke() {
	v, err := c.future.Get()
	c.fn(v, err)
}

// CallbackProcessor runs completion callbacks on the goroutine that calls
// ProcessReady, typically the caller's main loop.
type CallbackProcessor struct {
	mu        sync.Mutex
	callbacks []pendingCallback
	logger    *slog.Logger
}

// NewCallbackProcessor creates an empty processor.
func NewCallbackProcessor(logger *slog.Logger) *CallbackProcessor {
	return &CallbackProcessor{logger: logger}
}

// OnComplete registers fn to run once f is resolved, on the next
// ProcessReady call after resolution.
func OnComplete[T any](p *CallbackProcessor, f *Future[T], fn func(T, error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.callbacks = append(p.callbacks, &futureCallback[T]{future: f, fn: fn})
}

// Len returns the number of registered callbacks not yet invoked.
func (p *CallbackProcessor) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.callbacks)
}

// ProcessReady invokes every callback whose future is resolved, removes
// them and returns how many ran. Callbacks registered while processing are
// kept for the next call.
func (p *CallbackProcessor) ProcessReady() int {
	p.mu.Lock()
	pending := p.callbacks
	p.callbacks = nil
	p.mu.Unlock()

	var keep []pendingCallback
	invoked := 0
	for _, cb := range pending {
		if !cb.ready() {
			keep = append(keep, cb)
			continue
		}
		p.invoke(cb)
		invoked++
	}

	p.mu.Lock()
	p.callbacks = append(keep, p.callbacks...)
	p.mu.Unlock()
	return invoked
}

func (p *CallbackProcessor) invoke(cb pendingCallback) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("query callback panicked", "panic", r)
		}
	}()
	cb.invoke()
}

// Run calls ProcessReady every interval until ctx is done.
func (p *CallbackProcessor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.ProcessReady()
		}
	}
}
