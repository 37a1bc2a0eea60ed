// Package dispatch runs accepted webhook events off the request goroutine.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"tiergate/internal/types"
)

// ErrDrainInterrupted is returned by Stop when its context ends while tasks
// are still queued or running. Those tasks keep running.
var ErrDrainInterrupted = errors.New("dispatch: drain interrupted")

// Task is one unit of background work.
type Task func(ctx context.Context) error

type job struct {
	name string
	ctx  context.Context
	fn   Task
}

// PoolConfig sizes a Pool.
type PoolConfig struct {
	Workers   int
	QueueSize int
}

// Pool is a fixed set of workers fed by a bounded buffer. Submit never
// blocks; a full buffer is reported to the caller.
type Pool struct {
	cfg    PoolConfig
	queue  chan job
	logger *slog.Logger

	mu       sync.RWMutex
	started  bool
	stopped  bool
	g        errgroup.Group
	inFlight atomic.Int64
}

// NewPool creates a Pool. Workers and QueueSize below 1 are raised to 1.
func NewPool(cfg PoolConfig, logger *slog.Logger) *Pool {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		cfg:    cfg,
		queue:  make(chan job, cfg.QueueSize),
		logger: logger,
	}
}

// Start launches the workers. Calling Start twice is a no-op.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true
	for range p.cfg.Workers {
		p.g.Go(func() error {
			for j := range p.queue {
				p.run(j)
			}
			return nil
		})
	}
	p.logger.Info("dispatch pool started", "workers", p.cfg.Workers, "queue_size", p.cfg.QueueSize)
}

// Submit enqueues fn. The task runs with a context detached from ctx's
// cancellation so that it outlives the request that submitted it.
func (p *Pool) Submit(ctx context.Context, name string, fn Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		return types.NewAppError(types.ErrCodeDispatchStopped, "dispatch pool is stopped", nil)
	}
	select {
	case p.queue <- job{name: name, ctx: context.WithoutCancel(ctx), fn: fn}:
		return nil
	default:
		return types.NewAppErrorWithDetails(types.ErrCodeDispatchQueueFull, "dispatch queue is full", nil,
			map[string]any{"queue_size": p.cfg.QueueSize})
	}
}

// Stop rejects new work and waits for queued and in-flight tasks to finish,
// or for ctx to end.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.queue)
	started := p.started
	p.mu.Unlock()

	if !started {
		return nil
	}

	done := make(chan struct{})
	go func() {
		_ = p.g.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.logger.Info("dispatch pool drained")
		return nil
	case <-ctx.Done():
		p.logger.Error("dispatch pool drain interrupted",
			"queued", p.Pending(),
			"in_flight", p.InFlight(),
		)
		return fmt.Errorf("%w: %w", ErrDrainInterrupted, ctx.Err())
	}
}

// Pending returns the number of queued tasks not yet picked up by a worker.
func (p *Pool) Pending() int {
	return len(p.queue)
}

// InFlight returns the number of tasks a worker is running right now.
func (p *Pool) InFlight() int {
	return int(p.inFlight.Load())
}

func (p *Pool) run(j job) {
	p.inFlight.Add(1)
	defer p.inFlight.Add(-1)

	logger := types.LoggerFromContext(j.ctx, p.logger)
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorContext(j.ctx, "dispatched task panicked",
				"task", j.name,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
		}
	}()

	if err := j.fn(j.ctx); err != nil {
		logger.ErrorContext(j.ctx, "dispatched task failed",
			"task", j.name,
			"error_code", string(types.CodeOf(err)),
			"error", err.Error(),
		)
	}
}
