package dispatch

import (
	"context"

	"tiergate/internal/events"
	"tiergate/internal/types"
)

// Processor applies one canonical event. entitlement.Processor satisfies it.
type Processor interface {
	Process(ctx context.Context, ev *events.CanonicalEvent) (types.Outcome, error)
}

// Local hands events to an in-process Pool.
type Local struct {
	pool      *Pool
	processor Processor
}

// NewLocal creates a Local dispatcher.
func NewLocal(pool *Pool, processor Processor) *Local {
	return &Local{pool: pool, processor: processor}
}

// Dispatch enqueues ev and returns without waiting for it to be processed.
func (l *Local) Dispatch(ctx context.Context, ev *events.CanonicalEvent) error {
	return l.pool.Submit(ctx, string(ev.Kind), func(ctx context.Context) error {
		// Processor logs and counts its own failures.
		_, _ = l.processor.Process(ctx, ev)
		return nil
	})
}
