package entitlement

import (
	"context"
	"fmt"
	"log/slog"

	"tiergate/internal/dedupe"
	"tiergate/internal/events"
	"tiergate/internal/external"
	"tiergate/internal/telemetry"
	"tiergate/internal/types"
)

// Processor runs one canonical event through resolve, record and reconcile.
// It is the unit of work handed to the dispatcher and the queue worker.
type Processor struct {
	resolver   *Resolver
	purchases  *PurchaseRecorder
	reconciler *Reconciler
	claims     dedupe.Store
	metrics    telemetry.Recorder
	clock      types.Clock
	logger     *slog.Logger
}

// ProcessorDeps configures a Processor. Claims, Metrics, Clock and Logger
// are optional.
type ProcessorDeps struct {
	Resolver   *Resolver
	Purchases  *PurchaseRecorder
	Reconciler *Reconciler
	Claims     dedupe.Store
	Metrics    telemetry.Recorder
	Clock      types.Clock
	Logger     *slog.Logger
}

// NewProcessor creates a Processor.
func NewProcessor(deps ProcessorDeps) *Processor {
	p := &Processor{
		resolver:   deps.Resolver,
		purchases:  deps.Purchases,
		reconciler: deps.Reconciler,
		claims:     deps.Claims,
		metrics:    deps.Metrics,
		clock:      deps.Clock,
		logger:     deps.Logger,
	}
	if p.claims == nil {
		p.claims = dedupe.Nop{}
	}
	if p.metrics == nil {
		p.metrics = telemetry.Nop{}
	}
	if p.clock == nil {
		p.clock = types.RealClock{}
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// New wires a Processor and its stages over one ledger.
func New(ledger Ledger, identity external.IdentityProvider, policy types.RevocationPolicy, claims dedupe.Store, metrics telemetry.Recorder, logger *slog.Logger) *Processor {
	return NewProcessor(ProcessorDeps{
		Resolver:   NewResolver(ledger, identity, metrics, logger),
		Purchases:  NewPurchaseRecorder(ledger, metrics, logger),
		Reconciler: NewReconciler(ledger, policy, metrics, logger),
		Claims:     claims,
		Metrics:    metrics,
		Logger:     logger,
	})
}

// Process applies ev and returns the terminal outcome. The error is non-nil
// only for OutcomeFailed; it is for logging and is never retried here.
func (p *Processor) Process(ctx context.Context, ev *events.CanonicalEvent) (types.Outcome, error) {
	start := p.clock.Now()
	ctx = types.WithDeliveryID(ctx, ev.DeliveryID)
	logger := p.logger.With(
		"delivery_id", ev.DeliveryID,
		"event_kind", string(ev.Kind),
		"external_user_id", ev.ExternalUserID,
	)

	outcome, err := p.process(ctx, ev, logger)

	p.metrics.RecordOutcome(ctx, string(ev.Kind), outcome)
	p.metrics.RecordLatency(ctx, string(ev.Kind), p.clock.Now().Sub(start))
	if err != nil {
		logger.ErrorContext(ctx, "event processing failed",
			"error_code", string(types.CodeOf(err)),
			"error", err.Error(),
		)
	} else {
		logger.InfoContext(ctx, "event processed", "outcome", string(outcome))
	}
	return outcome, err
}

func (p *Processor) process(ctx context.Context, ev *events.CanonicalEvent, logger *slog.Logger) (types.Outcome, error) {
	if !ev.Kind.Known() {
		return types.OutcomeDropped, nil
	}

	key := events.DeliveryKey(ev)
	claimed, err := p.claims.Claim(ctx, key)
	if err != nil {
		logger.WarnContext(ctx, "delivery claim unavailable, processing without dedupe", "error", err.Error())
		claimed = true
	}
	if !claimed {
		return types.OutcomeDuplicate, nil
	}

	outcome, err := p.apply(ctx, ev, logger)
	if err != nil {
		if relErr := p.claims.Release(ctx, key); relErr != nil {
			logger.WarnContext(ctx, "failed to release delivery claim", "error", relErr.Error())
		}
		return types.OutcomeFailed, err
	}
	return outcome, nil
}

func (p *Processor) apply(ctx context.Context, ev *events.CanonicalEvent, logger *slog.Logger) (types.Outcome, error) {
	switch {
	case ev.Kind.Revokes():
		return p.revoke(ctx, ev)
	case ev.Kind.Grants():
		return p.grant(ctx, ev, logger)
	default:
		return types.OutcomeFailed, types.NewAppError(types.ErrCodeValidationEvent,
			fmt.Sprintf("no handler for event kind %q", ev.Kind), nil)
	}
}

func (p *Processor) grant(ctx context.Context, ev *events.CanonicalEvent, logger *slog.Logger) (types.Outcome, error) {
	user, err := p.resolver.Resolve(ctx, ev.ExternalUserID)
	if err != nil {
		return types.OutcomeFailed, fmt.Errorf("resolve user: %w", err)
	}

	if ev.Kind.RecordsPurchase() {
		var amount float64
		if ev.Amount != nil {
			amount = *ev.Amount
		}
		// Failure is already logged by the recorder and does not block the grant.
		_, _ = p.purchases.Record(ctx, user.ID, ev.ExternalReferenceID, amount, types.PurchaseStatusCompleted, ev.Metadata)
	}

	resourceID, ok := ev.ResourceID()
	if !ok {
		logger.WarnContext(ctx, "event has no template metadata, no entitlement written",
			"user_id", user.ID,
			"external_reference_id", ev.ExternalReferenceID,
		)
		return types.OutcomeMissingMetadata, nil
	}

	if _, err := p.reconciler.Grant(ctx, user.ID, resourceID); err != nil {
		return types.OutcomeFailed, fmt.Errorf("grant entitlement: %w", err)
	}
	return types.OutcomeGranted, nil
}

func (p *Processor) revoke(ctx context.Context, ev *events.CanonicalEvent) (types.Outcome, error) {
	resourceID, _ := ev.ResourceID()
	outcome, err := p.reconciler.Revoke(ctx, ev.ExternalUserID, resourceID)
	if err != nil {
		return outcome, fmt.Errorf("revoke entitlement: %w", err)
	}
	return outcome, nil
}
