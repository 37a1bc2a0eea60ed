// Package handlers contains the HTTP handlers for tiergate.
//
// The webhook endpoint is called directly by the commerce platform and is not
// behind any auth middleware; authenticity comes from the signature headers.
package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tiergate/internal/core"
	"tiergate/internal/events"
	"tiergate/internal/external"
	"tiergate/internal/telemetry"
	"tiergate/internal/types"
)

// defaultMaxBodyBytes caps webhook bodies when no limit is configured.
const defaultMaxBodyBytes = 64 * 1024

// Response bodies. Senders only look at the status code.
const (
	bodyAccepted      = "OK"
	bodyRejected      = "Error processing webhook"
	bodySecretMissing = "Webhook secret not configured"
)

// Dispatcher moves a canonical event off the request goroutine.
// dispatch.Local and queue.EventPublisher implement it.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev *events.CanonicalEvent) error
}

// WebhookHandlerConfig configures a WebhookHandler. Metrics, Clock and
// Logger are optional.
type WebhookHandlerConfig struct {
	Secret       types.SecretString
	Verifier     external.WebhookVerifier
	Dispatcher   Dispatcher
	Metrics      telemetry.Recorder
	MaxBodyBytes int64
	Clock        types.Clock
	Logger       *slog.Logger
}

// WebhookHandler accepts platform events, verifies them and hands them to the
// dispatcher. Every request that passes the secret check is answered 200.
type WebhookHandler struct {
	secret     types.SecretString
	verifier   external.WebhookVerifier
	dispatcher Dispatcher
	metrics    telemetry.Recorder
	maxBody    int64
	clock      types.Clock
	logger     *slog.Logger
}

// NewWebhookHandler creates a WebhookHandler.
func NewWebhookHandler(cfg WebhookHandlerConfig) *WebhookHandler {
	h := &WebhookHandler{
		secret:     cfg.Secret,
		verifier:   cfg.Verifier,
		dispatcher: cfg.Dispatcher,
		metrics:    cfg.Metrics,
		maxBody:    cfg.MaxBodyBytes,
		clock:      cfg.Clock,
		logger:     cfg.Logger,
	}
	if h.metrics == nil {
		h.metrics = telemetry.Nop{}
	}
	if h.maxBody <= 0 {
		h.maxBody = defaultMaxBodyBytes
	}
	if h.clock == nil {
		h.clock = types.RealClock{}
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	return h
}

// RegisterRoutes mounts POST /webhooks.
func (h *WebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks", h.Handle)
}

// Handle processes one delivery:
//  1. Secret guard: without a configured secret, answer 500 unread.
//  2. Read the body under the size limit.
//  3. Verify the signature headers.
//  4. Parse the envelope and normalize its kind.
//  5. Drop unknown kinds; decode and dispatch known ones.
//
// Failures in steps 2-5 are logged and answered 200 so that the sender does
// not retry a delivery that can never succeed.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.secret.IsEmpty() {
		h.logger.ErrorContext(ctx, "webhook secret not configured, refusing delivery",
			"error_code", string(types.ErrCodeConfigWebhookSecretMissing),
		)
		core.Text(w, http.StatusInternalServerError, bodySecretMissing)
		return
	}

	receivedAt := h.clock.Now()

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.reject(ctx, w, string(events.KindUnknown),
			types.NewAppError(types.ErrCodeVerificationBody, "failed to read webhook body", err))
		return
	}

	deliveryID, err := h.verifier.Verify(payload, r.Header, h.secret)
	if err != nil {
		h.reject(ctx, w, string(events.KindUnknown), err)
		return
	}
	ctx = types.WithDeliveryID(ctx, deliveryID)

	env, err := events.ParseEnvelope(payload, deliveryID)
	if err != nil {
		h.reject(ctx, w, string(events.KindUnknown), err)
		return
	}

	kind := events.Normalize(env.Kind)
	if !kind.Known() {
		h.logger.InfoContext(ctx, "unknown event kind dropped",
			"delivery_id", deliveryID,
			"raw_kind", env.Kind,
		)
		h.metrics.RecordOutcome(ctx, string(kind), types.OutcomeDropped)
		core.Text(w, http.StatusOK, bodyAccepted)
		return
	}

	ev, err := events.Decode(env, kind, receivedAt)
	if err != nil {
		h.reject(ctx, w, string(kind), err)
		return
	}

	if err := h.dispatcher.Dispatch(ctx, ev); err != nil {
		outcome := types.OutcomeFailed
		if types.CodeOf(err) == types.ErrCodeDispatchQueueFull {
			outcome = types.OutcomeOverflow
		}
		h.logger.ErrorContext(ctx, "event accepted but not dispatched",
			"delivery_id", deliveryID,
			"event_kind", string(kind),
			"external_user_id", ev.ExternalUserID,
			"error_code", string(types.CodeOf(err)),
			"error", err.Error(),
		)
		h.metrics.RecordOutcome(ctx, string(kind), outcome)
		core.Text(w, http.StatusOK, bodyAccepted)
		return
	}

	h.logger.InfoContext(ctx, "event dispatched",
		"delivery_id", deliveryID,
		"event_kind", string(kind),
		"external_user_id", ev.ExternalUserID,
	)
	h.metrics.RecordOutcome(ctx, string(kind), types.OutcomeDispatched)
	core.Text(w, http.StatusOK, bodyAccepted)
}

// reject logs a verification or decoding failure and acknowledges it.
func (h *WebhookHandler) reject(ctx context.Context, w http.ResponseWriter, kind string, err error) {
	attrs := []any{
		"delivery_id", types.GetDeliveryID(ctx),
		"error_code", string(types.CodeOf(err)),
		"error", err.Error(),
	}
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		attrs = append(attrs, "limit_bytes", maxBytesErr.Limit)
	}
	h.logger.WarnContext(ctx, "webhook rejected", attrs...)
	h.metrics.RecordOutcome(ctx, kind, types.OutcomeRejected)
	core.Text(w, http.StatusOK, bodyRejected)
}
