package entitlement

import (
	"context"
	"log/slog"

	"tiergate/internal/telemetry"
	"tiergate/internal/types"
)

// PurchaseRecorder appends purchase rows.
type PurchaseRecorder struct {
	ledger  Ledger
	metrics telemetry.Recorder
	logger  *slog.Logger
}

// NewPurchaseRecorder creates a PurchaseRecorder.
func NewPurchaseRecorder(ledger Ledger, metrics telemetry.Recorder, logger *slog.Logger) *PurchaseRecorder {
	if metrics == nil {
		metrics = telemetry.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PurchaseRecorder{ledger: ledger, metrics: metrics, logger: logger}
}

// Record appends one purchase. A write failure is logged and returned; callers
// continue to reconciliation regardless.
func (r *PurchaseRecorder) Record(ctx context.Context, userID, externalPaymentID string, amount float64, status types.PurchaseStatus, metadata types.Metadata) (*types.Purchase, error) {
	p, err := r.ledger.InsertPurchase(ctx, &types.Purchase{
		UserID:            userID,
		ExternalPaymentID: externalPaymentID,
		Amount:            amount,
		Status:            status,
		Metadata:          metadata,
	})
	if err != nil {
		r.logger.ErrorContext(ctx, "purchase write failed",
			"user_id", userID,
			"external_payment_id", externalPaymentID,
			"error_code", string(types.CodeOf(err)),
			"error", err.Error(),
		)
		r.metrics.RecordLedgerWriteFailed(ctx, tablePurchases)
		return nil, err
	}
	r.logger.InfoContext(ctx, "purchase recorded",
		"purchase_id", p.ID,
		"user_id", userID,
		"external_payment_id", externalPaymentID,
		"amount", amount,
		"status", string(status),
	)
	return p, nil
}
