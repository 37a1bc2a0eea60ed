package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"tiergate/internal/types"
)

// PurchaseRepository appends rows to the purchases table. Rows are never
// updated or deleted.
type PurchaseRepository struct {
	db DBTX
}

// NewPurchaseRepository creates a new PurchaseRepository.
func NewPurchaseRepository(db DBTX) *PurchaseRepository {
	return &PurchaseRepository{db: db}
}

// Insert appends p and returns the stored row. p.ID and p.CreatedAt are
// assigned by the repository.
func (r *PurchaseRepository) Insert(ctx context.Context, p *types.Purchase) (*types.Purchase, error) {
	if !p.Status.Valid() {
		return nil, types.NewAppError(types.ErrCodeValidationEvent, fmt.Sprintf("invalid purchase status %q", p.Status), nil)
	}

	out := *p
	out.ID = uuid.NewString()
	err := r.db.QueryRow(ctx,
		`INSERT INTO purchases (id, user_id, external_payment_id, amount, status, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())
		 RETURNING created_at`,
		out.ID,
		out.UserID,
		out.ExternalPaymentID,
		out.Amount,
		string(out.Status),
		out.Metadata,
	).Scan(&out.CreatedAt)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to insert purchase", err)
	}
	return &out, nil
}

// CountByExternalPaymentID returns how many rows reference externalPaymentID.
// Redelivery may append more than one.
func (r *PurchaseRepository) CountByExternalPaymentID(ctx context.Context, externalPaymentID string) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM purchases WHERE external_payment_id = $1`,
		externalPaymentID,
	).Scan(&n); err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count purchases", err)
	}
	return n, nil
}
