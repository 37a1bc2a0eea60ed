package db

import (
	"context"

	"tiergate/internal/types"
)

// Ledger is the PostgreSQL implementation of the entitlement ledger. It
// composes the three repositories over one connection pool.
type Ledger struct {
	users        *UserRepository
	purchases    *PurchaseRepository
	entitlements *EntitlementRepository
}

// NewLedger creates a Ledger backed by db.
func NewLedger(db DBTX) *Ledger {
	return &Ledger{
		users:        NewUserRepository(db),
		purchases:    NewPurchaseRepository(db),
		entitlements: NewEntitlementRepository(db),
	}
}

// GetUserByExternalID returns the user with externalUserID or a not_found_user error.
func (l *Ledger) GetUserByExternalID(ctx context.Context, externalUserID string) (*types.User, error) {
	return l.users.GetByExternalID(ctx, externalUserID)
}

// UpsertUser creates the user or fills in its blank profile fields.
func (l *Ledger) UpsertUser(ctx context.Context, externalUserID string, profile types.UserProfile) (*types.User, error) {
	return l.users.Upsert(ctx, externalUserID, profile)
}

// InsertPurchase appends a purchase row.
func (l *Ledger) InsertPurchase(ctx context.Context, p *types.Purchase) (*types.Purchase, error) {
	return l.purchases.Insert(ctx, p)
}

// UpsertEntitlement grants resourceID to userID and reports whether a row was created.
func (l *Ledger) UpsertEntitlement(ctx context.Context, userID, resourceID string) (*types.EntitlementGrant, bool, error) {
	return l.entitlements.Upsert(ctx, userID, resourceID)
}

// DeleteEntitlement removes the grant and reports whether one existed.
func (l *Ledger) DeleteEntitlement(ctx context.Context, userID, resourceID string) (bool, error) {
	return l.entitlements.Delete(ctx, userID, resourceID)
}

// HasEntitlement reports whether userID holds a grant for resourceID. This is
// the read the list-viewing authorization check performs.
func (l *Ledger) HasEntitlement(ctx context.Context, userID, resourceID string) (bool, error) {
	_, err := l.entitlements.Get(ctx, userID, resourceID)
	if err == nil {
		return true, nil
	}
	if types.CodeOf(err) == types.ErrCodeNotFoundEntitlement {
		return false, nil
	}
	return false, err
}
