// Package entitlement applies canonical webhook events to the ledger: it
// resolves the external user, appends purchases and reconciles grants.
package entitlement

import (
	"context"

	"tiergate/internal/types"
)

// Ledger is the persistence the pipeline needs. db.Ledger and
// memstore.Store both satisfy it.
type Ledger interface {
	GetUserByExternalID(ctx context.Context, externalUserID string) (*types.User, error)
	UpsertUser(ctx context.Context, externalUserID string, profile types.UserProfile) (*types.User, error)
	InsertPurchase(ctx context.Context, p *types.Purchase) (*types.Purchase, error)
	UpsertEntitlement(ctx context.Context, userID, resourceID string) (*types.EntitlementGrant, bool, error)
	DeleteEntitlement(ctx context.Context, userID, resourceID string) (bool, error)
}

// Ledger table names used in logs and metrics.
const (
	tableUsers        = "users"
	tablePurchases    = "purchases"
	tableEntitlements = "entitlement_grants"
)
