package entitlement

import (
	"context"
	"fmt"
	"log/slog"

	"tiergate/internal/telemetry"
	"tiergate/internal/types"
)

// Reconciler writes entitlement grants and owns the revocation policy.
type Reconciler struct {
	ledger  Ledger
	policy  types.RevocationPolicy
	metrics telemetry.Recorder
	logger  *slog.Logger
}

// NewReconciler creates a Reconciler. An empty policy means retain.
func NewReconciler(ledger Ledger, policy types.RevocationPolicy, metrics telemetry.Recorder, logger *slog.Logger) *Reconciler {
	if policy == "" {
		policy = types.RevocationRetain
	}
	if metrics == nil {
		metrics = telemetry.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{ledger: ledger, policy: policy, metrics: metrics, logger: logger}
}

// Policy returns the configured revocation policy.
func (r *Reconciler) Policy() types.RevocationPolicy {
	return r.policy
}

// Grant gives userID access to resourceID. An existing grant is left as is.
func (r *Reconciler) Grant(ctx context.Context, userID, resourceID string) (*types.EntitlementGrant, error) {
	g, created, err := r.ledger.UpsertEntitlement(ctx, userID, resourceID)
	if err != nil {
		// The user paid but holds no access until a redelivery succeeds.
		r.logger.ErrorContext(ctx, "entitlement grant write failed",
			"user_id", userID,
			"resource_id", resourceID,
			"error_code", string(types.CodeOf(err)),
			"error", err.Error(),
		)
		r.metrics.RecordLedgerWriteFailed(ctx, tableEntitlements)
		return nil, err
	}
	if created {
		r.logger.InfoContext(ctx, "entitlement granted",
			"user_id", userID,
			"resource_id", resourceID,
			"grant_id", g.ID,
		)
	} else {
		r.logger.InfoContext(ctx, "entitlement already present",
			"user_id", userID,
			"resource_id", resourceID,
			"grant_id", g.ID,
		)
	}
	return g, nil
}

// Revoke applies the revocation policy to externalUserID's grant on
// resourceID. It is the only place the policy is consulted.
//
// Under RevocationRetain nothing is read or written. Under RevocationRevoke
// the user is looked up but never created, and an empty resourceID is
// reported as missing metadata.
func (r *Reconciler) Revoke(ctx context.Context, externalUserID, resourceID string) (types.Outcome, error) {
	if r.policy != types.RevocationRevoke {
		r.logger.InfoContext(ctx, "revocation event received, grant retained",
			"external_user_id", externalUserID,
			"resource_id", resourceID,
			"policy", string(r.policy),
		)
		return types.OutcomeRetained, nil
	}

	if resourceID == "" {
		r.logger.WarnContext(ctx, "revocation event has no template metadata, nothing revoked",
			"external_user_id", externalUserID,
		)
		return types.OutcomeMissingMetadata, nil
	}

	user, err := r.ledger.GetUserByExternalID(ctx, externalUserID)
	switch {
	case types.CodeOf(err) == types.ErrCodeNotFoundUser:
		r.logger.InfoContext(ctx, "revocation for unknown user, nothing to remove",
			"external_user_id", externalUserID,
			"resource_id", resourceID,
		)
		return types.OutcomeRevoked, nil
	case err != nil:
		return types.OutcomeFailed, fmt.Errorf("lookup user: %w", err)
	}

	removed, err := r.ledger.DeleteEntitlement(ctx, user.ID, resourceID)
	if err != nil {
		r.logger.ErrorContext(ctx, "entitlement revoke failed",
			"user_id", user.ID,
			"resource_id", resourceID,
			"error", err.Error(),
		)
		r.metrics.RecordLedgerWriteFailed(ctx, tableEntitlements)
		return types.OutcomeFailed, err
	}
	r.logger.InfoContext(ctx, "entitlement revoked",
		"user_id", user.ID,
		"resource_id", resourceID,
		"removed", removed,
	)
	return types.OutcomeRevoked, nil
}
