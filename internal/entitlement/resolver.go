package entitlement

import (
	"context"
	"log/slog"

	"tiergate/internal/external"
	"tiergate/internal/telemetry"
	"tiergate/internal/types"
)

// Resolver maps an external user ID to the internal user row, creating it on
// first sight.
type Resolver struct {
	ledger   Ledger
	identity external.IdentityProvider
	metrics  telemetry.Recorder
	logger   *slog.Logger
}

// NewResolver creates a Resolver. A nil metrics recorder disables metrics.
func NewResolver(ledger Ledger, identity external.IdentityProvider, metrics telemetry.Recorder, logger *slog.Logger) *Resolver {
	if metrics == nil {
		metrics = telemetry.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{ledger: ledger, identity: identity, metrics: metrics, logger: logger}
}

// Resolve returns the user for externalUserID. An unknown user's profile is
// fetched from the identity provider; if that fails, a user with no profile
// fields is created instead and the event continues.
func (r *Resolver) Resolve(ctx context.Context, externalUserID string) (*types.User, error) {
	user, found, err := r.Lookup(ctx, externalUserID)
	if err != nil {
		return nil, err
	}
	if found {
		return user, nil
	}

	profile, err := r.identity.FetchProfile(ctx, externalUserID)
	if err != nil {
		r.logger.WarnContext(ctx, "identity lookup failed, creating user without profile",
			"external_user_id", externalUserID,
			"error_code", string(types.CodeOf(err)),
			"error", err.Error(),
		)
		r.metrics.RecordIdentityDegraded(ctx)
		profile = &types.UserProfile{}
	}

	user, err = r.ledger.UpsertUser(ctx, externalUserID, *profile)
	if err != nil {
		r.metrics.RecordLedgerWriteFailed(ctx, tableUsers)
		return nil, err
	}
	r.logger.InfoContext(ctx, "user resolved",
		"external_user_id", externalUserID,
		"user_id", user.ID,
	)
	return user, nil
}

// Lookup returns the existing user without creating one.
func (r *Resolver) Lookup(ctx context.Context, externalUserID string) (*types.User, bool, error) {
	user, err := r.ledger.GetUserByExternalID(ctx, externalUserID)
	switch {
	case err == nil:
		return user, true, nil
	case types.CodeOf(err) == types.ErrCodeNotFoundUser:
		return nil, false, nil
	default:
		return nil, false, err
	}
}
