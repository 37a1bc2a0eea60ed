package external

import (
	"context"
	"log/slog"

	"tiergate/internal/types"
)

// StubIdentityProvider returns an empty profile for every user. Used for
// local development without platform credentials.
type StubIdentityProvider struct {
	logger *slog.Logger
}

// NewStubIdentityProvider creates a StubIdentityProvider.
func NewStubIdentityProvider(logger *slog.Logger) *StubIdentityProvider {
	return &StubIdentityProvider{logger: logger}
}

// FetchProfile implements IdentityProvider.
func (s *StubIdentityProvider) FetchProfile(ctx context.Context, externalUserID string) (*types.UserProfile, error) {
	s.logger.InfoContext(ctx, "stub: FetchProfile called", "external_user_id", externalUserID)
	return &types.UserProfile{}, nil
}

var _ IdentityProvider = (*StubIdentityProvider)(nil)
