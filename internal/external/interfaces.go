package external

import (
	"context"
	"net/http"

	"tiergate/internal/types"
)

// IdentityProvider fetches a user's profile from the commerce platform.
type IdentityProvider interface {
	// FetchProfile returns the profile for externalUserID. A user unknown to
	// the platform yields a not_found_user AppError; transport failures yield
	// an upstream_* AppError.
	FetchProfile(ctx context.Context, externalUserID string) (*types.UserProfile, error)
}

// WebhookVerifier authenticates a raw webhook body.
type WebhookVerifier interface {
	// Verify checks payload and headers against secret and returns the
	// sender's delivery ID when the scheme carries one. Any failure is a
	// verification_signature_invalid AppError.
	Verify(payload []byte, headers http.Header, secret types.SecretString) (deliveryID string, err error)
}
