package external

import (
	"encoding/base64"
	"net/http"
	"strings"

	stripe "github.com/stripe/stripe-go/v82"
	svix "github.com/svix/svix-webhooks/go"

	"tiergate/internal/types"
)

// Standard Webhooks header names. The svix library also accepts the
// svix-* aliases.
const (
	HeaderWebhookID        = "webhook-id"
	HeaderWebhookTimestamp = "webhook-timestamp"
	HeaderWebhookSignature = "webhook-signature"

	HeaderStripeSignature = "Stripe-Signature"
)

// whsecPrefix marks a secret that is already in Standard Webhooks key form.
const whsecPrefix = "whsec_"

// StandardWebhookVerifier checks the Standard Webhooks scheme used by the
// commerce platform: HMAC-SHA256 over "id.timestamp.body", signed with the
// raw secret bytes, with a five minute timestamp tolerance.
type StandardWebhookVerifier struct{}

// NewStandardWebhookVerifier creates a StandardWebhookVerifier.
func NewStandardWebhookVerifier() *StandardWebhookVerifier {
	return &StandardWebhookVerifier{}
}

// SigningKey converts the configured secret into the key form the svix
// library expects. Plain secrets are base64-encoded; whsec_ keys pass through.
func SigningKey(secret types.SecretString) string {
	raw := strings.TrimSpace(secret.Unmask())
	if strings.HasPrefix(raw, whsecPrefix) {
		return raw
	}
	return base64.StdEncoding.EncodeToString([]byte(raw))
}

// Verify implements WebhookVerifier.
func (v *StandardWebhookVerifier) Verify(payload []byte, headers http.Header, secret types.SecretString) (string, error) {
	wh, err := svix.NewWebhook(SigningKey(secret))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeVerificationSignature, "webhook secret is not a valid signing key", err)
	}
	if err := wh.Verify(payload, headers); err != nil {
		return "", types.NewAppError(types.ErrCodeVerificationSignature, "webhook signature verification failed", err)
	}
	id := headers.Get(HeaderWebhookID)
	if id == "" {
		id = headers.Get("svix-id")
	}
	return id, nil
}

// StripeVerifier checks the Stripe-Signature scheme, for deployments that
// relay Stripe-style events.
type StripeVerifier struct{}

// NewStripeVerifier creates a StripeVerifier.
func NewStripeVerifier() *StripeVerifier {
	return &StripeVerifier{}
}

// Verify implements WebhookVerifier. Stripe carries the event ID in the body,
// so no delivery ID is returned.
func (v *StripeVerifier) Verify(payload []byte, headers http.Header, secret types.SecretString) (string, error) {
	if err := stripe.ValidatePayload(payload, headers.Get(HeaderStripeSignature), secret.Unmask()); err != nil {
		return "", types.NewAppError(types.ErrCodeVerificationSignature, "stripe signature verification failed", err)
	}
	return "", nil
}

// NewVerifier returns the verifier for scheme.
func NewVerifier(scheme types.SignatureScheme) WebhookVerifier {
	if scheme == types.SignatureSchemeStripe {
		return NewStripeVerifier()
	}
	return NewStandardWebhookVerifier()
}

var (
	_ WebhookVerifier = (*StandardWebhookVerifier)(nil)
	_ WebhookVerifier = (*StripeVerifier)(nil)
)
