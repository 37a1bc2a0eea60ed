package external

import (
	"log/slog"
	"net/http"

	"tiergate/internal/config"
)

// ClientRegistry holds the platform adapters. It is built once at startup
// and passed to the components that need it.
type ClientRegistry struct {
	Identity IdentityProvider
	Verifier WebhookVerifier
}

// NewClientRegistry builds the adapters from configuration. In the local
// environment without an identity API key the identity provider is a stub,
// so the service boots without platform credentials.
func NewClientRegistry(cfg *config.Config, logger *slog.Logger) *ClientRegistry {
	if logger == nil {
		logger = slog.Default()
	}

	reg := &ClientRegistry{
		Verifier: NewVerifier(cfg.Webhook.SignatureScheme),
	}

	if cfg.Environment == "local" && cfg.Identity.APIKey.IsEmpty() {
		logger.Info("identity provider in STUB mode", "environment", cfg.Environment)
		reg.Identity = NewStubIdentityProvider(logger.With("mode", "stub"))
		return reg
	}

	reg.Identity = NewIdentityClient(&http.Client{Timeout: cfg.Identity.Timeout}, IdentityClientConfig{
		BaseURL: cfg.Identity.BaseURL,
		APIKey:  cfg.Identity.APIKey,
		Logger:  logger.With("client", "identity"),
	})
	return reg
}
