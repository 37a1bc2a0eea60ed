// Package config defines the process configuration for tiergate.
// Configuration is loaded once at startup (or Lambda cold start) and is
// immutable thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// Any invalid value causes startup to fail. The webhook secret is the one
// deliberate exception: an empty secret is accepted here so that the webhook
// endpoint can report the misconfiguration on every request.
package config

import (
	"time"

	"tiergate/internal/types"
)

// SecretString is an alias for types.SecretString.
type SecretString = types.SecretString

// Config is the top-level configuration struct.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"tiergate"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Server        ServerConfig
	Database      DatabaseConfig
	Webhook       WebhookConfig
	Identity      IdentityConfig
	Dispatch      DispatchConfig
	Entitlement   EntitlementConfig
	AWS           AWSConfig
	Dedupe        DedupeConfig
	Observability ObservabilityConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"25s"`
}

// DatabaseConfig holds ledger connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10" validate:"min=1"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2" validate:"min=0"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
	MigrateOnStart    bool          `envconfig:"DB_MIGRATE_ON_START" default:"false"`
}

// WebhookConfig holds inbound webhook verification settings.
type WebhookConfig struct {
	// Secret is intentionally not required; see the package comment.
	Secret          SecretString          `envconfig:"WEBHOOK_SECRET"`
	SignatureScheme types.SignatureScheme `envconfig:"WEBHOOK_SIGNATURE_SCHEME" default:"standard" validate:"oneof=standard stripe"`
	MaxBodyBytes    int64                 `envconfig:"WEBHOOK_MAX_BODY_BYTES" default:"65536" validate:"min=1024"`
}

// IdentityConfig holds settings for the commerce platform's user lookup API.
type IdentityConfig struct {
	APIKey  SecretString  `envconfig:"IDENTITY_API_KEY"`
	BaseURL string        `envconfig:"IDENTITY_BASE_URL" default:"https://api.whop.com" validate:"required,url"`
	Timeout time.Duration `envconfig:"IDENTITY_TIMEOUT" default:"5s"`
}

// DispatchConfig controls how accepted events are handed off after the ack.
type DispatchConfig struct {
	Mode      types.DispatchMode `envconfig:"DISPATCH_MODE" default:"local" validate:"oneof=local sqs"`
	Workers   int                `envconfig:"DISPATCH_WORKERS" default:"8" validate:"min=1,max=256"`
	QueueSize int                `envconfig:"DISPATCH_QUEUE_SIZE" default:"1024" validate:"min=1"`
	// DrainTimeout bounds how long shutdown waits for handed-off events,
	// separately from SHUTDOWN_TIMEOUT.
	DrainTimeout time.Duration `envconfig:"DISPATCH_DRAIN_TIMEOUT" default:"30s"`
}

// EntitlementConfig holds the named product policies of the reconciler.
type EntitlementConfig struct {
	RevocationPolicy types.RevocationPolicy `envconfig:"ENTITLEMENT_REVOCATION_POLICY" default:"retain" validate:"oneof=retain revoke"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// EntitlementQueue is required when Dispatch.Mode is "sqs".
	EntitlementQueue string `envconfig:"SQS_ENTITLEMENT_EVENTS" validate:"omitempty,url"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// DedupeConfig configures the optional delivery dedupe cache.
type DedupeConfig struct {
	RedisURL SecretString  `envconfig:"REDIS_URL"`
	TTL      time.Duration `envconfig:"DEDUPE_TTL" default:"24h"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"TierGate"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"false"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrSSMResolution indicates a failure when fetching secrets from AWS SSM.
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
