package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	goredis "github.com/redis/go-redis/v9"
)

// ValidationResult holds the outcome of a validation check.
type ValidationResult struct {
	Valid   bool
	Message string
}

// DatabaseConnector abstracts the ledger connection probe for testing.
// Implementations must close the connection before returning.
type DatabaseConnector interface {
	Connect(ctx context.Context, dsn string) error
}

// PgxConnector connects with pgx and closes immediately.
type PgxConnector struct{}

func (c *PgxConnector) Connect(ctx context.Context, dsn string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	return conn.Close(ctx)
}

// RedisPinger abstracts the dedupe cache probe for testing.
type RedisPinger interface {
	Ping(ctx context.Context, opts *goredis.Options) error
}

// GoRedisPinger opens a client, pings once and closes it.
type GoRedisPinger struct{}

func (GoRedisPinger) Ping(ctx context.Context, opts *goredis.Options) error {
	client := goredis.NewClient(opts)
	defer client.Close()
	return client.Ping(ctx).Err()
}

// Validator holds the probes used by the inventory validators. A nil probe
// skips the live check and validates format only.
type Validator struct {
	dbConn DatabaseConnector
	redis  RedisPinger
}

// NewValidator creates a Validator with live probes.
func NewValidator() *Validator {
	return &Validator{dbConn: &PgxConnector{}, redis: GoRedisPinger{}}
}

// NewValidatorWithDeps creates a Validator with injected probes.
func NewValidatorWithDeps(dbConn DatabaseConnector, redis RedisPinger) *Validator {
	return &Validator{dbConn: dbConn, redis: redis}
}

const validateTimeout = 10 * time.Second

// ValidateDatabaseURL parses the DSN with pgx and, when a connector is
// configured, opens and closes one connection.
func (v *Validator) ValidateDatabaseURL(ctx context.Context, rawURL string) ValidationResult {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ValidationResult{Valid: false, Message: "database URL must not be empty"}
	}
	if !strings.HasPrefix(rawURL, "postgres://") && !strings.HasPrefix(rawURL, "postgresql://") {
		return ValidationResult{Valid: false, Message: "expected a postgres:// or postgresql:// URL"}
	}

	cfg, err := pgx.ParseConfig(rawURL)
	if err != nil {
		return ValidationResult{Valid: false, Message: fmt.Sprintf("invalid connection string: %v", err)}
	}

	if v.dbConn != nil {
		connCtx, cancel := context.WithTimeout(ctx, validateTimeout)
		defer cancel()
		if err := v.dbConn.Connect(connCtx, rawURL); err != nil {
			return ValidationResult{Valid: false, Message: fmt.Sprintf("connection failed: %v", err)}
		}
	}

	return ValidationResult{
		Valid:   true,
		Message: fmt.Sprintf("database URL accepted (host=%s, port=%d)", cfg.Host, cfg.Port),
	}
}

// minWebhookSecretLength rejects obviously truncated pastes.
const minWebhookSecretLength = 16

// ValidateWebhookSecret checks the signing secret copied from the platform
// dashboard. A whsec_ secret must carry valid base64 after the prefix.
func (v *Validator) ValidateWebhookSecret(_ context.Context, secret string) ValidationResult {
	secret = strings.TrimSpace(secret)
	if len(secret) < minWebhookSecretLength {
		return ValidationResult{Valid: false, Message: fmt.Sprintf("webhook secret must be at least %d characters", minWebhookSecretLength)}
	}
	if encoded, ok := strings.CutPrefix(secret, "whsec_"); ok {
		if _, err := base64.StdEncoding.DecodeString(encoded); err != nil {
			return ValidationResult{Valid: false, Message: "whsec_ secret is not valid base64 after the prefix"}
		}
	}
	return ValidationResult{Valid: true, Message: "webhook secret format validated"}
}

var identityKeyRegex = regexp.MustCompile(`^\S{20,}$`)

// ValidateIdentityKey checks the identity API key format.
func (v *Validator) ValidateIdentityKey(ctx context.Context, key string) ValidationResult {
	return v.ValidateRegex(ctx, key, identityKeyRegex.String(), "Identity API key")
}

// ValidateRedisURL parses the URL with go-redis and, when a pinger is
// configured, pings the server.
func (v *Validator) ValidateRedisURL(ctx context.Context, rawURL string) ValidationResult {
	rawURL = strings.TrimSpace(rawURL)
	opts, err := goredis.ParseURL(rawURL)
	if err != nil {
		return ValidationResult{Valid: false, Message: fmt.Sprintf("invalid redis URL: %v", err)}
	}

	if v.redis != nil {
		pingCtx, cancel := context.WithTimeout(ctx, validateTimeout)
		defer cancel()
		if err := v.redis.Ping(pingCtx, opts); err != nil {
			return ValidationResult{Valid: false, Message: fmt.Sprintf("redis ping failed: %v", err)}
		}
	}

	return ValidationResult{Valid: true, Message: fmt.Sprintf("redis URL accepted (addr=%s, db=%d)", opts.Addr, opts.DB)}
}

// ValidateQueueURL checks that the value looks like an SQS queue URL.
func (v *Validator) ValidateQueueURL(_ context.Context, rawURL string) ValidationResult {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return ValidationResult{Valid: false, Message: "queue URL must be an absolute URL"}
	}
	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return ValidationResult{Valid: false, Message: fmt.Sprintf("unexpected scheme %q", parsed.Scheme)}
	}
	if strings.Count(strings.Trim(parsed.Path, "/"), "/") != 1 {
		return ValidationResult{Valid: false, Message: "expected a path of the form /{account_id}/{queue_name}"}
	}
	return ValidationResult{Valid: true, Message: fmt.Sprintf("queue URL accepted (host=%s)", parsed.Host)}
}

// ValidateRegex validates input against pattern.
func (v *Validator) ValidateRegex(_ context.Context, input, pattern, fieldName string) ValidationResult {
	input = strings.TrimSpace(input)
	if input == "" {
		return ValidationResult{Valid: false, Message: fmt.Sprintf("%s must not be empty", fieldName)}
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return ValidationResult{Valid: false, Message: fmt.Sprintf("invalid regex pattern %q: %v", pattern, err)}
	}
	if !re.MatchString(input) {
		return ValidationResult{Valid: false, Message: fmt.Sprintf("%s does not match expected format (pattern: %s)", fieldName, pattern)}
	}
	return ValidationResult{Valid: true, Message: fmt.Sprintf("%s format validated", fieldName)}
}
