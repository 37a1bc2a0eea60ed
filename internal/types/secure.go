package types

import (
	"log/slog"
	"strings"
)

// redactedPlaceholder is the string used to replace secret values in logs and serialization.
const redactedPlaceholder = "***REDACTED***"

// redactedJSON is the pre-computed JSON encoding of the redacted placeholder.
var redactedJSON = []byte(`"***REDACTED***"`)

// SecretString is a string type that prevents accidental logging or serialization
// of sensitive values such as the webhook signing secret or the identity API key.
// String, MarshalJSON and LogValue all return a redacted placeholder.
//
// Use Unmask() to retrieve the raw plaintext value when it is genuinely needed.
type SecretString string

// String returns a redacted placeholder instead of the raw value.
func (s SecretString) String() string {
	return redactedPlaceholder
}

// MarshalJSON returns the redacted placeholder as a JSON string.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return redactedJSON, nil
}

// LogValue implements slog.LogValuer so secrets passed as log attributes are redacted.
func (s SecretString) LogValue() slog.Value {
	return slog.StringValue(redactedPlaceholder)
}

// IsEmpty reports whether the secret is unset or whitespace only.
func (s SecretString) IsEmpty() bool {
	return strings.TrimSpace(string(s)) == ""
}

// Unmask returns the raw plaintext value of the secret.
// Usage should be limited to the places that actually sign, verify or
// authenticate with it.
func (s SecretString) Unmask() string {
	return string(s)
}
