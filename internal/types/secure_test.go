package types

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"testing"
)

const rawWebhookSecret = "whsec_MfKQ9r8GKYqrTwjUPD8ILPZIo2LaLaSw"

// TestSecretString_Redacted covers every path a secret can leak through when
// the webhook configuration is printed, logged or serialized.
func TestSecretString_Redacted(t *testing.T) {
	type webhookSettings struct {
		Secret SecretString `json:"secret"`
		Scheme string       `json:"scheme"`
	}
	settings := webhookSettings{Secret: SecretString(rawWebhookSecret), Scheme: "standard"}

	var logs strings.Builder
	slog.New(slog.NewJSONHandler(&logs, nil)).Info("webhook configured",
		"webhook_secret", settings.Secret,
		"settings", settings,
	)

	asJSON, err := json.Marshal(settings)
	if err != nil {
		t.Fatalf("json.Marshal: %v", err)
	}

	outputs := map[string]string{
		"%s":   fmt.Sprintf("%s", settings.Secret),
		"%v":   fmt.Sprintf("%v", settings),
		"%+v":  fmt.Sprintf("%+v", settings),
		"json": string(asJSON),
		"slog": logs.String(),
	}
	for name, out := range outputs {
		t.Run(name, func(t *testing.T) {
			if strings.Contains(out, rawWebhookSecret) {
				t.Errorf("raw secret leaked: %s", out)
			}
			if !strings.Contains(out, redactedPlaceholder) {
				t.Errorf("placeholder missing: %s", out)
			}
		})
	}
}

func TestSecretString_UnmaskReturnsRawValue(t *testing.T) {
	if got := SecretString(rawWebhookSecret).Unmask(); got != rawWebhookSecret {
		t.Errorf("Unmask() = %q, want the raw value", got)
	}
	if got := SecretString("").Unmask(); got != "" {
		t.Errorf("Unmask() on empty = %q", got)
	}
}

func TestSecretString_IsEmpty(t *testing.T) {
	tests := []struct {
		in   SecretString
		want bool
	}{
		{"", true},
		{"   ", true},
		{"\n\t", true},
		{rawWebhookSecret, false},
	}
	for _, tt := range tests {
		if got := tt.in.IsEmpty(); got != tt.want {
			t.Errorf("SecretString(%q).IsEmpty() = %v, want %v", string(tt.in), got, tt.want)
		}
	}
}
