package events

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"tiergate/internal/types"
)

var validate = validator.New()

// Metadata keys that carry the purchased resource, in lookup order.
var resourceKeys = []string{"template_id", "templateId"}

// Metadata keys that may carry the external user ID when the payload has none.
var metadataUserKeys = []string{"user_id", "userId"}

// CanonicalEvent is the normalized form handed to the entitlement pipeline.
// It may travel over the hand-off queue but is never stored in the ledger.
type CanonicalEvent struct {
	DeliveryID          string         `json:"delivery_id,omitempty"`
	Kind                Kind           `json:"kind" validate:"required,ne=unknown"`
	ExternalUserID      string         `json:"external_user_id" validate:"required,max=255"`
	ExternalReferenceID string         `json:"external_reference_id,omitempty" validate:"max=255"`
	Amount              *float64       `json:"amount,omitempty" validate:"omitempty,gte=0"`
	Metadata            types.Metadata `json:"metadata,omitempty"`
	ReceivedAt          time.Time      `json:"received_at"`
}

// ResourceID returns the purchased resource from metadata, checking the
// snake_case key before the camelCase alias.
func (e *CanonicalEvent) ResourceID() (string, bool) {
	return e.Metadata.Get(resourceKeys...)
}

// Validate checks the struct rules.
func (e *CanonicalEvent) Validate() error {
	if err := validate.Struct(e); err != nil {
		return types.NewAppError(types.ErrCodeValidationEvent, "canonical event failed validation", err)
	}
	return nil
}

// Decode extracts a CanonicalEvent of the given kind from env. Payloads that
// wrap the real object under "object" are unwrapped first.
func Decode(env *WebhookEnvelope, kind Kind, receivedAt time.Time) (*CanonicalEvent, error) {
	payload := env.Payload
	if inner, ok := payload["object"].(map[string]any); ok {
		payload = inner
	}

	meta := flattenMetadata(payload["metadata"])

	userID := stringField(payload, "user_id")
	if userID == "" {
		if user, ok := payload["user"].(map[string]any); ok {
			userID = stringField(user, "id")
		}
	}
	if userID == "" {
		userID, _ = meta.Get(metadataUserKeys...)
	}
	if userID == "" {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeValidationMissingField,
			"event payload has no user identifier", nil, map[string]any{"kind": string(kind)})
	}

	ev := &CanonicalEvent{
		DeliveryID:          env.DeliveryID,
		Kind:                kind,
		ExternalUserID:      userID,
		ExternalReferenceID: firstString(payload, "id", "payment_id", "membership_id"),
		Amount:              firstNumber(payload, "amount", "final_amount", "total"),
		Metadata:            meta,
		ReceivedAt:          receivedAt.UTC(),
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return ev, nil
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	}
	return ""
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := stringField(m, k); s != "" {
			return s
		}
	}
	return ""
}

func firstNumber(m map[string]any, keys ...string) *float64 {
	for _, k := range keys {
		var (
			f   float64
			err error
		)
		switch v := m[k].(type) {
		case json.Number:
			f, err = v.Float64()
		case float64:
			f = v
		case string:
			f, err = strconv.ParseFloat(v, 64)
		default:
			continue
		}
		if err == nil {
			return &f
		}
	}
	return nil
}

// flattenMetadata converts an arbitrary metadata object into a string map.
// Scalars are formatted; nested values are re-encoded as JSON; nulls are dropped.
func flattenMetadata(v any) types.Metadata {
	src, ok := v.(map[string]any)
	if !ok {
		return types.Metadata{}
	}
	out := make(types.Metadata, len(src))
	for k, val := range src {
		switch t := val.(type) {
		case nil:
		case string:
			out[k] = t
		case json.Number:
			out[k] = t.String()
		case bool:
			out[k] = strconv.FormatBool(t)
		case float64:
			out[k] = strconv.FormatFloat(t, 'f', -1, 64)
		default:
			b, err := json.Marshal(t)
			if err != nil {
				out[k] = fmt.Sprint(t)
				continue
			}
			out[k] = string(b)
		}
	}
	return out
}
