package events

import (
	"bytes"
	"encoding/json"

	"tiergate/internal/types"
)

// WebhookEnvelope is the verified outer shape of one delivery. It lives only
// for the duration of a request.
type WebhookEnvelope struct {
	DeliveryID string
	Kind       string
	Payload    map[string]any
}

type rawEnvelope struct {
	Type *string         `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ParseEnvelope decodes body into a WebhookEnvelope. Malformed JSON, a
// missing or empty "type", or a "data" member that is not an object all
// yield a verification_envelope_malformed AppError.
func ParseEnvelope(body []byte, deliveryID string) (*WebhookEnvelope, error) {
	var raw rawEnvelope
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, types.NewAppError(types.ErrCodeVerificationEnvelope, "webhook body is not valid JSON", err)
	}
	if raw.Type == nil || *raw.Type == "" {
		return nil, types.NewAppError(types.ErrCodeVerificationEnvelope, "webhook envelope is missing \"type\"", nil)
	}
	data := bytes.TrimSpace(raw.Data)
	if len(data) == 0 || data[0] != '{' {
		return nil, types.NewAppError(types.ErrCodeVerificationEnvelope, "webhook envelope \"data\" must be an object", nil)
	}

	var payload map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return nil, types.NewAppError(types.ErrCodeVerificationEnvelope, "webhook envelope \"data\" is malformed", err)
	}

	return &WebhookEnvelope{
		DeliveryID: deliveryID,
		Kind:       *raw.Type,
		Payload:    payload,
	}, nil
}
