package types

// PurchaseStatus is the lifecycle state stored on a Purchase row.
type PurchaseStatus string

const (
	PurchaseStatusPending   PurchaseStatus = "pending"
	PurchaseStatusCompleted PurchaseStatus = "completed"
	PurchaseStatusFailed    PurchaseStatus = "failed"
	PurchaseStatusRefunded  PurchaseStatus = "refunded"
)

// Valid reports whether s is one of the statuses accepted by the ledger.
func (s PurchaseStatus) Valid() bool {
	switch s {
	case PurchaseStatusPending, PurchaseStatusCompleted, PurchaseStatusFailed, PurchaseStatusRefunded:
		return true
	}
	return false
}

// RevocationPolicy decides what happens to existing grants when an invoice is
// voided or a membership is deactivated.
type RevocationPolicy string

const (
	// RevocationRetain keeps historical access and only logs the event.
	RevocationRetain RevocationPolicy = "retain"
	// RevocationRevoke deletes the grant for the (user, resource) pair.
	RevocationRevoke RevocationPolicy = "revoke"
)

// DispatchMode selects how accepted events leave the HTTP request.
type DispatchMode string

const (
	DispatchModeLocal DispatchMode = "local"
	DispatchModeSQS   DispatchMode = "sqs"
)

// SignatureScheme selects the webhook signature format expected from the sender.
type SignatureScheme string

const (
	// SignatureSchemeStandard is the Standard Webhooks format
	// (webhook-id, webhook-timestamp, webhook-signature headers).
	SignatureSchemeStandard SignatureScheme = "standard"
	// SignatureSchemeStripe is the Stripe-Signature header format.
	SignatureSchemeStripe SignatureScheme = "stripe"
)
