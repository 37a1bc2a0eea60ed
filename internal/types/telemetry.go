package types

// Telemetry metric names for CloudWatch.
// All components MUST use these constants.
const (
	// Metric Names
	MetricWebhookOutcome    = "WebhookOutcome"
	MetricWebhookLatency    = "WebhookLatency"
	MetricIdentityDegraded  = "IdentityDegraded"
	MetricLedgerWriteFailed = "LedgerWriteFailed"
	MetricAPILatency        = "APILatency"

	// Dimension Keys
	DimEventKind = "EventKind"
	DimOutcome   = "Outcome"
	DimTable     = "Table"
	DimEndpoint  = "Endpoint"
	DimStatus    = "Status"

	// Metric Namespace
	MetricNamespace = "TierGate"
)

// Outcome labels the terminal state of one webhook delivery.
type Outcome string

const (
	OutcomeDispatched      Outcome = "dispatched"
	OutcomeDropped         Outcome = "dropped"
	OutcomeRejected        Outcome = "rejected"
	OutcomeOverflow        Outcome = "overflow"
	OutcomeDuplicate       Outcome = "duplicate"
	OutcomeGranted         Outcome = "granted"
	OutcomeRetained        Outcome = "retained"
	OutcomeRevoked         Outcome = "revoked"
	OutcomeMissingMetadata Outcome = "missing_metadata"
	OutcomeFailed          Outcome = "failed"
)
