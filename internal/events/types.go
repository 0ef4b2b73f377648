package events

// Event enumerates high-level topics inside the pipeline.
type Event string

const (
	EventObservation    Event = "observation"
	EventQualityIssue   Event = "quality.issue"
	EventDecision       Event = "decision.emitted"
	EventOrderSubmitted Event = "order.submitted"
	EventOrderRejected  Event = "order.rejected"
	EventOrderFailed    Event = "order.failed"
	EventPositionClosed Event = "position.closed"
	EventRiskAlert      Event = "risk_alert"
)
