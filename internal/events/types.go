package events

import (
	"context"
	"time"
)

// EventType represents the type of event that occurred during evidence
// processing.
type EventType string

const (
	// EventTypeRunStateChanged indicates a workflow run moved between states
	EventTypeRunStateChanged EventType = "run_state_changed"
	// EventTypeRunSubmitted indicates an evidence submission was accepted
	EventTypeRunSubmitted EventType = "run_submitted"
	// EventTypeRunCanceled indicates a run was canceled by the caller
	EventTypeRunCanceled EventType = "run_canceled"

	// Deduplication events
	// EventTypeDedupDecision indicates the dedup index decided on a fingerprint
	EventTypeDedupDecision EventType = "dedup_decision"

	// Provider gateway events
	// EventTypeProviderAttempt indicates one provider attempt finished (any outcome)
	EventTypeProviderAttempt EventType = "provider_attempt"
	// EventTypeBreakerStateChange indicates a circuit breaker state transition
	EventTypeBreakerStateChange EventType = "breaker_state_change"

	// Cost events
	// EventTypeCostRecorded indicates provider cost was attributed to a tenant
	EventTypeCostRecorded EventType = "cost_recorded"
	// EventTypeBudgetAlert indicates a tenant crossed a budget threshold
	EventTypeBudgetAlert EventType = "budget_alert"

	// Persistence events
	// EventTypePersistenceOutcome indicates the dual-store saga finished
	EventTypePersistenceOutcome EventType = "persistence_outcome"

	// Event retention
	// EventTypeEventCleanupCompleted indicates an event cleanup cycle completed
	EventTypeEventCleanupCompleted EventType = "event_cleanup_completed"
)

// EventSeverity represents the severity level of an event.
type EventSeverity string

const (
	// SeverityInfo indicates informational events
	SeverityInfo EventSeverity = "info"
	// SeverityWarning indicates potentially problematic events
	SeverityWarning EventSeverity = "warning"
	// SeverityError indicates error events
	SeverityError EventSeverity = "error"
	// SeverityCritical indicates events requiring operator intervention.
	// PartiallyCommitted persistence outcomes are always critical: they
	// represent real cross-store drift that cannot be auto-healed.
	SeverityCritical EventSeverity = "critical"
)

// Event is one entry of the observability stream. Every state transition,
// provider attempt, and persistence outcome is emitted as an Event and
// stored for audit and operator review.
type Event struct {
	// ID is the unique identifier for this event
	ID string `json:"id"`
	// Type is the type of event
	Type EventType `json:"type"`
	// Timestamp is when the event occurred
	Timestamp time.Time `json:"timestamp"`
	// RunID is the workflow run this event belongs to (may be empty for
	// engine-level events like cleanup)
	RunID string `json:"run_id,omitempty"`
	// TenantID is the tenant the run belongs to
	TenantID string `json:"tenant_id,omitempty"`
	// Component is the engine component that emitted the event
	// (orchestrator, gateway, dedupe, persist, cost)
	Component string `json:"component"`
	// Severity is the severity level of this event
	Severity EventSeverity `json:"severity"`
	// Message is a human-readable description of the event
	Message string `json:"message"`
	// Data contains structured, type-specific data (must be JSON-serializable)
	Data map[string]interface{} `json:"data"`
}

// StateTransitionData contains structured data for run state transitions.
type StateTransitionData struct {
	// FromState is the previous run state
	FromState string `json:"from_state"`
	// ToState is the new run state
	ToState string `json:"to_state"`
	// Cause is what triggered the transition (e.g. "validation_failed",
	// "provider_success", "persist_committed")
	Cause string `json:"cause"`
}

// DedupDecisionData contains structured data for dedup index decisions.
type DedupDecisionData struct {
	// ContentHash is the fingerprint the decision applies to
	ContentHash string `json:"content_hash"`
	// Outcome is "acquired", "already_in_flight", or "already_processed"
	Outcome string `json:"outcome"`
	// HolderRunID is the run currently holding the slot (for already_in_flight)
	HolderRunID string `json:"holder_run_id,omitempty"`
}

// ProviderAttemptData contains structured data for provider attempt events.
type ProviderAttemptData struct {
	// ProviderID is the provider attempted
	ProviderID string `json:"provider_id"`
	// Outcome is the call outcome
	Outcome string `json:"outcome"`
	// LatencyMs is the attempt latency in milliseconds
	LatencyMs int64 `json:"latency_ms"`
	// Retries is the number of retries spent on this provider
	Retries int `json:"retries"`
	// CostUnits is the cost charged for the attempt (successes only)
	CostUnits float64 `json:"cost_units,omitempty"`
	// Error is the failure detail, if any
	Error string `json:"error,omitempty"`
}

// BreakerStateChangeData contains structured data for breaker transitions.
type BreakerStateChangeData struct {
	// ProviderID is the provider whose breaker changed state
	ProviderID string `json:"provider_id"`
	// FromState is the previous breaker state
	FromState string `json:"from_state"`
	// ToState is the new breaker state
	ToState string `json:"to_state"`
	// ConsecutiveFailures is the failure count at transition time
	ConsecutiveFailures int `json:"consecutive_failures"`
}

// PersistenceOutcomeData contains structured data for saga outcomes.
type PersistenceOutcomeData struct {
	// Outcome is "committed", "rolled_back", or "partially_committed"
	Outcome string `json:"outcome"`
	// Detail explains non-committed outcomes
	Detail string `json:"detail,omitempty"`
	// GraphError is the graph write failure, if any
	GraphError string `json:"graph_error,omitempty"`
	// CompensationError is the compensating delete failure, if any.
	// Non-empty only for partially_committed outcomes.
	CompensationError string `json:"compensation_error,omitempty"`
	// DurationMs is the total saga duration in milliseconds
	DurationMs int64 `json:"duration_ms"`
}

// BudgetAlertData contains structured data for budget alerts.
type BudgetAlertData struct {
	// TenantID is the tenant crossing a threshold
	TenantID string `json:"tenant_id"`
	// Status is the budget status after the crossing (WARNING, EXCEEDED)
	Status string `json:"status"`
	// HourlyCostUsed is the current window's spend in cost units
	HourlyCostUsed float64 `json:"hourly_cost_used"`
	// HourlyCostLimit is the configured hourly limit
	HourlyCostLimit float64 `json:"hourly_cost_limit"`
}

// EventCleanupCompletedData contains structured data for event cleanup cycles.
type EventCleanupCompletedData struct {
	// EventsDeleted is the total number of events deleted
	EventsDeleted int `json:"events_deleted"`
	// EventsRemaining is the number of events remaining after cleanup
	EventsRemaining int `json:"events_remaining"`
	// ProcessingTimeMs is the time taken for cleanup in milliseconds
	ProcessingTimeMs int64 `json:"processing_time_ms"`
	// Success indicates whether cleanup succeeded
	Success bool `json:"success"`
	// Error contains the error message if cleanup failed
	Error string `json:"error,omitempty"`
}

// Sink receives emitted events. The relational store implements Sink so
// the observability stream is durable and queryable; tests substitute an
// in-memory sink.
type Sink interface {
	// StoreEvent stores a new event
	StoreEvent(ctx context.Context, event *Event) error
}

// Store extends Sink with query access to the stored stream.
type Store interface {
	Sink

	// GetEvents retrieves events matching the given filter
	GetEvents(ctx context.Context, filter Filter) ([]*Event, error)

	// GetEventsByRun retrieves all events for a specific run
	GetEventsByRun(ctx context.Context, runID string) ([]*Event, error)
}

// Filter defines criteria for filtering events.
type Filter struct {
	// RunID filters events by run ID
	RunID string
	// TenantID filters events by tenant
	TenantID string
	// Type filters events by event type
	Type EventType
	// Severity filters events by severity level
	Severity EventSeverity
	// AfterTime filters events that occurred after this time
	AfterTime time.Time
	// BeforeTime filters events that occurred before this time
	BeforeTime time.Time
	// Limit limits the number of events returned
	Limit int
}
