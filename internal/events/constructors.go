package events

import (
	"time"

	"github.com/google/uuid"
)

// NewStateTransitionEvent creates a new Event for a run state transition with type-safe data.
func NewStateTransitionEvent(runID, tenantID string, severity EventSeverity, message string, data StateTransitionData) (*Event, error) {
	event := &Event{
		ID:        uuid.New().String(),
		Type:      EventTypeRunStateChanged,
		Timestamp: time.Now(),
		RunID:     runID,
		TenantID:  tenantID,
		Component: "orchestrator",
		Severity:  severity,
		Message:   message,
	}
	if err := event.SetStateTransitionData(data); err != nil {
		return nil, err
	}
	return event, nil
}

// NewDedupDecisionEvent creates a new Event for a dedup index decision with type-safe data.
func NewDedupDecisionEvent(runID, tenantID string, message string, data DedupDecisionData) (*Event, error) {
	event := &Event{
		ID:        uuid.New().String(),
		Type:      EventTypeDedupDecision,
		Timestamp: time.Now(),
		RunID:     runID,
		TenantID:  tenantID,
		Component: "dedupe",
		Severity:  SeverityInfo,
		Message:   message,
	}
	if err := event.SetDedupDecisionData(data); err != nil {
		return nil, err
	}
	return event, nil
}

// NewProviderAttemptEvent creates a new Event for a provider attempt with type-safe data.
func NewProviderAttemptEvent(runID, tenantID string, severity EventSeverity, message string, data ProviderAttemptData) (*Event, error) {
	event := &Event{
		ID:        uuid.New().String(),
		Type:      EventTypeProviderAttempt,
		Timestamp: time.Now(),
		RunID:     runID,
		TenantID:  tenantID,
		Component: "gateway",
		Severity:  severity,
		Message:   message,
	}
	if err := event.SetProviderAttemptData(data); err != nil {
		return nil, err
	}
	return event, nil
}

// NewBreakerStateChangeEvent creates a new Event for a circuit breaker transition with type-safe data.
func NewBreakerStateChangeEvent(severity EventSeverity, message string, data BreakerStateChangeData) (*Event, error) {
	event := &Event{
		ID:        uuid.New().String(),
		Type:      EventTypeBreakerStateChange,
		Timestamp: time.Now(),
		Component: "gateway",
		Severity:  severity,
		Message:   message,
	}
	if err := event.SetBreakerStateChangeData(data); err != nil {
		return nil, err
	}
	return event, nil
}

// NewPersistenceOutcomeEvent creates a new Event for a saga outcome with type-safe data.
// PartiallyCommitted outcomes must be emitted with SeverityCritical.
func NewPersistenceOutcomeEvent(runID, tenantID string, severity EventSeverity, message string, data PersistenceOutcomeData) (*Event, error) {
	event := &Event{
		ID:        uuid.New().String(),
		Type:      EventTypePersistenceOutcome,
		Timestamp: time.Now(),
		RunID:     runID,
		TenantID:  tenantID,
		Component: "persist",
		Severity:  severity,
		Message:   message,
	}
	if err := event.SetPersistenceOutcomeData(data); err != nil {
		return nil, err
	}
	return event, nil
}

// NewBudgetAlertEvent creates a new Event for a budget threshold crossing with type-safe data.
func NewBudgetAlertEvent(severity EventSeverity, message string, data BudgetAlertData) (*Event, error) {
	event := &Event{
		ID:        uuid.New().String(),
		Type:      EventTypeBudgetAlert,
		Timestamp: time.Now(),
		TenantID:  data.TenantID,
		Component: "cost",
		Severity:  severity,
		Message:   message,
	}
	if err := event.SetBudgetAlertData(data); err != nil {
		return nil, err
	}
	return event, nil
}

// NewSimpleEvent creates a new Event with no structured data.
func NewSimpleEvent(eventType EventType, runID, tenantID, component string, severity EventSeverity, message string) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now(),
		RunID:     runID,
		TenantID:  tenantID,
		Component: component,
		Severity:  severity,
		Message:   message,
		Data:      make(map[string]interface{}),
	}
}
