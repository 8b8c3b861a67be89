package events

import (
	"encoding/json"
	"fmt"
)

// SetStateTransitionData sets the Data field with StateTransitionData in a type-safe way.
func (e *Event) SetStateTransitionData(data StateTransitionData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert StateTransitionData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetStateTransitionData retrieves StateTransitionData from the Data field.
func (e *Event) GetStateTransitionData() (*StateTransitionData, error) {
	var data StateTransitionData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse StateTransitionData: %w", err)
	}
	return &data, nil
}

// SetDedupDecisionData sets the Data field with DedupDecisionData in a type-safe way.
func (e *Event) SetDedupDecisionData(data DedupDecisionData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert DedupDecisionData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetDedupDecisionData retrieves DedupDecisionData from the Data field.
func (e *Event) GetDedupDecisionData() (*DedupDecisionData, error) {
	var data DedupDecisionData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse DedupDecisionData: %w", err)
	}
	return &data, nil
}

// SetProviderAttemptData sets the Data field with ProviderAttemptData in a type-safe way.
func (e *Event) SetProviderAttemptData(data ProviderAttemptData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert ProviderAttemptData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetProviderAttemptData retrieves ProviderAttemptData from the Data field.
func (e *Event) GetProviderAttemptData() (*ProviderAttemptData, error) {
	var data ProviderAttemptData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse ProviderAttemptData: %w", err)
	}
	return &data, nil
}

// SetBreakerStateChangeData sets the Data field with BreakerStateChangeData in a type-safe way.
func (e *Event) SetBreakerStateChangeData(data BreakerStateChangeData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert BreakerStateChangeData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetBreakerStateChangeData retrieves BreakerStateChangeData from the Data field.
func (e *Event) GetBreakerStateChangeData() (*BreakerStateChangeData, error) {
	var data BreakerStateChangeData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse BreakerStateChangeData: %w", err)
	}
	return &data, nil
}

// SetPersistenceOutcomeData sets the Data field with PersistenceOutcomeData in a type-safe way.
func (e *Event) SetPersistenceOutcomeData(data PersistenceOutcomeData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert PersistenceOutcomeData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetPersistenceOutcomeData retrieves PersistenceOutcomeData from the Data field.
func (e *Event) GetPersistenceOutcomeData() (*PersistenceOutcomeData, error) {
	var data PersistenceOutcomeData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse PersistenceOutcomeData: %w", err)
	}
	return &data, nil
}

// SetBudgetAlertData sets the Data field with BudgetAlertData in a type-safe way.
func (e *Event) SetBudgetAlertData(data BudgetAlertData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert BudgetAlertData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetBudgetAlertData retrieves BudgetAlertData from the Data field.
func (e *Event) GetBudgetAlertData() (*BudgetAlertData, error) {
	var data BudgetAlertData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse BudgetAlertData: %w", err)
	}
	return &data, nil
}

// SetEventCleanupCompletedData sets the Data field with EventCleanupCompletedData in a type-safe way.
func (e *Event) SetEventCleanupCompletedData(data EventCleanupCompletedData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert EventCleanupCompletedData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetEventCleanupCompletedData retrieves EventCleanupCompletedData from the Data field.
func (e *Event) GetEventCleanupCompletedData() (*EventCleanupCompletedData, error) {
	var data EventCleanupCompletedData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse EventCleanupCompletedData: %w", err)
	}
	return &data, nil
}

// structToMap converts a struct to a map via JSON round-trip.
func structToMap(v interface{}) (map[string]interface{}, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// mapToStruct converts a map back to a struct via JSON round-trip.
func mapToStruct(m map[string]interface{}, v interface{}) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}
