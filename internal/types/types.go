package types

import (
	"fmt"
	"time"
)

// EvidenceItem represents a single piece of compliance evidence submitted
// for processing. Items are immutable once accepted: intake creates them,
// nothing mutates them, and a resubmission supersedes rather than updates.
type EvidenceItem struct {
	TenantID     string    `json:"tenant_id" validate:"required"`
	Payload      []byte    `json:"payload" validate:"required"`
	DeclaredType string    `json:"declared_type" validate:"required,oneof=json text log screenshot"`
	SubmittedAt  time.Time `json:"submitted_at"`
	SourceRef    string    `json:"source_ref,omitempty"` // e.g. "aws:config-rule/s3-encryption"
}

// Validate checks if the evidence item has valid field values.
// This is the cheap structural check; the validate package layers
// semantic checks on top.
func (e *EvidenceItem) Validate() error {
	if e.TenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if len(e.Payload) == 0 {
		return fmt.Errorf("payload is required")
	}
	if !IsValidEvidenceType(e.DeclaredType) {
		return fmt.Errorf("invalid declared_type: %s", e.DeclaredType)
	}
	return nil
}

// IsValidEvidenceType reports whether t is a declared evidence type the
// engine accepts.
func IsValidEvidenceType(t string) bool {
	switch t {
	case EvidenceTypeJSON, EvidenceTypeText, EvidenceTypeLog, EvidenceTypeScreenshot:
		return true
	}
	return false
}

// Declared evidence types. The validator cross-checks these against the
// content type it infers from the payload bytes.
const (
	EvidenceTypeJSON       = "json"
	EvidenceTypeText       = "text"
	EvidenceTypeLog        = "log"
	EvidenceTypeScreenshot = "screenshot"
)

// RunState represents the current state of a workflow run.
//
// There is exactly one representation of run state in the system. Every
// transition goes through the orchestrator, and every state is either
// terminal or has a single well-defined set of successors (see Next).
type RunState string

const (
	StateIntake        RunState = "intake"
	StateDeduplicating RunState = "deduplicating"
	StateValidating    RunState = "validating"
	StateAnalyzing     RunState = "analyzing"
	StateAggregating   RunState = "aggregating"
	StatePersisting    RunState = "persisting"
	StateCompleted     RunState = "completed"
	StateRejected      RunState = "rejected"
	StateFailed        RunState = "failed"
)

// IsValid checks if the state value is valid
func (s RunState) IsValid() bool {
	switch s {
	case StateIntake, StateDeduplicating, StateValidating, StateAnalyzing,
		StateAggregating, StatePersisting, StateCompleted, StateRejected, StateFailed:
		return true
	}
	return false
}

// Terminal reports whether no further automatic transition occurs from s.
func (s RunState) Terminal() bool {
	switch s {
	case StateCompleted, StateRejected, StateFailed:
		return true
	}
	return false
}

// CanTransition reports whether the state machine permits moving from s to
// next. Terminal states permit nothing.
func (s RunState) CanTransition(next RunState) bool {
	for _, allowed := range s.Next() {
		if next == allowed {
			return true
		}
	}
	return false
}

// Next returns the set of states reachable from s in one transition.
func (s RunState) Next() []RunState {
	switch s {
	case StateIntake:
		return []RunState{StateDeduplicating}
	case StateDeduplicating:
		return []RunState{StateValidating, StateRejected, StateCompleted}
	case StateValidating:
		return []RunState{StateAnalyzing, StateRejected}
	case StateAnalyzing:
		return []RunState{StateAggregating, StateFailed}
	case StateAggregating:
		return []RunState{StatePersisting}
	case StatePersisting:
		return []RunState{StateCompleted, StateFailed}
	default:
		return nil
	}
}

// ErrorClass categorizes terminal run errors. The taxonomy is deliberately
// small: every terminal error a caller can see is one of these, with enough
// attempt detail attached to explain why. There is no opaque "internal
// error" class.
type ErrorClass string

const (
	// ErrClassRejected covers duplicate submissions and validation failures.
	// Cheap, not a system fault.
	ErrClassRejected ErrorClass = "rejected"
	// ErrClassProviderExhausted means every provider in the fallback chain
	// failed or was skipped by its breaker.
	ErrClassProviderExhausted ErrorClass = "provider_exhausted"
	// ErrClassPersistenceRolledBack means the graph write failed and the
	// relational write was compensated. Recoverable by resubmission.
	ErrClassPersistenceRolledBack ErrorClass = "persistence_rolled_back"
	// ErrClassPersistencePartiallyCommitted means the compensating delete
	// itself failed. Requires operator intervention: the two stores have
	// genuinely drifted and cannot be auto-healed.
	ErrClassPersistencePartiallyCommitted ErrorClass = "persistence_partially_committed"
	// ErrClassCanceled means the caller canceled the run between stages.
	ErrClassCanceled ErrorClass = "canceled"
)

// IsValid checks if the error class value is valid
func (c ErrorClass) IsValid() bool {
	switch c {
	case ErrClassRejected, ErrClassProviderExhausted, ErrClassPersistenceRolledBack,
		ErrClassPersistencePartiallyCommitted, ErrClassCanceled:
		return true
	}
	return false
}

// RunError is the terminal error recorded on a failed or rejected run.
type RunError struct {
	// Class is the error taxonomy bucket
	Class ErrorClass `json:"class"`
	// Detail is a human-readable explanation
	Detail string `json:"detail"`
	// Attempts carries per-provider attempt detail for provider_exhausted
	// errors so callers can distinguish "all providers down" from
	// "request malformed for all providers"
	Attempts []ProviderAttempt `json:"attempts,omitempty"`
}

// Error implements the error interface
func (e *RunError) Error() string {
	return fmt.Sprintf("%s: %s", e.Class, e.Detail)
}

// ProviderAttempt summarizes one traversal step of the fallback chain.
type ProviderAttempt struct {
	// ProviderID identifies the provider attempted
	ProviderID string `json:"provider_id"`
	// Outcome is the call outcome (success, timeout, error, rejected_by_breaker, malformed)
	Outcome CallOutcome `json:"outcome"`
	// Detail is the error message for failed attempts
	Detail string `json:"detail,omitempty"`
	// Retries is how many retries were spent on this provider before moving on
	Retries int `json:"retries"`
	// Latency is the total time spent on this provider
	Latency time.Duration `json:"latency"`
}

// WorkflowRun tracks one accepted evidence item through the state machine.
// A run is owned exclusively by the orchestrator for its lifetime; at most
// one live run exists per (tenant_id, content_hash) at a time.
type WorkflowRun struct {
	// ID is the unique run identifier
	ID string `json:"id"`
	// TenantID is the tenant the evidence belongs to
	TenantID string `json:"tenant_id"`
	// ContentHash is the normalized fingerprint of the evidence payload
	ContentHash string `json:"content_hash"`
	// State is the current state machine state
	State RunState `json:"state"`
	// StageAttempts counts attempts per stage (keyed by state name)
	StageAttempts map[string]int `json:"stage_attempts,omitempty"`
	// StartedAt is when the run was accepted
	StartedAt time.Time `json:"started_at"`
	// CompletedAt is when the run reached a terminal state
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	// Result is the normalized analysis result (only for completed runs)
	Result *AnalysisResult `json:"result,omitempty"`
	// Error is the terminal error (only for rejected/failed runs)
	Error *RunError `json:"error,omitempty"`
}

// Validate checks if the run has valid field values
func (r *WorkflowRun) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("run id is required")
	}
	if r.TenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if r.ContentHash == "" {
		return fmt.Errorf("content_hash is required")
	}
	if !r.State.IsValid() {
		return fmt.Errorf("invalid state: %s", r.State)
	}
	if r.State == StateCompleted && r.Result == nil {
		return fmt.Errorf("completed run must carry a result")
	}
	if (r.State == StateRejected || r.State == StateFailed) && r.Error == nil {
		return fmt.Errorf("%s run must carry an error", r.State)
	}
	if r.State.Terminal() && r.CompletedAt == nil {
		return fmt.Errorf("terminal run must have completed_at set")
	}
	return nil
}

// CallOutcome is the outcome of a single provider call attempt.
type CallOutcome string

const (
	OutcomeSuccess           CallOutcome = "success"
	OutcomeTimeout           CallOutcome = "timeout"
	OutcomeError             CallOutcome = "error"
	OutcomeRejectedByBreaker CallOutcome = "rejected_by_breaker"
	// OutcomeMalformed is a 4xx-equivalent rejection: the provider refused
	// the request as malformed. Non-retryable for that provider, but still
	// counts toward its breaker failures.
	OutcomeMalformed CallOutcome = "malformed"
)

// IsValid checks if the call outcome value is valid
func (o CallOutcome) IsValid() bool {
	switch o {
	case OutcomeSuccess, OutcomeTimeout, OutcomeError, OutcomeRejectedByBreaker, OutcomeMalformed:
		return true
	}
	return false
}

// ProviderCallRecord is one row of the append-only provider audit trail.
// Records are never updated, only appended; cost tracking and breaker
// decisions read them.
type ProviderCallRecord struct {
	// ID is the unique record identifier
	ID string `json:"id"`
	// RunID is the workflow run the call was made for
	RunID string `json:"run_id"`
	// TenantID is the tenant billed for the call
	TenantID string `json:"tenant_id"`
	// ProviderID identifies the provider called
	ProviderID string `json:"provider_id"`
	// RequestDigest is a short digest of the request payload
	RequestDigest string `json:"request_digest"`
	// Outcome is the call outcome
	Outcome CallOutcome `json:"outcome"`
	// Latency is how long the attempt took (zero for breaker rejections)
	Latency time.Duration `json:"latency"`
	// CostUnits is the cost of the call in abstract cost units
	CostUnits float64 `json:"cost_units"`
	// CreatedAt is when the record was appended
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks if the call record has valid field values
func (r *ProviderCallRecord) Validate() error {
	if r.RunID == "" {
		return fmt.Errorf("run_id is required")
	}
	if r.ProviderID == "" {
		return fmt.Errorf("provider_id is required")
	}
	if !r.Outcome.IsValid() {
		return fmt.Errorf("invalid outcome: %s", r.Outcome)
	}
	if r.CostUnits < 0 {
		return fmt.Errorf("cost_units cannot be negative (got %.4f)", r.CostUnits)
	}
	return nil
}
