package types

import (
	"fmt"
	"time"
)

// Finding is one compliance determination extracted from provider output.
type Finding struct {
	// Framework is the compliance framework (e.g. "SOC2", "ISO27001")
	Framework string `json:"framework"`
	// Control is the control identifier within the framework (e.g. "CC6.1")
	Control string `json:"control"`
	// Status is the determination: "satisfied", "gap", or "inconclusive"
	Status string `json:"status"`
	// Note is the provider's rationale for the determination
	Note string `json:"note,omitempty"`
}

// IsValidFindingStatus reports whether s is a finding status the engine
// accepts from provider output.
func IsValidFindingStatus(s string) bool {
	switch s {
	case FindingSatisfied, FindingGap, FindingInconclusive:
		return true
	}
	return false
}

// Finding statuses.
const (
	FindingSatisfied    = "satisfied"
	FindingGap          = "gap"
	FindingInconclusive = "inconclusive"
)

// AnalysisResult is the single normalized result of a completed run: the
// aggregation of one or more provider responses. Given identical provider
// outputs, aggregation is deterministic: no data loss, no silent
// truncation.
type AnalysisResult struct {
	// RunID is the workflow run that produced this result
	RunID string `json:"run_id"`
	// TenantID is the owning tenant
	TenantID string `json:"tenant_id"`
	// ContentHash is the evidence fingerprint the result belongs to
	ContentHash string `json:"content_hash"`
	// Summary is the normalized analysis summary
	Summary string `json:"summary"`
	// Findings are the per-control determinations, in provider output order
	Findings []Finding `json:"findings,omitempty"`
	// ProviderID is the provider whose response won the fallback chain
	ProviderID string `json:"provider_id"`
	// CostUnits is the total cost spent across the whole chain traversal,
	// including failed attempts
	CostUnits float64 `json:"cost_units"`
	// CompletedAt is when aggregation produced this result
	CompletedAt time.Time `json:"completed_at"`
}

// Validate checks if the result has valid field values
func (r *AnalysisResult) Validate() error {
	if r.RunID == "" {
		return fmt.Errorf("run_id is required")
	}
	if r.TenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if r.ContentHash == "" {
		return fmt.Errorf("content_hash is required")
	}
	if r.ProviderID == "" {
		return fmt.Errorf("provider_id is required")
	}
	if r.CostUnits < 0 {
		return fmt.Errorf("cost_units cannot be negative (got %.4f)", r.CostUnits)
	}
	for i, f := range r.Findings {
		if f.Control == "" {
			return fmt.Errorf("finding %d: control is required", i)
		}
		if !IsValidFindingStatus(f.Status) {
			return fmt.Errorf("finding %d: invalid status %q", i, f.Status)
		}
	}
	return nil
}
