package types

import (
	"testing"
	"time"
)

func TestRunStateTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    RunState
		to      RunState
		allowed bool
	}{
		{"intake to deduplicating", StateIntake, StateDeduplicating, true},
		{"intake cannot skip to analyzing", StateIntake, StateAnalyzing, false},
		{"deduplicating to validating", StateDeduplicating, StateValidating, true},
		{"deduplicating to rejected (duplicate)", StateDeduplicating, StateRejected, true},
		{"deduplicating to completed (cached)", StateDeduplicating, StateCompleted, true},
		{"validating to analyzing", StateValidating, StateAnalyzing, true},
		{"validating to rejected (invalid)", StateValidating, StateRejected, true},
		{"validating cannot fail", StateValidating, StateFailed, false},
		{"analyzing to aggregating", StateAnalyzing, StateAggregating, true},
		{"analyzing to failed (exhausted)", StateAnalyzing, StateFailed, true},
		{"aggregating to persisting", StateAggregating, StatePersisting, true},
		{"persisting to completed", StatePersisting, StateCompleted, true},
		{"persisting to failed", StatePersisting, StateFailed, true},
		{"completed is terminal", StateCompleted, StateIntake, false},
		{"rejected is terminal", StateRejected, StateValidating, false},
		{"failed is terminal - no automatic re-analyze", StateFailed, StateAnalyzing, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.allowed {
				t.Errorf("CanTransition(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.allowed)
			}
		})
	}
}

func TestRunStateTerminal(t *testing.T) {
	terminal := []RunState{StateCompleted, StateRejected, StateFailed}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
		if len(s.Next()) != 0 {
			t.Errorf("%s should have no successors, got %v", s, s.Next())
		}
	}

	live := []RunState{StateIntake, StateDeduplicating, StateValidating, StateAnalyzing, StateAggregating, StatePersisting}
	for _, s := range live {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
		if len(s.Next()) == 0 {
			t.Errorf("%s should have successors", s)
		}
	}
}

func TestWorkflowRunValidate(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name        string
		run         WorkflowRun
		expectError bool
	}{
		{
			name: "valid live run",
			run: WorkflowRun{
				ID:          "run-1",
				TenantID:    "t1",
				ContentHash: "abc",
				State:       StateAnalyzing,
				StartedAt:   now,
			},
			expectError: false,
		},
		{
			name: "completed run without result",
			run: WorkflowRun{
				ID:          "run-1",
				TenantID:    "t1",
				ContentHash: "abc",
				State:       StateCompleted,
				StartedAt:   now,
				CompletedAt: &now,
			},
			expectError: true,
		},
		{
			name: "failed run without error",
			run: WorkflowRun{
				ID:          "run-1",
				TenantID:    "t1",
				ContentHash: "abc",
				State:       StateFailed,
				StartedAt:   now,
				CompletedAt: &now,
			},
			expectError: true,
		},
		{
			name: "terminal run without completed_at",
			run: WorkflowRun{
				ID:          "run-1",
				TenantID:    "t1",
				ContentHash: "abc",
				State:       StateRejected,
				StartedAt:   now,
				Error:       &RunError{Class: ErrClassRejected, Detail: "duplicate"},
			},
			expectError: true,
		},
		{
			name: "missing tenant",
			run: WorkflowRun{
				ID:          "run-1",
				ContentHash: "abc",
				State:       StateIntake,
				StartedAt:   now,
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run.Validate()
			if tt.expectError && err == nil {
				t.Error("expected error, got nil")
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestProviderCallRecordValidate(t *testing.T) {
	rec := ProviderCallRecord{
		RunID:      "run-1",
		ProviderID: "anthropic",
		Outcome:    OutcomeSuccess,
		CostUnits:  0.25,
	}
	if err := rec.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	rec.Outcome = "exploded"
	if err := rec.Validate(); err == nil {
		t.Error("expected error for invalid outcome")
	}

	rec.Outcome = OutcomeError
	rec.CostUnits = -1
	if err := rec.Validate(); err == nil {
		t.Error("expected error for negative cost")
	}
}

func TestAnalysisResultValidate(t *testing.T) {
	res := AnalysisResult{
		RunID:       "run-1",
		TenantID:    "t1",
		ContentHash: "abc",
		Summary:     "encryption at rest enabled",
		ProviderID:  "anthropic",
		Findings: []Finding{
			{Framework: "SOC2", Control: "CC6.1", Status: FindingSatisfied},
		},
	}
	if err := res.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	res.Findings = append(res.Findings, Finding{Control: "CC6.2", Status: "maybe"})
	if err := res.Validate(); err == nil {
		t.Error("expected error for invalid finding status")
	}
}
