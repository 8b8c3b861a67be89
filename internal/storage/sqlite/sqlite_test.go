package sqlite

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/attestly/evidenceflow/internal/types"
)

func testStore(t *testing.T) *SQLiteStorage {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testRun(id, tenantID string) *types.WorkflowRun {
	return &types.WorkflowRun{
		ID:          id,
		TenantID:    tenantID,
		ContentHash: "hash-" + id,
		State:       types.StateIntake,
		StartedAt:   time.Now().UTC().Truncate(time.Second),
	}
}

func TestSaveAndGetRun(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	run := testRun("run-1", "tenant-a")
	run.StageAttempts = map[string]int{"analyzing": 2}
	if err := s.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	got, err := s.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got == nil {
		t.Fatal("GetRun returned nil for existing run")
	}
	if got.TenantID != "tenant-a" || got.ContentHash != "hash-run-1" {
		t.Errorf("run fields mismatch: %+v", got)
	}
	if got.State != types.StateIntake {
		t.Errorf("state = %s, want intake", got.State)
	}
	if got.StageAttempts["analyzing"] != 2 {
		t.Errorf("stage attempts not preserved: %v", got.StageAttempts)
	}
}

func TestGetRunNotFound(t *testing.T) {
	s := testStore(t)

	got, err := s.GetRun(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got != nil {
		t.Errorf("GetRun for missing run = %+v, want nil", got)
	}
}

func TestSaveRunUpsertsTerminalState(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	run := testRun("run-1", "tenant-a")
	if err := s.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	run.State = types.StateCompleted
	run.CompletedAt = &now
	run.Result = &types.AnalysisResult{
		RunID:       "run-1",
		TenantID:    "tenant-a",
		ContentHash: "hash-run-1",
		Summary:     "all controls satisfied",
		Findings: []types.Finding{
			{Framework: "SOC2", Control: "CC6.1", Status: types.FindingSatisfied},
		},
		ProviderID:  "anthropic",
		CostUnits:   2.5,
		CompletedAt: now,
	}
	if err := s.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun (update) failed: %v", err)
	}

	got, err := s.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.State != types.StateCompleted {
		t.Errorf("state = %s, want completed", got.State)
	}
	if got.CompletedAt == nil {
		t.Error("completed_at not persisted")
	}
	if got.Result == nil || got.Result.Summary != "all controls satisfied" {
		t.Errorf("result not preserved: %+v", got.Result)
	}
	if len(got.Result.Findings) != 1 || got.Result.Findings[0].Control != "CC6.1" {
		t.Errorf("findings not preserved: %+v", got.Result.Findings)
	}
}

func TestSaveRunPersistsError(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	run := testRun("run-1", "tenant-a")
	run.State = types.StateFailed
	run.CompletedAt = &now
	run.Error = &types.RunError{
		Class:  types.ErrClassProviderExhausted,
		Detail: "all providers in chain exhausted",
		Attempts: []types.ProviderAttempt{
			{ProviderID: "anthropic", Outcome: types.OutcomeTimeout, Retries: 2},
			{ProviderID: "openai", Outcome: types.OutcomeError, Detail: "503"},
		},
	}
	if err := s.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	got, err := s.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.Error == nil {
		t.Fatal("run error not persisted")
	}
	if got.Error.Class != types.ErrClassProviderExhausted {
		t.Errorf("error class = %s, want provider_exhausted", got.Error.Class)
	}
	if len(got.Error.Attempts) != 2 {
		t.Errorf("attempts = %d, want 2", len(got.Error.Attempts))
	}
}

func TestListRuns(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for i, tenant := range []string{"tenant-a", "tenant-b", "tenant-a"} {
		run := testRun(fmt.Sprintf("run-%d", i+1), tenant)
		run.StartedAt = time.Now().UTC().Add(time.Duration(i) * time.Minute)
		if err := s.SaveRun(ctx, run); err != nil {
			t.Fatalf("SaveRun failed: %v", err)
		}
	}

	runs, err := s.ListRuns(ctx, "tenant-a", 0)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("tenant-a runs = %d, want 2", len(runs))
	}
	// Newest first
	if runs[0].ID != "run-3" {
		t.Errorf("first listed run = %s, want run-3", runs[0].ID)
	}

	limited, err := s.ListRuns(ctx, "", 1)
	if err != nil {
		t.Fatalf("ListRuns (limit) failed: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("limited runs = %d, want 1", len(limited))
	}
}

func TestResultRoundTripAndFingerprintLookup(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	result := &types.AnalysisResult{
		RunID:       "run-1",
		TenantID:    "tenant-a",
		ContentHash: "abc123",
		Summary:     "encryption enabled",
		ProviderID:  "anthropic",
		CostUnits:   1.2,
		CompletedAt: time.Now().UTC().Truncate(time.Second),
	}
	if err := s.InsertResult(ctx, result); err != nil {
		t.Fatalf("InsertResult failed: %v", err)
	}

	got, err := s.GetResultByFingerprint(ctx, "tenant-a", "abc123")
	if err != nil {
		t.Fatalf("GetResultByFingerprint failed: %v", err)
	}
	if got == nil || got.RunID != "run-1" {
		t.Fatalf("fingerprint lookup = %+v, want run-1", got)
	}

	// Fingerprints are tenant-scoped.
	other, err := s.GetResultByFingerprint(ctx, "tenant-b", "abc123")
	if err != nil {
		t.Fatalf("GetResultByFingerprint (other tenant) failed: %v", err)
	}
	if other != nil {
		t.Errorf("other tenant saw result: %+v", other)
	}
}

func TestInsertResultRejectsDuplicateRun(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	result := &types.AnalysisResult{
		RunID: "run-1", TenantID: "tenant-a", ContentHash: "abc",
		ProviderID: "anthropic", CompletedAt: time.Now(),
	}
	if err := s.InsertResult(ctx, result); err != nil {
		t.Fatalf("InsertResult failed: %v", err)
	}
	if err := s.InsertResult(ctx, result); err == nil {
		t.Error("duplicate InsertResult succeeded, want error")
	}
}

func TestDeleteResult(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	result := &types.AnalysisResult{
		RunID: "run-1", TenantID: "tenant-a", ContentHash: "abc",
		ProviderID: "anthropic", CompletedAt: time.Now(),
	}
	if err := s.InsertResult(ctx, result); err != nil {
		t.Fatalf("InsertResult failed: %v", err)
	}

	if err := s.DeleteResult(ctx, "run-1"); err != nil {
		t.Fatalf("DeleteResult failed: %v", err)
	}
	got, err := s.GetResult(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetResult failed: %v", err)
	}
	if got != nil {
		t.Errorf("result still present after delete: %+v", got)
	}

	// Compensating a missing row is not an error.
	if err := s.DeleteResult(ctx, "run-1"); err != nil {
		t.Errorf("DeleteResult (missing) = %v, want nil", err)
	}
}

func TestCallRecordsAppendAndQuery(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	records := []*types.ProviderCallRecord{
		{ID: "rec-1", RunID: "run-1", TenantID: "tenant-a", ProviderID: "anthropic",
			Outcome: types.OutcomeTimeout, Latency: 2 * time.Second, CreatedAt: base},
		{ID: "rec-2", RunID: "run-1", TenantID: "tenant-a", ProviderID: "openai",
			Outcome: types.OutcomeSuccess, CostUnits: 1.5, CreatedAt: base.Add(time.Second)},
		{ID: "rec-3", RunID: "run-2", TenantID: "tenant-b", ProviderID: "anthropic",
			Outcome: types.OutcomeSuccess, CostUnits: 2.0, CreatedAt: base.Add(2 * time.Second)},
	}
	for _, rec := range records {
		if err := s.AppendCallRecord(ctx, rec); err != nil {
			t.Fatalf("AppendCallRecord failed: %v", err)
		}
	}

	got, err := s.GetCallRecords(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetCallRecords failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("records for run-1 = %d, want 2", len(got))
	}
	// Oldest first
	if got[0].ID != "rec-1" || got[1].ID != "rec-2" {
		t.Errorf("record order = %s, %s, want rec-1, rec-2", got[0].ID, got[1].ID)
	}
	if got[0].Latency != 2*time.Second {
		t.Errorf("latency = %v, want 2s", got[0].Latency)
	}

	count, err := s.CountCallRecords(ctx, "run-1")
	if err != nil {
		t.Fatalf("CountCallRecords failed: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}

	costs, err := s.SumCostByTenant(ctx, base.Add(-time.Hour))
	if err != nil {
		t.Fatalf("SumCostByTenant failed: %v", err)
	}
	if costs["tenant-a"] != 1.5 || costs["tenant-b"] != 2.0 {
		t.Errorf("costs = %v, want tenant-a:1.5 tenant-b:2.0", costs)
	}
}
