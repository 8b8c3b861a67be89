package dedupe

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/attestly/evidenceflow/internal/types"
)

// fakeLookup is an in-memory ResultLookup for tests.
type fakeLookup struct {
	mu      sync.Mutex
	results map[string]*types.AnalysisResult
	err     error
	calls   int
}

func newFakeLookup() *fakeLookup {
	return &fakeLookup{results: make(map[string]*types.AnalysisResult)}
}

func (f *fakeLookup) GetResultByFingerprint(ctx context.Context, tenantID, contentHash string) (*types.AnalysisResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.results[tenantID+"/"+contentHash], nil
}

func TestNewRequiresLookup(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Error("expected configuration error for nil result lookup")
	}
}

func TestTryAcquireFreshFingerprint(t *testing.T) {
	idx, err := New(newFakeLookup())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	d, err := idx.TryAcquire(context.Background(), "t1", "hash-1", "run-1")
	if err != nil {
		t.Fatalf("TryAcquire failed: %v", err)
	}
	if d.Outcome != OutcomeAcquired {
		t.Errorf("expected acquired, got %s", d.Outcome)
	}
	if idx.InFlight() != 1 {
		t.Errorf("expected 1 in-flight slot, got %d", idx.InFlight())
	}
}

func TestTryAcquireAlreadyInFlight(t *testing.T) {
	idx, _ := New(newFakeLookup())
	ctx := context.Background()

	if _, err := idx.TryAcquire(ctx, "t1", "hash-1", "run-1"); err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}

	d, err := idx.TryAcquire(ctx, "t1", "hash-1", "run-2")
	if err != nil {
		t.Fatalf("second acquire failed: %v", err)
	}
	if d.Outcome != OutcomeAlreadyInFlight {
		t.Errorf("expected already_in_flight, got %s", d.Outcome)
	}
	if d.HolderRunID != "run-1" {
		t.Errorf("expected holder run-1, got %s", d.HolderRunID)
	}
}

func TestReleaseAllowsReacquire(t *testing.T) {
	idx, _ := New(newFakeLookup())
	ctx := context.Background()

	if _, err := idx.TryAcquire(ctx, "t1", "hash-1", "run-1"); err != nil {
		t.Fatal(err)
	}
	idx.Release("t1", "hash-1")

	d, err := idx.TryAcquire(ctx, "t1", "hash-1", "run-2")
	if err != nil {
		t.Fatal(err)
	}
	if d.Outcome != OutcomeAcquired {
		t.Errorf("expected acquired after release, got %s", d.Outcome)
	}
}

func TestReleaseUnheldSlotIsNoop(t *testing.T) {
	idx, _ := New(newFakeLookup())
	idx.Release("t1", "never-acquired")
	if idx.InFlight() != 0 {
		t.Errorf("expected 0 in-flight, got %d", idx.InFlight())
	}
}

func TestAlreadyProcessedReturnsCachedResult(t *testing.T) {
	lookup := newFakeLookup()
	lookup.results["t1/hash-1"] = &types.AnalysisResult{
		RunID:       "run-old",
		TenantID:    "t1",
		ContentHash: "hash-1",
		Summary:     "prior result",
		ProviderID:  "anthropic",
	}
	idx, _ := New(lookup)

	d, err := idx.TryAcquire(context.Background(), "t1", "hash-1", "run-new")
	if err != nil {
		t.Fatal(err)
	}
	if d.Outcome != OutcomeAlreadyProcessed {
		t.Errorf("expected already_processed, got %s", d.Outcome)
	}
	if d.CachedResult == nil || d.CachedResult.RunID != "run-old" {
		t.Errorf("expected cached result from run-old, got %+v", d.CachedResult)
	}
	// A cache hit must not leave the slot reserved.
	if idx.InFlight() != 0 {
		t.Errorf("expected slot released after cache hit, got %d in-flight", idx.InFlight())
	}
}

func TestLookupErrorReleasesSlot(t *testing.T) {
	lookup := newFakeLookup()
	lookup.err = fmt.Errorf("store unavailable")
	idx, _ := New(lookup)

	if _, err := idx.TryAcquire(context.Background(), "t1", "hash-1", "run-1"); err == nil {
		t.Fatal("expected lookup error")
	}
	if idx.InFlight() != 0 {
		t.Errorf("slot should be released on lookup error, got %d in-flight", idx.InFlight())
	}
}

func TestTenantsDoNotShareSlots(t *testing.T) {
	idx, _ := New(newFakeLookup())
	ctx := context.Background()

	d1, _ := idx.TryAcquire(ctx, "tenant-a", "hash-1", "run-1")
	d2, _ := idx.TryAcquire(ctx, "tenant-b", "hash-1", "run-2")

	if d1.Outcome != OutcomeAcquired || d2.Outcome != OutcomeAcquired {
		t.Errorf("same hash under different tenants must both acquire: %s, %s", d1.Outcome, d2.Outcome)
	}
}

// TestConcurrentAcquireExactlyOneWins is the mutual-exclusion property:
// N concurrent submissions of the same fingerprint produce exactly one
// acquisition.
func TestConcurrentAcquireExactlyOneWins(t *testing.T) {
	idx, _ := New(newFakeLookup())
	ctx := context.Background()

	const n = 32
	var wg sync.WaitGroup
	outcomes := make([]Outcome, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d, err := idx.TryAcquire(ctx, "t1", "contested", fmt.Sprintf("run-%d", i))
			if err != nil {
				t.Errorf("TryAcquire failed: %v", err)
				return
			}
			outcomes[i] = d.Outcome
		}(i)
	}
	wg.Wait()

	acquired := 0
	for _, o := range outcomes {
		switch o {
		case OutcomeAcquired:
			acquired++
		case OutcomeAlreadyInFlight:
		default:
			t.Errorf("unexpected outcome %s", o)
		}
	}
	if acquired != 1 {
		t.Errorf("expected exactly one acquisition, got %d", acquired)
	}
}

func TestDecisionValidate(t *testing.T) {
	tests := []struct {
		name        string
		decision    Decision
		expectError bool
	}{
		{"valid acquired", Decision{Outcome: OutcomeAcquired}, false},
		{"valid in-flight", Decision{Outcome: OutcomeAlreadyInFlight, HolderRunID: "run-1"}, false},
		{"valid processed", Decision{Outcome: OutcomeAlreadyProcessed, CachedResult: &types.AnalysisResult{}}, false},
		{"processed without result", Decision{Outcome: OutcomeAlreadyProcessed}, true},
		{"acquired with result", Decision{Outcome: OutcomeAcquired, CachedResult: &types.AnalysisResult{}}, true},
		{"in-flight without holder", Decision{Outcome: OutcomeAlreadyInFlight}, true},
		{"bogus outcome", Decision{Outcome: "nope"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.decision.Validate()
			if tt.expectError && err == nil {
				t.Error("expected error, got nil")
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
