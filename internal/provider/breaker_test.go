package provider

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func testBreaker(t *testing.T, threshold int, reset time.Duration) (*CircuitBreaker, *time.Time) {
	t.Helper()
	cb := NewCircuitBreaker(BreakerConfig{
		FailureThreshold: threshold,
		ResetTimeout:     reset,
	})
	now := time.Now()
	cb.now = func() time.Time { return now }
	return cb, &now
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	cb, _ := testBreaker(t, 3, time.Minute)

	for i := 0; i < 2; i++ {
		if err := cb.Allow(); err != nil {
			t.Fatalf("Allow() before threshold returned %v", err)
		}
		cb.RecordFailure()
	}
	if cb.State() != BreakerClosed {
		t.Fatalf("expected CLOSED after 2 failures, got %s", cb.State())
	}

	cb.RecordFailure()
	if cb.State() != BreakerOpen {
		t.Fatalf("expected OPEN after 3 failures, got %s", cb.State())
	}
	if err := cb.Allow(); !errors.Is(err, ErrBreakerOpen) {
		t.Errorf("Allow() on open breaker = %v, want ErrBreakerOpen", err)
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	cb, _ := testBreaker(t, 3, time.Minute)

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()

	if cb.State() != BreakerClosed {
		t.Errorf("expected CLOSED, got %s (failures should reset on success)", cb.State())
	}

	_, failures := cb.Metrics()
	if failures != 2 {
		t.Errorf("consecutive failures = %d, want 2", failures)
	}
}

func TestBreakerHalfOpenAfterResetTimeout(t *testing.T) {
	cb, now := testBreaker(t, 1, 30*time.Second)

	cb.RecordFailure()
	if cb.State() != BreakerOpen {
		t.Fatalf("expected OPEN, got %s", cb.State())
	}

	// Before the timeout the breaker stays shut.
	*now = now.Add(29 * time.Second)
	if err := cb.Allow(); !errors.Is(err, ErrBreakerOpen) {
		t.Fatalf("Allow() before reset timeout = %v, want ErrBreakerOpen", err)
	}

	*now = now.Add(2 * time.Second)
	if err := cb.Allow(); err != nil {
		t.Fatalf("Allow() after reset timeout = %v, want nil (trial call)", err)
	}
	if cb.State() != BreakerHalfOpen {
		t.Fatalf("expected HALF_OPEN, got %s", cb.State())
	}
}

func TestBreakerHalfOpenAllowsExactlyOneTrial(t *testing.T) {
	cb, now := testBreaker(t, 1, time.Second)
	cb.RecordFailure()
	*now = now.Add(2 * time.Second)

	var allowed int
	var wg sync.WaitGroup
	var mu sync.Mutex
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if cb.Allow() == nil {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 1 {
		t.Errorf("half-open breaker allowed %d calls, want exactly 1", allowed)
	}
}

func TestBreakerTrialSuccessCloses(t *testing.T) {
	cb, now := testBreaker(t, 1, time.Second)
	cb.RecordFailure()
	*now = now.Add(2 * time.Second)

	if err := cb.Allow(); err != nil {
		t.Fatalf("Allow() trial = %v", err)
	}
	cb.RecordSuccess()

	if cb.State() != BreakerClosed {
		t.Errorf("expected CLOSED after trial success, got %s", cb.State())
	}
	_, failures := cb.Metrics()
	if failures != 0 {
		t.Errorf("consecutive failures = %d, want 0", failures)
	}
	if err := cb.Allow(); err != nil {
		t.Errorf("Allow() after close = %v, want nil", err)
	}
}

func TestBreakerTrialFailureReopensAndRestartsCooldown(t *testing.T) {
	cb, now := testBreaker(t, 1, 10*time.Second)
	cb.RecordFailure()
	*now = now.Add(11 * time.Second)

	if err := cb.Allow(); err != nil {
		t.Fatalf("Allow() trial = %v", err)
	}
	cb.RecordFailure()

	if cb.State() != BreakerOpen {
		t.Fatalf("expected OPEN after trial failure, got %s", cb.State())
	}

	// Cooldown restarts from the trial failure, not the original open.
	*now = now.Add(5 * time.Second)
	if err := cb.Allow(); !errors.Is(err, ErrBreakerOpen) {
		t.Errorf("Allow() mid-cooldown = %v, want ErrBreakerOpen", err)
	}
	*now = now.Add(6 * time.Second)
	if err := cb.Allow(); err != nil {
		t.Errorf("Allow() after restarted cooldown = %v, want nil", err)
	}
}

func TestBreakerTransitionCallback(t *testing.T) {
	cb, now := testBreaker(t, 2, time.Second)

	type transition struct{ from, to BreakerState }
	var seen []transition
	cb.OnTransition(func(from, to BreakerState, failures int) {
		seen = append(seen, transition{from, to})
	})

	cb.RecordFailure()
	cb.RecordFailure() // opens
	*now = now.Add(2 * time.Second)
	if err := cb.Allow(); err != nil { // half-open
		t.Fatalf("Allow() = %v", err)
	}
	cb.RecordSuccess() // closes

	want := []transition{
		{BreakerClosed, BreakerOpen},
		{BreakerOpen, BreakerHalfOpen},
		{BreakerHalfOpen, BreakerClosed},
	}
	if len(seen) != len(want) {
		t.Fatalf("saw %d transitions, want %d: %v", len(seen), len(want), seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("transition %d = %s->%s, want %s->%s",
				i, seen[i].from, seen[i].to, want[i].from, want[i].to)
		}
	}
}

func TestBreakerConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     BreakerConfig
		wantErr bool
	}{
		{"default is valid", DefaultBreakerConfig(), false},
		{"zero threshold", BreakerConfig{FailureThreshold: 0, ResetTimeout: time.Second}, true},
		{"zero timeout", BreakerConfig{FailureThreshold: 3, ResetTimeout: 0}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
