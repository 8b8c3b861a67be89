package provider

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// BreakerState represents the state of a circuit breaker
type BreakerState int

const (
	BreakerClosed   BreakerState = iota // Normal operation, requests pass through
	BreakerOpen                         // Too many failures, block requests (fail fast)
	BreakerHalfOpen                     // Testing recovery, allow one trial call
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "CLOSED"
	case BreakerOpen:
		return "OPEN"
	case BreakerHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// ErrBreakerOpen is returned when the circuit breaker refuses a call
var ErrBreakerOpen = errors.New("circuit breaker is open")

// BreakerConfig holds circuit breaker settings
type BreakerConfig struct {
	// FailureThreshold is the consecutive-failure count that opens the breaker
	FailureThreshold int `json:"failure_threshold" yaml:"failure_threshold"`
	// ResetTimeout is how long the breaker stays open before allowing a trial call
	ResetTimeout time.Duration `json:"reset_timeout" yaml:"reset_timeout"`
}

// DefaultBreakerConfig returns the default circuit breaker configuration
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 3,
		ResetTimeout:     30 * time.Second,
	}
}

// Validate checks that the configuration has safe values
func (c BreakerConfig) Validate() error {
	if c.FailureThreshold <= 0 {
		return fmt.Errorf("failure_threshold must be positive, got %d", c.FailureThreshold)
	}
	if c.ResetTimeout <= 0 {
		return fmt.Errorf("reset_timeout must be positive, got %v", c.ResetTimeout)
	}
	return nil
}

// CircuitBreaker guards one provider against cascading failure. It is the
// only state mutated concurrently by unrelated runs, so every transition
// is a read-modify-write under a single mutex.
//
// Semantics:
//   - closed: calls pass; each failure increments consecutiveFailures and
//     reaching the threshold opens the breaker
//   - open: calls are rejected until ResetTimeout has elapsed since
//     openedAt, then the breaker moves to half-open
//   - half-open: exactly one trial call is allowed; success closes the
//     breaker and resets the failure count, failure re-opens it and
//     resets openedAt
type CircuitBreaker struct {
	mu sync.Mutex

	state               BreakerState
	consecutiveFailures int
	openedAt            time.Time
	probing             bool // a half-open trial call is in flight

	failureThreshold int
	resetTimeout     time.Duration

	// onTransition is called (outside the lock) after a state change,
	// letting the gateway emit breaker events without the breaker knowing
	// about event plumbing.
	onTransition func(from, to BreakerState, failures int)

	// now is wall-clock time, swappable in tests
	now func() time.Time
}

// NewCircuitBreaker creates a circuit breaker with the given configuration
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		state:            BreakerClosed,
		failureThreshold: cfg.FailureThreshold,
		resetTimeout:     cfg.ResetTimeout,
		now:              time.Now,
	}
}

// OnTransition registers a callback invoked after each state change.
// Must be called before the breaker is shared across goroutines.
func (cb *CircuitBreaker) OnTransition(fn func(from, to BreakerState, failures int)) {
	cb.onTransition = fn
}

// Allow checks whether a call may proceed. ErrBreakerOpen means the caller
// must skip this provider without a network attempt.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()

	switch cb.state {
	case BreakerClosed:
		cb.mu.Unlock()
		return nil

	case BreakerOpen:
		if cb.now().Sub(cb.openedAt) >= cb.resetTimeout {
			from := cb.state
			cb.state = BreakerHalfOpen
			cb.probing = true
			failures := cb.consecutiveFailures
			cb.mu.Unlock()
			cb.notify(from, BreakerHalfOpen, failures)
			return nil
		}
		cb.mu.Unlock()
		return ErrBreakerOpen

	case BreakerHalfOpen:
		if cb.probing {
			// The single trial call is already in flight.
			cb.mu.Unlock()
			return ErrBreakerOpen
		}
		cb.probing = true
		cb.mu.Unlock()
		return nil

	default:
		cb.mu.Unlock()
		return ErrBreakerOpen
	}
}

// RecordSuccess records a successful call
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()

	switch cb.state {
	case BreakerClosed:
		cb.consecutiveFailures = 0
		cb.mu.Unlock()

	case BreakerHalfOpen:
		from := cb.state
		cb.state = BreakerClosed
		cb.consecutiveFailures = 0
		cb.probing = false
		cb.mu.Unlock()
		fmt.Printf("Circuit breaker state transition: %s -> %s (trial call succeeded)\n", from, BreakerClosed)
		cb.notify(from, BreakerClosed, 0)

	default:
		cb.mu.Unlock()
	}
}

// RecordFailure records a failed call
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()

	switch cb.state {
	case BreakerClosed:
		cb.consecutiveFailures++
		if cb.consecutiveFailures >= cb.failureThreshold {
			from := cb.state
			cb.state = BreakerOpen
			cb.openedAt = cb.now()
			failures := cb.consecutiveFailures
			cb.mu.Unlock()
			fmt.Printf("Circuit breaker state transition: %s -> %s (failures=%d, will allow trial in %v)\n",
				from, BreakerOpen, failures, cb.resetTimeout)
			cb.notify(from, BreakerOpen, failures)
			return
		}
		cb.mu.Unlock()

	case BreakerHalfOpen:
		// Trial call failed: re-open and restart the cooldown.
		from := cb.state
		cb.state = BreakerOpen
		cb.openedAt = cb.now()
		cb.consecutiveFailures++
		cb.probing = false
		failures := cb.consecutiveFailures
		cb.mu.Unlock()
		fmt.Printf("Circuit breaker state transition: %s -> %s (trial call failed)\n", from, BreakerOpen)
		cb.notify(from, BreakerOpen, failures)

	default:
		cb.mu.Unlock()
	}
}

// State returns the current state (for monitoring and tests)
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Metrics returns the current state and consecutive failure count
func (cb *CircuitBreaker) Metrics() (state BreakerState, consecutiveFailures int) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state, cb.consecutiveFailures
}

func (cb *CircuitBreaker) notify(from, to BreakerState, failures int) {
	if cb.onTransition != nil {
		cb.onTransition(from, to, failures)
	}
}
