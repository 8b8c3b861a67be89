package provider

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/attestly/evidenceflow/internal/events"
	"github.com/attestly/evidenceflow/internal/types"
)

// ErrBudgetExceeded is returned by Invoke when the tenant's cost budget is
// exhausted. No provider attempts are made in that case.
var ErrBudgetExceeded = errors.New("tenant cost budget exceeded")

// ErrChainExhausted is returned when every provider in the chain was
// rejected by its breaker or failed after retries.
var ErrChainExhausted = errors.New("all providers in chain exhausted")

// CostGate lets the gateway refuse calls for tenants over budget and
// account for usage after successful calls.
type CostGate interface {
	// CanProceed returns ErrBudgetExceeded (possibly wrapped) when the
	// tenant must not spend more.
	CanProceed(tenantID string) error
	// RecordUsage adds cost units against the tenant's budget.
	RecordUsage(tenantID string, costUnits float64)
}

// RecordSink persists provider call records for audit and billing
type RecordSink interface {
	AppendCallRecord(ctx context.Context, rec *types.ProviderCallRecord) error
}

// GatewayConfig holds gateway-level settings
type GatewayConfig struct {
	// CallTimeout bounds each network attempt
	CallTimeout time.Duration `json:"call_timeout" yaml:"call_timeout"`
	// MaxConcurrentCalls caps in-flight provider calls across all runs
	MaxConcurrentCalls int64 `json:"max_concurrent_calls" yaml:"max_concurrent_calls"`
	// RequestsPerSecond is the per-provider rate limit
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second"`
	// Breaker settings apply to each provider independently
	Breaker BreakerConfig `json:"breaker" yaml:"breaker"`
	// Retry settings apply within a single provider before falling back
	Retry RetryConfig `json:"retry" yaml:"retry"`
}

// DefaultGatewayConfig returns the default gateway configuration
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		CallTimeout:        60 * time.Second,
		MaxConcurrentCalls: 8,
		RequestsPerSecond:  2,
		Breaker:            DefaultBreakerConfig(),
		Retry:              DefaultRetryConfig(),
	}
}

// Validate checks the configuration for safe values
func (c GatewayConfig) Validate() error {
	if c.CallTimeout <= 0 {
		return fmt.Errorf("call_timeout must be positive, got %v", c.CallTimeout)
	}
	if c.MaxConcurrentCalls <= 0 {
		return fmt.Errorf("max_concurrent_calls must be positive, got %d", c.MaxConcurrentCalls)
	}
	if c.RequestsPerSecond <= 0 {
		return fmt.Errorf("requests_per_second must be positive, got %f", c.RequestsPerSecond)
	}
	if err := c.Breaker.Validate(); err != nil {
		return fmt.Errorf("breaker config: %w", err)
	}
	return nil
}

// Invocation is the result of one gateway invocation: the first successful
// response (nil when the chain was exhausted) plus the full attempt trail.
type Invocation struct {
	Response  *Response
	Attempts  []types.ProviderAttempt
	TotalCost float64
}

// Gateway routes analysis requests across an ordered provider chain with
// per-provider circuit breakers, rate limits, retries, and a global
// concurrency cap. Providers are tried in order; the first success wins.
type Gateway struct {
	chain    []Provider
	breakers map[string]*CircuitBreaker
	limiters map[string]*rate.Limiter
	sem      *semaphore.Weighted

	records RecordSink
	costs   CostGate
	sink    events.Sink // optional

	cfg GatewayConfig

	// sleep is swappable in tests to skip real backoff delays
	sleep func(ctx context.Context, d time.Duration) error
}

// NewGateway creates a gateway over the given provider chain. The chain
// order is the fallback order. records is required; costs and sink may be
// nil to disable budget enforcement and event emission.
func NewGateway(chain []Provider, records RecordSink, costs CostGate, sink events.Sink, cfg GatewayConfig) (*Gateway, error) {
	if len(chain) == 0 {
		return nil, fmt.Errorf("provider chain must not be empty")
	}
	if records == nil {
		return nil, fmt.Errorf("record sink is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid gateway config: %w", err)
	}

	g := &Gateway{
		chain:    chain,
		breakers: make(map[string]*CircuitBreaker),
		limiters: make(map[string]*rate.Limiter),
		sem:      semaphore.NewWeighted(cfg.MaxConcurrentCalls),
		records:  records,
		costs:    costs,
		sink:     sink,
		cfg:      cfg,
		sleep:    sleepCtx,
	}

	for _, p := range chain {
		id := p.ID()
		if _, dup := g.breakers[id]; dup {
			return nil, fmt.Errorf("duplicate provider id in chain: %s", id)
		}
		cb := NewCircuitBreaker(cfg.Breaker)
		providerID := id
		cb.OnTransition(func(from, to BreakerState, failures int) {
			g.emitBreakerChange(providerID, from, to, failures)
		})
		g.breakers[id] = cb
		g.limiters[id] = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return g, nil
}

// Invoke runs the request through the provider chain. The returned
// Invocation always carries the full attempt trail, including when the
// chain is exhausted (Response nil, err ErrChainExhausted). A budget
// refusal returns ErrBudgetExceeded with zero attempts.
func (g *Gateway) Invoke(ctx context.Context, req Request) (*Invocation, error) {
	if g.costs != nil {
		if err := g.costs.CanProceed(req.TenantID); err != nil {
			return nil, fmt.Errorf("refusing provider call for tenant %s: %w: %v", req.TenantID, ErrBudgetExceeded, err)
		}
	}

	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for call slot: %w", err)
	}
	defer g.sem.Release(1)

	inv := &Invocation{}

	for _, p := range g.chain {
		id := p.ID()
		breaker := g.breakers[id]

		if err := breaker.Allow(); err != nil {
			// Skipped without a network call; still recorded for audit.
			attempt := types.ProviderAttempt{
				ProviderID: id,
				Outcome:    types.OutcomeRejectedByBreaker,
				Detail:     "circuit breaker open",
			}
			inv.Attempts = append(inv.Attempts, attempt)
			g.appendRecord(ctx, req, attempt, 0)
			continue
		}

		attempt, resp := g.callWithRetry(ctx, p, req)
		inv.Attempts = append(inv.Attempts, attempt)
		g.appendRecord(ctx, req, attempt, costOf(resp))

		if attempt.Outcome == types.OutcomeSuccess {
			breaker.RecordSuccess()
			inv.Response = resp
			inv.TotalCost += resp.CostUnits
			if g.costs != nil {
				g.costs.RecordUsage(req.TenantID, resp.CostUnits)
			}
			return inv, nil
		}

		breaker.RecordFailure()

		if ctx.Err() != nil {
			// The run itself was canceled or timed out, not just one call.
			return inv, fmt.Errorf("invocation aborted: %w", ctx.Err())
		}
	}

	return inv, ErrChainExhausted
}

// callWithRetry performs up to 1+MaxRetries attempts against one provider,
// backing off exponentially on transient errors. Malformed requests fail
// immediately. The returned attempt summarizes the final outcome.
func (g *Gateway) callWithRetry(ctx context.Context, p Provider, req Request) (types.ProviderAttempt, *Response) {
	id := p.ID()
	attempt := types.ProviderAttempt{ProviderID: id}
	start := time.Now()

	var lastErr error
	backoff := g.cfg.Retry.InitialBackoff

	for try := 0; try <= g.cfg.Retry.MaxRetries; try++ {
		if try > 0 {
			// Add jitter to avoid thundering herd
			var jitter time.Duration
			if half := int64(backoff) / 2; half > 0 {
				jitter = time.Duration(rand.Int63n(half))
			}
			if err := g.sleep(ctx, backoff+jitter); err != nil {
				lastErr = err
				break
			}
			backoff *= 2
			if backoff > g.cfg.Retry.MaxBackoff {
				backoff = g.cfg.Retry.MaxBackoff
			}
			attempt.Retries++
		}

		if err := g.limiters[id].Wait(ctx); err != nil {
			lastErr = err
			break
		}

		callCtx, cancel := context.WithTimeout(ctx, g.cfg.CallTimeout)
		resp, err := p.Call(callCtx, req)
		cancel()

		if err == nil {
			attempt.Outcome = types.OutcomeSuccess
			attempt.Latency = time.Since(start)
			return attempt, resp
		}

		lastErr = err
		fmt.Printf("Provider %s attempt %d failed: %v\n", id, try+1, err)

		if isMalformedError(err) {
			attempt.Outcome = types.OutcomeMalformed
			attempt.Detail = err.Error()
			attempt.Latency = time.Since(start)
			return attempt, nil
		}
		if !isRetriableError(err) {
			break
		}
	}

	attempt.Latency = time.Since(start)
	if lastErr != nil {
		attempt.Detail = lastErr.Error()
		if errors.Is(lastErr, context.DeadlineExceeded) {
			attempt.Outcome = types.OutcomeTimeout
			return attempt, nil
		}
	}
	attempt.Outcome = types.OutcomeError
	return attempt, nil
}

// BreakerStates returns the current state of every provider's breaker
func (g *Gateway) BreakerStates() map[string]string {
	states := make(map[string]string, len(g.breakers))
	for id, cb := range g.breakers {
		states[id] = cb.State().String()
	}
	return states
}

func (g *Gateway) appendRecord(ctx context.Context, req Request, attempt types.ProviderAttempt, cost float64) {
	rec := &types.ProviderCallRecord{
		ID:            uuid.New().String(),
		RunID:         req.RunID,
		TenantID:      req.TenantID,
		ProviderID:    attempt.ProviderID,
		RequestDigest: req.Digest(),
		Outcome:       attempt.Outcome,
		Latency:       attempt.Latency,
		CostUnits:     cost,
		CreatedAt:     time.Now(),
	}
	if err := g.records.AppendCallRecord(ctx, rec); err != nil {
		// Call records are an audit trail; losing one must not fail the run.
		fmt.Printf("Warning: failed to append call record for run %s: %v\n", req.RunID, err)
	}
}

func (g *Gateway) emitBreakerChange(providerID string, from, to BreakerState, failures int) {
	if g.sink == nil {
		return
	}
	severity := events.SeverityWarning
	if to == BreakerClosed {
		severity = events.SeverityInfo
	}
	event, err := events.NewBreakerStateChangeEvent(severity,
		fmt.Sprintf("breaker for %s: %s -> %s", providerID, from, to),
		events.BreakerStateChangeData{
			ProviderID:          providerID,
			FromState:           from.String(),
			ToState:             to.String(),
			ConsecutiveFailures: failures,
		})
	if err != nil {
		return
	}
	if err := g.sink.StoreEvent(context.Background(), event); err != nil {
		fmt.Printf("Warning: failed to store breaker event: %v\n", err)
	}
}

func costOf(resp *Response) float64 {
	if resp == nil {
		return 0
	}
	return resp.CostUnits
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
