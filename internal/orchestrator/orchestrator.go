package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/attestly/evidenceflow/internal/dedupe"
	"github.com/attestly/evidenceflow/internal/events"
	"github.com/attestly/evidenceflow/internal/fingerprint"
	"github.com/attestly/evidenceflow/internal/persist"
	"github.com/attestly/evidenceflow/internal/provider"
	"github.com/attestly/evidenceflow/internal/storage"
	"github.com/attestly/evidenceflow/internal/types"
	"github.com/attestly/evidenceflow/internal/validate"
)

// ErrRunNotActive is returned by Cancel when the run is not currently
// executing (unknown, or already terminal).
var ErrRunNotActive = errors.New("run is not active")

// ErrPersistenceStarted is returned by Cancel once the run has entered the
// persistence stage. Persistence is never interrupted mid-saga.
var ErrPersistenceStarted = errors.New("cannot cancel: persistence in progress")

// Invoker dispatches one analysis request through the provider fallback
// chain. Satisfied by *provider.Gateway.
type Invoker interface {
	Invoke(ctx context.Context, req provider.Request) (*provider.Invocation, error)
}

// Persister writes one analysis result through the dual-store saga.
// Satisfied by *persist.Coordinator.
type Persister interface {
	Persist(ctx context.Context, result *types.AnalysisResult) (*persist.Result, error)
}

// Config holds orchestrator tuning knobs.
type Config struct {
	// MaxConcurrentRuns caps how many runs execute stages at once.
	// Submissions beyond the cap queue on the semaphore, they are not
	// rejected.
	MaxConcurrentRuns int64
	// MaxPayloadBytes is the validator's payload size ceiling
	MaxPayloadBytes int
	// AnalysisMaxTokens is the completion token budget per provider call
	AnalysisMaxTokens int
}

// DefaultConfig returns the default orchestrator configuration
func DefaultConfig() Config {
	return Config{
		MaxConcurrentRuns: 16,
		MaxPayloadBytes:   1 << 20, // 1 MiB
		AnalysisMaxTokens: 2048,
	}
}

// Validate checks the configuration for correctness
func (c Config) Validate() error {
	if c.MaxConcurrentRuns <= 0 {
		return fmt.Errorf("max concurrent runs must be positive, got %d", c.MaxConcurrentRuns)
	}
	if c.MaxPayloadBytes <= 0 {
		return fmt.Errorf("max payload bytes must be positive, got %d", c.MaxPayloadBytes)
	}
	if c.AnalysisMaxTokens <= 0 {
		return fmt.Errorf("analysis max tokens must be positive, got %d", c.AnalysisMaxTokens)
	}
	return nil
}

// Stats is a point-in-time snapshot of orchestrator activity.
type Stats struct {
	ActiveRuns    int `json:"active_runs"`
	InFlightSlots int `json:"in_flight_slots"`
	Submitted     int `json:"submitted"`
	Completed     int `json:"completed"`
	Rejected      int `json:"rejected"`
	Failed        int `json:"failed"`
}

// runHandle tracks one executing run so it can be canceled.
type runHandle struct {
	cancel     context.CancelFunc
	done       chan struct{}
	persisting bool
}

// Orchestrator owns the run state machine. Every run's state lives here and
// in storage, nowhere else; stages never transition a run themselves, they
// report outcomes and the orchestrator advances the machine.
type Orchestrator struct {
	store     storage.Storage
	index     *dedupe.Index
	validator *validate.Validator
	invoker   Invoker
	persister Persister
	cfg       Config

	sem *semaphore.Weighted

	mu     sync.Mutex
	active map[string]*runHandle
	stats  Stats
}

// New creates an orchestrator wired to the given stores and services.
// The deduplication index is built on top of the storage layer's
// fingerprint-scoped result lookup.
func New(store storage.Storage, invoker Invoker, persister Persister, cfg Config) (*Orchestrator, error) {
	if store == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if invoker == nil {
		return nil, fmt.Errorf("provider invoker is required")
	}
	if persister == nil {
		return nil, fmt.Errorf("persister is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid orchestrator config: %w", err)
	}

	index, err := dedupe.New(store)
	if err != nil {
		return nil, fmt.Errorf("failed to build dedup index: %w", err)
	}

	return &Orchestrator{
		store:     store,
		index:     index,
		validator: validate.New(cfg.MaxPayloadBytes),
		invoker:   invoker,
		persister: persister,
		cfg:       cfg,
		sem:       semaphore.NewWeighted(cfg.MaxConcurrentRuns),
		active:    make(map[string]*runHandle),
	}, nil
}

// Submit accepts one evidence item and starts a run for it. Intake and
// deduplication happen synchronously so the caller learns about duplicates
// and cache hits immediately; the remaining stages run in the background.
// The returned run is a snapshot; poll GetStatus or WaitForTerminal for
// progress.
func (o *Orchestrator) Submit(ctx context.Context, item *types.EvidenceItem) (*types.WorkflowRun, error) {
	if item == nil {
		return nil, fmt.Errorf("evidence item is required")
	}
	if item.TenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}
	if len(item.Payload) == 0 {
		return nil, fmt.Errorf("payload is required")
	}

	run := &types.WorkflowRun{
		ID:            uuid.New().String(),
		TenantID:      item.TenantID,
		ContentHash:   fingerprint.Compute(item.TenantID, item.Payload),
		State:         types.StateIntake,
		StageAttempts: make(map[string]int),
		StartedAt:     time.Now().UTC(),
	}
	if err := o.store.SaveRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to save run: %w", err)
	}
	o.mu.Lock()
	o.stats.Submitted++
	o.mu.Unlock()

	fmt.Printf("Run %s submitted for tenant %s (hash %s)\n", run.ID, run.TenantID, run.ContentHash[:12])
	o.emitSimple(ctx, events.EventTypeRunSubmitted, run,
		fmt.Sprintf("Evidence submitted (type %s, %d bytes)", item.DeclaredType, len(item.Payload)))

	if err := o.transition(ctx, run, types.StateDeduplicating, "intake_complete"); err != nil {
		return nil, err
	}

	decision, err := o.index.TryAcquire(ctx, run.TenantID, run.ContentHash, run.ID)
	if err != nil {
		// The cache lookup failing means we cannot prove this evidence is
		// new. Reject rather than risk a duplicate analysis; resubmission
		// recovers once the store is healthy.
		return o.finalize(ctx, run, types.StateRejected, &types.RunError{
			Class:  types.ErrClassRejected,
			Detail: fmt.Sprintf("deduplication lookup failed: %v", err),
		}, "dedup_lookup_error")
	}

	o.emitDedupDecision(ctx, run, decision)

	switch decision.Outcome {
	case dedupe.OutcomeAlreadyProcessed:
		run.Result = decision.CachedResult
		return o.finalize(ctx, run, types.StateCompleted, nil, "dedup_cache_hit")

	case dedupe.OutcomeAlreadyInFlight:
		return o.finalize(ctx, run, types.StateRejected, &types.RunError{
			Class:  types.ErrClassRejected,
			Detail: fmt.Sprintf("duplicate submission: fingerprint already in flight under run %s", decision.HolderRunID),
		}, "dedup_in_flight")
	}

	runCtx, cancel := context.WithCancel(context.Background())
	handle := &runHandle{cancel: cancel, done: make(chan struct{})}
	o.mu.Lock()
	o.active[run.ID] = handle
	o.mu.Unlock()

	go o.processRun(runCtx, run, item, handle)

	snapshot := *run
	return &snapshot, nil
}

// processRun drives an acquired run from validation through persistence.
// The dedup slot is held for the run's whole lifetime and released here,
// on every path, so a failed run frees the fingerprint for resubmission.
func (o *Orchestrator) processRun(ctx context.Context, run *types.WorkflowRun, item *types.EvidenceItem, handle *runHandle) {
	defer func() {
		o.index.Release(run.TenantID, run.ContentHash)
		o.mu.Lock()
		delete(o.active, run.ID)
		o.mu.Unlock()
		close(handle.done)
	}()

	// Terminal-state writes must land even when ctx was canceled, so they
	// use their own context.
	wctx := context.Background()

	if err := o.sem.Acquire(ctx, 1); err != nil {
		o.finalize(wctx, run, types.StateRejected, canceledError("run canceled while queued"), "canceled")
		return
	}
	defer o.sem.Release(1)

	// Validating
	if ctx.Err() != nil {
		o.finalize(wctx, run, types.StateRejected, canceledError("run canceled before validation"), "canceled")
		return
	}
	if err := o.transition(wctx, run, types.StateValidating, "dedup_slot_acquired"); err != nil {
		return
	}
	outcome := o.validator.Validate(item)
	if !outcome.Valid {
		o.finalize(wctx, run, types.StateRejected, &types.RunError{
			Class:  types.ErrClassRejected,
			Detail: "validation failed: " + strings.Join(outcome.Reasons, "; "),
		}, "validation_failed")
		return
	}

	// Analyzing
	if ctx.Err() != nil {
		o.finalize(wctx, run, types.StateRejected, canceledError("run canceled before analysis"), "canceled")
		return
	}
	if err := o.transition(wctx, run, types.StateAnalyzing, "validation_passed"); err != nil {
		return
	}
	req := provider.Request{
		TenantID:  run.TenantID,
		RunID:     run.ID,
		Prompt:    buildAnalysisPrompt(item),
		MaxTokens: o.cfg.AnalysisMaxTokens,
	}
	inv, err := o.invoker.Invoke(ctx, req)
	if inv != nil {
		o.emitProviderAttempts(wctx, run, inv.Attempts)
	}
	if err != nil {
		runErr := &types.RunError{Class: types.ErrClassProviderExhausted}
		switch {
		case ctx.Err() != nil:
			runErr = canceledError("run canceled during analysis")
		case errors.Is(err, provider.ErrBudgetExceeded):
			runErr.Detail = fmt.Sprintf("analysis refused: %v", err)
		default:
			runErr.Detail = fmt.Sprintf("analysis failed: %v", err)
		}
		if inv != nil {
			runErr.Attempts = inv.Attempts
		}
		o.finalize(wctx, run, types.StateFailed, runErr, "analysis_failed")
		return
	}

	// Aggregating. Cancellation is checked for the last time here; from
	// persistence onward the run always reaches a terminal state on its own.
	if ctx.Err() != nil {
		o.finalize(wctx, run, types.StateFailed, canceledError("run canceled after analysis"), "canceled")
		return
	}
	if err := o.transition(wctx, run, types.StateAggregating, "analysis_complete"); err != nil {
		return
	}
	result := aggregateResult(run, inv)

	// Persisting
	o.mu.Lock()
	handle.persisting = true
	o.mu.Unlock()
	if err := o.transition(wctx, run, types.StatePersisting, "result_aggregated"); err != nil {
		return
	}
	// The saga is never interrupted by cancellation
	res, err := o.persister.Persist(wctx, result)
	if err != nil {
		class := types.ErrClassPersistenceRolledBack
		if res != nil && res.Outcome == persist.OutcomePartiallyCommitted {
			class = types.ErrClassPersistencePartiallyCommitted
		}
		o.finalize(wctx, run, types.StateFailed, &types.RunError{
			Class:  class,
			Detail: fmt.Sprintf("persistence failed: %v", err),
		}, "persistence_failed")
		return
	}

	run.Result = result
	o.finalize(wctx, run, types.StateCompleted, nil, "persisted")
}

// GetStatus returns the stored run, or nil when unknown.
func (o *Orchestrator) GetStatus(ctx context.Context, runID string) (*types.WorkflowRun, error) {
	return o.store.GetRun(ctx, runID)
}

// Cancel requests cooperative cancellation of an active run. The run stops
// at the next stage boundary; it is never interrupted mid-stage, and once
// persistence has begun it runs to completion.
func (o *Orchestrator) Cancel(ctx context.Context, runID string) error {
	o.mu.Lock()
	handle, ok := o.active[runID]
	if ok && handle.persisting {
		o.mu.Unlock()
		return ErrPersistenceStarted
	}
	o.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotActive, runID)
	}

	handle.cancel()
	fmt.Printf("Cancellation requested for run %s\n", runID)

	run, err := o.store.GetRun(ctx, runID)
	if err == nil && run != nil {
		event := events.NewSimpleEvent(events.EventTypeRunCanceled, runID, run.TenantID,
			"orchestrator", events.SeverityWarning, "Run cancellation requested")
		if storeErr := o.store.StoreEvent(ctx, event); storeErr != nil {
			fmt.Printf("Warning: failed to store cancel event for run %s: %v\n", runID, storeErr)
		}
	}
	return nil
}

// WaitForTerminal blocks until the run reaches a terminal state or ctx
// expires, then returns the final run.
func (o *Orchestrator) WaitForTerminal(ctx context.Context, runID string) (*types.WorkflowRun, error) {
	o.mu.Lock()
	handle, ok := o.active[runID]
	o.mu.Unlock()
	if ok {
		select {
		case <-handle.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		run, err := o.store.GetRun(ctx, runID)
		if err != nil {
			return nil, err
		}
		if run == nil {
			return nil, fmt.Errorf("run not found: %s", runID)
		}
		if run.State.Terminal() {
			return run, nil
		}
		select {
		case <-ctx.Done():
			return run, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Stats returns a snapshot of orchestrator activity.
func (o *Orchestrator) Stats() Stats {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.stats
	s.ActiveRuns = len(o.active)
	s.InFlightSlots = o.index.InFlight()
	return s
}

// transition advances the run one state, persists it, and emits the
// transition event. A transition the state machine forbids is a bug; it is
// logged and the run is left where it was.
func (o *Orchestrator) transition(ctx context.Context, run *types.WorkflowRun, next types.RunState, cause string) error {
	if !run.State.CanTransition(next) {
		err := fmt.Errorf("illegal transition %s -> %s for run %s", run.State, next, run.ID)
		fmt.Printf("Error: %v\n", err)
		return err
	}

	from := run.State
	run.State = next
	if !next.Terminal() {
		run.StageAttempts[string(next)]++
	}
	if err := o.store.SaveRun(ctx, run); err != nil {
		run.State = from
		fmt.Printf("Error: failed to persist transition %s -> %s for run %s: %v\n", from, next, run.ID, err)
		return err
	}

	fmt.Printf("Run %s: %s -> %s (%s)\n", run.ID, from, next, cause)
	event, err := events.NewStateTransitionEvent(run.ID, run.TenantID, events.SeverityInfo,
		fmt.Sprintf("Run transitioned %s -> %s", from, next),
		events.StateTransitionData{FromState: string(from), ToState: string(next), Cause: cause})
	if err == nil {
		if storeErr := o.store.StoreEvent(ctx, event); storeErr != nil {
			fmt.Printf("Warning: failed to store transition event for run %s: %v\n", run.ID, storeErr)
		}
	}
	return nil
}

// finalize moves the run to a terminal state and returns a snapshot of it.
func (o *Orchestrator) finalize(ctx context.Context, run *types.WorkflowRun, state types.RunState, runErr *types.RunError, cause string) (*types.WorkflowRun, error) {
	now := time.Now().UTC()
	run.CompletedAt = &now
	run.Error = runErr
	if err := o.transition(ctx, run, state, cause); err != nil {
		run.CompletedAt = nil
		run.Error = nil
		return nil, err
	}

	o.mu.Lock()
	switch state {
	case types.StateCompleted:
		o.stats.Completed++
	case types.StateRejected:
		o.stats.Rejected++
	case types.StateFailed:
		o.stats.Failed++
	}
	o.mu.Unlock()

	snapshot := *run
	return &snapshot, nil
}

func (o *Orchestrator) emitSimple(ctx context.Context, eventType events.EventType, run *types.WorkflowRun, message string) {
	event := events.NewSimpleEvent(eventType, run.ID, run.TenantID, "orchestrator", events.SeverityInfo, message)
	if err := o.store.StoreEvent(ctx, event); err != nil {
		fmt.Printf("Warning: failed to store %s event for run %s: %v\n", eventType, run.ID, err)
	}
}

func (o *Orchestrator) emitDedupDecision(ctx context.Context, run *types.WorkflowRun, decision *dedupe.Decision) {
	event, err := events.NewDedupDecisionEvent(run.ID, run.TenantID,
		fmt.Sprintf("Deduplication decision: %s", decision.Outcome),
		events.DedupDecisionData{
			ContentHash: run.ContentHash,
			Outcome:     string(decision.Outcome),
			HolderRunID: decision.HolderRunID,
		})
	if err != nil {
		return
	}
	if storeErr := o.store.StoreEvent(ctx, event); storeErr != nil {
		fmt.Printf("Warning: failed to store dedup event for run %s: %v\n", run.ID, storeErr)
	}
}

func (o *Orchestrator) emitProviderAttempts(ctx context.Context, run *types.WorkflowRun, attempts []types.ProviderAttempt) {
	for _, a := range attempts {
		severity := events.SeverityInfo
		if a.Outcome != types.OutcomeSuccess {
			severity = events.SeverityWarning
		}
		event, err := events.NewProviderAttemptEvent(run.ID, run.TenantID, severity,
			fmt.Sprintf("Provider %s attempt: %s", a.ProviderID, a.Outcome),
			events.ProviderAttemptData{
				ProviderID: a.ProviderID,
				Outcome:    string(a.Outcome),
				LatencyMs:  a.Latency.Milliseconds(),
				Retries:    a.Retries,
				Error:      a.Detail,
			})
		if err != nil {
			continue
		}
		if storeErr := o.store.StoreEvent(ctx, event); storeErr != nil {
			fmt.Printf("Warning: failed to store attempt event for run %s: %v\n", run.ID, storeErr)
		}
	}
}

func canceledError(detail string) *types.RunError {
	return &types.RunError{Class: types.ErrClassCanceled, Detail: detail}
}
