// Package dedupe implements the deduplication index: a fingerprint-keyed
// mutual-exclusion gate plus a completed-result cache.
//
// The index is a gate, not merely a cache. Two concurrent submissions of
// the same fingerprint must not both reach the provider gateway: the first
// acquires the slot, the second gets AlreadyInFlight. A fingerprint whose
// run already completed short-circuits with the cached result and no
// reprocessing.
//
// Callers MUST release the slot on every terminal path: success,
// validation failure, fatal error, cancellation. The orchestrator does this
// with a deferred Release.
package dedupe

import (
	"context"
	"fmt"
	"sync"

	"github.com/attestly/evidenceflow/internal/types"
)

// Outcome is the result of a TryAcquire call.
type Outcome string

const (
	// OutcomeAcquired means the caller now holds the slot and must Release it
	OutcomeAcquired Outcome = "acquired"
	// OutcomeAlreadyInFlight means another run holds the slot right now
	OutcomeAlreadyInFlight Outcome = "already_in_flight"
	// OutcomeAlreadyProcessed means a completed result exists for this
	// fingerprint; the decision carries it
	OutcomeAlreadyProcessed Outcome = "already_processed"
)

// Decision is the outcome of checking a fingerprint against the index.
type Decision struct {
	// Outcome is the acquisition outcome
	Outcome Outcome `json:"outcome"`
	// CachedResult is the prior result, set only for already_processed
	CachedResult *types.AnalysisResult `json:"cached_result,omitempty"`
	// HolderRunID is the run holding the slot, set only for already_in_flight
	HolderRunID string `json:"holder_run_id,omitempty"`
}

// Validate checks if the decision has consistent values
func (d *Decision) Validate() error {
	switch d.Outcome {
	case OutcomeAcquired, OutcomeAlreadyInFlight, OutcomeAlreadyProcessed:
	default:
		return fmt.Errorf("invalid outcome: %s", d.Outcome)
	}
	if d.Outcome == OutcomeAlreadyProcessed && d.CachedResult == nil {
		return fmt.Errorf("cached_result must be set when outcome is already_processed")
	}
	if d.Outcome != OutcomeAlreadyProcessed && d.CachedResult != nil {
		return fmt.Errorf("cached_result should not be set for outcome %s", d.Outcome)
	}
	if d.Outcome == OutcomeAlreadyInFlight && d.HolderRunID == "" {
		return fmt.Errorf("holder_run_id must be set when outcome is already_in_flight")
	}
	return nil
}

// ResultLookup answers "has a run for this fingerprint already completed?".
// The relational store implements it; (nil, nil) means no cached result.
type ResultLookup interface {
	GetResultByFingerprint(ctx context.Context, tenantID, contentHash string) (*types.AnalysisResult, error)
}

// Index is the deduplication index. Safe for concurrent use.
type Index struct {
	mu       sync.Mutex
	inflight map[string]string // fingerprint key -> holder run ID
	results  ResultLookup
}

// New creates a deduplication index backed by the given result lookup.
// A nil lookup is a configuration error, not a silent pass-through.
func New(results ResultLookup) (*Index, error) {
	if results == nil {
		return nil, fmt.Errorf("result lookup is required")
	}
	return &Index{
		inflight: make(map[string]string),
		results:  results,
	}, nil
}

// TryAcquire attempts to reserve the processing slot for a fingerprint on
// behalf of runID.
//
// The in-flight check and the reservation are a single atomic step, so of
// N concurrent callers exactly one acquires. The completed-result lookup
// happens after the reservation (it hits the store), and a cache hit
// releases the reservation before returning.
func (i *Index) TryAcquire(ctx context.Context, tenantID, contentHash, runID string) (*Decision, error) {
	key := slotKey(tenantID, contentHash)

	i.mu.Lock()
	if holder, ok := i.inflight[key]; ok {
		i.mu.Unlock()
		return &Decision{Outcome: OutcomeAlreadyInFlight, HolderRunID: holder}, nil
	}
	// Reserve before the cache lookup so a concurrent duplicate can't slip
	// through while we're querying the store.
	i.inflight[key] = runID
	i.mu.Unlock()

	cached, err := i.results.GetResultByFingerprint(ctx, tenantID, contentHash)
	if err != nil {
		i.Release(tenantID, contentHash)
		return nil, fmt.Errorf("dedup result lookup failed: %w", err)
	}
	if cached != nil {
		i.Release(tenantID, contentHash)
		return &Decision{Outcome: OutcomeAlreadyProcessed, CachedResult: cached}, nil
	}

	return &Decision{Outcome: OutcomeAcquired}, nil
}

// Release frees the slot for a fingerprint. Releasing an unheld slot is a
// no-op, so terminal paths can release unconditionally.
func (i *Index) Release(tenantID, contentHash string) {
	key := slotKey(tenantID, contentHash)
	i.mu.Lock()
	delete(i.inflight, key)
	i.mu.Unlock()
}

// InFlight returns the number of fingerprints currently holding slots
// (for stats and tests).
func (i *Index) InFlight() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.inflight)
}

func slotKey(tenantID, contentHash string) string {
	return tenantID + "\x00" + contentHash
}
