package persist

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/attestly/evidenceflow/internal/events"
	"github.com/attestly/evidenceflow/internal/types"
)

type fakeRelational struct {
	mu         sync.Mutex
	rows       map[string]*types.AnalysisResult
	insertErr  error
	deleteErr  error
	deleteCall int
}

func newFakeRelational() *fakeRelational {
	return &fakeRelational{rows: make(map[string]*types.AnalysisResult)}
}

func (f *fakeRelational) InsertResult(ctx context.Context, result *types.AnalysisResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	f.rows[result.RunID] = result
	return nil
}

func (f *fakeRelational) DeleteResult(ctx context.Context, runID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCall++
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.rows, runID)
	return nil
}

func (f *fakeRelational) has(runID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.rows[runID]
	return ok
}

type fakeGraph struct {
	mu        sync.Mutex
	insertErr error
	inserted  []string
}

func (f *fakeGraph) InsertProjection(ctx context.Context, result *types.AnalysisResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, result.RunID)
	return nil
}

type captureSink struct {
	mu     sync.Mutex
	events []*events.Event
}

func (s *captureSink) StoreEvent(ctx context.Context, e *events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *captureSink) last(t *testing.T) *events.Event {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		t.Fatal("no events captured")
	}
	return s.events[len(s.events)-1]
}

func testResult() *types.AnalysisResult {
	return &types.AnalysisResult{
		RunID:       "run-1",
		TenantID:    "tenant-a",
		ContentHash: "abc123",
		Summary:     "encryption enabled",
		ProviderID:  "anthropic",
		CostUnits:   1.0,
		CompletedAt: time.Now(),
	}
}

func newCoordinator(t *testing.T, rel *fakeRelational, g *fakeGraph, sink events.Sink) *Coordinator {
	t.Helper()
	c, err := New(rel, g, sink, DefaultConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c
}

func TestPersistCommitsBothStores(t *testing.T) {
	rel := newFakeRelational()
	g := &fakeGraph{}
	sink := &captureSink{}
	c := newCoordinator(t, rel, g, sink)

	res, err := c.Persist(context.Background(), testResult())
	if err != nil {
		t.Fatalf("Persist failed: %v", err)
	}
	if res.Outcome != OutcomeCommitted {
		t.Errorf("outcome = %s, want committed", res.Outcome)
	}
	if !rel.has("run-1") {
		t.Error("relational row missing after commit")
	}
	if len(g.inserted) != 1 || g.inserted[0] != "run-1" {
		t.Errorf("graph projections = %v, want [run-1]", g.inserted)
	}
	if sink.last(t).Severity != events.SeverityInfo {
		t.Errorf("commit event severity = %s, want info", sink.last(t).Severity)
	}
}

func TestPersistGraphFailureCompensates(t *testing.T) {
	rel := newFakeRelational()
	g := &fakeGraph{insertErr: fmt.Errorf("weaviate unreachable")}
	sink := &captureSink{}
	c := newCoordinator(t, rel, g, sink)

	res, err := c.Persist(context.Background(), testResult())
	if err == nil {
		t.Fatal("Persist succeeded despite graph failure")
	}
	if res.Outcome != OutcomeRolledBack {
		t.Errorf("outcome = %s, want rolled_back", res.Outcome)
	}
	if rel.has("run-1") {
		t.Error("relational row remains after compensation")
	}
	if rel.deleteCall != 1 {
		t.Errorf("compensating deletes = %d, want 1", rel.deleteCall)
	}
	if res.GraphErr == nil {
		t.Error("GraphErr not captured")
	}
}

func TestPersistCompensationFailureIsPartialCommit(t *testing.T) {
	rel := newFakeRelational()
	rel.deleteErr = fmt.Errorf("database locked")
	g := &fakeGraph{insertErr: fmt.Errorf("weaviate unreachable")}
	sink := &captureSink{}
	c := newCoordinator(t, rel, g, sink)

	res, err := c.Persist(context.Background(), testResult())
	if err == nil {
		t.Fatal("Persist succeeded despite partial commit")
	}
	if res.Outcome != OutcomePartiallyCommitted {
		t.Errorf("outcome = %s, want partially_committed", res.Outcome)
	}
	// The row genuinely remains: that is the drift operators must resolve.
	if !rel.has("run-1") {
		t.Error("relational row unexpectedly gone")
	}
	if res.CompensationErr == nil {
		t.Error("CompensationErr not captured")
	}

	event := sink.last(t)
	if event.Severity != events.SeverityCritical {
		t.Errorf("partial commit event severity = %s, want critical", event.Severity)
	}
	data, err := event.GetPersistenceOutcomeData()
	if err != nil {
		t.Fatalf("GetPersistenceOutcomeData failed: %v", err)
	}
	if data.CompensationError == "" {
		t.Error("event missing compensation error detail")
	}
}

func TestPersistRelationalFailureAborts(t *testing.T) {
	rel := newFakeRelational()
	rel.insertErr = fmt.Errorf("disk full")
	g := &fakeGraph{}
	c := newCoordinator(t, rel, g, nil)

	res, err := c.Persist(context.Background(), testResult())
	if err == nil {
		t.Fatal("Persist succeeded despite relational failure")
	}
	if res.Outcome != OutcomeAborted {
		t.Errorf("outcome = %s, want aborted", res.Outcome)
	}
	// Graph must never be written before the system of record.
	if len(g.inserted) != 0 {
		t.Errorf("graph written despite relational failure: %v", g.inserted)
	}
	if rel.deleteCall != 0 {
		t.Errorf("compensation ran with nothing to compensate: %d deletes", rel.deleteCall)
	}
}

func TestPersistCompensatesEvenWhenCallerContextCanceled(t *testing.T) {
	rel := newFakeRelational()
	g := &fakeGraph{insertErr: context.Canceled}
	c := newCoordinator(t, rel, g, nil)

	ctx, cancel := context.WithCancel(context.Background())
	// Relational write succeeds, then the caller goes away mid-saga.
	res, err := func() (*Result, error) {
		defer cancel()
		return c.Persist(ctx, testResult())
	}()
	if err == nil {
		t.Fatal("Persist succeeded despite graph failure")
	}
	if res.Outcome != OutcomeRolledBack {
		t.Errorf("outcome = %s, want rolled_back", res.Outcome)
	}
	if rel.has("run-1") {
		t.Error("compensation skipped under canceled context")
	}
}

func TestNewRequiresBothStores(t *testing.T) {
	if _, err := New(nil, &fakeGraph{}, nil, DefaultConfig()); err == nil {
		t.Error("New accepted nil relational store")
	}
	if _, err := New(newFakeRelational(), nil, nil, DefaultConfig()); err == nil {
		t.Error("New accepted nil graph store")
	}
}
