package persist

import (
	"context"
	"fmt"
	"time"

	"github.com/attestly/evidenceflow/internal/events"
	"github.com/attestly/evidenceflow/internal/types"
)

// Outcome is the terminal state of one persistence saga.
type Outcome string

const (
	// OutcomeCommitted means both stores accepted the result
	OutcomeCommitted Outcome = "committed"
	// OutcomeAborted means the relational write failed; nothing was
	// committed and there is nothing to compensate
	OutcomeAborted Outcome = "aborted"
	// OutcomeRolledBack means the graph write failed and the relational
	// write was successfully compensated. Resubmission is safe.
	OutcomeRolledBack Outcome = "rolled_back"
	// OutcomePartiallyCommitted means the graph write failed AND the
	// compensating delete failed: the relational row exists without its
	// graph projection. Requires operator intervention.
	OutcomePartiallyCommitted Outcome = "partially_committed"
)

// RelationalStore is the saga's first leg: the system of record.
type RelationalStore interface {
	InsertResult(ctx context.Context, result *types.AnalysisResult) error
	DeleteResult(ctx context.Context, runID string) error
}

// GraphStore is the saga's second leg: the traversable projection.
type GraphStore interface {
	InsertProjection(ctx context.Context, result *types.AnalysisResult) error
}

// Result describes how one saga ended.
type Result struct {
	Outcome Outcome
	// GraphErr is the graph write failure for non-committed outcomes
	GraphErr error
	// CompensationErr is the compensating delete failure; non-nil only for
	// partially_committed
	CompensationErr error
	Duration        time.Duration
}

// Config holds persistence coordinator settings
type Config struct {
	// WriteTimeout bounds each individual store write
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
}

// DefaultConfig returns the default persistence configuration
func DefaultConfig() Config {
	return Config{WriteTimeout: 10 * time.Second}
}

// Coordinator runs the dual-store persistence saga: relational first, graph
// second, compensate the relational write when the graph write fails. The
// relational store is the system of record, so a crash between the two legs
// leaves a row that the graph merely lags, never a projection without its
// source row.
type Coordinator struct {
	relational RelationalStore
	graph      GraphStore
	sink       events.Sink // optional
	cfg        Config
}

// New creates a persistence coordinator. Both stores are required; sink may
// be nil to disable event emission.
func New(relational RelationalStore, graph GraphStore, sink events.Sink, cfg Config) (*Coordinator, error) {
	if relational == nil {
		return nil, fmt.Errorf("relational store is required")
	}
	if graph == nil {
		return nil, fmt.Errorf("graph store is required")
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultConfig().WriteTimeout
	}
	return &Coordinator{
		relational: relational,
		graph:      graph,
		sink:       sink,
		cfg:        cfg,
	}, nil
}

// Persist runs the saga for one result. The returned Result always carries
// the outcome; err is non-nil for every outcome except committed.
func (c *Coordinator) Persist(ctx context.Context, result *types.AnalysisResult) (*Result, error) {
	start := time.Now()

	if err := c.writeWithTimeout(ctx, func(wctx context.Context) error {
		return c.relational.InsertResult(wctx, result)
	}); err != nil {
		res := &Result{Outcome: OutcomeAborted, Duration: time.Since(start)}
		c.emitOutcome(result, res, fmt.Sprintf("relational write failed: %v", err))
		return res, fmt.Errorf("relational write failed: %w", err)
	}

	graphErr := c.writeWithTimeout(ctx, func(wctx context.Context) error {
		return c.graph.InsertProjection(wctx, result)
	})
	if graphErr == nil {
		res := &Result{Outcome: OutcomeCommitted, Duration: time.Since(start)}
		c.emitOutcome(result, res, "result committed to both stores")
		return res, nil
	}

	fmt.Printf("Graph write failed for run %s, compensating relational write: %v\n", result.RunID, graphErr)

	// Compensation must run even when the caller's context is already
	// dead: use a fresh timeout so a canceled run cannot strand the row.
	compCtx, cancel := context.WithTimeout(context.Background(), c.cfg.WriteTimeout)
	compErr := c.relational.DeleteResult(compCtx, result.RunID)
	cancel()

	if compErr != nil {
		res := &Result{
			Outcome:         OutcomePartiallyCommitted,
			GraphErr:        graphErr,
			CompensationErr: compErr,
			Duration:        time.Since(start),
		}
		fmt.Printf("CRITICAL: compensation failed for run %s, stores have drifted: %v\n", result.RunID, compErr)
		c.emitOutcome(result, res,
			fmt.Sprintf("compensating delete failed, relational row remains without graph projection: %v", compErr))
		return res, fmt.Errorf("partially committed: graph write failed (%v) and compensation failed: %w", graphErr, compErr)
	}

	res := &Result{Outcome: OutcomeRolledBack, GraphErr: graphErr, Duration: time.Since(start)}
	c.emitOutcome(result, res, fmt.Sprintf("graph write failed, relational write compensated: %v", graphErr))
	return res, fmt.Errorf("persistence rolled back: %w", graphErr)
}

func (c *Coordinator) writeWithTimeout(ctx context.Context, write func(context.Context) error) error {
	wctx, cancel := context.WithTimeout(ctx, c.cfg.WriteTimeout)
	defer cancel()
	return write(wctx)
}

func (c *Coordinator) emitOutcome(result *types.AnalysisResult, res *Result, detail string) {
	if c.sink == nil {
		return
	}

	severity := events.SeverityInfo
	switch res.Outcome {
	case OutcomeAborted, OutcomeRolledBack:
		severity = events.SeverityError
	case OutcomePartiallyCommitted:
		// Cross-store drift cannot be auto-healed; operators page on this.
		severity = events.SeverityCritical
	}

	data := events.PersistenceOutcomeData{
		Outcome:    string(res.Outcome),
		Detail:     detail,
		DurationMs: res.Duration.Milliseconds(),
	}
	if res.GraphErr != nil {
		data.GraphError = res.GraphErr.Error()
	}
	if res.CompensationErr != nil {
		data.CompensationError = res.CompensationErr.Error()
	}

	event, err := events.NewPersistenceOutcomeEvent(result.RunID, result.TenantID, severity, detail, data)
	if err != nil {
		return
	}
	if err := c.sink.StoreEvent(context.Background(), event); err != nil {
		fmt.Printf("Warning: failed to store persistence outcome event: %v\n", err)
	}
}
