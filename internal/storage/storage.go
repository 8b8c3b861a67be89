package storage

import (
	"context"
	"time"

	"github.com/attestly/evidenceflow/internal/events"
	"github.com/attestly/evidenceflow/internal/storage/sqlite"
	"github.com/attestly/evidenceflow/internal/types"
)

// Storage defines the interface for the relational backend. It is the
// system of record for runs, analysis results, provider call records, and
// the workflow event stream.
type Storage interface {
	// Workflow runs
	SaveRun(ctx context.Context, run *types.WorkflowRun) error
	GetRun(ctx context.Context, id string) (*types.WorkflowRun, error)
	ListRuns(ctx context.Context, tenantID string, limit int) ([]*types.WorkflowRun, error)

	// Analysis results. DeleteResult is the saga's compensating write and
	// GetResultByFingerprint backs the deduplication cache.
	InsertResult(ctx context.Context, result *types.AnalysisResult) error
	DeleteResult(ctx context.Context, runID string) error
	GetResult(ctx context.Context, runID string) (*types.AnalysisResult, error)
	GetResultByFingerprint(ctx context.Context, tenantID, contentHash string) (*types.AnalysisResult, error)

	// Provider call records - audit trail and billing input
	AppendCallRecord(ctx context.Context, rec *types.ProviderCallRecord) error
	GetCallRecords(ctx context.Context, runID string) ([]*types.ProviderCallRecord, error)
	CountCallRecords(ctx context.Context, runID string) (int, error)
	SumCostByTenant(ctx context.Context, since time.Time) (map[string]float64, error)

	// Workflow events - durable observability stream
	StoreEvent(ctx context.Context, event *events.Event) error
	GetEvents(ctx context.Context, filter events.Filter) ([]*events.Event, error)
	GetEventsByRun(ctx context.Context, runID string) ([]*events.Event, error)

	// Event cleanup - retention policy enforcement
	CleanupEventsByAge(ctx context.Context, retentionDays, criticalRetentionDays, batchSize int) (int, error)
	GetEventCounts(ctx context.Context) (*sqlite.EventCounts, error)
	VacuumDatabase(ctx context.Context) error

	// Lifecycle
	Close() error
}

// Config holds database configuration
type Config struct {
	// Path is the SQLite database file path
	// Default: ".evidenceflow/evflow.db"
	// Special value ":memory:" creates an in-memory database (useful for tests)
	Path string
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Path: ".evidenceflow/evflow.db",
	}
}

// NewStorage creates a new SQLite storage backend
func NewStorage(ctx context.Context, cfg *Config) (Storage, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	if cfg.Path == "" {
		cfg.Path = ".evidenceflow/evflow.db"
	}

	return sqlite.New(cfg.Path)
}
