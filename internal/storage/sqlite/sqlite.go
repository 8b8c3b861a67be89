package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/attestly/evidenceflow/internal/types"
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// New creates a new SQLite storage backend
func New(path string) (*SQLiteStorage, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=ON")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		// Each pooled connection gets its own in-memory database, so the
		// pool must stay at one connection.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// SaveRun inserts or updates a workflow run
func (s *SQLiteStorage) SaveRun(ctx context.Context, run *types.WorkflowRun) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("invalid run: %w", err)
	}

	attemptsJSON, err := json.Marshal(run.StageAttempts)
	if err != nil {
		return fmt.Errorf("failed to marshal stage attempts: %w", err)
	}

	var resultJSON, errorJSON sql.NullString
	if run.Result != nil {
		data, err := json.Marshal(run.Result)
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		resultJSON = sql.NullString{String: string(data), Valid: true}
	}
	if run.Error != nil {
		data, err := json.Marshal(run.Error)
		if err != nil {
			return fmt.Errorf("failed to marshal error: %w", err)
		}
		errorJSON = sql.NullString{String: string(data), Valid: true}
	}

	var completedAt sql.NullTime
	if run.CompletedAt != nil {
		completedAt = sql.NullTime{Time: *run.CompletedAt, Valid: true}
	}

	query := `
		INSERT INTO workflow_runs (
			id, tenant_id, content_hash, state, stage_attempts,
			started_at, completed_at, result, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			stage_attempts = excluded.stage_attempts,
			completed_at = excluded.completed_at,
			result = excluded.result,
			error = excluded.error
	`

	_, err = s.db.ExecContext(ctx, query,
		run.ID, run.TenantID, run.ContentHash, string(run.State),
		string(attemptsJSON), run.StartedAt, completedAt, resultJSON, errorJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}
	return nil
}

// GetRun retrieves a workflow run by ID. Returns (nil, nil) when not found.
func (s *SQLiteStorage) GetRun(ctx context.Context, id string) (*types.WorkflowRun, error) {
	query := `
		SELECT id, tenant_id, content_hash, state, stage_attempts,
		       started_at, completed_at, result, error
		FROM workflow_runs WHERE id = ?
	`
	run, err := scanRun(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns retrieves recent runs, newest first. tenantID filters when
// non-empty.
func (s *SQLiteStorage) ListRuns(ctx context.Context, tenantID string, limit int) ([]*types.WorkflowRun, error) {
	query := `
		SELECT id, tenant_id, content_hash, state, stage_attempts,
		       started_at, completed_at, result, error
		FROM workflow_runs
	`
	args := []interface{}{}
	if tenantID != "" {
		query += " WHERE tenant_id = ?"
		args = append(args, tenantID)
	}
	query += " ORDER BY started_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*types.WorkflowRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// scanner abstracts *sql.Row and *sql.Rows for scanRun
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (*types.WorkflowRun, error) {
	var run types.WorkflowRun
	var state, attemptsJSON string
	var completedAt sql.NullTime
	var resultJSON, errorJSON sql.NullString

	err := row.Scan(&run.ID, &run.TenantID, &run.ContentHash, &state,
		&attemptsJSON, &run.StartedAt, &completedAt, &resultJSON, &errorJSON)
	if err != nil {
		return nil, err
	}

	run.State = types.RunState(state)
	if err := json.Unmarshal([]byte(attemptsJSON), &run.StageAttempts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stage attempts: %w", err)
	}
	if completedAt.Valid {
		t := completedAt.Time
		run.CompletedAt = &t
	}
	if resultJSON.Valid {
		var result types.AnalysisResult
		if err := json.Unmarshal([]byte(resultJSON.String), &result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal result: %w", err)
		}
		run.Result = &result
	}
	if errorJSON.Valid {
		var runErr types.RunError
		if err := json.Unmarshal([]byte(errorJSON.String), &runErr); err != nil {
			return nil, fmt.Errorf("failed to unmarshal error: %w", err)
		}
		run.Error = &runErr
	}
	return &run, nil
}

// InsertResult stores an analysis result. Fails on duplicate run IDs so
// the saga's first write is idempotency-checked by the database.
func (s *SQLiteStorage) InsertResult(ctx context.Context, result *types.AnalysisResult) error {
	if err := result.Validate(); err != nil {
		return fmt.Errorf("invalid result: %w", err)
	}

	findingsJSON, err := json.Marshal(result.Findings)
	if err != nil {
		return fmt.Errorf("failed to marshal findings: %w", err)
	}

	query := `
		INSERT INTO analysis_results (
			run_id, tenant_id, content_hash, summary, findings,
			provider_id, cost_units, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		result.RunID, result.TenantID, result.ContentHash, result.Summary,
		string(findingsJSON), result.ProviderID, result.CostUnits, result.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert result for run %s: %w", result.RunID, err)
	}
	return nil
}

// DeleteResult removes an analysis result. This is the saga's compensating
// write; deleting a missing row is not an error.
func (s *SQLiteStorage) DeleteResult(ctx context.Context, runID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM analysis_results WHERE run_id = ?", runID)
	if err != nil {
		return fmt.Errorf("failed to delete result for run %s: %w", runID, err)
	}
	return nil
}

// GetResult retrieves a result by run ID. Returns (nil, nil) when not found.
func (s *SQLiteStorage) GetResult(ctx context.Context, runID string) (*types.AnalysisResult, error) {
	query := `
		SELECT run_id, tenant_id, content_hash, summary, findings,
		       provider_id, cost_units, completed_at
		FROM analysis_results WHERE run_id = ?
	`
	return s.queryResult(ctx, query, runID)
}

// GetResultByFingerprint retrieves the result for a (tenant, fingerprint)
// pair. This backs the deduplication cache. Returns (nil, nil) when no
// completed result exists.
func (s *SQLiteStorage) GetResultByFingerprint(ctx context.Context, tenantID, contentHash string) (*types.AnalysisResult, error) {
	query := `
		SELECT run_id, tenant_id, content_hash, summary, findings,
		       provider_id, cost_units, completed_at
		FROM analysis_results
		WHERE tenant_id = ? AND content_hash = ?
		ORDER BY completed_at DESC LIMIT 1
	`
	return s.queryResult(ctx, query, tenantID, contentHash)
}

func (s *SQLiteStorage) queryResult(ctx context.Context, query string, args ...interface{}) (*types.AnalysisResult, error) {
	var result types.AnalysisResult
	var findingsJSON string

	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&result.RunID, &result.TenantID, &result.ContentHash, &result.Summary,
		&findingsJSON, &result.ProviderID, &result.CostUnits, &result.CompletedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query result: %w", err)
	}

	if err := json.Unmarshal([]byte(findingsJSON), &result.Findings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal findings: %w", err)
	}
	return &result, nil
}

// AppendCallRecord appends one provider call record to the audit trail
func (s *SQLiteStorage) AppendCallRecord(ctx context.Context, rec *types.ProviderCallRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid call record: %w", err)
	}

	query := `
		INSERT INTO provider_call_records (
			id, run_id, tenant_id, provider_id, request_digest,
			outcome, latency_ns, cost_units, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.RunID, rec.TenantID, rec.ProviderID, rec.RequestDigest,
		string(rec.Outcome), rec.Latency.Nanoseconds(), rec.CostUnits, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append call record for run %s: %w", rec.RunID, err)
	}
	return nil
}

// GetCallRecords retrieves all call records for a run, oldest first
func (s *SQLiteStorage) GetCallRecords(ctx context.Context, runID string) ([]*types.ProviderCallRecord, error) {
	query := `
		SELECT id, run_id, tenant_id, provider_id, request_digest,
		       outcome, latency_ns, cost_units, created_at
		FROM provider_call_records
		WHERE run_id = ? ORDER BY created_at ASC, id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query call records: %w", err)
	}
	defer rows.Close()

	var records []*types.ProviderCallRecord
	for rows.Next() {
		var rec types.ProviderCallRecord
		var outcome string
		var latencyNs int64
		err := rows.Scan(&rec.ID, &rec.RunID, &rec.TenantID, &rec.ProviderID,
			&rec.RequestDigest, &outcome, &latencyNs, &rec.CostUnits, &rec.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan call record: %w", err)
		}
		rec.Outcome = types.CallOutcome(outcome)
		rec.Latency = time.Duration(latencyNs)
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// CountCallRecords counts call records for a run
func (s *SQLiteStorage) CountCallRecords(ctx context.Context, runID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM provider_call_records WHERE run_id = ?", runID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count call records: %w", err)
	}
	return count, nil
}

// SumCostByTenant aggregates call costs per tenant since the given time
func (s *SQLiteStorage) SumCostByTenant(ctx context.Context, since time.Time) (map[string]float64, error) {
	query := `
		SELECT tenant_id, SUM(cost_units)
		FROM provider_call_records
		WHERE created_at >= ?
		GROUP BY tenant_id
	`
	rows, err := s.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to sum costs: %w", err)
	}
	defer rows.Close()

	costs := make(map[string]float64)
	for rows.Next() {
		var tenantID string
		var total float64
		if err := rows.Scan(&tenantID, &total); err != nil {
			return nil, fmt.Errorf("failed to scan cost row: %w", err)
		}
		costs[tenantID] = total
	}
	return costs, rows.Err()
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
