package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/attestly/evidenceflow/internal/events"
)

// StoreEvent stores a new workflow event in the database
func (s *SQLiteStorage) StoreEvent(ctx context.Context, event *events.Event) error {
	dataJSON, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	query := `
		INSERT INTO workflow_events (
			id, type, timestamp, run_id, tenant_id,
			component, severity, message, data
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		event.ID,
		string(event.Type),
		event.Timestamp,
		event.RunID,
		event.TenantID,
		event.Component,
		string(event.Severity),
		event.Message,
		string(dataJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to store event (type=%s, run=%s): %w", event.Type, event.RunID, err)
	}

	return nil
}

// GetEvents retrieves events matching the given filter
func (s *SQLiteStorage) GetEvents(ctx context.Context, filter events.Filter) ([]*events.Event, error) {
	query := `
		SELECT id, type, timestamp, run_id, tenant_id,
		       component, severity, message, data
		FROM workflow_events
		WHERE 1=1
	`
	args := []interface{}{}

	if filter.RunID != "" {
		query += " AND run_id = ?"
		args = append(args, filter.RunID)
	}
	if filter.TenantID != "" {
		query += " AND tenant_id = ?"
		args = append(args, filter.TenantID)
	}
	if filter.Type != "" {
		query += " AND type = ?"
		args = append(args, string(filter.Type))
	}
	if filter.Severity != "" {
		query += " AND severity = ?"
		args = append(args, string(filter.Severity))
	}
	if !filter.AfterTime.IsZero() {
		query += " AND timestamp > ?"
		args = append(args, filter.AfterTime)
	}
	if !filter.BeforeTime.IsZero() {
		query += " AND timestamp < ?"
		args = append(args, filter.BeforeTime)
	}

	// Most recent first
	query += " ORDER BY timestamp DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var result []*events.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, event)
	}
	return result, rows.Err()
}

// GetEventsByRun retrieves all events for a specific run, oldest first
func (s *SQLiteStorage) GetEventsByRun(ctx context.Context, runID string) ([]*events.Event, error) {
	query := `
		SELECT id, type, timestamp, run_id, tenant_id,
		       component, severity, message, data
		FROM workflow_events
		WHERE run_id = ?
		ORDER BY timestamp ASC
	`
	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events for run %s: %w", runID, err)
	}
	defer rows.Close()

	var result []*events.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, event)
	}
	return result, rows.Err()
}

func scanEvent(row scanner) (*events.Event, error) {
	var event events.Event
	var eventType, severity, dataJSON string

	err := row.Scan(&event.ID, &eventType, &event.Timestamp, &event.RunID,
		&event.TenantID, &event.Component, &severity, &event.Message, &dataJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to scan event: %w", err)
	}

	event.Type = events.EventType(eventType)
	event.Severity = events.EventSeverity(severity)
	if err := json.Unmarshal([]byte(dataJSON), &event.Data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event data: %w", err)
	}
	return &event, nil
}

// EventCounts holds event count statistics for monitoring
type EventCounts struct {
	TotalEvents      int
	EventsBySeverity map[string]int
	EventsByType     map[string]int
}

// GetEventCounts returns event count statistics
func (s *SQLiteStorage) GetEventCounts(ctx context.Context) (*EventCounts, error) {
	counts := &EventCounts{
		EventsBySeverity: make(map[string]int),
		EventsByType:     make(map[string]int),
	}

	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM workflow_events").Scan(&counts.TotalEvents)
	if err != nil {
		return nil, fmt.Errorf("failed to count events: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT severity, COUNT(*) FROM workflow_events GROUP BY severity")
	if err != nil {
		return nil, fmt.Errorf("failed to count events by severity: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var severity string
		var count int
		if err := rows.Scan(&severity, &count); err != nil {
			return nil, err
		}
		counts.EventsBySeverity[severity] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	typeRows, err := s.db.QueryContext(ctx,
		"SELECT type, COUNT(*) FROM workflow_events GROUP BY type")
	if err != nil {
		return nil, fmt.Errorf("failed to count events by type: %w", err)
	}
	defer typeRows.Close()
	for typeRows.Next() {
		var eventType string
		var count int
		if err := typeRows.Scan(&eventType, &count); err != nil {
			return nil, err
		}
		counts.EventsByType[eventType] = count
	}
	return counts, typeRows.Err()
}

// CleanupEventsByAge deletes events older than the retention period.
// Regular events (info, warning) are deleted after retentionDays; error and
// critical events after criticalRetentionDays. Deletions are batched.
func (s *SQLiteStorage) CleanupEventsByAge(ctx context.Context, retentionDays, criticalRetentionDays, batchSize int) (int, error) {
	if retentionDays < 0 || criticalRetentionDays < 0 {
		return 0, fmt.Errorf("retention days cannot be negative")
	}
	if batchSize < 1 {
		return 0, fmt.Errorf("batch size must be at least 1")
	}

	totalDeleted := 0

	regularCutoff := time.Now().AddDate(0, 0, -retentionDays)
	deleted, err := s.deleteOldEventsBatch(ctx, regularCutoff, []string{"info", "warning"}, batchSize)
	if err != nil {
		return totalDeleted, fmt.Errorf("failed to delete old regular events: %w", err)
	}
	totalDeleted += deleted

	if criticalRetentionDays != retentionDays {
		criticalCutoff := time.Now().AddDate(0, 0, -criticalRetentionDays)
		deleted, err = s.deleteOldEventsBatch(ctx, criticalCutoff, []string{"error", "critical"}, batchSize)
		if err != nil {
			return totalDeleted, fmt.Errorf("failed to delete old critical events: %w", err)
		}
		totalDeleted += deleted
	}

	return totalDeleted, nil
}

// deleteOldEventsBatch deletes events older than cutoff with the given
// severities, batchSize rows per statement
func (s *SQLiteStorage) deleteOldEventsBatch(ctx context.Context, cutoff time.Time, severities []string, batchSize int) (int, error) {
	totalDeleted := 0

	for {
		select {
		case <-ctx.Done():
			return totalDeleted, ctx.Err()
		default:
		}

		placeholders := ""
		args := []interface{}{cutoff}
		for i, sev := range severities {
			if i > 0 {
				placeholders += ", "
			}
			placeholders += "?"
			args = append(args, sev)
		}
		args = append(args, batchSize)

		query := fmt.Sprintf(`
			DELETE FROM workflow_events
			WHERE id IN (
				SELECT id FROM workflow_events
				WHERE timestamp < ? AND severity IN (%s)
				LIMIT ?
			)
		`, placeholders)

		result, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return totalDeleted, fmt.Errorf("failed to delete event batch: %w", err)
		}

		rowsDeleted, err := result.RowsAffected()
		if err != nil {
			return totalDeleted, fmt.Errorf("failed to get rows affected: %w", err)
		}
		totalDeleted += int(rowsDeleted)

		if rowsDeleted < int64(batchSize) {
			break
		}
	}

	return totalDeleted, nil
}

// VacuumDatabase reclaims space after large deletions
func (s *SQLiteStorage) VacuumDatabase(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("failed to vacuum database: %w", err)
	}
	return nil
}
