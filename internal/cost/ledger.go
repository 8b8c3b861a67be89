package cost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/attestly/evidenceflow/internal/events"
)

// BudgetStatus represents a tenant's current budget state
type BudgetStatus int

const (
	// BudgetHealthy indicates normal operation - under budget limits
	BudgetHealthy BudgetStatus = iota
	// BudgetWarning indicates approaching budget limits (>80% by default)
	BudgetWarning
	// BudgetExceeded indicates budget limits have been exceeded
	BudgetExceeded
)

// String returns a human-readable string representation of the budget status
func (s BudgetStatus) String() string {
	switch s {
	case BudgetHealthy:
		return "HEALTHY"
	case BudgetWarning:
		return "WARNING"
	case BudgetExceeded:
		return "EXCEEDED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// ErrBudgetExceeded is returned by CanProceed when a tenant's window
// budget is exhausted
var ErrBudgetExceeded = errors.New("hourly cost budget exceeded")

// TenantWindow holds one tenant's usage within the current budget window
type TenantWindow struct {
	CostUsed        float64   `json:"cost_used"`
	WindowStartTime time.Time `json:"window_start_time"`
	// warningEmitted throttles warning alerts to once per window
	warningEmitted bool
}

// LedgerState is the persisted ledger state
type LedgerState struct {
	// Tenants maps tenant ID to current-window usage
	Tenants map[string]*TenantWindow `json:"tenants"`

	// Historical data
	TotalCostUsed float64 `json:"total_cost_used"`

	// Last updated timestamp
	LastUpdated time.Time `json:"last_updated"`
}

// Ledger tracks per-tenant AI spend and enforces hourly budgets. The
// gateway consults CanProceed before every provider invocation and calls
// RecordUsage after successful calls.
type Ledger struct {
	config *Config
	state  *LedgerState
	sink   events.Sink // optional, for budget alert events
	mu     sync.Mutex

	// lastExceededTime throttles exceeded alerts per tenant
	lastExceededTime map[string]time.Time
}

// NewLedger creates a cost ledger. sink may be nil to disable alert events.
func NewLedger(cfg *Config, sink events.Sink) (*Ledger, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	l := &Ledger{
		config: cfg,
		sink:   sink,
		state: &LedgerState{
			Tenants:     make(map[string]*TenantWindow),
			LastUpdated: time.Now(),
		},
		lastExceededTime: make(map[string]time.Time),
	}

	// Try to load existing state from disk (for restart recovery)
	if cfg.PersistStatePath != "" {
		if err := l.loadState(); err != nil {
			fmt.Printf("Warning: failed to load cost state from %s: %v (starting fresh)\n", cfg.PersistStatePath, err)
		} else if len(l.state.Tenants) > 0 {
			fmt.Printf("Loaded cost ledger state from %s (total: %.2f units, %d tenants)\n",
				cfg.PersistStatePath, l.state.TotalCostUsed, len(l.state.Tenants))
		}
	}

	return l, nil
}

// CanProceed returns ErrBudgetExceeded when the tenant must not spend more
// in the current window. Implements the gateway's cost gate.
func (l *Ledger) CanProceed(tenantID string) error {
	if !l.config.Enabled || l.config.HourlyLimitUnits <= 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.windowLocked(tenantID)
	if w.CostUsed >= l.config.HourlyLimitUnits {
		resetTime := w.WindowStartTime.Add(l.config.WindowInterval)
		return fmt.Errorf("%w for tenant %s (%.2f/%.2f units, resets in %v)",
			ErrBudgetExceeded, tenantID, w.CostUsed, l.config.HourlyLimitUnits,
			time.Until(resetTime).Round(time.Second))
	}
	return nil
}

// RecordUsage adds cost units against a tenant's budget
func (l *Ledger) RecordUsage(tenantID string, costUnits float64) {
	if !l.config.Enabled {
		return
	}

	l.mu.Lock()

	w := l.windowLocked(tenantID)
	w.CostUsed += costUnits
	l.state.TotalCostUsed += costUnits
	l.state.LastUpdated = time.Now()

	if err := l.persistState(); err != nil {
		fmt.Printf("Warning: failed to persist cost state: %v\n", err)
	}

	status := l.statusLocked(w)
	l.emitAlertIfNeededLocked(tenantID, w, status)

	l.mu.Unlock()
}

// Status returns the tenant's current budget status without recording usage
func (l *Ledger) Status(tenantID string) BudgetStatus {
	if !l.config.Enabled || l.config.HourlyLimitUnits <= 0 {
		return BudgetHealthy
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.statusLocked(l.windowLocked(tenantID))
}

// TenantStats describes one tenant's budget usage
type TenantStats struct {
	TenantID        string       `json:"tenant_id"`
	Status          BudgetStatus `json:"status"`
	CostUsed        float64      `json:"cost_used"`
	HourlyLimit     float64      `json:"hourly_limit"`
	WindowStartTime time.Time    `json:"window_start_time"`
}

// Stats contains ledger-wide statistics
type Stats struct {
	Tenants       []TenantStats `json:"tenants"`
	TotalCostUsed float64       `json:"total_cost_used"`
	LastUpdated   time.Time     `json:"last_updated"`
}

// GetStats returns current budget statistics across all tenants
func (l *Ledger) GetStats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats := Stats{
		TotalCostUsed: l.state.TotalCostUsed,
		LastUpdated:   l.state.LastUpdated,
	}
	for tenantID := range l.state.Tenants {
		w := l.windowLocked(tenantID)
		stats.Tenants = append(stats.Tenants, TenantStats{
			TenantID:        tenantID,
			Status:          l.statusLocked(w),
			CostUsed:        w.CostUsed,
			HourlyLimit:     l.config.HourlyLimitUnits,
			WindowStartTime: w.WindowStartTime,
		})
	}
	return stats
}

// windowLocked returns the tenant's current window, creating or resetting
// it as needed. MUST be called with mu held.
func (l *Ledger) windowLocked(tenantID string) *TenantWindow {
	now := time.Now()

	w, ok := l.state.Tenants[tenantID]
	if !ok {
		w = &TenantWindow{WindowStartTime: now}
		l.state.Tenants[tenantID] = w
		return w
	}

	if now.Sub(w.WindowStartTime) >= l.config.WindowInterval {
		w.CostUsed = 0
		w.WindowStartTime = now
		w.warningEmitted = false
	}
	return w
}

// statusLocked returns the budget status for a window. MUST be called with
// mu held.
func (l *Ledger) statusLocked(w *TenantWindow) BudgetStatus {
	if l.config.HourlyLimitUnits <= 0 {
		return BudgetHealthy
	}
	if w.CostUsed >= l.config.HourlyLimitUnits {
		return BudgetExceeded
	}
	if w.CostUsed/l.config.HourlyLimitUnits >= l.config.AlertThreshold {
		return BudgetWarning
	}
	return BudgetHealthy
}

// emitAlertIfNeededLocked emits budget alerts when thresholds are crossed.
// MUST be called with mu held.
func (l *Ledger) emitAlertIfNeededLocked(tenantID string, w *TenantWindow, status BudgetStatus) {
	now := time.Now()

	switch status {
	case BudgetWarning:
		if w.warningEmitted {
			return
		}
		w.warningEmitted = true
		fmt.Printf("Cost budget warning for tenant %s: %.2f/%.2f units used\n",
			tenantID, w.CostUsed, l.config.HourlyLimitUnits)
		l.emitEvent(tenantID, w, events.SeverityWarning, status)

	case BudgetExceeded:
		// Throttle exceeded alerts to once per 5 minutes per tenant
		if now.Sub(l.lastExceededTime[tenantID]) < 5*time.Minute {
			return
		}
		l.lastExceededTime[tenantID] = now
		resetTime := w.WindowStartTime.Add(l.config.WindowInterval)
		fmt.Printf("Cost budget EXCEEDED for tenant %s: %.2f/%.2f units, resets in %v\n",
			tenantID, w.CostUsed, l.config.HourlyLimitUnits,
			time.Until(resetTime).Round(time.Minute))
		l.emitEvent(tenantID, w, events.SeverityError, status)
	}
}

func (l *Ledger) emitEvent(tenantID string, w *TenantWindow, severity events.EventSeverity, status BudgetStatus) {
	if l.sink == nil {
		return
	}
	event, err := events.NewBudgetAlertEvent(severity,
		fmt.Sprintf("tenant %s budget %s", tenantID, status),
		events.BudgetAlertData{
			TenantID:        tenantID,
			Status:          status.String(),
			HourlyCostUsed:  w.CostUsed,
			HourlyCostLimit: l.config.HourlyLimitUnits,
		})
	if err != nil {
		return
	}
	if err := l.sink.StoreEvent(context.Background(), event); err != nil {
		fmt.Printf("Warning: failed to store budget alert event: %v\n", err)
	}
}

// persistState saves the ledger state to disk. MUST be called with mu held.
func (l *Ledger) persistState() error {
	if l.config.PersistStatePath == "" {
		return nil // Persistence disabled
	}

	data, err := json.MarshalIndent(l.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(l.config.PersistStatePath), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	if err := os.WriteFile(l.config.PersistStatePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}

	return nil
}

// loadState loads the ledger state from disk
func (l *Ledger) loadState() error {
	data, err := os.ReadFile(l.config.PersistStatePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // No state file yet, start fresh
		}
		return fmt.Errorf("failed to read state file: %w", err)
	}

	var state LedgerState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("failed to unmarshal state: %w", err)
	}

	if state.Tenants == nil {
		state.Tenants = make(map[string]*TenantWindow)
	}

	l.state = &state
	return nil
}
