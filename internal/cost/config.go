package cost

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds cost budgeting configuration
type Config struct {
	// Enabled controls whether cost budgeting is active
	// Default: true
	Enabled bool `json:"enabled" yaml:"enabled"`

	// HourlyLimitUnits is the maximum cost units a tenant may spend per
	// window. 0 = unlimited.
	// Default: 500
	HourlyLimitUnits float64 `json:"hourly_limit_units" yaml:"hourly_limit_units"`

	// AlertThreshold is the fraction of the budget that triggers a warning
	// Default: 0.80 (80%)
	AlertThreshold float64 `json:"alert_threshold" yaml:"alert_threshold"`

	// WindowInterval is how often the per-tenant budget resets
	// Default: 1 hour
	WindowInterval time.Duration `json:"window_interval" yaml:"window_interval"`

	// PersistStatePath is where ledger state is persisted (for restart
	// recovery). Empty disables persistence.
	PersistStatePath string `json:"persist_state_path" yaml:"persist_state_path"`
}

// DefaultConfig returns default cost budgeting configuration
func DefaultConfig() *Config {
	return &Config{
		Enabled:          true,
		HourlyLimitUnits: 500,
		AlertThreshold:   0.80,
		WindowInterval:   time.Hour,
		PersistStatePath: ".evidenceflow/cost_state.json",
	}
}

// LoadFromEnv loads cost configuration from environment variables
// Environment variables override default values
// Prefix: EVFLOW_COST_
func LoadFromEnv() *Config {
	cfg := DefaultConfig()

	if val := os.Getenv("EVFLOW_COST_ENABLED"); val != "" {
		cfg.Enabled = parseBool(val)
	}

	if val := os.Getenv("EVFLOW_COST_HOURLY_LIMIT_UNITS"); val != "" {
		if limit, err := strconv.ParseFloat(val, 64); err == nil && limit >= 0 {
			cfg.HourlyLimitUnits = limit
		}
	}

	if val := os.Getenv("EVFLOW_COST_ALERT_THRESHOLD"); val != "" {
		if threshold, err := strconv.ParseFloat(val, 64); err == nil && threshold > 0 && threshold <= 1.0 {
			cfg.AlertThreshold = threshold
		}
	}

	if val := os.Getenv("EVFLOW_COST_WINDOW_INTERVAL"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil && duration > 0 {
			cfg.WindowInterval = duration
		}
	}

	if val := os.Getenv("EVFLOW_COST_PERSIST_STATE_PATH"); val != "" {
		cfg.PersistStatePath = val
	}

	if err := cfg.Validate(); err != nil {
		fmt.Printf("Warning: invalid cost config from environment: %v (using defaults)\n", err)
		return DefaultConfig()
	}

	return cfg
}

// Validate checks that the configuration has safe and reasonable values
func (c *Config) Validate() error {
	if c.HourlyLimitUnits < 0 {
		return fmt.Errorf("hourly_limit_units must be non-negative, got %.2f", c.HourlyLimitUnits)
	}

	if c.AlertThreshold <= 0 || c.AlertThreshold > 1.0 {
		return fmt.Errorf("alert_threshold must be between 0 and 1, got %.2f", c.AlertThreshold)
	}

	if c.WindowInterval <= 0 {
		return fmt.Errorf("window_interval must be positive, got %v", c.WindowInterval)
	}

	return nil
}

// parseBool parses a boolean string
func parseBool(val string) bool {
	switch val {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	default:
		return true
	}
}
