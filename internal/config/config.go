package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/attestly/evidenceflow/internal/cost"
	"github.com/attestly/evidenceflow/internal/orchestrator"
	"github.com/attestly/evidenceflow/internal/persist"
	"github.com/attestly/evidenceflow/internal/provider"
	"github.com/attestly/evidenceflow/internal/storage"
)

// Config is the full engine configuration. Defaults work out of the box for
// local use; a YAML file overrides defaults, and EVFLOW_* environment
// variables override both.
type Config struct {
	// Database holds relational storage settings
	Database *storage.Config `yaml:"database"`
	// WeaviateURL is the graph store endpoint
	WeaviateURL string `yaml:"weaviate_url"`
	// ProviderChain is the ordered fallback chain, e.g. ["anthropic", "openai"]
	ProviderChain []string `yaml:"provider_chain"`
	// AnthropicModel overrides the default Anthropic model
	AnthropicModel string `yaml:"anthropic_model"`
	// OpenAIModel overrides the default OpenAI model
	OpenAIModel string `yaml:"openai_model"`
	// Gateway holds provider dispatch settings (timeouts, breaker, retry)
	Gateway provider.GatewayConfig `yaml:"gateway"`
	// Persist holds dual-store saga settings
	Persist persist.Config `yaml:"persist"`
	// Cost holds the budget ledger settings. The ledger is configured
	// through EVFLOW_COST_* environment variables, not the YAML file.
	Cost *cost.Config `yaml:"-"`
	// Orchestrator holds run pipeline settings
	Orchestrator orchestrator.Config `yaml:"orchestrator"`
	// EventRetentionDays is how long info/warning events are kept
	EventRetentionDays int `yaml:"event_retention_days"`
	// CriticalEventRetentionDays is how long error/critical events are kept
	CriticalEventRetentionDays int `yaml:"critical_event_retention_days"`
}

// DefaultConfig returns the default engine configuration
func DefaultConfig() *Config {
	return &Config{
		Database:                   storage.DefaultConfig(),
		WeaviateURL:                "http://localhost:8080",
		ProviderChain:              []string{"anthropic", "openai"},
		Gateway:                    provider.DefaultGatewayConfig(),
		Persist:                    persist.DefaultConfig(),
		Cost:                       cost.DefaultConfig(),
		Orchestrator:               orchestrator.DefaultConfig(),
		EventRetentionDays:         30,
		CriticalEventRetentionDays: 90,
	}
}

// Load builds the effective configuration: defaults, then the YAML file at
// path (skipped when path is empty or missing), then environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.Cost = cost.LoadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays EVFLOW_* environment variables. Invalid values are
// logged and ignored rather than failing startup.
func (c *Config) applyEnv() {
	if v := os.Getenv("EVFLOW_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("EVFLOW_WEAVIATE_URL"); v != "" {
		c.WeaviateURL = v
	}
	if v := os.Getenv("EVFLOW_PROVIDER_CHAIN"); v != "" {
		var chain []string
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				chain = append(chain, p)
			}
		}
		if len(chain) > 0 {
			c.ProviderChain = chain
		}
	}
	if v := os.Getenv("EVFLOW_ANTHROPIC_MODEL"); v != "" {
		c.AnthropicModel = v
	}
	if v := os.Getenv("EVFLOW_OPENAI_MODEL"); v != "" {
		c.OpenAIModel = v
	}
	if v := os.Getenv("EVFLOW_MAX_CONCURRENT_RUNS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			c.Orchestrator.MaxConcurrentRuns = n
		} else {
			fmt.Printf("Warning: invalid EVFLOW_MAX_CONCURRENT_RUNS value '%s', keeping %d\n", v, c.Orchestrator.MaxConcurrentRuns)
		}
	}
	if v := os.Getenv("EVFLOW_MAX_PAYLOAD_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Orchestrator.MaxPayloadBytes = n
		} else {
			fmt.Printf("Warning: invalid EVFLOW_MAX_PAYLOAD_BYTES value '%s', keeping %d\n", v, c.Orchestrator.MaxPayloadBytes)
		}
	}
	if v := os.Getenv("EVFLOW_EVENT_RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.EventRetentionDays = n
		} else {
			fmt.Printf("Warning: invalid EVFLOW_EVENT_RETENTION_DAYS value '%s', keeping %d\n", v, c.EventRetentionDays)
		}
	}
}

// Validate checks the assembled configuration for correctness
func (c *Config) Validate() error {
	if c.Database == nil || c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if len(c.ProviderChain) == 0 {
		return fmt.Errorf("provider chain must name at least one provider")
	}
	seen := make(map[string]bool)
	for _, p := range c.ProviderChain {
		switch p {
		case "anthropic", "openai":
		default:
			return fmt.Errorf("unknown provider in chain: %s", p)
		}
		if seen[p] {
			return fmt.Errorf("duplicate provider in chain: %s", p)
		}
		seen[p] = true
	}
	if err := c.Gateway.Validate(); err != nil {
		return fmt.Errorf("invalid gateway config: %w", err)
	}
	if c.Cost == nil {
		return fmt.Errorf("cost config is required")
	}
	if err := c.Cost.Validate(); err != nil {
		return fmt.Errorf("invalid cost config: %w", err)
	}
	if err := c.Orchestrator.Validate(); err != nil {
		return fmt.Errorf("invalid orchestrator config: %w", err)
	}
	if c.EventRetentionDays <= 0 || c.CriticalEventRetentionDays <= 0 {
		return fmt.Errorf("event retention days must be positive")
	}
	return nil
}
