package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, []string{"anthropic", "openai"}, cfg.ProviderChain)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Database.Path, cfg.Database.Path)
	assert.Equal(t, 30, cfg.EventRetentionDays)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "evflow.yaml")
	content := `
database:
  path: /tmp/custom.db
weaviate_url: http://graph:8080
provider_chain:
  - openai
event_retention_days: 7
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/custom.db", cfg.Database.Path)
	assert.Equal(t, "http://graph:8080", cfg.WeaviateURL)
	assert.Equal(t, []string{"openai"}, cfg.ProviderChain)
	assert.Equal(t, 7, cfg.EventRetentionDays)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "evflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("weaviate_url: http://from-file:8080\n"), 0o644))

	t.Setenv("EVFLOW_WEAVIATE_URL", "http://from-env:8080")
	t.Setenv("EVFLOW_PROVIDER_CHAIN", "openai, anthropic")
	t.Setenv("EVFLOW_MAX_CONCURRENT_RUNS", "32")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://from-env:8080", cfg.WeaviateURL)
	assert.Equal(t, []string{"openai", "anthropic"}, cfg.ProviderChain)
	assert.Equal(t, int64(32), cfg.Orchestrator.MaxConcurrentRuns)
}

func TestEnvInvalidValueKeepsDefault(t *testing.T) {
	t.Setenv("EVFLOW_MAX_CONCURRENT_RUNS", "not-a-number")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Orchestrator.MaxConcurrentRuns, cfg.Orchestrator.MaxConcurrentRuns)
}

func TestValidateRejectsBadChains(t *testing.T) {
	tests := []struct {
		name  string
		chain []string
	}{
		{"empty chain", nil},
		{"unknown provider", []string{"anthropic", "grok"}},
		{"duplicate provider", []string{"anthropic", "anthropic"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.ProviderChain = tt.chain
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database: [not: a: map\n"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}
