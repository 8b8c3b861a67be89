package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/attestly/evidenceflow/internal/config"
	"github.com/attestly/evidenceflow/internal/cost"
	"github.com/attestly/evidenceflow/internal/graph"
	"github.com/attestly/evidenceflow/internal/orchestrator"
	"github.com/attestly/evidenceflow/internal/persist"
	"github.com/attestly/evidenceflow/internal/provider"
	"github.com/attestly/evidenceflow/internal/storage"
)

var (
	configPath string
	dbPath     string

	cfg   *config.Config
	store storage.Storage
)

var rootCmd = &cobra.Command{
	Use:   "evflow",
	Short: "Evidence processing workflow engine",
	Long: `evflow runs compliance evidence through the analysis pipeline:
deduplication, validation, AI analysis with provider fallback, and
dual-store persistence (SQLite + Weaviate).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if dbPath != "" {
			cfg.Database.Path = dbPath
		}

		store, err = storage.NewStorage(cmd.Context(), cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if store != nil {
			store.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "evflow.yaml", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to SQLite database (overrides config)")
}

// buildOrchestrator wires the full pipeline from the loaded configuration.
// Commands that only read the store don't pay for this.
func buildOrchestrator(ctx context.Context) (*orchestrator.Orchestrator, error) {
	chain := make([]provider.Provider, 0, len(cfg.ProviderChain))
	for _, name := range cfg.ProviderChain {
		switch name {
		case "anthropic":
			p, err := provider.NewAnthropicProvider("", cfg.AnthropicModel)
			if err != nil {
				return nil, fmt.Errorf("failed to configure anthropic provider: %w", err)
			}
			chain = append(chain, p)
		case "openai":
			p, err := provider.NewOpenAIProvider("", cfg.OpenAIModel)
			if err != nil {
				return nil, fmt.Errorf("failed to configure openai provider: %w", err)
			}
			chain = append(chain, p)
		default:
			return nil, fmt.Errorf("unknown provider: %s", name)
		}
	}

	ledger, err := cost.NewLedger(cfg.Cost, store)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cost ledger: %w", err)
	}

	gateway, err := provider.NewGateway(chain, store, ledger, store, cfg.Gateway)
	if err != nil {
		return nil, fmt.Errorf("failed to build provider gateway: %w", err)
	}

	graphStore, err := graph.New(ctx, cfg.WeaviateURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to graph store: %w", err)
	}

	saga, err := persist.New(store, graphStore, store, cfg.Persist)
	if err != nil {
		return nil, fmt.Errorf("failed to build persistence coordinator: %w", err)
	}

	return orchestrator.New(store, gateway, saga, cfg.Orchestrator)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
