package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/attestly/evidenceflow/internal/cost"
)

var costSince time.Duration

var costCmd = &cobra.Command{
	Use:   "cost",
	Short: "Show budget status and provider spend",
	Long: `Show the per-tenant hourly budget windows alongside recorded provider
spend from the call record audit trail.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		green := color.New(color.FgGreen).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		fmt.Printf("\n%s\n\n", cyan("=== Provider Cost ==="))

		fmt.Printf("%s\n", yellow("Budget windows:"))
		if !cfg.Cost.Enabled {
			fmt.Printf("  %s\n", gray("Budget tracking disabled"))
			fmt.Printf("  Set EVFLOW_COST_ENABLED=true to enable\n")
		} else {
			ledger, err := cost.NewLedger(cfg.Cost, store)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: failed to load cost ledger: %v\n", err)
				os.Exit(1)
			}
			stats := ledger.GetStats()
			if len(stats.Tenants) == 0 {
				fmt.Printf("  %s\n", gray("No spend recorded this window"))
			}
			sort.Slice(stats.Tenants, func(i, j int) bool {
				return stats.Tenants[i].CostUsed > stats.Tenants[j].CostUsed
			})
			for _, t := range stats.Tenants {
				statusColor := green
				switch t.Status {
				case cost.BudgetWarning:
					statusColor = yellow
				case cost.BudgetExceeded:
					statusColor = red
				}
				fmt.Printf("  %-16s %8.4f / %.0f units  %s\n",
					t.TenantID, t.CostUsed, t.HourlyLimit, statusColor(t.Status.String()))
			}
			fmt.Printf("  Total: %.4f units\n", stats.TotalCostUsed)
		}

		fmt.Printf("\n%s\n", yellow(fmt.Sprintf("Recorded spend (last %v):", costSince)))
		spend, err := store.SumCostByTenant(ctx, time.Now().UTC().Add(-costSince))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if len(spend) == 0 {
			fmt.Printf("  %s\n", gray("No call records"))
		}
		tenants := make([]string, 0, len(spend))
		for t := range spend {
			tenants = append(tenants, t)
		}
		sort.Strings(tenants)
		for _, t := range tenants {
			fmt.Printf("  %-16s %8.4f units\n", t, spend[t])
		}
		fmt.Println()
	},
}

func init() {
	costCmd.Flags().DurationVar(&costSince, "since", 24*time.Hour, "Window for recorded spend")
	rootCmd.AddCommand(costCmd)
}
