package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/attestly/evidenceflow/internal/types"
)

var statusTenant string
var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status [run-id]",
	Short: "Show run status",
	Long: `Show the status of one run, or list recent runs when no run ID is
given. Use --tenant to scope the listing to one tenant.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		if len(args) == 1 {
			run, err := store.GetRun(ctx, args[0])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			if run == nil {
				fmt.Fprintf(os.Stderr, "Error: run not found: %s\n", args[0])
				os.Exit(1)
			}
			printRun(run)
			return
		}

		runs, err := store.ListRuns(ctx, statusTenant, statusLimit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if len(runs) == 0 {
			gray := color.New(color.FgHiBlack).SprintFunc()
			fmt.Printf("%s\n", gray("No runs found"))
			return
		}
		for _, run := range runs {
			fmt.Printf("%s %-13s %-10s %s\n",
				stateColor(run.State)(stateIcon(run.State)), run.State, run.TenantID, run.ID)
		}
	},
}

func printRun(run *types.WorkflowRun) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Printf("\n%s\n\n", cyan("=== Run "+run.ID+" ==="))
	fmt.Printf("  State:   %s %s\n", stateColor(run.State)(stateIcon(run.State)), stateColor(run.State)(string(run.State)))
	fmt.Printf("  Tenant:  %s\n", run.TenantID)
	fmt.Printf("  Hash:    %s\n", run.ContentHash)
	fmt.Printf("  Started: %s\n", run.StartedAt.Format("2006-01-02 15:04:05"))
	if run.CompletedAt != nil {
		fmt.Printf("  Ended:   %s (%v)\n", run.CompletedAt.Format("2006-01-02 15:04:05"),
			run.CompletedAt.Sub(run.StartedAt).Round(1e6))
	}

	if run.Error != nil {
		red := color.New(color.FgRed).SprintFunc()
		fmt.Printf("  Error:   %s %s\n", red(string(run.Error.Class)), run.Error.Detail)
		for _, a := range run.Error.Attempts {
			fmt.Printf("    %s: %s %s\n", a.ProviderID, a.Outcome, gray(a.Detail))
		}
	}

	if run.Result != nil {
		fmt.Printf("\n  Provider: %s (%.4f cost units)\n", run.Result.ProviderID, run.Result.CostUnits)
		fmt.Printf("  Summary:  %s\n", run.Result.Summary)
		if len(run.Result.Findings) > 0 {
			fmt.Printf("  Findings:\n")
			for _, f := range run.Result.Findings {
				fmt.Printf("    %s %s/%s: %s %s\n",
					findingIcon(f.Status), f.Framework, f.Control, f.Status, gray(f.Note))
			}
		}
	}
	fmt.Println()
}

func stateColor(s types.RunState) func(a ...interface{}) string {
	switch s {
	case types.StateCompleted:
		return color.New(color.FgGreen).SprintFunc()
	case types.StateFailed:
		return color.New(color.FgRed).SprintFunc()
	case types.StateRejected:
		return color.New(color.FgYellow).SprintFunc()
	default:
		return color.New(color.FgCyan).SprintFunc()
	}
}

func stateIcon(s types.RunState) string {
	switch s {
	case types.StateCompleted:
		return "✓"
	case types.StateFailed:
		return "✗"
	case types.StateRejected:
		return "⊘"
	default:
		return "●"
	}
}

func findingIcon(status string) string {
	switch status {
	case types.FindingSatisfied:
		return color.New(color.FgGreen).Sprint("✓")
	case types.FindingGap:
		return color.New(color.FgRed).Sprint("✗")
	default:
		return color.New(color.FgYellow).Sprint("?")
	}
}

func init() {
	statusCmd.Flags().StringVar(&statusTenant, "tenant", "", "Only show runs for this tenant")
	statusCmd.Flags().IntVar(&statusLimit, "limit", 20, "Maximum runs to list")
	rootCmd.AddCommand(statusCmd)
}
