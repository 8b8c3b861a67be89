package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/attestly/evidenceflow/internal/events"
)

var (
	eventsRun      string
	eventsTenant   string
	eventsSeverity string
	eventsLimit    int
	eventsCleanup  bool
	eventsVacuum   bool
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect or clean up the workflow event stream",
	Long: `List workflow events, newest first. Filter with --run, --tenant, and
--severity. With --cleanup, apply the retention policy instead: delete
info/warning events older than the configured retention window and
error/critical events older than the extended window.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		if eventsCleanup {
			runCleanup(ctx)
			return
		}

		filter := events.Filter{
			RunID:    eventsRun,
			TenantID: eventsTenant,
			Severity: events.EventSeverity(eventsSeverity),
			Limit:    eventsLimit,
		}
		evts, err := store.GetEvents(ctx, filter)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if len(evts) == 0 {
			gray := color.New(color.FgHiBlack).SprintFunc()
			fmt.Printf("%s\n", gray("No events found"))
			return
		}
		for _, e := range evts {
			fmt.Printf("%s %s %-22s %s\n",
				e.Timestamp.Format("15:04:05"), severityBadge(e.Severity), e.Type, e.Message)
		}
	},
}

func runCleanup(ctx context.Context) {
	counts, err := store.GetEventCounts(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Events before cleanup: %d\n", counts.TotalEvents)

	deleted, err := store.CleanupEventsByAge(ctx, cfg.EventRetentionDays, cfg.CriticalEventRetentionDays, 1000)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cleanup failed: %v\n", err)
		os.Exit(1)
	}

	green := color.New(color.FgGreen).SprintFunc()
	fmt.Printf("%s Deleted %d events (retention %dd, critical %dd)\n",
		green("✓"), deleted, cfg.EventRetentionDays, cfg.CriticalEventRetentionDays)

	if eventsVacuum && deleted > 0 {
		if err := store.VacuumDatabase(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: vacuum failed: %v\n", err)
		} else {
			fmt.Printf("%s Database vacuumed\n", green("✓"))
		}
	}
}

func severityBadge(s events.EventSeverity) string {
	switch s {
	case events.SeverityCritical:
		return color.New(color.FgRed, color.Bold).Sprint("CRIT")
	case events.SeverityError:
		return color.New(color.FgRed).Sprint("ERRO")
	case events.SeverityWarning:
		return color.New(color.FgYellow).Sprint("WARN")
	default:
		return color.New(color.FgCyan).Sprint("INFO")
	}
}

func init() {
	eventsCmd.Flags().StringVar(&eventsRun, "run", "", "Filter by run ID")
	eventsCmd.Flags().StringVar(&eventsTenant, "tenant", "", "Filter by tenant")
	eventsCmd.Flags().StringVar(&eventsSeverity, "severity", "", "Filter by severity (info, warning, error, critical)")
	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 50, "Maximum events to list")
	eventsCmd.Flags().BoolVar(&eventsCleanup, "cleanup", false, "Apply the event retention policy")
	eventsCmd.Flags().BoolVar(&eventsVacuum, "vacuum", false, "Vacuum the database after cleanup")
	rootCmd.AddCommand(eventsCmd)
}
