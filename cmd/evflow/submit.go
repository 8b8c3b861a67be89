package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/attestly/evidenceflow/internal/types"
)

var (
	submitTenant string
	submitType   string
	submitSource string
	submitWait   bool
)

var submitCmd = &cobra.Command{
	Use:   "submit <evidence-file|->",
	Short: "Submit an evidence file for analysis",
	Long: `Submit a piece of compliance evidence for processing.

The payload is read from the given file. Duplicate evidence (same tenant
and normalized content) is rejected while a run is in flight and served
from the result cache once one has completed.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		var payload []byte
		var err error
		if args[0] == "-" {
			payload, err = io.ReadAll(os.Stdin)
		} else {
			payload, err = os.ReadFile(args[0])
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to read evidence payload: %v\n", err)
			os.Exit(1)
		}

		orch, err := buildOrchestrator(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		item := &types.EvidenceItem{
			TenantID:     submitTenant,
			Payload:      payload,
			DeclaredType: submitType,
			SubmittedAt:  time.Now().UTC(),
			SourceRef:    submitSource,
		}

		run, err := orch.Submit(ctx, item)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: submission failed: %v\n", err)
			os.Exit(1)
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Run %s accepted (state: %s)\n", green("✓"), run.ID, run.State)

		if submitWait && !run.State.Terminal() {
			final, err := orch.WaitForTerminal(ctx, run.ID)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			run = final
		}
		if run.State.Terminal() {
			printRun(run)
			if run.State != types.StateCompleted {
				os.Exit(1)
			}
		}
	},
}

func init() {
	submitCmd.Flags().StringVar(&submitTenant, "tenant", "", "Tenant the evidence belongs to (required)")
	submitCmd.Flags().StringVar(&submitType, "type", "json", "Declared evidence type (json, text, log, screenshot)")
	submitCmd.Flags().StringVar(&submitSource, "source", "", "Source reference, e.g. aws:config-rule/s3-encryption")
	submitCmd.Flags().BoolVar(&submitWait, "wait", true, "Wait for the run to reach a terminal state")
	submitCmd.MarkFlagRequired("tenant")
	rootCmd.AddCommand(submitCmd)
}
