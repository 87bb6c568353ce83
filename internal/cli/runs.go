package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/raphaelgruber/triggerexport/internal/ledger"
	"github.com/raphaelgruber/triggerexport/internal/models"
	"github.com/spf13/cobra"
)

var (
	runsMode  string
	runsLimit int
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded export runs",
	Long: `List export runs recorded in the run ledger, newest first.
Requires TRIGGEREXPORT_LEDGER=true and the SURREALDB_* settings.

Examples:
  triggerexport runs
  triggerexport runs --mode incremental -n 5
  triggerexport runs show 1a2b3c4d`,
	Args: cobra.NoArgs,
	RunE: runListRuns,
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one recorded run",
	Args:  cobra.ExactArgs(1),
	RunE:  runShowRun,
}

func init() {
	runsCmd.Flags().StringVarP(&runsMode, "mode", "m", "", "filter by mode (full, incremental)")
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", ledger.DefaultListLimit, "max results")
	runsCmd.AddCommand(runsShowCmd)
}

func runListRuns(cmd *cobra.Command, args []string) error {
	mode := models.RunMode(runsMode)
	if mode != "" && mode != models.RunModeFull && mode != models.RunModeIncremental {
		return fmt.Errorf("unknown mode %q, want full or incremental", runsMode)
	}

	ctx := context.Background()
	client, err := connectLedger(ctx, true)
	if err != nil {
		return err
	}
	defer closeLedger(client)

	runs, err := client.ListRuns(ctx, mode, runsLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
		return nil
	}
	for _, run := range runs {
		writeRunLine(cmd.OutOrStdout(), run)
	}
	return nil
}

func runShowRun(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	client, err := connectLedger(ctx, true)
	if err != nil {
		return err
	}
	defer closeLedger(client)

	run, err := client.GetRun(ctx, args[0])
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("run %s not found", args[0])
	}
	writeRunDetail(cmd.OutOrStdout(), *run)
	return nil
}

func writeRunLine(w io.Writer, run models.RunRecord) {
	fmt.Fprintf(w, "%s  %-11s  %-9s  %s  kept=%d fresh=%d",
		run.RunID, run.Mode, run.Status, run.StartedAt.UTC().Format(time.RFC3339), run.KeptRows, run.FreshRows)
	if run.OutputKey != "" {
		fmt.Fprintf(w, "  %s", run.OutputKey)
	}
	fmt.Fprintln(w)
}

func writeRunDetail(w io.Writer, run models.RunRecord) {
	fmt.Fprintf(w, "Run:        %s\n", run.RunID)
	fmt.Fprintf(w, "Mode:       %s\n", run.Mode)
	fmt.Fprintf(w, "Status:     %s\n", run.Status)
	fmt.Fprintf(w, "Started:    %s\n", run.StartedAt.UTC().Format(time.RFC3339))
	if run.CompletedAt != nil {
		fmt.Fprintf(w, "Completed:  %s\n", run.CompletedAt.UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(w, "Window:     %s\n", time.Unix(run.WindowStart, 0).UTC().Format(time.RFC3339))
	if run.Watermark != nil {
		fmt.Fprintf(w, "Watermark:  %s\n", time.Unix(*run.Watermark, 0).UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(w, "Rows:       kept=%d fresh=%d\n", run.KeptRows, run.FreshRows)
	if run.PreviousExport != "" {
		fmt.Fprintf(w, "Previous:   %s\n", run.PreviousExport)
	}
	if run.QueryID != "" {
		fmt.Fprintf(w, "Query:      %s\n", run.QueryID)
	}
	if run.OutputKey != "" {
		fmt.Fprintf(w, "Output:     %s\n", run.OutputKey)
	}
	if run.Error != nil {
		fmt.Fprintf(w, "Error:      %s\n", *run.Error)
	}
}
