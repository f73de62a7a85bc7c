package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs [dataset-id]",
	Short: "Show run history for a dataset",
	Args:  cobra.ExactArgs(1),
	RunE:  runRuns,
}

func init() {
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "maximum runs to show")
	rootCmd.AddCommand(runsCmd)
}

func runRuns(cmd *cobra.Command, args []string) error {
	if pipelineService == nil {
		return errors.New("pipeline service not configured")
	}

	history, err := pipelineService.RunHistory(context.Background(), args[0], runsLimit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if len(history) == 0 {
		cmd.Printf("No runs recorded for dataset: %s\n", args[0])
		return nil
	}

	cmd.Printf("Runs for dataset %s:\n", args[0])
	for _, r := range history {
		cmd.Printf("  %s  %-9s  %d/%d records  %s\n",
			r.StartedAt.Format(time.RFC3339), r.State, r.Staged, r.Expected,
			r.Duration().Round(time.Second))
		if r.Error != "" {
			cmd.Printf("      error: %s\n", r.Error)
		}
	}
	cmd.Printf("\nTotal: %d runs\n", len(history))
	return nil
}
