package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show active runs and last results per dataset",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	if pipelineService == nil {
		return errors.New("pipeline service not configured")
	}
	if datasetService == nil {
		return errors.New("dataset service not configured")
	}

	ctx := context.Background()

	active := pipelineService.ActiveRuns()
	if len(active) > 0 {
		cmd.Println("Active runs:")
		for _, st := range active {
			elapsed := time.Since(st.StartedAt).Round(time.Second)
			if st.Expected > 0 {
				cmd.Printf("  %s: %s, %d/%d records, %s elapsed\n",
					st.DatasetID, st.Phase, st.RecordsStaged, st.Expected, elapsed)
			} else {
				cmd.Printf("  %s: %s, %d records, %s elapsed\n",
					st.DatasetID, st.Phase, st.RecordsStaged, elapsed)
			}
		}
	} else {
		cmd.Println("No active runs.")
	}
	cmd.Println()

	datasets, err := datasetService.ListDatasets(ctx)
	if err != nil {
		return fmt.Errorf("failed to list datasets: %w", err)
	}
	if len(datasets) == 0 {
		cmd.Println("No registered datasets.")
		return nil
	}

	cmd.Println("Datasets:")
	for _, ds := range datasets {
		history, err := pipelineService.RunHistory(ctx, ds.ID, 1)
		if err != nil {
			return fmt.Errorf("failed to load runs for %s: %w", ds.ID, err)
		}
		if len(history) == 0 {
			cmd.Printf("  %s: never run\n", ds.ID)
			continue
		}
		last := history[0]
		line := fmt.Sprintf("  %s: %s at %s, %d records",
			ds.ID, last.State, last.StartedAt.Format(time.RFC3339), last.Staged)
		if last.Error != "" {
			line += fmt.Sprintf(" (%s)", last.Error)
		}
		cmd.Println(line)
	}
	return nil
}
