package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var refreshViewCmd = &cobra.Command{
	Use:   "refresh-view [dataset-id]",
	Short: "Reinstall the dataset's typed view",
	Long: `Rebuilds the typed deduplicating view over the destination table from
the dataset's current view spec. Use after editing view columns to
apply the change without re-ingesting.`,
	Args: cobra.ExactArgs(1),
	RunE: runRefreshView,
}

func init() {
	rootCmd.AddCommand(refreshViewCmd)
}

func runRefreshView(cmd *cobra.Command, args []string) error {
	if pipelineService == nil {
		return errors.New("pipeline service not configured")
	}

	if err := pipelineService.RefreshView(context.Background(), args[0]); err != nil {
		return fmt.Errorf("failed to refresh view: %w", err)
	}

	cmd.Printf("View refreshed for dataset %s.\n", args[0])
	return nil
}
