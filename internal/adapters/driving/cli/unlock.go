package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var unlockCmd = &cobra.Command{
	Use:   "unlock [dataset-id]",
	Short: "Force-release a dataset's run lock",
	Long: `Clears the destination-side run lock left behind by a crashed run.
Only use this when no run is actually in progress; breaking a live
run's lock lets a concurrent run corrupt the batch.`,
	Args: cobra.ExactArgs(1),
	RunE: runUnlock,
}

func init() {
	rootCmd.AddCommand(unlockCmd)
}

func runUnlock(cmd *cobra.Command, args []string) error {
	if pipelineService == nil {
		return errors.New("pipeline service not configured")
	}

	if err := pipelineService.BreakLock(context.Background(), args[0]); err != nil {
		return fmt.Errorf("failed to break run lock: %w", err)
	}

	cmd.Printf("Run lock cleared for dataset %s.\n", args[0])
	return nil
}
