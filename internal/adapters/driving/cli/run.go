package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tidewater-labs/siphon-cli/internal/core/domain"
	"github.com/tidewater-labs/siphon-cli/internal/core/ports/driving"
)

var runCmd = &cobra.Command{
	Use:   "run [dataset-id]",
	Short: "Run the ingestion pipeline for a dataset",
	Long: `Fetches every record from the dataset's source API, stages the raw
payloads, and promotes the complete batch into the destination table.
Readers keep seeing the previous batch until the swap, and an
incomplete extract is discarded without touching the destination.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	if pipelineService == nil {
		return errors.New("pipeline service not configured")
	}

	ctx := context.Background()
	datasetID := args[0]
	cmd.Printf("Refreshing dataset: %s...\n", datasetID)

	run, err := runWithProgress(ctx, cmd, pipelineService, datasetID)
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}

	cmd.Printf("Dataset %s refreshed: %d records promoted in %s.\n",
		datasetID, run.Staged, run.Duration().Round(time.Millisecond))
	return nil
}

// runWithProgress executes the pipeline while displaying progress
// updates.
func runWithProgress(
	ctx context.Context,
	cmd *cobra.Command,
	pipeline driving.PipelineService,
	datasetID string,
) (*domain.Run, error) {
	// Start the run in a goroutine
	type result struct {
		run *domain.Run
		err error
	}
	resCh := make(chan result, 1)
	go func() {
		run, err := pipeline.Run(ctx, datasetID)
		resCh <- result{run: run, err: err}
	}()

	// Poll status every 500ms
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	var lastStaged int64 = -1
	for {
		select {
		case res := <-resCh:
			// Terminate the progress line before the final summary
			if res.run != nil && lastStaged >= 0 {
				cmd.Printf("\rStaged %d of %d records          \n",
					res.run.Staged, res.run.Expected)
			}
			return res.run, res.err
		case <-ticker.C:
			st, ok := activeStatus(pipeline, datasetID)
			if !ok || st.RecordsStaged <= lastStaged {
				continue
			}
			if st.Expected > 0 {
				cmd.Printf("\r%s... %d/%d records", st.Phase, st.RecordsStaged, st.Expected)
			} else {
				cmd.Printf("\r%s... %d records", st.Phase, st.RecordsStaged)
			}
			lastStaged = st.RecordsStaged
		}
	}
}

// activeStatus finds the dataset's live run snapshot, if any.
func activeStatus(pipeline driving.PipelineService, datasetID string) (domain.RunStatus, bool) {
	for _, st := range pipeline.ActiveRuns() {
		if st.DatasetID == datasetID {
			return st, true
		}
	}
	return domain.RunStatus{}, false
}
