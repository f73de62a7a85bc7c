package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tidewater-labs/siphon-cli/internal/logger"
)

var scheduleWatch bool

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the schedule daemon",
	Long: `Runs datasets on their cron schedules until interrupted. With --watch,
registry file edits are picked up without a restart.`,
	RunE: runSchedule,
}

func init() {
	scheduleCmd.Flags().BoolVarP(&scheduleWatch, "watch", "w", false, "reload schedules when the registry file changes")
	rootCmd.AddCommand(scheduleCmd)
}

func runSchedule(cmd *cobra.Command, _ []string) error {
	if schedulerService == nil {
		return errors.New("scheduler service not configured")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if scheduleWatch {
		if registryWatcher == nil {
			return errors.New("registry watcher not configured")
		}
		go func() {
			if err := registryWatcher.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("registry watch stopped: %v", err)
			}
		}()
	}

	cmd.Println("Schedule daemon started. Press Ctrl+C to stop.")
	if err := schedulerService.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("scheduler stopped: %w", err)
	}
	cmd.Println("Schedule daemon stopped.")
	return nil
}
