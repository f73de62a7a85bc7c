package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/tidewater-labs/siphon-cli/internal/core/ports/driving"
	"github.com/tidewater-labs/siphon-cli/internal/logger"
)

// version is stamped at build time via -ldflags.
var version = "dev"

// Services the commands call. main wires these once before Execute;
// tests swap in mocks.
var (
	datasetService   driving.DatasetService
	pipelineService  driving.PipelineService
	schedulerService driving.Scheduler
	registryWatcher  RegistryWatcher
)

// RegistryWatcher picks up registry file edits while the schedule
// daemon runs. Watch blocks until the context is cancelled.
type RegistryWatcher interface {
	Watch(ctx context.Context) error
}

// initServices builds the real services once flags are parsed, so
// --config can steer where the registry is read from. Tests inject
// mocks via SetServices and leave this unset.
var initServices func(registryPath string) error

var (
	verbose    bool
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "siphon",
	Short: "Ingest paginated HTTP APIs into SQL tables",
	Long: `siphon pulls every record from a paginated JSON API, stages the raw
payloads, and atomically swaps the complete batch into a destination
table. A typed view over the raw payloads gives each dataset a clean,
deduplicated relational surface without locking in a schema.`,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		logger.SetVerbose(verbose)
		if initServices != nil {
			return initServices(configPath)
		}
		return nil
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "dataset registry file (default ~/.siphon/datasets.toml)")
}

// SetServices injects the wired services. main calls this once before
// Execute; the watcher may be nil when the registry is not file-backed.
func SetServices(
	datasets driving.DatasetService,
	pipeline driving.PipelineService,
	scheduler driving.Scheduler,
	watcher RegistryWatcher,
) {
	datasetService = datasets
	pipelineService = pipeline
	schedulerService = scheduler
	registryWatcher = watcher
}

// SetInitializer registers the service constructor run after flag
// parsing, when the --config value is known.
func SetInitializer(fn func(registryPath string) error) {
	initServices = fn
}

// SetVersion overrides the reported version string.
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

// Execute runs the root command and returns its error.
func Execute() error {
	return rootCmd.Execute()
}
