// Command siphon ingests paginated HTTP APIs into SQL tables via a
// stage-validate-swap pipeline.
package main

import (
	"fmt"
	"os"

	"github.com/tidewater-labs/siphon-cli/internal/adapters/driven/config/file"
	"github.com/tidewater-labs/siphon-cli/internal/adapters/driven/storage/sqldb"
	"github.com/tidewater-labs/siphon-cli/internal/adapters/driven/storage/sqlite"
	"github.com/tidewater-labs/siphon-cli/internal/adapters/driving/cli"
	"github.com/tidewater-labs/siphon-cli/internal/adapters/driving/watch"
	"github.com/tidewater-labs/siphon-cli/internal/connectors/soda"
	"github.com/tidewater-labs/siphon-cli/internal/core/services"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Services are built after flag parsing so --config can point at a
	// different registry. SIPHON_REGISTRY and SIPHON_DATA_DIR override
	// the ~/.siphon defaults when the flag is absent.
	var state *sqlite.Store
	cli.SetInitializer(func(registryPath string) error {
		if registryPath == "" {
			registryPath = os.Getenv("SIPHON_REGISTRY")
		}
		datasets, err := file.NewDatasetStore(registryPath)
		if err != nil {
			return fmt.Errorf("opening dataset registry: %w", err)
		}

		state, err = sqlite.NewStore(os.Getenv("SIPHON_DATA_DIR"))
		if err != nil {
			return fmt.Errorf("opening state store: %w", err)
		}

		pipeline := services.NewPipeline(datasets, state.RunStore(), soda.Factory{}, sqldb.NewOpener())
		scheduler := services.NewScheduler(pipeline, datasets)

		cli.SetServices(
			services.NewDatasetManager(datasets),
			pipeline,
			scheduler,
			watch.New(datasets.Path(), datasets, scheduler),
		)
		return nil
	})
	cli.SetVersion(version)

	err := cli.Execute()
	if state != nil {
		if cerr := state.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
