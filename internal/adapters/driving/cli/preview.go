package cli

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tidewater-labs/siphon-cli/internal/core/domain"
)

var (
	previewLimit int
	previewJSON  bool
)

var previewCmd = &cobra.Command{
	Use:   "preview [dataset-id]",
	Short: "Fetch sample records without writing anything",
	Long: `Fetches the first records from the dataset's source API and renders
them through the dataset's view spec, so field names, types and the
natural-key choice can be checked before the first real run. Nothing
is staged or loaded. With --json the raw records are printed in
canonical form instead, one per line.`,
	Args: cobra.ExactArgs(1),
	RunE: runPreview,
}

func init() {
	previewCmd.Flags().IntVarP(&previewLimit, "limit", "n", 10, "number of records to fetch")
	previewCmd.Flags().BoolVar(&previewJSON, "json", false, "print raw canonical records instead of typed columns")
	rootCmd.AddCommand(previewCmd)
}

func runPreview(cmd *cobra.Command, args []string) error {
	if pipelineService == nil {
		return errors.New("pipeline service not configured")
	}
	if datasetService == nil {
		return errors.New("dataset service not configured")
	}

	ctx := context.Background()
	ds, err := datasetService.GetDataset(ctx, args[0])
	if err != nil {
		return fmt.Errorf("preview failed: %w", err)
	}

	records, err := pipelineService.Preview(ctx, args[0], previewLimit)
	if err != nil {
		return fmt.Errorf("preview failed: %w", err)
	}

	if len(records) == 0 {
		cmd.Println("Source returned no records.")
		return nil
	}

	if previewJSON {
		for _, rec := range records {
			payload, err := domain.EncodeCanonical(rec)
			if err != nil {
				return fmt.Errorf("encoding record: %w", err)
			}
			cmd.Println(payload)
		}
		return nil
	}

	printTypedPreview(cmd, ds, records)
	return nil
}

// printTypedPreview renders records through the view spec's columns,
// applying the same cast rules the installed view would. Cells that
// fail their cast render as NULL, exactly as they would project.
func printTypedPreview(cmd *cobra.Command, ds *domain.Dataset, records []domain.Record) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
	defer w.Flush() //nolint:errcheck

	columns := ds.View.EffectiveColumns()
	for i, col := range columns {
		if i > 0 {
			fmt.Fprint(w, "\t")
		}
		fmt.Fprint(w, col.Name)
	}
	fmt.Fprintln(w)

	for _, rec := range records {
		for i, col := range columns {
			if i > 0 {
				fmt.Fprint(w, "\t")
			}
			fmt.Fprint(w, previewCell(rec, col))
		}
		fmt.Fprintln(w)
	}
}

func previewCell(rec domain.Record, col domain.ViewColumn) string {
	v, ok := rec[col.Field]
	if !ok || v == nil {
		return "NULL"
	}
	cast, ok := domain.CastValue(v, col.Type, col.EffectiveCast())
	if !ok || cast == nil {
		return "NULL"
	}
	if t, ok := cast.(time.Time); ok {
		if col.Type == domain.TypeDate {
			return t.Format("2006-01-02")
		}
		return t.Format(time.RFC3339)
	}
	return fmt.Sprint(cast)
}
