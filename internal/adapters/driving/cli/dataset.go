package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tidewater-labs/siphon-cli/internal/core/domain"
)

var datasetCmd = &cobra.Command{
	Use:     "dataset",
	Aliases: []string{"datasets"},
	Short:   "Manage dataset registrations",
	Long: `Register, inspect and remove datasets. A dataset ties a source API
endpoint to a destination table and a typed view over it.`,
	RunE: runDatasetList,
}

var datasetAddCmd = &cobra.Command{
	Use:   "add [dataset-id]",
	Short: "Register a dataset interactively",
	Long:  `Walks through source, destination and view configuration step by step.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runDatasetAdd,
}

var datasetListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered datasets",
	RunE:  runDatasetList,
}

var datasetShowCmd = &cobra.Command{
	Use:   "show [dataset-id]",
	Short: "Show a dataset's configuration",
	Args:  cobra.ExactArgs(1),
	RunE:  runDatasetShow,
}

var datasetRemoveCmd = &cobra.Command{
	Use:   "remove [dataset-id]",
	Short: "Remove a dataset registration",
	Args:  cobra.ExactArgs(1),
	RunE:  runDatasetRemove,
}

func init() {
	datasetCmd.AddCommand(datasetAddCmd)
	datasetCmd.AddCommand(datasetListCmd)
	datasetCmd.AddCommand(datasetShowCmd)
	datasetCmd.AddCommand(datasetRemoveCmd)
	rootCmd.AddCommand(datasetCmd)
}

func runDatasetAdd(cmd *cobra.Command, args []string) error {
	if datasetService == nil {
		return errors.New("dataset service not configured")
	}

	id := args[0]
	reader := bufio.NewReader(os.Stdin)
	ds := &domain.Dataset{ID: id}

	cmd.Printf("Register Dataset: %s\n", id)
	cmd.Println("================")
	cmd.Println()

	cmd.Printf("Display name [%s]: ", id)
	ds.Name = readLine(reader)
	if ds.Name == "" {
		ds.Name = id
	}

	if err := promptSource(cmd, reader, &ds.Source); err != nil {
		return err
	}
	if err := promptDestination(cmd, reader, &ds.Destination); err != nil {
		return err
	}
	if err := promptView(cmd, reader, &ds.View); err != nil {
		return err
	}

	cmd.Println()
	cmd.Print("Cron schedule (blank for manual runs): ")
	ds.Schedule = readLine(reader)

	if err := datasetService.AddDataset(context.Background(), ds); err != nil {
		return fmt.Errorf("failed to add dataset: %w", err)
	}

	cmd.Printf("\nDataset %s registered.\n", id)
	cmd.Printf("Run 'siphon preview %s' to check the source, then 'siphon run %s' to ingest.\n", id, id)
	return nil
}

func promptSource(cmd *cobra.Command, reader *bufio.Reader, src *domain.SourceConfig) error {
	cmd.Println("\n[Source]")

	cmd.Print("Endpoint URL: ")
	src.Endpoint = readLine(reader)
	if src.Endpoint == "" {
		return errors.New("source endpoint is required")
	}

	schemes := []domain.AuthScheme{domain.AuthSchemeNone, domain.AuthSchemeAppToken, domain.AuthSchemeBearer}
	cmd.Println("Select auth scheme")
	for i, s := range schemes {
		cmd.Printf("  %d. %s\n", i+1, s)
	}
	cmd.Print("\nEnter choice [1]: ")
	idx := parseChoice(readLine(reader), len(schemes), 1)
	src.Auth = schemes[idx-1]

	if src.Auth != domain.AuthSchemeNone {
		cmd.Print("Access key (literal or env:NAME): ")
		src.AccessKey = readPassword()
		cmd.Println()
		if src.AccessKey == "" {
			return errors.New("access key is required for this auth scheme")
		}
	}

	cmd.Printf("Page size [%d]: ", domain.DefaultPageSize)
	if input := readLine(reader); input != "" {
		size, err := strconv.Atoi(input)
		if err != nil || size < 1 {
			return fmt.Errorf("invalid page size %q", input)
		}
		src.PageSize = size
	}

	modes := []domain.PageMode{domain.PageModeOffset, domain.PageModeCursor}
	cmd.Println("Select pagination mode")
	for i, m := range modes {
		cmd.Printf("  %d. %s\n", i+1, m)
	}
	cmd.Print("\nEnter choice [1]: ")
	idx = parseChoice(readLine(reader), len(modes), 1)
	src.Pagination = modes[idx-1]

	return nil
}

func promptDestination(cmd *cobra.Command, reader *bufio.Reader, dst *domain.DestinationConfig) error {
	cmd.Println("\n[Destination]")

	dialects := []domain.Dialect{domain.DialectSQLite, domain.DialectPostgres, domain.DialectMySQL}
	cmd.Println("Select dialect")
	for i, d := range dialects {
		cmd.Printf("  %d. %s\n", i+1, d)
	}
	cmd.Print("\nEnter choice [1]: ")
	idx := parseChoice(readLine(reader), len(dialects), 1)
	dst.Dialect = dialects[idx-1]

	cmd.Print("DSN (literal or env:NAME): ")
	dst.DSN = readPassword()
	cmd.Println()
	if dst.DSN == "" {
		return errors.New("destination DSN is required")
	}

	cmd.Print("Table name: ")
	dst.Table = readLine(reader)
	if dst.Table == "" {
		return errors.New("destination table is required")
	}

	return nil
}

func promptView(cmd *cobra.Command, reader *bufio.Reader, view *domain.ViewSpec) error {
	cmd.Println("\n[View]")

	cmd.Print("Natural key fields (comma-separated): ")
	for _, f := range strings.Split(readLine(reader), ",") {
		if f = strings.TrimSpace(f); f != "" {
			view.NaturalKey = append(view.NaturalKey, f)
		}
	}
	if len(view.NaturalKey) == 0 {
		return errors.New("natural key must list at least one field")
	}

	cmd.Println("Columns as name[:type[:field[:cast]]], blank line to finish.")
	cmd.Println("Types: text, integer, real, boolean, date, timestamp. Casts: strict, lenient.")
	for {
		cmd.Print("Column: ")
		spec := readLine(reader)
		if spec == "" {
			break
		}
		col, err := parseColumn(spec)
		if err != nil {
			cmd.Printf("  %v\n", err)
			continue
		}
		view.Columns = append(view.Columns, col)
	}
	if len(view.Columns) == 0 {
		return errors.New("view must declare at least one column")
	}

	return nil
}

func runDatasetList(cmd *cobra.Command, _ []string) error {
	if datasetService == nil {
		return errors.New("dataset service not configured")
	}

	datasets, err := datasetService.ListDatasets(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list datasets: %w", err)
	}

	if len(datasets) == 0 {
		cmd.Println("No registered datasets. Run 'siphon dataset add <id>' to register one.")
		return nil
	}

	cmd.Println("Registered datasets:")
	for _, ds := range datasets {
		cmd.Printf("  %s - %s\n", ds.ID, ds.Name)
		cmd.Printf("    Source: %s\n", ds.Source.Endpoint)
		cmd.Printf("    Destination: %s table %s\n", ds.Destination.Dialect, ds.Destination.Table)
		if ds.Schedule != "" {
			cmd.Printf("    Schedule: %s\n", ds.Schedule)
		}
	}
	cmd.Printf("\nTotal: %d datasets\n", len(datasets))
	return nil
}

func runDatasetShow(cmd *cobra.Command, args []string) error {
	if datasetService == nil {
		return errors.New("dataset service not configured")
	}

	ds, err := datasetService.GetDataset(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get dataset: %w", err)
	}

	cmd.Printf("Dataset: %s\n", ds.ID)
	cmd.Println("================")
	cmd.Println()
	cmd.Printf("Name: %s\n", ds.Name)
	if ds.Schedule != "" {
		cmd.Printf("Schedule: %s\n", ds.Schedule)
	}
	cmd.Println()

	auth := ds.Source.Auth
	if auth == "" {
		auth = domain.AuthSchemeNone
	}
	cmd.Println("[Source]")
	cmd.Printf("  Endpoint: %s\n", ds.Source.Endpoint)
	cmd.Printf("  Auth: %s\n", auth)
	if ds.Source.AccessKey != "" {
		cmd.Printf("  Access key: %s\n", maskSecret(ds.Source.AccessKey))
	}
	cmd.Printf("  Page size: %d\n", ds.EffectivePageSize())
	cmd.Printf("  Rate limit: %.1f req/s\n", ds.EffectiveRateLimit())
	cmd.Println()

	cmd.Println("[Destination]")
	cmd.Printf("  Dialect: %s\n", ds.Destination.Dialect)
	cmd.Printf("  DSN: %s\n", maskSecret(ds.Destination.DSN))
	cmd.Printf("  Table: %s\n", ds.Destination.Table)
	cmd.Println()

	cmd.Println("[View]")
	cmd.Printf("  Name: %s\n", ds.EffectiveViewName())
	cmd.Printf("  Natural key: %s\n", strings.Join(ds.View.NaturalKey, ", "))
	cmd.Println("  Columns:")
	for _, col := range ds.View.Columns {
		line := fmt.Sprintf("    %s %s", col.Name, col.Type)
		if col.Field != col.Name {
			line += fmt.Sprintf(" (field %s)", col.Field)
		}
		if col.EffectiveCast() != domain.CastStrict {
			line += fmt.Sprintf(" [%s]", col.EffectiveCast())
		}
		cmd.Println(line)
	}

	return nil
}

func runDatasetRemove(cmd *cobra.Command, args []string) error {
	if datasetService == nil {
		return errors.New("dataset service not configured")
	}

	if err := datasetService.RemoveDataset(context.Background(), args[0]); err != nil {
		return fmt.Errorf("failed to remove dataset: %w", err)
	}

	cmd.Printf("Removed dataset: %s\n", args[0])
	cmd.Println("Data already loaded stays in the destination.")
	return nil
}

// parseColumn parses a column spec of the form name[:type[:field[:cast]]].
// Omitted parts default to text, the column name, and strict casting.
func parseColumn(spec string) (domain.ViewColumn, error) {
	parts := strings.Split(spec, ":")
	if len(parts) > 4 {
		return domain.ViewColumn{}, fmt.Errorf("too many parts in column %q", spec)
	}

	col := domain.ViewColumn{Name: strings.TrimSpace(parts[0])}
	if col.Name == "" {
		return domain.ViewColumn{}, errors.New("column name is required")
	}
	col.Type = domain.TypeText
	col.Field = col.Name

	if len(parts) > 1 && strings.TrimSpace(parts[1]) != "" {
		col.Type = domain.ColumnType(strings.TrimSpace(parts[1]))
	}
	if len(parts) > 2 && strings.TrimSpace(parts[2]) != "" {
		col.Field = strings.TrimSpace(parts[2])
	}
	if len(parts) > 3 && strings.TrimSpace(parts[3]) != "" {
		col.Cast = domain.CastRule(strings.TrimSpace(parts[3]))
	}

	switch col.Type {
	case domain.TypeText, domain.TypeInteger, domain.TypeReal,
		domain.TypeBoolean, domain.TypeDate, domain.TypeTimestamp:
	default:
		return domain.ViewColumn{}, fmt.Errorf("unknown type %q", col.Type)
	}
	switch col.Cast {
	case domain.CastStrict, domain.CastLenient, "":
	default:
		return domain.ViewColumn{}, fmt.Errorf("unknown cast rule %q", col.Cast)
	}

	return col, nil
}

// Helper functions.

//nolint:errcheck // CLI helper, error ignored for UX
func readLine(reader *bufio.Reader) string {
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func parseChoice(input string, maxVal, defaultVal int) int {
	if input == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(input)
	if err != nil || val < 1 || val > maxVal {
		return defaultVal
	}
	return val
}

//nolint:errcheck // CLI helper, error ignored for UX
func readPassword() string {
	// Try to read without echo
	if term.IsTerminal(int(os.Stdin.Fd())) {
		secret, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err == nil {
			return strings.TrimSpace(string(secret))
		}
	}
	// Fallback to regular input
	reader := bufio.NewReader(os.Stdin)
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

// maskSecret hides credential text. env: references carry no secret
// themselves and stay readable.
func maskSecret(s string) string {
	if strings.HasPrefix(s, "env:") {
		return s
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "..." + s[len(s)-4:]
}
