package sqldb

import (
	"fmt"
	"strings"
	"time"

	"github.com/tidewater-labs/siphon-cli/internal/core/domain"
)

// Shared control-table names. They live next to the destination tables
// so that runs from different hosts coordinate through the same
// database.
const (
	locksTable   = "_siphon_locks"
	batchesTable = "_siphon_batches"
)

// dialect generates the destination-side SQL for one database flavour.
// Every table, view and column name has passed domain identifier
// validation before it reaches a dialect, so statements splice names in
// directly.
type dialect interface {
	// Name returns the domain dialect this implementation serves.
	Name() domain.Dialect

	// Driver returns the database/sql driver name to open.
	Driver() string

	// DataSourceName normalizes the configured DSN for the driver.
	DataSourceName(dsn string) (string, error)

	// Rebind rewrites ? placeholders into the driver's native style.
	Rebind(query string) string

	// BindTime converts a timestamp into the driver's bind value.
	BindTime(t time.Time) any

	// EnsureSchemaSQL returns the statements that create the dataset's
	// staging table and the shared control tables when absent.
	EnsureSchemaSQL(ds *domain.Dataset) []string

	// BuildSwapTableSQL returns the statements that drop and recreate
	// the swap table empty.
	BuildSwapTableSQL(ds *domain.Dataset) []string

	// CopyBatchSQL returns the statement copying one batch's staging
	// rows into the swap table in sequence order. Its single parameter
	// is the batch id.
	CopyBatchSQL(ds *domain.Dataset) string

	// SwapSQL returns the statements that retire the destination table
	// and rename the swap table into its place.
	SwapSQL(ds *domain.Dataset, destExists bool) []string

	// TxDDL reports whether DDL statements participate in transactions.
	// When false the swap falls back to the dialect's atomic rename.
	TxDDL() bool

	// TableExistsSQL returns a single-parameter query counting tables
	// with the given name in the current schema.
	TableExistsSQL() string

	// ExtractExpr returns the expression reading a payload field as
	// text. Absent fields and JSON nulls read as SQL NULL.
	ExtractExpr(field string) string

	// CastExpr returns the guarded cast for one view column. A value
	// that fails the column's rule yields NULL; the expression never
	// raises.
	CastExpr(col domain.ViewColumn) string
}

// dialectFor maps a configured dialect to its implementation.
func dialectFor(name domain.Dialect) (dialect, error) {
	switch name {
	case domain.DialectSQLite:
		return sqliteDialect{}, nil
	case domain.DialectPostgres:
		return postgresDialect{}, nil
	case domain.DialectMySQL:
		return mysqlDialect{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown dialect %q", domain.ErrInvalidInput, name)
	}
}

// Textual shapes enforced before casting, mirroring the domain cast
// rules. Dots are matched with a character class so the same pattern
// works in POSIX and ICU regexp engines without escape games.
const (
	integerShape   = `^-?(0|[1-9][0-9]*)$`
	realShape      = `^-?(0|[1-9][0-9]*)([.][0-9]+)?([eE][+-]?[0-9]+)?$`
	dateShape      = `^[0-9]{4}-[0-9]{2}-[0-9]{2}$`
	timestampShape = `^[0-9]{4}-[0-9]{2}-[0-9]{2}[T ][0-9]{2}:[0-9]{2}:[0-9]{2}`
)

// retiredTable is where MySQL parks the previous destination during its
// multi-table rename.
func retiredTable(ds *domain.Dataset) string {
	return ds.Destination.Table + "__old"
}

// rebindNumbered rewrites ? placeholders to $1..$n for drivers that
// use numbered parameters. Generated queries never contain a literal
// question mark, so a byte scan suffices.
func rebindNumbered(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
