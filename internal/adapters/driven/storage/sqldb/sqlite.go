package sqldb

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidewater-labs/siphon-cli/internal/core/domain"
)

// sqliteDialect targets an embedded SQLite file via modernc.org/sqlite.
// Timestamps are stored as RFC 3339 text; dates and timestamps project
// as SQLite's canonical text forms.
type sqliteDialect struct{}

var _ dialect = sqliteDialect{}

func (sqliteDialect) Name() domain.Dialect { return domain.DialectSQLite }

func (sqliteDialect) Driver() string { return "sqlite" }

// DataSourceName turns a bare file path into a WAL-mode DSN with a busy
// timeout, creating the parent directory when needed. A DSN already
// carrying options is passed through untouched.
func (sqliteDialect) DataSourceName(dsn string) (string, error) {
	if dsn == "" {
		return "", fmt.Errorf("%w: destination DSN is empty", domain.ErrInvalidInput)
	}
	if dsn == ":memory:" || strings.Contains(dsn, "?") {
		return dsn, nil
	}
	if dir := filepath.Dir(dsn); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return "", fmt.Errorf("creating destination directory: %w", err)
		}
	}
	return dsn + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", nil
}

func (sqliteDialect) Rebind(query string) string { return query }

func (sqliteDialect) BindTime(t time.Time) any { return t.UTC().Format(time.RFC3339) }

func (sqliteDialect) EnsureSchemaSQL(ds *domain.Dataset) []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			batch_id INTEGER NOT NULL,
			sequence INTEGER NOT NULL,
			payload TEXT NOT NULL,
			ingested_at TEXT NOT NULL,
			PRIMARY KEY (batch_id, sequence)
		)`, ds.StagingTable()),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			dataset TEXT PRIMARY KEY,
			batch_id INTEGER NOT NULL
		)`, batchesTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			dataset TEXT PRIMARY KEY,
			token TEXT NOT NULL,
			acquired_at TEXT NOT NULL
		)`, locksTable),
	}
}

func (sqliteDialect) BuildSwapTableSQL(ds *domain.Dataset) []string {
	return []string{
		"DROP TABLE IF EXISTS " + ds.SwapTable(),
		fmt.Sprintf(`CREATE TABLE %s (
			sequence INTEGER NOT NULL PRIMARY KEY,
			payload TEXT NOT NULL,
			ingested_at TEXT NOT NULL
		)`, ds.SwapTable()),
	}
}

func (sqliteDialect) CopyBatchSQL(ds *domain.Dataset) string {
	return fmt.Sprintf(`INSERT INTO %s (sequence, payload, ingested_at)
		SELECT sequence, payload, ingested_at FROM %s WHERE batch_id = ? ORDER BY sequence`,
		ds.SwapTable(), ds.StagingTable())
}

// SwapSQL runs inside the promotion transaction: the view is dropped
// first so the table underneath it can go, then the swap table takes
// the destination name.
func (sqliteDialect) SwapSQL(ds *domain.Dataset, _ bool) []string {
	return []string{
		"DROP VIEW IF EXISTS " + ds.EffectiveViewName(),
		"DROP TABLE IF EXISTS " + ds.Destination.Table,
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", ds.SwapTable(), ds.Destination.Table),
	}
}

func (sqliteDialect) TxDDL() bool { return true }

func (sqliteDialect) TableExistsSQL() string {
	return "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?"
}

// ExtractExpr reads a payload field as text. JSON booleans render as
// 'true'/'false' to match the other dialects; json_extract would give
// 1/0.
func (sqliteDialect) ExtractExpr(field string) string {
	p := jsonPath(field)
	return fmt.Sprintf(
		"CASE json_type(payload, %s) WHEN 'true' THEN 'true' WHEN 'false' THEN 'false' ELSE CAST(json_extract(payload, %s) AS TEXT) END",
		p, p)
}

// CastExpr builds the guarded cast. SQLite has no regexp function, so
// textual integers are checked with a printf round trip and reals with
// json_valid, both of which enforce the JSON number grammar the other
// dialects check by pattern. Dates rely on date() echoing valid input
// unchanged.
func (d sqliteDialect) CastExpr(col domain.ViewColumn) string {
	p := jsonPath(col.Field)
	x := fmt.Sprintf("json_extract(payload, %s)", p)
	t := fmt.Sprintf("json_type(payload, %s)", p)
	lenient := col.EffectiveCast() == domain.CastLenient
	s := x
	if lenient {
		s = "trim(" + x + ")"
	}

	switch col.Type {
	case domain.TypeText:
		e := d.ExtractExpr(col.Field)
		if lenient {
			return "trim(" + e + ")"
		}
		return e
	case domain.TypeInteger:
		return fmt.Sprintf(
			"CASE WHEN %s = 'integer' THEN %s WHEN %s = 'text' AND printf('%%d', CAST(%s AS INTEGER)) = %s THEN CAST(%s AS INTEGER) END",
			t, x, t, s, s, s)
	case domain.TypeReal:
		return fmt.Sprintf(
			"CASE WHEN %s IN ('integer', 'real') THEN CAST(%s AS REAL) WHEN %s = 'text' AND json_valid(%s) THEN (CASE WHEN json_type(%s) IN ('integer', 'real') THEN CAST(%s AS REAL) END) END",
			t, x, t, s, s, s)
	case domain.TypeBoolean:
		if lenient {
			return fmt.Sprintf(
				"CASE WHEN %s = 'true' THEN 1 WHEN %s = 'false' THEN 0 WHEN %s = 'integer' AND %s IN (0, 1) THEN %s WHEN %s = 'text' AND lower(%s) IN ('true', 't', 'yes', 'y', '1') THEN 1 WHEN %s = 'text' AND lower(%s) IN ('false', 'f', 'no', 'n', '0') THEN 0 END",
				t, t, t, x, x, t, s, t, s)
		}
		return fmt.Sprintf(
			"CASE WHEN %s = 'true' THEN 1 WHEN %s = 'false' THEN 0 WHEN %s = 'integer' AND %s IN (0, 1) THEN %s WHEN %s = 'text' AND %s IN ('true', '1') THEN 1 WHEN %s = 'text' AND %s IN ('false', '0') THEN 0 END",
			t, t, t, x, x, t, s, t, s)
	case domain.TypeDate:
		v := s
		if lenient {
			v = fmt.Sprintf("substr(%s, 1, 10)", s)
		}
		return fmt.Sprintf("CASE WHEN %s = 'text' AND date(%s) = %s THEN date(%s) END", t, v, v, v)
	case domain.TypeTimestamp:
		return fmt.Sprintf(
			"CASE WHEN %s = 'text' AND length(%s) >= 19 AND datetime(%s) IS NOT NULL THEN datetime(%s) END",
			t, s, s, s)
	}
	return "NULL"
}

// jsonPath renders the JSON path literal for a field name that has
// already passed identifier validation.
func jsonPath(field string) string {
	return "'$." + field + "'"
}
