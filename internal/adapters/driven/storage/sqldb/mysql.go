package sqldb

import (
	"fmt"
	"strings"
	"time"

	"github.com/tidewater-labs/siphon-cli/internal/core/domain"
)

// mysqlDialect targets MySQL 8.0.19+ via go-sql-driver/mysql. DDL does
// not participate in transactions there, so promotion relies on the
// atomic multi-table RENAME instead; between retiring the old view and
// creating the new one readers briefly see no view at all.
type mysqlDialect struct{}

var _ dialect = mysqlDialect{}

func (mysqlDialect) Name() domain.Dialect { return domain.DialectMySQL }

func (mysqlDialect) Driver() string { return "mysql" }

// DataSourceName forces parseTime so DATETIME columns scan into
// time.Time.
func (mysqlDialect) DataSourceName(dsn string) (string, error) {
	if dsn == "" {
		return "", fmt.Errorf("%w: destination DSN is empty", domain.ErrInvalidInput)
	}
	if strings.Contains(dsn, "parseTime=") {
		return dsn, nil
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "parseTime=true", nil
}

func (mysqlDialect) Rebind(query string) string { return query }

func (mysqlDialect) BindTime(t time.Time) any { return t.UTC() }

func (mysqlDialect) EnsureSchemaSQL(ds *domain.Dataset) []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			batch_id BIGINT NOT NULL,
			sequence BIGINT NOT NULL,
			payload LONGTEXT NOT NULL,
			ingested_at DATETIME(6) NOT NULL,
			PRIMARY KEY (batch_id, sequence)
		)`, ds.StagingTable()),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			dataset VARCHAR(255) PRIMARY KEY,
			batch_id BIGINT NOT NULL
		)`, batchesTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			dataset VARCHAR(255) PRIMARY KEY,
			token VARCHAR(64) NOT NULL,
			acquired_at DATETIME(6) NOT NULL
		)`, locksTable),
	}
}

// BuildSwapTableSQL also clears any tombstone a crashed rename left
// behind.
func (mysqlDialect) BuildSwapTableSQL(ds *domain.Dataset) []string {
	return []string{
		"DROP TABLE IF EXISTS " + retiredTable(ds),
		"DROP TABLE IF EXISTS " + ds.SwapTable(),
		fmt.Sprintf(`CREATE TABLE %s (
			sequence BIGINT NOT NULL PRIMARY KEY,
			payload LONGTEXT NOT NULL,
			ingested_at DATETIME(6) NOT NULL
		)`, ds.SwapTable()),
	}
}

func (mysqlDialect) CopyBatchSQL(ds *domain.Dataset) string {
	return fmt.Sprintf(`INSERT INTO %s (sequence, payload, ingested_at)
		SELECT sequence, payload, ingested_at FROM %s WHERE batch_id = ? ORDER BY sequence`,
		ds.SwapTable(), ds.StagingTable())
}

// SwapSQL swaps with a single multi-table RENAME, which MySQL applies
// atomically. The retired table is dropped afterwards; a crash between
// the two statements leaves only a tombstone the next run clears.
func (mysqlDialect) SwapSQL(ds *domain.Dataset, destExists bool) []string {
	dest := ds.Destination.Table
	if !destExists {
		return []string{fmt.Sprintf("RENAME TABLE %s TO %s", ds.SwapTable(), dest)}
	}
	return []string{
		fmt.Sprintf("RENAME TABLE %s TO %s, %s TO %s", dest, retiredTable(ds), ds.SwapTable(), dest),
		"DROP TABLE IF EXISTS " + retiredTable(ds),
	}
}

func (mysqlDialect) TxDDL() bool { return false }

func (mysqlDialect) TableExistsSQL() string {
	return "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?"
}

// ExtractExpr reads a payload field as text. JSON null must be caught
// explicitly: JSON_UNQUOTE would render it as the string 'null'.
func (mysqlDialect) ExtractExpr(field string) string {
	x := fmt.Sprintf("JSON_EXTRACT(payload, %s)", jsonPath(field))
	return fmt.Sprintf("CASE WHEN JSON_TYPE(%s) = 'NULL' THEN NULL ELSE JSON_UNQUOTE(%s) END", x, x)
}

// CastExpr builds the guarded cast. String comparisons collate binary;
// the server default would match case-insensitively and let 'TRUE'
// through a strict boolean.
func (d mysqlDialect) CastExpr(col domain.ViewColumn) string {
	e := d.ExtractExpr(col.Field)
	lenient := col.EffectiveCast() == domain.CastLenient
	s := "(" + e + ")"
	if lenient {
		s = "TRIM(" + e + ")"
	}

	switch col.Type {
	case domain.TypeText:
		return s
	case domain.TypeInteger:
		return fmt.Sprintf("CASE WHEN %s REGEXP '%s' THEN CAST(%s AS SIGNED) END", s, integerShape, s)
	case domain.TypeReal:
		return fmt.Sprintf("CASE WHEN %s REGEXP '%s' THEN CAST(%s AS DOUBLE) END", s, realShape, s)
	case domain.TypeBoolean:
		if lenient {
			v := "LOWER(" + s + ")"
			return fmt.Sprintf(
				"CASE WHEN %s IN ('true', 't', 'yes', 'y', '1') THEN TRUE WHEN %s IN ('false', 'f', 'no', 'n', '0') THEN FALSE END",
				v, v)
		}
		v := s + " COLLATE utf8mb4_bin"
		return fmt.Sprintf(
			"CASE WHEN %s IN ('true', '1') THEN TRUE WHEN %s IN ('false', '0') THEN FALSE END",
			v, v)
	case domain.TypeDate:
		v := s
		if lenient {
			v = fmt.Sprintf("LEFT(%s, 10)", s)
		}
		return fmt.Sprintf("CASE WHEN %s REGEXP '%s' THEN CAST(%s AS DATE) END", v, dateShape, v)
	case domain.TypeTimestamp:
		return fmt.Sprintf(
			"CASE WHEN %s REGEXP '%s' THEN CAST(REPLACE(REPLACE(%s, 'T', ' '), 'Z', '+00:00') AS DATETIME(6)) END",
			s, timestampShape, s)
	}
	return "NULL"
}
