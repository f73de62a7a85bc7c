package sqldb

import (
	"fmt"
	"time"

	"github.com/tidewater-labs/siphon-cli/internal/core/domain"
)

// postgresDialect targets PostgreSQL via lib/pq. Range and calendar
// errors that shape patterns cannot express are absorbed by safe-cast
// helper functions installed with the schema, so a malformed value can
// never abort a view query.
type postgresDialect struct{}

var _ dialect = postgresDialect{}

func (postgresDialect) Name() domain.Dialect { return domain.DialectPostgres }

func (postgresDialect) Driver() string { return "postgres" }

func (postgresDialect) DataSourceName(dsn string) (string, error) {
	if dsn == "" {
		return "", fmt.Errorf("%w: destination DSN is empty", domain.ErrInvalidInput)
	}
	return dsn, nil
}

func (postgresDialect) Rebind(query string) string { return rebindNumbered(query) }

func (postgresDialect) BindTime(t time.Time) any { return t.UTC() }

func (postgresDialect) EnsureSchemaSQL(ds *domain.Dataset) []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			batch_id BIGINT NOT NULL,
			sequence BIGINT NOT NULL,
			payload TEXT NOT NULL,
			ingested_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (batch_id, sequence)
		)`, ds.StagingTable()),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			dataset TEXT PRIMARY KEY,
			batch_id BIGINT NOT NULL
		)`, batchesTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			dataset TEXT PRIMARY KEY,
			token TEXT NOT NULL,
			acquired_at TIMESTAMPTZ NOT NULL
		)`, locksTable),
		`CREATE OR REPLACE FUNCTION siphon_safe_bigint(v text) RETURNS bigint
			LANGUAGE plpgsql IMMUTABLE AS $fn$
			BEGIN
				RETURN v::bigint;
			EXCEPTION WHEN others THEN
				RETURN NULL;
			END
			$fn$`,
		`CREATE OR REPLACE FUNCTION siphon_safe_float8(v text) RETURNS double precision
			LANGUAGE plpgsql IMMUTABLE AS $fn$
			BEGIN
				RETURN v::double precision;
			EXCEPTION WHEN others THEN
				RETURN NULL;
			END
			$fn$`,
		`CREATE OR REPLACE FUNCTION siphon_safe_date(v text) RETURNS date
			LANGUAGE plpgsql IMMUTABLE AS $fn$
			BEGIN
				RETURN v::date;
			EXCEPTION WHEN others THEN
				RETURN NULL;
			END
			$fn$`,
		`CREATE OR REPLACE FUNCTION siphon_safe_timestamptz(v text) RETURNS timestamptz
			LANGUAGE plpgsql STABLE AS $fn$
			BEGIN
				RETURN v::timestamptz;
			EXCEPTION WHEN others THEN
				RETURN NULL;
			END
			$fn$`,
	}
}

func (postgresDialect) BuildSwapTableSQL(ds *domain.Dataset) []string {
	return []string{
		"DROP TABLE IF EXISTS " + ds.SwapTable(),
		fmt.Sprintf(`CREATE TABLE %s (
			sequence BIGINT NOT NULL PRIMARY KEY,
			payload TEXT NOT NULL,
			ingested_at TIMESTAMPTZ NOT NULL
		)`, ds.SwapTable()),
	}
}

func (postgresDialect) CopyBatchSQL(ds *domain.Dataset) string {
	return fmt.Sprintf(`INSERT INTO %s (sequence, payload, ingested_at)
		SELECT sequence, payload, ingested_at FROM %s WHERE batch_id = $1 ORDER BY sequence`,
		ds.SwapTable(), ds.StagingTable())
}

// SwapSQL runs inside the promotion transaction. The view depends on
// the destination table, so it goes first or the DROP TABLE would be
// refused.
func (postgresDialect) SwapSQL(ds *domain.Dataset, _ bool) []string {
	return []string{
		"DROP VIEW IF EXISTS " + ds.EffectiveViewName(),
		"DROP TABLE IF EXISTS " + ds.Destination.Table,
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", ds.SwapTable(), ds.Destination.Table),
	}
}

func (postgresDialect) TxDDL() bool { return true }

func (postgresDialect) TableExistsSQL() string {
	return "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = $1"
}

func (postgresDialect) ExtractExpr(field string) string {
	return fmt.Sprintf("(payload::jsonb ->> '%s')", field)
}

func (d postgresDialect) CastExpr(col domain.ViewColumn) string {
	e := d.ExtractExpr(col.Field)
	lenient := col.EffectiveCast() == domain.CastLenient
	s := e
	if lenient {
		s = "btrim(" + e + ")"
	}

	switch col.Type {
	case domain.TypeText:
		return s
	case domain.TypeInteger:
		return fmt.Sprintf("CASE WHEN %s ~ '%s' THEN siphon_safe_bigint(%s) END", s, integerShape, s)
	case domain.TypeReal:
		return fmt.Sprintf("CASE WHEN %s ~ '%s' THEN siphon_safe_float8(%s) END", s, realShape, s)
	case domain.TypeBoolean:
		if lenient {
			v := "lower(" + s + ")"
			return fmt.Sprintf(
				"CASE WHEN %s IN ('true', 't', 'yes', 'y', '1') THEN TRUE WHEN %s IN ('false', 'f', 'no', 'n', '0') THEN FALSE END",
				v, v)
		}
		return fmt.Sprintf(
			"CASE WHEN %s IN ('true', '1') THEN TRUE WHEN %s IN ('false', '0') THEN FALSE END",
			s, s)
	case domain.TypeDate:
		v := s
		if lenient {
			v = fmt.Sprintf("left(%s, 10)", s)
		}
		return fmt.Sprintf("CASE WHEN %s ~ '%s' THEN siphon_safe_date(%s) END", v, dateShape, v)
	case domain.TypeTimestamp:
		return fmt.Sprintf("CASE WHEN %s ~ '%s' THEN siphon_safe_timestamptz(%s) END", s, timestampShape, s)
	}
	return "NULL"
}
