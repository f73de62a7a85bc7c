package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Dialect identifies the destination database flavour.
type Dialect string

const (
	// DialectSQLite targets an embedded SQLite file via modernc.
	DialectSQLite Dialect = "sqlite"
	// DialectPostgres targets a PostgreSQL server.
	DialectPostgres Dialect = "postgres"
	// DialectMySQL targets a MySQL or MariaDB server.
	DialectMySQL Dialect = "mysql"
)

// AuthScheme selects how the access key is presented to the source API.
type AuthScheme string

const (
	// AuthSchemeNone sends no credential; public datasets only.
	AuthSchemeNone AuthScheme = "none"
	// AuthSchemeAppToken sends the key as an X-App-Token header, the
	// Socrata convention.
	AuthSchemeAppToken AuthScheme = "app-token"
	// AuthSchemeBearer sends the key as an OAuth2 bearer token.
	AuthSchemeBearer AuthScheme = "bearer"
)

// PageMode selects the pagination strategy.
type PageMode string

const (
	// PageModeOffset advances $offset by the page's record count.
	PageModeOffset PageMode = "offset"
	// PageModeCursor follows RFC 5988 Link rel="next" headers.
	PageModeCursor PageMode = "cursor"
)

// Dataset is the configuration record a dataset id resolves to. It
// carries everything one pipeline run needs: where to fetch, how to
// authenticate, where to load, and how to project.
type Dataset struct {
	// ID is the unique identifier used on the command line.
	ID string

	// Name is a human-readable label.
	Name string

	// Source describes the upstream API.
	Source SourceConfig

	// Destination describes the relational target.
	Destination DestinationConfig

	// View declares the typed read-time projection.
	View ViewSpec

	// Retry is the backoff policy for transient fetch failures.
	Retry RetryPolicy

	// Schedule is an optional 5-field cron expression for the
	// scheduler daemon. Empty means manual runs only.
	Schedule string

	// CreatedAt is when the dataset was registered.
	CreatedAt time.Time

	// UpdatedAt is when the dataset was last modified.
	UpdatedAt time.Time
}

// SourceConfig describes the upstream paginated API.
type SourceConfig struct {
	// Endpoint is the resource URL returning a JSON array per page.
	Endpoint string

	// AccessKey is the static credential, either a literal or an
	// "env:NAME" reference resolved at run time.
	AccessKey string

	// Auth selects how the access key is presented.
	Auth AuthScheme

	// PageSize is the $limit per request.
	PageSize int

	// Pagination selects offset or cursor mode.
	Pagination PageMode

	// RateLimit is the client-side request budget in requests per
	// second. Zero applies the package default.
	RateLimit float64
}

// DestinationConfig describes the relational target of a dataset.
type DestinationConfig struct {
	// Dialect selects the database flavour.
	Dialect Dialect

	// DSN is the driver connection string, or an "env:NAME" reference.
	DSN string

	// Table is the destination table name. The staging table and the
	// swap table derive from it (<table>__staging, <table>__next).
	Table string
}

// DefaultPageSize applies when a dataset does not set one.
const DefaultPageSize = 1000

// DefaultRateLimit applies when a dataset does not set one.
const DefaultRateLimit = 5.0

// identRe bounds every name interpolated into generated SQL. Anything
// else must be rejected at validation time, not quoted at query time.
var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether s is safe to use as a table, view or
// column name in generated SQL.
func ValidIdentifier(s string) bool {
	return identRe.MatchString(s)
}

// Validate checks the dataset for the mistakes that would otherwise
// surface mid-run: missing endpoints, unsafe identifiers, unknown
// dialects, empty natural keys.
func (d *Dataset) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("%w: dataset id is required", ErrInvalidInput)
	}
	if strings.ContainsAny(d.ID, " \t\n") {
		return fmt.Errorf("%w: dataset id %q contains whitespace", ErrInvalidInput, d.ID)
	}
	if d.Source.Endpoint == "" {
		return fmt.Errorf("%w: source endpoint is required", ErrInvalidInput)
	}
	if !strings.HasPrefix(d.Source.Endpoint, "http://") && !strings.HasPrefix(d.Source.Endpoint, "https://") {
		return fmt.Errorf("%w: source endpoint %q is not an http(s) URL", ErrInvalidInput, d.Source.Endpoint)
	}
	if d.Source.PageSize < 0 {
		return fmt.Errorf("%w: page size must not be negative", ErrInvalidInput)
	}
	switch d.Source.Auth {
	case AuthSchemeNone, AuthSchemeAppToken, AuthSchemeBearer, "":
	default:
		return fmt.Errorf("%w: unknown auth scheme %q", ErrInvalidInput, d.Source.Auth)
	}
	switch d.Source.Pagination {
	case PageModeOffset, PageModeCursor, "":
	default:
		return fmt.Errorf("%w: unknown pagination mode %q", ErrInvalidInput, d.Source.Pagination)
	}
	switch d.Destination.Dialect {
	case DialectSQLite, DialectPostgres, DialectMySQL:
	default:
		return fmt.Errorf("%w: unknown dialect %q", ErrInvalidInput, d.Destination.Dialect)
	}
	if d.Destination.DSN == "" {
		return fmt.Errorf("%w: destination DSN is required", ErrInvalidInput)
	}
	if !ValidIdentifier(d.Destination.Table) {
		return fmt.Errorf("%w: destination table %q is not a valid identifier", ErrInvalidInput, d.Destination.Table)
	}
	if err := d.View.Validate(); err != nil {
		return err
	}
	if err := d.Retry.Validate(); err != nil {
		return err
	}
	return nil
}

// EffectivePageSize returns the configured page size or the default.
func (d *Dataset) EffectivePageSize() int {
	if d.Source.PageSize > 0 {
		return d.Source.PageSize
	}
	return DefaultPageSize
}

// EffectiveRateLimit returns the configured rate limit or the default.
func (d *Dataset) EffectiveRateLimit() float64 {
	if d.Source.RateLimit > 0 {
		return d.Source.RateLimit
	}
	return DefaultRateLimit
}

// EffectiveViewName returns the configured view name or the
// <table>_typed default.
func (d *Dataset) EffectiveViewName() string {
	if d.View.Name != "" {
		return d.View.Name
	}
	return d.Destination.Table + "_typed"
}

// StagingTable returns the staging table name derived from the
// destination table.
func (d *Dataset) StagingTable() string {
	return d.Destination.Table + "__staging"
}

// SwapTable returns the build-side table name used during promotion.
func (d *Dataset) SwapTable() string {
	return d.Destination.Table + "__next"
}

// RetryPolicy bounds the exponential backoff applied to transient
// fetch failures. Zero values fall back to the package defaults at
// Delay time, so a dataset written before a field existed keeps
// working.
type RetryPolicy struct {
	// MaxRetries is how many times a failed request is retried before
	// the run fails. The first attempt does not count.
	MaxRetries int

	// BaseDelay is the first backoff step.
	BaseDelay time.Duration

	// MaxDelay caps the exponential growth.
	MaxDelay time.Duration
}

// DefaultRetryPolicy returns the package defaults: 4 retries, 500ms
// base, 30s ceiling.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 4,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   30 * time.Second,
	}
}

// Validate rejects negative fields.
func (p RetryPolicy) Validate() error {
	if p.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries must not be negative", ErrInvalidInput)
	}
	if p.BaseDelay < 0 || p.MaxDelay < 0 {
		return fmt.Errorf("%w: retry delays must not be negative", ErrInvalidInput)
	}
	return nil
}

// Delay returns the backoff before retry attempt n (0-based):
// base * 2^n, capped at MaxDelay.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = DefaultRetryPolicy().BaseDelay
	}
	maxd := p.MaxDelay
	if maxd <= 0 {
		maxd = DefaultRetryPolicy().MaxDelay
	}
	if attempt < 0 {
		attempt = 0
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= maxd {
			return maxd
		}
	}
	if d > maxd {
		return maxd
	}
	return d
}

// Retries returns the configured retry ceiling or the default.
func (p RetryPolicy) Retries() int {
	if p.MaxRetries > 0 {
		return p.MaxRetries
	}
	return DefaultRetryPolicy().MaxRetries
}
