package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/lib/pq"              // PostgreSQL driver
	_ "modernc.org/sqlite"             // SQLite driver without cgo

	"github.com/tidewater-labs/siphon-cli/internal/core/domain"
	"github.com/tidewater-labs/siphon-cli/internal/core/ports/driven"
)

// Store is one dataset's destination database handle: its staging
// table, swap table, typed view and run lock.
type Store struct {
	db *sql.DB
	ds *domain.Dataset
	d  dialect
}

var _ driven.Destination = (*Store)(nil)

// Opener implements driven.DestinationOpener over database/sql.
type Opener struct{}

var _ driven.DestinationOpener = (*Opener)(nil)

// NewOpener returns the SQL destination opener.
func NewOpener() *Opener {
	return &Opener{}
}

// Open connects to the dataset's destination database.
func (*Opener) Open(ctx context.Context, ds *domain.Dataset) (driven.Destination, error) {
	return Open(ctx, ds)
}

// Open connects to ds's destination, verifies the connection and
// creates the staging and control tables when missing. An env: DSN
// reference is resolved here, never stored.
func Open(ctx context.Context, ds *domain.Dataset) (*Store, error) {
	if ds == nil {
		return nil, domain.ErrInvalidInput
	}
	d, err := dialectFor(ds.Destination.Dialect)
	if err != nil {
		return nil, err
	}
	raw, err := domain.ResolveSecret(ds.Destination.DSN)
	if err != nil {
		return nil, fmt.Errorf("destination DSN: %w", err)
	}
	dsn, err := d.DataSourceName(raw)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(d.Driver(), dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s destination: %w", d.Name(), err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to %s destination: %w", d.Name(), err)
	}

	for _, stmt := range d.EnsureSchemaSQL(ds) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("preparing destination schema: %w", err)
		}
	}

	return &Store{db: db, ds: ds, d: d}, nil
}

// Ping verifies the destination connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the destination connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// tableExists checks the current schema for a table.
func (s *Store) tableExists(ctx context.Context, name string) (bool, error) {
	var n int
	row := s.db.QueryRowContext(ctx, s.d.TableExistsSQL(), name)
	if err := row.Scan(&n); err != nil {
		return false, fmt.Errorf("checking table %s: %w", name, err)
	}
	return n > 0, nil
}

// AcquireLock claims the dataset's run lock. The lock row's primary
// key makes the insert race-safe: exactly one contender can create it.
func (s *Store) AcquireLock(ctx context.Context, token string) error {
	if token == "" {
		return fmt.Errorf("%w: empty lock token", domain.ErrInvalidInput)
	}
	q := s.d.Rebind(fmt.Sprintf(
		"INSERT INTO %s (dataset, token, acquired_at) VALUES (?, ?, ?)", locksTable))
	_, err := s.db.ExecContext(ctx, q, s.ds.ID, token, s.d.BindTime(time.Now()))
	if err == nil {
		return nil
	}

	// The insert failed; if a holder row exists the lock is taken,
	// otherwise report the original failure.
	var holder string
	row := s.db.QueryRowContext(ctx,
		s.d.Rebind(fmt.Sprintf("SELECT token FROM %s WHERE dataset = ?", locksTable)), s.ds.ID)
	if scanErr := row.Scan(&holder); scanErr == nil {
		if holder == token {
			return nil
		}
		return fmt.Errorf("%w: dataset %q is locked by another run", domain.ErrRunInProgress, s.ds.ID)
	}
	return fmt.Errorf("acquiring run lock: %w", err)
}

// ReleaseLock releases the lock when the token matches the holder. A
// lock that is already gone is not an error.
func (s *Store) ReleaseLock(ctx context.Context, token string) error {
	res, err := s.db.ExecContext(ctx,
		s.d.Rebind(fmt.Sprintf("DELETE FROM %s WHERE dataset = ? AND token = ?", locksTable)),
		s.ds.ID, token)
	if err != nil {
		return fmt.Errorf("releasing run lock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("releasing run lock: %w", err)
	}
	if n == 0 {
		var holder string
		row := s.db.QueryRowContext(ctx,
			s.d.Rebind(fmt.Sprintf("SELECT token FROM %s WHERE dataset = ?", locksTable)), s.ds.ID)
		if scanErr := row.Scan(&holder); scanErr == nil && holder != token {
			return fmt.Errorf("run lock for %q is held by a different run", s.ds.ID)
		}
	}
	return nil
}

// BreakLock removes the dataset's lock regardless of holder.
func (s *Store) BreakLock(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		s.d.Rebind(fmt.Sprintf("DELETE FROM %s WHERE dataset = ?", locksTable)), s.ds.ID)
	if err != nil {
		return fmt.Errorf("breaking run lock: %w", err)
	}
	return nil
}
