// Package sqlite provides the SQLite-backed application-state store.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that
// requires no CGO, enabling easy cross-compilation. It holds state that is
// local to the machine running siphon, currently:
//
//   - RunStore: pipeline run history
//
// Destination databases are a separate concern; see the sqldb package. Run
// history stays local so a run against a remote warehouse can be inspected
// even when the warehouse is unreachable.
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory as .up.sql files.
//
// # Data Location
//
// By default, the database is stored at ~/.siphon/data/state.db
//
// # Thread Safety
//
// All operations are thread-safe. The store uses database-level locking
// provided by SQLite in WAL mode.
package sqlite
