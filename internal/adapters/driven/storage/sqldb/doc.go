// Package sqldb implements the destination port over database/sql for
// the three supported dialects: SQLite, PostgreSQL and MySQL.
//
// Each Store is scoped to a single dataset and owns that dataset's
// staging table, swap table, typed view and run lock inside the
// configured destination database. Dialect differences are isolated
// behind the dialect interface; the store logic itself is shared.
package sqldb
