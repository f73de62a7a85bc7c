// Package domain defines the core business entities for Siphon.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Record: One schemaless unit fetched from a source API
//   - StagedPayload: A canonically encoded record in the staging area
//   - Dataset: A configured ingestion pipeline (source, destination, view)
//   - Run: One execution of the pipeline for a dataset
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
