// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
//   - SourceClient: Fetches records from a paginated source API
//   - SourceClientFactory: Creates source clients from dataset config
//   - Destination: One dataset's staging, promotion and view storage
//   - DestinationOpener: Opens destinations from dataset config
//   - DatasetStore: Dataset configuration persistence
//   - RunStore: Run history persistence
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or connector package
package driven
