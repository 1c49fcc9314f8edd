// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the application to function:
//
//   - BlobStore: Object storage holding every zone (memory, filesystem, S3)
//   - Check: One validator chain check
//   - Notifier: Publishes quarantine and drift notifications
//   - Curator: Transforms a staged item into curated output
//   - ConfigStore: Application configuration
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - Catalog: Refreshed once per batch. Without it, no catalog stage runs.
//   - CatalogReader: Recorded tables and schema changes, used for drift detection.
//   - Monitor: Observes each batch result. Without it, no monitoring stage runs.
//   - Ingestor: Lands upstream data under the inbound prefix before a run.
//   - SchemaRegistry: Resolves JSON Schema documents for the schema check.
//   - LookupSource: Reference data for enrichment. Without it, enrichment is skipped.
//   - RunStore: Run history. The blob store stays the source of truth for item location.
//   - StaleSourceStore: Sources left behind by a failed delete, part of RunStore.
//     Without it, reconcile only removes sources whose routed copy still exists.
//   - SchedulerStore: Scheduled task state for the serve loop.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or checks package
package driven
