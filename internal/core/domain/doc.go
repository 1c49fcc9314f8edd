// Package domain defines the core business entities for lakegate.
//
// This package is part of the hexagonal architecture's innermost layer.
// It defines the fundamental types:
//
//   - Item: A blob under a zone prefix (inbound, staging, quarantine, ...)
//   - Verdict: The outcome of running the validator chain on one item
//   - RoutingOutcome: Where an item was moved and whether anyone was told
//   - BatchResult: The partitioned outcome of one coordinator run
//   - PipelineConfig: Startup configuration, immutable for a run
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. All other packages depend on
// domain, never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library, github.com/cockroachdb/errors
//   - Cannot Import: Any internal/ package
package domain
