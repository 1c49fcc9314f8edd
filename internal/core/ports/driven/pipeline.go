package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/lakegate/internal/core/domain"
)

// Curator transforms a staged item into enriched and curated output.
type Curator interface {
	// EnrichAndCurate reads stagedKey, transforms it and writes the curated copy.
	// Returns the curated key. Failures are wrapped with domain.ErrTransform.
	// Running it twice for the same input produces the same output.
	EnrichAndCurate(ctx context.Context, stagedKey string, batchTime time.Time) (string, error)

	// CuratedLocation returns the most recent curated key written for stagedKey,
	// or "" when the item was never curated.
	CuratedLocation(ctx context.Context, stagedKey string) (string, error)
}

// Catalog keeps dataset metadata in step with a storage prefix.
type Catalog interface {
	// Refresh re-crawls target and updates the table definitions found under it.
	Refresh(ctx context.Context, target string) error
}

// CatalogReader exposes what the catalog recorded.
type CatalogReader interface {
	// Tables returns every catalog table with its columns, sorted by name.
	Tables(ctx context.Context) ([]domain.CatalogTable, error)

	// SchemaChanges returns column changes detected at or after since.
	SchemaChanges(ctx context.Context, since time.Time) ([]domain.SchemaChange, error)
}

// Monitor observes the outcome of each batch.
type Monitor interface {
	// Observe records metrics and checks for drift. It runs once per batch.
	Observe(ctx context.Context, result *domain.BatchResult) error
}

// Ingestor lands upstream data under the inbound prefix.
type Ingestor interface {
	// Name identifies the ingestor in logs.
	Name() string

	// Ingest pulls whatever is available and returns the inbound keys written.
	Ingest(ctx context.Context, batchTime time.Time) ([]string, error)
}

// LookupSource provides reference records for enrichment.
type LookupSource interface {
	// Lookup returns the reference record for each id it knows.
	// Unknown ids are absent from the result.
	Lookup(ctx context.Context, ids []string) (map[string]domain.Record, error)
}
