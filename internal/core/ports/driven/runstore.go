package driven

import (
	"context"

	"github.com/custodia-labs/lakegate/internal/core/domain"
)

// StaleSourceStore tracks inbound keys whose delete failed after routing.
type StaleSourceStore interface {
	// StaleSources returns every recorded stale source, one per key.
	StaleSources(ctx context.Context) ([]domain.StaleSource, error)

	// ClearStaleSource forgets key. Clearing an unknown key is not an error.
	ClearStaleSource(ctx context.Context, key string) error
}

// RunStore persists run history.
// SaveRun records a stale source for every item with a StaleDigest.
type RunStore interface {
	StaleSourceStore

	// SaveRun stores a run and its items, replacing any previous record with the same ID.
	SaveRun(ctx context.Context, run *domain.RunRecord) error

	// GetRun retrieves a run by ID including its items.
	// Returns domain.ErrNotFound if the run does not exist.
	GetRun(ctx context.Context, runID string) (*domain.RunRecord, error)

	// ListRuns returns the most recent runs without items, newest first.
	ListRuns(ctx context.Context, limit int) ([]domain.RunRecord, error)

	// PruneRuns keeps the most recent 'keep' runs and deletes the rest.
	PruneRuns(ctx context.Context, keep int) error
}
