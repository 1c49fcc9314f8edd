package driving

import (
	"context"

	"github.com/custodia-labs/lakegate/internal/core/domain"
)

// Validator runs the validator chain for one item.
type Validator interface {
	// Validate reads key and returns its verdict. A returned error means the
	// item could not be evaluated and is never equivalent to a verdict.
	Validate(ctx context.Context, key string) (domain.Verdict, error)
}

// Router moves an evaluated item to staging or quarantine.
type Router interface {
	// Route relocates key according to verdict and notifies on quarantine.
	Route(ctx context.Context, key string, verdict domain.Verdict) (domain.RoutingOutcome, error)

	// Reconcile removes inbound copies of items that already reached a destination.
	Reconcile(ctx context.Context) (domain.ReconcileReport, error)
}

// Coordinator drives items through validate, route and curate.
type Coordinator interface {
	// RunBatch processes keys and partitions them into outcome classes.
	// On cancellation the partial result is returned together with ctx.Err().
	RunBatch(ctx context.Context, keys []string) (*domain.BatchResult, error)

	// Run ingests, lists the inbound zone and processes everything found.
	Run(ctx context.Context) (*domain.BatchResult, error)
}

// RunHistory reads persisted run summaries.
type RunHistory interface {
	// List returns the most recent runs, newest first.
	List(ctx context.Context, limit int) ([]domain.RunRecord, error)

	// Get returns one run with its items.
	Get(ctx context.Context, runID string) (*domain.RunRecord, error)
}
