package driven

import (
	"context"

	"github.com/custodia-labs/lakegate/internal/core/domain"
)

// Check is one step of the validator chain.
// Checks are pure: they read the decoded dataset and never write or notify.
type Check interface {
	// Name identifies the check in verdicts and configuration.
	Name() domain.CheckName

	// Run evaluates the dataset. A returned error means the check could not
	// reach a conclusion (for example an unreachable schema registry) and is
	// never a verdict.
	Run(ctx context.Context, ds *domain.Dataset) (domain.CheckResult, error)
}

// SchemaRegistry resolves JSON Schema documents.
type SchemaRegistry interface {
	// Schema returns the schema document registered under (registry, name).
	// Returns domain.ErrNotFound if it does not exist.
	Schema(ctx context.Context, registry, name string) ([]byte, error)
}
