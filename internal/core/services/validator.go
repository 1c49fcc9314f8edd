package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/custodia-labs/lakegate/internal/core/domain"
	"github.com/custodia-labs/lakegate/internal/core/ports/driven"
	"github.com/custodia-labs/lakegate/internal/core/ports/driving"
	"github.com/custodia-labs/lakegate/internal/logger"
)

// Ensure ValidatorChain implements the interface.
var _ driving.Validator = (*ValidatorChain)(nil)

// ValidatorChain runs checks in priority order and stops at the first failure.
// It never writes to the blob store and never notifies.
type ValidatorChain struct {
	store  driven.BlobStore
	checks []driven.Check
	policy domain.UnimplementedPolicy
}

// NewValidatorChain creates a chain over the given checks.
// Checks are sorted by priority regardless of the order they are passed in.
func NewValidatorChain(
	store driven.BlobStore,
	policy domain.UnimplementedPolicy,
	checks ...driven.Check,
) *ValidatorChain {
	sorted := append([]driven.Check(nil), checks...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Name().Priority() < sorted[j].Name().Priority()
	})
	if !policy.IsValid() {
		policy = domain.PolicyFail
	}
	return &ValidatorChain{store: store, checks: sorted, policy: policy}
}

// Checks returns the check names in execution order.
func (v *ValidatorChain) Checks() []domain.CheckName {
	names := make([]domain.CheckName, 0, len(v.checks))
	for _, c := range v.checks {
		names = append(names, c.Name())
	}
	return names
}

// Validate reads key and runs the chain over its decoded content.
func (v *ValidatorChain) Validate(ctx context.Context, key string) (domain.Verdict, error) {
	data, err := v.store.Get(ctx, key)
	if err != nil {
		return domain.Verdict{}, domain.MarkInfrastructure(fmt.Errorf("read %s: %w", key, err))
	}

	// Content that cannot be decoded fails conformance, it is not an infrastructure fault.
	ds, err := domain.DecodeDataset(key, data)
	if err != nil {
		return domain.FailedVerdict(domain.CheckSchema, err.Error()), nil
	}

	return v.Evaluate(ctx, ds)
}

// Evaluate runs the chain over an already decoded dataset.
func (v *ValidatorChain) Evaluate(ctx context.Context, ds *domain.Dataset) (domain.Verdict, error) {
	var skipped []domain.CheckName
	for _, check := range v.checks {
		name := check.Name()
		result, err := check.Run(ctx, ds)
		if err != nil {
			return domain.Verdict{}, domain.MarkInfrastructure(fmt.Errorf("check %s: %w", name, err))
		}

		switch result.Outcome {
		case domain.OutcomePass:
			continue
		case domain.OutcomeNotImplemented:
			if v.policy == domain.PolicySkip {
				logger.With(logger.FieldKey, ds.Key, logger.FieldCheck, name).Debug("check not implemented, skipping")
				skipped = append(skipped, name)
				continue
			}
			detail := "not implemented"
			if result.Detail != "" {
				detail += ": " + result.Detail
			}
			return domain.FailedVerdict(name, detail), nil
		default:
			return domain.FailedVerdict(name, result.Detail), nil
		}
	}
	return domain.PassedVerdict(skipped...), nil
}
