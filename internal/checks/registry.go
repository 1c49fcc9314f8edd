// Package checks provides the validator chain check implementations.
package checks

import (
	"context"
	"fmt"
	"sort"

	"github.com/custodia-labs/lakegate/internal/core/domain"
	"github.com/custodia-labs/lakegate/internal/core/ports/driven"
)

// Deps are the collaborators checks may need when they are built.
type Deps struct {
	// Store is used to load expectation suites stored as blobs.
	Store driven.BlobStore

	// Schemas resolves JSON Schema documents. Nil disables schema conformance.
	Schemas driven.SchemaRegistry
}

// BuilderFunc creates a Check from the validation settings.
type BuilderFunc func(ctx context.Context, cfg domain.ValidationConfig, deps Deps) (driven.Check, error)

// Registry maps check names to their builders.
// It allows the chain to be assembled from configuration.
type Registry struct {
	builders map[domain.CheckName]BuilderFunc
}

// NewRegistry creates a new check registry.
func NewRegistry() *Registry {
	return &Registry{
		builders: make(map[domain.CheckName]BuilderFunc),
	}
}

// Register adds a check builder to the registry.
// Name should be unique and match the check's Name() return value.
func (r *Registry) Register(name domain.CheckName, builder BuilderFunc) {
	r.builders[name] = builder
}

// Build creates a check by name.
// Returns error if the check name is not registered.
func (r *Registry) Build(ctx context.Context, name domain.CheckName, cfg domain.ValidationConfig, deps Deps) (driven.Check, error) {
	builder, ok := r.builders[name]
	if !ok {
		return nil, fmt.Errorf("unknown check: %s", name)
	}
	return builder(ctx, cfg, deps)
}

// Has returns true if a check with the given name is registered.
func (r *Registry) Has(name domain.CheckName) bool {
	_, ok := r.builders[name]
	return ok
}

// Names returns all registered check names in priority order.
func (r *Registry) Names() []domain.CheckName {
	names := make([]domain.CheckName, 0, len(r.builders))
	for name := range r.builders {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		pi, pj := names[i].Priority(), names[j].Priority()
		if pi != pj {
			return pi < pj
		}
		return names[i] < names[j]
	})
	return names
}

// RegisterDefaults installs the four built-in checks.
func RegisterDefaults(r *Registry) {
	r.Register(domain.CheckSchema, func(_ context.Context, cfg domain.ValidationConfig, deps Deps) (driven.Check, error) {
		return NewSchemaCheck(deps.Schemas, cfg.SchemaRegistry, cfg.SchemaName), nil
	})
	r.Register(domain.CheckRecordRules, func(_ context.Context, cfg domain.ValidationConfig, _ Deps) (driven.Check, error) {
		return NewRulesCheck(cfg.RequiredFields, cfg.Formats)
	})
	r.Register(domain.CheckStatistics, func(_ context.Context, cfg domain.ValidationConfig, _ Deps) (driven.Check, error) {
		return NewStatsCheck(cfg.MinRows, cfg.Completeness), nil
	})
	r.Register(domain.CheckExpectations, func(ctx context.Context, cfg domain.ValidationConfig, deps Deps) (driven.Check, error) {
		if cfg.ExpectationSuite == "" {
			return NewExpectationsCheck(nil)
		}
		suite, err := LoadSuite(ctx, deps.Store, cfg.ExpectationSuite)
		if err != nil {
			return nil, err
		}
		return NewExpectationsCheck(suite)
	})
}

// BuildChain builds every registered check in priority order.
func BuildChain(ctx context.Context, r *Registry, cfg domain.ValidationConfig, deps Deps) ([]driven.Check, error) {
	names := r.Names()
	checks := make([]driven.Check, 0, len(names))
	for _, name := range names {
		check, err := r.Build(ctx, name, cfg, deps)
		if err != nil {
			return nil, fmt.Errorf("build check %s: %w", name, err)
		}
		checks = append(checks, check)
	}
	return checks, nil
}
