package checks

import (
	"context"
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/custodia-labs/lakegate/internal/core/domain"
	"github.com/custodia-labs/lakegate/internal/core/ports/driven"
)

// Ensure SchemaCheck implements the interface.
var _ driven.Check = (*SchemaCheck)(nil)

// SchemaCheck validates every record against a JSON Schema from a registry.
type SchemaCheck struct {
	registry     driven.SchemaRegistry
	registryName string
	schemaName   string

	mu     sync.Mutex
	schema *gojsonschema.Schema
}

// NewSchemaCheck creates a schema check. With no registry or schema name
// configured it reports not_implemented.
func NewSchemaCheck(registry driven.SchemaRegistry, registryName, schemaName string) *SchemaCheck {
	return &SchemaCheck{
		registry:     registry,
		registryName: registryName,
		schemaName:   schemaName,
	}
}

// Name returns the check name.
func (c *SchemaCheck) Name() domain.CheckName {
	return domain.CheckSchema
}

// Run validates each record. A schema that cannot be fetched or compiled is
// returned as an error because the item could not be evaluated.
func (c *SchemaCheck) Run(ctx context.Context, ds *domain.Dataset) (domain.CheckResult, error) {
	if c.registry == nil || c.registryName == "" || c.schemaName == "" {
		return domain.NotImplemented("no schema registry configured"), nil
	}

	schema, err := c.load(ctx)
	if err != nil {
		return domain.CheckResult{}, err
	}

	var violations []string
	for i, rec := range ds.Records {
		result, err := schema.Validate(gojsonschema.NewGoLoader(rec))
		if err != nil {
			violations = append(violations, fmt.Sprintf("record %d: %v", i, err))
			continue
		}
		for _, re := range result.Errors() {
			violations = append(violations, fmt.Sprintf("record %d: %s", i, re.String()))
		}
	}
	if len(violations) > 0 {
		return domain.Fail("%s", domain.Violations(violations)), nil
	}
	return domain.Pass(), nil
}

func (c *SchemaCheck) load(ctx context.Context) (*gojsonschema.Schema, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.schema != nil {
		return c.schema, nil
	}

	doc, err := c.registry.Schema(ctx, c.registryName, c.schemaName)
	if err != nil {
		return nil, fmt.Errorf("fetch schema %s/%s: %w", c.registryName, c.schemaName, err)
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("compile schema %s/%s: %w: %w", c.registryName, c.schemaName, domain.ErrConfiguration, err)
	}
	c.schema = schema
	return schema, nil
}

// BlobSchemaRegistry serves schema documents stored in the blob store under
// <prefix><registry>/<name>.json.
type BlobSchemaRegistry struct {
	store  driven.BlobStore
	prefix string
}

// Ensure BlobSchemaRegistry implements the interface.
var _ driven.SchemaRegistry = (*BlobSchemaRegistry)(nil)

// DefaultSchemaPrefix is where schema documents live in the blob store.
const DefaultSchemaPrefix = "schemas/"

// NewBlobSchemaRegistry creates a registry rooted at prefix.
func NewBlobSchemaRegistry(store driven.BlobStore, prefix string) *BlobSchemaRegistry {
	if prefix == "" {
		prefix = DefaultSchemaPrefix
	}
	return &BlobSchemaRegistry{store: store, prefix: prefix}
}

// Schema returns the schema document for (registry, name).
func (r *BlobSchemaRegistry) Schema(ctx context.Context, registry, name string) ([]byte, error) {
	return r.store.Get(ctx, r.prefix+registry+"/"+name+".json")
}
