package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/lakegate/internal/core/domain"
)

func testConfig(t *testing.T) *domain.PipelineConfig {
	t.Helper()
	cfg := domain.DefaultPipelineConfig()
	cfg.DataDir = t.TempDir()
	cfg.BlobStore.Root = t.TempDir()
	cfg.Validation.UnimplementedPolicy = domain.PolicySkip
	require.NoError(t, cfg.Validate())
	return &cfg
}

func writeObject(t *testing.T, root, key, body string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(key))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

func TestWire_RunsBatchEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	writeObject(t, cfg.BlobStore.Root, "raw/orders.json",
		`[{"id": "1", "timestamp": "2024-03-01T09:00:00Z", "email": "a@example.com"}]`)
	writeObject(t, cfg.BlobStore.Root, "raw/users.json",
		`[{"timestamp": "2024-03-01T09:00:00Z", "email": "b@example.com"}]`)

	s, closeAll, err := wire(context.Background(), cfg)
	require.NoError(t, err)
	defer func() { assert.NoError(t, closeAll()) }()

	result, err := s.Coordinator.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, result.Curated, 1)
	assert.Len(t, result.Quarantined, 1)
	assert.Empty(t, result.Unevaluated)
	assert.Empty(t, result.TransformFailed)
	assert.NoError(t, result.CatalogErr)
	assert.NoError(t, result.MonitorErr)

	assert.FileExists(t, filepath.Join(cfg.BlobStore.Root, "quarantine", "users.json"))
	assert.NoFileExists(t, filepath.Join(cfg.BlobStore.Root, "raw", "orders.json"))

	runs, err := s.History.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, result.RunID, runs[0].RunID)

	tables, err := s.Catalog.Tables(context.Background())
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, "lakegate_orders", tables[0].Name)
}

func TestWire_SameNameDropIsEvaluatedAgain(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()
	writeObject(t, cfg.BlobStore.Root, "raw/orders.json",
		`[{"id": "1", "timestamp": "2024-03-01T09:00:00Z", "email": "a@example.com"}]`)

	s, closeAll, err := wire(ctx, cfg)
	require.NoError(t, err)
	defer func() { assert.NoError(t, closeAll()) }()

	first, err := s.Coordinator.Run(ctx)
	require.NoError(t, err)
	require.Len(t, first.Curated, 1)
	assert.NoFileExists(t, filepath.Join(cfg.BlobStore.Root, "staging", "orders.json"))

	// Re-running the same inbound key reports the committed outcome.
	rerun, err := s.Coordinator.RunBatch(ctx, []string{"raw/orders.json"})
	require.NoError(t, err)
	require.Len(t, rerun.Curated, 1)
	assert.Equal(t, first.Curated[0].CuratedLocation, rerun.Curated[0].CuratedLocation)
	assert.False(t, rerun.HasInfrastructureFailures())

	writeObject(t, cfg.BlobStore.Root, "raw/orders.json",
		`[{"id": "2", "timestamp": "2024-03-02T09:00:00Z", "email": "b@example.com"}]`)

	second, err := s.Coordinator.Run(ctx)
	require.NoError(t, err)
	require.Len(t, second.Curated, 1)
	assert.Equal(t, "raw/orders.json", second.Curated[0].Key)
	assert.NoFileExists(t, filepath.Join(cfg.BlobStore.Root, "raw", "orders.json"))

	data, err := os.ReadFile(filepath.Join(cfg.BlobStore.Root, filepath.FromSlash(second.Curated[0].CuratedLocation)))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"id":"2"`)
}

func TestWire_OptionalCollaborators(t *testing.T) {
	cfg := testConfig(t)

	s, closeAll, err := wire(context.Background(), cfg)
	require.NoError(t, err)
	defer closeAll()

	assert.Nil(t, s.DropWatch)
	assert.NotNil(t, s.Scheduler)
	assert.NotNil(t, s.Metrics)

	cfg = testConfig(t)
	cfg.Ingest.DropDir = t.TempDir()
	cfg.Ingest.RestURL = "http://127.0.0.1:1/export"
	cfg.Ingest.GraphQLEndpoint = "http://127.0.0.1:1/graphql"
	cfg.Ingest.GraphQLQuery = "{ orders { id } }"
	cfg.Ingest.GraphQLVariables = `{"limit": 5}`

	s, closeAll2, err := wire(context.Background(), cfg)
	require.NoError(t, err)
	defer closeAll2()

	assert.NotNil(t, s.DropWatch)
}

func TestWire_BadExpectationSuite(t *testing.T) {
	cfg := testConfig(t)
	cfg.Validation.ExpectationSuite = "suites/missing.yaml"

	_, _, err := wire(context.Background(), cfg)

	assert.Error(t, err)
}

func TestOpenBlobStore_FilesystemNeedsRoot(t *testing.T) {
	cfg := domain.DefaultPipelineConfig()

	_, err := openBlobStore(context.Background(), &cfg)

	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestOpenBlobStore_FilesystemDefaultsUnderDataDir(t *testing.T) {
	cfg := domain.DefaultPipelineConfig()
	cfg.DataDir = t.TempDir()

	_, err := openBlobStore(context.Background(), &cfg)

	require.NoError(t, err)
	assert.DirExists(t, filepath.Join(cfg.DataDir, "lake"))
}

func TestBootstrap_MissingConfigFile(t *testing.T) {
	_, _, err := bootstrap(filepath.Join(t.TempDir(), "missing.toml"))

	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestOpenConfigStore_ExplicitPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "lakegate.toml")

	store, err := openConfigStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Set("notify.topic", "lake.alerts"))

	assert.Equal(t, path, store.Path())
	assert.FileExists(t, path)
}
