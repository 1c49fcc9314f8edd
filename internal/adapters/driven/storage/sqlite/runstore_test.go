package sqlite

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/lakegate/internal/core/domain"
)

func testRun(id string, started time.Time) *domain.RunRecord {
	return &domain.RunRecord{
		RunID:          id,
		StartedAt:      started,
		EndedAt:        started.Add(2 * time.Second),
		BatchTimestamp: started.Format(domain.BatchTimestampLayout),
		Curated:        1,
		Quarantined:    1,
		Unevaluated:    1,
		Items: []domain.RunItem{
			{Key: "raw/a.json", Class: domain.ClassCurated, Destination: "curated/a.jsonl"},
			{Key: "raw/b.json", Class: domain.ClassQuarantined, Stage: domain.StageRoute, Reason: "record_rules", Destination: "quarantine/b.json"},
			{Key: "raw/c.json", Class: domain.ClassUnevaluated, Stage: domain.StageValidate, Error: "transient error"},
		},
	}
}

func TestRunStore_SaveAndGet(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	runs := store.RunStore()

	started := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)
	run := testRun("run-1", started)
	run.CatalogError = "crawler unavailable"
	require.NoError(t, runs.SaveRun(ctx, run))

	got, err := runs.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", got.RunID)
	assert.True(t, started.Equal(got.StartedAt))
	assert.Equal(t, "2024/03/01/103000", got.BatchTimestamp)
	assert.Equal(t, 1, got.Curated)
	assert.Equal(t, "crawler unavailable", got.CatalogError)
	assert.Empty(t, got.MonitorError)
	assert.Equal(t, run.Items, got.Items)
}

func TestRunStore_SaveReplacesItems(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	runs := store.RunStore()

	run := testRun("run-1", time.Now())
	require.NoError(t, runs.SaveRun(ctx, run))

	run.Items = run.Items[:1]
	run.Quarantined, run.Unevaluated = 0, 0
	require.NoError(t, runs.SaveRun(ctx, run))

	got, err := runs.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, got.Items, 1)
	assert.Equal(t, 0, got.Quarantined)
}

func TestRunStore_GetRun_NotFound(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	_, err := store.RunStore().GetRun(context.Background(), "missing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestRunStore_SaveRun_Invalid(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	assert.ErrorIs(t, store.RunStore().SaveRun(context.Background(), nil), domain.ErrInvalidInput)
	assert.ErrorIs(t, store.RunStore().SaveRun(context.Background(), &domain.RunRecord{}), domain.ErrInvalidInput)
}

func TestRunStore_ListAndPrune(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	runs := store.RunStore()

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, runs.SaveRun(ctx, testRun(fmt.Sprintf("run-%d", i), base.Add(time.Duration(i)*time.Hour))))
	}

	list, err := runs.ListRuns(ctx, 3)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "run-4", list[0].RunID, "newest first")
	assert.Equal(t, "run-2", list[2].RunID)
	assert.Empty(t, list[0].Items, "list omits items")

	all, err := runs.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	require.NoError(t, runs.PruneRuns(ctx, 2))
	all, err = runs.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "run-4", all[0].RunID)
	assert.Equal(t, "run-3", all[1].RunID)

	var orphans int
	require.NoError(t, store.db.QueryRow(
		"SELECT COUNT(*) FROM run_items WHERE run_id NOT IN (SELECT run_id FROM runs)").Scan(&orphans))
	assert.Equal(t, 0, orphans, "items of pruned runs are removed")

	assert.ErrorIs(t, runs.PruneRuns(ctx, -1), domain.ErrInvalidInput)
}

func TestRunStore_StaleSources(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	runs := store.RunStore()

	started := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	run := testRun("run-1", started)
	run.Items[0].StaleDigest = domain.Digest([]byte("a"))
	require.NoError(t, runs.SaveRun(ctx, run))

	got, err := runs.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, run.Items, got.Items)

	sources, err := runs.StaleSources(ctx)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "raw/a.json", sources[0].Key)
	assert.Equal(t, domain.Digest([]byte("a")), sources[0].Digest)
	assert.Equal(t, "run-1", sources[0].RunID)
	assert.True(t, run.EndedAt.Equal(sources[0].RecordedAt))

	// A later run with the same key replaces the record.
	later := testRun("run-2", started.Add(time.Hour))
	later.Items[0].StaleDigest = domain.Digest([]byte("a2"))
	require.NoError(t, runs.SaveRun(ctx, later))

	// Records outlive pruning.
	require.NoError(t, runs.PruneRuns(ctx, 0))

	sources, err = runs.StaleSources(ctx)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "run-2", sources[0].RunID)
	assert.Equal(t, domain.Digest([]byte("a2")), sources[0].Digest)

	require.NoError(t, runs.ClearStaleSource(ctx, "raw/a.json"))
	require.NoError(t, runs.ClearStaleSource(ctx, "raw/unknown.json"))
	sources, err = runs.StaleSources(ctx)
	require.NoError(t, err)
	assert.Empty(t, sources)
}
