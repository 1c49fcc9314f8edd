package curation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/lakegate/internal/adapters/driven/blobstore/memory"
	"github.com/custodia-labs/lakegate/internal/core/domain"
)

type mockLookup struct {
	refs  map[string]domain.Record
	err   error
	calls [][]string
}

func (m *mockLookup) Lookup(_ context.Context, ids []string) (map[string]domain.Record, error) {
	m.calls = append(m.calls, ids)
	if m.err != nil {
		return nil, m.err
	}
	out := make(map[string]domain.Record)
	for _, id := range ids {
		if ref, ok := m.refs[id]; ok {
			out[id] = ref
		}
	}
	return out, nil
}

var batchTime = time.Date(2024, 3, 21, 10, 30, 0, 0, time.UTC)

func setupCurator(t *testing.T, key, content string, lookup *mockLookup) (*Curator, *memory.Store) {
	t.Helper()
	store := memory.New()
	require.NoError(t, store.Put(context.Background(), key, []byte(content)))
	var c *Curator
	if lookup != nil {
		c = New(store, lookup, domain.DefaultPrefixes())
	} else {
		c = New(store, nil, domain.DefaultPrefixes())
	}
	return c, store
}

func readCurated(t *testing.T, store *memory.Store, key string) []domain.Record {
	t.Helper()
	data, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	ds, err := domain.DecodeDataset(key, data)
	require.NoError(t, err)
	return ds.Records
}

func TestCurator_EnrichAndCurate(t *testing.T) {
	lookup := &mockLookup{refs: map[string]domain.Record{
		"1": {"id": "1", "segment": "gold", "email": "ignored@example.com"},
	}}
	c, store := setupCurator(t, "staging/orders.json", `[
		{"id": 1, "timestamp": "2024-03-05 10:00:00", "email": "a@example.com"},
		{"id": "2", "timestamp": "2024-03-20T08:00:00Z", "email": "b@example.com"},
		{"id": "1", "timestamp": "2024-03-06", "email": "dup@example.com"}
	]`, lookup)

	key, err := c.EnrichAndCurate(context.Background(), "staging/orders.json", batchTime)
	require.NoError(t, err)
	assert.Equal(t, "curated/2024/03/21/103000/year=2024/month=03/orders.jsonl", key)

	records := readCurated(t, store, key)
	require.Len(t, records, 2, "duplicate ids are dropped")

	first := records[0]
	assert.Equal(t, "1", first["id"])
	assert.Equal(t, "2024-03-05T10:00:00Z", first["timestamp"])
	assert.Equal(t, 2024.0, first["year"])
	assert.Equal(t, 3.0, first["month"])
	assert.Equal(t, "gold", first["segment"])
	assert.Equal(t, "a@example.com", first["email"], "record fields win over lookup fields")

	assert.Equal(t, "2", records[1]["id"])
	assert.Nil(t, records[1]["segment"])

	enriched := readCurated(t, store, "enriched/year=2024/month=03/2024/03/21/103000/orders.jsonl")
	assert.Equal(t, records, enriched)

	require.Len(t, lookup.calls, 1)
	assert.Equal(t, []string{"1", "2"}, lookup.calls[0])

	ok, _ := store.Exists(context.Background(), "staging/orders.json")
	assert.True(t, ok, "the staged item is left in place")
}

func TestCurator_Deterministic(t *testing.T) {
	c, store := setupCurator(t, "staging/orders.json",
		`{"id":"1","timestamp":"2024-03-05T10:00:00Z","b":2,"a":1}`, nil)
	ctx := context.Background()

	key1, err := c.EnrichAndCurate(ctx, "staging/orders.json", batchTime)
	require.NoError(t, err)
	first, _ := store.Get(ctx, key1)

	key2, err := c.EnrichAndCurate(ctx, "staging/orders.json", batchTime)
	require.NoError(t, err)
	second, _ := store.Get(ctx, key2)

	assert.Equal(t, key1, key2)
	assert.Equal(t, first, second)
	assert.Equal(t, 3, store.Len(), "staged, enriched and curated objects only")
}

func TestCurator_CastsTimestamps(t *testing.T) {
	tests := []struct {
		name string
		ts   string
		want string
	}{
		{"rfc3339", `"2024-03-01T10:00:00+02:00"`, "2024-03-01T08:00:00Z"},
		{"space separated", `"2024-03-01 10:00:00"`, "2024-03-01T10:00:00Z"},
		{"date only", `"2024-03-01"`, "2024-03-01T00:00:00Z"},
		{"unix number", `1709287200`, "2024-03-01T10:00:00Z"},
		{"unix string", `"1709287200"`, "2024-03-01T10:00:00Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, store := setupCurator(t, "staging/t.json", `{"id":"1","timestamp":`+tt.ts+`}`, nil)
			key, err := c.EnrichAndCurate(context.Background(), "staging/t.json", batchTime)
			require.NoError(t, err)
			assert.Equal(t, tt.want, readCurated(t, store, key)[0]["timestamp"])
		})
	}
}

func TestCurator_CSV(t *testing.T) {
	c, store := setupCurator(t, "staging/users.csv", "id,timestamp,name\n7,2024-03-02,ann\n", nil)

	key, err := c.EnrichAndCurate(context.Background(), "staging/users.csv", batchTime)
	require.NoError(t, err)
	assert.Equal(t, "curated/2024/03/21/103000/year=2024/month=03/users.jsonl", key)
	assert.Equal(t, "ann", readCurated(t, store, key)[0]["name"])
}

func TestCurator_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		lookup  *mockLookup
		want    string
	}{
		{"multi partition", `[{"id":"1","timestamp":"2024-02-28"},{"id":"2","timestamp":"2024-03-01"}]`, nil, "multi-partition input"},
		{"bad timestamp", `{"id":"1","timestamp":"yesterday"}`, nil, "not a recognised time"},
		{"missing id", `{"timestamp":"2024-03-01"}`, nil, "id is missing"},
		{"missing timestamp", `{"id":"1"}`, nil, "timestamp is missing"},
		{"empty", `[]`, nil, "no records"},
		{"undecodable", `{nope`, nil, "decode"},
		{"lookup failure", `{"id":"1","timestamp":"2024-03-01"}`, &mockLookup{err: domain.ErrTransient}, "lookup"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, store := setupCurator(t, "staging/x.json", tt.content, tt.lookup)

			_, err := c.EnrichAndCurate(context.Background(), "staging/x.json", batchTime)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrTransform))
			assert.Contains(t, err.Error(), tt.want)
			assert.Equal(t, 1, store.Len(), "nothing is written on failure")
		})
	}
}

func TestCurator_MissingStagedItem(t *testing.T) {
	c := New(memory.New(), nil, domain.DefaultPrefixes())

	_, err := c.EnrichAndCurate(context.Background(), "staging/gone.json", batchTime)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrTransform))
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestCurator_Locations(t *testing.T) {
	c := New(memory.New(), nil, domain.DefaultPrefixes())

	enriched, curated := c.Locations("staging/api/rest/2024/03/01/103000.json", batchTime, 2024, 3)
	assert.Equal(t, "enriched/year=2024/month=03/2024/03/21/103000/api/rest/2024/03/01/103000.jsonl", enriched)
	assert.Equal(t, "curated/2024/03/21/103000/year=2024/month=03/api/rest/2024/03/01/103000.jsonl", curated)
}

func TestCurator_CuratedLocation(t *testing.T) {
	ctx := context.Background()
	c, store := setupCurator(t, "staging/orders.json",
		`[{"id":"1","timestamp":"2024-03-05T10:00:00Z"}]`, nil)

	loc, err := c.CuratedLocation(ctx, "staging/orders.json")
	require.NoError(t, err)
	assert.Empty(t, loc)

	first, err := c.EnrichAndCurate(ctx, "staging/orders.json", batchTime)
	require.NoError(t, err)
	second, err := c.EnrichAndCurate(ctx, "staging/orders.json", batchTime.Add(time.Hour))
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "curated/2024/03/22/000000/year=2024/month=03/other/orders.jsonl", []byte("{}")))

	loc, err = c.CuratedLocation(ctx, "staging/orders.json")
	require.NoError(t, err)
	assert.NotEqual(t, first, loc)
	assert.Equal(t, second, loc, "the newest batch wins")

	nested, err := c.CuratedLocation(ctx, "staging/other/orders.json")
	require.NoError(t, err)
	assert.Equal(t, "curated/2024/03/22/000000/year=2024/month=03/other/orders.jsonl", nested)
}
