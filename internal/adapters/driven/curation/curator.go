// Package curation implements the transformation and curation step: it casts
// and enriches staged records and writes the enriched and curated copies.
package curation

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/lakegate/internal/core/domain"
	"github.com/custodia-labs/lakegate/internal/core/ports/driven"
	"github.com/custodia-labs/lakegate/internal/logger"
)

// Ensure Curator implements the interface.
var _ driven.Curator = (*Curator)(nil)

// Derived and cast field names.
const (
	FieldID        = "id"
	FieldTimestamp = "timestamp"
	FieldYear      = "year"
	FieldMonth     = "month"
)

// OutputExt is the extension of enriched and curated objects.
const OutputExt = ".jsonl"

// timestampLayouts are tried in order when a timestamp is a string.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Curator reads staged items and writes their enriched and curated forms.
type Curator struct {
	store    driven.BlobStore
	lookup   driven.LookupSource
	prefixes domain.Prefixes
}

// New creates a curator. lookup may be nil, which skips enrichment.
func New(store driven.BlobStore, lookup driven.LookupSource, prefixes domain.Prefixes) *Curator {
	return &Curator{store: store, lookup: lookup, prefixes: prefixes}
}

// EnrichAndCurate transforms stagedKey and returns the curated key.
func (c *Curator) EnrichAndCurate(ctx context.Context, stagedKey string, batchTime time.Time) (string, error) {
	data, err := c.store.Get(ctx, stagedKey)
	if err != nil {
		return "", transformErr("read "+stagedKey, err)
	}
	ds, err := domain.DecodeDataset(stagedKey, data)
	if err != nil {
		return "", transformErr("decode "+stagedKey, err)
	}
	if ds.Len() == 0 {
		return "", transformErr(stagedKey, errors.New("no records"))
	}

	records := make([]domain.Record, 0, ds.Len())
	for i, rec := range ds.Records {
		out, err := normalise(rec)
		if err != nil {
			return "", transformErr(fmt.Sprintf("record %d", i), err)
		}
		records = append(records, out)
	}

	if c.lookup != nil {
		if err := c.enrich(ctx, records); err != nil {
			return "", transformErr("lookup", err)
		}
	}

	records = dedupe(records)

	year, month, err := partition(records)
	if err != nil {
		return "", transformErr(stagedKey, err)
	}

	body, err := domain.EncodeNDJSON(records)
	if err != nil {
		return "", transformErr("encode", err)
	}

	enrichedKey, curatedKey := c.Locations(stagedKey, batchTime, year, month)
	if err := c.store.Put(ctx, enrichedKey, body); err != nil {
		return "", transformErr("write "+enrichedKey, err)
	}
	if err := c.store.Put(ctx, curatedKey, body); err != nil {
		return "", transformErr("write "+curatedKey, err)
	}

	logger.With(logger.FieldKey, stagedKey, logger.FieldCount, len(records)).
		Debug("curated to %s", curatedKey)
	return curatedKey, nil
}

// Locations returns the enriched and curated keys for a staged item:
// <enriched>year=YYYY/month=MM/<batchts>/<name>.jsonl and
// <curated><batchts>/year=YYYY/month=MM/<name>.jsonl.
func (c *Curator) Locations(stagedKey string, batchTime time.Time, year, month int) (string, string) {
	name := c.outputName(stagedKey)
	ts := batchTime.UTC().Format(domain.BatchTimestampLayout)
	part := fmt.Sprintf("year=%04d/month=%02d", year, month)

	enriched := c.prefixes.Enriched + part + "/" + ts + "/" + name
	curated := c.prefixes.Curated + ts + "/" + part + "/" + name
	return enriched, curated
}

// CuratedLocation returns the newest curated key written for stagedKey, or ""
// when there is none. Curated keys sort by batch timestamp.
func (c *Curator) CuratedLocation(ctx context.Context, stagedKey string) (string, error) {
	name := c.outputName(stagedKey)
	keys, err := c.store.List(ctx, c.prefixes.Curated)
	if err != nil {
		return "", fmt.Errorf("list %s: %w", c.prefixes.Curated, err)
	}
	latest := ""
	for _, key := range keys {
		parts := strings.SplitN(strings.TrimPrefix(key, c.prefixes.Curated), "/", curatedDepth+1)
		if len(parts) == curatedDepth+1 && parts[curatedDepth] == name && key > latest {
			latest = key
		}
	}
	return latest, nil
}

// curatedDepth counts the batch timestamp and partition segments that precede
// the item name in a curated key.
var curatedDepth = strings.Count(domain.BatchTimestampLayout, "/") + 1 + 2

func (c *Curator) outputName(stagedKey string) string {
	name := c.prefixes.Relative(stagedKey)
	return strings.TrimSuffix(name, path.Ext(name)) + OutputExt
}

// enrich left-joins lookup records on id. Fields already on the record win.
func (c *Curator) enrich(ctx context.Context, records []domain.Record) error {
	ids := make([]string, 0, len(records))
	seen := make(map[string]bool, len(records))
	for _, rec := range records {
		id := rec[FieldID].(string)
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	refs, err := c.lookup.Lookup(ctx, ids)
	if err != nil {
		return err
	}
	for _, rec := range records {
		ref, ok := refs[rec[FieldID].(string)]
		if !ok {
			continue
		}
		for k, v := range ref {
			if _, exists := rec[k]; !exists {
				rec[k] = v
			}
		}
	}
	return nil
}

// normalise casts id and timestamp and derives year and month.
func normalise(rec domain.Record) (domain.Record, error) {
	out := make(domain.Record, len(rec)+2)
	for k, v := range rec {
		out[k] = v
	}

	id, err := castID(rec[FieldID])
	if err != nil {
		return nil, err
	}
	ts, err := castTimestamp(rec[FieldTimestamp])
	if err != nil {
		return nil, err
	}

	out[FieldID] = id
	out[FieldTimestamp] = ts.Format(time.RFC3339)
	out[FieldYear] = ts.Year()
	out[FieldMonth] = int(ts.Month())
	return out, nil
}

func castID(v any) (string, error) {
	switch id := v.(type) {
	case nil:
		return "", errors.New("id is missing")
	case string:
		if id == "" {
			return "", errors.New("id is empty")
		}
		return id, nil
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64), nil
	case bool:
		return "", fmt.Errorf("id %v is not a string or number", id)
	default:
		return fmt.Sprint(id), nil
	}
}

func castTimestamp(v any) (time.Time, error) {
	switch ts := v.(type) {
	case nil:
		return time.Time{}, errors.New("timestamp is missing")
	case float64:
		return time.Unix(int64(ts), 0).UTC(), nil
	case string:
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, ts); err == nil {
				return t.UTC(), nil
			}
		}
		if secs, err := strconv.ParseInt(ts, 10, 64); err == nil {
			return time.Unix(secs, 0).UTC(), nil
		}
		return time.Time{}, fmt.Errorf("timestamp %q is not a recognised time", ts)
	default:
		return time.Time{}, fmt.Errorf("timestamp %v is not a recognised time", ts)
	}
}

// dedupe keeps the first record for each id.
func dedupe(records []domain.Record) []domain.Record {
	seen := make(map[string]bool, len(records))
	out := records[:0]
	for _, rec := range records {
		id := rec[FieldID].(string)
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, rec)
	}
	return out
}

// partition returns the year and month shared by every record.
func partition(records []domain.Record) (int, int, error) {
	year, month := records[0][FieldYear].(int), records[0][FieldMonth].(int)
	for i, rec := range records[1:] {
		if rec[FieldYear].(int) != year || rec[FieldMonth].(int) != month {
			return 0, 0, fmt.Errorf("multi-partition input: record %d is in %04d-%02d, record 0 in %04d-%02d",
				i+1, rec[FieldYear], rec[FieldMonth], year, month)
		}
	}
	return year, month, nil
}

func transformErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrTransform, err)
}
