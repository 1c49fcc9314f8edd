package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/custodia-labs/lakegate/internal/core/domain"
	"github.com/custodia-labs/lakegate/internal/core/ports/driven"
	"github.com/custodia-labs/lakegate/internal/logger"
)

var (
	_ driven.Catalog       = (*Catalog)(nil)
	_ driven.CatalogReader = (*Catalog)(nil)
)

// Catalog crawls a blob prefix and records one table per dataset name.
// Columns are inferred from the most recent object of each table, so a
// field that stops arriving is reported as removed.
type Catalog struct {
	store       *Store
	blobs       driven.BlobStore
	tablePrefix string
	now         func() time.Time
}

// crawled is what one refresh found for a table.
type crawled struct {
	latest  string
	objects int
}

// Refresh re-crawls target. Tables that fail to load are skipped and
// reported together; the others are still updated.
func (c *Catalog) Refresh(ctx context.Context, target string) error {
	keys, err := c.blobs.List(ctx, target)
	if err != nil {
		return fmt.Errorf("listing %s: %w", target, err)
	}

	tables := make(map[string]*crawled)
	for _, key := range keys {
		if !domain.IsSupported(key) {
			continue
		}
		name := domain.CatalogTableName(c.tablePrefix, key)
		t, ok := tables[name]
		if !ok {
			t = &crawled{}
			tables[name] = t
		}
		t.objects++
		if key > t.latest {
			t.latest = key
		}
	}

	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	sort.Strings(names)

	now := c.now()
	var errs []error
	for _, name := range names {
		if err := c.refreshTable(ctx, name, tables[name], now); err != nil {
			logger.With(logger.FieldKey, tables[name].latest).Warn("catalog table %s not refreshed: %v", name, err)
			errs = append(errs, fmt.Errorf("table %s: %w", name, err))
		}
	}
	logger.Debug("Catalog refreshed %d tables under %s", len(names)-len(errs), target)
	return errors.Join(errs...)
}

func (c *Catalog) refreshTable(ctx context.Context, name string, t *crawled, now time.Time) error {
	data, err := c.blobs.Get(ctx, t.latest)
	if err != nil {
		return err
	}
	ds, err := domain.DecodeDataset(t.latest, data)
	if err != nil {
		return err
	}
	columns := domain.InferColumns(ds.Records)

	tx, err := c.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var existing int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM catalog_tables WHERE name = ?", name).Scan(&existing); err != nil {
		return fmt.Errorf("checking table: %w", err)
	}
	if existing > 0 {
		before, err := queryColumns(ctx, tx, name)
		if err != nil {
			return err
		}
		for _, ch := range domain.DiffColumns(name, before, columns, now) {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO catalog_changes (table_name, column_name, kind, type, detected_at)
				VALUES (?, ?, ?, ?, ?)
			`, ch.Table, ch.Column, string(ch.Kind), ch.Type, formatTime(ch.DetectedAt))
			if err != nil {
				return fmt.Errorf("recording schema change: %w", err)
			}
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO catalog_tables (name, location, objects, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			location = excluded.location,
			objects = excluded.objects,
			updated_at = excluded.updated_at
	`, name, t.latest, t.objects, formatTime(now))
	if err != nil {
		return fmt.Errorf("saving table: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM catalog_columns WHERE table_name = ?", name); err != nil {
		return fmt.Errorf("clearing columns: %w", err)
	}
	for _, col := range columns {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO catalog_columns (table_name, name, type) VALUES (?, ?, ?)",
			name, col.Name, col.Type)
		if err != nil {
			return fmt.Errorf("saving column %s: %w", col.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing table: %w", err)
	}
	return nil
}

// Tables returns every catalog table with its columns, sorted by name.
func (c *Catalog) Tables(ctx context.Context) ([]domain.CatalogTable, error) {
	rows, err := c.store.db.QueryContext(ctx,
		"SELECT name, location, objects, updated_at FROM catalog_tables ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("querying catalog tables: %w", err)
	}
	defer rows.Close()

	var tables []domain.CatalogTable //nolint:prealloc // size unknown from query
	for rows.Next() {
		var t domain.CatalogTable
		var updatedAt string
		if err := rows.Scan(&t.Name, &t.Location, &t.Objects, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning catalog table: %w", err)
		}
		t.UpdatedAt = parseTime(updatedAt)
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating catalog tables: %w", err)
	}
	rows.Close()

	for i := range tables {
		cols, err := queryColumns(ctx, c.store.db, tables[i].Name)
		if err != nil {
			return nil, err
		}
		tables[i].Columns = cols
	}
	return tables, nil
}

// SchemaChanges returns column changes detected at or after since, oldest first.
func (c *Catalog) SchemaChanges(ctx context.Context, since time.Time) ([]domain.SchemaChange, error) {
	rows, err := c.store.db.QueryContext(ctx, `
		SELECT table_name, column_name, kind, type, detected_at
		FROM catalog_changes WHERE detected_at >= ? ORDER BY id
	`, formatTime(since))
	if err != nil {
		return nil, fmt.Errorf("querying schema changes: %w", err)
	}
	defer rows.Close()

	var changes []domain.SchemaChange //nolint:prealloc // size unknown from query
	for rows.Next() {
		var ch domain.SchemaChange
		var kind, detectedAt string
		if err := rows.Scan(&ch.Table, &ch.Column, &kind, &ch.Type, &detectedAt); err != nil {
			return nil, fmt.Errorf("scanning schema change: %w", err)
		}
		ch.Kind = domain.ChangeKind(kind)
		ch.DetectedAt = parseTime(detectedAt)
		changes = append(changes, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating schema changes: %w", err)
	}
	return changes, nil
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryColumns(ctx context.Context, q querier, table string) ([]domain.CatalogColumn, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT name, type FROM catalog_columns WHERE table_name = ? ORDER BY name", table)
	if err != nil {
		return nil, fmt.Errorf("querying columns of %s: %w", table, err)
	}
	defer rows.Close()

	var cols []domain.CatalogColumn //nolint:prealloc // size unknown from query
	for rows.Next() {
		var col domain.CatalogColumn
		if err := rows.Scan(&col.Name, &col.Type); err != nil {
			return nil, fmt.Errorf("scanning column: %w", err)
		}
		cols = append(cols, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating columns of %s: %w", table, err)
	}
	return cols, nil
}
