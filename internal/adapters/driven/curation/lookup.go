package curation

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/lakegate/internal/core/domain"
	"github.com/custodia-labs/lakegate/internal/core/ports/driven"
)

// Ensure SQLLookup implements the interface.
var _ driven.LookupSource = (*SQLLookup)(nil)

// lookupBatch bounds the number of ids bound into one query.
const lookupBatch = 500

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLLookup reads reference rows from a table keyed by an id column.
type SQLLookup struct {
	db    *sql.DB
	table string
	owned bool
}

// OpenLookup opens the SQLite database at dsn and reads from table.
func OpenLookup(dsn, table string) (*SQLLookup, error) {
	if !identifier.MatchString(table) {
		return nil, domain.ConfigError(fmt.Sprintf("invalid lookup table name %q", table), "")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening lookup database: %w", err)
	}
	l := &SQLLookup{db: db, table: table, owned: true}
	return l, nil
}

// NewSQLLookup reads from table over an existing connection.
func NewSQLLookup(db *sql.DB, table string) (*SQLLookup, error) {
	if !identifier.MatchString(table) {
		return nil, domain.ConfigError(fmt.Sprintf("invalid lookup table name %q", table), "")
	}
	return &SQLLookup{db: db, table: table}, nil
}

// Close closes the database if OpenLookup opened it.
func (l *SQLLookup) Close() error {
	if !l.owned {
		return nil
	}
	return l.db.Close()
}

// Lookup returns the row for each known id. Every column becomes a field.
func (l *SQLLookup) Lookup(ctx context.Context, ids []string) (map[string]domain.Record, error) {
	out := make(map[string]domain.Record, len(ids))
	for start := 0; start < len(ids); start += lookupBatch {
		end := start + lookupBatch
		if end > len(ids) {
			end = len(ids)
		}
		if err := l.lookupBatch(ctx, ids[start:end], out); err != nil {
			return nil, domain.MarkInfrastructure(err)
		}
	}
	return out, nil
}

func (l *SQLLookup) lookupBatch(ctx context.Context, ids []string, out map[string]domain.Record) error {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	query := fmt.Sprintf("SELECT * FROM %s WHERE id IN (%s)", l.table, placeholders) //nolint:gosec // table name is validated

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("querying %s: %w", l.table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("reading columns of %s: %w", l.table, err)
	}
	idIdx := -1
	for i, col := range cols {
		if strings.EqualFold(col, "id") {
			idIdx = i
		}
	}
	if idIdx < 0 {
		return fmt.Errorf("%w: table %s has no id column", domain.ErrConfiguration, l.table)
	}

	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("scanning %s row: %w", l.table, err)
		}

		rec := make(domain.Record, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				rec[col] = string(b)
				continue
			}
			rec[col] = values[i]
		}
		out[fmt.Sprint(rec[cols[idIdx]])] = rec
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating %s: %w", l.table, err)
	}
	return nil
}
