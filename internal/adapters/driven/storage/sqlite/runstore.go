package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/custodia-labs/lakegate/internal/core/domain"
	"github.com/custodia-labs/lakegate/internal/core/ports/driven"
)

// runStore implements driven.RunStore.
type runStore struct {
	store *Store
}

var _ driven.RunStore = (*runStore)(nil)

// SaveRun stores a run and its items, replacing any previous record with the same ID.
func (s *runStore) SaveRun(ctx context.Context, run *domain.RunRecord) error {
	if run == nil || run.RunID == "" {
		return domain.ErrInvalidInput
	}

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, started_at, ended_at, batch_ts, curated, quarantined,
			unevaluated, transform_failed, catalog_error, monitor_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			started_at = excluded.started_at,
			ended_at = excluded.ended_at,
			batch_ts = excluded.batch_ts,
			curated = excluded.curated,
			quarantined = excluded.quarantined,
			unevaluated = excluded.unevaluated,
			transform_failed = excluded.transform_failed,
			catalog_error = excluded.catalog_error,
			monitor_error = excluded.monitor_error
	`, run.RunID, formatTime(run.StartedAt), formatTime(run.EndedAt), run.BatchTimestamp,
		run.Curated, run.Quarantined, run.Unevaluated, run.TransformFail,
		nullString(run.CatalogError), nullString(run.MonitorError))
	if err != nil {
		return fmt.Errorf("saving run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM run_items WHERE run_id = ?", run.RunID); err != nil {
		return fmt.Errorf("clearing run items: %w", err)
	}
	for i, item := range run.Items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO run_items (run_id, position, key, class, stage, reason, destination, error, stale_digest)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, run.RunID, i, item.Key, string(item.Class), nullString(string(item.Stage)),
			nullString(item.Reason), nullString(item.Destination), nullString(item.Error),
			nullString(item.StaleDigest))
		if err != nil {
			return fmt.Errorf("saving run item %s: %w", item.Key, err)
		}
		if item.StaleDigest == "" {
			continue
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO stale_sources (key, digest, run_id, recorded_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET
				digest = excluded.digest,
				run_id = excluded.run_id,
				recorded_at = excluded.recorded_at
		`, item.Key, item.StaleDigest, run.RunID, formatTime(run.EndedAt))
		if err != nil {
			return fmt.Errorf("recording stale source %s: %w", item.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID including its items.
func (s *runStore) GetRun(ctx context.Context, runID string) (*domain.RunRecord, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT run_id, started_at, ended_at, batch_ts, curated, quarantined,
			unevaluated, transform_failed, catalog_error, monitor_error
		FROM runs WHERE run_id = ?
	`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.store.db.QueryContext(ctx, `
		SELECT key, class, stage, reason, destination, error, stale_digest
		FROM run_items WHERE run_id = ? ORDER BY position
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying run items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.RunItem
		var class string
		var stage, reason, dest, errMsg, digest sql.NullString
		if err := rows.Scan(&item.Key, &class, &stage, &reason, &dest, &errMsg, &digest); err != nil {
			return nil, fmt.Errorf("scanning run item: %w", err)
		}
		item.Class = domain.OutcomeClass(class)
		item.Stage = domain.Stage(stage.String)
		item.Reason = reason.String
		item.Destination = dest.String
		item.Error = errMsg.String
		item.StaleDigest = digest.String
		run.Items = append(run.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating run items: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs without items, newest first.
func (s *runStore) ListRuns(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT run_id, started_at, ended_at, batch_ts, curated, quarantined,
			unevaluated, transform_failed, catalog_error, monitor_error
		FROM runs ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.RunRecord //nolint:prealloc // size unknown from query
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	return runs, nil
}

// PruneRuns keeps the most recent 'keep' runs and deletes the rest.
func (s *runStore) PruneRuns(ctx context.Context, keep int) error {
	if keep < 0 {
		return domain.ErrInvalidInput
	}
	_, err := s.store.db.ExecContext(ctx, `
		DELETE FROM runs
		WHERE run_id NOT IN (
			SELECT run_id FROM runs ORDER BY started_at DESC LIMIT ?
		)
	`, keep)
	if err != nil {
		return fmt.Errorf("pruning runs: %w", err)
	}
	return nil
}

// StaleSources returns every recorded stale source, oldest first.
func (s *runStore) StaleSources(ctx context.Context) ([]domain.StaleSource, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT key, digest, run_id, recorded_at FROM stale_sources ORDER BY recorded_at, key
	`)
	if err != nil {
		return nil, fmt.Errorf("querying stale sources: %w", err)
	}
	defer rows.Close()

	var sources []domain.StaleSource //nolint:prealloc // size unknown from query
	for rows.Next() {
		var src domain.StaleSource
		var recordedAt string
		if err := rows.Scan(&src.Key, &src.Digest, &src.RunID, &recordedAt); err != nil {
			return nil, fmt.Errorf("scanning stale source: %w", err)
		}
		src.RecordedAt = parseTime(recordedAt)
		sources = append(sources, src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating stale sources: %w", err)
	}
	return sources, nil
}

// ClearStaleSource forgets key.
func (s *runStore) ClearStaleSource(ctx context.Context, key string) error {
	if _, err := s.store.db.ExecContext(ctx, "DELETE FROM stale_sources WHERE key = ?", key); err != nil {
		return fmt.Errorf("clearing stale source %s: %w", key, err)
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*domain.RunRecord, error) {
	var run domain.RunRecord
	var startedAt, endedAt string
	var catalogErr, monitorErr sql.NullString
	err := row.Scan(&run.RunID, &startedAt, &endedAt, &run.BatchTimestamp,
		&run.Curated, &run.Quarantined, &run.Unevaluated, &run.TransformFail,
		&catalogErr, &monitorErr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning run: %w", err)
	}
	run.StartedAt = parseTime(startedAt)
	run.EndedAt = parseTime(endedAt)
	run.CatalogError = catalogErr.String
	run.MonitorError = monitorErr.String
	return &run, nil
}
