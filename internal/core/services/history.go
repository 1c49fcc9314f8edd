package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/custodia-labs/lakegate/internal/core/domain"
	"github.com/custodia-labs/lakegate/internal/core/ports/driven"
	"github.com/custodia-labs/lakegate/internal/core/ports/driving"
)

// Ensure RunHistory implements the interface.
var _ driving.RunHistory = (*RunHistory)(nil)

// RunHistory serves persisted run summaries.
type RunHistory struct {
	runs driven.RunStore
}

// NewRunHistory creates a run history service over a run store.
func NewRunHistory(runs driven.RunStore) *RunHistory {
	return &RunHistory{runs: runs}
}

// List returns the most recent runs, newest first.
func (h *RunHistory) List(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	if limit < 0 {
		return nil, fmt.Errorf("limit %d: %w", limit, domain.ErrInvalidInput)
	}
	return h.runs.ListRuns(ctx, limit)
}

// Get returns one run with its items. A unique run-id prefix is accepted.
func (h *RunHistory) Get(ctx context.Context, runID string) (*domain.RunRecord, error) {
	if runID == "" {
		return nil, domain.ErrInvalidInput
	}
	run, err := h.runs.GetRun(ctx, runID)
	if err == nil || !errors.Is(err, domain.ErrNotFound) {
		return run, err
	}

	recent, listErr := h.runs.ListRuns(ctx, 0)
	if listErr != nil {
		return nil, err
	}
	var match string
	for _, r := range recent {
		if strings.HasPrefix(r.RunID, runID) {
			if match != "" {
				return nil, fmt.Errorf("run id prefix %q is ambiguous: %w", runID, domain.ErrInvalidInput)
			}
			match = r.RunID
		}
	}
	if match == "" {
		return nil, err
	}
	return h.runs.GetRun(ctx, match)
}
