package checks

import (
	"context"
	"fmt"
	"sort"

	"github.com/custodia-labs/lakegate/internal/core/domain"
	"github.com/custodia-labs/lakegate/internal/core/ports/driven"
)

// Ensure StatsCheck implements the interface.
var _ driven.Check = (*StatsCheck)(nil)

// StatsCheck enforces dataset size and per-field completeness.
type StatsCheck struct {
	minRows      int
	completeness map[string]float64
}

// NewStatsCheck creates a statistics check. The dataset must hold more than
// minRows records, and each field in completeness must be non-null in at
// least that fraction of records.
func NewStatsCheck(minRows int, completeness map[string]float64) *StatsCheck {
	c := &StatsCheck{minRows: minRows, completeness: make(map[string]float64, len(completeness))}
	for field, ratio := range completeness {
		c.completeness[field] = ratio
	}
	return c
}

// Name returns the check name.
func (c *StatsCheck) Name() domain.CheckName {
	return domain.CheckStatistics
}

// Run computes the statistics over the dataset.
func (c *StatsCheck) Run(_ context.Context, ds *domain.Dataset) (domain.CheckResult, error) {
	total := ds.Len()
	if total <= c.minRows {
		return domain.Fail("dataset has %d records, need more than %d", total, c.minRows), nil
	}

	fields := make([]string, 0, len(c.completeness))
	for field := range c.completeness {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var violations []string
	for _, field := range fields {
		nonNull := 0
		for _, rec := range ds.Records {
			if rec[field] != nil {
				nonNull++
			}
		}
		ratio := float64(nonNull) / float64(total)
		if ratio < c.completeness[field] {
			violations = append(violations,
				fmt.Sprintf("%s completeness %.2f below %.2f", field, ratio, c.completeness[field]))
		}
	}
	if len(violations) > 0 {
		return domain.Fail("%s", domain.Violations(violations)), nil
	}
	return domain.Pass(), nil
}
