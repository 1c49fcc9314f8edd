package checks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/custodia-labs/lakegate/internal/core/domain"
	"github.com/custodia-labs/lakegate/internal/core/ports/driven"
)

// Ensure ExpectationsCheck implements the interface.
var _ driven.Check = (*ExpectationsCheck)(nil)

// Supported expectation types.
const (
	ExpectColumnToExist        = "expect_column_to_exist"
	ExpectColumnValuesNotNull  = "expect_column_values_to_not_be_null"
	ExpectColumnValuesUnique   = "expect_column_values_to_be_unique"
	ExpectColumnValuesMatch    = "expect_column_values_to_match_regex"
	ExpectColumnValuesInSet    = "expect_column_values_to_be_in_set"
	ExpectColumnValuesBetween  = "expect_column_values_to_be_between"
	ExpectTableRowCountBetween = "expect_table_row_count_to_be_between"
)

// Suite is a declarative expectation suite.
type Suite struct {
	Name         string        `yaml:"expectation_suite_name"`
	Expectations []Expectation `yaml:"expectations"`
}

// Expectation is one entry of a suite.
type Expectation struct {
	Type   string `yaml:"expectation_type"`
	Kwargs Kwargs `yaml:"kwargs"`
}

// Kwargs are the arguments of an expectation. Which fields apply depends on the type.
type Kwargs struct {
	Column   string   `yaml:"column"`
	MinValue *float64 `yaml:"min_value"`
	MaxValue *float64 `yaml:"max_value"`
	ValueSet []any    `yaml:"value_set"`
	Regex    string   `yaml:"regex"`

	// Mostly is the fraction of non-null values that must satisfy the
	// expectation. Defaults to 1.
	Mostly *float64 `yaml:"mostly"`
}

// ParseSuite decodes a YAML suite.
func ParseSuite(data []byte) (*Suite, error) {
	var suite Suite
	if err := yaml.Unmarshal(data, &suite); err != nil {
		return nil, domain.ConfigError(fmt.Sprintf("parse expectation suite: %v", err), "")
	}
	return &suite, nil
}

// LoadSuite reads a suite from a local file if path exists on disk, otherwise
// from the blob store.
func LoadSuite(ctx context.Context, store driven.BlobStore, path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) || store == nil {
			return nil, domain.ConfigError(fmt.Sprintf("read expectation suite %s: %v", path, err), "")
		}
		data, err = store.Get(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("read expectation suite %s: %w", path, err)
		}
	}
	return ParseSuite(data)
}

// evaluator returns a violation message, or "" when the expectation holds.
type evaluator func(ds *domain.Dataset) string

// ExpectationsCheck evaluates a suite against the dataset.
type ExpectationsCheck struct {
	name       string
	evaluators []evaluator
}

// NewExpectationsCheck compiles suite. Unknown expectation types and invalid
// arguments are configuration errors. A nil or empty suite reports not_implemented.
func NewExpectationsCheck(suite *Suite) (*ExpectationsCheck, error) {
	c := &ExpectationsCheck{}
	if suite == nil {
		return c, nil
	}
	c.name = suite.Name
	for i, exp := range suite.Expectations {
		ev, err := compile(exp)
		if err != nil {
			return nil, domain.ConfigError(fmt.Sprintf("expectation %d (%s): %v", i, exp.Type, err), "")
		}
		c.evaluators = append(c.evaluators, ev)
	}
	return c, nil
}

// Name returns the check name.
func (c *ExpectationsCheck) Name() domain.CheckName {
	return domain.CheckExpectations
}

// Run evaluates every expectation and reports all that failed.
func (c *ExpectationsCheck) Run(_ context.Context, ds *domain.Dataset) (domain.CheckResult, error) {
	if len(c.evaluators) == 0 {
		return domain.NotImplemented("no expectation suite configured"), nil
	}
	var violations []string
	for _, ev := range c.evaluators {
		if msg := ev(ds); msg != "" {
			violations = append(violations, msg)
		}
	}
	if len(violations) > 0 {
		return domain.Fail("%s", domain.Violations(violations)), nil
	}
	return domain.Pass(), nil
}

//nolint:gocyclo // one case per expectation type
func compile(exp Expectation) (evaluator, error) {
	kw := exp.Kwargs
	needColumn := exp.Type != ExpectTableRowCountBetween
	if needColumn && kw.Column == "" {
		return nil, errors.New("column is required")
	}
	mostly := 1.0
	if kw.Mostly != nil {
		mostly = *kw.Mostly
	}

	switch exp.Type {
	case ExpectColumnToExist:
		return func(ds *domain.Dataset) string {
			for _, f := range ds.Fields() {
				if f == kw.Column {
					return ""
				}
			}
			return fmt.Sprintf("column %s does not exist", kw.Column)
		}, nil

	case ExpectColumnValuesNotNull:
		return func(ds *domain.Dataset) string {
			nulls := 0
			for _, rec := range ds.Records {
				if rec[kw.Column] == nil {
					nulls++
				}
			}
			total := ds.Len()
			if total == 0 || float64(total-nulls)/float64(total) >= mostly {
				return ""
			}
			return fmt.Sprintf("column %s has %d null values", kw.Column, nulls)
		}, nil

	case ExpectColumnValuesUnique:
		return func(ds *domain.Dataset) string {
			seen := make(map[string]bool)
			dups := 0
			for _, rec := range ds.Records {
				v := rec[kw.Column]
				if v == nil {
					continue
				}
				s := stringValue(v)
				if seen[s] {
					dups++
				}
				seen[s] = true
			}
			if dups == 0 {
				return ""
			}
			return fmt.Sprintf("column %s has %d duplicate values", kw.Column, dups)
		}, nil

	case ExpectColumnValuesMatch:
		re, err := regexp.Compile(kw.Regex)
		if err != nil {
			return nil, fmt.Errorf("regex: %w", err)
		}
		return columnValues(kw.Column, mostly, "do not match "+kw.Regex, func(v any) bool {
			return re.MatchString(stringValue(v))
		}), nil

	case ExpectColumnValuesInSet:
		if len(kw.ValueSet) == 0 {
			return nil, errors.New("value_set is required")
		}
		set := make(map[string]bool, len(kw.ValueSet))
		for _, v := range kw.ValueSet {
			set[stringValue(v)] = true
		}
		return columnValues(kw.Column, mostly, "are outside the value set", func(v any) bool {
			return set[stringValue(v)]
		}), nil

	case ExpectColumnValuesBetween:
		if kw.MinValue == nil && kw.MaxValue == nil {
			return nil, errors.New("min_value or max_value is required")
		}
		return columnValues(kw.Column, mostly, "are out of range", func(v any) bool {
			f, ok := numberValue(v)
			return ok && inRange(f, kw.MinValue, kw.MaxValue)
		}), nil

	case ExpectTableRowCountBetween:
		if kw.MinValue == nil && kw.MaxValue == nil {
			return nil, errors.New("min_value or max_value is required")
		}
		return func(ds *domain.Dataset) string {
			if inRange(float64(ds.Len()), kw.MinValue, kw.MaxValue) {
				return ""
			}
			return fmt.Sprintf("row count %d out of range", ds.Len())
		}, nil

	default:
		return nil, fmt.Errorf("unknown expectation type %q", exp.Type)
	}
}

// columnValues builds an evaluator over the non-null values of column.
func columnValues(column string, mostly float64, failure string, ok func(any) bool) evaluator {
	return func(ds *domain.Dataset) string {
		checked, bad := 0, 0
		for _, rec := range ds.Records {
			v := rec[column]
			if v == nil {
				continue
			}
			checked++
			if !ok(v) {
				bad++
			}
		}
		if checked == 0 || float64(checked-bad)/float64(checked) >= mostly {
			return ""
		}
		return fmt.Sprintf("%d values of %s %s", bad, column, failure)
	}
}

func numberValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func inRange(f float64, lo, hi *float64) bool {
	if lo != nil && f < *lo {
		return false
	}
	if hi != nil && f > *hi {
		return false
	}
	return true
}
