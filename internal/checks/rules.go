package checks

import (
	"context"
	"fmt"
	"regexp"
	"sort"

	"github.com/custodia-labs/lakegate/internal/core/domain"
	"github.com/custodia-labs/lakegate/internal/core/ports/driven"
)

// Ensure RulesCheck implements the interface.
var _ driven.Check = (*RulesCheck)(nil)

type formatRule struct {
	field string
	re    *regexp.Regexp
}

// RulesCheck enforces required fields and per-field format patterns on every record.
type RulesCheck struct {
	required []string
	formats  []formatRule
}

// NewRulesCheck compiles the rules. A field with a format rule must be
// present and contain a match of its pattern.
func NewRulesCheck(required []string, formats map[string]string) (*RulesCheck, error) {
	c := &RulesCheck{required: append([]string(nil), required...)}

	fields := make([]string, 0, len(formats))
	for field := range formats {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		re, err := regexp.Compile(formats[field])
		if err != nil {
			return nil, domain.ConfigError(fmt.Sprintf("format rule for %s: %v", field, err), "")
		}
		c.formats = append(c.formats, formatRule{field: field, re: re})
	}
	return c, nil
}

// Name returns the check name.
func (c *RulesCheck) Name() domain.CheckName {
	return domain.CheckRecordRules
}

// Run checks every record against every rule.
func (c *RulesCheck) Run(_ context.Context, ds *domain.Dataset) (domain.CheckResult, error) {
	if len(c.required) == 0 && len(c.formats) == 0 {
		return domain.NotImplemented("no record rules configured"), nil
	}

	var violations []string
	for i, rec := range ds.Records {
		for _, field := range c.required {
			if rec[field] == nil {
				violations = append(violations, fmt.Sprintf("record %d: %s is required", i, field))
			}
		}
		for _, rule := range c.formats {
			v := rec[rule.field]
			if v == nil {
				violations = append(violations, fmt.Sprintf("record %d: %s is missing", i, rule.field))
				continue
			}
			if !rule.re.MatchString(stringValue(v)) {
				violations = append(violations, fmt.Sprintf("record %d: %s is malformed", i, rule.field))
			}
		}
	}
	if len(violations) > 0 {
		return domain.Fail("%s", domain.Violations(violations)), nil
	}
	return domain.Pass(), nil
}

func stringValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
