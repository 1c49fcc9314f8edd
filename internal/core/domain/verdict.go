package domain

import (
	"fmt"
	"strings"
)

// CheckName identifies a validator chain check.
type CheckName string

// Built-in checks, listed in execution priority.
const (
	CheckSchema       CheckName = "schema"
	CheckRecordRules  CheckName = "record_rules"
	CheckStatistics   CheckName = "statistics"
	CheckExpectations CheckName = "expectations"
)

// Priority returns the fixed execution order of a check (lower runs first).
// Unknown checks run after the built-ins.
func (c CheckName) Priority() int {
	switch c {
	case CheckSchema:
		return 1
	case CheckRecordRules:
		return 2
	case CheckStatistics:
		return 3
	case CheckExpectations:
		return 4
	default:
		return 100
	}
}

// String returns the string representation.
func (c CheckName) String() string {
	return string(c)
}

// CheckOutcome is what a single check concluded.
type CheckOutcome string

// Check outcomes.
const (
	OutcomePass CheckOutcome = "pass"
	OutcomeFail CheckOutcome = "fail"

	// OutcomeNotImplemented is reported by a check that has no criteria to apply.
	// It is never the same as a pass.
	OutcomeNotImplemented CheckOutcome = "not_implemented"
)

// CheckResult is the result of one check against one dataset.
type CheckResult struct {
	Outcome CheckOutcome
	Detail  string
}

// Pass returns a passing result.
func Pass() CheckResult {
	return CheckResult{Outcome: OutcomePass}
}

// Fail returns a failing result with a formatted detail.
func Fail(format string, args ...any) CheckResult {
	return CheckResult{Outcome: OutcomeFail, Detail: fmt.Sprintf(format, args...)}
}

// NotImplemented returns a result for a check with nothing to evaluate.
func NotImplemented(detail string) CheckResult {
	return CheckResult{Outcome: OutcomeNotImplemented, Detail: detail}
}

// maxViolations caps how many individual violations a detail string carries.
const maxViolations = 5

// Violations joins the first few violation messages into one detail.
func Violations(msgs []string) string {
	if len(msgs) <= maxViolations {
		return strings.Join(msgs, "; ")
	}
	return fmt.Sprintf("%s; and %d more", strings.Join(msgs[:maxViolations], "; "), len(msgs)-maxViolations)
}

// Verdict is the immutable outcome of running the validator chain on one item.
// Only the first failing check is ever reported.
type Verdict struct {
	passed  bool
	reason  CheckName
	detail  string
	skipped []CheckName
}

// PassedVerdict returns a Passed verdict. skipped lists checks that reported
// not_implemented under the skip policy.
func PassedVerdict(skipped ...CheckName) Verdict {
	return Verdict{passed: true, skipped: append([]CheckName(nil), skipped...)}
}

// FailedVerdict returns a Failed verdict naming the check that failed.
func FailedVerdict(reason CheckName, detail string) Verdict {
	return Verdict{reason: reason, detail: detail}
}

// Passed reports whether every check passed.
func (v Verdict) Passed() bool { return v.passed }

// Reason is the failing check, empty for a passed verdict.
func (v Verdict) Reason() CheckName { return v.reason }

// Detail describes the failure.
func (v Verdict) Detail() string { return v.detail }

// Skipped returns the checks that were skipped as not implemented.
func (v Verdict) Skipped() []CheckName {
	return append([]CheckName(nil), v.skipped...)
}

// String returns a short description for logs and CLI output.
func (v Verdict) String() string {
	if v.passed {
		return "passed"
	}
	if v.detail == "" {
		return fmt.Sprintf("failed(%s)", v.reason)
	}
	return fmt.Sprintf("failed(%s): %s", v.reason, v.detail)
}
