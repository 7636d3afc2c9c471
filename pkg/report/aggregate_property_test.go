//go:build property
// +build property

// Package report_test contains property-based tests for verdict aggregation.
package report_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/Mindburn-Labs/vigil/pkg/gate"
	"github.com/Mindburn-Labs/vigil/pkg/report"
)

func genStatus() gopter.Gen {
	return gen.OneConstOf(
		gate.StatusPass,
		gate.StatusFail,
		gate.StatusPartial,
		gate.StatusSkip,
		gate.StatusError,
	)
}

func genChecks() gopter.Gen {
	return gen.SliceOf(genStatus()).Map(func(statuses []gate.Status) []gate.Check {
		checks := make([]gate.Check, len(statuses))
		for i, s := range statuses {
			checks[i] = gate.Check{ObligationID: "ob", Status: s}
		}
		return checks
	})
}

func has(checks []gate.Check, s gate.Status) bool {
	for _, c := range checks {
		if c.Status == s {
			return true
		}
	}
	return false
}

// TestAggregateDominance verifies the severity order of the overall
// verdict: ERROR dominates FAIL dominates gaps dominates PASS.
func TestAggregateDominance(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("any ERROR check makes the run ERROR", prop.ForAll(
		func(checks []gate.Check) bool {
			if !has(checks, gate.StatusError) {
				return true
			}
			return report.Aggregate(checks) == gate.StatusError
		},
		genChecks(),
	))

	properties.Property("FAIL wins whenever no ERROR is present", prop.ForAll(
		func(checks []gate.Check) bool {
			if has(checks, gate.StatusError) || !has(checks, gate.StatusFail) {
				return true
			}
			return report.Aggregate(checks) == gate.StatusFail
		},
		genChecks(),
	))

	properties.Property("without ERROR or FAIL, a gap resolves PARTIAL", prop.ForAll(
		func(checks []gate.Check) bool {
			if has(checks, gate.StatusError) || has(checks, gate.StatusFail) {
				return true
			}
			if !has(checks, gate.StatusSkip) && !has(checks, gate.StatusPartial) {
				return true
			}
			return report.Aggregate(checks) == gate.StatusPartial
		},
		genChecks(),
	))

	properties.Property("appending a PASS check never changes the verdict", prop.ForAll(
		func(checks []gate.Check) bool {
			before := report.Aggregate(checks)
			after := report.Aggregate(append(checks, gate.Check{ObligationID: "ob", Status: gate.StatusPass}))
			return before == after
		},
		genChecks(),
	))

	properties.Property("verdict is order independent", prop.ForAll(
		func(checks []gate.Check) bool {
			reversed := make([]gate.Check, len(checks))
			for i, c := range checks {
				reversed[len(checks)-1-i] = c
			}
			return report.Aggregate(checks) == report.Aggregate(reversed)
		},
		genChecks(),
	))

	properties.TestingRun(t)
}
