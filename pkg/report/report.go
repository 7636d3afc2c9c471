// Package report assembles gate checks into the persisted gate report.
//
// The overall verdict is a pure function of the check statuses, so two
// runs over the same checks always agree. Reports are append-only:
// every run lands in the history directory and the latest pointer is
// replaced atomically.
package report

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Mindburn-Labs/vigil/pkg/gate"
)

// Report is one finished gate run.
type Report struct {
	RunID     string        `json:"run_id"`
	Timestamp time.Time     `json:"timestamp"`
	Status    gate.Status   `json:"status"`
	Checks    []gate.Check  `json:"checks"`
	Duration  time.Duration `json:"duration"`
}

// Build assembles a report from resolved checks. Checks are reordered
// by obligation id so report content is independent of evaluation
// order.
func Build(checks []gate.Check, startedAt, finishedAt time.Time) *Report {
	sorted := append([]gate.Check(nil), checks...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ObligationID < sorted[j].ObligationID
	})
	return &Report{
		RunID:     uuid.NewString(),
		Timestamp: finishedAt.UTC(),
		Status:    Aggregate(sorted),
		Checks:    sorted,
		Duration:  finishedAt.Sub(startedAt),
	}
}

// Aggregate reduces check statuses to the overall gate verdict.
//
// Severity is strict: any ERROR makes the run ERROR, else any FAIL
// makes it FAIL, else any gap (SKIP or PARTIAL check) makes it
// PARTIAL, else PASS. An empty check set is PASS: nothing committed,
// nothing violated. A PENDING check in a finished set is a run defect
// and counts as ERROR.
func Aggregate(checks []gate.Check) gate.Status {
	anyError, anyFail, anyGap := false, false, false
	for _, c := range checks {
		switch c.Status {
		case gate.StatusError:
			anyError = true
		case gate.StatusFail:
			anyFail = true
		case gate.StatusSkip, gate.StatusPartial:
			anyGap = true
		case gate.StatusPass:
		default:
			anyError = true
		}
	}
	switch {
	case anyError:
		return gate.StatusError
	case anyFail:
		return gate.StatusFail
	case anyGap:
		return gate.StatusPartial
	default:
		return gate.StatusPass
	}
}

// ExitCode maps the overall verdict to a process exit code. PARTIAL
// passes by default; strict mode turns it into a failure so CI can
// refuse releases with unverified obligations.
func ExitCode(s gate.Status, strict bool) int {
	switch s {
	case gate.StatusPass:
		return 0
	case gate.StatusPartial:
		if strict {
			return 1
		}
		return 0
	case gate.StatusFail:
		return 1
	default:
		return 2
	}
}
