// Package gate turns the obligation catalog into a release verdict.
//
// A gate run walks a set of obligations in deterministic order and
// resolves each to a single check outcome. Checks are evaluated
// sequentially because later checks consult capability state learned by
// earlier ones: once a tool is known unavailable, every dependent check
// short-circuits without re-probing. Evaluation failures are isolated
// per check; one panicking assertion must not take the run down.
package gate

import (
	"log/slog"
	"time"

	"github.com/Mindburn-Labs/vigil/pkg/capability"
	"github.com/Mindburn-Labs/vigil/pkg/evidence"
	"github.com/Mindburn-Labs/vigil/pkg/ledger"
)

// Status is the resolution of one gate check.
type Status string

const (
	// StatusPending is the resting state before a check resolves. It
	// never appears in a finished report.
	StatusPending Status = "PENDING"
	// StatusPass means every bound criterion held.
	StatusPass Status = "PASS"
	// StatusFail means at least one criterion was violated.
	StatusFail Status = "FAIL"
	// StatusPartial means a composite obligation resolved some but not
	// all of its sub-checks. Single checks never resolve PARTIAL.
	StatusPartial Status = "PARTIAL"
	// StatusSkip means the check could not run: a required capability
	// or the evidence for it is absent. Absence of proof is not proof
	// of failure.
	StatusSkip Status = "SKIP"
	// StatusError means evaluation itself broke: a panic, a timeout,
	// or a cancelled run.
	StatusError Status = "ERROR"
)

// Valid reports whether the status is a known value.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPass, StatusFail, StatusPartial, StatusSkip, StatusError:
		return true
	}
	return false
}

// Resolved reports whether the status is terminal.
func (s Status) Resolved() bool {
	return s != "" && s != StatusPending
}

// Check is the outcome of evaluating one obligation.
type Check struct {
	ObligationID  string   `json:"obligation_id"`
	Status        Status   `json:"status"`
	Message       string   `json:"message"`
	EvidencePaths []string `json:"evidence_paths,omitempty"`
}

// DefaultCheckTimeout bounds a single check evaluation.
const DefaultCheckTimeout = 30 * time.Second

// RunContext carries everything one gate run consumes: the resolved
// capability set, the captured evidence, and curated insight hints.
// A RunContext is built per run and not reused.
type RunContext struct {
	Capabilities *capability.Set
	Evidence     *evidence.Set

	// Hints are curated insights consulted after an obligation's own
	// criteria pass. A hint can demote a PASS, never rescue a FAIL.
	Hints []*ledger.CuratedInsight

	// CheckTimeout bounds each check; zero means DefaultCheckTimeout.
	CheckTimeout time.Duration

	// Clock supplies run timestamps. Nil means time.Now.
	Clock func() time.Time

	Logger *slog.Logger
}

// AddHints resolves insight ids through the ledger and attaches the
// curated records. A pending insight fails with
// ProposalPendingReviewError: proposals cannot steer a gate before a
// human promotes them.
func (rc *RunContext) AddHints(l *ledger.Ledger, insightIDs ...string) error {
	for _, id := range insightIDs {
		cur, err := l.Resolve(id)
		if err != nil {
			return err
		}
		rc.Hints = append(rc.Hints, cur)
	}
	return nil
}

func (rc *RunContext) clock() func() time.Time {
	if rc.Clock != nil {
		return rc.Clock
	}
	return time.Now
}

func (rc *RunContext) timeout() time.Duration {
	if rc.CheckTimeout > 0 {
		return rc.CheckTimeout
	}
	return DefaultCheckTimeout
}

func (rc *RunContext) logger() *slog.Logger {
	if rc.Logger != nil {
		return rc.Logger
	}
	return slog.New(slog.DiscardHandler)
}

func (rc *RunContext) evidenceSet() *evidence.Set {
	if rc.Evidence != nil {
		return rc.Evidence
	}
	return evidence.EmptySet()
}
