package gate

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Mindburn-Labs/vigil/pkg/criteria"
	"github.com/Mindburn-Labs/vigil/pkg/evidence"
	"github.com/Mindburn-Labs/vigil/pkg/insight"
	"github.com/Mindburn-Labs/vigil/pkg/obligation"
)

// Evaluator resolves obligations to check outcomes. It is built once
// from the loaded catalog and reused across runs; all per-run state
// lives in the RunContext.
type Evaluator struct {
	registry *obligation.Registry
	rules    *criteria.RuleSet
}

// NewEvaluator binds the evaluator to a loaded registry and the rule
// set compiled from the pack catalog. rules may be nil; every check
// then falls back to the evidence criteria flags.
func NewEvaluator(registry *obligation.Registry, rules *criteria.RuleSet) *Evaluator {
	return &Evaluator{registry: registry, rules: rules}
}

// capabilityMemo records facilities already found unavailable so later
// checks in the same run short-circuit without re-probing.
type capabilityMemo struct {
	mu          sync.Mutex
	unavailable map[string]bool
}

func (m *capabilityMemo) known(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unavailable[name]
}

func (m *capabilityMemo) mark(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unavailable[name] = true
}

// Run evaluates the named obligations, or every obligation in the
// registry when none are named, and returns one check per obligation
// in id order. An unknown id fails the run before any evaluation.
//
// Cancellation keeps already resolved checks and marks the rest ERROR,
// so a partial report can still be persisted.
func (e *Evaluator) Run(ctx context.Context, rc *RunContext, obligationIDs ...string) ([]Check, error) {
	obls, err := e.resolveObligations(obligationIDs)
	if err != nil {
		return nil, err
	}

	log := rc.logger()
	memo := &capabilityMemo{unavailable: make(map[string]bool)}
	checks := make([]Check, 0, len(obls))
	for _, ob := range obls {
		if ctx.Err() != nil {
			checks = append(checks, Check{
				ObligationID: ob.ID,
				Status:       StatusError,
				Message:      "run cancelled before check resolved",
			})
			continue
		}
		c := e.runBounded(ctx, rc, ob, memo)
		switch c.Status {
		case StatusFail, StatusError:
			log.Warn("check resolved", "obligation", c.ObligationID, "status", c.Status, "message", c.Message)
		default:
			log.Debug("check resolved", "obligation", c.ObligationID, "status", c.Status)
		}
		checks = append(checks, c)
	}
	return checks, nil
}

func (e *Evaluator) resolveObligations(ids []string) ([]*obligation.Obligation, error) {
	if len(ids) == 0 {
		return e.registry.List(""), nil
	}
	seen := make(map[string]bool, len(ids))
	obls := make([]*obligation.Obligation, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		ob, err := e.registry.Lookup(id)
		if err != nil {
			return nil, err
		}
		obls = append(obls, ob)
	}
	sort.Slice(obls, func(i, j int) bool { return obls[i].ID < obls[j].ID })
	return obls, nil
}

// runBounded evaluates one obligation under the per-check timeout. The
// evaluation itself runs in a goroutine so a wedged assertion resolves
// to ERROR instead of hanging the run.
func (e *Evaluator) runBounded(ctx context.Context, rc *RunContext, ob *obligation.Obligation, memo *capabilityMemo) Check {
	timeout := rc.timeout()
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan Check, 1)
	go func() {
		done <- e.evaluateOne(rc, ob, memo)
	}()

	select {
	case c := <-done:
		return c
	case <-cctx.Done():
		if ctx.Err() != nil {
			return Check{ObligationID: ob.ID, Status: StatusError, Message: "run cancelled before check resolved"}
		}
		return Check{ObligationID: ob.ID, Status: StatusError, Message: fmt.Sprintf("check timed out after %s", timeout)}
	}
}

// evaluateOne is the per-obligation state machine. It starts PENDING
// and must leave resolved; a panic anywhere below resolves to ERROR.
func (e *Evaluator) evaluateOne(rc *RunContext, ob *obligation.Obligation, memo *capabilityMemo) (c Check) {
	c = Check{ObligationID: ob.ID, Status: StatusPending}
	defer func() {
		if r := recover(); r != nil {
			c.Status = StatusError
			c.Message = fmt.Sprintf("check panicked: %v", r)
		}
	}()

	if missing, ok := e.requiredFacilities(rc, ob, memo); !ok {
		c.Status = StatusSkip
		c.Message = fmt.Sprintf("required capability %q unavailable", missing)
		return c
	}

	doc, ok := rc.evidenceSet().For(ob.ID)
	if !ok {
		c.Status = StatusSkip
		c.Message = "no evidence captured for obligation"
		return c
	}
	c.EvidencePaths = doc.Paths()

	var rules []criteria.Rule
	if e.rules != nil {
		rules = e.rules.ForObligation(ob.ID)
	}
	if len(rules) > 0 {
		return e.evaluateRules(rc, ob, doc, rules, c)
	}
	return e.evaluateFlags(rc, ob, doc, c)
}

// requiredFacilities checks every capability method the obligation's
// suggested checks reference. The first missing one is returned and
// memoized for the rest of the run.
func (e *Evaluator) requiredFacilities(rc *RunContext, ob *obligation.Obligation, memo *capabilityMemo) (string, bool) {
	for _, method := range ob.Methods() {
		if memo.known(method) {
			return method, false
		}
		if rc.Capabilities == nil || !rc.Capabilities.Satisfies(method) {
			memo.mark(method)
			return method, false
		}
	}
	return "", true
}

// templateRun is one bound template's slice of a composite check.
type templateRun struct {
	key            string
	needPrivileged bool
	rules          []criteria.Rule
}

func groupByTemplate(rules []criteria.Rule) []templateRun {
	index := make(map[string]int)
	var runs []templateRun
	for _, r := range rules {
		key := r.PackID + "/" + r.TemplateID
		i, ok := index[key]
		if !ok {
			i = len(runs)
			index[key] = i
			runs = append(runs, templateRun{
				key:            key,
				needPrivileged: r.RequiresPrivileged && !r.FallbackAvailable,
			})
		}
		runs[i].rules = append(runs[i].rules, r)
	}
	return runs
}

// evaluateRules resolves an obligation with bound pack assertions. An
// obligation bound by more than one template is composite: each
// template is a sub-check, and a mix of passed and skipped sub-checks
// resolves PARTIAL. A single-template obligation never does.
func (e *Evaluator) evaluateRules(rc *RunContext, ob *obligation.Obligation, doc *evidence.Document, rules []criteria.Rule, c Check) Check {
	runs := groupByTemplate(rules)
	payload := doc.Payload()
	composite := len(runs) > 1
	privileged := rc.Capabilities != nil && rc.Capabilities.Privileged()

	passed, skipped, evaluated := 0, 0, 0
	var firstSkipped string
	for _, tr := range runs {
		if tr.needPrivileged && !privileged {
			skipped++
			if firstSkipped == "" {
				firstSkipped = tr.key
			}
			continue
		}
		for _, rule := range tr.rules {
			ok, err := e.rules.Evaluate(rule, payload)
			if err != nil {
				c.Status = StatusError
				c.Message = fmt.Sprintf("assertion error in template %s: %v", tr.key, err)
				return c
			}
			evaluated++
			if !ok {
				c.Status = StatusFail
				c.Message = "criterion violated: " + ruleLabel(rule)
				return c
			}
		}
		passed++
	}

	switch {
	case skipped == len(runs):
		c.Status = StatusSkip
		c.Message = fmt.Sprintf("template %s requires privileged capability", firstSkipped)
		return c
	case composite && skipped > 0:
		c.Status = StatusPartial
		c.Message = fmt.Sprintf("%d of %d template checks passed; %s requires privileged capability", passed, len(runs), firstSkipped)
	default:
		c.Status = StatusPass
		c.Message = fmt.Sprintf("all %d bound assertions satisfied", evaluated)
	}
	return e.applyHints(rc, ob, doc, c)
}

func ruleLabel(rule criteria.Rule) string {
	if rule.Description != "" {
		return rule.Description
	}
	return rule.Expression
}

// evaluateFlags is the fallback for obligations no pack template binds:
// each pass criterion must be attested true by the evidence document's
// criteria flags. An unattested criterion resolves SKIP because absence
// of evidence is not failure; an attested-false one resolves FAIL.
func (e *Evaluator) evaluateFlags(rc *RunContext, ob *obligation.Obligation, doc *evidence.Document, c Check) Check {
	for _, criterion := range ob.PassCriteria {
		held, attested := flagFor(doc, criterion)
		if !attested {
			c.Status = StatusSkip
			c.Message = fmt.Sprintf("evidence does not attest criterion %q", criterion)
			return c
		}
		if !held {
			c.Status = StatusFail
			c.Message = "criterion violated: " + criterion
			return c
		}
	}
	c.Status = StatusPass
	c.Message = fmt.Sprintf("all %d criteria attested", len(ob.PassCriteria))
	return e.applyHints(rc, ob, doc, c)
}

// flagFor looks a criterion up in the document's criteria flags, first
// by exact key, then by normalized text so snake_case flag names match
// prose criteria.
func flagFor(doc *evidence.Document, criterion string) (held, attested bool) {
	if v, ok := doc.CriterionState(criterion); ok {
		return v, true
	}
	want := insight.Normalize(criterion)
	if want == "" {
		return false, false
	}
	keys := make([]string, 0, len(doc.Criteria))
	for k := range doc.Criteria {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if insight.Normalize(k) == want {
			return doc.Criteria[k], true
		}
	}
	return false, false
}

// applyHints consults curated insights bound to the obligation after
// its own criteria passed. An attested-false hint invariant demotes the
// check to FAIL; an unattested one stays advisory.
func (e *Evaluator) applyHints(rc *RunContext, ob *obligation.Obligation, doc *evidence.Document, c Check) Check {
	for _, hint := range rc.Hints {
		if hint == nil || hint.Insight.ObligationID == nil || *hint.Insight.ObligationID != ob.ID {
			continue
		}
		held, attested := flagFor(doc, hint.Insight.Invariant)
		if !attested {
			rc.logger().Debug("curated hint not attested by evidence", "obligation", ob.ID, "insight", hint.ID)
			continue
		}
		if !held {
			c.Status = StatusFail
			c.Message = "curated insight violated: " + hint.Insight.Invariant
			return c
		}
	}
	return c
}
