package gate

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/vigil/pkg/capability"
	"github.com/Mindburn-Labs/vigil/pkg/criteria"
	"github.com/Mindburn-Labs/vigil/pkg/evidence"
	"github.com/Mindburn-Labs/vigil/pkg/insight"
	"github.com/Mindburn-Labs/vigil/pkg/ledger"
	"github.com/Mindburn-Labs/vigil/pkg/obligation"
	"github.com/Mindburn-Labs/vigil/pkg/pack"
)

const varyObligationYAML = `id: cache.vary.honored
title: Vary header is honored by the cache key
domain: cache
risk: high
safe_in_prod: true
pass_criteria:
  - "Vary inputs produce distinct cache entries"
suggested_checks:
  - name: vary-split-probe
    method: http-probe
`

const metricsObligationYAML = `id: observability.metrics.exposed
title: Release-critical metrics are exposed
domain: observability
risk: medium
safe_in_prod: true
pass_criteria:
  - "Request rate metric present"
  - "Error rate metric present"
suggested_checks:
  - name: scrape-endpoint
    method: prometheus
`

const diskObligationYAML = `id: fault.io.disk
title: Disk faults surface as typed errors
domain: fault
risk: medium
safe_in_prod: false
pass_criteria:
  - "Writes degrade gracefully"
suggested_checks:
  - name: disk-pressure
    method: simulator
`

const varyPackYAML = `id: edge-http-cache-correctness
name: Edge HTTP Cache Correctness
version: 1.0.0
failure_modes:
  - id: fm-vary-ignored
    name: Vary header ignored in cache key
    severity: high
test_templates:
  - id: tt-vary-split
    name: Vary split probe
    failure_mode_id: fm-vary-ignored
    priority: 1
    assertions:
      - description: "No cross-variant cache collisions"
        expression: "metrics.variant_collisions == 0"
    obligation_ids: [cache.vary.honored]
obligations_covered: [cache.vary.honored]
`

const diskPackYAML = `id: fault-injection-io
name: IO Fault Injection
version: 1.0.0
failure_modes:
  - id: fm-disk-full
    name: Disk full mishandled
    severity: high
test_templates:
  - id: tt-disk-sim
    name: Disk pressure simulation
    failure_mode_id: fm-disk-full
    priority: 1
    assertions:
      - description: "Writes degrade gracefully under simulated pressure"
        expression: "criteria['writes_degrade_gracefully']"
    obligation_ids: [fault.io.disk]
  - id: tt-disk-real
    name: Real disk fault injection
    failure_mode_id: fm-disk-full
    priority: 2
    requires_privileged: true
    assertions:
      - description: "Injected disk faults surface typed errors"
        expression: "criteria['typed_errors_surfaced']"
    obligation_ids: [fault.io.disk]
obligations_covered: [fault.io.disk]
`

// staticCap is a fixed facility for tests.
type staticCap struct {
	name       string
	privileged bool
}

func (c staticCap) Name() string     { return c.name }
func (c staticCap) Privileged() bool { return c.privileged }

func loadRegistry(t *testing.T, docs ...string) *obligation.Registry {
	t.Helper()
	dir := t.TempDir()
	for i, doc := range docs {
		path := filepath.Join(dir, "ob"+string(rune('a'+i))+".yaml")
		require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
	}
	reg, err := obligation.LoadDir(dir)
	require.NoError(t, err)
	return reg
}

func loadRules(t *testing.T, packDocs ...string) *criteria.RuleSet {
	t.Helper()
	dir := t.TempDir()
	for i, doc := range packDocs {
		path := filepath.Join(dir, "pack"+string(rune('a'+i))+".yaml")
		require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
	}
	cat, err := pack.LoadDir(dir)
	require.NoError(t, err)
	eng, err := criteria.NewEngine()
	require.NoError(t, err)
	rs, err := criteria.BuildRuleSet(cat, eng)
	require.NoError(t, err)
	return rs
}

func evidenceSet(t *testing.T, docs ...*evidence.Document) *evidence.Set {
	t.Helper()
	set, err := evidence.NewSet(docs...)
	require.NoError(t, err)
	return set
}

func allTools() *capability.Set {
	return capability.NewSet(
		staticCap{name: "http-probe"},
		staticCap{name: "prometheus"},
		staticCap{name: "simulator"},
	)
}

func TestBoundAssertionsPass(t *testing.T) {
	ev := NewEvaluator(loadRegistry(t, varyObligationYAML), loadRules(t, varyPackYAML))
	rc := &RunContext{
		Capabilities: allTools(),
		Evidence: evidenceSet(t, &evidence.Document{
			ObligationID: "cache.vary.honored",
			Metrics:      map[string]any{"variant_collisions": 0},
			Artifacts:    []string{"traces/vary.har"},
		}),
	}

	checks, err := ev.Run(context.Background(), rc)
	require.NoError(t, err)
	require.Len(t, checks, 1)
	assert.Equal(t, StatusPass, checks[0].Status)
	assert.Equal(t, "all 1 bound assertions satisfied", checks[0].Message)
	assert.Equal(t, []string{"traces/vary.har"}, checks[0].EvidencePaths)
}

func TestBoundAssertionFailNamesCriterion(t *testing.T) {
	ev := NewEvaluator(loadRegistry(t, varyObligationYAML), loadRules(t, varyPackYAML))
	rc := &RunContext{
		Capabilities: allTools(),
		Evidence: evidenceSet(t, &evidence.Document{
			ObligationID: "cache.vary.honored",
			Metrics:      map[string]any{"variant_collisions": 3},
		}),
	}

	checks, err := ev.Run(context.Background(), rc)
	require.NoError(t, err)
	require.Len(t, checks, 1)
	assert.Equal(t, StatusFail, checks[0].Status)
	assert.Equal(t, "criterion violated: No cross-variant cache collisions", checks[0].Message)
}

func TestSkipNamesMissingCapability(t *testing.T) {
	ev := NewEvaluator(loadRegistry(t, metricsObligationYAML), nil)
	rc := &RunContext{
		Capabilities: capability.NewSet(staticCap{name: "http-probe"}),
		Evidence: evidenceSet(t, &evidence.Document{
			ObligationID: "observability.metrics.exposed",
			Criteria:     map[string]bool{"request_rate_metric_present": true},
		}),
	}

	checks, err := ev.Run(context.Background(), rc)
	require.NoError(t, err)
	require.Len(t, checks, 1)
	assert.Equal(t, StatusSkip, checks[0].Status)
	assert.Equal(t, `required capability "prometheus" unavailable`, checks[0].Message)
	assert.Empty(t, checks[0].EvidencePaths)
}

func TestSkipWithoutEvidence(t *testing.T) {
	ev := NewEvaluator(loadRegistry(t, varyObligationYAML), nil)
	rc := &RunContext{Capabilities: allTools(), Evidence: evidence.EmptySet()}

	checks, err := ev.Run(context.Background(), rc)
	require.NoError(t, err)
	require.Len(t, checks, 1)
	assert.Equal(t, StatusSkip, checks[0].Status)
	assert.Equal(t, "no evidence captured for obligation", checks[0].Message)
}

func TestFlagsFallback(t *testing.T) {
	reg := loadRegistry(t, metricsObligationYAML)

	t.Run("all attested true", func(t *testing.T) {
		ev := NewEvaluator(reg, nil)
		rc := &RunContext{
			Capabilities: allTools(),
			Evidence: evidenceSet(t, &evidence.Document{
				ObligationID: "observability.metrics.exposed",
				Criteria: map[string]bool{
					"request_rate_metric_present": true,
					"error_rate_metric_present":   true,
				},
			}),
		}
		checks, err := ev.Run(context.Background(), rc)
		require.NoError(t, err)
		assert.Equal(t, StatusPass, checks[0].Status)
		assert.Equal(t, "all 2 criteria attested", checks[0].Message)
	})

	t.Run("attested false fails", func(t *testing.T) {
		ev := NewEvaluator(reg, nil)
		rc := &RunContext{
			Capabilities: allTools(),
			Evidence: evidenceSet(t, &evidence.Document{
				ObligationID: "observability.metrics.exposed",
				Criteria: map[string]bool{
					"request_rate_metric_present": true,
					"error_rate_metric_present":   false,
				},
			}),
		}
		checks, err := ev.Run(context.Background(), rc)
		require.NoError(t, err)
		assert.Equal(t, StatusFail, checks[0].Status)
		assert.Equal(t, "criterion violated: Error rate metric present", checks[0].Message)
	})

	t.Run("unattested skips", func(t *testing.T) {
		ev := NewEvaluator(reg, nil)
		rc := &RunContext{
			Capabilities: allTools(),
			Evidence: evidenceSet(t, &evidence.Document{
				ObligationID: "observability.metrics.exposed",
				Criteria:     map[string]bool{"request_rate_metric_present": true},
			}),
		}
		checks, err := ev.Run(context.Background(), rc)
		require.NoError(t, err)
		assert.Equal(t, StatusSkip, checks[0].Status)
		assert.Equal(t, `evidence does not attest criterion "Error rate metric present"`, checks[0].Message)
	})
}

func TestCompositeObligation(t *testing.T) {
	reg := loadRegistry(t, diskObligationYAML)
	rules := loadRules(t, diskPackYAML)
	doc := func() *evidence.Document {
		return &evidence.Document{
			ObligationID: "fault.io.disk",
			Criteria: map[string]bool{
				"writes_degrade_gracefully": true,
				"typed_errors_surfaced":     true,
			},
		}
	}

	t.Run("unprivileged resolves partial", func(t *testing.T) {
		ev := NewEvaluator(reg, rules)
		rc := &RunContext{
			Capabilities: capability.NewSet(staticCap{name: "simulator"}),
			Evidence:     evidenceSet(t, doc()),
		}
		checks, err := ev.Run(context.Background(), rc)
		require.NoError(t, err)
		assert.Equal(t, StatusPartial, checks[0].Status)
		assert.Equal(t, "1 of 2 template checks passed; fault-injection-io/tt-disk-real requires privileged capability", checks[0].Message)
	})

	t.Run("privileged resolves pass", func(t *testing.T) {
		ev := NewEvaluator(reg, rules)
		rc := &RunContext{
			Capabilities: capability.NewSet(
				staticCap{name: "simulator"},
				capability.NewPrivileged("dtrace"),
			),
			Evidence: evidenceSet(t, doc()),
		}
		checks, err := ev.Run(context.Background(), rc)
		require.NoError(t, err)
		assert.Equal(t, StatusPass, checks[0].Status)
	})

	t.Run("violation beats partial", func(t *testing.T) {
		ev := NewEvaluator(reg, rules)
		bad := doc()
		bad.Criteria["writes_degrade_gracefully"] = false
		rc := &RunContext{
			Capabilities: capability.NewSet(staticCap{name: "simulator"}),
			Evidence:     evidenceSet(t, bad),
		}
		checks, err := ev.Run(context.Background(), rc)
		require.NoError(t, err)
		assert.Equal(t, StatusFail, checks[0].Status)
		assert.Equal(t, "criterion violated: Writes degrade gracefully under simulated pressure", checks[0].Message)
	})
}

func TestAssertionErrorIsolatedPerCheck(t *testing.T) {
	brokenPack := `id: edge-http-cache-correctness
name: Edge HTTP Cache Correctness
version: 1.0.0
failure_modes:
  - id: fm-vary-ignored
    name: Vary header ignored in cache key
    severity: high
test_templates:
  - id: tt-vary-split
    name: Vary split probe
    failure_mode_id: fm-vary-ignored
    assertions:
      - description: "Reads a metric the evidence never captured"
        expression: "metrics.never_captured == 0"
    obligation_ids: [cache.vary.honored]
`
	ev := NewEvaluator(
		loadRegistry(t, varyObligationYAML, metricsObligationYAML),
		loadRules(t, brokenPack),
	)
	rc := &RunContext{
		Capabilities: allTools(),
		Evidence: evidenceSet(t,
			&evidence.Document{ObligationID: "cache.vary.honored", Metrics: map[string]any{"variant_collisions": 0}},
			&evidence.Document{ObligationID: "observability.metrics.exposed", Criteria: map[string]bool{
				"request_rate_metric_present": true,
				"error_rate_metric_present":   true,
			}},
		),
	}

	checks, err := ev.Run(context.Background(), rc)
	require.NoError(t, err)
	require.Len(t, checks, 2)

	assert.Equal(t, StatusError, checks[0].Status)
	assert.Contains(t, checks[0].Message, "assertion error in template edge-http-cache-correctness/tt-vary-split")

	// The broken assertion must not take down the rest of the run.
	assert.Equal(t, StatusPass, checks[1].Status)
}

func TestCancelledRunMarksUnresolvedChecks(t *testing.T) {
	ev := NewEvaluator(loadRegistry(t, varyObligationYAML, metricsObligationYAML), nil)
	rc := &RunContext{Capabilities: allTools(), Evidence: evidence.EmptySet()}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	checks, err := ev.Run(ctx, rc)
	require.NoError(t, err)
	require.Len(t, checks, 2)
	for _, c := range checks {
		assert.Equal(t, StatusError, c.Status)
		assert.Equal(t, "run cancelled before check resolved", c.Message)
	}
}

func TestUnknownObligationFailsBeforeEvaluation(t *testing.T) {
	ev := NewEvaluator(loadRegistry(t, varyObligationYAML), nil)
	rc := &RunContext{Capabilities: allTools(), Evidence: evidence.EmptySet()}

	_, err := ev.Run(context.Background(), rc, "no.such.obligation")
	var notFound *obligation.NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestCuratedHintDemotesPass(t *testing.T) {
	ctx := context.Background()
	led, err := ledger.Open(ctx, ledger.NewMemoryStore())
	require.NoError(t, err)

	obID := "cache.vary.honored"
	ins := &insight.Insight{
		ID:            "ins-2418-01",
		Source:        "incident-2418",
		ObligationID:  &obID,
		Invariant:     "Stale variants must not be served after purge",
		Confidence:    insight.ConfidenceHigh,
		Scope:         insight.ScopeGeneralizable,
		EvidenceCount: 9,
	}
	_, err = led.Record(ctx, ins)
	require.NoError(t, err)
	_, err = led.Promote(ctx, "ins-2418-01", ledger.Reviewer{ID: "rev-maya"})
	require.NoError(t, err)

	ev := NewEvaluator(loadRegistry(t, varyObligationYAML), nil)
	rc := &RunContext{
		Capabilities: allTools(),
		Evidence: evidenceSet(t, &evidence.Document{
			ObligationID: "cache.vary.honored",
			Criteria: map[string]bool{
				"vary_inputs_produce_distinct_cache_entries":    true,
				"stale_variants_must_not_be_served_after_purge": false,
			},
		}),
	}
	require.NoError(t, rc.AddHints(led, "ins-2418-01"))

	checks, err := ev.Run(ctx, rc)
	require.NoError(t, err)
	assert.Equal(t, StatusFail, checks[0].Status)
	assert.Equal(t, "curated insight violated: Stale variants must not be served after purge", checks[0].Message)
}

func TestPendingInsightRejectedAsHint(t *testing.T) {
	ctx := context.Background()
	led, err := ledger.Open(ctx, ledger.NewMemoryStore())
	require.NoError(t, err)

	ins := &insight.Insight{
		ID:            "ins-proposed-01",
		Source:        "incident-2500",
		Invariant:     "Retry budgets must cap upstream amplification",
		Confidence:    insight.ConfidenceHigh,
		Scope:         insight.ScopeGeneralizable,
		EvidenceCount: 12,
	}
	_, err = led.Record(ctx, ins)
	require.NoError(t, err)

	rc := &RunContext{}
	err = rc.AddHints(led, "ins-proposed-01")
	var pendingErr *ledger.ProposalPendingReviewError
	require.ErrorAs(t, err, &pendingErr)
	assert.Equal(t, "ins-proposed-01", pendingErr.InsightID)
	assert.Empty(t, rc.Hints)
}

func TestRunOrderAndStatusValidity(t *testing.T) {
	ev := NewEvaluator(loadRegistry(t, metricsObligationYAML, varyObligationYAML, diskObligationYAML), nil)
	rc := &RunContext{Capabilities: allTools(), Evidence: evidence.EmptySet()}

	checks, err := ev.Run(context.Background(), rc)
	require.NoError(t, err)
	require.Len(t, checks, 3)

	assert.Equal(t, "cache.vary.honored", checks[0].ObligationID)
	assert.Equal(t, "fault.io.disk", checks[1].ObligationID)
	assert.Equal(t, "observability.metrics.exposed", checks[2].ObligationID)
	for _, c := range checks {
		assert.True(t, c.Status.Valid())
		assert.True(t, c.Status.Resolved())
	}
}
