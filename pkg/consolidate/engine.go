// Package consolidate merges pending insights without silently
// erasing disagreement. Groups are processed under a lock so that
// concurrent runners never consolidate the same obligation twice, and
// every contradiction is surfaced rather than resolved.
package consolidate

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Mindburn-Labs/vigil/pkg/insight"
	"github.com/Mindburn-Labs/vigil/pkg/ledger"
)

// DefaultMinEvidence is the evidence count a null-obligation insight
// must exceed before it can propose a new obligation.
const DefaultMinEvidence = 5

// DefaultParallelism bounds how many groups consolidate concurrently.
const DefaultParallelism = 4

// Engine runs the consolidation pass over the ledger's pending
// partition.
type Engine struct {
	ledger      *ledger.Ledger
	minEvidence int
	parallelism int
	locker      GroupLocker
	logger      *slog.Logger
	clock       func() time.Time
}

// Option configures the engine.
type Option func(*Engine)

// WithMinEvidence overrides the proposal evidence minimum.
func WithMinEvidence(n int) Option {
	return func(e *Engine) { e.minEvidence = n }
}

// WithParallelism bounds concurrent group processing.
func WithParallelism(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.parallelism = n
		}
	}
}

// WithLocker replaces the in-process group locker, e.g. with the
// Redis lease locker when several runners share a ledger.
func WithLocker(l GroupLocker) Option {
	return func(e *Engine) { e.locker = l }
}

// WithLogger sets the structured logger.
func WithLogger(lg *slog.Logger) Option {
	return func(e *Engine) { e.logger = lg }
}

// WithClock overrides the clock for testing.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// New creates a consolidation engine over the given ledger.
func New(l *ledger.Ledger, opts ...Option) *Engine {
	e := &Engine{
		ledger:      l,
		minEvidence: DefaultMinEvidence,
		parallelism: DefaultParallelism,
		locker:      NewKeyedMutex(),
		logger:      slog.Default(),
		clock:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// groupResult carries one group's contribution to the summary.
type groupResult struct {
	reinforced     *Reinforced
	proposals      []Proposal
	ineligible     int
	contradictions []Contradiction
	skipped        map[insight.Scope]int
}

// Run consolidates the pending partition and returns the summary a
// maintainer reviews before promoting anything. The ledger is not
// modified; promotion stays an explicit, separate action.
func (e *Engine) Run(ctx context.Context) (*Summary, error) {
	pending := e.ledger.Pending()

	groups := make(map[string][]*insight.Insight)
	for _, ins := range pending {
		key := ins.GroupKey()
		groups[key] = append(groups[key], ins)
	}
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	summary := &Summary{
		GeneratedAt:    e.clock().UTC(),
		PendingCount:   len(pending),
		Reinforced:     []Reinforced{},
		Proposals:      []Proposal{},
		Contradictions: []Contradiction{},
		SkippedScopes:  map[string]int{},
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallelism)

	for _, key := range keys {
		members := groups[key]
		g.Go(func() error {
			release, err := e.locker.Acquire(gctx, key)
			if err != nil {
				return fmt.Errorf("acquire group %q: %w", key, err)
			}
			defer release()

			res := e.consolidateGroup(key, members)

			mu.Lock()
			defer mu.Unlock()
			if res.reinforced != nil {
				summary.Reinforced = append(summary.Reinforced, *res.reinforced)
			}
			summary.Proposals = append(summary.Proposals, res.proposals...)
			summary.IneligibleProposals += res.ineligible
			summary.Contradictions = append(summary.Contradictions, res.contradictions...)
			for scope, n := range res.skipped {
				summary.SkippedScopes[string(scope)] += n
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(summary.Reinforced, func(i, j int) bool {
		return summary.Reinforced[i].ObligationID < summary.Reinforced[j].ObligationID
	})
	sort.Slice(summary.Proposals, func(i, j int) bool {
		return summary.Proposals[i].InsightID < summary.Proposals[j].InsightID
	})
	sort.Slice(summary.Contradictions, func(i, j int) bool {
		a, b := summary.Contradictions[i], summary.Contradictions[j]
		if a.Group != b.Group {
			return a.Group < b.Group
		}
		if a.A != b.A {
			return a.A < b.A
		}
		return a.B < b.B
	})
	return summary, nil
}

func (e *Engine) consolidateGroup(key string, members []*insight.Insight) groupResult {
	res := groupResult{skipped: make(map[insight.Scope]int)}

	res.contradictions = e.findContradictions(key, members)
	e.logger.Debug("consolidated group",
		"group", key,
		"members", len(members),
		"contradictions", len(res.contradictions))

	if key == insight.ProposedGroup {
		for _, m := range members {
			if !m.Promotable() {
				res.skipped[m.Scope]++
				continue
			}
			if insight.EligibleProposal(m, e.minEvidence) {
				res.proposals = append(res.proposals, Proposal{
					InsightID:     m.ID,
					Invariant:     m.Invariant,
					EvidenceCount: m.EvidenceCount,
					Status:        StatusProposed,
				})
			} else {
				res.ineligible++
			}
		}
		sort.Slice(res.proposals, func(i, j int) bool {
			return res.proposals[i].InsightID < res.proposals[j].InsightID
		})
		return res
	}

	reinforced := Reinforced{ObligationID: key}
	for _, m := range members {
		if !m.Promotable() {
			res.skipped[m.Scope]++
			continue
		}
		reinforced.InsightIDs = append(reinforced.InsightIDs, m.ID)
		reinforced.EvidenceCount += m.EvidenceCount
	}
	if len(reinforced.InsightIDs) == 0 {
		return res
	}
	sort.Strings(reinforced.InsightIDs)
	reinforced.InsightCount = len(reinforced.InsightIDs)

	// Relation pairs over the promotable members. Complementary and
	// reinforcing stay distinct in the output.
	promotable := make([]*insight.Insight, 0, len(members))
	for _, m := range members {
		if m.Promotable() {
			promotable = append(promotable, m)
		}
	}
	for i := 0; i < len(promotable); i++ {
		for j := i + 1; j < len(promotable); j++ {
			a, b := orderedPair(promotable[i].ID, promotable[j].ID)
			switch insight.Classify(promotable[i], promotable[j]) {
			case insight.RelationReinforcing:
				reinforced.Reinforcing = append(reinforced.Reinforcing, Pair{A: a, B: b})
			case insight.RelationComplementary:
				reinforced.Complementary = append(reinforced.Complementary, Pair{A: a, B: b})
			}
		}
	}
	sortPairs(reinforced.Reinforcing)
	sortPairs(reinforced.Complementary)

	res.reinforced = &reinforced
	return res
}

// findContradictions scans all group members pairwise, including
// non-promotable ones: a disagreement with an environment-specific
// observation still deserves a human look.
func (e *Engine) findContradictions(key string, members []*insight.Insight) []Contradiction {
	var out []Contradiction
	for i := 0; i < len(members); i++ {
		for j := i + 1; j < len(members); j++ {
			if insight.Classify(members[i], members[j]) != insight.RelationContradictory {
				continue
			}
			first, second := members[i], members[j]
			if second.ID < first.ID {
				first, second = second, first
			}
			e.logger.Warn("unresolved contradiction blocks promotion",
				"group", key,
				"a", first.ID,
				"b", second.ID)
			out = append(out, Contradiction{
				Group:      key,
				A:          first.ID,
				B:          second.ID,
				InvariantA: first.Invariant,
				InvariantB: second.Invariant,
			})
		}
	}
	return out
}

func orderedPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

func sortPairs(pairs []Pair) {
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].A != pairs[j].A {
			return pairs[i].A < pairs[j].A
		}
		return pairs[i].B < pairs[j].B
	})
}
