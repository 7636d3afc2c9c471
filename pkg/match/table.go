package match

import (
	"sort"

	"github.com/Mindburn-Labs/vigil/pkg/obligation"
	"github.com/Mindburn-Labs/vigil/pkg/pack"
)

// TargetKind distinguishes what a keyword points at.
type TargetKind string

const (
	KindPack       TargetKind = "pack"
	KindObligation TargetKind = "obligation"
)

// Entry maps one keyword to one target with a weight in (0, 1].
type Entry struct {
	Keyword string
	Target  string
	Kind    TargetKind
	Weight  float64
}

// Table is the keyword→target mapping the matcher scores against.
// Entries come from three places: the maintainer-authored defaults,
// pack tags from the catalog, and required_signals from the
// obligation registry.
type Table struct {
	entries map[string][]Entry
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{entries: make(map[string][]Entry)}
}

// Add inserts an entry. Weights outside (0, 1] are clamped, and a
// duplicate (keyword, target) pair keeps the higher weight.
func (t *Table) Add(e Entry) {
	if e.Keyword == "" || e.Target == "" {
		return
	}
	if e.Weight <= 0 {
		return
	}
	if e.Weight > 1 {
		e.Weight = 1
	}
	for i, existing := range t.entries[e.Keyword] {
		if existing.Target == e.Target {
			if e.Weight > existing.Weight {
				t.entries[e.Keyword][i].Weight = e.Weight
			}
			return
		}
	}
	t.entries[e.Keyword] = append(t.entries[e.Keyword], e)
}

// Keywords returns all keywords in sorted order.
func (t *Table) Keywords() []string {
	out := make([]string, 0, len(t.entries))
	for k := range t.entries {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Lookup returns the entries for a keyword.
func (t *Table) Lookup(keyword string) []Entry {
	return t.entries[keyword]
}

// weightPackTag is the default weight for a keyword learned from a
// pack's tags.
const weightPackTag = 0.6

// weightRequiredSignal is the default weight for a keyword learned
// from an obligation's required_signals.
const weightRequiredSignal = 0.7

// AddCatalog adds every pack's tags as keywords for that pack.
// Multi-word tags such as "http-cache" contribute one keyword per
// token.
func (t *Table) AddCatalog(c *pack.Catalog) {
	for _, p := range c.List() {
		for _, tag := range p.Tags {
			for _, kw := range Tokenize(tag) {
				if len(kw) < 2 {
					continue
				}
				t.Add(Entry{Keyword: kw, Target: p.ID, Kind: KindPack, Weight: weightPackTag})
			}
		}
	}
}

// AddRegistry adds every obligation's required signals as keywords
// for that obligation.
func (t *Table) AddRegistry(r *obligation.Registry) {
	for _, ob := range r.List("") {
		for _, sig := range ob.RequiredSignals {
			for _, kw := range Tokenize(sig) {
				if len(kw) < 2 {
					continue
				}
				t.Add(Entry{Keyword: kw, Target: ob.ID, Kind: KindObligation, Weight: weightRequiredSignal})
			}
		}
	}
}

// DefaultTable is the maintainer-authored keyword table covering the
// built-in catalog domains: HTTP cache correctness, latency and
// observability regressions, and IO fault injection.
func DefaultTable() *Table {
	t := NewTable()
	defaults := []Entry{
		{Keyword: "cache", Target: "edge-http-cache-correctness", Kind: KindPack, Weight: 0.95},
		{Keyword: "etag", Target: "edge-http-cache-correctness", Kind: KindPack, Weight: 0.85},
		{Keyword: "revalidate", Target: "edge-http-cache-correctness", Kind: KindPack, Weight: 0.85},
		{Keyword: "bypass", Target: "edge-http-cache-correctness", Kind: KindPack, Weight: 0.80},
		{Keyword: "stale", Target: "edge-http-cache-correctness", Kind: KindPack, Weight: 0.80},
		{Keyword: "304", Target: "edge-http-cache-correctness", Kind: KindPack, Weight: 0.75},
		{Keyword: "auth", Target: "edge-http-cache-correctness", Kind: KindPack, Weight: 0.70},
		{Keyword: "http", Target: "edge-http-cache-correctness", Kind: KindPack, Weight: 0.60},
		{Keyword: "vary", Target: "cache.vary.honored", Kind: KindObligation, Weight: 0.90},

		{Keyword: "latency", Target: "edge-latency-regression-observability", Kind: KindPack, Weight: 0.95},
		{Keyword: "observability", Target: "edge-latency-regression-observability", Kind: KindPack, Weight: 0.85},
		{Keyword: "p95", Target: "edge-latency-regression-observability", Kind: KindPack, Weight: 0.80},
		{Keyword: "regression", Target: "edge-latency-regression-observability", Kind: KindPack, Weight: 0.80},
		{Keyword: "percentile", Target: "edge-latency-regression-observability", Kind: KindPack, Weight: 0.75},
		{Keyword: "trace", Target: "edge-latency-regression-observability", Kind: KindPack, Weight: 0.70},
		{Keyword: "p99", Target: "latency.p99.regression", Kind: KindObligation, Weight: 0.90},
		{Keyword: "metric", Target: "observability.metrics.exposed", Kind: KindObligation, Weight: 0.85},

		{Keyword: "fault", Target: "fault-injection-io", Kind: KindPack, Weight: 0.95},
		{Keyword: "inject", Target: "fault-injection-io", Kind: KindPack, Weight: 0.90},
		{Keyword: "chaos", Target: "fault-injection-io", Kind: KindPack, Weight: 0.80},
		{Keyword: "io", Target: "fault-injection-io", Kind: KindPack, Weight: 0.65},
		{Keyword: "failure", Target: "fault-injection-io", Kind: KindPack, Weight: 0.60},
		{Keyword: "disk", Target: "fault.io.disk", Kind: KindObligation, Weight: 0.85},

		{Keyword: "failover", Target: "resilience.graceful.degradation", Kind: KindObligation, Weight: 0.85},
		{Keyword: "degrad", Target: "resilience.graceful.degradation", Kind: KindObligation, Weight: 0.80},
	}
	for _, e := range defaults {
		t.Add(e)
	}
	return t
}
