// Package match maps free-text feature descriptions to the packs and
// obligations that apply to them. A matcher is a pure function over a
// fixed keyword table: the same input always produces the same
// selection, so CI runs and local runs cannot disagree.
package match

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/Mindburn-Labs/vigil/pkg/pack"
)

const (
	// DefaultThreshold is the minimum score a pack needs to be
	// selected.
	DefaultThreshold = 0.5

	// DefaultPackID is the fallback pack used when nothing scores
	// above the threshold.
	DefaultPackID = "edge-http-cache-correctness"

	// minPrefixLen is the shortest keyword allowed to stem-match a
	// longer token. Shorter keywords ("io", "p99") match exactly
	// only, so "io" cannot hit "ionic".
	minPrefixLen = 4
)

// Matcher scores free text against a keyword table. The catalog is
// snapshotted at construction so Select and Explain never touch
// shared state.
type Matcher struct {
	table       *Table
	packIDs     []string
	coveredBy   map[string][]string
	threshold   float64
	defaultPack string
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithThreshold overrides the selection threshold.
func WithThreshold(v float64) Option {
	return func(m *Matcher) {
		if v > 0 {
			m.threshold = v
		}
	}
}

// WithDefaultPack overrides the fallback pack.
func WithDefaultPack(id string) Option {
	return func(m *Matcher) {
		if id != "" {
			m.defaultPack = id
		}
	}
}

// New builds a matcher over a table and a loaded catalog. Obligation
// keywords count toward every pack that covers the obligation.
func New(table *Table, catalog *pack.Catalog, opts ...Option) *Matcher {
	m := &Matcher{
		table:       table,
		coveredBy:   make(map[string][]string),
		threshold:   DefaultThreshold,
		defaultPack: DefaultPackID,
	}
	if catalog != nil {
		for _, p := range catalog.List() {
			m.packIDs = append(m.packIDs, p.ID)
			for _, ob := range p.CoveredObligations() {
				m.coveredBy[ob] = append(m.coveredBy[ob], p.ID)
			}
		}
	}
	sort.Strings(m.packIDs)
	for ob := range m.coveredBy {
		sort.Strings(m.coveredBy[ob])
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// PackScore is one ranked pack in a selection.
type PackScore struct {
	PackID string  `json:"pack_id"`
	Score  float64 `json:"score"`
}

// Selection is the outcome of matching one feature description.
type Selection struct {
	Packs       []PackScore `json:"packs"`
	Obligations []string    `json:"obligations,omitempty"`
	Warnings    []string    `json:"warnings,omitempty"`
}

// Match is one keyword hit, exposed by Explain so a reviewer can see
// exactly which terms drove a selection.
type Match struct {
	Keyword string  `json:"keyword"`
	Target  string  `json:"matched_target"`
	Weight  float64 `json:"weight"`
}

// matched pairs a table entry with how many input tokens hit it.
type matched struct {
	entry       Entry
	occurrences int
}

// Tokenize normalizes text for matching: NFC, Unicode case folding,
// then splitting on anything that is not a letter or digit.
func Tokenize(text string) []string {
	folded := cases.Fold().String(norm.NFC.String(text))
	return strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// tokenMatches reports whether an input token hits a keyword, either
// exactly or as a stemmed prefix ("auth" matching "authenticated").
func tokenMatches(keyword, token string) bool {
	if token == keyword {
		return true
	}
	return len(keyword) >= minPrefixLen && strings.HasPrefix(token, keyword)
}

// occurrenceFactor scales a keyword's weight by how often it
// appears. Repeats add a small bonus rather than multiplying, and
// nothing past the third occurrence counts.
func occurrenceFactor(n int) float64 {
	if n > 3 {
		n = 3
	}
	return 1 + 0.25*float64(n-1)
}

// matchEntries finds every table entry hit by the token list, in a
// fixed (keyword, target) order so score accumulation is
// deterministic.
func (m *Matcher) matchEntries(tokens []string) []matched {
	var out []matched
	for _, kw := range m.table.Keywords() {
		n := 0
		for _, tok := range tokens {
			if tokenMatches(kw, tok) {
				n++
			}
		}
		if n == 0 {
			continue
		}
		entries := append([]Entry(nil), m.table.Lookup(kw)...)
		sort.Slice(entries, func(i, j int) bool { return entries[i].Target < entries[j].Target })
		for _, e := range entries {
			out = append(out, matched{entry: e, occurrences: n})
		}
	}
	return out
}

// Select ranks the packs applicable to a feature description. Packs
// scoring at or above the threshold are returned ordered by score
// descending, ties broken by pack id ascending. When nothing
// qualifies the default pack is returned together with a warning.
func (m *Matcher) Select(text string) *Selection {
	matches := m.matchEntries(Tokenize(text))

	scores := make(map[string]float64)
	obligations := make(map[string]bool)
	for _, mt := range matches {
		contribution := mt.entry.Weight * occurrenceFactor(mt.occurrences)
		switch mt.entry.Kind {
		case KindPack:
			scores[mt.entry.Target] += contribution
		case KindObligation:
			obligations[mt.entry.Target] = true
			for _, packID := range m.coveredBy[mt.entry.Target] {
				scores[packID] += contribution
			}
		}
	}

	sel := &Selection{}
	for id, score := range scores {
		if score >= m.threshold {
			sel.Packs = append(sel.Packs, PackScore{PackID: id, Score: score})
		}
	}
	sort.Slice(sel.Packs, func(i, j int) bool {
		if sel.Packs[i].Score != sel.Packs[j].Score {
			return sel.Packs[i].Score > sel.Packs[j].Score
		}
		return sel.Packs[i].PackID < sel.Packs[j].PackID
	})
	for ob := range obligations {
		sel.Obligations = append(sel.Obligations, ob)
	}
	sort.Strings(sel.Obligations)

	if len(sel.Packs) == 0 {
		sel.Packs = []PackScore{{PackID: m.defaultPack, Score: scores[m.defaultPack]}}
		sel.Warnings = append(sel.Warnings,
			fmt.Sprintf("no strong match above threshold %.2f; defaulting to pack %q", m.threshold, m.defaultPack))
	}
	return sel
}

// Explain returns every keyword hit for a feature description,
// ordered by weight descending so the strongest evidence reads
// first.
func (m *Matcher) Explain(text string) []Match {
	matches := m.matchEntries(Tokenize(text))
	out := make([]Match, 0, len(matches))
	for _, mt := range matches {
		out = append(out, Match{
			Keyword: mt.entry.Keyword,
			Target:  mt.entry.Target,
			Weight:  mt.entry.Weight,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		if out[i].Keyword != out[j].Keyword {
			return out[i].Keyword < out[j].Keyword
		}
		return out[i].Target < out[j].Target
	})
	return out
}
