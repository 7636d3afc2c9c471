package insight

import (
	"sort"
	"strings"
)

// Relation is the pairwise classification of two insights in the same
// consolidation group.
type Relation string

const (
	// RelationReinforcing: same mechanism, same polarity. Evidence
	// accumulates toward the shared obligation.
	RelationReinforcing Relation = "reinforcing"
	// RelationComplementary: distinct mechanisms supporting the same
	// obligation. Both are retained; never collapsed into one.
	RelationComplementary Relation = "complementary"
	// RelationContradictory: mutually exclusive conditions asserted for
	// the same mechanism. Blocks promotion of the pair until a human
	// resolves it.
	RelationContradictory Relation = "contradictory"
)

// polarity of a normalized invariant predicate.
type polarity int

const (
	polarityPositive polarity = iota
	polarityNegative
)

// negativeMarkers flip an invariant's polarity. Checked against the
// normalized predicate text.
var negativeMarkers = []string{
	"must not", "must never", "may not", "shall not", "should not",
	"never", "not be", "no longer", "forbidden", "disallowed",
}

// stopTokens carry no mechanism information and are excluded from
// mechanism comparison.
var stopTokens = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "be": true,
	"by": true, "for": true, "from": true, "in": true, "is": true,
	"it": true, "must": true, "never": true, "not": true, "no": true,
	"of": true, "on": true, "or": true, "shall": true, "should": true,
	"the": true, "to": true, "with": true, "always": true, "when": true,
	"request": true, "requests": true, "response": true, "responses": true,
}

// Normalize lowercases an invariant predicate, strips punctuation, and
// collapses whitespace. Classification and ledger hashing both operate
// on normalized text so equivalent phrasings compare equal.
func Normalize(invariant string) string {
	lowered := strings.ToLower(invariant)
	var b strings.Builder
	b.Grow(len(lowered))
	for _, r := range lowered {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func invariantPolarity(normalized string) polarity {
	for _, marker := range negativeMarkers {
		if strings.Contains(normalized, marker) {
			return polarityNegative
		}
	}
	return polarityPositive
}

// mechanismTokens returns the sorted significant tokens of a normalized
// invariant, the terms identifying which mechanism it talks about.
func mechanismTokens(normalized string) []string {
	fields := strings.Fields(normalized)
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if !stopTokens[f] {
			seen[f] = true
		}
	}
	out := make([]string, 0, len(seen))
	for tok := range seen {
		out = append(out, tok)
	}
	sort.Strings(out)
	return out
}

// mechanismOverlap is the Jaccard similarity of two token sets.
func mechanismOverlap(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}
	inA := make(map[string]bool, len(a))
	for _, tok := range a {
		inA[tok] = true
	}
	shared := 0
	for _, tok := range b {
		if inA[tok] {
			shared++
		}
	}
	union := len(a) + len(b) - shared
	return float64(shared) / float64(union)
}

// sameMechanismThreshold: above this token overlap two invariants are
// considered statements about the same mechanism.
const sameMechanismThreshold = 0.5

// Classify determines the relation between two insights of the same
// group. It is symmetric: Classify(a, b) == Classify(b, a). The result
// is a suggestion for the consolidation summary; a contradictory
// verdict blocks promotion, but no verdict ever causes one.
func Classify(a, b *Insight) Relation {
	na := Normalize(a.Invariant)
	nb := Normalize(b.Invariant)

	overlap := mechanismOverlap(mechanismTokens(na), mechanismTokens(nb))
	sameMechanism := overlap >= sameMechanismThreshold

	if sameMechanism && invariantPolarity(na) != invariantPolarity(nb) {
		return RelationContradictory
	}
	if sameMechanism {
		return RelationReinforcing
	}
	return RelationComplementary
}
