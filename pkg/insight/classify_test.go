package insight

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strptr(s string) *string { return &s }

func TestNormalize(t *testing.T) {
	assert.Equal(t,
		"stale responses must not be served past max stale",
		Normalize("  Stale responses MUST NOT be served past max-stale!  "))
	assert.Equal(t, "", Normalize("  ,;:  "))
}

func TestClassify_ContradictionIsSymmetric(t *testing.T) {
	a := &Insight{ID: "i-1", Invariant: "stale content must always be served during origin outage"}
	b := &Insight{ID: "i-2", Invariant: "stale content must never be served during origin outage"}

	require.Equal(t, RelationContradictory, Classify(a, b))
	require.Equal(t, RelationContradictory, Classify(b, a))
}

func TestClassify_DistinctMechanismsAreComplementary(t *testing.T) {
	// The two graceful-degradation behaviors describe different
	// mechanisms supporting the same obligation.
	a := &Insight{ID: "i-1", Invariant: "failover to backup origin when primary is unreachable"}
	b := &Insight{ID: "i-2", Invariant: "serve stale cached copy on upstream not found"}

	assert.Equal(t, RelationComplementary, Classify(a, b))
	assert.Equal(t, RelationComplementary, Classify(b, a))
}

func TestClassify_SameMechanismSamePolarityReinforces(t *testing.T) {
	a := &Insight{ID: "i-1", Invariant: "cache key must include every vary header"}
	b := &Insight{ID: "i-2", Invariant: "vary header must be included in cache key"}

	assert.Equal(t, RelationReinforcing, Classify(a, b))
}

func TestEligibleProposal(t *testing.T) {
	base := Insight{
		ID:            "i-p",
		Source:        "legacy-suite",
		Invariant:     "retry budget capped per upstream",
		Confidence:    ConfidenceHigh,
		Scope:         ScopeGeneralizable,
		EvidenceCount: 8,
	}

	eligible := base
	assert.True(t, EligibleProposal(&eligible, 5))

	notProposal := base
	notProposal.ObligationID = strptr("cache.vary.honored")
	assert.False(t, EligibleProposal(&notProposal, 5))

	lowConfidence := base
	lowConfidence.Confidence = ConfidenceModerate
	assert.False(t, EligibleProposal(&lowConfidence, 5))

	thinEvidence := base
	thinEvidence.EvidenceCount = 5 // must be strictly greater
	assert.False(t, EligibleProposal(&thinEvidence, 5))

	envSpecific := base
	envSpecific.Scope = ScopeEnvironmentSpecific
	assert.False(t, EligibleProposal(&envSpecific, 5))
}

func TestParseRecord(t *testing.T) {
	good := `{
	  "id": "i-42",
	  "source": "legacy-cache-suite",
	  "obligation_id": "cache.vary.honored",
	  "invariant": "cache key must include every vary header",
	  "confidence": "HIGH",
	  "scope": "generalizable",
	  "evidence_count": 12
	}`
	ins, err := ParseRecord([]byte(good), "i-42.json")
	require.NoError(t, err)
	require.NotNil(t, ins.ObligationID)
	assert.Equal(t, "cache.vary.honored", *ins.ObligationID)
	assert.Equal(t, "cache.vary.honored", ins.GroupKey())
	assert.False(t, ins.Proposes())

	proposal := `{
	  "id": "i-43",
	  "source": "legacy-cache-suite",
	  "obligation_id": null,
	  "invariant": "retry budget capped per upstream",
	  "confidence": "HIGH",
	  "scope": "generalizable",
	  "evidence_count": 8
	}`
	ins, err = ParseRecord([]byte(proposal), "i-43.json")
	require.NoError(t, err)
	assert.True(t, ins.Proposes())
	assert.Equal(t, ProposedGroup, ins.GroupKey())
}

func TestParseRecord_SchemaViolations(t *testing.T) {
	cases := []struct {
		name string
		json string
	}{
		{"missing confidence", `{"id":"i","source":"s","obligation_id":null,"invariant":"x","scope":"generalizable","evidence_count":1}`},
		{"bad confidence", `{"id":"i","source":"s","obligation_id":null,"invariant":"x","confidence":"SURE","scope":"generalizable","evidence_count":1}`},
		{"negative evidence", `{"id":"i","source":"s","obligation_id":null,"invariant":"x","confidence":"LOW","scope":"generalizable","evidence_count":-1}`},
		{"not json", `{{`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseRecord([]byte(tc.json), tc.name)
			require.Error(t, err)
			var se *SchemaError
			assert.ErrorAs(t, err, &se)
		})
	}
}
