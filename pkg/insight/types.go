// Package insight models extracted behavioral insights and their
// pairwise classification.
//
// An insight is one evidence unit produced by static analysis of a
// legacy test corpus. Insights arrive in the pending ledger partition;
// consolidation classifies them (reinforcing, complementary, or
// contradictory) and curation promotes them. Classification here is
// pure and symmetric: it suggests, it never decides a promotion.
package insight

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Confidence is the categorical strength label attached to an insight.
type Confidence string

const (
	ConfidenceLow      Confidence = "LOW"
	ConfidenceModerate Confidence = "MODERATE"
	ConfidenceHigh     Confidence = "HIGH"
)

// Scope classifies how far an insight generalizes.
type Scope string

const (
	// ScopeGeneralizable insights may be promoted into curated knowledge.
	ScopeGeneralizable Scope = "generalizable"
	// ScopeEnvironmentSpecific insights only held in the environment they
	// were extracted from. Excluded from every auto-promotion path.
	ScopeEnvironmentSpecific Scope = "environment-specific"
	// ScopeReferenceOnly insights are historical context, never promoted.
	ScopeReferenceOnly Scope = "reference-only"
)

// Insight is an extracted, evidenced behavioral pattern. A nil
// ObligationID proposes a brand-new obligation rather than reinforcing
// an existing one. Records are immutable once written to the ledger.
type Insight struct {
	ID            string     `json:"id"`
	Source        string     `json:"source"`
	ObligationID  *string    `json:"obligation_id"`
	Invariant     string     `json:"invariant"`
	Confidence    Confidence `json:"confidence"`
	Scope         Scope      `json:"scope"`
	EvidenceCount int        `json:"evidence_count"`
}

// Proposes reports whether the insight proposes a new obligation.
func (i *Insight) Proposes() bool {
	return i.ObligationID == nil
}

// GroupKey returns the consolidation group the insight belongs to:
// its obligation id, or the proposed-new bucket.
func (i *Insight) GroupKey() string {
	if i.ObligationID == nil {
		return ProposedGroup
	}
	return *i.ObligationID
}

// Promotable reports whether the insight's scope allows promotion at
// all. Environment-specific and reference-only insights stay pending
// as historical reference.
func (i *Insight) Promotable() bool {
	return i.Scope == ScopeGeneralizable
}

// ProposedGroup is the group key for insights with no obligation id.
const ProposedGroup = "proposed-new"

// EligibleProposal reports whether a proposing insight clears the
// gating bar: HIGH confidence and strictly more evidence than
// minEvidence. Eligible proposals are tagged PROPOSED in the
// consolidation summary; they still require explicit human approval
// before an obligation record is created.
func EligibleProposal(i *Insight, minEvidence int) bool {
	return i.Proposes() &&
		i.Promotable() &&
		i.Confidence == ConfidenceHigh &&
		i.EvidenceCount > minEvidence
}

// insightSchema validates the wire shape of an insight record.
const insightSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["id", "source", "obligation_id", "invariant", "confidence", "scope", "evidence_count"],
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "source": {"type": "string", "minLength": 1},
    "obligation_id": {"type": ["string", "null"], "minLength": 1},
    "invariant": {"type": "string", "minLength": 1},
    "confidence": {"enum": ["LOW", "MODERATE", "HIGH"]},
    "scope": {"enum": ["generalizable", "environment-specific", "reference-only"]},
    "evidence_count": {"type": "integer", "minimum": 0}
  },
  "additionalProperties": false
}`

var (
	schemaOnce    sync.Once
	compiled      *jsonschema.Schema
	schemaCompile error
)

func compiledInsightSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		const url = "https://vigil.schemas.local/insight.schema.json"
		if err := c.AddResource(url, strings.NewReader(insightSchema)); err != nil {
			schemaCompile = fmt.Errorf("insight schema load failed: %w", err)
			return
		}
		compiled, schemaCompile = c.Compile(url)
	})
	return compiled, schemaCompile
}

// SchemaError reports a malformed insight record. Fatal at ingest.
type SchemaError struct {
	Source string
	Detail string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("insight schema violation in %s: %s", e.Source, e.Detail)
}

// ParseRecord validates and decodes one insight JSON record. source is
// used in error messages only.
func ParseRecord(data []byte, source string) (*Insight, error) {
	schema, err := compiledInsightSchema()
	if err != nil {
		return nil, err
	}

	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &SchemaError{Source: source, Detail: fmt.Sprintf("invalid JSON: %v", err)}
	}
	if err := schema.Validate(raw); err != nil {
		return nil, &SchemaError{Source: source, Detail: err.Error()}
	}

	var ins Insight
	if err := json.Unmarshal(data, &ins); err != nil {
		return nil, &SchemaError{Source: source, Detail: fmt.Sprintf("decode failed: %v", err)}
	}
	return &ins, nil
}
