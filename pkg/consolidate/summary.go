package consolidate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// StatusProposed tags a proposal that cleared the evidence gate and
// now waits for human approval. Proposals are never auto-adopted.
const StatusProposed = "PROPOSED"

// Pair names two insights related within a group. A sorts before B.
type Pair struct {
	A string `json:"a"`
	B string `json:"b"`
}

// Reinforced summarizes the promotable insights supporting one
// obligation. Reinforcing and complementary pairs are reported
// separately: complementary insights describe distinct mechanisms and
// must never be collapsed into one.
type Reinforced struct {
	ObligationID  string   `json:"obligation_id"`
	InsightCount  int      `json:"insight_count"`
	EvidenceCount int      `json:"evidence_count"`
	InsightIDs    []string `json:"insight_ids"`
	Reinforcing   []Pair   `json:"reinforcing,omitempty"`
	Complementary []Pair   `json:"complementary,omitempty"`
}

// Proposal is a null-obligation insight that passed the proposal
// gate: confidence HIGH and evidence count above the configured
// minimum.
type Proposal struct {
	InsightID     string `json:"insight_id"`
	Invariant     string `json:"invariant"`
	EvidenceCount int    `json:"evidence_count"`
	Status        string `json:"status"`
}

// Contradiction records an unresolved disagreement. Both insights
// stay in the pending partition and neither can be promoted until a
// human resolves the pair.
type Contradiction struct {
	Group      string `json:"group"`
	A          string `json:"a"`
	B          string `json:"b"`
	InvariantA string `json:"invariant_a"`
	InvariantB string `json:"invariant_b"`
}

// Summary is the consolidation artifact a maintainer reviews before
// committing curated knowledge.
type Summary struct {
	GeneratedAt         time.Time       `json:"generated_at"`
	PendingCount        int             `json:"pending_count"`
	Reinforced          []Reinforced    `json:"reinforced"`
	Proposals           []Proposal      `json:"proposals"`
	Contradictions      []Contradiction `json:"contradictions"`
	SkippedScopes       map[string]int  `json:"skipped_scopes"`
	IneligibleProposals int             `json:"ineligible_proposals"`
}

// WriteSummary persists the summary as indented JSON.
func WriteSummary(path string, s *Summary) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("create summary dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}
