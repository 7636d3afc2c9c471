// Package pack implements the knowledge pack catalog.
//
// A pack bundles the failure modes, test templates, and recipes for one
// edge domain (e.g. edge-http-cache-correctness) together with the set
// of obligations it covers. Packs are semver-versioned; the catalog
// keeps the highest version per pack id.
package pack

import (
	"strings"
)

// Severity of a failure mode.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// FailureMode describes one way the covered domain breaks in production.
type FailureMode struct {
	ID                   string   `yaml:"id" json:"id"`
	Name                 string   `yaml:"name" json:"name"`
	Severity             Severity `yaml:"severity" json:"severity"`
	Symptoms             []string `yaml:"symptoms,omitempty" json:"symptoms,omitempty"`
	RootCauses           []string `yaml:"root_causes,omitempty" json:"root_causes,omitempty"`
	MitigationStrategies []string `yaml:"mitigation_strategies,omitempty" json:"mitigation_strategies,omitempty"`
	Tags                 []string `yaml:"tags,omitempty" json:"tags,omitempty"`
}

// TemplateAssertion is a single machine-checkable condition inside a
// test template. Description names the pass criterion it verifies;
// Expression is an optional CEL expression over the evidence document.
// Descriptions without expressions are checked via the structured
// criteria flags collaborators record in evidence.
type TemplateAssertion struct {
	Description string `yaml:"description" json:"description"`
	Expression  string `yaml:"expression,omitempty" json:"expression,omitempty"`
}

// TestTemplate is a reusable test recipe bound to a failure mode.
type TestTemplate struct {
	ID                 string              `yaml:"id" json:"id"`
	Name               string              `yaml:"name" json:"name"`
	FailureModeID      string              `yaml:"failure_mode_id" json:"failure_mode_id"`
	Priority           int                 `yaml:"priority,omitempty" json:"priority,omitempty"`
	SetupSteps         []string            `yaml:"setup_steps,omitempty" json:"setup_steps,omitempty"`
	ExecutionSteps     []string            `yaml:"execution_steps,omitempty" json:"execution_steps,omitempty"`
	Assertions         []TemplateAssertion `yaml:"assertions,omitempty" json:"assertions,omitempty"`
	CleanupSteps       []string            `yaml:"cleanup_steps,omitempty" json:"cleanup_steps,omitempty"`
	RequiresPrivileged bool                `yaml:"requires_privileged,omitempty" json:"requires_privileged,omitempty"`
	FallbackAvailable  bool                `yaml:"fallback_available,omitempty" json:"fallback_available,omitempty"`
	ObligationIDs      []string            `yaml:"obligation_ids,omitempty" json:"obligation_ids,omitempty"`
}

// Recipe is a short operational playbook carried alongside templates.
type Recipe struct {
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Steps       []string `yaml:"steps,omitempty" json:"steps,omitempty"`
}

// Pack is a maintainer-authored knowledge bundle for one domain.
type Pack struct {
	ID                 string         `yaml:"id" json:"id"`
	Name               string         `yaml:"name" json:"name"`
	Version            string         `yaml:"version" json:"version"`
	Description        string         `yaml:"description,omitempty" json:"description,omitempty"`
	Tags               []string       `yaml:"tags,omitempty" json:"tags,omitempty"`
	FailureModes       []FailureMode  `yaml:"failure_modes,omitempty" json:"failure_modes,omitempty"`
	TestTemplates      []TestTemplate `yaml:"test_templates,omitempty" json:"test_templates,omitempty"`
	ObligationsCovered []string       `yaml:"obligations_covered,omitempty" json:"obligations_covered,omitempty"`
	Recipes            []Recipe       `yaml:"recipes,omitempty" json:"recipes,omitempty"`
	References         []string       `yaml:"references,omitempty" json:"references,omitempty"`

	// ContentHash is the sha256 of the source document, set at load.
	ContentHash string `yaml:"-" json:"content_hash,omitempty"`
	// Source is the file the pack was loaded from, set at load.
	Source string `yaml:"-" json:"-"`
}

// proposedPrefix marks an obligations_covered entry that references an
// obligation proposed by the consolidation pipeline but not yet adopted
// into the registry.
const proposedPrefix = "proposed:"

// IsProposedRef reports whether an obligations_covered entry is an
// explicit proposed-obligation reference.
func IsProposedRef(ref string) bool {
	return strings.HasPrefix(ref, proposedPrefix)
}

// CoveredObligations returns the adopted obligation ids the pack covers,
// excluding proposed references.
func (p *Pack) CoveredObligations() []string {
	out := make([]string, 0, len(p.ObligationsCovered))
	for _, ref := range p.ObligationsCovered {
		if !IsProposedRef(ref) {
			out = append(out, ref)
		}
	}
	return out
}

// FindFailureMode returns the failure mode with the given id, if present.
func (p *Pack) FindFailureMode(id string) (*FailureMode, bool) {
	for i := range p.FailureModes {
		if p.FailureModes[i].ID == id {
			return &p.FailureModes[i], true
		}
	}
	return nil, false
}

// TemplatesForObligation returns the templates that verify the given
// obligation, in declaration order.
func (p *Pack) TemplatesForObligation(obligationID string) []*TestTemplate {
	var out []*TestTemplate
	for i := range p.TestTemplates {
		for _, id := range p.TestTemplates[i].ObligationIDs {
			if id == obligationID {
				out = append(out, &p.TestTemplates[i])
				break
			}
		}
	}
	return out
}
