// Package obligation implements the committed obligation catalog.
//
// Obligations are maintainer-authored, immutable release properties
// (e.g. "cache.vary.honored"). They are loaded once at startup from
// YAML sources, schema-validated at the boundary, and indexed for
// deterministic lookup. The registry is read-only after load.
package obligation

import "fmt"

// Risk is the categorical risk level of an obligation.
type Risk string

const (
	RiskLow    Risk = "low"
	RiskMedium Risk = "medium"
	RiskHigh   Risk = "high"
)

// Valid reports whether the risk level is one of the known values.
func (r Risk) Valid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh:
		return true
	}
	return false
}

// SuggestedCheck names a concrete verification an obligation recommends.
// Method identifies the capability that executes it (e.g. "dtrace",
// "prometheus", "http-probe").
type SuggestedCheck struct {
	Name   string `yaml:"name" json:"name"`
	Method string `yaml:"method" json:"method"`
}

// Obligation is a portable, checkable correctness property a system
// must satisfy before release. Instances are immutable after load.
type Obligation struct {
	ID                string           `yaml:"id" json:"id"`
	Title             string           `yaml:"title" json:"title"`
	Domain            string           `yaml:"domain" json:"domain"`
	Risk              Risk             `yaml:"risk" json:"risk"`
	SafeInProd        bool             `yaml:"safe_in_prod" json:"safe_in_prod"`
	RequiredSignals   []string         `yaml:"required_signals,omitempty" json:"required_signals,omitempty"`
	PassCriteria      []string         `yaml:"pass_criteria" json:"pass_criteria"`
	SuggestedChecks   []SuggestedCheck `yaml:"suggested_checks,omitempty" json:"suggested_checks,omitempty"`
	EvidenceToCapture []string         `yaml:"evidence_to_capture,omitempty" json:"evidence_to_capture,omitempty"`
}

// Methods returns the distinct capability methods referenced by the
// obligation's suggested checks, in declaration order.
func (o *Obligation) Methods() []string {
	seen := make(map[string]bool, len(o.SuggestedChecks))
	methods := make([]string, 0, len(o.SuggestedChecks))
	for _, c := range o.SuggestedChecks {
		if c.Method == "" || seen[c.Method] {
			continue
		}
		seen[c.Method] = true
		methods = append(methods, c.Method)
	}
	return methods
}

func (o *Obligation) String() string {
	return fmt.Sprintf("%s (%s, risk=%s)", o.ID, o.Domain, o.Risk)
}
