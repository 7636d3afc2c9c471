package criteria

import (
	"fmt"
	"sort"

	"github.com/Mindburn-Labs/vigil/pkg/pack"
)

// Rule is one bound assertion: the obligation it verifies, the pack
// template that binds it, and the expression source text.
type Rule struct {
	ObligationID       string
	PackID             string
	TemplateID         string
	Priority           int
	Description        string
	Expression         string
	RequiresPrivileged bool
	FallbackAvailable  bool
}

// RuleSet indexes every pack assertion with an expression by the
// obligations its template verifies. Built once at catalog load,
// immutable afterwards.
type RuleSet struct {
	engine *Engine
	rules  map[string][]Rule
}

// BuildRuleSet validates and compiles every template assertion in the
// catalog. One non-deterministic or uncompilable expression fails the
// whole load: a gate must not run with half its assertions bound.
func BuildRuleSet(cat *pack.Catalog, engine *Engine) (*RuleSet, error) {
	validator, err := NewValidator()
	if err != nil {
		return nil, err
	}

	rs := &RuleSet{engine: engine, rules: make(map[string][]Rule)}
	for _, p := range cat.List() {
		for _, tt := range p.TestTemplates {
			for _, a := range tt.Assertions {
				if a.Expression == "" {
					continue
				}
				if err := validator.Validate(a.Expression); err != nil {
					return nil, fmt.Errorf("pack %s template %s: %w", p.ID, tt.ID, err)
				}
				if err := engine.Compile(a.Expression); err != nil {
					return nil, fmt.Errorf("pack %s template %s: %w", p.ID, tt.ID, err)
				}
				for _, ob := range tt.ObligationIDs {
					if pack.IsProposedRef(ob) {
						continue
					}
					rs.rules[ob] = append(rs.rules[ob], Rule{
						ObligationID:       ob,
						PackID:             p.ID,
						TemplateID:         tt.ID,
						Priority:           tt.Priority,
						Description:        a.Description,
						Expression:         a.Expression,
						RequiresPrivileged: tt.RequiresPrivileged,
						FallbackAvailable:  tt.FallbackAvailable,
					})
				}
			}
		}
	}

	for ob := range rs.rules {
		rules := rs.rules[ob]
		sort.SliceStable(rules, func(i, j int) bool {
			if rules[i].Priority != rules[j].Priority {
				return rules[i].Priority < rules[j].Priority
			}
			if rules[i].PackID != rules[j].PackID {
				return rules[i].PackID < rules[j].PackID
			}
			return rules[i].TemplateID < rules[j].TemplateID
		})
	}
	return rs, nil
}

// ForObligation returns the bound rules in evaluation order: template
// priority ascending, then pack id, then template id.
func (rs *RuleSet) ForObligation(obligationID string) []Rule {
	return rs.rules[obligationID]
}

// Bound reports whether any rule is bound to the obligation.
func (rs *RuleSet) Bound(obligationID string) bool {
	return len(rs.rules[obligationID]) > 0
}

// Templates returns the distinct pack/template pairs bound to an
// obligation, in rule order. An obligation with more than one is
// composite for gate purposes.
func (rs *RuleSet) Templates(obligationID string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range rs.rules[obligationID] {
		key := r.PackID + "/" + r.TemplateID
		if !seen[key] {
			seen[key] = true
			out = append(out, key)
		}
	}
	return out
}

// Evaluate runs one rule against an evidence document.
func (rs *RuleSet) Evaluate(rule Rule, evidence map[string]any) (bool, error) {
	return rs.engine.Evaluate(rule.Expression, evidence)
}
