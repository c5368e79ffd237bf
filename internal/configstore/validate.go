package configstore

import (
	"fmt"

	"ga_friendliness/internal/domain"
)

// check runs the cross-document rules struct tags cannot express.
func (s *Store) check() []error {
	var problems []error
	known := make(map[string]bool, len(s.features))
	for _, f := range s.features {
		if known[f] {
			problems = append(problems, fmt.Errorf("features: duplicate feature %q", f))
		}
		known[f] = true
	}

	for _, a := range s.ontology.AspectNames() {
		seen := map[string]bool{}
		for _, l := range s.ontology.Aspects[a] {
			if seen[l] {
				problems = append(problems, fmt.Errorf("ontology: aspect %q: duplicate label %q", a, l))
			}
			seen[l] = true
		}
	}

	for _, p := range s.Personas() {
		owner := "persona " + p.ID
		for _, f := range sortedKeys(p.Weights) {
			if !known[f] {
				problems = append(problems, &domain.ScoringInconsistency{Owner: owner, Feature: f, Reason: "weight references unknown feature"})
			}
		}
		for _, f := range sortedKeys(p.SourcePreferences) {
			if !known[f] {
				problems = append(problems, &domain.ScoringInconsistency{Owner: owner, Feature: f, Reason: "source preference references unknown feature"})
			}
			if sp := p.SourcePreferences[f]; !sp.Valid() {
				problems = append(problems, fmt.Errorf("%s: feature %q: unknown source preference %q", owner, f, sp))
			}
		}
		for _, f := range sortedKeys(p.MissingBehaviors) {
			if !known[f] {
				problems = append(problems, &domain.ScoringInconsistency{Owner: owner, Feature: f, Reason: "missing behavior references unknown feature"})
			}
			if mb := p.MissingBehaviors[f]; !mb.Valid() {
				problems = append(problems, fmt.Errorf("%s: feature %q: unknown missing behavior %q", owner, f, mb))
			}
		}
	}
	if s.defaultPersona != "" {
		if _, ok := s.personas[s.defaultPersona]; !ok {
			problems = append(problems, fmt.Errorf("personas: default persona %q is not defined", s.defaultPersona))
		}
	}

	for i, r := range s.rules {
		owner := fmt.Sprintf("mapping rule %d", i)
		if r.Feature != "" && !known[r.Feature] {
			problems = append(problems, &domain.ScoringInconsistency{Owner: owner, Feature: r.Feature, Reason: "rule targets unknown feature"})
		}
		for _, a := range r.Aspects {
			if !s.ontology.HasAspect(a) {
				problems = append(problems, fmt.Errorf("%s: unknown aspect %q", owner, a))
			}
		}
		for _, l := range sortedKeys(r.LabelScores) {
			if !labelInAny(s.ontology, r.Aspects, l) {
				problems = append(problems, fmt.Errorf("%s: label %q is not defined for aspects %v", owner, l, r.Aspects))
			}
		}
	}
	return problems
}

func labelInAny(o domain.Ontology, aspects []string, label string) bool {
	for _, a := range aspects {
		if o.HasLabel(a, label) {
			return true
		}
	}
	return false
}
