package domain

import "sort"

// Ontology is the closed vocabulary extraction must stay within.
type Ontology struct {
	Version string
	Aspects map[string][]string
}

func (o Ontology) HasAspect(aspect string) bool {
	_, ok := o.Aspects[aspect]
	return ok
}

func (o Ontology) HasLabel(aspect, label string) bool {
	for _, l := range o.Aspects[aspect] {
		if l == label {
			return true
		}
	}
	return false
}

// AspectNames returns aspect names in sorted order.
func (o Ontology) AspectNames() []string {
	out := make([]string, 0, len(o.Aspects))
	for a := range o.Aspects {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}
