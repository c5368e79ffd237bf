package domain

import "sort"

type SourcePreference string

const (
	PreferReview   SourcePreference = "prefer_review"
	PreferMetadata SourcePreference = "prefer_metadata"
	PreferCombined SourcePreference = "prefer_combined"
	RequireBoth    SourcePreference = "require_both"
	ReviewOnly     SourcePreference = "review_only"
	MetadataOnly   SourcePreference = "metadata_only"
)

func (p SourcePreference) Valid() bool {
	switch p {
	case PreferReview, PreferMetadata, PreferCombined, RequireBoth, ReviewOnly, MetadataOnly:
		return true
	}
	return false
}

type MissingBehavior string

const (
	MissingNeutral  MissingBehavior = "neutral"
	MissingNegative MissingBehavior = "negative"
	MissingPositive MissingBehavior = "positive"
	MissingExclude  MissingBehavior = "exclude"
)

func (m MissingBehavior) Valid() bool {
	switch m {
	case MissingNeutral, MissingNegative, MissingPositive, MissingExclude:
		return true
	}
	return false
}

// Persona weights features to express one pilot profile's priorities.
// A feature without a weight contributes nothing.
type Persona struct {
	ID                string                      `json:"id"`
	Label             string                      `json:"label"`
	Description       string                      `json:"description,omitempty"`
	Weights           map[string]float64          `json:"weights"`
	SourcePreferences map[string]SourcePreference `json:"source_preferences,omitempty"`
	MissingBehaviors  map[string]MissingBehavior  `json:"missing_behaviors,omitempty"`
}

// WeightedFeatures returns features with a positive weight, sorted.
func (p Persona) WeightedFeatures() []string {
	out := make([]string, 0, len(p.Weights))
	for f, w := range p.Weights {
		if w > 0 {
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out
}

func (p Persona) PreferenceFor(feature string) SourcePreference {
	if sp, ok := p.SourcePreferences[feature]; ok && sp != "" {
		return sp
	}
	return PreferCombined
}

func (p Persona) MissingFor(feature string) MissingBehavior {
	if mb, ok := p.MissingBehaviors[feature]; ok && mb != "" {
		return mb
	}
	return MissingNeutral
}
