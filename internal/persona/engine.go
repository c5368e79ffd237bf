// Package persona scores airports for a pilot profile from stored feature
// scores. Everything here is pure and deterministic.
package persona

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"ga_friendliness/internal/domain"
)

// DefaultReviewWeight is the review share when both sources are combined.
const DefaultReviewWeight = 0.7

type Engine struct {
	reviewWeight float64
}

type Option func(*Engine)

// WithReviewWeight sets the review share of a combined value, in [0,1].
func WithReviewWeight(w float64) Option {
	return func(e *Engine) {
		if w >= 0 && w <= 1 {
			e.reviewWeight = w
		}
	}
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{reviewWeight: DefaultReviewWeight}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Version identifies everything that decides p's scores under this engine:
// the persona's weights, preferences and missing behaviors plus the review
// weight. Cached scores are keyed by it.
func (e *Engine) Version(p domain.Persona) string {
	b, _ := json.Marshal(struct {
		Weights           map[string]float64                 `json:"weights"`
		SourcePreferences map[string]domain.SourcePreference `json:"source_preferences"`
		MissingBehaviors  map[string]domain.MissingBehavior  `json:"missing_behaviors"`
		ReviewWeight      float64                            `json:"review_weight"`
	}{p.Weights, p.SourcePreferences, p.MissingBehaviors, e.reviewWeight})
	sum := sha256.Sum256(b)
	return p.ID + "@" + hex.EncodeToString(sum[:])[:12]
}

// Contribution explains one weighted feature. Value is nil when Excluded.
type Contribution struct {
	Feature      string            `json:"feature"`
	Weight       float64           `json:"weight"`
	Review       *float64          `json:"review,omitempty"`
	Metadata     *float64          `json:"metadata,omitempty"`
	Value        *float64          `json:"value,omitempty"`
	Source       domain.Provenance `json:"source,omitempty"`
	Missing      bool              `json:"missing"`
	Excluded     bool              `json:"excluded"`
	Contribution float64           `json:"contribution"`
}

type Explanation struct {
	PersonaID     string         `json:"persona_id"`
	Score         *float64       `json:"score"`
	TotalWeight   float64        `json:"total_weight"`
	Contributions []Contribution `json:"contributions"`
}

// ComputeScore returns Σ(w·v)/Σ(non-excluded w), or nil when every weighted
// feature was excluded.
func (e *Engine) ComputeScore(p domain.Persona, f domain.AirportFeatures) *float64 {
	return e.ExplainScore(p, f).Score
}

// ExplainScore returns the score with per-feature contributions that sum to
// it.
func (e *Engine) ExplainScore(p domain.Persona, f domain.AirportFeatures) Explanation {
	ex := Explanation{PersonaID: p.ID}
	var num float64
	for _, name := range p.WeightedFeatures() {
		c := Contribution{
			Feature:  name,
			Weight:   p.Weights[name],
			Review:   f.Review.Get(name),
			Metadata: f.Metadata.Get(name),
		}
		v, src := e.resolve(p.PreferenceFor(name), c.Review, c.Metadata)
		if v == nil {
			c.Missing = true
			v = missingValue(p.MissingFor(name))
			src = domain.FromDefault
		}
		if v == nil {
			c.Excluded = true
			ex.Contributions = append(ex.Contributions, c)
			continue
		}
		c.Value, c.Source = v, src
		num += c.Weight * *v
		ex.TotalWeight += c.Weight
		ex.Contributions = append(ex.Contributions, c)
	}
	if ex.TotalWeight <= 0 {
		return ex
	}
	ex.Score = domain.Float(num / ex.TotalWeight)
	for i := range ex.Contributions {
		c := &ex.Contributions[i]
		if !c.Excluded {
			c.Contribution = c.Weight * *c.Value / ex.TotalWeight
		}
	}
	return ex
}

func (e *Engine) resolve(pref domain.SourcePreference, review, meta *float64) (*float64, domain.Provenance) {
	switch pref {
	case domain.ReviewOnly:
		return review, domain.FromReview
	case domain.MetadataOnly:
		return meta, domain.FromMetadata
	case domain.PreferReview:
		if review != nil {
			return review, domain.FromReview
		}
		return meta, domain.FromMetadata
	case domain.PreferMetadata:
		if meta != nil {
			return meta, domain.FromMetadata
		}
		return review, domain.FromReview
	case domain.RequireBoth:
		if review == nil || meta == nil {
			return nil, ""
		}
		return e.combine(*review, *meta), domain.FromCombined
	default: // prefer_combined
		switch {
		case review != nil && meta != nil:
			return e.combine(*review, *meta), domain.FromCombined
		case review != nil:
			return review, domain.FromReview
		}
		return meta, domain.FromMetadata
	}
}

func (e *Engine) combine(review, meta float64) *float64 {
	return domain.Float(e.reviewWeight*review + (1-e.reviewWeight)*meta)
}

// missingValue returns nil for exclude.
func missingValue(m domain.MissingBehavior) *float64 {
	switch m {
	case domain.MissingNegative:
		return domain.Float(0.0)
	case domain.MissingPositive:
		return domain.Float(1.0)
	case domain.MissingExclude:
		return nil
	}
	return domain.Float(0.5)
}
