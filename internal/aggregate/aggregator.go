// Package aggregate maps validated review tags and structured airport facts
// to [0,1] feature scores.
package aggregate

import (
	"sort"
	"time"

	"ga_friendliness/internal/configstore"
	"ga_friendliness/internal/domain"
)

// Distribution is label -> weighted count for one aspect.
type Distribution map[string]float64

type Result struct {
	AirportID     string
	Distributions map[string]Distribution
	Features      domain.FeatureScores
	// Evidence is the total weight behind each review feature.
	Evidence map[string]float64
	TagCount int
	// Reference is the time decay was measured from.
	Reference time.Time
}

type Aggregator struct {
	rules     []domain.MappingRule
	decay     Decay
	smoothing Smoothing
}

type Option func(*Aggregator)

func WithDecay(d Decay) Option { return func(a *Aggregator) { a.decay = d } }

func WithSmoothing(s Smoothing) Option { return func(a *Aggregator) { a.smoothing = s } }

func New(rules []domain.MappingRule, opts ...Option) *Aggregator {
	a := &Aggregator{rules: rules, decay: NoDecay{}, smoothing: NoSmoothing{}}
	for _, o := range opts {
		o(a)
	}
	return a
}

// FromConfig selects strategies from the aggregation settings.
func FromConfig(cfg *configstore.Store) *Aggregator {
	s := cfg.Aggregation()
	var opts []Option
	if s.DecayHalfLifeDays > 0 {
		opts = append(opts, WithDecay(HalfLifeDecay{HalfLife: time.Duration(s.DecayHalfLifeDays * float64(24*time.Hour))}))
	}
	if s.SmoothingStrength > 0 {
		opts = append(opts, WithSmoothing(BayesianSmoothing{Strength: s.SmoothingStrength, Prior: s.SmoothingPrior}))
	}
	return New(cfg.Rules(), opts...)
}

// Aggregate is deterministic: tags are ordered before summation and decay is
// measured from the newest tag, never from the wall clock.
func (a *Aggregator) Aggregate(airportID string, tags []domain.ReviewTag) Result {
	sorted := append([]domain.ReviewTag(nil), tags...)
	sort.Slice(sorted, func(i, j int) bool {
		x, y := sorted[i], sorted[j]
		if x.ReviewID != y.ReviewID {
			return x.ReviewID < y.ReviewID
		}
		if x.Aspect != y.Aspect {
			return x.Aspect < y.Aspect
		}
		return x.Label < y.Label
	})

	var ref time.Time
	for _, t := range sorted {
		if t.Timestamp.After(ref) {
			ref = t.Timestamp
		}
	}

	res := Result{
		AirportID:     airportID,
		Distributions: map[string]Distribution{},
		Features:      domain.FeatureScores{},
		Evidence:      map[string]float64{},
		TagCount:      len(sorted),
		Reference:     ref,
	}
	for _, t := range sorted {
		d := res.Distributions[t.Aspect]
		if d == nil {
			d = Distribution{}
			res.Distributions[t.Aspect] = d
		}
		d[t.Label] += t.Confidence * a.decay.Weight(t.Timestamp, ref)
	}

	type acc struct{ sum, weight float64 }
	byFeature := map[string]*acc{}
	var order []string
	for _, r := range a.rules {
		s, w := apply(r, res.Distributions)
		if byFeature[r.Feature] == nil {
			byFeature[r.Feature] = &acc{}
			order = append(order, r.Feature)
		}
		byFeature[r.Feature].sum += s
		byFeature[r.Feature].weight += w
	}
	for _, f := range order {
		ac := byFeature[f]
		if v, ok := a.smoothing.Apply(ac.sum, ac.weight); ok {
			res.Features[f] = domain.Float(clamp01(v))
			res.Evidence[f] = ac.weight
		} else {
			res.Features[f] = nil
		}
	}
	return res
}

// apply is the default mapping rule: a confidence-weighted mean of label
// scores, returned as (Σw·s, Σw) so rules for one feature can be pooled.
func apply(r domain.MappingRule, dists map[string]Distribution) (sum, weight float64) {
	for _, aspect := range r.Aspects {
		d := dists[aspect]
		labels := make([]string, 0, len(d))
		for l := range d {
			labels = append(labels, l)
		}
		sort.Strings(labels)
		for _, l := range labels {
			score, ok := r.LabelScores[l]
			if !ok {
				continue
			}
			sum += d[l] * score
			weight += d[l]
		}
	}
	return sum, weight
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
