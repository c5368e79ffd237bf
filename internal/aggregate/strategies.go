package aggregate

import (
	"math"
	"time"
)

// Decay weights a tag by its age relative to ref.
type Decay interface {
	Weight(tagTime, ref time.Time) float64
}

type NoDecay struct{}

func (NoDecay) Weight(time.Time, time.Time) float64 { return 1 }

// HalfLifeDecay halves a tag's weight every HalfLife. Undated tags keep
// full weight.
type HalfLifeDecay struct {
	HalfLife time.Duration
}

func (d HalfLifeDecay) Weight(tagTime, ref time.Time) float64 {
	if d.HalfLife <= 0 || tagTime.IsZero() || ref.IsZero() {
		return 1
	}
	age := ref.Sub(tagTime)
	if age <= 0 {
		return 1
	}
	return math.Pow(0.5, float64(age)/float64(d.HalfLife))
}

// Smoothing turns a weighted score sum into a feature value. ok=false means
// there was no evidence at all.
type Smoothing interface {
	Apply(sum, weight float64) (value float64, ok bool)
}

type NoSmoothing struct{}

func (NoSmoothing) Apply(sum, weight float64) (float64, bool) {
	if weight <= 0 {
		return 0, false
	}
	return sum / weight, true
}

// BayesianSmoothing shrinks small samples toward Prior as if Strength
// pseudo-observations at Prior had been seen.
type BayesianSmoothing struct {
	Strength float64
	Prior    float64
}

func (s BayesianSmoothing) Apply(sum, weight float64) (float64, bool) {
	if weight <= 0 {
		return 0, false
	}
	return (sum + s.Strength*s.Prior) / (weight + s.Strength), true
}
