package persona

import (
	"sort"

	"ga_friendliness/internal/domain"
)

// Bucket is a relevance band used to color airports on a map.
type Bucket struct {
	ID       string   `json:"id"`
	Label    string   `json:"label"`
	Color    string   `json:"color"`
	MinScore *float64 `json:"min_score,omitempty"`
	MaxScore *float64 `json:"max_score,omitempty"`
}

const (
	BucketTop     = "top"
	BucketGood    = "good"
	BucketAverage = "average"
	BucketBelow   = "below"
	BucketUnknown = "unknown"
)

// QuartileBuckets splits the known scores into quartiles of the live
// distribution. Airports without a score land in "unknown".
func QuartileBuckets(scores map[string]*float64) (map[string]string, []Bucket) {
	var vals []float64
	for _, s := range scores {
		if s != nil {
			vals = append(vals, *s)
		}
	}
	sort.Float64s(vals)

	out := make(map[string]string, len(scores))
	if len(vals) == 0 {
		for id := range scores {
			out[id] = BucketUnknown
		}
		return out, []Bucket{{ID: BucketUnknown, Label: "No data", Color: "#9e9e9e"}}
	}
	q := func(p float64) float64 { return vals[int(p*float64(len(vals)-1))] }
	q1, q2, q3 := q(0.25), q(0.5), q(0.75)

	for id, s := range scores {
		switch {
		case s == nil:
			out[id] = BucketUnknown
		case *s >= q3:
			out[id] = BucketTop
		case *s >= q2:
			out[id] = BucketGood
		case *s >= q1:
			out[id] = BucketAverage
		default:
			out[id] = BucketBelow
		}
	}
	bounds := []Bucket{
		{ID: BucketTop, Label: "Most relevant", Color: "#2e7d32", MinScore: domain.Float(q3)},
		{ID: BucketGood, Label: "Relevant", Color: "#7cb342", MinScore: domain.Float(q2), MaxScore: domain.Float(q3)},
		{ID: BucketAverage, Label: "Less relevant", Color: "#fbc02d", MinScore: domain.Float(q1), MaxScore: domain.Float(q2)},
		{ID: BucketBelow, Label: "Least relevant", Color: "#e64a19", MaxScore: domain.Float(q1)},
		{ID: BucketUnknown, Label: "No data", Color: "#9e9e9e"},
	}
	return out, bounds
}

// HassleLevel buckets the hassle feature (1 means no hassle).
func HassleLevel(score *float64) domain.HassleLevel {
	switch {
	case score == nil:
		return domain.HassleNotAvailable
	case *score >= 0.9:
		return domain.HassleNone
	case *score >= 0.7:
		return domain.HassleLow
	case *score >= 0.45:
		return domain.HassleModerate
	case *score >= 0.2:
		return domain.HassleHigh
	}
	return domain.HassleVeryHigh
}
