package domain

import "sort"

// Canonical feature names. Every feature is in [0,1], higher is friendlier.
const (
	FeatureCost        = "ga_cost_score"
	FeatureReview      = "ga_review_score"
	FeatureHassle      = "ga_hassle_score"
	FeatureOpsIFR      = "ga_ops_ifr_score"
	FeatureOpsVFR      = "ga_ops_vfr_score"
	FeatureAccess      = "ga_access_score"
	FeatureFun         = "ga_fun_score"
	FeatureHospitality = "ga_hospitality_score"
)

// DefaultFeatures lists the built-in feature set in a stable order.
var DefaultFeatures = []string{
	FeatureCost, FeatureReview, FeatureHassle, FeatureOpsIFR,
	FeatureOpsVFR, FeatureAccess, FeatureFun, FeatureHospitality,
}

type Provenance string

const (
	FromReview   Provenance = "review"
	FromMetadata Provenance = "metadata"
	FromCombined Provenance = "combined"
	FromDefault  Provenance = "missing_default"
)

// FeatureScores maps feature name to score; nil means no evidence.
type FeatureScores map[string]*float64

func (f FeatureScores) Get(name string) *float64 {
	if f == nil {
		return nil
	}
	return f[name]
}

// Names returns the features holding a non-nil score, sorted.
func (f FeatureScores) Names() []string {
	out := make([]string, 0, len(f))
	for k, v := range f {
		if v != nil {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// AirportFeatures keeps review- and metadata-derived scores apart.
type AirportFeatures struct {
	Review   FeatureScores `json:"review"`
	Metadata FeatureScores `json:"metadata"`
}

func (a AirportFeatures) HasData() bool {
	return len(a.Review.Names()) > 0 || len(a.Metadata.Names()) > 0
}

func Float(v float64) *float64 { return &v }

// MappingRule turns one or more aspect distributions into a feature score
// using a label to score table. Labels without a score are ignored.
type MappingRule struct {
	Feature     string             `json:"feature"`
	Aspects     []string           `json:"aspects"`
	LabelScores map[string]float64 `json:"label_scores"`
}
