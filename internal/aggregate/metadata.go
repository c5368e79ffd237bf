package aggregate

import "ga_friendliness/internal/domain"

// Fee bands by ascending MTOW. The first one present is used when the
// reference band has no fee.
var feeBandOrder = []string{
	"fee_band_0_749kg",
	"fee_band_750_1199kg",
	"fee_band_1200_1499kg",
	"fee_band_1500_1999kg",
	"fee_band_2000_3999kg",
	"fee_band_4000_plus_kg",
}

const DefaultFeeBand = "fee_band_750_1199kg"

const (
	runwayFloorM = 400.0
	runwayFullM  = 1200.0
	cheapFee     = 10.0
	dearFee      = 100.0
)

// MetadataScorer derives features from structured facts. Every formula is
// a fixed function of its inputs; unknown inputs give a nil score.
type MetadataScorer struct {
	FeeBand string
}

func (m MetadataScorer) Score(f domain.AirportFacts) domain.FeatureScores {
	return domain.FeatureScores{
		domain.FeatureOpsIFR: ifrScore(f),
		domain.FeatureOpsVFR: vfrScore(f),
		domain.FeatureHassle: hassleScore(f.Notification),
		domain.FeatureCost:   m.costScore(f),
	}
}

func ifrScore(f domain.AirportFacts) *float64 {
	switch {
	case !f.ProceduresKnown:
		return nil
	case f.PrecisionApproach:
		return domain.Float(1.0)
	case f.InstrumentApproaches > 0:
		return domain.Float(0.8)
	}
	return domain.Float(0.0)
}

func vfrScore(f domain.AirportFacts) *float64 {
	if f.LongestRunwayM == nil {
		return nil
	}
	v := clamp01((*f.LongestRunwayM - runwayFloorM) / (runwayFullM - runwayFloorM))
	if f.HardSurface != nil && !*f.HardSurface {
		v *= 0.8
	}
	return domain.Float(v)
}

// NotificationHassle rates prior-notice burden in [0,1], 0 meaning none.
func NotificationHassle(n *domain.NotificationFacts) *float64 {
	if n == nil {
		return nil
	}
	return domain.Float(n.Burden())
}

func hassleScore(n *domain.NotificationFacts) *float64 {
	h := NotificationHassle(n)
	if h == nil {
		return nil
	}
	return domain.Float(1 - *h)
}

func (m MetadataScorer) costScore(f domain.AirportFacts) *float64 {
	if len(f.FeeBands) == 0 {
		return nil
	}
	band := m.FeeBand
	if band == "" {
		band = DefaultFeeBand
	}
	fee, ok := f.FeeBands[band]
	if !ok {
		for _, b := range feeBandOrder {
			if v, found := f.FeeBands[b]; found {
				fee, ok = v, true
				break
			}
		}
	}
	if !ok {
		return nil
	}
	return domain.Float(clamp01(1 - (fee-cheapFee)/(dearFee-cheapFee)))
}
