package domain

import "time"

// NotificationFacts describes prior-notice requirements for a visit.
type NotificationFacts struct {
	H24         bool `json:"h24,omitempty"`
	AsADHours   bool `json:"as_ad_hours,omitempty"`
	OnRequest   bool `json:"on_request,omitempty"`
	NoticeHours *int `json:"notice_hours,omitempty"`
}

// Burden rates the prior-notice requirement in [0,1], 0 meaning none.
func (n NotificationFacts) Burden() float64 {
	switch {
	case n.H24:
		return 0.0
	case n.AsADHours:
		return 0.15
	case n.OnRequest:
		return 0.2
	case n.NoticeHours == nil:
		return 0.5
	case *n.NoticeHours <= 12:
		return 0.3
	case *n.NoticeHours <= 24:
		return 0.5
	case *n.NoticeHours <= 48:
		return 0.7
	}
	return 0.9
}

// AirportFacts holds the operational metadata the metadata features are
// computed from. Zero values mean unknown.
type AirportFacts struct {
	Name                 string             `json:"name,omitempty"`
	LongestRunwayM       *float64           `json:"longest_runway_m,omitempty"`
	HardSurface          *bool              `json:"hard_surface,omitempty"`
	ProceduresKnown      bool               `json:"procedures_known,omitempty"`
	InstrumentApproaches int                `json:"instrument_approaches,omitempty"`
	PrecisionApproach    bool               `json:"precision_approach,omitempty"`
	Notification         *NotificationFacts `json:"notification,omitempty"`
	FeeBands             map[string]float64 `json:"fee_bands,omitempty"`
	FeeCurrency          string             `json:"fee_currency,omitempty"`
}

// AirportStats is the per-airport enrichment row. It holds no wall-clock
// values so rebuilding identical inputs yields an identical row.
type AirportStats struct {
	AirportID       string          `json:"airport_id"`
	ReviewCount     int             `json:"review_count"`
	TagCount        int             `json:"tag_count"`
	FailedReviews   int             `json:"failed_reviews"`
	RatingAvg       *float64        `json:"rating_avg,omitempty"`
	RatingCount     int             `json:"rating_count"`
	LastReviewAt    *time.Time      `json:"last_review_at,omitempty"`
	Facts           AirportFacts    `json:"facts"`
	Features        AirportFeatures `json:"features"`
	OntologyVersion string          `json:"ontology_version"`
	ScoringVersion  string          `json:"scoring_version"`
}

type HassleLevel string

const (
	HassleNone         HassleLevel = "none"
	HassleLow          HassleLevel = "low"
	HassleModerate     HassleLevel = "moderate"
	HassleHigh         HassleLevel = "high"
	HassleVeryHigh     HassleLevel = "very_high"
	HassleNotAvailable HassleLevel = "not_available"
)

// AirportSummary is derived and always regenerable from tags and features.
type AirportSummary struct {
	AirportID   string      `json:"airport_id"`
	Synopsis    string      `json:"synopsis"`
	Tags        []string    `json:"tags"`
	RatingAvg   *float64    `json:"rating_avg,omitempty"`
	RatingCount int         `json:"rating_count"`
	HassleLevel HassleLevel `json:"hassle_level"`
	LastUpdated *time.Time  `json:"last_updated,omitempty"`
}

// BuildMetadata records the versions a stored state was produced from.
type BuildMetadata struct {
	RunID           string
	SourceVersion   string
	OntologyVersion string
	ScoringVersion  string
	LastBuild       time.Time
	LastProcessed   map[string]time.Time
}

// AirportWrite is everything persisted for one airport in one transaction.
type AirportWrite struct {
	AirportID   string
	Tags        []ReviewTag
	States      []ReviewState
	Stats       AirportStats
	Summary     AirportSummary
	ProcessedAt time.Time
}
