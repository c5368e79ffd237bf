package domain

import "time"

// RawReview is one free-text pilot report as delivered by a ReviewSource.
// ReviewID is stable and unique within its source.
type RawReview struct {
	AirportID   string
	ReviewID    string
	Text        string
	Rating      *float64 // 1..5 when present
	Timestamp   time.Time
	Language    string
	IsSynthetic bool
	Source      string
}

// ReviewTag is a validated (aspect, label) judgement extracted from a review.
type ReviewTag struct {
	AirportID  string    `json:"airport_id"`
	ReviewID   string    `json:"review_id"`
	Aspect     string    `json:"aspect"`
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// ReviewStatus records how the last extraction attempt for a review ended.
type ReviewStatus string

const (
	ReviewParsed ReviewStatus = "parsed"
	ReviewFailed ReviewStatus = "failed"
)

// ReviewState is the change-detection record kept per processed review.
type ReviewState struct {
	AirportID       string
	ReviewID        string
	ReviewTimestamp time.Time
	Status          ReviewStatus
	Attempts        int
	ProcessedAt     time.Time
}

// Unchanged reports whether r can reuse the tags recorded under s.
func (s ReviewState) Unchanged(r RawReview) bool {
	return s.Status == ReviewParsed && !r.Timestamp.After(s.ReviewTimestamp)
}
