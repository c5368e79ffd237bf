package app

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"ga_friendliness/internal/aggregate"
	"ga_friendliness/internal/domain"
	"ga_friendliness/internal/persona"
)

func buildStats(icao string, reviews []domain.RawReview, tags []domain.ReviewTag, failed int, facts domain.AirportFacts) domain.AirportStats {
	s := domain.AirportStats{
		AirportID:     icao,
		ReviewCount:   len(reviews),
		TagCount:      len(tags),
		FailedReviews: failed,
		Facts:         facts,
	}
	var sum float64
	var last time.Time
	for _, r := range reviews {
		if r.Rating != nil {
			sum += *r.Rating
			s.RatingCount++
		}
		if r.Timestamp.After(last) {
			last = r.Timestamp
		}
	}
	if s.RatingCount > 0 {
		avg := sum / float64(s.RatingCount)
		s.RatingAvg = &avg
	}
	if !last.IsZero() {
		last = last.UTC()
		s.LastReviewAt = &last
	}
	return s
}

// dominantLabels returns "aspect:label" for the heaviest label of every
// aspect with evidence, in ontology order. Ties go to the smaller label.
func dominantLabels(dists map[string]aggregate.Distribution, ont domain.Ontology) []string {
	out := []string{}
	for _, aspect := range ont.AspectNames() {
		d := dists[aspect]
		labels := make([]string, 0, len(d))
		for l := range d {
			labels = append(labels, l)
		}
		sort.Strings(labels)
		best, bestW := "", 0.0
		for _, l := range labels {
			if d[l] > bestW {
				best, bestW = l, d[l]
			}
		}
		if best != "" {
			out = append(out, aspect+":"+best)
		}
	}
	return out
}

func buildSummary(s domain.AirportStats, agg aggregate.Result, ont domain.Ontology) domain.AirportSummary {
	tags := dominantLabels(agg.Distributions, ont)
	hassle := s.Features.Review.Get(domain.FeatureHassle)
	if hassle == nil {
		hassle = s.Features.Metadata.Get(domain.FeatureHassle)
	}
	return domain.AirportSummary{
		AirportID:   s.AirportID,
		Synopsis:    synopsis(s, tags),
		Tags:        tags,
		RatingAvg:   s.RatingAvg,
		RatingCount: s.RatingCount,
		HassleLevel: persona.HassleLevel(hassle),
		LastUpdated: s.LastReviewAt,
	}
}

func synopsis(s domain.AirportStats, tags []string) string {
	if s.ReviewCount == 0 {
		return "No pilot reports yet."
	}
	var b strings.Builder
	noun := "reports"
	if s.ReviewCount == 1 {
		noun = "report"
	}
	fmt.Fprintf(&b, "%d pilot %s", s.ReviewCount, noun)
	if s.RatingAvg != nil {
		fmt.Fprintf(&b, ", average rating %.1f/5", *s.RatingAvg)
	}
	b.WriteString(".")
	if len(tags) > 0 {
		parts := make([]string, 0, len(tags))
		for _, t := range tags {
			aspect, label, _ := strings.Cut(t, ":")
			parts = append(parts, strings.ReplaceAll(aspect, "_", " ")+" "+strings.ReplaceAll(label, "_", " "))
		}
		b.WriteString(" Pilots mention: " + strings.Join(parts, ", ") + ".")
	}
	return b.String()
}
