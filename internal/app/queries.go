package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ga_friendliness/internal/configstore"
	"ga_friendliness/internal/domain"
	"ga_friendliness/internal/persona"
)

var ErrUnknownPersona = errors.New("unknown persona")

type AirportScore struct {
	AirportID string               `json:"icao"`
	Score     *float64             `json:"score"`
	Breakdown *persona.Explanation `json:"breakdown"`
	HasData   bool                 `json:"has_data"`
	Bucket    string               `json:"bucket"`
}

type ScoresResult struct {
	PersonaID string           `json:"persona_id"`
	Airports  []AirportScore   `json:"airports"`
	Buckets   []persona.Bucket `json:"buckets"`
}

type SummaryResult struct {
	domain.AirportSummary
	HasData bool `json:"has_data"`
}

// cachedScore is what the read path keeps per (scoring version, persona,
// airport).
type cachedScore struct {
	HasData     bool                 `json:"has_data"`
	Explanation *persona.Explanation `json:"explanation,omitempty"`
}

// QueryService is the read side. It never writes to the store and reports
// missing data as has_data=false rather than as an error.
type QueryService struct {
	cfg      *configstore.Store
	reader   domain.StatsReader
	cache    domain.Cache
	engine   *persona.Engine
	cacheTTL time.Duration
}

func NewQueryService(cfg *configstore.Store, r domain.StatsReader, c domain.Cache, e *persona.Engine, ttl time.Duration) *QueryService {
	if e == nil {
		e = persona.NewEngine()
	}
	return &QueryService{cfg: cfg, reader: r, cache: c, engine: e, cacheTTL: ttl}
}

// scoreKey covers the scoring configuration and the persona version, so a
// changed persona or review weight never reads an older score.
func scoreKey(scoringVersion, personaVersion, icao string) string {
	return fmt.Sprintf("ga:score:%s:%s:%s", scoringVersion, personaVersion, icao)
}

func summaryKey(icao string) string { return "ga:summary:" + icao }

// Scores evaluates personaID (the default persona when empty) for every
// requested airport, preserving request order.
func (s *QueryService) Scores(ctx context.Context, icaos []string, personaID string) (ScoresResult, error) {
	if personaID == "" {
		personaID = s.cfg.DefaultPersona()
	}
	p, ok := s.cfg.Persona(personaID)
	if !ok {
		return ScoresResult{}, fmt.Errorf("%w: %q", ErrUnknownPersona, personaID)
	}
	version := s.cfg.ScoringVersion()
	pv := s.engine.Version(p)

	found := make(map[string]cachedScore, len(icaos))
	var misses []string
	for _, icao := range icaos {
		if _, dup := found[icao]; dup {
			continue
		}
		var cs cachedScore
		if s.cache != nil {
			if ok, _ := s.cache.Get(ctx, scoreKey(version, pv, icao), &cs); ok {
				found[icao] = cs
				continue
			}
		}
		misses = append(misses, icao)
	}

	if len(misses) > 0 {
		stats, err := s.reader.ReadStatsMany(ctx, misses)
		if err != nil {
			return ScoresResult{}, err
		}
		for _, icao := range misses {
			cs := cachedScore{}
			if st, ok := stats[icao]; ok && st.Features.HasData() {
				exp := s.engine.ExplainScore(p, st.Features)
				cs = cachedScore{HasData: true, Explanation: &exp}
			}
			found[icao] = cs
			if s.cache != nil {
				_ = s.cache.Set(ctx, scoreKey(version, pv, icao), cs, int(s.cacheTTL.Seconds()))
			}
		}
	}

	scores := make(map[string]*float64, len(found))
	for icao, cs := range found {
		if cs.Explanation != nil {
			scores[icao] = cs.Explanation.Score
		} else {
			scores[icao] = nil
		}
	}
	buckets, bounds := persona.QuartileBuckets(scores)

	out := ScoresResult{PersonaID: personaID, Buckets: bounds, Airports: make([]AirportScore, 0, len(icaos))}
	for _, icao := range icaos {
		cs := found[icao]
		as := AirportScore{AirportID: icao, HasData: cs.HasData, Bucket: buckets[icao], Breakdown: cs.Explanation}
		if cs.Explanation != nil {
			as.Score = cs.Explanation.Score
		}
		out.Airports = append(out.Airports, as)
	}
	return out, nil
}

func (s *QueryService) Summary(ctx context.Context, icao string) (SummaryResult, error) {
	key := summaryKey(icao)
	var out SummaryResult
	if s.cache != nil {
		if ok, _ := s.cache.Get(ctx, key, &out); ok {
			return out, nil
		}
	}
	sum, err := s.reader.ReadSummary(ctx, icao)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return SummaryResult{AirportSummary: domain.AirportSummary{AirportID: icao, HassleLevel: domain.HassleNotAvailable}}, nil
	case err != nil:
		return SummaryResult{}, err
	}
	out = SummaryResult{AirportSummary: sum, HasData: true}
	if s.cache != nil {
		_ = s.cache.Set(ctx, key, out, int(s.cacheTTL.Seconds()))
	}
	return out, nil
}
