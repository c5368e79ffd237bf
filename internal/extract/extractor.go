// Package extract turns review text into ontology-validated tags through a
// schema-constrained LLM call.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"ga_friendliness/internal/adapters/httpclient"
	"ga_friendliness/internal/adapters/observability"
	"ga_friendliness/internal/domain"
)

// State is a review's position in the extraction state machine:
// pending -> retrying(n) -> parsed | failed.
type State int

const (
	StatePending State = iota
	StateRetrying
	StateParsed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRetrying:
		return "retrying"
	case StateParsed:
		return "parsed"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type RejectReason string

const (
	RejectUnknownAspect     RejectReason = "unknown_aspect"
	RejectUnknownLabel      RejectReason = "unknown_label"
	RejectLowConfidence     RejectReason = "low_confidence"
	RejectInvalidConfidence RejectReason = "invalid_confidence"
)

type Rejection struct {
	Aspect     string
	Label      string
	Confidence float64
	Reason     RejectReason
}

// Result is the terminal outcome for one review. Failure is set only when
// State is StateFailed.
type Result struct {
	Review     domain.RawReview
	State      State
	Attempts   int
	Tags       []domain.ReviewTag
	Rejections []Rejection
	Failure    *domain.ExtractionFailure
}

var ErrMalformed = errors.New("malformed extraction output")

const (
	DefaultMinConfidence = 0.5
	DefaultMaxRetries    = 2
)

// Options tunes an Extractor. A nil MinConfidence or MaxRetries takes the
// package default; an explicit zero is honoured.
type Options struct {
	MinConfidence *float64
	MaxRetries    *int
	Backoff       func(attempt int) time.Duration
}

type Extractor struct {
	llm        domain.LLMClient
	ont        domain.Ontology
	minConf    float64
	maxRetries int
	backoff    func(attempt int) time.Duration
	log        zerolog.Logger
	system     string
	schema     map[string]any
}

func New(client domain.LLMClient, ont domain.Ontology, opts Options, log zerolog.Logger) *Extractor {
	e := &Extractor{
		llm:        client,
		ont:        ont,
		minConf:    DefaultMinConfidence,
		maxRetries: DefaultMaxRetries,
		backoff:    opts.Backoff,
		log:        log,
		system:     systemPrompt(ont),
		schema:     responseSchema(ont),
	}
	if opts.MinConfidence != nil {
		e.minConf = *opts.MinConfidence
	}
	if opts.MaxRetries != nil {
		e.maxRetries = max(*opts.MaxRetries, 0)
	}
	if e.backoff == nil {
		e.backoff = httpclient.Backoff
	}
	return e
}

type rawAspect struct {
	Aspect     string   `json:"aspect"`
	Label      string   `json:"label"`
	Confidence *float64 `json:"confidence"`
	Evidence   string   `json:"evidence"`
}

// Extract never returns an error: exhausting retries yields StateFailed.
func (e *Extractor) Extract(ctx context.Context, r domain.RawReview) Result {
	res := Result{Review: r, State: StatePending}
	req := domain.LLMRequest{System: e.system, User: userPrompt(r), SchemaName: schemaName, Schema: e.schema}

	var lastErr error
	for {
		res.Attempts++
		raw, err := e.llm.Complete(ctx, req)
		if err == nil {
			var items []rawAspect
			if items, err = parse(raw); err == nil {
				res.State = StateParsed
				res.Tags, res.Rejections = e.validate(r, items)
				e.record(res)
				return res
			}
		}
		lastErr = err

		if ctx.Err() != nil || res.Attempts > e.maxRetries {
			break
		}
		res.State = StateRetrying
		e.log.Debug().Err(err).Str("icao", r.AirportID).Str("review_id", r.ReviewID).
			Int("attempt", res.Attempts).Msg("extraction retry")
		if !httpclient.SleepCtx(ctx, e.backoff(res.Attempts-1)) {
			break
		}
	}

	if ctx.Err() != nil {
		lastErr = ctx.Err()
	}
	res.State = StateFailed
	res.Failure = &domain.ExtractionFailure{AirportID: r.AirportID, ReviewID: r.ReviewID, Attempts: res.Attempts, Err: lastErr}
	e.log.Warn().Err(lastErr).Str("icao", r.AirportID).Str("review_id", r.ReviewID).
		Int("attempts", res.Attempts).Msg("extraction failed")
	e.record(res)
	return res
}

func parse(raw string) ([]rawAspect, error) {
	var doc struct {
		Aspects *[]rawAspect `json:"aspects"`
	}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if doc.Aspects == nil {
		return nil, fmt.Errorf("%w: missing aspects", ErrMalformed)
	}
	return *doc.Aspects, nil
}

// validate keeps ontology-valid, confident pairs. A pair repeated within one
// response keeps its highest confidence. Output is sorted by aspect, label.
func (e *Extractor) validate(r domain.RawReview, items []rawAspect) ([]domain.ReviewTag, []Rejection) {
	var rejected []Rejection
	best := map[[2]string]float64{}
	for _, it := range items {
		conf := 0.0
		if it.Confidence != nil {
			conf = *it.Confidence
		}
		reason := RejectReason("")
		switch {
		case !e.ont.HasAspect(it.Aspect):
			reason = RejectUnknownAspect
		case !e.ont.HasLabel(it.Aspect, it.Label):
			reason = RejectUnknownLabel
		case it.Confidence == nil || conf < 0 || conf > 1:
			reason = RejectInvalidConfidence
		case conf < e.minConf:
			reason = RejectLowConfidence
		}
		if reason != "" {
			rejected = append(rejected, Rejection{Aspect: it.Aspect, Label: it.Label, Confidence: conf, Reason: reason})
			continue
		}
		k := [2]string{it.Aspect, it.Label}
		if c, ok := best[k]; !ok || conf > c {
			best[k] = conf
		}
	}

	tags := make([]domain.ReviewTag, 0, len(best))
	for k, c := range best {
		tags = append(tags, domain.ReviewTag{
			AirportID:  r.AirportID,
			ReviewID:   r.ReviewID,
			Aspect:     k[0],
			Label:      k[1],
			Confidence: c,
			Timestamp:  r.Timestamp,
		})
	}
	sort.Slice(tags, func(i, j int) bool {
		if tags[i].Aspect != tags[j].Aspect {
			return tags[i].Aspect < tags[j].Aspect
		}
		return tags[i].Label < tags[j].Label
	})
	return tags, rejected
}

func (e *Extractor) record(res Result) {
	observability.ObserveExtraction(res.State.String(), res.Attempts-1)
	for _, rj := range res.Rejections {
		observability.ObserveRejection(string(rj.Reason))
		e.log.Debug().Str("icao", res.Review.AirportID).Str("review_id", res.Review.ReviewID).
			Str("aspect", rj.Aspect).Str("label", rj.Label).Str("reason", string(rj.Reason)).Msg("tag rejected")
	}
}
