package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"ga_friendliness/internal/adapters/observability"
	"ga_friendliness/internal/aggregate"
	"ga_friendliness/internal/configstore"
	"ga_friendliness/internal/domain"
	"ga_friendliness/internal/extract"
	"ga_friendliness/internal/persona"
)

const DefaultWorkers = 4

// ReviewExtractor turns one review into validated tags. extract.Extractor
// is the production implementation.
type ReviewExtractor interface {
	Extract(ctx context.Context, r domain.RawReview) extract.Result
}

type BuildOptions struct {
	// Force re-extracts every review regardless of stored state.
	Force bool
	// Airports restricts the build to these ICAO codes when non-empty.
	Airports []string
}

type BuildReport struct {
	RunID            string        `json:"run_id"`
	SourceVersion    string        `json:"source_version"`
	FullRebuild      bool          `json:"full_rebuild"`
	Airports         int           `json:"airports"`
	Rebuilt          []string      `json:"rebuilt"`
	Skipped          int           `json:"skipped"`
	StaleAirports    int           `json:"stale_airports"`
	ReviewsExtracted int           `json:"reviews_extracted"`
	ReviewsReused    int           `json:"reviews_reused"`
	ReviewsFailed    int           `json:"reviews_failed"`
	TagsRejected     int           `json:"tags_rejected"`
	Duration         time.Duration `json:"duration"`
}

type Builder struct {
	cfg       *configstore.Store
	store     domain.Store
	extractor ReviewExtractor
	agg       *aggregate.Aggregator
	scorer    aggregate.MetadataScorer
	cache     domain.Cache
	notifier  domain.BuildNotifier
	engine    *persona.Engine
	workers   int
	clock     clockwork.Clock
	log       zerolog.Logger
}

type BuilderOption func(*Builder)

func WithWorkers(n int) BuilderOption {
	return func(b *Builder) {
		if n > 0 {
			b.workers = n
		}
	}
}

func WithCache(c domain.Cache) BuilderOption { return func(b *Builder) { b.cache = c } }

func WithNotifier(n domain.BuildNotifier) BuilderOption { return func(b *Builder) { b.notifier = n } }

// WithEngine sets the persona engine whose cached scores are invalidated;
// it must match the engine the read path scores with.
func WithEngine(e *persona.Engine) BuilderOption { return func(b *Builder) { b.engine = e } }

func WithClock(c clockwork.Clock) BuilderOption { return func(b *Builder) { b.clock = c } }

func WithFeeBand(band string) BuilderOption {
	return func(b *Builder) { b.scorer.FeeBand = band }
}

func NewBuilder(cfg *configstore.Store, store domain.Store, ex ReviewExtractor, log zerolog.Logger, opts ...BuilderOption) *Builder {
	b := &Builder{
		cfg:       cfg,
		store:     store,
		extractor: ex,
		agg:       aggregate.FromConfig(cfg),
		scorer:    aggregate.MetadataScorer{FeeBand: aggregate.DefaultFeeBand},
		engine:    persona.NewEngine(),
		workers:   DefaultWorkers,
		clock:     clockwork.NewRealClock(),
		log:       log,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// airportPlan tracks one airport through a build. Only the coordinator
// goroutine touches it after planning.
type airportPlan struct {
	icao      string
	reviews   []domain.RawReview
	pending   []domain.RawReview
	reused    map[string][]domain.ReviewTag
	previous  map[string]domain.ReviewState
	prevTags  map[string][]domain.ReviewTag
	results   map[string]extract.Result
	remaining int
}

// Build runs one enrichment pass over src. Airports whose reviews did not
// change since the last run are skipped unless a full rebuild is forced or
// the ontology or scoring configuration changed. Every airport is written
// in one transaction once all its extractions reached a terminal state.
func (b *Builder) Build(ctx context.Context, src domain.ReviewSource, meta domain.MetadataProvider, opts BuildOptions) (BuildReport, error) {
	start := b.clock.Now()
	rep := BuildReport{RunID: uuid.NewString()}
	log := b.log.With().Str("run_id", rep.RunID).Logger()

	reviews, err := src.Reviews(ctx)
	if err != nil {
		return rep, fmt.Errorf("load reviews from %s: %w", src.Name(), err)
	}
	if rep.SourceVersion, err = src.Version(ctx); err != nil {
		return rep, fmt.Errorf("source version %s: %w", src.Name(), err)
	}

	prev, err := b.store.ReadBuildMetadata(ctx)
	if err != nil {
		return rep, fmt.Errorf("read build metadata: %w", err)
	}
	rep.FullRebuild = opts.Force ||
		prev.OntologyVersion != b.cfg.OntologyVersion() ||
		prev.ScoringVersion != b.cfg.ScoringVersion()
	if rep.FullRebuild && !opts.Force {
		log.Info().
			Str("prev_scoring", prev.ScoringVersion).
			Str("scoring", b.cfg.ScoringVersion()).
			Msg("configuration changed, rebuilding everything")
	}

	grouped := groupByAirport(reviews, opts.Airports)
	ids := make([]string, 0, len(grouped))
	for id := range grouped {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	rep.Airports = len(ids)

	// Build metadata only records the last run. An airport left out of a
	// restricted run after a configuration change still carries the old
	// versions on its own row and is rebuilt in full.
	var stored map[string]domain.AirportStats
	if !rep.FullRebuild {
		if stored, err = b.store.ReadStatsMany(ctx, ids); err != nil {
			return rep, fmt.Errorf("read stored versions: %w", err)
		}
	}

	plans := make(map[string]*airportPlan, len(ids))
	var order []*airportPlan
	for _, icao := range ids {
		full := rep.FullRebuild
		if st, ok := stored[icao]; ok && b.outdated(st) {
			full = true
			rep.StaleAirports++
		}
		p, err := b.plan(ctx, icao, grouped[icao], full)
		if err != nil {
			return rep, err
		}
		if p == nil {
			rep.Skipped++
			observability.ObserveAirport("skipped")
			continue
		}
		plans[icao] = p
		order = append(order, p)
	}
	log.Info().
		Int("airports", rep.Airports).
		Int("to_build", len(order)).
		Int("skipped", rep.Skipped).
		Int("stale", rep.StaleAirports).
		Bool("full", rep.FullRebuild).
		Msg("build planned")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		fatal     error
		processed = map[string]time.Time{}
	)
	finalize := func(p *airportPlan) {
		if fatal != nil || ctx.Err() != nil {
			return
		}
		at, err := b.finalize(ctx, p, meta, &rep)
		if err != nil {
			observability.ObserveAirport("error")
			fatal = fmt.Errorf("commit %s: %w", p.icao, err)
			cancel()
			return
		}
		observability.ObserveAirport("rebuilt")
		processed[p.icao] = at
		rep.Rebuilt = append(rep.Rebuilt, p.icao)
	}

	for _, p := range order {
		if p.remaining == 0 {
			finalize(p)
		}
	}

	results := make(chan extract.Result)
	go b.dispatch(ctx, order, results)
	for res := range results {
		p := plans[res.Review.AirportID]
		p.results[res.Review.ReviewID] = res
		p.remaining--
		switch res.State {
		case extract.StateParsed:
			rep.ReviewsExtracted++
			rep.TagsRejected += len(res.Rejections)
		default:
			rep.ReviewsFailed++
		}
		if p.remaining == 0 {
			finalize(p)
		}
	}

	sort.Strings(rep.Rebuilt)
	rep.Duration = b.clock.Since(start)
	if fatal != nil {
		return rep, fatal
	}
	if err := ctx.Err(); err != nil {
		log.Warn().Err(err).Int("rebuilt", len(rep.Rebuilt)).Msg("build interrupted")
		return rep, err
	}

	finished := b.clock.Now()
	if err := b.store.WriteBuildMetadata(ctx, domain.BuildMetadata{
		RunID:           rep.RunID,
		SourceVersion:   rep.SourceVersion,
		OntologyVersion: b.cfg.OntologyVersion(),
		ScoringVersion:  b.cfg.ScoringVersion(),
		LastBuild:       finished,
		LastProcessed:   processed,
	}); err != nil {
		return rep, fmt.Errorf("write build metadata: %w", err)
	}

	if b.notifier != nil && len(rep.Rebuilt) > 0 {
		err := b.notifier.AirportsRebuilt(ctx, domain.BuildEvent{
			RunID:           rep.RunID,
			AirportIDs:      rep.Rebuilt,
			SourceVersion:   rep.SourceVersion,
			OntologyVersion: b.cfg.OntologyVersion(),
			ScoringVersion:  b.cfg.ScoringVersion(),
			FinishedAt:      finished,
		})
		if err != nil {
			log.Warn().Err(err).Msg("rebuild notification failed")
		}
	}

	log.Info().
		Int("rebuilt", len(rep.Rebuilt)).
		Int("extracted", rep.ReviewsExtracted).
		Int("reused", rep.ReviewsReused).
		Int("failed", rep.ReviewsFailed).
		Dur("took", rep.Duration).
		Msg("build completed")
	return rep, nil
}

// dispatch runs every pending extraction through a bounded pool and closes
// out when all of them have reported.
func (b *Builder) dispatch(ctx context.Context, plans []*airportPlan, out chan<- extract.Result) {
	sem := semaphore.NewWeighted(int64(b.workers))
	var wg sync.WaitGroup
	defer func() {
		wg.Wait()
		close(out)
	}()

	for _, p := range plans {
		for _, r := range p.pending {
			// acquire before launching the goroutine; release inside it
			if err := sem.Acquire(ctx, 1); err != nil {
				return
			}
			wg.Add(1)
			go func(r domain.RawReview) {
				defer wg.Done()
				defer sem.Release(1)
				out <- b.extractor.Extract(ctx, r)
			}(r)
		}
	}
}

func (b *Builder) outdated(st domain.AirportStats) bool {
	return st.OntologyVersion != b.cfg.OntologyVersion() || st.ScoringVersion != b.cfg.ScoringVersion()
}

// plan decides which reviews of one airport need extraction. It returns nil
// when nothing changed since the stored state.
func (b *Builder) plan(ctx context.Context, icao string, reviews []domain.RawReview, full bool) (*airportPlan, error) {
	p := &airportPlan{
		icao:     icao,
		reviews:  reviews,
		reused:   map[string][]domain.ReviewTag{},
		previous: map[string]domain.ReviewState{},
		prevTags: map[string][]domain.ReviewTag{},
		results:  map[string]extract.Result{},
	}

	if !full {
		states, err := b.store.ReadReviewStates(ctx, icao)
		if err != nil {
			return nil, fmt.Errorf("review state %s: %w", icao, err)
		}
		tags, err := b.store.ReadTags(ctx, icao)
		if err != nil {
			return nil, fmt.Errorf("tags %s: %w", icao, err)
		}
		p.previous = states
		for _, t := range tags {
			p.prevTags[t.ReviewID] = append(p.prevTags[t.ReviewID], t)
		}
	}

	current := make(map[string]bool, len(reviews))
	for _, r := range reviews {
		current[r.ReviewID] = true
		if st, ok := p.previous[r.ReviewID]; ok && !full && st.Unchanged(r) {
			p.reused[r.ReviewID] = p.prevTags[r.ReviewID]
			continue
		}
		p.pending = append(p.pending, r)
	}
	removed := 0
	for id := range p.previous {
		if !current[id] {
			removed++
		}
	}

	if !full && len(p.pending) == 0 && removed == 0 && len(p.previous) > 0 {
		return nil, nil
	}
	p.remaining = len(p.pending)
	return p, nil
}

// finalize aggregates one airport and commits it. It returns the processed
// timestamp recorded for the airport.
func (b *Builder) finalize(ctx context.Context, p *airportPlan, meta domain.MetadataProvider, rep *BuildReport) (time.Time, error) {
	now := b.clock.Now().UTC()

	var (
		tags   []domain.ReviewTag
		states []domain.ReviewState
		failed int
	)
	for _, r := range p.reviews {
		if reused, ok := p.reused[r.ReviewID]; ok {
			rep.ReviewsReused++
			tags = append(tags, reused...)
			states = append(states, p.previous[r.ReviewID])
			continue
		}
		res := p.results[r.ReviewID]
		st := domain.ReviewState{
			AirportID:       p.icao,
			ReviewID:        r.ReviewID,
			ReviewTimestamp: r.Timestamp,
			Attempts:        res.Attempts,
			ProcessedAt:     now,
		}
		if res.State == extract.StateParsed {
			st.Status = domain.ReviewParsed
			tags = append(tags, res.Tags...)
		} else {
			st.Status = domain.ReviewFailed
			failed++
			// keep the previous tags until a later run parses the review
			tags = append(tags, p.prevTags[r.ReviewID]...)
		}
		states = append(states, st)
	}

	agg := b.agg.Aggregate(p.icao, tags)

	var facts domain.AirportFacts
	if meta != nil {
		f, err := meta.Facts(ctx, p.icao)
		if err != nil {
			b.log.Warn().Err(err).Str("icao", p.icao).Msg("metadata unavailable")
		} else {
			facts = f
		}
	}

	stats := buildStats(p.icao, p.reviews, tags, failed, facts)
	stats.Features = domain.AirportFeatures{Review: agg.Features, Metadata: b.scorer.Score(facts)}
	stats.OntologyVersion = b.cfg.OntologyVersion()
	stats.ScoringVersion = b.cfg.ScoringVersion()

	w := domain.AirportWrite{
		AirportID:   p.icao,
		Tags:        tags,
		States:      states,
		Stats:       stats,
		Summary:     buildSummary(stats, agg, b.cfg.Ontology()),
		ProcessedAt: now,
	}
	if err := b.store.CommitAirport(ctx, w); err != nil {
		return time.Time{}, err
	}
	b.invalidate(ctx, p.icao)

	b.log.Info().
		Str("icao", p.icao).
		Int("reviews", len(p.reviews)).
		Int("tags", len(tags)).
		Int("failed", failed).
		Msg("airport rebuilt")
	return now, nil
}

// invalidate drops cached read results for an airport.
func (b *Builder) invalidate(ctx context.Context, icao string) {
	if b.cache == nil {
		return
	}
	keys := []string{summaryKey(icao)}
	for _, p := range b.cfg.Personas() {
		keys = append(keys, scoreKey(b.cfg.ScoringVersion(), b.engine.Version(p), icao))
	}
	for _, k := range keys {
		if err := b.cache.Del(ctx, k); err != nil && !errors.Is(err, context.Canceled) {
			b.log.Debug().Err(err).Str("key", k).Msg("cache invalidation failed")
		}
	}
}

// groupByAirport buckets reviews per airport, ordered by review id, keeping
// the first occurrence of a duplicated id.
func groupByAirport(reviews []domain.RawReview, only []string) map[string][]domain.RawReview {
	var keep map[string]bool
	if len(only) > 0 {
		keep = make(map[string]bool, len(only))
		for _, id := range only {
			keep[id] = true
		}
	}
	out := map[string][]domain.RawReview{}
	seen := map[string]bool{}
	for _, r := range reviews {
		if r.AirportID == "" || (keep != nil && !keep[r.AirportID]) {
			continue
		}
		k := r.AirportID + "\x00" + r.ReviewID
		if seen[k] {
			continue
		}
		seen[k] = true
		out[r.AirportID] = append(out[r.AirportID], r)
	}
	for _, rs := range out {
		sort.Slice(rs, func(i, j int) bool { return rs[i].ReviewID < rs[j].ReviewID })
	}
	return out
}
