package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"ga_friendliness/internal/adapters/httpclient"
	"ga_friendliness/internal/adapters/kafka"
	"ga_friendliness/internal/adapters/llm"
	"ga_friendliness/internal/adapters/metadata"
	redisad "ga_friendliness/internal/adapters/redis"
	"ga_friendliness/internal/adapters/sources"
	"ga_friendliness/internal/app"
	"ga_friendliness/internal/configstore"
	"ga_friendliness/internal/domain"
	"ga_friendliness/internal/extract"
	"ga_friendliness/internal/persona"
	"ga_friendliness/internal/shared"
	"ga_friendliness/internal/storage"
)

func loadConfigStore(cfg shared.Config) (*configstore.Store, error) {
	return configstore.Load(configstore.Options{
		OntologyPath:       cfg.OntologyPath,
		PersonasPath:       cfg.PersonasPath,
		FeatureMappingPath: cfg.FeatureMappingPath,
		Aggregation: configstore.AggregationSettings{
			DecayHalfLifeDays: cfg.DecayHalfLifeDays,
			SmoothingStrength: cfg.SmoothingStrength,
			SmoothingPrior:    cfg.SmoothingPrior,
		},
	})
}

func openStore(cfg shared.Config) (*storage.Repo, error) {
	switch strings.ToLower(cfg.StoreDriver) {
	case "mysql":
		return storage.OpenMySQL(cfg.MySQLDSN, cfg.AIPSchema)
	default:
		return storage.OpenSQLite(cfg.DatabasePath, cfg.AuthoritativeDBPath)
	}
}

// openCache returns nil when Redis is not configured or unreachable; every
// caller treats a nil cache as disabled.
func openCache(ctx context.Context, cfg shared.Config) *redisad.Cache {
	if cfg.RedisAddr == "" {
		return nil
	}
	c := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	if err := c.Ping(ctx); err != nil {
		log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unavailable, caching disabled")
		_ = c.Close()
		return nil
	}
	return c
}

func newExtractor(cfg shared.Config, cs *configstore.Store, logger zerolog.Logger) (*extract.Extractor, error) {
	hc := httpclient.New("llm", cfg.LLMRPS, cfg.LLMTimeout)
	client, err := llm.New(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, hc)
	if err != nil {
		return nil, err
	}
	minConf, retries := cfg.ExtractMinConfidence, cfg.ExtractMaxRetries
	return extract.New(client, cs.Ontology(), extract.Options{
		MinConfidence: &minConf,
		MaxRetries:    &retries,
	}, logger), nil
}

func newEngine(cfg shared.Config) *persona.Engine {
	return persona.NewEngine(persona.WithReviewWeight(cfg.CombineReviewWeight))
}

func newQueryService(cfg shared.Config, cs *configstore.Store, repo domain.StatsReader, cache *redisad.Cache) *app.QueryService {
	var c domain.Cache
	if cache != nil {
		c = cache
	}
	return app.NewQueryService(cs, repo, c, newEngine(cfg), cfg.CacheTTL)
}

// pipeline bundles what one rebuild needs so schedule can reuse it.
type pipeline struct {
	cfg      shared.Config
	cs       *configstore.Store
	repo     *storage.Repo
	cache    *redisad.Cache
	builder  *app.Builder
	notifier *kafka.Notifier
}

func newPipeline(ctx context.Context, cfg shared.Config) (*pipeline, error) {
	cs, err := loadConfigStore(cfg)
	if err != nil {
		return nil, err
	}
	repo, err := openStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	p := &pipeline{cfg: cfg, cs: cs, repo: repo, cache: openCache(ctx, cfg)}

	ex, err := newExtractor(cfg, cs, log.Logger)
	if err != nil {
		p.Close()
		return nil, err
	}
	opts := []app.BuilderOption{app.WithWorkers(cfg.ExtractWorkers), app.WithEngine(newEngine(cfg))}
	if p.cache != nil {
		opts = append(opts, app.WithCache(p.cache))
	}
	if len(cfg.KafkaBrokers) > 0 {
		p.notifier = kafka.NewNotifier(cfg.KafkaBrokers, cfg.KafkaTopic, log.Logger)
		opts = append(opts, app.WithNotifier(p.notifier))
	}
	p.builder = app.NewBuilder(cs, repo, ex, log.Logger, opts...)
	return p, nil
}

func (p *pipeline) Close() {
	if p.notifier != nil {
		_ = p.notifier.Close()
	}
	if p.cache != nil {
		_ = p.cache.Close()
	}
	_ = p.repo.Close()
}

// run builds once from the given source specs.
func (p *pipeline) run(ctx context.Context, specs []sourceSpec, opts app.BuildOptions) (app.BuildReport, error) {
	var blobs domain.BlobCache
	if p.cache != nil {
		blobs = p.cache.Blobs("ga:source:")
	}
	src, fees, err := buildSource(ctx, p.cfg, specs, blobs, opts.Force, log.Logger)
	if err != nil {
		return app.BuildReport{}, err
	}
	meta := metadata.New(p.repo, log.Logger, fees...)
	return p.builder.Build(ctx, src, meta, opts)
}

var _ domain.Cache = (*redisad.Cache)(nil)
var _ metadata.FeeSource = (*sources.AirportDirSource)(nil)
