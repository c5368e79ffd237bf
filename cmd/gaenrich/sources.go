package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"ga_friendliness/internal/adapters/httpclient"
	"ga_friendliness/internal/adapters/metadata"
	"ga_friendliness/internal/adapters/sources"
	"ga_friendliness/internal/domain"
	"ga_friendliness/internal/shared"
)

// sourceSpec is one --source flag, written kind=location.
type sourceSpec struct {
	Kind     string
	Location string
}

func parseSourceSpecs(raw []string) ([]sourceSpec, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("at least one --source is required (csv=PATH, export=PATH|URL|s3://BUCKET/KEY, airport_dir=DIR)")
	}
	out := make([]sourceSpec, 0, len(raw))
	for _, r := range raw {
		kind, loc, ok := strings.Cut(r, "=")
		kind = strings.ToLower(strings.TrimSpace(kind))
		loc = strings.TrimSpace(loc)
		if !ok || loc == "" {
			return nil, fmt.Errorf("source %q: want kind=location", r)
		}
		switch kind {
		case "csv", "export", "airport_dir":
		default:
			return nil, fmt.Errorf("source %q: unknown kind %q", r, kind)
		}
		out = append(out, sourceSpec{Kind: kind, Location: loc})
	}
	return out, nil
}

// buildSource turns specs into one review source. Airport directory sources
// double as fee sources for the metadata provider.
func buildSource(ctx context.Context, cfg shared.Config, specs []sourceSpec, blobs domain.BlobCache, refresh bool, log zerolog.Logger) (domain.ReviewSource, []metadata.FeeSource, error) {
	var (
		members []domain.ReviewSource
		fees    []metadata.FeeSource
	)
	for _, s := range specs {
		switch s.Kind {
		case "csv":
			members = append(members, sources.NewCSV(s.Location, sources.DefaultCSVColumns()))
		case "airport_dir":
			d := sources.NewAirportDir(s.Location, sources.ExportOptions{}, log)
			members = append(members, d)
			fees = append(fees, d)
		case "export":
			l, err := exportLoader(ctx, cfg, s.Location, blobs, refresh, log)
			if err != nil {
				return nil, nil, err
			}
			members = append(members, sources.NewExport(l, sources.ExportOptions{}))
		}
	}
	if len(members) == 1 {
		return members[0], fees, nil
	}
	return sources.NewComposite(log, members...), fees, nil
}

func exportLoader(ctx context.Context, cfg shared.Config, loc string, blobs domain.BlobCache, refresh bool, log zerolog.Logger) (sources.Loader, error) {
	var f domain.Fetcher
	switch {
	case strings.HasPrefix(loc, "s3://"):
		bucket, key, err := sources.ParseS3URL(loc)
		if err != nil {
			return nil, err
		}
		api, err := sources.NewS3Client(ctx, sources.S3Settings{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
		if err != nil {
			return nil, fmt.Errorf("s3 client: %w", err)
		}
		f = sources.NewS3Fetcher(api, bucket, key)
	case strings.HasPrefix(loc, "http://"), strings.HasPrefix(loc, "https://"):
		f = sources.NewHTTPFetcher(loc, httpclient.New("export", 1, cfg.LLMTimeout))
	default:
		return sources.FileLoader{Path: loc}, nil
	}

	if blobs == nil {
		fc, err := sources.NewFileCache(cfg.SourceCacheDir)
		if err != nil {
			return nil, err
		}
		blobs = fc
	}
	policy := sources.CachePolicy{
		MaxAge:       cfg.SourceMaxCacheAge,
		ForceRefresh: refresh,
		NeverRefresh: cfg.SourceNeverRefresh && !refresh,
	}
	return sources.NewCachedLoader(f, blobs, policy, nil, log), nil
}
