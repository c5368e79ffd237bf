package domain

import (
	"context"
	"time"
)

type SourceKind string

const (
	SourceCSV        SourceKind = "csv"
	SourceExport     SourceKind = "export"
	SourceAirportDir SourceKind = "airport_dir"
	SourceComposite  SourceKind = "composite"
)

// ReviewSource is the single capability every review origin provides.
type ReviewSource interface {
	Name() string
	Kind() SourceKind
	Reviews(ctx context.Context) ([]RawReview, error)
	Version(ctx context.Context) (string, error)
}

type LLMRequest struct {
	System     string
	User       string
	SchemaName string
	Schema     map[string]any
}

// LLMClient returns the raw structured-output text for one request.
type LLMClient interface {
	Complete(ctx context.Context, req LLMRequest) (string, error)
}

// MetadataProvider supplies operational facts for an airport. A missing
// airport yields zero facts, not an error.
type MetadataProvider interface {
	Facts(ctx context.Context, airportID string) (AirportFacts, error)
}

type StatsReader interface {
	ReadStats(ctx context.Context, airportID string) (AirportStats, error)
	ReadStatsMany(ctx context.Context, airportIDs []string) (map[string]AirportStats, error)
	ReadSummary(ctx context.Context, airportID string) (AirportSummary, error)
}

type Store interface {
	StatsReader

	// Write paths
	ReplaceTags(ctx context.Context, airportID string, tags []ReviewTag) error
	UpsertStats(ctx context.Context, s AirportStats) error
	UpsertSummary(ctx context.Context, s AirportSummary) error
	CommitAirport(ctx context.Context, w AirportWrite) error
	WriteBuildMetadata(ctx context.Context, m BuildMetadata) error

	// Read paths
	ReadTags(ctx context.Context, airportID string) ([]ReviewTag, error)
	ReadAllAirportIDs(ctx context.Context) ([]string, error)
	ReadReviewStates(ctx context.Context, airportID string) (map[string]ReviewState, error)
	ReadBuildMetadata(ctx context.Context) (BuildMetadata, error)
	AuthoritativeFacts(ctx context.Context, airportID string) (AirportFacts, error)
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}

// BlobCache stores fetched source snapshots together with their fetch time.
type BlobCache interface {
	Load(ctx context.Context, key string) (data []byte, fetchedAt time.Time, ok bool, err error)
	Save(ctx context.Context, key string, data []byte, fetchedAt time.Time) error
}

// Fetcher retrieves a remote snapshot. Key identifies it in a BlobCache.
type Fetcher interface {
	Key() string
	Fetch(ctx context.Context) ([]byte, error)
}

type BuildEvent struct {
	RunID           string    `json:"run_id"`
	AirportIDs      []string  `json:"airport_ids"`
	SourceVersion   string    `json:"source_version"`
	OntologyVersion string    `json:"ontology_version"`
	ScoringVersion  string    `json:"scoring_version"`
	FinishedAt      time.Time `json:"finished_at"`
}

type BuildNotifier interface {
	AirportsRebuilt(ctx context.Context, evt BuildEvent) error
}
