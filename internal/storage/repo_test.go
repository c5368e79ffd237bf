package storage_test

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ga_friendliness/internal/domain"
	"ga_friendliness/internal/storage"
)

var t0 = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func openTemp(t *testing.T, aip string) *storage.Repo {
	t.Helper()
	repo, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "ga.db"), aip)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func sampleWrite(icao string) domain.AirportWrite {
	rating := 4.5
	last := t0.Add(48 * time.Hour)
	return domain.AirportWrite{
		AirportID: icao,
		Tags: []domain.ReviewTag{
			{AirportID: icao, ReviewID: "r1", Aspect: "cost", Label: "cheap", Confidence: 0.9, Timestamp: t0},
			{AirportID: icao, ReviewID: "r2", Aspect: "staff", Label: "positive", Confidence: 0.7, Timestamp: last},
		},
		States: []domain.ReviewState{
			{AirportID: icao, ReviewID: "r1", ReviewTimestamp: t0, Status: domain.ReviewParsed, Attempts: 1, ProcessedAt: t0},
			{AirportID: icao, ReviewID: "r2", ReviewTimestamp: last, Status: domain.ReviewFailed, Attempts: 3, ProcessedAt: t0},
		},
		Stats: domain.AirportStats{
			AirportID:     icao,
			ReviewCount:   2,
			TagCount:      2,
			FailedReviews: 1,
			RatingAvg:     &rating,
			RatingCount:   1,
			LastReviewAt:  &last,
			Features: domain.AirportFeatures{
				Review:   domain.FeatureScores{domain.FeatureCost: domain.Float(0.9), domain.FeatureHassle: nil},
				Metadata: domain.FeatureScores{domain.FeatureOpsVFR: domain.Float(0.5)},
			},
			OntologyVersion: "o1",
			ScoringVersion:  "s1",
		},
		Summary: domain.AirportSummary{
			AirportID:   icao,
			Synopsis:    "Cheap and friendly.",
			Tags:        []string{"cost:cheap"},
			RatingAvg:   &rating,
			RatingCount: 1,
			HassleLevel: domain.HassleLow,
			LastUpdated: &last,
		},
		ProcessedAt: t0,
	}
}

func TestCommitAirportRoundTrip(t *testing.T) {
	repo := openTemp(t, "")
	ctx := context.Background()

	w := sampleWrite("EGTF")
	require.NoError(t, repo.CommitAirport(ctx, w))

	st, err := repo.ReadStats(ctx, "EGTF")
	require.NoError(t, err)
	assert.Equal(t, 2, st.ReviewCount)
	assert.Equal(t, 1, st.FailedReviews)
	require.NotNil(t, st.RatingAvg)
	assert.InDelta(t, 4.5, *st.RatingAvg, 1e-9)
	require.NotNil(t, st.LastReviewAt)
	assert.True(t, st.LastReviewAt.Equal(*w.Stats.LastReviewAt))
	assert.InDelta(t, 0.9, *st.Features.Review.Get(domain.FeatureCost), 1e-9)
	assert.Nil(t, st.Features.Review.Get(domain.FeatureHassle))
	assert.InDelta(t, 0.5, *st.Features.Metadata.Get(domain.FeatureOpsVFR), 1e-9)
	assert.Equal(t, "s1", st.ScoringVersion)

	tags, err := repo.ReadTags(ctx, "EGTF")
	require.NoError(t, err)
	require.Len(t, tags, 2)
	assert.Equal(t, "r1", tags[0].ReviewID)
	assert.True(t, tags[0].Timestamp.Equal(t0))

	states, err := repo.ReadReviewStates(ctx, "EGTF")
	require.NoError(t, err)
	require.Len(t, states, 2)
	assert.Equal(t, domain.ReviewFailed, states["r2"].Status)
	assert.Equal(t, 3, states["r2"].Attempts)

	sum, err := repo.ReadSummary(ctx, "EGTF")
	require.NoError(t, err)
	assert.Equal(t, "Cheap and friendly.", sum.Synopsis)
	assert.Equal(t, []string{"cost:cheap"}, sum.Tags)
	assert.Equal(t, domain.HassleLow, sum.HassleLevel)

	meta, err := repo.ReadBuildMetadata(ctx)
	require.NoError(t, err)
	assert.True(t, meta.LastProcessed["EGTF"].Equal(t0))
}

func TestCommitAirportReplacesPreviousRows(t *testing.T) {
	repo := openTemp(t, "")
	ctx := context.Background()

	require.NoError(t, repo.CommitAirport(ctx, sampleWrite("LFAC")))

	w := sampleWrite("LFAC")
	w.Tags = w.Tags[:1]
	w.States = w.States[:1]
	w.Stats.TagCount = 1
	require.NoError(t, repo.CommitAirport(ctx, w))

	tags, err := repo.ReadTags(ctx, "LFAC")
	require.NoError(t, err)
	assert.Len(t, tags, 1)
	states, err := repo.ReadReviewStates(ctx, "LFAC")
	require.NoError(t, err)
	assert.Len(t, states, 1)
	st, err := repo.ReadStats(ctx, "LFAC")
	require.NoError(t, err)
	assert.Equal(t, 1, st.TagCount)
}

func TestReadMissingRowsReturnNotFound(t *testing.T) {
	repo := openTemp(t, "")
	ctx := context.Background()

	_, err := repo.ReadStats(ctx, "ZZZZ")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = repo.ReadSummary(ctx, "ZZZZ")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = repo.AuthoritativeFacts(ctx, "ZZZZ")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	meta, err := repo.ReadBuildMetadata(ctx)
	require.NoError(t, err)
	assert.Empty(t, meta.ScoringVersion)
}

func TestReadStatsManyAndIDs(t *testing.T) {
	repo := openTemp(t, "")
	ctx := context.Background()
	for _, icao := range []string{"EGTF", "LFAC", "EDFE"} {
		w := sampleWrite(icao)
		require.NoError(t, repo.UpsertStats(ctx, w.Stats))
	}

	got, err := repo.ReadStatsMany(ctx, []string{"LFAC", "EGTF", "NOPE"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Contains(t, got, "LFAC")
	assert.NotContains(t, got, "NOPE")

	empty, err := repo.ReadStatsMany(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)

	ids, err := repo.ReadAllAirportIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"EDFE", "EGTF", "LFAC"}, ids)
}

func TestBuildMetadataRoundTrip(t *testing.T) {
	repo := openTemp(t, "")
	ctx := context.Background()

	in := domain.BuildMetadata{
		RunID:           "run-1",
		SourceVersion:   "csv:abc",
		OntologyVersion: "1.0",
		ScoringVersion:  "1.0+deadbeef0000",
		LastBuild:       t0,
		LastProcessed:   map[string]time.Time{"EGTF": t0},
	}
	require.NoError(t, repo.WriteBuildMetadata(ctx, in))
	in.RunID = "run-2"
	require.NoError(t, repo.WriteBuildMetadata(ctx, in))

	out, err := repo.ReadBuildMetadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-2", out.RunID)
	assert.Equal(t, in.ScoringVersion, out.ScoringVersion)
	assert.True(t, out.LastBuild.Equal(t0))
	assert.True(t, out.LastProcessed["EGTF"].Equal(t0))
}

func TestReplaceTagsAlone(t *testing.T) {
	repo := openTemp(t, "")
	ctx := context.Background()
	w := sampleWrite("EGTF")
	require.NoError(t, repo.ReplaceTags(ctx, "EGTF", w.Tags))
	require.NoError(t, repo.ReplaceTags(ctx, "EGTF", nil))
	tags, err := repo.ReadTags(ctx, "EGTF")
	require.NoError(t, err)
	assert.Empty(t, tags)
}

func writeAuthoritative(t *testing.T, withNotifications bool) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "aip.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()
	stmts := []string{
		`CREATE TABLE airports (ident TEXT PRIMARY KEY, name TEXT)`,
		`CREATE TABLE runways (airport_ident TEXT, length_ft REAL, surface TEXT)`,
		`CREATE TABLE procedures (airport_ident TEXT, procedure_type TEXT, approach_type TEXT)`,
		`INSERT INTO airports VALUES ('EGTF', 'Fairoaks'), ('LFPN', 'Toussus-le-Noble')`,
		`INSERT INTO runways VALUES ('EGTF', 2664, 'ASPH'), ('LFPN', 3606, 'ASP'), ('LFPN', 1200, 'GRASS')`,
		`INSERT INTO procedures VALUES ('LFPN', 'approach', 'ILS'), ('LFPN', 'approach', 'RNAV'), ('LFPN', 'departure', NULL)`,
	}
	if withNotifications {
		stmts = append(stmts,
			`CREATE TABLE notification_requirements (airport_ident TEXT, is_h24 INTEGER, is_as_ad_hours INTEGER, is_on_request INTEGER, notice_hours INTEGER)`,
			`INSERT INTO notification_requirements VALUES ('EGTF', 0, 0, 0, 24), ('EGTF', 0, 0, 0, 12),
				('LFPN', 1, 0, 0, NULL), ('LFPN', 0, 0, 0, 48)`,
		)
	}
	for _, s := range stmts {
		_, err := db.Exec(s)
		require.NoError(t, err, s)
	}
	return path
}

func TestAuthoritativeFacts(t *testing.T) {
	repo := openTemp(t, writeAuthoritative(t, true))
	ctx := context.Background()

	lfpn, err := repo.AuthoritativeFacts(ctx, "LFPN")
	require.NoError(t, err)
	assert.Equal(t, "Toussus-le-Noble", lfpn.Name)
	require.NotNil(t, lfpn.LongestRunwayM)
	assert.InDelta(t, 3606*0.3048, *lfpn.LongestRunwayM, 1e-6)
	require.NotNil(t, lfpn.HardSurface)
	assert.True(t, *lfpn.HardSurface)
	assert.True(t, lfpn.ProceduresKnown)
	assert.Equal(t, 2, lfpn.InstrumentApproaches)
	assert.True(t, lfpn.PrecisionApproach)
	// an H24 row must not hide the 48h notice row
	require.NotNil(t, lfpn.Notification)
	assert.False(t, lfpn.Notification.H24)
	require.NotNil(t, lfpn.Notification.NoticeHours)
	assert.Equal(t, 48, *lfpn.Notification.NoticeHours)

	egtf, err := repo.AuthoritativeFacts(ctx, "EGTF")
	require.NoError(t, err)
	assert.Zero(t, egtf.InstrumentApproaches)
	require.NotNil(t, egtf.Notification)
	require.NotNil(t, egtf.Notification.NoticeHours)
	assert.Equal(t, 24, *egtf.Notification.NoticeHours)

	_, err = repo.AuthoritativeFacts(ctx, "EDXX")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAuthoritativeFactsWithoutNotificationTable(t *testing.T) {
	repo := openTemp(t, writeAuthoritative(t, false))
	egtf, err := repo.AuthoritativeFacts(context.Background(), "EGTF")
	require.NoError(t, err)
	assert.Nil(t, egtf.Notification)
	require.NotNil(t, egtf.LongestRunwayM)
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ga.db")
	repo, err := storage.OpenSQLite(path, "")
	require.NoError(t, err)
	require.NoError(t, repo.UpsertStats(context.Background(), sampleWrite("EGTF").Stats))
	require.NoError(t, repo.Close())

	repo, err = storage.OpenSQLite(path, "")
	require.NoError(t, err)
	defer repo.Close()
	_, err = repo.ReadStats(context.Background(), "EGTF")
	require.NoError(t, err)
}

func TestCommitAirportWithManyReviews(t *testing.T) {
	repo := openTemp(t, "")
	ctx := context.Background()

	// 6000 rows x 6 columns exceeds SQLite's bind parameter limit in one statement
	const n = 6000
	w := sampleWrite("EDDF")
	w.Tags, w.States = nil, nil
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("r%05d", i)
		w.Tags = append(w.Tags, domain.ReviewTag{AirportID: "EDDF", ReviewID: id, Aspect: "cost", Label: "cheap", Confidence: 0.8, Timestamp: t0})
		w.States = append(w.States, domain.ReviewState{AirportID: "EDDF", ReviewID: id, ReviewTimestamp: t0, Status: domain.ReviewParsed, Attempts: 1, ProcessedAt: t0})
	}
	require.NoError(t, repo.CommitAirport(ctx, w))

	tags, err := repo.ReadTags(ctx, "EDDF")
	require.NoError(t, err)
	assert.Len(t, tags, n)
	states, err := repo.ReadReviewStates(ctx, "EDDF")
	require.NoError(t, err)
	assert.Len(t, states, n)
	assert.Equal(t, domain.ReviewParsed, states["r05999"].Status)

	ids := make([]string, 0, 1200)
	for i := 0; i < 1199; i++ {
		ids = append(ids, fmt.Sprintf("X%03d", i))
	}
	ids = append(ids, "EDDF")
	got, err := repo.ReadStatsMany(ctx, ids)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Contains(t, got, "EDDF")
}
