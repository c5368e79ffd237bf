package sources_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ga_friendliness/internal/adapters/sources"
	"ga_friendliness/internal/domain"
)

func write(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestCSVSource(t *testing.T) {
	p := write(t, t.TempDir(), "reviews.csv", "icao,review_text,review_id,rating,timestamp,language\n"+
		"egtf,Cheap fuel and friendly staff,r1,5,2024-05-01T10:00:00Z,EN\n"+
		"EGTF,,r2,4,,\n"+
		",orphan,r3,,,\n"+
		"LFAT,No id here,,9,2024-06-01,FR\n")

	src := sources.NewCSV(p, sources.DefaultCSVColumns())
	got, err := src.Reviews(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "EGTF", got[0].AirportID)
	assert.Equal(t, "r1", got[0].ReviewID)
	require.NotNil(t, got[0].Rating)
	assert.Equal(t, 5.0, *got[0].Rating)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), got[0].Timestamp)

	// out-of-range rating dropped, id synthesized and stable
	assert.Nil(t, got[1].Rating)
	assert.NotEmpty(t, got[1].ReviewID)
	again, err := src.Reviews(context.Background())
	require.NoError(t, err)
	assert.Equal(t, got[1].ReviewID, again[1].ReviewID)

	v, err := src.Version(context.Background())
	require.NoError(t, err)
	assert.Contains(t, v, "csv:")
}

func TestCSVSource_MissingFileIsSourceError(t *testing.T) {
	_, err := sources.NewCSV(filepath.Join(t.TempDir(), "none.csv"), sources.DefaultCSVColumns()).Reviews(context.Background())
	var se *domain.SourceError
	require.ErrorAs(t, err, &se)
}

const exportDoc = `{
  "metadata": {"generated": "2024-07-01"},
  "pireps": {
    "lfsb": {
      "LFSB#a": {"content": {"DE": "Teuer", "EN": "Expensive but efficient"}, "rating": 3, "created_at": "2024-01-02T00:00:00Z"},
      "LFSB#b": {"content": {"EN": "Generated text"}, "ai_generated": true},
      "LFSB#c": {"id": "custom", "content": {"FR": "Accueil sympa"}, "language": "FR"}
    }
  }
}`

func TestExportSource(t *testing.T) {
	p := write(t, t.TempDir(), "export.json", exportDoc)
	src := sources.NewExport(sources.FileLoader{Path: p}, sources.ExportOptions{})

	got, err := src.Reviews(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "LFSB", got[0].AirportID)
	assert.Equal(t, "LFSB#a", got[0].ReviewID)
	assert.Equal(t, "Expensive but efficient", got[0].Text)
	assert.Equal(t, "custom", got[1].ReviewID)
	assert.Equal(t, "Accueil sympa", got[1].Text)
	assert.Equal(t, "FR", got[1].Language)

	withAI := sources.NewExport(sources.FileLoader{Path: p}, sources.ExportOptions{IncludeSynthetic: true, PreferredLanguage: "DE"})
	all, err := withAI.Reviews(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Teuer", all[0].Text)
	assert.True(t, all[1].IsSynthetic)
}

func TestAirportDirSource_ReviewsAndFees(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "EGTF.json", `{
	  "airfield": {"data": {"icao": "egtf"}},
	  "aerops": {"data": {"currency": "GBP", "landing_fees": {
	    "C172": [{"netPrice": 20}], "PA28": [{"netPrice": "30"}], "SR22": [{"netprice": 40}], "zeppelin": [{"netPrice": 999}]
	  }}},
	  "pireps": {"data": [{"id": "p1", "content": {"EN": "Lovely cafe"}, "rating": 5}]}
	}`)
	write(t, dir, "LFAT.json", `{"pireps": {"data": [{"id": "p2", "content": "Plain string review"}]}}`)
	write(t, dir, "broken.json", `{not json`)

	src := sources.NewAirportDir(dir, sources.ExportOptions{}, zerolog.Nop())
	got, err := src.Reviews(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "EGTF", got[0].AirportID)
	assert.Equal(t, "LFAT", got[1].AirportID)
	assert.Equal(t, "Plain string review", got[1].Text)

	fd, ok := src.FeeData("egtf")
	require.True(t, ok)
	assert.Equal(t, "GBP", fd.Currency)
	assert.InDelta(t, 25.0, fd.Bands["fee_band_750_1199kg"], 1e-9)
	assert.InDelta(t, 40.0, fd.Bands["fee_band_1500_1999kg"], 1e-9)
	assert.Len(t, fd.Bands, 2)

	_, ok = src.FeeData("LFAT")
	assert.False(t, ok)
}

type stubSource struct {
	name    string
	reviews []domain.RawReview
	err     error
}

func (s stubSource) Name() string            { return s.name }
func (s stubSource) Kind() domain.SourceKind { return domain.SourceCSV }
func (s stubSource) Reviews(context.Context) ([]domain.RawReview, error) {
	return s.reviews, s.err
}
func (s stubSource) Version(context.Context) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.name + "-v1", nil
}

func TestComposite_FirstSourceWins(t *testing.T) {
	a := stubSource{name: "a", reviews: []domain.RawReview{{ReviewID: "1", Text: "from a"}, {ReviewID: "2", Text: "a2"}}}
	b := stubSource{name: "b", reviews: []domain.RawReview{{ReviewID: "1", Text: "from b"}, {ReviewID: "3", Text: "b3"}}}
	c := sources.NewComposite(zerolog.Nop(), a, b)

	got, err := c.Reviews(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "from a", got[0].Text)
	assert.Equal(t, "3", got[2].ReviewID)

	v, err := c.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a-v1|b-v1", v)
	assert.Equal(t, "composite(a, b)", c.Name())
}

func TestComposite_MemberFailure(t *testing.T) {
	good := stubSource{name: "good", reviews: []domain.RawReview{{ReviewID: "1"}}}
	bad := stubSource{name: "bad", err: errors.New("unreachable")}

	got, err := sources.NewComposite(zerolog.Nop(), bad, good).Reviews(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 1)

	_, err = sources.NewComposite(zerolog.Nop(), bad).Reviews(context.Background())
	var se *domain.SourceError
	require.ErrorAs(t, err, &se)
}

type countingFetcher struct {
	body  string
	err   error
	calls int
}

func (f *countingFetcher) Key() string { return "https://example.test/export.json" }
func (f *countingFetcher) Fetch(context.Context) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []byte(f.body), nil
}

func TestCachedLoader_Policy(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC))
	cache, err := sources.NewFileCache(t.TempDir())
	require.NoError(t, err)
	f := &countingFetcher{body: "v1"}

	l := sources.NewCachedLoader(f, cache, sources.CachePolicy{MaxAge: 24 * time.Hour}, clock, zerolog.Nop())

	// absent: fetch
	b, err := l.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v1", string(b))
	assert.Equal(t, 1, f.calls)

	// fresh: reuse
	clock.Advance(time.Hour)
	_, err = l.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, f.calls)

	// stale: refetch
	f.body = "v2"
	clock.Advance(48 * time.Hour)
	b, err = l.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(b))
	assert.Equal(t, 2, f.calls)

	// never-refresh ignores age
	clock.Advance(365 * 24 * time.Hour)
	never := sources.NewCachedLoader(f, cache, sources.CachePolicy{MaxAge: time.Hour, NeverRefresh: true}, clock, zerolog.Nop())
	b, err = never.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(b))
	assert.Equal(t, 2, f.calls)

	// force always fetches
	f.body = "v3"
	forced := sources.NewCachedLoader(f, cache, sources.CachePolicy{ForceRefresh: true}, clock, zerolog.Nop())
	b, err = forced.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v3", string(b))
	assert.Equal(t, 3, f.calls)
}

func TestCachedLoader_StaleOnFetchError(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	cache, err := sources.NewFileCache(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, cache.Save(ctx, "https://example.test/export.json", []byte("old"), clock.Now().Add(-30*24*time.Hour)))

	f := &countingFetcher{err: errors.New("offline")}
	b, err := sources.NewCachedLoader(f, cache, sources.CachePolicy{}, clock, zerolog.Nop()).Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "old", string(b))

	empty, err := sources.NewFileCache(t.TempDir())
	require.NoError(t, err)
	_, err = sources.NewCachedLoader(f, empty, sources.CachePolicy{}, clock, zerolog.Nop()).Load(ctx)
	assert.Error(t, err)
}

type fakeS3 struct{ body string }

func (f fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if *in.Bucket != "snapshots" || *in.Key != "export.json" {
		return nil, errors.New("no such key")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader([]byte(f.body)))}, nil
}

func TestS3FetcherFeedsExportSource(t *testing.T) {
	bucket, key, err := sources.ParseS3URL("s3://snapshots/export.json")
	require.NoError(t, err)

	f := sources.NewS3Fetcher(fakeS3{body: exportDoc}, bucket, key)
	assert.Equal(t, "s3://snapshots/export.json", f.Key())

	cache, err := sources.NewFileCache(t.TempDir())
	require.NoError(t, err)
	loader := sources.NewCachedLoader(f, cache, sources.CachePolicy{}, clockwork.NewFakeClock(), zerolog.Nop())
	got, err := sources.NewExport(loader, sources.ExportOptions{}).Reviews(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, _, err = sources.ParseS3URL("https://x/y")
	assert.Error(t, err)
}
