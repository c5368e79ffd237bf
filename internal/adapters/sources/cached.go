package sources

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"ga_friendliness/internal/adapters/observability"
	"ga_friendliness/internal/domain"
)

const DefaultMaxCacheAge = 7 * 24 * time.Hour

// CachePolicy decides when a cached snapshot may be reused. NeverRefresh
// reuses any existing entry regardless of age; ForceRefresh always fetches.
type CachePolicy struct {
	MaxAge       time.Duration
	ForceRefresh bool
	NeverRefresh bool
}

// CachedLoader serves a remote snapshot through a BlobCache.
type CachedLoader struct {
	fetcher domain.Fetcher
	cache   domain.BlobCache
	policy  CachePolicy
	clock   clockwork.Clock
	log     zerolog.Logger
}

func NewCachedLoader(f domain.Fetcher, c domain.BlobCache, p CachePolicy, clock clockwork.Clock, log zerolog.Logger) *CachedLoader {
	if p.MaxAge <= 0 {
		p.MaxAge = DefaultMaxCacheAge
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &CachedLoader{fetcher: f, cache: c, policy: p, clock: clock, log: log}
}

func (l *CachedLoader) Describe() string { return l.fetcher.Key() }

func (l *CachedLoader) Load(ctx context.Context) ([]byte, error) {
	key := l.fetcher.Key()
	cached, fetchedAt, ok, err := l.cache.Load(ctx, key)
	if err != nil {
		l.log.Warn().Err(err).Str("key", key).Msg("source cache read failed")
		ok = false
	}
	if ok && l.fresh(fetchedAt) {
		observability.ObserveCache("source", "hit")
		return cached, nil
	}
	observability.ObserveCache("source", "miss")

	b, ferr := l.fetcher.Fetch(ctx)
	if ferr != nil {
		if ok {
			l.log.Warn().Err(ferr).Str("key", key).Time("fetched_at", fetchedAt).Msg("refresh failed; using stale snapshot")
			return cached, nil
		}
		return nil, fmt.Errorf("fetch %s: %w", key, ferr)
	}
	if err := l.cache.Save(ctx, key, b, l.clock.Now()); err != nil {
		l.log.Warn().Err(err).Str("key", key).Msg("source cache write failed")
	} else {
		observability.ObserveCache("source", "set")
	}
	return b, nil
}

func (l *CachedLoader) fresh(fetchedAt time.Time) bool {
	switch {
	case l.policy.ForceRefresh:
		return false
	case l.policy.NeverRefresh:
		return true
	default:
		return l.clock.Since(fetchedAt) <= l.policy.MaxAge
	}
}

// FileCache keeps snapshots as files; the file mtime is the fetch time.
type FileCache struct{ dir string }

func NewFileCache(dir string) (*FileCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileCache{dir: dir}, nil
}

var unsafeKey = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func (c *FileCache) path(key string) string {
	return filepath.Join(c.dir, unsafeKey.ReplaceAllString(key, "_")+".cache")
}

func (c *FileCache) Load(ctx context.Context, key string) ([]byte, time.Time, bool, error) {
	p := c.path(key)
	st, err := os.Stat(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, err
	}
	b, err := os.ReadFile(p)
	if err != nil {
		return nil, time.Time{}, false, err
	}
	return b, st.ModTime(), true, nil
}

func (c *FileCache) Save(ctx context.Context, key string, data []byte, fetchedAt time.Time) error {
	p := c.path(key)
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Chtimes(tmp, fetchedAt, fetchedAt); err != nil {
		return err
	}
	return os.Rename(tmp, p)
}
