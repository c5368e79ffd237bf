package redisad

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"ga_friendliness/internal/adapters/observability"
)

type Cache struct{ c *redis.Client }

func New(addr, pass string, db int) *Cache {
	return &Cache{c: redis.NewClient(&redis.Options{Addr: addr, Password: pass, DB: db})}
}

func (r *Cache) Ping(ctx context.Context) error { return r.c.Ping(ctx).Err() }

func (r *Cache) Close() error { return r.c.Close() }

func (r *Cache) Get(ctx context.Context, key string, dst any) (bool, error) {
	v, err := r.c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		observability.ObserveCache("redis", "miss")
		return false, nil
	}
	if err != nil {
		return false, err
	}
	observability.ObserveCache("redis", "hit")
	return true, json.Unmarshal(v, dst)
}

func (r *Cache) Set(ctx context.Context, key string, v any, ttlSec int) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	observability.ObserveCache("redis", "set")
	return r.c.Set(ctx, key, b, time.Duration(ttlSec)*time.Second).Err()
}

func (r *Cache) Del(ctx context.Context, key string) error {
	observability.ObserveCache("redis", "del")
	return r.c.Del(ctx, key).Err()
}

// BlobCache stores source snapshots as a hash {data, fetched_at}. Entries
// do not expire; freshness is decided by the loader's policy.
type BlobCache struct {
	c      *redis.Client
	prefix string
}

func (r *Cache) Blobs(prefix string) *BlobCache { return &BlobCache{c: r.c, prefix: prefix} }

func (b *BlobCache) Load(ctx context.Context, key string) ([]byte, time.Time, bool, error) {
	vals, err := b.c.HGetAll(ctx, b.prefix+key).Result()
	if err != nil {
		return nil, time.Time{}, false, err
	}
	data, ok := vals["data"]
	if !ok {
		return nil, time.Time{}, false, nil
	}
	at, err := time.Parse(time.RFC3339Nano, vals["fetched_at"])
	if err != nil {
		// unknown age: treat as stale but usable
		at = time.Time{}
	}
	return []byte(data), at, true, nil
}

func (b *BlobCache) Save(ctx context.Context, key string, data []byte, fetchedAt time.Time) error {
	return b.c.HSet(ctx, b.prefix+key, "data", data, "fetched_at", fetchedAt.UTC().Format(time.RFC3339Nano)).Err()
}
