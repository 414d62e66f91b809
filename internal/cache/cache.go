package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"topster/internal/config"
	"topster/internal/logging"
	"topster/internal/media"
)

// Bucket names.
const (
	Search  = "search"  // search result pages
	Media   = "media"   // trending and recent listings
	Episode = "episode" // season and episode lists
)

type bucket struct {
	store Store
	ttl   time.Duration
}

// Cache routes keys to buckets and collapses concurrent loads of the same
// key into one upstream call. A nil *Cache is valid and caches nothing.
type Cache struct {
	buckets map[string]bucket
	group   singleflight.Group
	log     *zap.Logger
	db      *sql.DB
}

// New creates an empty cache. Buckets are added with Register.
func New(log *zap.Logger) *Cache {
	return &Cache{buckets: make(map[string]bucket), log: logging.OrNop(log)}
}

// Register attaches store to a bucket name with the given TTL.
func (c *Cache) Register(name string, store Store, ttl time.Duration) {
	c.buckets[name] = bucket{store: store, ttl: ttl}
}

// Open builds the cache described by cfg. Backend "none" returns a nil
// *Cache.
func Open(ctx context.Context, cfg config.Cache, log *zap.Logger) (*Cache, error) {
	sizes := map[string]config.Bucket{Search: cfg.Search, Media: cfg.Media, Episode: cfg.Episode}

	switch cfg.Backend {
	case "none":
		return nil, nil
	case "memory", "":
		c := New(log)
		for name, b := range sizes {
			c.Register(name, NewMemory(b.MaxEntries), b.TTL.Duration)
		}
		return c, nil
	case "sqlite":
		path := cfg.Path
		if path == "" {
			p, err := config.CachePath()
			if err != nil {
				return nil, err
			}
			path = p
		}
		db, err := OpenDB(ctx, path)
		if err != nil {
			return nil, err
		}
		c := New(log)
		c.db = db
		for name, b := range sizes {
			c.Register(name, NewSQLite(db, name, b.MaxEntries), b.TTL.Duration)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unsupported cache backend %q", cfg.Backend)
	}
}

// Close releases the backing database, if any.
func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// GetOrLoad returns the cached value for key, or calls load and caches its
// result. Load errors are returned and never cached. Store failures are
// logged and otherwise ignored.
func GetOrLoad[T any](ctx context.Context, c *Cache, bucketName, key string, load func(ctx context.Context) (T, error)) (T, error) {
	if c == nil {
		return load(ctx)
	}
	b, ok := c.buckets[bucketName]
	if !ok {
		return load(ctx)
	}
	log := logging.FromContext(ctx, c.log).With(zap.String("bucket", bucketName), zap.String("key", key))

	if v, ok := lookup[T](ctx, b.store, key, log); ok {
		log.Debug("cache hit")
		return v, nil
	}
	log.Debug("cache miss")

	// The shared load outlives any single caller; each caller stops
	// waiting when its own context ends.
	loadCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(bucketName+"\x00"+key, func() (any, error) {
		v, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(v)
		if err != nil {
			log.Warn("cache encode failed", zap.Error(err))
			return v, nil
		}
		if err := b.store.Set(loadCtx, key, raw, b.ttl); err != nil {
			log.Warn("cache write failed", zap.Error(err))
		}
		return v, nil
	})

	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

func lookup[T any](ctx context.Context, store Store, key string, log *zap.Logger) (T, bool) {
	var v T
	raw, err := store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			log.Warn("cache read failed", zap.Error(err))
		}
		return v, false
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		log.Warn("dropping undecodable cache entry", zap.Error(err))
		_ = store.Delete(ctx, key)
		var zero T
		return zero, false
	}
	return v, true
}

// Invalidate removes one key from a bucket.
func (c *Cache) Invalidate(ctx context.Context, bucketName, key string) error {
	if c == nil {
		return nil
	}
	b, ok := c.buckets[bucketName]
	if !ok {
		return fmt.Errorf("unknown cache bucket %q", bucketName)
	}
	return b.store.Delete(ctx, key)
}

// Clear empties every bucket.
func (c *Cache) Clear(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errList []error
	for name, b := range c.buckets {
		if err := b.store.Clear(ctx); err != nil {
			errList = append(errList, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errList...)
}

func SearchKey(query string, page int) string {
	return "search:" + query + ":" + strconv.Itoa(page)
}

func TrendingKey(page int) string {
	return "trending:" + strconv.Itoa(page)
}

func RecentKey(t media.MediaType, page int) string {
	return "recent:" + t.String() + ":" + strconv.Itoa(page)
}

func SeasonsKey(mediaID string) string {
	return "seasons:" + mediaID
}

func EpisodesKey(seasonID string) string {
	return "episodes:" + seasonID
}
