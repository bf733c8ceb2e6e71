package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/cinema-seat-booking/internal/config"
	"github.com/iliyamo/cinema-seat-booking/internal/model"
)

// CatalogReader is the read side of the seat catalog.
type CatalogReader interface {
	Screening(ctx context.Context, id uint64) (*model.Screening, error)
	Seats(ctx context.Context, screeningID uint64) ([]model.Seat, error)
}

// CachedCatalog keeps screening and seat map lookups in Redis.  The
// catalog is static for the lifetime of a screening, so entries simply
// expire after the configured TTL.  Redis failures fall through to the
// underlying catalog; only the underlying catalog's errors are returned.
type CachedCatalog struct {
	inner  CatalogReader
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

// NewCachedCatalog wraps inner.  When caching is disabled or rdb is nil
// the returned reader is inner itself.
func NewCachedCatalog(cfg config.CatalogCacheConfig, rdb *redis.Client, inner CatalogReader) CatalogReader {
	if !cfg.Enabled || rdb == nil {
		return inner
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedCatalog{inner: inner, rdb: rdb, ttl: ttl, prefix: cfg.Prefix}
}

func (c *CachedCatalog) key(kind string, id uint64) string {
	return fmt.Sprintf("%s:%s:%d", c.prefix, kind, id)
}

func (c *CachedCatalog) Screening(ctx context.Context, id uint64) (*model.Screening, error) {
	k := c.key("screening", id)
	var s model.Screening
	if c.load(ctx, k, &s) {
		return &s, nil
	}
	got, err := c.inner.Screening(ctx, id)
	if err != nil {
		return nil, err
	}
	c.store(ctx, k, got)
	return got, nil
}

func (c *CachedCatalog) Seats(ctx context.Context, screeningID uint64) ([]model.Seat, error) {
	k := c.key("seats", screeningID)
	var seats []model.Seat
	if c.load(ctx, k, &seats) {
		return seats, nil
	}
	got, err := c.inner.Seats(ctx, screeningID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, k, got)
	return got, nil
}

// Invalidate drops the cached entries of a screening.
func (c *CachedCatalog) Invalidate(ctx context.Context, screeningID uint64) error {
	return c.rdb.Del(ctx, c.key("screening", screeningID), c.key("seats", screeningID)).Err()
}

func (c *CachedCatalog) load(ctx context.Context, key string, dst interface{}) bool {
	bs, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(bs, dst) == nil
}

func (c *CachedCatalog) store(ctx context.Context, key string, v interface{}) {
	bs, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = c.rdb.Set(ctx, key, bs, c.ttl).Err()
}
