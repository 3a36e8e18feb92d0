package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"risk_backend/internal/feature/marketdata/domain/entity"
	"risk_backend/internal/feature/marketdata/usecase"
)

// CachingPriceRepository decorates a PriceRepository with Redis caching of
// history queries. It transparently adds caching without modifying the
// underlying repository; with a nil client it degrades to a pass-through.
type CachingPriceRepository struct {
	inner     usecase.PriceRepository
	rdb       *redis.Client
	ttl       time.Duration
	namespace string
}

var _ usecase.PriceRepository = (*CachingPriceRepository)(nil)

// NewCachingPriceRepository decorates inner with Redis caching. If ttl is 0,
// it defaults to 12 hours. If namespace is empty, it uses "prices".
func NewCachingPriceRepository(rdb *redis.Client, ttl time.Duration, inner usecase.PriceRepository, namespace string) *CachingPriceRepository {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	if namespace == "" {
		namespace = "prices"
	}
	return &CachingPriceRepository{
		inner:     inner,
		rdb:       rdb,
		ttl:       ttl,
		namespace: namespace,
	}
}

// UpsertBatch writes through to the underlying repository, then invalidates
// the cached history entries of the touched symbols.
func (c *CachingPriceRepository) UpsertBatch(ctx context.Context, points []entity.PricePoint) error {
	if err := c.inner.UpsertBatch(ctx, points); err != nil {
		return err
	}
	if c.rdb == nil || len(points) == 0 {
		return nil
	}

	seen := map[string]struct{}{}
	for _, p := range points {
		prefix := c.keyPrefix(p.Symbol)
		if _, ok := seen[prefix]; ok {
			continue
		}
		seen[prefix] = struct{}{}
		// Best effort: a stale cache entry expires via TTL anyway.
		_ = c.deleteByPattern(ctx, prefix+"*")
	}
	return nil
}

// History checks the cache first, then falls back to the database.
func (c *CachingPriceRepository) History(ctx context.Context, symbol string, limit int) ([]entity.PricePoint, error) {
	if c.rdb == nil {
		return c.inner.History(ctx, symbol, limit)
	}

	key := c.key(symbol, limit)

	if b, err := c.rdb.Get(ctx, key).Bytes(); err == nil && len(b) > 0 {
		var out []entity.PricePoint
		if err := json.Unmarshal(b, &out); err == nil {
			return out, nil
		}
		_ = c.rdb.Del(ctx, key).Err()
	}

	out, err := c.inner.History(ctx, symbol, limit)
	if err != nil {
		return nil, err
	}

	if b, err := json.Marshal(out); err == nil {
		_ = c.rdb.Set(ctx, key, b, c.ttl).Err()
	}

	return out, nil
}

func (c *CachingPriceRepository) ForDate(ctx context.Context, symbol string, date time.Time) (*entity.PricePoint, error) {
	return c.inner.ForDate(ctx, symbol, date)
}

func (c *CachingPriceRepository) CountForDate(ctx context.Context, date time.Time) (int64, error) {
	return c.inner.CountForDate(ctx, date)
}

func (c *CachingPriceRepository) LatestDate(ctx context.Context) (time.Time, error) {
	return c.inner.LatestDate(ctx)
}

func (c *CachingPriceRepository) ListSince(ctx context.Context, since time.Time) ([]entity.PricePoint, error) {
	return c.inner.ListSince(ctx, since)
}

func (c *CachingPriceRepository) key(symbol string, limit int) string {
	return fmt.Sprintf("%s:%s:%d", c.namespace, safe(symbol), limit)
}

func (c *CachingPriceRepository) keyPrefix(symbol string) string {
	return fmt.Sprintf("%s:%s:", c.namespace, safe(symbol))
}

// deleteByPattern deletes all cache keys matching a pattern using SCAN.
func (c *CachingPriceRepository) deleteByPattern(ctx context.Context, pattern string) error {
	var cursor uint64
	for {
		keys, cur, err := c.rdb.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = cur
		if cursor == 0 {
			break
		}
	}
	return nil
}

// safe escapes characters that are problematic for Redis keys.
func safe(s string) string {
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, ":", "_")
	return s
}
