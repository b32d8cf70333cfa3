package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fedsearch-io/fedsearch-engine/pkg/apperrors"
	"github.com/fedsearch-io/fedsearch-engine/pkg/metrics"
	"github.com/fedsearch-io/fedsearch-engine/pkg/models"
)

// sourceIndexTTL bounds how long invalidation indexes outlive their entries.
// Slightly longer than the maximum entry TTL so an index never expires
// before the entries it tracks.
const sourceIndexTTL = maxTTL + 10*time.Minute

// Cache wraps Redis for merged search responses. A nil client disables the
// cache entirely; every lookup is then a miss and writes are no-ops.
type Cache struct {
	client *redis.Client
	logger *zap.Logger
}

// New creates a response cache. client may be nil when Redis is not
// configured.
func New(client *redis.Client, logger *zap.Logger) *Cache {
	return &Cache{client: client, logger: logger.Named("cache")}
}

// Enabled reports whether a Redis client is configured.
func (c *Cache) Enabled() bool {
	return c.client != nil
}

// Get looks up a cached response for the query. Store failures are logged
// and reported as a miss.
func (c *Cache) Get(ctx context.Context, q *models.SearchQuery) (*models.SearchResponse, bool) {
	if c.client == nil {
		return nil, false
	}

	key := BuildKey(q)
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			metrics.CacheLookups.WithLabelValues("miss").Inc()
			return nil, false
		}
		metrics.CacheLookups.WithLabelValues("error").Inc()
		c.logger.Warn("cache lookup failed, treating as miss", zap.Error(err))
		return nil, false
	}

	var resp models.SearchResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		metrics.CacheLookups.WithLabelValues("error").Inc()
		c.logger.Warn("cache entry corrupt, treating as miss", zap.String("key", key), zap.Error(err))
		return nil, false
	}

	metrics.CacheLookups.WithLabelValues("hit").Inc()
	resp.Cached = true
	return &resp, true
}

// Set stores a response with a TTL derived from result volume and query
// cost, and records the key in each queried source's invalidation index.
// Failures are logged and swallowed.
func (c *Cache) Set(ctx context.Context, q *models.SearchQuery, resp *models.SearchResponse) {
	if c.client == nil {
		return
	}

	raw, err := json.Marshal(resp)
	if err != nil {
		metrics.CacheWrites.WithLabelValues("error").Inc()
		c.logger.Warn("cache marshal failed", zap.Error(err))
		return
	}

	key := BuildKey(q)
	ttl := ComputeTTL(resp.TotalCount, resp.ExecutionTimeMs)

	pipe := c.client.Pipeline()
	pipe.Set(ctx, key, raw, ttl)
	for _, sourceID := range q.Sources {
		idx := SourceIndexKey(sourceID)
		pipe.SAdd(ctx, idx, key)
		pipe.Expire(ctx, idx, sourceIndexTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		metrics.CacheWrites.WithLabelValues("error").Inc()
		c.logger.Warn("cache write failed", zap.Error(err))
		return
	}

	metrics.CacheWrites.WithLabelValues("ok").Inc()
	c.logger.Debug("cached response",
		zap.String("key", key),
		zap.Duration("ttl", ttl),
		zap.Int("total_count", resp.TotalCount))
}

// InvalidateSource deletes every cached response that includes results from
// the given source. Returns the number of entries removed.
func (c *Cache) InvalidateSource(ctx context.Context, sourceID uuid.UUID) (int64, error) {
	if c.client == nil {
		return 0, nil
	}

	idx := SourceIndexKey(sourceID)
	keys, err := c.client.SMembers(ctx, idx).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: read source index: %v", apperrors.ErrCacheUnavailable, err)
	}

	var removed int64
	if len(keys) > 0 {
		removed, err = c.client.Del(ctx, keys...).Result()
		if err != nil {
			return 0, fmt.Errorf("%w: delete entries: %v", apperrors.ErrCacheUnavailable, err)
		}
	}
	if err := c.client.Del(ctx, idx).Err(); err != nil {
		return removed, fmt.Errorf("%w: delete source index: %v", apperrors.ErrCacheUnavailable, err)
	}

	c.logger.Info("invalidated cache for source",
		zap.String("source_id", sourceID.String()),
		zap.Int64("entries", removed))
	return removed, nil
}

// Flush removes all cached responses and their invalidation indexes.
// Returns the number of keys removed.
func (c *Cache) Flush(ctx context.Context) (int64, error) {
	if c.client == nil {
		return 0, nil
	}

	var total int64
	for _, pattern := range []string{keyPrefix + "*", sourceIndexPrefix + "*"} {
		var cursor uint64
		for {
			keys, next, err := c.client.Scan(ctx, cursor, pattern, 500).Result()
			if err != nil {
				return total, fmt.Errorf("%w: scan: %v", apperrors.ErrCacheUnavailable, err)
			}
			if len(keys) > 0 {
				n, err := c.client.Del(ctx, keys...).Result()
				if err != nil {
					return total, fmt.Errorf("%w: delete: %v", apperrors.ErrCacheUnavailable, err)
				}
				total += n
			}
			cursor = next
			if cursor == 0 {
				break
			}
		}
	}

	c.logger.Info("flushed response cache", zap.Int64("keys", total))
	return total, nil
}
