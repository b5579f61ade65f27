package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"triage/internal/constants"
	"triage/internal/logger"
	"triage/pkg/metrics"
)

// CachedLookup is a Redis read-through wrapper. Cache failures never fail
// the lookup; they fall through to the inner source.
type CachedLookup struct {
	inner  Lookup
	client *redis.Client
	ttl    time.Duration
	logger logger.Logger

	hits  atomic.Int64
	total atomic.Int64
}

func NewCachedLookup(inner Lookup, client *redis.Client, ttlSeconds int, log logger.Logger) *CachedLookup {
	if ttlSeconds <= 0 {
		ttlSeconds = constants.DefaultDirectoryCacheTTLSeconds
	}

	return &CachedLookup{
		inner:  inner,
		client: client,
		ttl:    time.Duration(ttlSeconds) * time.Second,
		logger: log,
	}
}

func (c *CachedLookup) Lookup(ctx context.Context, site, workplace string) ([]Entry, error) {
	key := fmt.Sprintf("%s%s:%s", constants.CacheKeyPrefixDirectory, site, workplace)
	c.total.Add(1)

	cached, err := c.client.Get(ctx, key).Result()
	if err == nil {
		var entries []Entry
		if err := json.Unmarshal([]byte(cached), &entries); err == nil {
			c.hits.Add(1)
			c.updateHitRate()
			metrics.DirectoryLookupsTotal.WithLabelValues("cache_hit").Inc()
			return entries, nil
		}
		c.logger.WarnwCtx(ctx, "Failed to decode cached directory entry, falling through",
			"key", key,
			"error", err,
		)
	} else if err != redis.Nil {
		c.logger.WarnwCtx(ctx, "Directory cache read failed, falling through",
			"key", key,
			"error", err,
		)
	}

	entries, err := c.inner.Lookup(ctx, site, workplace)
	if err != nil {
		c.updateHitRate()
		return nil, err
	}

	if body, err := json.Marshal(entries); err == nil {
		if err := c.client.Set(ctx, key, body, c.ttl).Err(); err != nil {
			c.logger.WarnwCtx(ctx, "Directory cache write failed",
				"key", key,
				"error", err,
			)
		}
	}

	c.updateHitRate()
	return entries, nil
}

func (c *CachedLookup) updateHitRate() {
	total := c.total.Load()
	if total == 0 {
		return
	}
	metrics.SetDirectoryCacheHitRate(float64(c.hits.Load()) / float64(total))
}
