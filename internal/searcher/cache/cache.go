// Package cache stores search results in Redis. Keys embed the index
// version the result was computed at, so any write to the index makes older
// entries unreachable and they age out through the TTL.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search-engine/pkg/resilience"
)

const keyPrefix = "search:"

// Store is the subset of the redis client the cache needs. A missing key is
// reported with pkgredis.Nil.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// QueryCache never fails a search: store errors and an open breaker are
// logged and treated as misses.
type QueryCache struct {
	store   Store
	ttl     time.Duration
	breaker *resilience.CircuitBreaker
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

func New(store Store, cfg config.RedisConfig, m *metrics.Metrics) *QueryCache {
	return &QueryCache{
		store: store,
		ttl:   cfg.CacheTTL,
		breaker: resilience.NewCircuitBreaker("redis-cache", resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
			OnStateChange: func(name string, to resilience.State) {
				m.SetBreakerState(name, int(to))
			},
		}),
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

// Key identifies a prepared request at an index version. Equivalent
// keyword spellings share a key because the parsed query is canonical.
func Key(version uint64, req executor.Request, q *parser.Query) string {
	sorts := make([]string, len(req.Sort))
	for i, s := range req.Sort {
		sorts[i] = s.String()
	}
	raw := fmt.Sprintf("v=%d|q=%s|f=%s|l=%d|s=%s",
		version, q.String(), strings.Join(req.Fields, ","), req.Limit, strings.Join(sorts, ","))
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}

func (c *QueryCache) Get(ctx context.Context, key string) (*executor.Result, bool) {
	var data string
	err := c.breaker.ExecuteContext(ctx, func(ctx context.Context) error {
		var err error
		data, err = c.store.Get(ctx, key)
		if pkgredis.IsNilError(err) {
			return nil
		}
		return err
	})
	if err != nil {
		c.logger.Warn("cache get failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	if data == "" {
		c.miss()
		return nil, false
	}
	var result executor.Result
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hits.Add(1)
	c.metrics.CacheHit()
	c.logger.Debug("cache hit", "key", key)
	return &result, true
}

func (c *QueryCache) Set(ctx context.Context, key string, result *executor.Result) {
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.ExecuteContext(ctx, func(ctx context.Context) error {
		return c.store.Set(ctx, key, data, c.ttl)
	})
	if err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result for key or runs compute once per
// key across concurrent callers. The bool reports a cache hit.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	key string,
	compute func() (*executor.Result, error),
) (*executor.Result, bool, error) {
	if result, ok := c.Get(ctx, key); ok {
		return result, true, nil
	}
	val, err, _ := c.group.Do(key, func() (any, error) {
		result, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, key, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*executor.Result), false, nil
}

// Invalidate drops every cached result.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	deleted, err := c.store.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	c.metrics.CacheMiss()
}
