// Package cache implements the two-layer bilingual subtitle cache: a
// bounded in-memory LRU fronting the job store.
package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"

	"github.com/double-tu/youtube-subtitle-proxy/models"
	"github.com/double-tu/youtube-subtitle-proxy/repository"
)

type Config struct {
	MaxItems int
	TTL      time.Duration
}

// entry carries the row's expiry so a memory hit can never outlive the
// done row it was promoted from.
type entry struct {
	doc       string
	expiresAt int64
}

// Cache holds rendered bilingual WebVTT keyed by RequestKey. The memory
// layer trusts the most recent done row; the store layer disambiguates
// by source hash.
type Cache struct {
	lru    *expirable.LRU[string, entry]
	repo   repository.JobRepository
	logger *logrus.Logger
}

func New(repo repository.JobRepository, cfg Config) *Cache {
	return &Cache{
		lru:    expirable.NewLRU[string, entry](cfg.MaxItems, nil, cfg.TTL),
		repo:   repo,
		logger: logrus.StandardLogger(),
	}
}

// Get returns the bilingual WebVTT for key from either layer, promoting
// store hits into memory. Misses are not counted here; a miss only
// becomes one once the original track was actually served (see
// CountMiss).
func (c *Cache) Get(ctx context.Context, key models.RequestKey) (string, bool) {
	if e, ok := c.lru.Get(key.CacheKey()); ok {
		if models.NowMs() < e.expiresAt {
			c.count(ctx, repository.CounterCacheHits)
			return e.doc, true
		}
		c.lru.Remove(key.CacheKey())
	}

	job, err := c.repo.FindLatestDone(ctx, key, models.NowMs())
	if err != nil {
		c.logger.WithError(err).Warn("Cache store lookup failed")
		return "", false
	}
	if job != nil && job.Bilingual != "" {
		c.lru.Add(key.CacheKey(), entry{doc: job.Bilingual, expiresAt: job.ExpiresAt})
		c.count(ctx, repository.CounterCacheHits)
		return job.Bilingual, true
	}

	return "", false
}

// Set stores the rendered bilingual output in the memory layer, valid
// until the backing row's expiry. The durable copy is the done job row,
// written by the worker before this call.
func (c *Cache) Set(key models.RequestKey, bilingual string, expiresAtMs int64) {
	c.lru.Add(key.CacheKey(), entry{doc: bilingual, expiresAt: expiresAtMs})
}

// CountMiss records one cache miss. Called by the dispatcher once the
// original track has been fetched and served.
func (c *Cache) CountMiss(ctx context.Context) {
	c.count(ctx, repository.CounterCacheMisses)
}

// Invalidate drops the memory entry for key, e.g. after its store row
// was deleted by cleanup.
func (c *Cache) Invalidate(key models.RequestKey) {
	c.lru.Remove(key.CacheKey())
}

func (c *Cache) Len() int { return c.lru.Len() }

// Stats reads the persisted hit/miss counters.
func (c *Cache) Stats(ctx context.Context) (hits, misses int64, err error) {
	if hits, err = c.repo.Counter(ctx, repository.CounterCacheHits); err != nil {
		return 0, 0, err
	}
	if misses, err = c.repo.Counter(ctx, repository.CounterCacheMisses); err != nil {
		return 0, 0, err
	}
	return hits, misses, nil
}

func (c *Cache) count(ctx context.Context, counter string) {
	if err := c.repo.IncrementCounter(ctx, counter, 1); err != nil {
		c.logger.WithError(err).WithField("counter", counter).Warn("Failed to bump cache counter")
	}
}
