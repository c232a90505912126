package client

import (
	"context"
	"errors"
	"scoreboard/metrics"
	"time"

	"github.com/gin-contrib/cache/persistence"
	"go.uber.org/zap"
)

// CacheEntry is what the store holds per url. It is replaced as a whole on refresh.
type CacheEntry struct {
	Payload   []byte
	FetchedAt time.Time
}

// Fetcher performs the live request for a url.
type Fetcher func(ctx context.Context, url string) ([]byte, error)

// RemoteCache serves upstream payloads from a store, refetching them once
// they are older than the freshness window. Concurrent misses on the same
// url each fetch, the last write wins.
type RemoteCache struct {
	store     persistence.CacheStore
	freshness time.Duration
	fetch     Fetcher
	now       func() time.Time
	logger    *zap.SugaredLogger
}

type CacheOption func(*RemoteCache)

// WithClock replaces the clock used to date entries and judge their age.
func WithClock(now func() time.Time) CacheOption {
	return func(c *RemoteCache) {
		c.now = now
	}
}

func WithCacheLogger(logger *zap.SugaredLogger) CacheOption {
	return func(c *RemoteCache) {
		c.logger = logger
	}
}

func NewRemoteCache(store persistence.CacheStore, freshnessDays int, fetch Fetcher, opts ...CacheOption) *RemoteCache {
	cache := &RemoteCache{
		store:     store,
		freshness: time.Duration(freshnessDays) * 24 * time.Hour,
		fetch:     fetch,
		now:       time.Now,
		logger:    zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(cache)
	}
	return cache
}

func (c *RemoteCache) GetOrFetch(ctx context.Context, url string) ([]byte, error) {
	var entry CacheEntry
	err := c.store.Get(url, &entry)
	switch {
	case err == nil && c.now().Sub(entry.FetchedAt) < c.freshness:
		metrics.CacheLookupCounter.WithLabelValues("hit").Inc()
		return entry.Payload, nil
	case err == nil:
		metrics.CacheLookupCounter.WithLabelValues("stale").Inc()
	case errors.Is(err, persistence.ErrCacheMiss):
		metrics.CacheLookupCounter.WithLabelValues("miss").Inc()
	default:
		metrics.CacheLookupCounter.WithLabelValues("miss").Inc()
		c.logger.Warnw("cache read failed, fetching live", "url", url, "error", err)
	}

	payload, err := c.fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	entry = CacheEntry{Payload: payload, FetchedAt: c.now()}
	if err := c.store.Set(url, entry, c.freshness); err != nil {
		c.logger.Warnw("cache write failed", "url", url, "error", err)
	}
	return payload, nil
}
