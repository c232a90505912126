package config

import (
	"fmt"
	"time"

	"github.com/gin-contrib/cache/persistence"
)

// NewCacheStore returns the store backing the remote response cache.
// Entries expire from the store once the freshness window has passed.
func NewCacheStore(cfg *Config) (persistence.CacheStore, error) {
	ttl := time.Duration(cfg.CacheFreshnessDays) * 24 * time.Hour
	switch cfg.CacheBackend {
	case "", "memory":
		return persistence.NewInMemoryStore(ttl), nil
	case "redis":
		return persistence.NewRedisCache(cfg.RedisHost, cfg.RedisPassword, ttl), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
}
