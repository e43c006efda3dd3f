// Package cache stores encoded evaluation outcomes keyed by the
// fingerprint of their inputs.
package cache

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Metrics records cache activity. It is satisfied by the metrics package
// and may be nil.
type Metrics interface {
	RecordCacheHit(cacheType string)
	RecordCacheMiss(cacheType string)
	UpdateCacheSize(cacheType string, size int)
}

// Cache is a byte cache with per-entry expiry.
type Cache interface {
	// Get returns the value for key. A miss is not an error.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Stats reports the cache's current size.
	Stats() Stats
	Close() error
}

// Stats holds cache statistics.
type Stats struct {
	Type    string `json:"type"`
	Size    int    `json:"size"`
	MaxSize int    `json:"max_size,omitempty"`
	Hits    int64  `json:"hits"`
	Misses  int64  `json:"misses"`
}

// Config selects and sizes the cache.
type Config struct {
	Type     string        `yaml:"type" envconfig:"TBE_CACHE_TYPE"`
	Size     int           `yaml:"size" envconfig:"TBE_CACHE_SIZE"`
	TTL      time.Duration `yaml:"ttl" envconfig:"TBE_CACHE_TTL"`
	RedisURL string        `yaml:"redis_url" envconfig:"TBE_CACHE_REDIS_URL"`
	Prefix   string        `yaml:"prefix" envconfig:"TBE_CACHE_PREFIX"`
}

// New builds the cache named by cfg.Type: "memory" (default), "redis", or
// "none" which disables caching.
func New(cfg Config, m Metrics) (Cache, error) {
	switch strings.ToLower(cfg.Type) {
	case "", "memory":
		c := NewMemoryCache(cfg.Size, cfg.TTL)
		c.SetMetrics(m)
		return c, nil
	case "redis":
		c, err := NewRedisCache(cfg.RedisURL, cfg.Prefix, cfg.TTL)
		if err != nil {
			return nil, err
		}
		c.SetMetrics(m)
		return c, nil
	case "none":
		return Nop{}, nil
	default:
		return nil, fmt.Errorf("unknown cache type %q (must be memory, redis, or none)", cfg.Type)
	}
}

// Nop is a cache that stores nothing.
type Nop struct{}

func (Nop) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (Nop) Set(context.Context, string, []byte) error         { return nil }
func (Nop) Delete(context.Context, string) error              { return nil }
func (Nop) Stats() Stats                                      { return Stats{Type: "none"} }
func (Nop) Close() error                                      { return nil }
