// Package oraclecache memoizes a KnownFileOracle's lookups with an
// in-process TTL cache, so that a long-running ingest over a file
// system heavy in duplicate hashes (shared libraries, empty files)
// doesn't re-query the backing oracle for the same hash repeatedly.
package oraclecache

import (
	"context"
	"time"

	cache "github.com/patrickmn/go-cache"

	"github.com/tskcat/engine/engine"
)

// Cached wraps a KnownFileOracle with a go-cache memoization layer.
type Cached struct {
	inner engine.KnownFileOracle
	hits  *cache.Cache
}

// New builds a Cached oracle. ttl controls how long a lookup result is
// trusted before the next QuickLookup re-queries inner; ttl <= 0 means
// entries never expire on their own (cleared only when Close flushes the cache).
func New(inner engine.KnownFileOracle, ttl time.Duration) *Cached {
	expiration := ttl
	if expiration <= 0 {
		expiration = cache.NoExpiration
	}
	return &Cached{
		inner: inner,
		hits:  cache.New(expiration, expiration*2),
	}
}

// QuickLookup serves from cache when possible, else delegates to the
// wrapped oracle and caches the result (including negative results,
// since a quick-lookup hash database is static for the case's life).
func (c *Cached) QuickLookup(ctx context.Context, hashHex string) (bool, error) {
	if v, found := c.hits.Get(hashHex); found {
		return v.(bool), nil
	}
	hit, err := c.inner.QuickLookup(ctx, hashHex)
	if err != nil {
		return false, err
	}
	c.hits.SetDefault(hashHex, hit)
	return hit, nil
}

// Close flushes the in-process cache and closes the wrapped oracle.
func (c *Cached) Close() error {
	c.hits.Flush()
	return c.inner.Close()
}
