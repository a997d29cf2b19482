// Package cache provides TTL-based caching for API server discovery
// data. The domain layer (internal/core) only defines the
// DiscoveryClient interface.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"k8s.io/apimachinery/pkg/version"

	"github.com/otterscale/resource-adapter/internal/core"
)

// DefaultTTL is how long a server version is trusted before it is
// fetched again. Servers are upgraded in place, so the version of a
// long-running adapter's peer can change.
const DefaultTTL = 10 * time.Minute

// singleflightFetchTimeout is the maximum time a cache-miss fetch is
// allowed to run. It uses context.WithoutCancel so that a single
// caller's cancellation does not fail all singleflight waiters.
const singleflightFetchTimeout = 30 * time.Second

const versionKey = "server"

// VersionCache wraps a core.DiscoveryClient and caches the server
// version for a TTL. Concurrent misses are deduplicated, so every
// watch loop reconnecting after an API server restart costs a single
// /version call.
type VersionCache struct {
	discovery core.DiscoveryClient
	ttl       time.Duration
	now       func() time.Time

	mu      sync.RWMutex
	entry   *version.Info
	expires time.Time
	flights singleflight.Group
}

var _ core.DiscoveryClient = (*VersionCache)(nil)
var _ core.CacheEvictor = (*VersionCache)(nil)

// NewVersionCache returns a VersionCache over discovery. A non-positive
// ttl selects DefaultTTL.
func NewVersionCache(discovery core.DiscoveryClient, ttl time.Duration) *VersionCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &VersionCache{
		discovery: discovery,
		ttl:       ttl,
		now:       time.Now,
	}
}

// ServerVersion returns the cached server version, fetching it when
// absent or expired.
func (c *VersionCache) ServerVersion(ctx context.Context) (*version.Info, error) {
	c.mu.RLock()
	info, expires := c.entry, c.expires
	c.mu.RUnlock()

	if info != nil && c.now().Before(expires) {
		return info, nil
	}

	v, err, _ := c.flights.Do(versionKey, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), singleflightFetchTimeout)
		defer cancel()

		info, err := c.discovery.ServerVersion(fetchCtx)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.entry = info
		c.expires = c.now().Add(c.ttl)
		c.mu.Unlock()

		return info, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*version.Info), nil
}

// Invalidate drops the cached version.
func (c *VersionCache) Invalidate() {
	c.mu.Lock()
	c.entry = nil
	c.mu.Unlock()
}

// StartEvictionLoop periodically drops an expired entry so a stale
// version is never served after the API server went away. It blocks
// until ctx is cancelled.
func (c *VersionCache) StartEvictionLoop(ctx context.Context, interval time.Duration) {
	log := slog.Default().With("component", "version-cache-evictor")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			evicted := c.entry != nil && c.now().After(c.expires)
			if evicted {
				c.entry = nil
			}
			c.mu.Unlock()

			if evicted {
				log.Debug("evicted expired server version")
			}
		}
	}
}
