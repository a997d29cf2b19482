// Package providers aggregates the infrastructure-layer
// implementations (kubernetes, sqlite, cache) into a single Wire
// provider set.
package providers

import (
	"github.com/google/wire"

	"github.com/otterscale/resource-adapter/internal/core"
	"github.com/otterscale/resource-adapter/internal/providers/cache"
	"github.com/otterscale/resource-adapter/internal/providers/kubernetes"
	"github.com/otterscale/resource-adapter/internal/providers/sqlite"
)

// ProviderSet is the Wire provider set for all external adapters.
var ProviderSet = wire.NewSet(
	kubernetes.ProviderSet,
	sqlite.ProviderSet,
	ProvideVersionCache,
	wire.Bind(new(core.CacheEvictor), new(*cache.VersionCache)),
	ProvideWatchSource,
)

// ProvideVersionCache puts the TTL cache in front of the discovery
// client.
func ProvideVersionCache(discovery core.DiscoveryClient) *cache.VersionCache {
	return cache.NewVersionCache(discovery, cache.DefaultTTL)
}

// ProvideWatchSource gates streaming lists on the cached server
// version.
func ProvideWatchSource(k *kubernetes.Kubernetes, versions *cache.VersionCache) core.WatchSource {
	return kubernetes.NewWatchSource(k, versions)
}
