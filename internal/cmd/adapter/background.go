package adapter

import (
	"context"
	"time"

	"github.com/otterscale/resource-adapter/internal/core"
	"github.com/otterscale/resource-adapter/internal/transport"
)

// cacheEvictionInterval is the interval at which the version cache
// evictor drops an expired server version.
const cacheEvictionInterval = 5 * time.Minute

// BackgroundListeners are maintenance tasks that share the adapter's
// managed lifecycle.
type BackgroundListeners []transport.Listener

// ProvideBackgroundListeners constructs the background transport
// listeners. Centralising construction here keeps the Adapter struct
// free of concrete infrastructure types.
func ProvideBackgroundListeners(evictor core.CacheEvictor) BackgroundListeners {
	return BackgroundListeners{
		&cacheEvictorListener{cache: evictor, interval: cacheEvictionInterval},
	}
}

// cacheEvictorListener adapts CacheEvictor.StartEvictionLoop to the
// transport.Listener interface.
type cacheEvictorListener struct {
	cache    core.CacheEvictor
	interval time.Duration
}

func (l *cacheEvictorListener) Start(ctx context.Context) error {
	l.cache.StartEvictionLoop(ctx, l.interval)
	return nil
}

func (l *cacheEvictorListener) Stop(_ context.Context) error {
	return nil // evictor stops when its context is cancelled
}
