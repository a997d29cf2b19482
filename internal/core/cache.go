package core

import (
	"context"
	"time"
)

// CacheEvictor represents a cache that supports periodic eviction of
// expired entries. Implementations live in the infrastructure layer
// (e.g. providers/cache).
type CacheEvictor interface {
	StartEvictionLoop(ctx context.Context, interval time.Duration)
}
