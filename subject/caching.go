package subject

import (
	"context"
	"time"

	"github.com/wot-id/identity/syntax"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Caches successful lookups of an inner Oracle. Misses and failures are never cached, so newly registered subjects show up immediately.
type CachingOracle struct {
	Inner Oracle
	cache *expirable.LRU[string, syntax.DID]
}

var _ Oracle = (*CachingOracle)(nil)
var _ Profiler = (*CachingOracle)(nil)

func NewCachingOracle(inner Oracle, size int, ttl time.Duration) *CachingOracle {
	return &CachingOracle{
		Inner: inner,
		cache: expirable.NewLRU[string, syntax.DID](size, nil, ttl),
	}
}

func (o *CachingOracle) Resolve(ctx context.Context, hint string) (syntax.DID, error) {
	if did, ok := o.cache.Get(hint); ok {
		subjectCacheHits.Inc()
		return did, nil
	}
	subjectCacheMisses.Inc()

	did, err := o.Inner.Resolve(ctx, hint)
	if err != nil {
		return "", err
	}
	o.cache.Add(hint, did)
	return did, nil
}

// Passes through to the inner oracle, if it has the capability. Profiles are not cached.
func (o *CachingOracle) Profile(ctx context.Context, did syntax.DID) (*Profile, error) {
	p, ok := o.Inner.(Profiler)
	if !ok {
		return nil, ErrNotFound
	}
	return p.Profile(ctx, did)
}

// Drops the cached mapping for a hint.
func (o *CachingOracle) Purge(hint string) {
	o.cache.Remove(hint)
}
