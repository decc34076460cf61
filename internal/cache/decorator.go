package cache

import (
	"context"
	"errors"

	"powerauth-server/internal/domain"
	"powerauth-server/internal/store"
)

// CachedApplicationVersions decorates a store.ApplicationVersionRepository
// with the read-mostly TTL cache of §5 "Shared state": applicationKey ->
// ApplicationVersion is looked up on every prepareActivation,
// createActivationV2 and verifySignature call, and the backing table
// changes only when an application version is created or deactivated.
type CachedApplicationVersions struct {
	next  store.ApplicationVersionRepository
	cache *Cache
}

// NewCachedApplicationVersions wraps next with cache. A nil cache disables
// caching and every call passes straight through, so callers can wire this
// unconditionally and only pay for Redis when one is configured.
func NewCachedApplicationVersions(next store.ApplicationVersionRepository, cache *Cache) *CachedApplicationVersions {
	return &CachedApplicationVersions{next: next, cache: cache}
}

func (c *CachedApplicationVersions) GetByApplicationKey(ctx context.Context, applicationKey string) (*domain.ApplicationVersion, error) {
	if c.cache == nil {
		return c.next.GetByApplicationKey(ctx, applicationKey)
	}

	key := ApplicationVersionKey(applicationKey)
	var cached domain.ApplicationVersion
	if err := c.cache.Get(ctx, key, &cached); err == nil {
		return &cached, nil
	} else if !errors.Is(err, ErrMiss) {
		return c.next.GetByApplicationKey(ctx, applicationKey)
	}

	version, err := c.next.GetByApplicationKey(ctx, applicationKey)
	if err != nil {
		return nil, err
	}
	_ = c.cache.Set(ctx, key, version, 0)
	return version, nil
}
