package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/goliatone/go-relay/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const statusCountsCacheKeyPrefix = "go-relay::status_counts::v1"

// CachedStatusCounter serves dashboard counts from a cache. Entries expire by
// the cache TTL; Invalidate drops one scope early.
type CachedStatusCounter struct {
	base  core.StatusCounter
	cache repositorycache.CacheService
}

func NewCachedStatusCounter(
	base core.StatusCounter,
	cacheService repositorycache.CacheService,
) (*CachedStatusCounter, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base status counter is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: status counter cache service is required")
	}
	return &CachedStatusCounter{base: base, cache: cacheService}, nil
}

// StatusCountsCacheKey renders go-relay::status_counts::v1::<subscription_id>::<include_archived>
// with the subscription segment URL-path escaped; an empty id means all
// subscriptions.
func StatusCountsCacheKey(filter core.StatusCountFilter) string {
	subscriptionID := strings.TrimSpace(filter.SubscriptionID)
	if subscriptionID == "" {
		subscriptionID = "*"
	}
	return strings.Join([]string{
		statusCountsCacheKeyPrefix,
		url.PathEscape(subscriptionID),
		strconv.FormatBool(filter.IncludeArchived),
	}, "::")
}

func (c *CachedStatusCounter) CountByStatus(ctx context.Context, filter core.StatusCountFilter) (core.StatusCounts, error) {
	if c == nil || c.base == nil || c.cache == nil {
		return core.StatusCounts{}, fmt.Errorf("sqlstore: cached status counter is not configured")
	}
	return repositorycache.GetOrFetch(ctx, c.cache, StatusCountsCacheKey(filter), func(ctx context.Context) (core.StatusCounts, error) {
		return c.base.CountByStatus(ctx, filter)
	})
}

func (c *CachedStatusCounter) Invalidate(ctx context.Context, filter core.StatusCountFilter) error {
	if c == nil || c.cache == nil {
		return fmt.Errorf("sqlstore: cached status counter is not configured")
	}
	return c.cache.Delete(ctx, StatusCountsCacheKey(filter))
}

var _ core.StatusCounter = (*CachedStatusCounter)(nil)
