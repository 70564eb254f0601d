package cache

import (
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"storefront-checkout/internal/model"
)

// RegionCache maps locale codes to regions. It is shared by every request in
// the process. Concurrent misses may recompute and store the same value for a
// locale; writers always agree, so no single-flight is attempted.
type RegionCache struct {
	lru *expirable.LRU[string, *model.Region]
}

// NewRegionCache creates a region cache bounded to size locales, each entry
// expiring after ttl. A zero ttl keeps entries until evicted by size.
func NewRegionCache(size int, ttl time.Duration) *RegionCache {
	return &RegionCache{lru: expirable.NewLRU[string, *model.Region](size, nil, ttl)}
}

// Get returns the region cached for locale.
func (r *RegionCache) Get(locale string) (*model.Region, bool) {
	return r.lru.Get(normalizeLocale(locale))
}

// Set caches region for locale.
func (r *RegionCache) Set(locale string, region *model.Region) {
	r.lru.Add(normalizeLocale(locale), region)
}

// Purge drops every cached locale.
func (r *RegionCache) Purge() {
	r.lru.Purge()
}

// Len returns the number of cached locales.
func (r *RegionCache) Len() int {
	return r.lru.Len()
}

func normalizeLocale(locale string) string {
	return strings.ToLower(strings.TrimSpace(locale))
}
