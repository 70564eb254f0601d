// Package cache holds the read caches used by the checkout core: a tagged
// response cache invalidated after every mutation, and the region cache.
package cache

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// Namespace is a stable resource family used to build cache tags.
type Namespace string

const (
	Carts       Namespace = "carts"
	Orders      Namespace = "orders"
	Regions     Namespace = "regions"
	Fulfillment Namespace = "fulfillment"
	Payment     Namespace = "payment"
)

// Tag builds the invalidation key "<namespace>-<cacheID>".
// Returns "" when the session has no cache identifier; empty tags are ignored
// by the Coordinator.
func Tag(ns Namespace, cacheID string) string {
	if cacheID == "" {
		return ""
	}
	return string(ns) + "-" + cacheID
}

type entry struct {
	value any
	tags  []string
}

// Coordinator is a bounded TTL cache whose entries are grouped under tags.
// Invalidate drops every entry carrying any of the given tags before it
// returns, so the next read after a mutation always reaches the backend.
//
// Every invalidation also advances the generation of its tags. Fetch
// records the generations before loading and discards a result loaded
// across an invalidation of any of its tags.
//
// Safe for concurrent use.
type Coordinator struct {
	entries *expirable.LRU[string, entry]

	mu    sync.Mutex
	keys  map[string]map[string]struct{} // tag -> keys
	gens  *simplelru.LRU[string, uint64] // tag -> generation of its last invalidation
	seq   uint64
	floor uint64 // highest generation dropped from gens

	// The LRU reports evictions while holding its own lock, so they are
	// queued here and applied to keys under mu.
	evictMu sync.Mutex
	evicted []evictedEntry
}

type evictedEntry struct {
	key  string
	tags []string
}

// defaultGenerations bounds the generation table when size is unbounded.
const defaultGenerations = 4096

// NewCoordinator creates a coordinator holding at most size entries, each
// living at most ttl.
func NewCoordinator(size int, ttl time.Duration) *Coordinator {
	c := &Coordinator{keys: make(map[string]map[string]struct{})}
	c.entries = expirable.NewLRU[string, entry](size, c.onEvict, ttl)

	genSize := size
	if genSize <= 0 {
		genSize = defaultGenerations
	}
	// NewLRU only fails for a non-positive size.
	c.gens, _ = simplelru.NewLRU[string, uint64](genSize, func(_ string, gen uint64) {
		// Runs inside gens.Add, with mu held.
		if gen > c.floor {
			c.floor = gen
		}
	})
	return c
}

// onEvict queues an evicted or expired key for removal from the tag index.
func (c *Coordinator) onEvict(key string, e entry) {
	c.evictMu.Lock()
	c.evicted = append(c.evicted, evictedEntry{key: key, tags: e.tags})
	c.evictMu.Unlock()
}

// applyEvictionsLocked drops queued evictions from the tag index.
// c.mu must be held.
func (c *Coordinator) applyEvictionsLocked() {
	c.evictMu.Lock()
	pending := c.evicted
	c.evicted = nil
	c.evictMu.Unlock()

	for _, ev := range pending {
		for _, tag := range ev.tags {
			if set, ok := c.keys[tag]; ok {
				delete(set, ev.key)
				if len(set) == 0 {
					delete(c.keys, tag)
				}
			}
		}
	}
}

// generationLocked returns the generation of tag. c.mu must be held.
// A tag dropped from the table reads as the floor, which is at least the
// generation it had.
func (c *Coordinator) generationLocked(tag string) uint64 {
	if gen, ok := c.gens.Peek(tag); ok {
		return gen
	}
	return c.floor
}

func (c *Coordinator) snapshot(tags []string) []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	gens := make([]uint64, len(tags))
	for i, tag := range tags {
		gens[i] = c.generationLocked(tag)
	}
	return gens
}

// Get returns the cached value for key.
func (c *Coordinator) Get(key string) (any, bool) {
	e, ok := c.entries.Get(key)
	if !ok {
		return nil, false
	}
	return e.value, true
}

// Put stores value under key and registers it with every non-empty tag.
// A value with no usable tag is not stored, since nothing could invalidate it.
func (c *Coordinator) Put(key string, value any, tags ...string) {
	tags = nonEmpty(tags)
	if len(tags) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.putLocked(key, value, tags)
}

// putIfCurrent stores value only if no tag was invalidated since gens was
// taken.
func (c *Coordinator) putIfCurrent(key string, value any, tags []string, gens []uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, tag := range tags {
		if c.generationLocked(tag) != gens[i] {
			return false
		}
	}
	c.putLocked(key, value, tags)
	return true
}

func (c *Coordinator) putLocked(key string, value any, tags []string) {
	c.entries.Add(key, entry{value: value, tags: tags})
	// Add may have evicted other entries, or an older copy of key may have
	// expired just before it; both must leave the index before key joins it.
	c.applyEvictionsLocked()

	for _, tag := range tags {
		set, ok := c.keys[tag]
		if !ok {
			set = make(map[string]struct{})
			c.keys[tag] = set
		}
		set[key] = struct{}{}
	}
}

// Invalidate drops every entry registered under any of tags.
// Returns the number of entries removed.
func (c *Coordinator) Invalidate(tags ...string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.applyEvictionsLocked()
	removed := 0
	for _, tag := range nonEmpty(tags) {
		c.seq++
		c.gens.Add(tag, c.seq)

		for key := range c.keys[tag] {
			if c.entries.Remove(key) {
				removed++
			}
		}
		delete(c.keys, tag)
	}
	c.applyEvictionsLocked()
	return removed
}

// Len returns the number of live entries.
func (c *Coordinator) Len() int {
	return c.entries.Len()
}

// Fetch returns the cached value for key, or calls load and caches its result
// under tags. Errors are never cached, and neither is a result loaded while
// one of its tags was invalidated.
func Fetch[T any](c *Coordinator, key string, tags []string, load func() (T, error)) (T, error) {
	if v, ok := c.Get(key); ok {
		if typed, ok := v.(T); ok {
			return typed, nil
		}
	}

	tags = nonEmpty(tags)
	gens := c.snapshot(tags)

	v, err := load()
	if err != nil {
		return v, err
	}
	if len(tags) > 0 {
		c.putIfCurrent(key, v, tags, gens)
	}
	return v, nil
}

func nonEmpty(tags []string) []string {
	out := tags[:0:0]
	for _, t := range tags {
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
