package localcache

import "github.com/heaplattice/heapstore/internal/telemetry"

// LocalCache composes an OrderedCache (L1) in front of a FreqCache (L2).
// Get checks L1 first; an L2 hit is promoted into L1; an L1 hit also
// refreshes the key's L2 frequency, so a key that keeps getting hit
// through L1 doesn't silently fall out of L2's frequency ranking. Add and
// Remove always touch both tiers. A LocalCache registers both an
// invalidation callback (for InvalidateAll) and a telemetry.Sampler (for
// GetTelemetry) under name.
type LocalCache[K comparable, V comparable] struct {
	name    string
	l1      *OrderedCache[K, V]
	l2      *FreqCache[K, V]
	sampler *telemetry.Sampler
}

// NewLocalCache constructs a LocalCache, registers its invalidation
// callback under name, and registers a telemetry.Sampler under the same
// name. Close must be called to unregister both.
func NewLocalCache[K comparable, V comparable](name string, l1Capacity, l2C int) *LocalCache[K, V] {
	lc := &LocalCache[K, V]{
		name:    name,
		l1:      NewOrderedCache[K, V](l1Capacity),
		l2:      NewFreqCache[K, V](l2C),
		sampler: telemetry.Register(name),
	}
	registerInvalidation(name, lc.invalidate)
	return lc
}

// Close unregisters the cache's invalidation callback and telemetry sampler.
func (c *LocalCache[K, V]) Close() {
	unregisterInvalidation(c.name)
	telemetry.Unregister(c.name)
}

// Get checks L1, then L2, recording a hit or miss.
func (c *LocalCache[K, V]) Get(k K) (V, bool) {
	if v, ok := c.l1.Get(k); ok {
		c.l2.Add(k, v)
		c.sampler.Record("localcache.hit.l1", 1)
		return v, true
	}
	if v, ok := c.l2.Get(k); ok {
		c.l1.Add(k, v)
		c.sampler.Record("localcache.hit.l2", 1)
		return v, true
	}
	c.sampler.Record("localcache.miss", 1)
	var zero V
	return zero, false
}

// Add writes k to both tiers.
func (c *LocalCache[K, V]) Add(k K, v V) {
	c.l1.Add(k, v)
	c.l2.Add(k, v)
	c.sampler.Record("localcache.add", 1)
}

// Remove clears k from both tiers.
func (c *LocalCache[K, V]) Remove(k K) {
	c.l1.Remove(k)
	c.l2.Remove(k)
	c.sampler.Record("localcache.remove", 1)
}

func (c *LocalCache[K, V]) invalidate() {
	c.l1.Clear()
	c.l2.Clear()
	c.sampler.Record("localcache.invalidate", 1)
}

// Invalidate clears this cache instance only, without touching any other
// registered cache — the instance-scoped counterpart to the package-level
// InvalidateAll.
func (c *LocalCache[K, V]) Invalidate() {
	c.invalidate()
}
