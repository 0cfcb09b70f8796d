package localcache

import "sort"

type freqEntry[V comparable] struct {
	counter int
	value   V
}

// FreqCache is an LFU cache: a table keyed by user key to (hit counter,
// value), allowed to grow to 2*c before it purges itself back down to the
// c most frequently hit survivors.
type FreqCache[K comparable, V comparable] struct {
	c    int
	data map[K]freqEntry[V]
}

// NewFreqCache constructs a FreqCache that purges at 2*c entries, keeping
// the top c by descending hit count.
func NewFreqCache[K comparable, V comparable](c int) *FreqCache[K, V] {
	return &FreqCache[K, V]{c: c, data: make(map[K]freqEntry[V])}
}

// Get reads k, bumping its hit counter.
func (c *FreqCache[K, V]) Get(k K) (V, bool) {
	e, ok := c.data[k]
	if !ok {
		var zero V
		return zero, false
	}
	e.counter++
	c.data[k] = e
	return e.value, true
}

// Add inserts or updates k. If k is already present and the stored value
// is identical (==) to v, only the counter is bumped; otherwise the
// counter resets to 0 and the value is replaced, since a changed value is
// treated as a fresh entry for frequency purposes. Reaching 2*c entries
// triggers an immediate purge down to c.
func (c *FreqCache[K, V]) Add(k K, v V) {
	if e, ok := c.data[k]; ok && e.value == v {
		e.counter++
		c.data[k] = e
	} else {
		c.data[k] = freqEntry[V]{counter: 0, value: v}
	}

	if len(c.data) >= 2*c.c {
		c.purge()
	}
}

// Remove deletes k.
func (c *FreqCache[K, V]) Remove(k K) {
	delete(c.data, k)
}

// Clear empties the cache.
func (c *FreqCache[K, V]) Clear() {
	c.data = make(map[K]freqEntry[V])
}

// Len reports the number of live entries.
func (c *FreqCache[K, V]) Len() int { return len(c.data) }

// purge does a single pass collecting (key, freq, value), sorts by
// descending freq, and keeps only the top c, with their counters reset to
// 0 — a fresh round of frequency accounting for the survivors.
func (c *FreqCache[K, V]) purge() {
	type item struct {
		key  K
		freq int
	}

	items := make([]item, 0, len(c.data))
	for k, e := range c.data {
		items = append(items, item{key: k, freq: e.counter})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].freq > items[j].freq })

	if len(items) > c.c {
		items = items[:c.c]
	}

	next := make(map[K]freqEntry[V], c.c)
	for _, it := range items {
		e := c.data[it.key]
		e.counter = 0
		next[it.key] = e
	}
	c.data = next
}
