package localcache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOrderedCacheEvictsOldestAtCapacity(t *testing.T) {
	c := NewOrderedCache[string, int](2)
	c.Add("a", 1)
	c.Add("b", 2)
	c.Add("c", 3) // evicts "a"

	_, ok := c.Get("a")
	require.False(t, ok)
	v, ok := c.Get("b")
	require.True(t, ok)
	require.Equal(t, 2, v)
	v, ok = c.Get("c")
	require.True(t, ok)
	require.Equal(t, 3, v)
}

func TestOrderedCacheSkipsAlreadyEvictedQueueEntry(t *testing.T) {
	c := NewOrderedCache[string, int](2)
	c.Add("a", 1)
	c.Add("b", 2)
	c.Remove("a") // leaves a stale queue entry for "a"
	c.Add("c", 3) // capacity not exceeded by count, but would be if "a" counted

	_, ok := c.Get("a")
	require.False(t, ok)
	_, ok = c.Get("b")
	require.True(t, ok)
	_, ok = c.Get("c")
	require.True(t, ok)
}

func TestOrderedCacheUpdateDoesNotReorder(t *testing.T) {
	c := NewOrderedCache[string, int](2)
	c.Add("a", 1)
	c.Add("b", 2)
	c.Add("a", 100) // update, not a new insertion
	c.Add("c", 3)   // should still evict "a" (oldest by insertion), not "b"

	_, ok := c.Get("a")
	require.False(t, ok)
	_, ok = c.Get("b")
	require.True(t, ok)
}

func TestFreqCacheBumpsCounterOnIdenticalAdd(t *testing.T) {
	c := NewFreqCache[string, int](10)
	c.Add("a", 1)
	c.Add("a", 1)
	c.Add("a", 1)

	require.Equal(t, 2, c.data["a"].counter)
}

func TestFreqCacheResetsCounterOnValueChange(t *testing.T) {
	c := NewFreqCache[string, int](10)
	c.Add("a", 1)
	c.Add("a", 1)
	c.Add("a", 2) // value changed: counter resets

	require.Equal(t, 0, c.data["a"].counter)
	require.Equal(t, 2, c.data["a"].value)
}

func TestFreqCachePurgeKeepsTopCByFrequency(t *testing.T) {
	c := NewFreqCache[string, int](2) // purges at 4, keeps top 2

	c.Add("hot", 1)
	for i := 0; i < 5; i++ {
		c.Add("hot", 1)
	}
	c.Add("warm", 2)
	c.Add("warm", 2)
	c.Add("cold1", 3)
	c.Add("cold2", 4) // triggers purge at size 4

	require.LessOrEqual(t, c.Len(), 2)
	_, hotPresent := c.data["hot"]
	require.True(t, hotPresent)
}

func TestLocalCacheL1HitRefreshesL2(t *testing.T) {
	lc := NewLocalCache[string, int]("test-refresh", 4, 4)
	defer lc.Close()

	lc.Add("a", 1)
	_, _ = lc.Get("a") // L1 hit, should also bump L2

	v, ok := lc.l2.Get("a")
	require.True(t, ok)
	require.Equal(t, 1, v)
}

func TestLocalCacheL2HitPromotesToL1(t *testing.T) {
	lc := NewLocalCache[string, int]("test-promote", 1, 4)
	defer lc.Close()

	lc.Add("a", 1)
	lc.Add("b", 2) // evicts "a" from L1 (capacity 1), but L2 still has it

	_, l1ok := lc.l1.Get("a")
	require.False(t, l1ok)

	v, ok := lc.Get("a") // should hit L2 and promote back into L1
	require.True(t, ok)
	require.Equal(t, 1, v)

	_, l1ok = lc.l1.Get("a")
	require.True(t, l1ok)
}

func TestInvalidateAllClearsRegisteredCaches(t *testing.T) {
	lc := NewLocalCache[string, int]("test-invalidate-all", 4, 4)
	defer lc.Close()

	lc.Add("a", 1)
	InvalidateAll()

	_, ok := lc.Get("a")
	require.False(t, ok)
}
