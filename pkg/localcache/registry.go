package localcache

import "sync"

// invalidationRegistry is a process-global registry of live LocalCache
// invalidation callbacks, mirroring pkg/arena's fileRegistry sync.Map
// singleton but keyed by cache instance name instead of file identity.
var invalidationRegistry sync.Map // name string -> func()

func registerInvalidation(name string, fn func()) {
	invalidationRegistry.Store(name, fn)
}

func unregisterInvalidation(name string) {
	invalidationRegistry.Delete(name)
}

// InvalidateAll clears every currently registered LocalCache.
func InvalidateAll() {
	invalidationRegistry.Range(func(_, v any) bool {
		v.(func())()
		return true
	})
}
