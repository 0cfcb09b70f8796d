// Package arena implements the process-wide shared-memory heap: one
// mmap'd file holding a content-addressed hash table, a compressed-blob
// heap, and a dependency-edge table, sized once before the owning process
// forks workers.
//
// Workers attach to the same file and read/write the region without
// further syscalls. Coherence across attached processes is maintained with
// a seqlock: an even/odd generation counter in the header, touched with
// atomic, sequentially-consistent loads and stores, so a reader can detect
// (and retry past) an in-flight write without ever blocking on it. Each
// slot's meta word only records whether the slot is live; it is written
// with the rest of the slot inside the generation bump, not atomically on
// its own.
//
//	h, err := arena.Init(arena.Options{
//		Candidates:   []string{"/dev/shm", os.TempDir()},
//		MinFreeBytes: 64 << 20,
//		SlotCapacity: 1 << 20,
//		DepCapacity:  1 << 18,
//		HeapBytes:    256 << 20,
//	})
//	if err != nil { ... }
//
//	a, err := arena.Connect(*h)
//	...
//	defer a.Close()
//	_, err = a.Add(digest, payload)
//	v, err := a.Get(digest)
//
// A process that only ever observes a consistent, already-sealed arena
// (e.g. a worker) should use [Connect]; only the master calls [Init].
package arena
