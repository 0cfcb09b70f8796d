package arena

import (
	"fmt"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/heaplattice/heapstore/pkg/fs"
)

// Locking architecture, a 4-layer model:
//
//  1. Arena.mu — per-handle closed/writer-active state within one process.
//
//  2. registryEntry.mu — per-file in-process guard shared by every Arena
//     handle backed by the same file in this process. Readers hold RLock
//     while touching the mmap; the writer session holds Lock.
//
//  3. interprocess writer lock — advisory flock on Path+".lock", excludes
//     writers in other processes. Per the concurrency model only one
//     process writes the hash table at a time.
//
//  4. seqlock generation — header counter letting readers detect and retry
//     past an overlapping write without ever blocking on it.
//
// Lock ordering: Arena.mu -> registryEntry.mu -> interprocess writer lock.

var fileRegistry sync.Map // map[fileIdentity]*fileRegistryEntry

var pkgLocker = fs.NewLocker(fs.NewReal())

type fileIdentity struct {
	dev uint64
	ino uint64
}

type fileRegistryEntry struct {
	mu           sync.RWMutex
	activeWriter *Arena
	openCount    atomic.Int32
}

func tryAcquireWriterLock(path string) (*fs.Lock, error) {
	lk, err := pkgLocker.TryLock(path + ".lock")
	if err != nil {
		if err == fs.ErrWouldBlock {
			return nil, ErrWriterActive
		}
		return nil, fmt.Errorf("acquire writer lock: %w", err)
	}
	return lk, nil
}

func releaseWriterLock(lk *fs.Lock) {
	if lk == nil {
		return
	}
	_ = lk.Close()
}

func getFileIdentity(fd int) (fileIdentity, error) {
	var stat syscall.Stat_t
	if err := syscall.Fstat(fd, &stat); err != nil {
		return fileIdentity{}, fmt.Errorf("stat: %w", err)
	}
	return fileIdentity{dev: uint64(stat.Dev), ino: stat.Ino}, nil
}

func getOrCreateRegistryEntry(id fileIdentity) *fileRegistryEntry {
	for {
		if val, loaded := fileRegistry.Load(id); loaded {
			entry := val.(*fileRegistryEntry)
			for {
				old := entry.openCount.Load()
				if old <= 0 {
					break
				}
				if entry.openCount.CompareAndSwap(old, old+1) {
					return entry
				}
			}
		}

		entry := &fileRegistryEntry{}
		entry.openCount.Store(1)

		if _, loaded := fileRegistry.LoadOrStore(id, entry); !loaded {
			return entry
		}
	}
}

func releaseRegistryEntry(id fileIdentity) {
	val, ok := fileRegistry.Load(id)
	if !ok {
		return
	}
	entry := val.(*fileRegistryEntry)
	if entry.openCount.Add(-1) <= 0 {
		fileRegistry.CompareAndDelete(id, entry)
	}
}
