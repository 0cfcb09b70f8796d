package arena

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

const (
	readMaxRetries    = 10
	readInitialBackoff = 50 * time.Microsecond
	readMaxBackoff     = time.Millisecond
)

// Digest is a 16-byte MD5 digest, the arena's sole key type. See pkg/key
// for how callers derive one from a typed, namespaced user key.
type Digest [digestSize]byte

// AddResult reports what Add did.
type AddResult struct {
	// Inserted is false when the digest was already present (Add is
	// idempotent on an existing digest and performs no allocation).
	Inserted bool

	CompressedSize   uint32
	OriginalSize     uint32
	TotalFootprint   uint32 // slot + stored bytes
}

// Arena is a live mapping onto one AHP1 file, shared with every other
// process that has Connect-ed to the same Handle.
type Arena struct {
	mu     sync.Mutex // guards closed/writerActive for this handle only
	closed bool

	fd       int
	data     []byte
	identity fileIdentity
	registry *fileRegistryEntry
	path     string

	hdr header // decoded once at Connect time; capacities/offsets never change

	writerLock *fsLockHandle

	// allowRemoves and allowHashtableWrites gate mutation per the
	// concurrency model: removals are opt-in globally, writes are
	// opt-in per attached process.
	allowRemoves         bool
	allowHashtableWrites bool
}

type fsLockHandle struct {
	close func() error
}

// Close unmaps and releases the arena handle. Idempotent.
func (a *Arena) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true

	if a.writerLock != nil {
		_ = a.writerLock.close()
		a.writerLock = nil
	}

	releaseRegistryEntry(a.identity)

	err := unix.Munmap(a.data)
	if closeErr := unix.Close(a.fd); closeErr != nil && err == nil {
		err = closeErr
	}

	return err
}

// SetAllowRemoves toggles the global removal gate for this handle.
func (a *Arena) SetAllowRemoves(v bool) { a.allowRemoves = v }

// SetAllowHashtableWrites toggles whether this process may mutate the
// shared hash table at all (Add/Remove/Move); Get/Mem always work.
//
// Enabling it on a filesystem-backed arena acquires the cross-process
// advisory writer lock (Path+".lock"), returning ErrWriterActive if another
// process already holds it; disabling releases it. Memfd-backed arenas
// have no path to flock and rely on the fork/exec topology itself keeping
// a single writer.
func (a *Arena) SetAllowHashtableWrites(v bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if v == a.allowHashtableWrites {
		return nil
	}

	if v {
		if a.path != "" {
			lk, err := tryAcquireWriterLock(a.path)
			if err != nil {
				return err
			}
			a.writerLock = &fsLockHandle{close: lk.Close}
		}
		a.allowHashtableWrites = true
		return nil
	}

	if a.writerLock != nil {
		err := a.writerLock.close()
		a.writerLock = nil
		a.allowHashtableWrites = false
		return err
	}
	a.allowHashtableWrites = false
	return nil
}

// Generation returns the current seqlock generation counter, useful for a
// caller wanting to skip re-population work when nothing has changed.
func (a *Arena) Generation() uint64 {
	return atomicLoadUint64At(a.data, offGeneration)
}

func (a *Arena) checkOpen() error {
	if a.closed {
		return ErrClosed
	}
	return nil
}

// fnv1a64 hashes a digest for bucket placement. The header's HashAlg field
// identifies the digest algorithm (MD5), not this bucket hash.
func fnv1a64(b []byte) uint64 {
	const (
		offset uint64 = 14695981039346656037
		prime  uint64 = 1099511628211
	)
	h := offset
	for _, c := range b {
		h ^= uint64(c)
		h *= prime
	}
	return h
}

// --- bucket/slot table access ---

func (a *Arena) bucketSlot(bucketIdx uint64) uint64 {
	off := a.hdr.BucketsOffset + bucketIdx*8
	return atomicLoadUint64At(a.data, off)
}

func (a *Arena) setBucketSlot(bucketIdx, slotPlusOne uint64) {
	off := a.hdr.BucketsOffset + bucketIdx*8
	atomicStoreUint64At(a.data, off, slotPlusOne)
}

func (a *Arena) slotBytes(slotIdx uint64) []byte {
	off := a.hdr.SlotsOffset + slotIdx*slotSize
	return a.data[off : off+slotSize]
}

// findSlot probes the bucket table starting at hash(digest) and returns the
// 0-based slot index holding a live entry for digest, or ok=false.
func (a *Arena) findSlot(d Digest) (slotIdx uint64, ok bool) {
	h := fnv1a64(d[:])
	mask := a.hdr.BucketCount - 1

	for probe := uint64(0); probe < a.hdr.BucketCount; probe++ {
		bucket := (h + probe) & mask
		v := a.bucketSlot(bucket)
		if v == 0 {
			return 0, false // empty bucket: probe chain ends here
		}
		idx := v - 1
		s := decodeSlot(a.slotBytes(idx))
		if s.live && s.digest == d {
			return idx, true
		}
	}
	return 0, false
}

// findFreeSlotIndex returns the first slot index that is not live (never
// used or freed by Remove) by scanning the slot table linearly from 0. Kept
// simple (O(capacity) worst case only when the table is nearly full)
// because SPEC_FULL's arena never resizes and the caller is expected to
// keep load factor low.
func (a *Arena) findFreeSlotIndex() (uint64, bool) {
	for i := uint64(0); i < a.hdr.SlotCapacity; i++ {
		s := decodeSlot(a.slotBytes(i))
		if !s.live {
			return i, true
		}
	}
	return 0, false
}

func (a *Arena) insertBucket(d Digest, slotIdx uint64) error {
	h := fnv1a64(d[:])
	mask := a.hdr.BucketCount - 1

	for probe := uint64(0); probe < a.hdr.BucketCount; probe++ {
		bucket := (h + probe) & mask
		if a.bucketSlot(bucket) == 0 {
			a.setBucketSlot(bucket, slotIdx+1)
			return nil
		}
	}
	return ErrHashTableFull
}

func (a *Arena) removeBucket(d Digest) {
	h := fnv1a64(d[:])
	mask := a.hdr.BucketCount - 1

	for probe := uint64(0); probe < a.hdr.BucketCount; probe++ {
		bucket := (h + probe) & mask
		v := a.bucketSlot(bucket)
		if v == 0 {
			return
		}
		idx := v - 1
		s := decodeSlot(a.slotBytes(idx))
		if s.digest == d {
			a.setBucketSlot(bucket, 0)
			a.rehashChainFrom(bucket)
			return
		}
	}
}

// rehashChainFrom re-inserts every entry in the open-addressing probe chain
// following an emptied bucket, so a later lookup doesn't stop early at the
// gap we just created (standard open-addressing deletion fix-up).
func (a *Arena) rehashChainFrom(emptied uint64) {
	mask := a.hdr.BucketCount - 1
	bucket := (emptied + 1) & mask

	for {
		v := a.bucketSlot(bucket)
		if v == 0 {
			return
		}
		idx := v - 1
		s := decodeSlot(a.slotBytes(idx))

		a.setBucketSlot(bucket, 0)
		_ = a.insertBucket(s.digest, idx)

		bucket = (bucket + 1) & mask
	}
}

// --- seqlock write helpers ---

func (a *Arena) beginWrite() {
	gen := atomicLoadUint64At(a.data, offGeneration)
	atomicStoreUint64At(a.data, offGeneration, gen+1) // now odd: writer in flight
}

func (a *Arena) endWrite() {
	gen := atomicLoadUint64At(a.data, offGeneration)
	atomicStoreUint64At(a.data, offGeneration, gen+1) // now even: stable again
}

func withReadRetry[T any](fn func() (T, bool)) (T, error) {
	backoff := readInitialBackoff
	var zero T

	for attempt := 0; attempt < readMaxRetries; attempt++ {
		v, ok := fn()
		if ok {
			return v, nil
		}
		time.Sleep(backoff)
		backoff = min(backoff*2, readMaxBackoff)
	}
	return zero, ErrBusy
}

// Mem reports whether digest is currently present.
func (a *Arena) Mem(d Digest) (bool, error) {
	if err := a.checkOpen(); err != nil {
		return false, err
	}
	a.registry.mu.RLock()
	defer a.registry.mu.RUnlock()

	return withReadRetry(func() (bool, bool) {
		g1 := atomicLoadUint64At(a.data, offGeneration)
		if g1%2 == 1 {
			return false, false
		}
		_, ok := a.findSlot(d)
		g2 := atomicLoadUint64At(a.data, offGeneration)
		if g1 != g2 {
			return false, false
		}
		return ok, true
	})
}

// Get returns the decompressed payload stored under digest.
func (a *Arena) Get(d Digest) ([]byte, error) {
	if err := a.checkOpen(); err != nil {
		return nil, err
	}
	a.registry.mu.RLock()
	defer a.registry.mu.RUnlock()

	type result struct {
		payload []byte
		err     error
		present bool
	}

	res, err := withReadRetry(func() (result, bool) {
		g1 := atomicLoadUint64At(a.data, offGeneration)
		if g1%2 == 1 {
			return result{}, false
		}

		idx, ok := a.findSlot(d)
		if !ok {
			g2 := atomicLoadUint64At(a.data, offGeneration)
			if g1 != g2 {
				return result{}, false
			}
			return result{present: false}, true
		}

		s := decodeSlot(a.slotBytes(idx))
		blob := make([]byte, s.compSize)
		copy(blob, a.heapRegion()[s.blobOffset:s.blobOffset+uint64(s.compSize)])

		g2 := atomicLoadUint64At(a.data, offGeneration)
		if g1 != g2 {
			return result{}, false
		}

		payload, decErr := decompressBlob(blob, s.origSize, s.compSize)
		return result{payload: payload, err: decErr, present: true}, true
	})
	if err != nil {
		return nil, err
	}
	if !res.present {
		return nil, ErrNotPresent
	}
	return res.payload, res.err
}

// Add stores payload under digest if absent. Add is a no-op (not an error)
// when digest is already present, per the concurrency model's WriteAround
// safety argument (see SPEC_FULL.md §11).
func (a *Arena) Add(d Digest, payload []byte) (AddResult, error) {
	if err := a.checkOpen(); err != nil {
		return AddResult{}, err
	}
	if !a.allowHashtableWrites {
		return AddResult{}, ErrWritesDisabled
	}
	if len(payload) == 0 {
		return AddResult{}, ErrRevisionLengthZero
	}

	a.registry.mu.Lock()
	defer a.registry.mu.Unlock()

	if _, ok := a.findSlot(d); ok {
		return AddResult{Inserted: false}, nil
	}

	stored, origSize, compSize := compressBlob(payload)

	blobOff, err := a.heapAlloc(compSize)
	if err != nil {
		return AddResult{}, err
	}

	slotIdx, ok := a.findFreeSlotIndex()
	if !ok {
		return AddResult{}, ErrHashTableFull
	}

	a.beginWrite()
	copy(a.heapRegion()[blobOff:blobOff+uint64(compSize)], stored)
	copy(a.slotBytes(slotIdx), encodeSlot(d, true, blobOff, origSize, compSize))
	if err := a.insertBucket(d, slotIdx); err != nil {
		a.endWrite()
		return AddResult{}, err
	}
	a.hdr.LiveSlots++
	atomicStoreUint64At(a.data, offLiveSlots, a.hdr.LiveSlots)
	a.endWrite()

	return AddResult{
		Inserted:       true,
		OriginalSize:   origSize,
		CompressedSize: compSize,
		TotalFootprint: slotSize + compSize,
	}, nil
}

// Remove deletes digest, requiring AllowRemoves and that digest is present.
func (a *Arena) Remove(d Digest) (freedBytes int, err error) {
	if err := a.checkOpen(); err != nil {
		return 0, err
	}
	if !a.allowHashtableWrites {
		return 0, ErrWritesDisabled
	}
	if !a.allowRemoves {
		return 0, ErrRemovesDisabled
	}

	a.registry.mu.Lock()
	defer a.registry.mu.Unlock()

	idx, ok := a.findSlot(d)
	if !ok {
		return 0, ErrNotPresent
	}

	s := decodeSlot(a.slotBytes(idx))

	a.beginWrite()
	a.removeBucket(d)
	copy(a.slotBytes(idx), encodeSlot(Digest{}, false, 0, 0, 0))
	a.hdr.LiveSlots--
	atomicStoreUint64At(a.data, offLiveSlots, a.hdr.LiveSlots)
	wasted := atomicLoadUint64At(a.data, offHeapWasted)
	atomicStoreUint64At(a.data, offHeapWasted, wasted+uint64(s.compSize))
	a.endWrite()

	return int(s.compSize), nil
}

// Move relocates the entry at src to dst; src must be present and dst must
// be absent.
func (a *Arena) Move(src, dst Digest) error {
	if err := a.checkOpen(); err != nil {
		return err
	}
	if !a.allowHashtableWrites {
		return ErrWritesDisabled
	}

	a.registry.mu.Lock()
	defer a.registry.mu.Unlock()

	srcIdx, ok := a.findSlot(src)
	if !ok {
		return fmt.Errorf("move source: %w", ErrNotPresent)
	}
	if _, ok := a.findSlot(dst); ok {
		return fmt.Errorf("move destination: %w", ErrAlreadyPresent)
	}

	s := decodeSlot(a.slotBytes(srcIdx))

	a.beginWrite()
	a.removeBucket(src)
	copy(a.slotBytes(srcIdx), encodeSlot(dst, true, s.blobOffset, s.origSize, s.compSize))
	if err := a.insertBucket(dst, srcIdx); err != nil {
		// Roll back: restore the source digest so the arena stays consistent.
		copy(a.slotBytes(srcIdx), encodeSlot(src, true, s.blobOffset, s.origSize, s.compSize))
		_ = a.insertBucket(src, srcIdx)
		a.endWrite()
		return err
	}
	a.endWrite()

	return nil
}

// Collect performs a mark-and-copy pass over the blob heap, compacting
// away every byte range belonging to removed or moved-away entries. It may
// run whenever usedBytes/reachableBytes crosses a caller-chosen overhead
// threshold (Gentle=2.0, Aggressive=1.2, Testing=1.0 in SPEC_FULL.md §6.A).
func (a *Arena) Collect() error {
	if err := a.checkOpen(); err != nil {
		return err
	}
	if !a.allowHashtableWrites {
		return ErrWritesDisabled
	}

	a.registry.mu.Lock()
	defer a.registry.mu.Unlock()

	scratch := make([]byte, a.hdr.HeapBytes)
	var cursor uint64

	a.beginWrite()
	for i := uint64(0); i < a.hdr.SlotCapacity; i++ {
		buf := a.slotBytes(i)
		s := decodeSlot(buf)
		if !s.live {
			continue
		}

		copy(scratch[cursor:cursor+uint64(s.compSize)], a.heapRegion()[s.blobOffset:s.blobOffset+uint64(s.compSize)])
		copy(buf, encodeSlot(s.digest, true, cursor, s.origSize, s.compSize))
		cursor += uint64(s.compSize)
	}

	copy(a.heapRegion(), scratch[:cursor])
	atomicStoreUint64At(a.data, offHeapUsed, cursor)
	atomicStoreUint64At(a.data, offHeapWasted, 0)
	count := atomicLoadUint64At(a.data, offCollectCount)
	atomicStoreUint64At(a.data, offCollectCount, count+1)
	a.endWrite()

	if err := msyncRange(a.data, int(a.hdr.HeapOffset), int(cursor)); err != nil {
		return err
	}

	return nil
}

// --- diagnostics ---

func (a *Arena) HeapUsed() uint64   { return atomicLoadUint64At(a.data, offHeapUsed) }
func (a *Arena) HeapWasted() uint64 { return atomicLoadUint64At(a.data, offHeapWasted) }
func (a *Arena) HashUsedSlots() uint64 { return atomicLoadUint64At(a.data, offLiveSlots) }
func (a *Arena) HashCapacity() uint64  { return a.hdr.SlotCapacity }
func (a *Arena) DepUsedSlots() uint64  { return atomicLoadUint64At(a.data, offDepLiveSlots) }
func (a *Arena) DepCapacity() uint64   { return a.hdr.DepCapacity }
