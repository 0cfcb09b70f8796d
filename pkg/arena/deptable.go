package arena

// The dependency-edge table is a second, independent open-addressed hash
// set living in the same mapping as the main slot table, keyed by the pair
// (from, to) rather than a single digest. It is populated and read the
// same way as the value table but has no associated payload: an edge
// either exists or it doesn't.

func (a *Arena) depBucket(idx uint64) uint64 {
	return atomicLoadUint64At(a.data, a.hdr.DepBucketsOffset+idx*8)
}

func (a *Arena) setDepBucket(idx, slotPlusOne uint64) {
	atomicStoreUint64At(a.data, a.hdr.DepBucketsOffset+idx*8, slotPlusOne)
}

func (a *Arena) depSlotBytes(idx uint64) []byte {
	off := a.hdr.DepSlotsOffset + idx*depSlotSize
	return a.data[off : off+depSlotSize]
}

func depHash(from, to Digest) uint64 {
	buf := make([]byte, 0, digestSize*2)
	buf = append(buf, from[:]...)
	buf = append(buf, to[:]...)
	return fnv1a64(buf)
}

func (a *Arena) findDepSlot(from, to Digest) (uint64, bool) {
	h := depHash(from, to)
	mask := a.hdr.DepBucketCount - 1

	for probe := uint64(0); probe < a.hdr.DepBucketCount; probe++ {
		bucket := (h + probe) & mask
		v := a.depBucket(bucket)
		if v == 0 {
			return 0, false
		}
		idx := v - 1
		s := decodeDepSlot(a.depSlotBytes(idx))
		if s.live && s.from == from && s.to == to {
			return idx, true
		}
	}
	return 0, false
}

func (a *Arena) findFreeDepSlot() (uint64, bool) {
	for i := uint64(0); i < a.hdr.DepCapacity; i++ {
		if !decodeDepSlot(a.depSlotBytes(i)).live {
			return i, true
		}
	}
	return 0, false
}

func (a *Arena) insertDepBucket(from, to Digest, idx uint64) error {
	h := depHash(from, to)
	mask := a.hdr.DepBucketCount - 1

	for probe := uint64(0); probe < a.hdr.DepBucketCount; probe++ {
		bucket := (h + probe) & mask
		if a.depBucket(bucket) == 0 {
			a.setDepBucket(bucket, idx+1)
			return nil
		}
	}
	return ErrDepTableFull
}

// HasEdge reports whether the dependency edge from -> to is recorded.
func (a *Arena) HasEdge(from, to Digest) (bool, error) {
	if err := a.checkOpen(); err != nil {
		return false, err
	}
	a.registry.mu.RLock()
	defer a.registry.mu.RUnlock()

	_, ok := a.findDepSlot(from, to)
	return ok, nil
}

// AddEdge records a dependency edge. Idempotent: adding an existing edge
// is a no-op.
func (a *Arena) AddEdge(from, to Digest) error {
	if err := a.checkOpen(); err != nil {
		return err
	}
	if !a.allowHashtableWrites {
		return ErrWritesDisabled
	}

	a.registry.mu.Lock()
	defer a.registry.mu.Unlock()

	if _, ok := a.findDepSlot(from, to); ok {
		return nil
	}

	idx, ok := a.findFreeDepSlot()
	if !ok {
		return ErrDepTableFull
	}

	a.beginWrite()
	copy(a.depSlotBytes(idx), encodeDepSlot(from, to, true))
	if err := a.insertDepBucket(from, to, idx); err != nil {
		a.endWrite()
		return err
	}
	a.hdr.DepLiveSlots++
	atomicStoreUint64At(a.data, offDepLiveSlots, a.hdr.DepLiveSlots)
	a.endWrite()

	return nil
}

// Edges calls fn once for every recorded dependency edge, in slot order.
// Used by internal/deptable to persist the table across process restarts,
// since the arena itself does not outlive the process.
func (a *Arena) Edges(fn func(from, to Digest)) {
	for i := uint64(0); i < a.hdr.DepCapacity; i++ {
		s := decodeDepSlot(a.depSlotBytes(i))
		if s.live {
			fn(s.from, s.to)
		}
	}
}
