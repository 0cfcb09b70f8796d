package arena

import (
	"bytes"
	"compress/flate"
	"fmt"
	"io"
)

// The blob heap is a bump allocator: Add appends past HeapUsed and never
// reuses space in place. HeapWasted accounts for bytes belonging to
// removed blobs; Collect walks every live slot, packs its blob down to the
// start of the heap, sets HeapUsed to the live byte total and resets
// HeapWasted to zero. This
// mirrors a classic mark-and-copy collector sized for the "batch compiler
// runs to completion, then exits" lifecycle: no compaction is needed
// between collections, only before OutOfHeap.
//
// Values are stored deflate-compressed (stdlib compress/flate) whenever
// that shrinks them; nothing in the retrieved corpus depends on a
// third-party compression library, so this is one of the few places this
// package reaches for the standard library outright — see DESIGN.md.

func compressBlob(payload []byte) (stored []byte, origSize, compSize uint32) {
	var buf bytes.Buffer

	w, _ := flate.NewWriter(&buf, flate.BestSpeed)
	_, _ = w.Write(payload)
	_ = w.Close()

	if buf.Len() < len(payload) {
		return buf.Bytes(), uint32(len(payload)), uint32(buf.Len())
	}

	// Compression didn't help; store raw with compSize == origSize as the
	// "uncompressed" marker.
	return payload, uint32(len(payload)), uint32(len(payload))
}

func decompressBlob(stored []byte, origSize, compSize uint32) ([]byte, error) {
	if compSize == origSize {
		out := make([]byte, len(stored))
		copy(out, stored)
		return out, nil
	}

	r := flate.NewReader(bytes.NewReader(stored))
	defer r.Close()

	out := make([]byte, origSize)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("%w: decompress blob: %v", ErrCorrupt, err)
	}

	return out, nil
}

// heapRegion returns the mmap'd slice covering the blob heap.
func (a *Arena) heapRegion() []byte {
	return a.data[a.hdr.HeapOffset:]
}

// heapAlloc bump-allocates n bytes from the heap, returning the offset the
// caller should write to (relative to HeapOffset), or ErrOutOfHeap.
func (a *Arena) heapAlloc(n uint32) (uint64, error) {
	used := atomicLoadUint64At(a.data, offHeapUsed)
	if used+uint64(n) > a.hdr.HeapBytes {
		return 0, ErrOutOfHeap
	}
	atomicStoreUint64At(a.data, offHeapUsed, used+uint64(n))
	return used, nil
}
