package deptable

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/natefinch/atomic"

	"github.com/heaplattice/heapstore/pkg/arena"
)

const (
	blobMagic        = "DEPT"
	blobVersion      = 1
	blobHeaderSize   = 16 // magic(4) + version(2) + reserved(2) + revision(8)
	blobEdgeSize     = 2 * digestLen
	digestLen        = len(arena.Digest{})
)

// SaveBlob writes every edge currently in the arena's dependency table to
// path as a flat binary snapshot, replacing any existing file atomically
// (temp file + rename, the same pattern internal/ticket's BinaryCache uses
// via natefinch/atomic). revision is stamped into the header for the
// caller's own bookkeeping; it is opaque to this package. Returns
// ErrTableIsLoaded if reset is false and t was populated by LoadBlob or
// LoadSQLite — a blob snapshot has no incremental form, so the caller must
// pass reset=true to explicitly discard that provenance and overwrite.
func (t *Table) SaveBlob(path string, revision int64, reset bool) (int, error) {
	if t.loaded && !reset {
		return 0, ErrTableIsLoaded
	}

	var edges [][2]arena.Digest
	t.a.Edges(func(from, to arena.Digest) {
		edges = append(edges, [2]arena.Digest{from, to})
	})

	buf := make([]byte, blobHeaderSize+len(edges)*blobEdgeSize)
	copy(buf[0:4], blobMagic)
	binary.LittleEndian.PutUint16(buf[4:6], blobVersion)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(revision))

	for i, e := range edges {
		off := blobHeaderSize + i*blobEdgeSize
		copy(buf[off:off+digestLen], e[0][:])
		copy(buf[off+digestLen:off+2*digestLen], e[1][:])
	}

	if err := atomic.WriteFile(path, bytes.NewReader(buf)); err != nil {
		return 0, fmt.Errorf("deptable: write blob: %w", err)
	}

	if reset {
		t.loaded = false
	}

	return len(edges), nil
}

// LoadBlob reads a snapshot written by SaveBlob and records its edges into
// the arena's dependency table via AddEdge, marking t as loaded so a
// subsequent SaveBlob without reset=true is rejected. ignoreVersion skips
// the format-version check, for reading a snapshot written by an older
// build that is known to remain binary-compatible.
func (t *Table) LoadBlob(path string, ignoreVersion bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("deptable: read blob: %w", err)
	}

	if len(data) < blobHeaderSize {
		return ErrCorrupt
	}
	if string(data[0:4]) != blobMagic {
		return ErrCorrupt
	}

	version := binary.LittleEndian.Uint16(data[4:6])
	if version != blobVersion && !ignoreVersion {
		return ErrVersionMismatch
	}

	body := data[blobHeaderSize:]
	if len(body)%blobEdgeSize != 0 {
		return ErrCorrupt
	}

	count := len(body) / blobEdgeSize
	for i := 0; i < count; i++ {
		off := i * blobEdgeSize
		var from, to arena.Digest
		copy(from[:], body[off:off+digestLen])
		copy(to[:], body[off+digestLen:off+2*digestLen])

		if err := t.a.AddEdge(from, to); err != nil {
			return fmt.Errorf("deptable: load edge %d: %w", i, err)
		}
	}

	t.loaded = true
	return nil
}
