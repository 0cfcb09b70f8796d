package arena

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// AHP1 file format constants. The layout mirrors a hash table (content
// keyed by a fixed 16-byte MD5 digest) plus a bump-allocated blob heap plus
// a second, smaller hash table of dependency edges, all inside one mmap'd
// region sized once at Init.
const (
	ahp1Version    = 1
	ahp1HeaderSize = 256

	digestSize = 16 // MD5

	// slotSize = meta(8) + digest(16) + blobOffset(8) + origSize(4) + compSize(4), already 8-aligned.
	slotSize = 40

	// depSlotSize = meta(8) + from(16) + to(16), already 8-aligned.
	depSlotSize = 40
)

const (
	slotMetaUsed uint64 = 1 << 0
	depMetaUsed  uint64 = 1 << 0
)

// Header field offsets (bytes from file start).
const (
	offMagic              = 0x00 // [4]byte
	offVersion            = 0x04 // uint32
	offHeaderSize         = 0x08 // uint32
	offHashAlg            = 0x0C // uint32
	offSlotCapacity       = 0x10 // uint64
	offBucketCount        = 0x18 // uint64
	offDepCapacity        = 0x20 // uint64
	offDepBucketCount     = 0x28 // uint64
	offHeapBytes          = 0x30 // uint64
	offHeapOffset         = 0x38 // uint64
	offHeapUsed           = 0x40 // uint64
	offHeapWasted         = 0x48 // uint64
	offSlotsOffset        = 0x50 // uint64
	offBucketsOffset      = 0x58 // uint64
	offDepSlotsOffset     = 0x60 // uint64
	offDepBucketsOffset   = 0x68 // uint64
	offLiveSlots          = 0x70 // uint64
	offDepLiveSlots       = 0x78 // uint64
	offGeneration         = 0x80 // uint64 (seqlock, even == stable)
	offCollectCount       = 0x88 // uint64
	offHeaderCRC32C       = 0x90 // uint32
	offState              = 0x94 // uint32
	offAllowRemoves       = 0x98 // uint32
	offFlags              = 0x9C // uint32
	offUserVersion        = 0xA0 // uint64
	offReservedTailStart  = 0xA8 // reserved through 0xFF, must stay zero
)

const (
	stateNormal      uint32 = 0
	stateInvalidated uint32 = 1

	ahp1HashAlgMD5 uint32 = 1
)

// header is the decoded 256-byte AHP1 header.
type header struct {
	Version        uint32
	HashAlg        uint32
	SlotCapacity   uint64
	BucketCount    uint64
	DepCapacity    uint64
	DepBucketCount uint64
	HeapBytes      uint64
	HeapOffset     uint64
	HeapUsed       uint64
	HeapWasted     uint64
	SlotsOffset    uint64
	BucketsOffset  uint64
	DepSlotsOffset uint64
	DepBucketsOffset uint64
	LiveSlots      uint64
	DepLiveSlots   uint64
	Generation     uint64
	CollectCount   uint64
	State          uint32
	AllowRemoves   uint32
	Flags          uint32
	UserVersion    uint64
}

func encodeHeader(h *header) []byte {
	buf := make([]byte, ahp1HeaderSize)

	copy(buf[offMagic:], []byte("AHP1"))
	binary.LittleEndian.PutUint32(buf[offVersion:], h.Version)
	binary.LittleEndian.PutUint32(buf[offHeaderSize:], ahp1HeaderSize)
	binary.LittleEndian.PutUint32(buf[offHashAlg:], h.HashAlg)
	binary.LittleEndian.PutUint64(buf[offSlotCapacity:], h.SlotCapacity)
	binary.LittleEndian.PutUint64(buf[offBucketCount:], h.BucketCount)
	binary.LittleEndian.PutUint64(buf[offDepCapacity:], h.DepCapacity)
	binary.LittleEndian.PutUint64(buf[offDepBucketCount:], h.DepBucketCount)
	binary.LittleEndian.PutUint64(buf[offHeapBytes:], h.HeapBytes)
	binary.LittleEndian.PutUint64(buf[offHeapOffset:], h.HeapOffset)
	binary.LittleEndian.PutUint64(buf[offHeapUsed:], h.HeapUsed)
	binary.LittleEndian.PutUint64(buf[offHeapWasted:], h.HeapWasted)
	binary.LittleEndian.PutUint64(buf[offSlotsOffset:], h.SlotsOffset)
	binary.LittleEndian.PutUint64(buf[offBucketsOffset:], h.BucketsOffset)
	binary.LittleEndian.PutUint64(buf[offDepSlotsOffset:], h.DepSlotsOffset)
	binary.LittleEndian.PutUint64(buf[offDepBucketsOffset:], h.DepBucketsOffset)
	binary.LittleEndian.PutUint64(buf[offLiveSlots:], h.LiveSlots)
	binary.LittleEndian.PutUint64(buf[offDepLiveSlots:], h.DepLiveSlots)
	binary.LittleEndian.PutUint64(buf[offGeneration:], h.Generation)
	binary.LittleEndian.PutUint64(buf[offCollectCount:], h.CollectCount)
	binary.LittleEndian.PutUint32(buf[offState:], h.State)
	binary.LittleEndian.PutUint32(buf[offAllowRemoves:], h.AllowRemoves)
	binary.LittleEndian.PutUint32(buf[offFlags:], h.Flags)
	binary.LittleEndian.PutUint64(buf[offUserVersion:], h.UserVersion)

	crc := computeHeaderCRC(buf)
	binary.LittleEndian.PutUint32(buf[offHeaderCRC32C:], crc)

	return buf
}

func decodeHeader(buf []byte) header {
	return header{
		Version:          binary.LittleEndian.Uint32(buf[offVersion:]),
		HashAlg:          binary.LittleEndian.Uint32(buf[offHashAlg:]),
		SlotCapacity:     binary.LittleEndian.Uint64(buf[offSlotCapacity:]),
		BucketCount:      binary.LittleEndian.Uint64(buf[offBucketCount:]),
		DepCapacity:      binary.LittleEndian.Uint64(buf[offDepCapacity:]),
		DepBucketCount:   binary.LittleEndian.Uint64(buf[offDepBucketCount:]),
		HeapBytes:        binary.LittleEndian.Uint64(buf[offHeapBytes:]),
		HeapOffset:       binary.LittleEndian.Uint64(buf[offHeapOffset:]),
		HeapUsed:         binary.LittleEndian.Uint64(buf[offHeapUsed:]),
		HeapWasted:       binary.LittleEndian.Uint64(buf[offHeapWasted:]),
		SlotsOffset:      binary.LittleEndian.Uint64(buf[offSlotsOffset:]),
		BucketsOffset:    binary.LittleEndian.Uint64(buf[offBucketsOffset:]),
		DepSlotsOffset:   binary.LittleEndian.Uint64(buf[offDepSlotsOffset:]),
		DepBucketsOffset: binary.LittleEndian.Uint64(buf[offDepBucketsOffset:]),
		LiveSlots:        binary.LittleEndian.Uint64(buf[offLiveSlots:]),
		DepLiveSlots:     binary.LittleEndian.Uint64(buf[offDepLiveSlots:]),
		Generation:       binary.LittleEndian.Uint64(buf[offGeneration:]),
		CollectCount:     binary.LittleEndian.Uint64(buf[offCollectCount:]),
		State:            binary.LittleEndian.Uint32(buf[offState:]),
		AllowRemoves:     binary.LittleEndian.Uint32(buf[offAllowRemoves:]),
		Flags:            binary.LittleEndian.Uint32(buf[offFlags:]),
		UserVersion:      binary.LittleEndian.Uint64(buf[offUserVersion:]),
	}
}

// computeHeaderCRC checksums the header with the crc field and every field
// that live writes rewrite in place (HeapUsed, HeapWasted, LiveSlots,
// DepLiveSlots, Generation, CollectCount) zeroed, so the CRC never churns
// under live Add/Remove/AddEdge/Collect calls.
func computeHeaderCRC(buf []byte) uint32 {
	tmp := make([]byte, ahp1HeaderSize)
	copy(tmp, buf)

	for i := offHeapUsed; i < offHeapWasted+8; i++ {
		tmp[i] = 0
	}
	for i := offLiveSlots; i < offCollectCount+8; i++ {
		tmp[i] = 0
	}
	for i := offHeaderCRC32C; i < offHeaderCRC32C+4; i++ {
		tmp[i] = 0
	}

	return crc32.Checksum(tmp, crc32.MakeTable(crc32.Castagnoli))
}

func validateHeaderCRC(buf []byte) bool {
	stored := binary.LittleEndian.Uint32(buf[offHeaderCRC32C:])
	return stored == computeHeaderCRC(buf)
}

func hasReservedBytesSet(buf []byte) bool {
	for i := offReservedTailStart; i < ahp1HeaderSize; i++ {
		if buf[i] != 0 {
			return true
		}
	}
	return false
}

func nextPow2(v uint64) uint64 {
	if v == 0 {
		return 1
	}
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v |= v >> 32
	return v + 1
}

// layoutFor computes every region's size and offset for the given
// capacities, laying slots, then buckets, then dependency slots, then
// dependency buckets, then the blob heap, one after another starting
// right after the fixed 256-byte header.
func layoutFor(slotCapacity, depCapacity, heapBytes uint64) header {
	bucketCount := nextPow2(max(slotCapacity*2, 2))
	depBucketCount := nextPow2(max(depCapacity*2, 2))

	slotsOffset := uint64(ahp1HeaderSize)
	bucketsOffset := slotsOffset + slotCapacity*slotSize
	depSlotsOffset := bucketsOffset + bucketCount*8
	depBucketsOffset := depSlotsOffset + depCapacity*depSlotSize
	heapOffset := depBucketsOffset + depBucketCount*8

	return header{
		Version:          ahp1Version,
		HashAlg:          ahp1HashAlgMD5,
		SlotCapacity:     slotCapacity,
		BucketCount:      bucketCount,
		DepCapacity:      depCapacity,
		DepBucketCount:   depBucketCount,
		HeapBytes:        heapBytes,
		HeapOffset:       heapOffset,
		SlotsOffset:      slotsOffset,
		BucketsOffset:    bucketsOffset,
		DepSlotsOffset:   depSlotsOffset,
		DepBucketsOffset: depBucketsOffset,
		State:            stateNormal,
	}
}

func totalFileSize(h header) int64 {
	return int64(h.HeapOffset + h.HeapBytes)
}

// --- slot encode/decode ---

func encodeSlot(digest Digest, live bool, blobOffset uint64, origSize, compSize uint32) []byte {
	buf := make([]byte, slotSize)
	var meta uint64
	if live {
		meta = slotMetaUsed
	}
	binary.LittleEndian.PutUint64(buf[0:8], meta)
	copy(buf[8:8+digestSize], digest[:])
	binary.LittleEndian.PutUint64(buf[24:32], blobOffset)
	binary.LittleEndian.PutUint32(buf[32:36], origSize)
	binary.LittleEndian.PutUint32(buf[36:40], compSize)
	return buf
}

type decodedSlot struct {
	digest     Digest
	live       bool
	blobOffset uint64
	origSize   uint32
	compSize   uint32
}

func decodeSlot(buf []byte) decodedSlot {
	meta := binary.LittleEndian.Uint64(buf[0:8])
	var d decodedSlot
	copy(d.digest[:], buf[8:8+digestSize])
	d.live = meta&slotMetaUsed != 0
	d.blobOffset = binary.LittleEndian.Uint64(buf[24:32])
	d.origSize = binary.LittleEndian.Uint32(buf[32:36])
	d.compSize = binary.LittleEndian.Uint32(buf[36:40])
	return d
}

// --- dependency-edge slot encode/decode ---

func encodeDepSlot(from, to Digest, live bool) []byte {
	buf := make([]byte, depSlotSize)
	var meta uint64
	if live {
		meta = depMetaUsed
	}
	binary.LittleEndian.PutUint64(buf[0:8], meta)
	copy(buf[8:8+digestSize], from[:])
	copy(buf[24:24+digestSize], to[:])
	return buf
}

type decodedDepSlot struct {
	from, to Digest
	live     bool
}

func decodeDepSlot(buf []byte) decodedDepSlot {
	meta := binary.LittleEndian.Uint64(buf[0:8])
	var d decodedDepSlot
	copy(d.from[:], buf[8:8+digestSize])
	copy(d.to[:], buf[24:24+digestSize])
	d.live = meta&depMetaUsed != 0
	return d
}

// --- seqlock primitives, mirroring the generation field's 8-byte alignment ---

func atomicLoadUint64At(buf []byte, off uint64) uint64 {
	_ = buf[off+7]
	return atomic.LoadUint64((*uint64)(unsafe.Pointer(&buf[off])))
}

func atomicStoreUint64At(buf []byte, off uint64, val uint64) {
	_ = buf[off+7]
	atomic.StoreUint64((*uint64)(unsafe.Pointer(&buf[off])), val)
}

func atomicLoadMetaAt(buf []byte, off uint64) uint64 {
	return atomicLoadUint64At(buf, off)
}

func atomicStoreMetaAt(buf []byte, off uint64, meta uint64) {
	atomicStoreUint64At(buf, off, meta)
}

// pageSize is used to page-align msync ranges; required on some platforms.
var pageSize = unix.Getpagesize()

func msyncRange(data []byte, offset, length int) error {
	if length <= 0 || offset < 0 || offset >= len(data) {
		return fmt.Errorf("msyncRange offset=%d length=%d len=%d: %w", offset, length, len(data), ErrInvalidInput)
	}
	if offset+length > len(data) {
		length = len(data) - offset
	}
	alignedStart := (offset / pageSize) * pageSize
	end := offset + length
	alignedEnd := min(((end+pageSize-1)/pageSize)*pageSize, len(data))

	if err := unix.Msync(data[alignedStart:alignedEnd], unix.MS_SYNC); err != nil {
		return fmt.Errorf("msync: %w", err)
	}
	return nil
}
