package arena

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := layoutFor(1024, 256, 1<<20)
	h.UserVersion = 7
	h.LiveSlots = 3

	buf := encodeHeader(&h)
	require.True(t, validateHeaderCRC(buf))
	require.False(t, hasReservedBytesSet(buf))

	got := decodeHeader(buf)
	require.Equal(t, h.SlotCapacity, got.SlotCapacity)
	require.Equal(t, h.DepCapacity, got.DepCapacity)
	require.Equal(t, h.HeapBytes, got.HeapBytes)
	require.Equal(t, h.UserVersion, got.UserVersion)
	require.Equal(t, h.LiveSlots, got.LiveSlots)
	require.Equal(t, uint32(ahp1Version), got.Version)
}

func TestHeaderCRCDetectsCorruption(t *testing.T) {
	h := layoutFor(64, 16, 4096)
	buf := encodeHeader(&h)

	buf[offSlotCapacity] ^= 0xFF
	require.False(t, validateHeaderCRC(buf))
}

func TestSlotEncodeDecode(t *testing.T) {
	var d Digest
	copy(d[:], []byte("0123456789abcdef"))

	buf := encodeSlot(d, true, 42, 100, 80)
	got := decodeSlot(buf)

	require.True(t, got.live)
	require.Equal(t, d, got.digest)
	require.Equal(t, uint64(42), got.blobOffset)
	require.Equal(t, uint32(100), got.origSize)
	require.Equal(t, uint32(80), got.compSize)
}

func TestDepSlotEncodeDecode(t *testing.T) {
	var from, to Digest
	from[0] = 1
	to[0] = 2

	buf := encodeDepSlot(from, to, true)
	got := decodeDepSlot(buf)

	require.True(t, got.live)
	require.Equal(t, from, got.from)
	require.Equal(t, to, got.to)
}

func TestNextPow2(t *testing.T) {
	cases := map[uint64]uint64{0: 1, 1: 1, 2: 2, 3: 4, 5: 8, 1024: 1024, 1025: 2048}
	for in, want := range cases {
		require.Equal(t, want, nextPow2(in), "nextPow2(%d)", in)
	}
}

func TestLayoutForRegionsDontOverlap(t *testing.T) {
	h := layoutFor(100, 50, 1<<16)

	require.Less(t, uint64(ahp1HeaderSize), h.SlotsOffset+1)
	require.Less(t, h.SlotsOffset, h.BucketsOffset)
	require.Less(t, h.BucketsOffset, h.DepSlotsOffset)
	require.Less(t, h.DepSlotsOffset, h.DepBucketsOffset)
	require.Less(t, h.DepBucketsOffset, h.HeapOffset)
}
