package arena

import "errors"

// ErrOutOfHeap is returned by Add when the bump allocator has no room left
// past HeapUsed for a new value. Add does not run Collect itself, so bytes
// counted in HeapWasted are not reclaimed before this is returned. Fatal: the caller's
// process should terminate rather than continue with a half-sized heap.
var ErrOutOfHeap = errors.New("arena: out of heap space")

// ErrHashTableFull is returned by Add when every bucket probed for a free
// slot is occupied. Fatal: the arena was sized too small for the workload.
var ErrHashTableFull = errors.New("arena: hash table full")

// ErrDepTableFull is returned by AddEdge when the dependency-edge table has
// no free slot left. Fatal.
var ErrDepTableFull = errors.New("arena: dependency table full")

// ErrRevisionLengthZero is returned by Add when called with a zero-length
// payload; the arena requires at least one byte so a live slot can be told
// apart from a zeroed, never-written one by content alone.
var ErrRevisionLengthZero = errors.New("arena: payload must be non-empty")

// ErrNotPresent is returned by Get, Remove, and Move (as the source) when
// the digest has no live slot.
var ErrNotPresent = errors.New("arena: digest not present")

// ErrAlreadyPresent is returned by Move when the destination digest is
// already live.
var ErrAlreadyPresent = errors.New("arena: digest already present")

// ErrAssertion marks an internal invariant violation (corrupt bucket chain,
// a live slot with a dangling heap pointer, and similar). Fatal.
var ErrAssertion = errors.New("arena: internal invariant violated")

// ErrAnonMappingInit is returned when an anonymous (non-file-backed)
// mapping could not be established during Init.
var ErrAnonMappingInit = errors.New("arena: anonymous mapping failed")

// ErrInsufficientFreeBytes is returned for a candidate directory that does
// not have MinFreeBytes available.
var ErrInsufficientFreeBytes = errors.New("arena: insufficient free bytes on candidate filesystem")

// ErrFilesystemUnusable is returned when every candidate directory failed,
// wrapping the last underlying error.
var ErrFilesystemUnusable = errors.New("arena: no usable filesystem for shared mapping")

// ErrIncompatible is returned by Connect when the file's header magic,
// version, or fixed-size fields don't match this build. Recovery: the file
// must be recreated with Init; it cannot be salvaged.
var ErrIncompatible = errors.New("arena: incompatible arena file")

// ErrCorrupt is returned by Connect or a read when the header CRC fails or
// sampled bucket/slot data is self-contradictory. Recovery: recreate the
// arena; in-use corruption cannot be repaired in place.
var ErrCorrupt = errors.New("arena: corrupt arena file")

// ErrBusy is returned by a read after exhausting its seqlock retry budget
// against a writer that never seems to settle. Recovery: retry from the
// caller's own loop, possibly with a longer backoff.
var ErrBusy = errors.New("arena: read retries exhausted against an active writer")

// ErrClosed is returned by any operation on an Arena after Close.
var ErrClosed = errors.New("arena: use of closed arena")

// ErrInvalidInput guards against obviously malformed arguments (negative
// sizes, digests of the wrong length, and so on).
var ErrInvalidInput = errors.New("arena: invalid input")

// ErrWriterActive is returned when a second writer session is attempted
// against an arena that already has one open in this process, or when
// another process holds the cross-process writer lock.
var ErrWriterActive = errors.New("arena: a writer session is already active")

// ErrRemovesDisabled is returned by Remove when AllowRemoves has not been
// set, matching the global removal gate in the concurrency model.
var ErrRemovesDisabled = errors.New("arena: removes are disabled for this arena")

// ErrWritesDisabled is returned by Add, Remove, Move, AddEdge, and Collect
// when the calling process has not called SetAllowHashtableWrites(true).
var ErrWritesDisabled = errors.New("arena: hash table writes are disabled for this process")
