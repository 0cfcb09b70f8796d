package arena

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/heaplattice/heapstore/internal/telemetry"
)

// Options configures a new arena at Init time. Sizes are frozen for the
// life of the arena; there is no online resize.
type Options struct {
	// Candidates is tried in order when an anonymous mapping cannot be
	// established; each entry is a directory that must have at least
	// MinFreeBytes free.
	Candidates []string

	// MinFreeBytes is the minimum free space a candidate directory's
	// filesystem must report before it is used.
	MinFreeBytes uint64

	// SlotCapacity is the fixed number of hash-table slots.
	SlotCapacity uint64

	// DepCapacity is the fixed number of dependency-edge slots.
	DepCapacity uint64

	// HeapBytes is the fixed size of the compressed-blob heap.
	HeapBytes uint64

	// UserVersion is an opaque caller-chosen schema tag, validated on Connect.
	UserVersion uint64
}

// Handle identifies a live arena mapping so that a forked or exec'd worker
// can attach to it with Connect. For an anonymous mapping FD is the memfd
// descriptor (must be inherited, e.g. via exec.Cmd.ExtraFiles); for a
// filesystem-backed mapping Path names the backing file instead.
type Handle struct {
	FD          int
	Path        string
	UserVersion uint64
	Sizes       Sizes
}

// Sizes reports the frozen capacities of an arena.
type Sizes struct {
	SlotCapacity uint64
	DepCapacity  uint64
	HeapBytes    uint64
	FileBytes    int64
}

// Init creates and sizes a new arena. It tries an anonymous, memfd-backed
// mapping first (Linux only, matches "anonymous mapping" in the design);
// on any failure it walks Candidates, skipping any directory that doesn't
// report at least MinFreeBytes free, and creates a real file there instead.
// It returns ErrFilesystemUnusable once every candidate has failed.
func Init(opts Options) (*Handle, error) {
	if opts.SlotCapacity == 0 {
		return nil, fmt.Errorf("SlotCapacity must be > 0: %w", ErrInvalidInput)
	}

	h := layoutFor(opts.SlotCapacity, opts.DepCapacity, opts.HeapBytes)
	h.UserVersion = opts.UserVersion
	size := totalFileSize(h)

	if fd, err := initAnonymous(h, size); err == nil {
		return &Handle{
			FD:          fd,
			UserVersion: opts.UserVersion,
			Sizes:       Sizes{opts.SlotCapacity, opts.DepCapacity, opts.HeapBytes, size},
		}, nil
	}

	var lastErr error
	for _, dir := range opts.Candidates {
		path, err := initOnFilesystem(dir, opts.MinFreeBytes, h, size)
		if err != nil {
			lastErr = err
			telemetry.Emit(telemetry.Event{
				Type:   telemetry.EventCandidateFailed,
				Level:  telemetry.LevelWarning,
				Source: "arena.init",
				Data: map[string]any{
					"candidate": dir,
					"error":     err.Error(),
				},
			})
			continue
		}
		return &Handle{
			Path:        path,
			UserVersion: opts.UserVersion,
			Sizes:       Sizes{opts.SlotCapacity, opts.DepCapacity, opts.HeapBytes, size},
		}, nil
	}

	if lastErr == nil {
		lastErr = ErrAnonMappingInit
	}
	return nil, fmt.Errorf("%w: %v", ErrFilesystemUnusable, lastErr)
}

func initAnonymous(h header, size int64) (fd int, err error) {
	memfd, err := unix.MemfdCreate("arena", 0)
	if err != nil {
		return -1, fmt.Errorf("%w: %v", ErrAnonMappingInit, err)
	}

	if err := unix.Ftruncate(memfd, size); err != nil {
		_ = unix.Close(memfd)
		return -1, fmt.Errorf("%w: ftruncate: %v", ErrAnonMappingInit, err)
	}

	if err := writeInitialLayout(memfd, h); err != nil {
		_ = unix.Close(memfd)
		return -1, fmt.Errorf("%w: %v", ErrAnonMappingInit, err)
	}

	return memfd, nil
}

func initOnFilesystem(dir string, minFree uint64, h header, size int64) (string, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(dir, &stat); err != nil {
		return "", fmt.Errorf("statfs %s: %w", dir, err)
	}

	free := stat.Bavail * uint64(stat.Bsize) //nolint:unconvert
	if free < minFree {
		return "", fmt.Errorf("%s: %w (have %d, need %d)", dir, ErrInsufficientFreeBytes, free, minFree)
	}

	f, err := os.CreateTemp(dir, "arena-*.ahp1")
	if err != nil {
		return "", fmt.Errorf("create arena file in %s: %w", dir, err)
	}
	path := f.Name()

	if err := f.Truncate(size); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("truncate arena file: %w", err)
	}

	if err := writeInitialLayout(int(f.Fd()), h); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", err
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("close arena file: %w", err)
	}

	return path, nil
}

func writeInitialLayout(fd int, h header) error {
	buf := encodeHeader(&h)
	if _, err := unix.Pwrite(fd, buf, 0); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	return nil
}

// Connect attaches to an already-initialized arena, mapping its file (or
// memfd) into this process's address space.
func Connect(h Handle) (*Arena, error) {
	fd := h.FD

	if h.Path != "" {
		f, err := os.OpenFile(h.Path, os.O_RDWR, 0)
		if err != nil {
			return nil, fmt.Errorf("open arena file: %w", err)
		}
		// Arena takes ownership of the raw descriptor from here (via its
		// own Close); detach it from os.File's GC finalizer so the
		// finalizer doesn't close the fd out from under the mmap.
		fd, err = unix.Dup(int(f.Fd()))
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("dup arena fd: %w", err)
		}
	}

	id, err := getFileIdentity(fd)
	if err != nil {
		return nil, err
	}

	size, err := fdSize(fd)
	if err != nil {
		return nil, err
	}

	data, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap: %w", err)
	}

	if len(data) < ahp1HeaderSize {
		_ = unix.Munmap(data)
		return nil, fmt.Errorf("%w: file too small for header", ErrCorrupt)
	}

	if string(data[offMagic:offMagic+4]) != "AHP1" {
		_ = unix.Munmap(data)
		return nil, fmt.Errorf("%w: bad magic", ErrIncompatible)
	}

	if !validateHeaderCRC(data[:ahp1HeaderSize]) {
		_ = unix.Munmap(data)
		return nil, fmt.Errorf("%w: header CRC mismatch", ErrCorrupt)
	}

	if hasReservedBytesSet(data[:ahp1HeaderSize]) {
		_ = unix.Munmap(data)
		return nil, fmt.Errorf("%w: reserved header bytes set", ErrCorrupt)
	}

	hdr := decodeHeader(data)
	if hdr.Version != ahp1Version {
		_ = unix.Munmap(data)
		return nil, fmt.Errorf("%w: version %d, want %d", ErrIncompatible, hdr.Version, ahp1Version)
	}

	if h.UserVersion != 0 && hdr.UserVersion != h.UserVersion {
		_ = unix.Munmap(data)
		return nil, fmt.Errorf("%w: user version %d, want %d", ErrIncompatible, hdr.UserVersion, h.UserVersion)
	}

	entry := getOrCreateRegistryEntry(id)

	a := &Arena{
		fd:       fd,
		data:     data,
		identity: id,
		registry: entry,
		path:     h.Path,
		hdr:      hdr,
	}

	return a, nil
}

func fdSize(fd int) (int64, error) {
	var stat unix.Stat_t
	if err := unix.Fstat(fd, &stat); err != nil {
		return 0, fmt.Errorf("fstat: %w", err)
	}
	return stat.Size, nil
}

