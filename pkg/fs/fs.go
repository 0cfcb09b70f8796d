// Package fs is the filesystem seam behind pkg/arena's interprocess writer
// lock. [Locker] drives an [FS] to open, create, and stat the lock file
// rather than calling the [os] package directly, so lock.go's open-then-flock
// state machine can be exercised against a fake filesystem in tests without
// touching disk.
//
// [Real] is the only production implementation. Paths use OS semantics, not
// the slash-separated paths of the standard library io/fs package.
package fs

import "os"

// File is the subset of an open file [Locker] needs: a descriptor to pass
// to [syscall.Flock], and Stat to detect the lock file being replaced
// between open and lock.
//
// Satisfied by [os.File]. Implementations must be safe for concurrent use.
type File interface {
	// Fd returns the OS file descriptor. See [os.File.Fd].
	Fd() uintptr

	// Stat returns the [os.FileInfo] for this file. See [os.File.Stat].
	Stat() (os.FileInfo, error)

	// Close closes the file. See [os.File.Close].
	Close() error
}

// FS is the filesystem surface [Locker] depends on to manage the lock file.
// All methods mirror their [os] package equivalents.
type FS interface {
	// OpenFile opens the lock file with the given flags and permissions.
	// See [os.OpenFile].
	OpenFile(path string, flag int, perm os.FileMode) (File, error)

	// MkdirAll creates the lock file's parent directory if it's missing.
	// See [os.MkdirAll].
	MkdirAll(path string, perm os.FileMode) error

	// Stat reports the lock file's current identity, used to detect a
	// concurrent replace. Returns [os.ErrNotExist] if the path is gone.
	Stat(path string) (os.FileInfo, error)
}

// Compile-time interface check.
var _ File = (*os.File)(nil)
