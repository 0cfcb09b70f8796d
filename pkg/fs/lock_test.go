package fs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// These exercise exactly the path pkg/arena's writer lock takes: a Locker
// over a Real filesystem, locking "<arena-path>.lock" which may not exist
// yet (arena.Init never pre-creates it).

func lockPathIn(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "arena-0001.ahp1.lock")
}

func TestLockCreatesMissingLockFile(t *testing.T) {
	path := lockPathIn(t)
	l := NewLocker(NewReal())

	lk, err := l.TryLock(path)
	require.NoError(t, err)
	defer lk.Close()

	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestLockCreatesMissingParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "arena.lock")
	l := NewLocker(NewReal())

	lk, err := l.TryLock(path)
	require.NoError(t, err)
	defer lk.Close()

	info, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestTryLockFailsWhileHeldElsewhere(t *testing.T) {
	path := lockPathIn(t)
	l := NewLocker(NewReal())

	lk, err := l.TryLock(path)
	require.NoError(t, err)
	defer lk.Close()

	_, err = l.TryLock(path)
	require.ErrorIs(t, err, ErrWouldBlock)
}

func TestLockReleaseAllowsReacquire(t *testing.T) {
	path := lockPathIn(t)
	l := NewLocker(NewReal())

	lk, err := l.TryLock(path)
	require.NoError(t, err)
	require.NoError(t, lk.Close())

	lk2, err := l.TryLock(path)
	require.NoError(t, err)
	require.NoError(t, lk2.Close())
}

func TestSharedLocksCoexist(t *testing.T) {
	path := lockPathIn(t)
	l := NewLocker(NewReal())

	a, err := l.TryRLock(path)
	require.NoError(t, err)
	defer a.Close()

	b, err := l.TryRLock(path)
	require.NoError(t, err)
	defer b.Close()
}

func TestLockWithTimeoutExpires(t *testing.T) {
	path := lockPathIn(t)
	l := NewLocker(NewReal())

	held, err := l.TryLock(path)
	require.NoError(t, err)
	defer held.Close()

	_, err = l.LockWithTimeout(path, 20*time.Millisecond)
	require.ErrorIs(t, err, ErrWouldBlock)
}

func TestRealStatReportsNotExist(t *testing.T) {
	r := NewReal()
	_, err := r.Stat(filepath.Join(t.TempDir(), "missing.lock"))
	require.True(t, os.IsNotExist(err))
}
