package main

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/heaplattice/heapstore/internal/config"
	"github.com/heaplattice/heapstore/pkg/arena"
)

// createArenaAt initializes a brand-new arena backed by exactly arenaPath.
// arena.Init only ever creates a randomized "arena-*.ahp1" file inside one
// of its Candidates directories, so we point it at arenaPath's directory
// and then rename the result into place.
//
// The arena is stamped with a fresh UUIDv7-derived UserVersion so the file
// carries a time-ordered identity an operator can record and later match
// against with --config or a scripted Connect, the same way
// internal/store/ids.go's NewUUIDv7 favors time-ordered UUIDv7s over plain
// counters for anything that needs a stable, sortable identity.
func createArenaAt(arenaPath string, cfg config.Config) (*arena.Arena, error) {
	opts := cfg.ToOptions()
	opts.Candidates = []string{filepath.Dir(arenaPath)}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate arena identity: %w", err)
	}
	opts.UserVersion = binary.BigEndian.Uint64(id[:8])

	h, err := arena.Init(opts)
	if err != nil {
		return nil, err
	}
	if h.Path == "" {
		return nil, fmt.Errorf("heapctl requires a filesystem-backed arena, got an anonymous mapping")
	}

	if err := os.Rename(h.Path, arenaPath); err != nil {
		_ = os.Remove(h.Path)
		return nil, fmt.Errorf("rename arena file into place: %w", err)
	}
	h.Path = arenaPath

	fmt.Printf("arena identity: %s (user_version=%d)\n", id, h.UserVersion)

	return arena.Connect(*h)
}

// openArenaAt attaches to an arena file that already exists at the exact
// path the caller named. Connect reads capacities back out of the file's
// own header, so no Options are needed here.
func openArenaAt(arenaPath string) (*arena.Arena, error) {
	return arena.Connect(arena.Handle{Path: arenaPath})
}
