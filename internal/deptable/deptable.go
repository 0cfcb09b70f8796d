// Package deptable persists an arena's dependency-edge table to a file
// across process restarts — the arena itself is pre-forked, fixed-size,
// and does not outlive the process that owns the mapping, so the
// type-checker's dependency graph needs a separate home between runs.
//
// Two formats are supported: a flat binary blob (SaveBlob/LoadBlob,
// grounded on internal/ticket's BinaryCache format) and a SQLite database
// (SaveSQLite/UpdateSQLite/LoadSQLite, grounded on pkg/mddb/sql.go and
// internal/store/sql.go). The blob format is a full snapshot only; SQLite
// additionally supports an incremental Update for a table loaded from a
// prior save.
package deptable

import "github.com/heaplattice/heapstore/pkg/arena"

// Table wraps an *arena.Arena's dependency-edge table with the persistence
// operations in this package. It tracks whether its edges were populated
// by a Load call, which gates Save in favor of Update.
type Table struct {
	a      *arena.Arena
	loaded bool
}

// New wraps a, whose dependency-edge table SaveBlob/SaveSQLite/LoadBlob/
// LoadSQLite will read from and write into.
func New(a *arena.Arena) *Table {
	return &Table{a: a}
}

// IsLoaded reports whether this Table's edges were populated by a prior
// LoadBlob or LoadSQLite call.
func (t *Table) IsLoaded() bool {
	return t.loaded
}
