package deptable

import "errors"

// ErrTableIsLoaded is returned by SaveSQLite, and by SaveBlob called with
// reset=false, when the table backing this Table was itself populated by
// LoadBlob/LoadSQLite: a fresh save would silently discard the provenance
// of the loaded revision. For SQLite the caller uses UpdateSQLite instead;
// the blob format has no incremental merge, so SaveBlob with reset=true is
// the only way to overwrite a blob from a loaded table.
var ErrTableIsLoaded = errors.New("deptable: table was loaded from a saved state, use Update instead")

// ErrVersionMismatch is returned by LoadBlob and LoadSQLite when the
// on-disk format version does not match this build and ignoreVersion was
// not set.
var ErrVersionMismatch = errors.New("deptable: saved format version mismatch")

// ErrCorrupt is returned by LoadBlob when the file's magic, length, or
// edge count is self-contradictory.
var ErrCorrupt = errors.New("deptable: corrupt blob file")
