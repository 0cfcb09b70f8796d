package deptable

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/heaplattice/heapstore/pkg/arena"
)

// currentSchemaVersion is stored in SQLite's user_version pragma, the same
// migration trigger pkg/mddb and internal/store use: a mismatch on Load
// means the file predates a schema change and must be rejected or
// re-derived rather than read with a stale layout.
const currentSchemaVersion = 1

const sqliteBusyTimeoutMS = 10000

func openSqlite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, errors.New("deptable: sqlite path is empty")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("deptable: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("deptable: ping sqlite: %w", err)
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf(`
		PRAGMA busy_timeout = %d;
		PRAGMA journal_mode = WAL;
		PRAGMA synchronous = FULL;
		PRAGMA temp_store = MEMORY;
	`, sqliteBusyTimeoutMS)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("deptable: apply pragmas: %w", err)
	}

	return db, nil
}

func storedSchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	row := db.QueryRowContext(ctx, "PRAGMA user_version")
	var version int
	if err := row.Scan(&version); err != nil {
		return 0, fmt.Errorf("deptable: read user_version: %w", err)
	}
	return version, nil
}

func createSchema(ctx context.Context, tx *sql.Tx) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS edges (
			from_digest BLOB NOT NULL,
			to_digest   BLOB NOT NULL,
			PRIMARY KEY (from_digest, to_digest)
		) WITHOUT ROWID`,
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value INTEGER NOT NULL
		) WITHOUT ROWID`,
	}
	for i, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("deptable: schema statement %d: %w", i+1, err)
		}
	}
	return nil
}

func dropSchema(ctx context.Context, tx *sql.Tx) error {
	for _, stmt := range []string{"DROP TABLE IF EXISTS edges", "DROP TABLE IF EXISTS meta"} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("deptable: drop schema: %w", err)
		}
	}
	return nil
}

func edgeCount(ctx context.Context, tx *sql.Tx) (int, error) {
	row := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM edges")
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("deptable: count edges: %w", err)
	}
	return n, nil
}

func setRevision(ctx context.Context, tx *sql.Tx, revision int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES ('revision', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, revision)
	if err != nil {
		return fmt.Errorf("deptable: set revision: %w", err)
	}
	return nil
}

func insertEdges(ctx context.Context, tx *sql.Tx, a *arena.Arena, ignoreConflict bool) (int, error) {
	query := "INSERT INTO edges (from_digest, to_digest) VALUES (?, ?)"
	if ignoreConflict {
		query = "INSERT OR IGNORE INTO edges (from_digest, to_digest) VALUES (?, ?)"
	}

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("deptable: prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	n := 0
	var execErr error
	a.Edges(func(from, to arena.Digest) {
		if execErr != nil {
			return
		}
		if _, err := stmt.ExecContext(ctx, from[:], to[:]); err != nil {
			execErr = fmt.Errorf("deptable: insert edge: %w", err)
			return
		}
		n++
	})
	if execErr != nil {
		return 0, execErr
	}
	return n, nil
}

// SaveSQLite writes a full snapshot of the arena's dependency table to a
// SQLite database at path, mirroring pkg/mddb's openSqlite/applyPragmas
// handling. replace controls what happens when path already holds a
// non-empty edges table: true drops and recreates it, false fails with an
// error wrapping the count already present. Returns ErrTableIsLoaded
// unless t was never populated by a Load call — a table loaded from a
// prior save must go through UpdateSQLite instead.
func (t *Table) SaveSQLite(ctx context.Context, path string, revision int64, replace bool) (int, error) {
	if t.loaded {
		return 0, ErrTableIsLoaded
	}

	db, err := openSqlite(ctx, path)
	if err != nil {
		return 0, err
	}
	defer func() { _ = db.Close() }()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("deptable: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := createSchema(ctx, tx); err != nil {
		return 0, err
	}

	existing, err := edgeCount(ctx, tx)
	if err != nil {
		return 0, err
	}
	if existing > 0 {
		if !replace {
			return 0, fmt.Errorf("deptable: %d edges already present, pass replace=true to overwrite", existing)
		}
		if err := dropSchema(ctx, tx); err != nil {
			return 0, err
		}
		if err := createSchema(ctx, tx); err != nil {
			return 0, err
		}
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return 0, fmt.Errorf("deptable: set user_version: %w", err)
	}

	n, err := insertEdges(ctx, tx, t.a, false)
	if err != nil {
		return 0, err
	}
	if err := setRevision(ctx, tx, revision); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("deptable: commit: %w", err)
	}
	return n, nil
}

// UpdateSQLite merges the arena's current edges into a SQLite database
// previously produced by SaveSQLite or loaded via LoadSQLite, inserting
// only edges not already present (INSERT OR IGNORE). replace, when true,
// clears the edges table first so the result matches the arena exactly
// rather than accumulating stale edges from an earlier revision. Unlike
// SaveSQLite, this is the only write path available once t.loaded is true.
func (t *Table) UpdateSQLite(ctx context.Context, path string, revision int64, replace bool) (int, error) {
	db, err := openSqlite(ctx, path)
	if err != nil {
		return 0, err
	}
	defer func() { _ = db.Close() }()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("deptable: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := createSchema(ctx, tx); err != nil {
		return 0, err
	}

	if replace {
		if _, err := tx.ExecContext(ctx, "DELETE FROM edges"); err != nil {
			return 0, fmt.Errorf("deptable: clear edges: %w", err)
		}
	}

	n, err := insertEdges(ctx, tx, t.a, true)
	if err != nil {
		return 0, err
	}
	if err := setRevision(ctx, tx, revision); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("deptable: commit: %w", err)
	}
	return n, nil
}

// LoadSQLite reads every edge from a database written by SaveSQLite or
// UpdateSQLite into the arena via AddEdge, then marks t as loaded.
// ignoreVersion skips the PRAGMA user_version check.
func (t *Table) LoadSQLite(ctx context.Context, path string, ignoreVersion bool) error {
	db, err := openSqlite(ctx, path)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if !ignoreVersion {
		version, err := storedSchemaVersion(ctx, db)
		if err != nil {
			return err
		}
		if version != currentSchemaVersion {
			return ErrVersionMismatch
		}
	}

	rows, err := db.QueryContext(ctx, "SELECT from_digest, to_digest FROM edges")
	if err != nil {
		return fmt.Errorf("deptable: query edges: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var fromBytes, toBytes []byte
		if err := rows.Scan(&fromBytes, &toBytes); err != nil {
			return fmt.Errorf("deptable: scan edge: %w", err)
		}
		if len(fromBytes) != digestLen || len(toBytes) != digestLen {
			return ErrCorrupt
		}

		var from, to arena.Digest
		copy(from[:], fromBytes)
		copy(to[:], toBytes)

		if err := t.a.AddEdge(from, to); err != nil {
			return fmt.Errorf("deptable: load edge: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("deptable: rows: %w", err)
	}

	t.loaded = true
	return nil
}
