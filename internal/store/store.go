// Package store persists the flat similarity index as a SQLite snapshot inside
// the vector store directory. Every save rewrites the whole snapshot in one
// transaction, and the database is opened per operation so that a directory
// wipe by the cleanup scheduler never leaves a handle on an unlinked file.
package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/54b3r/docqa-go/internal/rag"
)

// FileName is the snapshot database file created inside the index directory.
const FileName = "index.db"

// SnapshotStore reads and writes the flat index snapshot at a fixed path.
// It satisfies rag.Snapshotter.
type SnapshotStore struct {
	// path is the absolute or relative path of the SQLite file.
	path string
}

// NewSnapshotStore returns a SnapshotStore that keeps its database in dir.
// The directory is created on first save.
func NewSnapshotStore(dir string) *SnapshotStore {
	return &SnapshotStore{path: filepath.Join(dir, FileName)}
}

// Path returns the snapshot database path.
func (s *SnapshotStore) Path() string { return s.path }

// open opens the snapshot database at path and runs the schema migration.
func open(path string) (*sql.DB, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// migrate creates the schema if it does not already exist.
func migrate(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS chunks (
    position   INTEGER PRIMARY KEY,
    id         TEXT    NOT NULL,
    source     TEXT    NOT NULL,
    content    TEXT    NOT NULL,
    metadata   TEXT    NOT NULL,  -- JSON object
    vector     BLOB    NOT NULL   -- little-endian float32
);
CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks (source);
`
	if _, err := db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Save replaces the persisted snapshot with entries in a single transaction.
func (s *SnapshotStore) Save(ctx context.Context, entries []rag.Entry) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("store: create index dir: %w", err)
	}

	db, err := open(s.path)
	if err != nil {
		return err
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks`); err != nil {
		return fmt.Errorf("store: clear snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (position, id, source, content, metadata, vector) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, e := range entries {
		meta, err := json.Marshal(e.Chunk.Metadata)
		if err != nil {
			return fmt.Errorf("store: encode metadata for %s: %w", e.Chunk.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, i, e.Chunk.ID, e.Chunk.Source, e.Chunk.Content, string(meta), serializeFloat32(e.Vector)); err != nil {
			return fmt.Errorf("store: insert %s: %w", e.Chunk.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// Load returns the persisted entries in insertion order. A missing snapshot
// file yields no entries and no error.
func (s *SnapshotStore) Load(ctx context.Context) ([]rag.Entry, error) {
	if _, err := os.Stat(s.path); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	db, err := open(s.path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx,
		`SELECT id, source, content, metadata, vector FROM chunks ORDER BY position ASC`)
	if err != nil {
		return nil, fmt.Errorf("store: load: %w", err)
	}
	defer rows.Close()

	var entries []rag.Entry
	for rows.Next() {
		var (
			c    rag.Chunk
			meta string
			blob []byte
		)
		if err := rows.Scan(&c.ID, &c.Source, &c.Content, &meta, &blob); err != nil {
			return nil, fmt.Errorf("store: load scan: %w", err)
		}
		if err := json.Unmarshal([]byte(meta), &c.Metadata); err != nil {
			return nil, fmt.Errorf("store: decode metadata for %s: %w", c.ID, err)
		}
		vec, err := deserializeFloat32(blob)
		if err != nil {
			return nil, fmt.Errorf("store: decode vector for %s: %w", c.ID, err)
		}
		entries = append(entries, rag.Entry{Chunk: c, Vector: vec})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: load rows: %w", err)
	}
	return entries, nil
}

// Remove deletes the snapshot database and its WAL side files.
// Missing files are not an error.
func (s *SnapshotStore) Remove(_ context.Context) error {
	var errs []error
	for _, p := range []string{s.path, s.path + "-wal", s.path + "-shm"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("store: remove %s: %w", p, err))
		}
	}
	return errors.Join(errs...)
}

// serializeFloat32 encodes v as little-endian float32 bytes.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// deserializeFloat32 converts a little-endian byte slice back to a float32 slice.
func deserializeFloat32(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid vector blob length %d: must be divisible by 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}
