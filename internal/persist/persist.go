package persist

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	json "github.com/goccy/go-json"
	_ "modernc.org/sqlite"

	"github.com/heliostat/heliostat/internal/feed"
)

const schema = `
CREATE TABLE IF NOT EXISTS snapshot (
	id          INTEGER PRIMARY KEY CHECK (id = 1),
	produced_at TEXT NOT NULL,
	body        BLOB NOT NULL
);`

// pragmas applied on open, via EXEC so they work across drivers.
var pragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA busy_timeout = 10000",
	"PRAGMA synchronous = NORMAL",
}

// Store is a single-row SQLite mirror of the current snapshot.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the snapshot database at path. Parent
// directories are created.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("persist: create dir: %w", err)
		}
	}
	return open(path)
}

// OpenMemory opens an in-memory store, for tests.
func OpenMemory() (*Store, error) {
	return open(":memory:")
}

func open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("persist: open %q: %w", dsn, err)
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("persist: %s: %w", p, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("persist: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Save replaces the stored snapshot with snap.
func (s *Store) Save(snap *feed.Snapshot) error {
	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("persist: encode snapshot: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO snapshot (id, produced_at, body) VALUES (1, ?, ?)
		ON CONFLICT (id) DO UPDATE SET produced_at = excluded.produced_at, body = excluded.body`,
		snap.ProducedAt.UTC().Format(time.RFC3339Nano), body)
	if err != nil {
		return fmt.Errorf("persist: write snapshot: %w", err)
	}
	return nil
}

// Load returns the stored snapshot, or (nil, nil) when nothing has been
// saved yet.
func (s *Store) Load() (*feed.Snapshot, error) {
	var body []byte
	err := s.db.QueryRow(`SELECT body FROM snapshot WHERE id = 1`).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("persist: read snapshot: %w", err)
	}
	var snap feed.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, fmt.Errorf("persist: decode snapshot: %w", err)
	}
	return &snap, nil
}
