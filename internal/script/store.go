package script

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Schema for the script library index.
const schema = `
CREATE TABLE IF NOT EXISTS scripts (
    id            TEXT PRIMARY KEY,
    name          TEXT NOT NULL,
    description   TEXT,
    file_path     TEXT NOT NULL,
    action_count  INTEGER NOT NULL,
    duration_sec  REAL NOT NULL,
    checksum      TEXT NOT NULL,
    created_at    INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_scripts_created ON scripts(created_at);
CREATE INDEX IF NOT EXISTS idx_scripts_name ON scripts(name);
`

// ErrNotFound is returned when a script id has no index entry.
var ErrNotFound = errors.New("script not found")

// Entry is one index row, returned by List without touching the
// script files.
type Entry struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	FilePath    string    `json:"file_path"`
	ActionCount int       `json:"action_count"`
	Duration    float64   `json:"duration"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store is the on-disk script library: JSON files under
// <dir>/scripts plus a SQLite index at <dir>/scripts.db.
type Store struct {
	db  *sql.DB
	dir string
}

// Open opens or creates the library under dataDir.
func Open(dataDir string) (*Store, error) {
	scriptsDir := filepath.Join(dataDir, "scripts")
	if err := os.MkdirAll(scriptsDir, 0o700); err != nil {
		return nil, fmt.Errorf("create scripts directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "scripts.db")
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open script index: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply script index schema: %w", err)
	}

	return &Store{db: db, dir: scriptsDir}, nil
}

// Close closes the index database.
func (st *Store) Close() error {
	if st.db != nil {
		return st.db.Close()
	}
	return nil
}

// Save writes the script file and upserts its index row, returning the
// file path.
func (st *Store) Save(s *Script) (string, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal script: %w", err)
	}

	path := filepath.Join(st.dir, s.ID+".json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("write script file: %w", err)
	}

	checksum, err := s.Checksum()
	if err != nil {
		return "", err
	}

	_, err = st.db.Exec(`
		INSERT OR REPLACE INTO scripts (id, name, description, file_path, action_count, duration_sec, checksum, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.Name, s.Description, path, len(s.Actions), s.Duration(), checksum, s.CreatedAt.UnixNano(),
	)
	if err != nil {
		return "", fmt.Errorf("index script: %w", err)
	}

	return path, nil
}

// Get loads a script by id from its file.
func (st *Store) Get(id string) (*Script, error) {
	entry, err := st.Lookup(id)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(entry.FilePath)
	if err != nil {
		return nil, fmt.Errorf("read script file: %w", err)
	}

	var s Script
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse script file: %w", err)
	}
	return &s, nil
}

// Lookup returns the index entry for a script id.
func (st *Store) Lookup(id string) (*Entry, error) {
	row := st.db.QueryRow(`
		SELECT id, name, description, file_path, action_count, duration_sec, created_at
		FROM scripts WHERE id = ?`, id)

	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("lookup script: %w", err)
	}
	return entry, nil
}

// List returns all index entries, newest first.
func (st *Store) List() ([]Entry, error) {
	rows, err := st.db.Query(`
		SELECT id, name, description, file_path, action_count, duration_sec, created_at
		FROM scripts ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list scripts: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan script entry: %w", err)
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scripts: %w", err)
	}
	return entries, nil
}

// Delete removes a script from the index and deletes its file.
func (st *Store) Delete(id string) error {
	entry, err := st.Lookup(id)
	if err != nil {
		return err
	}

	if _, err := st.db.Exec(`DELETE FROM scripts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete script index entry: %w", err)
	}

	if err := os.Remove(entry.FilePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete script file: %w", err)
	}
	return nil
}

// Verify recomputes a script's checksum and compares it against the
// index.
func (st *Store) Verify(id string) (bool, error) {
	var indexed string
	err := st.db.QueryRow(`SELECT checksum FROM scripts WHERE id = ?`, id).Scan(&indexed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return false, fmt.Errorf("lookup checksum: %w", err)
	}

	s, err := st.Get(id)
	if err != nil {
		return false, err
	}
	actual, err := s.Checksum()
	if err != nil {
		return false, err
	}
	return actual == indexed, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var e Entry
	var desc sql.NullString
	var createdNs int64

	if err := row.Scan(&e.ID, &e.Name, &desc, &e.FilePath, &e.ActionCount, &e.Duration, &createdNs); err != nil {
		return nil, err
	}
	e.Description = desc.String
	e.CreatedAt = time.Unix(0, createdNs)
	return &e, nil
}
