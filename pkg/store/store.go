// Package store caches encoded programs in a SQLite database.
package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"
)

var log = commonlog.GetLogger("crunch.store")

// ErrProgramNotFound indicates the requested program doesn't exist
var ErrProgramNotFound = errors.New("program not found")

// Entry describes a stored program.
type Entry struct {
	Name    string
	Hash    string
	Size    int
	Created time.Time
}

// Store is a program cache keyed by name.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS programs (
		name TEXT PRIMARY KEY,
		hash TEXT NOT NULL,
		data BLOB NOT NULL,
		created INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Path returns the database file.
func (s *Store) Path() string { return s.path }

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Hash returns the content hash Put records for data.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Put stores program under name, replacing any previous version, and
// returns its content hash.
func (s *Store) Put(name string, program []byte) (string, error) {
	if name == "" {
		return "", errors.New("program name is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	hash := Hash(program)
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO programs (name, hash, data, created) VALUES (?, ?, ?, ?)",
		name, hash, program, time.Now().Unix(),
	)
	if err != nil {
		return "", fmt.Errorf("saving program %s: %w", name, err)
	}
	log.Debugf("stored %s (%d bytes, %s)", name, len(program), hash[:12])
	return hash, nil
}

// Get retrieves a program and verifies it against its recorded hash.
func (s *Store) Get(name string) ([]byte, error) {
	var (
		hash string
		data []byte
	)
	err := s.db.QueryRow("SELECT hash, data FROM programs WHERE name = ?", name).Scan(&hash, &data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProgramNotFound
		}
		return nil, fmt.Errorf("querying program %s: %w", name, err)
	}
	if got := Hash(data); got != hash {
		return nil, fmt.Errorf("program %s is corrupt: hash %s, recorded %s", name, got, hash)
	}
	return data, nil
}

// List returns every stored program ordered by name.
func (s *Store) List() ([]Entry, error) {
	rows, err := s.db.Query("SELECT name, hash, length(data), created FROM programs ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("listing programs: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e       Entry
			created int64
		)
		if err := rows.Scan(&e.Name, &e.Hash, &e.Size, &created); err != nil {
			return nil, fmt.Errorf("scanning program row: %w", err)
		}
		e.Created = time.Unix(created, 0)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing programs: %w", err)
	}
	return entries, nil
}

// Delete removes a program.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec("DELETE FROM programs WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("deleting program %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting program %s: %w", name, err)
	}
	if n == 0 {
		return ErrProgramNotFound
	}
	return nil
}
