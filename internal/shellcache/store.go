package shellcache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	_ "modernc.org/sqlite"
)

// Entry is one cached response, keyed by origin-relative path.
type Entry struct {
	Path      string
	Status    int
	Header    http.Header
	Body      []byte
	Immutable bool
}

const storeSchema = `
CREATE TABLE IF NOT EXISTS entries (
    path TEXT PRIMARY KEY,
    status INTEGER NOT NULL,
    header TEXT NOT NULL,
    body BLOB NOT NULL,
    immutable INTEGER NOT NULL
);
`

// Store is one cache version backed by a single SQLite file. Different
// versions never share a file, so they cannot collide.
type Store struct {
	db      *sql.DB
	version int
	file    string
}

var storeFilePattern = regexp.MustCompile(`^shell-v(\d{6})\.db$`)

func storePath(dir string, version int) string {
	return filepath.Join(dir, fmt.Sprintf("shell-v%06d.db", version))
}

// OpenStore opens or creates the store file for version under dir.
func OpenStore(dir string, version int) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	file := storePath(dir, version)
	db, err := sql.Open("sqlite", file)
	if err != nil {
		return nil, fmt.Errorf("open cache store %s: %w", file, err)
	}
	if _, err := db.Exec(storeSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure cache schema: %w", err)
	}
	return &Store{db: db, version: version, file: file}, nil
}

// ListVersions returns the store versions present under dir, ascending.
func ListVersions(dir string) ([]int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read cache dir: %w", err)
	}
	var versions []int
	for _, e := range entries {
		match := storeFilePattern.FindStringSubmatch(e.Name())
		if match == nil {
			continue
		}
		v, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}
		versions = append(versions, v)
	}
	sort.Ints(versions)
	return versions, nil
}

// Version returns the monotonically increasing version suffix of this store.
func (s *Store) Version() int { return s.version }

// Get returns the cached entry for path, or nil when absent.
func (s *Store) Get(ctx context.Context, path string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT status, header, body, immutable FROM entries WHERE path = ?`, path)
	e := &Entry{Path: path}
	var headerJSON []byte
	var immutable int
	if err := row.Scan(&e.Status, &headerJSON, &e.Body, &immutable); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("read cache entry %s: %w", path, err)
	}
	if err := json.Unmarshal(headerJSON, &e.Header); err != nil {
		return nil, fmt.Errorf("decode cache header %s: %w", path, err)
	}
	e.Immutable = immutable != 0
	return e, nil
}

// Put stores an entry. An immutable entry is written once and never
// overwritten; a mutable entry replaces any previous revision.
func (s *Store) Put(ctx context.Context, e *Entry) error {
	headerJSON, err := json.Marshal(e.Header)
	if err != nil {
		return fmt.Errorf("encode cache header %s: %w", e.Path, err)
	}
	stmt := `INSERT OR REPLACE INTO entries (path, status, header, body, immutable) VALUES (?, ?, ?, ?, ?)`
	if e.Immutable {
		stmt = `INSERT OR IGNORE INTO entries (path, status, header, body, immutable) VALUES (?, ?, ?, ?, ?)`
	}
	immutable := 0
	if e.Immutable {
		immutable = 1
	}
	if _, err := s.db.ExecContext(ctx, stmt, e.Path, e.Status, headerJSON, e.Body, immutable); err != nil {
		return fmt.Errorf("write cache entry %s: %w", e.Path, err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Remove closes the store and deletes its file.
func (s *Store) Remove() error {
	_ = s.db.Close()
	if err := os.Remove(s.file); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove cache store %s: %w", s.file, err)
	}
	return nil
}
