// Package store keeps built module images in a SQLite database, keyed by
// module name, alongside their target and content hash.
package store

import (
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

	"github.com/chazu/gear/module"
	"github.com/chazu/gear/status"
)

var log = commonlog.GetLogger("gear.store")

// ErrModuleNotFound indicates the requested module is not in the store.
var ErrModuleNotFound = errors.New("module not found")

// Entry describes one stored module.
type Entry struct {
	Name    string
	Target  module.Target
	Hash    module.Hash
	Size    int
	Updated time.Time
}

// Store is a module store backed by one SQLite database file.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Open opens or creates the store at path. ":memory:" opens a private
// in-memory store.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating store dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// An in-memory database exists per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS modules (
		name    TEXT PRIMARY KEY,
		target  TEXT NOT NULL,
		hash    TEXT NOT NULL,
		image   BLOB NOT NULL,
		updated INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	log.Debugf("opened module store %s", path)
	return &Store{db: db, path: path}, nil
}

// Path returns the database path the store was opened with.
func (s *Store) Path() string { return s.path }

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Put stores an encoded module image under the module's own name,
// replacing any previous image of that name.
func (s *Store) Put(image []byte) (Entry, error) {
	m, err := module.Decode(image)
	if err != nil {
		return Entry{}, status.Errorf(status.InvalidModule, "store: %w", err)
	}
	e := Entry{
		Name:    m.Name,
		Target:  m.Target,
		Hash:    module.HashImage(image),
		Size:    len(image),
		Updated: time.Now().UTC().Truncate(time.Second),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(
		`INSERT INTO modules (name, target, hash, image, updated) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET target = excluded.target, hash = excluded.hash,
			image = excluded.image, updated = excluded.updated`,
		e.Name, e.Target.String(), e.Hash.String(), image, e.Updated.Unix(),
	)
	if err != nil {
		return Entry{}, fmt.Errorf("saving module: %w", err)
	}
	log.Infof("stored %s module %s (%s)", e.Target, e.Name, e.Hash)
	return e, nil
}

// PutModule encodes m and stores it.
func (s *Store) PutModule(m *module.Module) (Entry, error) {
	data, err := module.Encode(m)
	if err != nil {
		return Entry{}, status.Errorf(status.InvalidModule, "store: %w", err)
	}
	return s.Put(data)
}

// Get returns the image stored under name. The image is checked against its
// recorded hash.
func (s *Store) Get(name string) ([]byte, Entry, error) {
	var (
		image   []byte
		target  string
		hash    string
		updated int64
	)
	err := s.db.QueryRow("SELECT image, target, hash, updated FROM modules WHERE name = ?", name).
		Scan(&image, &target, &hash, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, Entry{}, fmt.Errorf("%w: %s", ErrModuleNotFound, name)
		}
		return nil, Entry{}, fmt.Errorf("querying module: %w", err)
	}

	e, err := entry(name, target, hash, len(image), updated)
	if err != nil {
		return nil, Entry{}, err
	}
	if module.HashImage(image) != e.Hash {
		return nil, Entry{}, status.Errorf(status.InvalidModule, "store: image of %s does not match its hash", name)
	}
	return image, e, nil
}

// Module returns the decoded module stored under name.
func (s *Store) Module(name string) (*module.Module, error) {
	image, _, err := s.Get(name)
	if err != nil {
		return nil, err
	}
	m, err := module.Decode(image)
	if err != nil {
		return nil, status.Errorf(status.InvalidModule, "store: %w", err)
	}
	return m, nil
}

// Delete removes the module stored under name. Deleting a missing module
// fails with ErrModuleNotFound.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec("DELETE FROM modules WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("deleting module: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrModuleNotFound, name)
	}
	return nil
}

// List returns every stored module, sorted by name.
func (s *Store) List() ([]Entry, error) {
	return s.query("SELECT name, target, hash, length(image), updated FROM modules ORDER BY name")
}

// FindByTarget returns the modules built for target, sorted by name.
func (s *Store) FindByTarget(target module.Target) ([]Entry, error) {
	return s.query("SELECT name, target, hash, length(image), updated FROM modules WHERE target = ? ORDER BY name",
		target.String())
}

// FindByHash returns the names of modules whose image has hash h.
func (s *Store) FindByHash(h module.Hash) ([]string, error) {
	rows, err := s.db.Query("SELECT name FROM modules WHERE hash = ? ORDER BY name", h.String())
	if err != nil {
		return nil, fmt.Errorf("querying by hash: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *Store) query(q string, args ...interface{}) ([]Entry, error) {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying modules: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			name, target, hash string
			size               int
			updated            int64
		)
		if err := rows.Scan(&name, &target, &hash, &size, &updated); err != nil {
			return nil, fmt.Errorf("scanning module: %w", err)
		}
		e, err := entry(name, target, hash, size, updated)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func entry(name, target, hash string, size int, updated int64) (Entry, error) {
	t, err := module.ParseTarget(target)
	if err != nil {
		return Entry{}, status.Errorf(status.InvalidModule, "store: %s: %w", name, err)
	}
	e := Entry{Name: name, Target: t, Size: size, Updated: time.Unix(updated, 0).UTC()}
	raw, err := hex.DecodeString(hash)
	if err != nil || len(raw) != len(e.Hash) {
		return Entry{}, status.Errorf(status.InvalidModule, "store: %s: malformed hash %q", name, hash)
	}
	copy(e.Hash[:], raw)
	return e, nil
}
