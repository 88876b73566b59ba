package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/ecervera/temario/internal/errors"
)

// SQLiteStore implements TopicStore on a single SQLite database. Topics are
// stored as JSON documents in one row each, so a per-topic UPDATE inside a
// transaction gives the required atomic read-modify-write unit. WAL mode
// keeps concurrent readers off the writers' backs.
type SQLiteStore struct {
	db         *sql.DB
	path       string
	generation atomic.Uint64
	closed     atomic.Bool

	// locks serializes Mutate sections per topic id.
	locks sync.Map // string -> *sync.Mutex
}

// Verify interface implementation at compile time.
var _ TopicStore = (*SQLiteStore)(nil)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS topics (
    id  TEXT PRIMARY KEY,
    doc TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS state (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);`

// NewSQLiteStore opens (or creates) the topic database at path.
// An empty path opens an in-memory database for testing.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := ":memory:"
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.StoreError(fmt.Sprintf("creating directory %s", dir), err)
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.StoreError("opening topic database", err)
	}

	// The per-topic lock map already serializes writers; a single
	// connection avoids SQLITE_BUSY on the in-memory DSN as well.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, errors.StoreError("creating schema", err)
	}

	return &SQLiteStore{db: db, path: path}, nil
}

// Get returns a snapshot of one topic.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Topic, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM topics WHERE id = ?`, id).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound(id)
	}
	if err != nil {
		return nil, errors.StoreError("reading topic", err)
	}
	return decodeTopic(id, doc)
}

// All returns snapshots of every topic.
func (s *SQLiteStore) All(ctx context.Context) ([]*Topic, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, doc FROM topics`)
	if err != nil {
		return nil, errors.StoreError("listing topics", err)
	}
	defer rows.Close()

	var topics []*Topic
	for rows.Next() {
		var id, doc string
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, errors.StoreError("scanning topic row", err)
		}
		t, err := decodeTopic(id, doc)
		if err != nil {
			return nil, err
		}
		topics = append(topics, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StoreError("iterating topics", err)
	}
	return topics, nil
}

// Mutate runs fn under the topic's lock and persists the result atomically.
func (s *SQLiteStore) Mutate(ctx context.Context, id string, fn MutateFunc) error {
	mu := s.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	var current *Topic
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM topics WHERE id = ?`, id).Scan(&doc)
	switch {
	case err == sql.ErrNoRows:
		current = nil
	case err != nil:
		return errors.StoreError("reading topic", err)
	default:
		if current, err = decodeTopic(id, doc); err != nil {
			return err
		}
	}

	updated, err := fn(current)
	if err != nil {
		return err
	}
	if updated == nil {
		// fn declined to write.
		return nil
	}

	data, err := json.Marshal(updated)
	if err != nil {
		return errors.StoreError("encoding topic", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO topics (id, doc) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET doc = excluded.doc`, id, string(data))
	if err != nil {
		return errors.StoreError("writing topic", err)
	}

	s.generation.Add(1)
	return nil
}

// Delete removes one topic.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	mu := s.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM topics WHERE id = ?`, id)
	if err != nil {
		return errors.StoreError("deleting topic", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NotFound(id)
	}
	s.generation.Add(1)
	return nil
}

// Reset drops every topic and all state.
func (s *SQLiteStore) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM topics`); err != nil {
		return errors.StoreError("resetting topics", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM state`); err != nil {
		return errors.StoreError("resetting state", err)
	}
	s.generation.Add(1)
	return nil
}

// GetState reads a state value; unset keys yield an empty string.
func (s *SQLiteStore) GetState(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", errors.StoreError("reading state", err)
	}
	return value, nil
}

// SetState writes a state value.
func (s *SQLiteStore) SetState(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO state (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return errors.StoreError("writing state", err)
	}
	s.generation.Add(1)
	return nil
}

// Generation returns the write counter used to key cached views.
func (s *SQLiteStore) Generation() uint64 {
	return s.generation.Load()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) lockFor(id string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func decodeTopic(id, doc string) (*Topic, error) {
	var t Topic
	if err := json.Unmarshal([]byte(doc), &t); err != nil {
		return nil, errors.New(errors.ErrCodeStoreCorrupt,
			fmt.Sprintf("topic %q document is corrupt", id), err)
	}
	return &t, nil
}
