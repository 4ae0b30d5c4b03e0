// Package sqlite persists session records to an embedded SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"labbench/internal/infra/persistence/memory"
	"labbench/pkg/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// Compile-time contract assertion.
var _ domain.SessionStore = (*Store)(nil)

const defaultPath = "labbench.db"

// Store hydrates the in-memory store from SQLite on open and writes every
// change through to the sessions table.
type Store struct {
	*memory.Store
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewStore opens (creating when needed) the database at path.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		experiment TEXT NOT NULL,
		payload BLOB NOT NULL,
		updated_at TEXT NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create sessions table: %w", err)
	}
	s := &Store{Store: memory.NewStore(), db: db, path: path}
	if err := s.load(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) load(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT id, experiment, payload, updated_at FROM sessions`)
	if err != nil {
		return fmt.Errorf("select sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []domain.SessionRecord
	for rows.Next() {
		var (
			rec     domain.SessionRecord
			payload []byte
			updated string
		)
		if err := rows.Scan(&rec.ID, &rec.Experiment, &payload, &updated); err != nil {
			return fmt.Errorf("scan session: %w", err)
		}
		if err := json.Unmarshal(payload, &rec.Snapshot); err != nil {
			return fmt.Errorf("decode session %s: %w", rec.ID, err)
		}
		if rec.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
			return fmt.Errorf("decode session %s timestamp: %w", rec.ID, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate sessions: %w", err)
	}
	s.ImportRecords(records)
	return nil
}

// Save upserts the record, then updates the cache.
func (s *Store) Save(ctx context.Context, record domain.SessionRecord) error {
	stamped, err := s.Stamp(record)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(stamped.Snapshot)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", stamped.ID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions(id,experiment,payload,updated_at) VALUES(?,?,?,?) ON CONFLICT(id) DO UPDATE SET experiment=excluded.experiment, payload=excluded.payload, updated_at=excluded.updated_at`,
		stamped.ID, stamped.Experiment, payload, stamped.UpdatedAt.UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("upsert session %s: %w", stamped.ID, err)
	}
	return s.Store.Save(ctx, stamped)
}

// Delete removes the row and the cached record.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return false, fmt.Errorf("delete session %s: %w", id, err)
	}
	return s.Store.Delete(ctx, id)
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
