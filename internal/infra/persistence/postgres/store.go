// Package postgres persists session records to PostgreSQL through the pgx
// database/sql driver, caching them in the in-memory store.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"labbench/internal/infra/persistence/memory"
	"labbench/pkg/domain"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

// Compile-time contract assertion.
var _ domain.SessionStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/labbench?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store writes sessions through to Postgres and serves reads from memory.
type Store struct {
	*memory.Store
	db *sql.DB
	mu sync.Mutex
}

// NewStore opens a store using dsn (falling back to a local default), ensures
// the sessions table exists and hydrates the cache.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensureSessionsTable(ctx, db); err != nil {
		return nil, err
	}
	records, err := loadSessions(ctx, db)
	if err != nil {
		return nil, err
	}
	mem := memory.NewStore()
	mem.ImportRecords(records)
	return &Store{Store: mem, db: db}, nil
}

func ensureSessionsTable(ctx context.Context, db *sql.DB) error {
	ddl := `CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		experiment TEXT NOT NULL,
		payload JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure sessions table: %w", err)
	}
	return nil
}

func loadSessions(ctx context.Context, db *sql.DB) ([]domain.SessionRecord, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, experiment, payload, updated_at FROM sessions`)
	if err != nil {
		return nil, fmt.Errorf("select sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []domain.SessionRecord
	for rows.Next() {
		var (
			rec     domain.SessionRecord
			payload []byte
		)
		if err := rows.Scan(&rec.ID, &rec.Experiment, &payload, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &rec.Snapshot); err != nil {
				return nil, fmt.Errorf("decode session %s: %w", rec.ID, err)
			}
		}
		rec.UpdatedAt = rec.UpdatedAt.UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return records, nil
}

// Save upserts the record inside a transaction, then updates the cache.
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
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sessions(id,experiment,payload,updated_at) VALUES($1,$2,$3,$4) ON CONFLICT(id) DO UPDATE SET experiment=EXCLUDED.experiment, payload=EXCLUDED.payload, updated_at=EXCLUDED.updated_at`,
		stamped.ID, stamped.Experiment, payload, stamped.UpdatedAt.UTC().Truncate(time.Microsecond),
	); err != nil {
		return fmt.Errorf("upsert session %s: %w", stamped.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	stamped.UpdatedAt = stamped.UpdatedAt.UTC().Truncate(time.Microsecond)
	return s.Store.Save(ctx, stamped)
}

// Delete removes the row and the cached record.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return false, fmt.Errorf("delete session %s: %w", id, err)
	}
	return s.Store.Delete(ctx, id)
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
