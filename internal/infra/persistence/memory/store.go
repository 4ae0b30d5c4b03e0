// Package memory provides an in-memory session store used for tests,
// ephemeral servers and as the read cache of the SQL backends.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"labbench/pkg/domain"
)

// Compile-time contract assertion.
var _ domain.SessionStore = (*Store)(nil)

// ErrMissingID is returned when saving a record without an id.
var ErrMissingID = errors.New("session id required")

// Store keeps session records in a map guarded by a RWMutex.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]domain.SessionRecord
	nowFn    func() time.Time
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]domain.SessionRecord),
		nowFn:    func() time.Time { return time.Now().UTC() },
	}
}

// NowFunc exposes the clock used to stamp records.
func (s *Store) NowFunc() func() time.Time { return s.nowFn }

// SetNowFunc overrides the clock. Intended for tests.
func (s *Store) SetNowFunc(fn func() time.Time) {
	if fn != nil {
		s.nowFn = fn
	}
}

// Stamp validates a record and fills UpdatedAt when unset. SQL backends call it
// before writing so the persisted row and the cached copy agree.
func (s *Store) Stamp(record domain.SessionRecord) (domain.SessionRecord, error) {
	if record.ID == "" {
		return domain.SessionRecord{}, ErrMissingID
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = s.nowFn()
	}
	record.Snapshot = record.Snapshot.Clone()
	return record, nil
}

// Save inserts or replaces a record.
func (s *Store) Save(ctx context.Context, record domain.SessionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stamped, err := s.Stamp(record)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[stamped.ID] = stamped
	return nil
}

// Load returns a deep copy of the record.
func (s *Store) Load(ctx context.Context, id string) (domain.SessionRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.SessionRecord{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.sessions[id]
	if !ok {
		return domain.SessionRecord{}, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, id)
	}
	rec.Snapshot = rec.Snapshot.Clone()
	return rec, nil
}

// Delete removes a record and reports whether it existed.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return false, nil
	}
	delete(s.sessions, id)
	return true, nil
}

// List returns summaries, most recently updated first.
func (s *Store) List(ctx context.Context) ([]domain.SessionSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.SessionSummary, 0, len(s.sessions))
	for _, rec := range s.sessions {
		out = append(out, domain.SessionSummary{
			ID:         rec.ID,
			Experiment: rec.Experiment,
			Step:       rec.Snapshot.Step,
			Complete:   rec.Snapshot.Complete,
			UpdatedAt:  rec.UpdatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

// ImportRecords replaces the contents with records, typically rows hydrated
// from a database.
func (s *Store) ImportRecords(records []domain.SessionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]domain.SessionRecord, len(records))
	for _, rec := range records {
		rec.Snapshot = rec.Snapshot.Clone()
		s.sessions[rec.ID] = rec
	}
}

// ExportRecords returns deep copies of every record ordered by id.
func (s *Store) ExportRecords() []domain.SessionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.SessionRecord, 0, len(s.sessions))
	for _, rec := range s.sessions {
		rec.Snapshot = rec.Snapshot.Clone()
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
