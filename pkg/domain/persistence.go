package domain

import (
	"context"
	"errors"
	"time"
)

// ErrSessionNotFound is returned by session stores for unknown ids.
var ErrSessionNotFound = errors.New("session not found")

// SessionRecord is a saved point of progress for one learner session.
type SessionRecord struct {
	ID         string    `json:"id"`
	Experiment string    `json:"experiment"`
	Snapshot   Snapshot  `json:"snapshot"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// SessionSummary lists a saved session without its payload.
type SessionSummary struct {
	ID         string    `json:"id"`
	Experiment string    `json:"experiment"`
	Step       int       `json:"step"`
	Complete   bool      `json:"complete"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// SessionStore is a minimal abstraction over durable progress backends.
type SessionStore interface {
	Save(ctx context.Context, record SessionRecord) error
	Load(ctx context.Context, id string) (SessionRecord, error)
	Delete(ctx context.Context, id string) (bool, error)
	List(ctx context.Context) ([]SessionSummary, error)
	Close() error
}
