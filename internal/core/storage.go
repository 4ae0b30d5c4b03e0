package core

import (
	"context"
	"fmt"

	"labbench/internal/infra/persistence/memory"
	"labbench/internal/infra/persistence/postgres"
	"labbench/internal/infra/persistence/sqlite"
	"labbench/pkg/domain"
)

// StorageDriver identifies a session persistence backend.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// SessionStore is re-exported for callers that only import core.
type SessionStore = domain.SessionStore

// StorageConfig selects and parameterises the session backend.
type StorageConfig struct {
	Driver      StorageDriver `env:"STORAGE_DRIVER" envDefault:"sqlite"`
	SQLitePath  string        `env:"SQLITE_PATH" envDefault:"labbench.db"`
	PostgresDSN string        `env:"POSTGRES_DSN"`
}

// OpenSessionStore opens the configured backend. An empty driver selects sqlite.
func OpenSessionStore(ctx context.Context, cfg StorageConfig) (SessionStore, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = StorageSQLite
	}
	switch driver {
	case StorageMemory:
		return memory.NewStore(), nil
	case StorageSQLite:
		return sqlite.NewStore(cfg.SQLitePath)
	case StoragePostgres:
		return postgres.NewStore(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}

// SaveSession exports the engine state into store under sessionID.
func SaveSession(ctx context.Context, store SessionStore, sessionID string, engine *Engine) error {
	return store.Save(ctx, domain.SessionRecord{
		ID:         sessionID,
		Experiment: engine.Config().ID,
		Snapshot:   engine.Export(),
		UpdatedAt:  engine.opts.clock.Now(),
	})
}

// ResumeSession loads sessionID from store into engine. The record must belong
// to the engine's experiment.
func ResumeSession(ctx context.Context, store SessionStore, sessionID string, engine *Engine) (State, error) {
	rec, err := store.Load(ctx, sessionID)
	if err != nil {
		return engine.View(), err
	}
	if rec.Experiment != engine.Config().ID {
		return engine.View(), fmt.Errorf("session %s belongs to experiment %s, not %s", sessionID, rec.Experiment, engine.Config().ID)
	}
	return engine.Restore(ctx, rec.Snapshot)
}
