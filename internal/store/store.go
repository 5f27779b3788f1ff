// Package store provides snapshot stores for the engine: a JSON file, a
// SQLite database and an in-process map. Every store satisfies
// core.SnapshotStore; the SQLite store also keeps a per-round result log.
package store

import (
	"errors"
	"fmt"

	"chrysalis/internal/config"
	"chrysalis/internal/core"
	"chrysalis/internal/logging"
)

// ErrUnknownBackend is returned by Open for an unrecognized backend name.
var ErrUnknownBackend = errors.New("unknown store backend")

// Store is a snapshot store that can also be cleared and released.
type Store interface {
	core.SnapshotStore
	// Reset removes any persisted snapshot and round log.
	Reset() error
	Close() error
}

// Open builds the store selected by cfg. The "none" backend returns a nil
// Store and a nil error; the engine then runs unbound.
func Open(cfg config.StoreConfig) (Store, error) {
	logging.StoreDebug("Opening store: backend=%s path=%s driver=%s", cfg.Backend, cfg.Path, cfg.Driver)

	switch cfg.Backend {
	case config.BackendNone:
		return nil, nil
	case config.BackendMemory:
		return NewMemoryStore(), nil
	case config.BackendFile:
		if cfg.Path == "" {
			return nil, fmt.Errorf("file store requires a path")
		}
		return NewFileStore(cfg.Path), nil
	case config.BackendSQLite:
		if cfg.Path == "" {
			return nil, fmt.Errorf("sqlite store requires a path")
		}
		s, err := NewSQLiteStore(cfg.Path, cfg.Driver)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}
