package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"chrysalis/internal/config"
	"chrysalis/internal/core"
	"chrysalis/internal/logging"
	"chrysalis/internal/types"
)

// SQLite driver names.
const (
	DriverMattn   = config.DriverMattn   // github.com/mattn/go-sqlite3 (cgo)
	DriverModernc = config.DriverModernc // modernc.org/sqlite (pure Go)
)

// RoundEntry is one row of the round log.
type RoundEntry struct {
	Round      int             `json:"round"`
	Result     types.Candidate `json:"result"`
	RecordedAt time.Time       `json:"recorded_at"`
}

// SQLiteStore keeps the snapshot in a single-row table and appends every
// round's result to a log table.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	path   string
	driver string
}

// NewSQLiteStore opens (creating if needed) the database at path using the
// named driver. An empty driver selects DriverMattn.
func NewSQLiteStore(path, driver string) (*SQLiteStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewSQLiteStore")
	defer timer.Stop()

	if driver == "" {
		driver = DriverMattn
	}
	if driver != DriverMattn && driver != DriverModernc {
		return nil, fmt.Errorf("unsupported sqlite driver %q (valid: %s, %s)", driver, DriverMattn, DriverModernc)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}

	s := &SQLiteStore{db: db, path: path, driver: driver}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	logging.Store("Opened sqlite store at %s (driver %s)", path, driver)
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		engine_id TEXT NOT NULL DEFAULT '',
		round_count INTEGER NOT NULL DEFAULT 0,
		snapshot_json TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS rounds (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		round INTEGER NOT NULL,
		result_json TEXT NOT NULL,
		recorded_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_rounds_round ON rounds(round);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string { return s.path }

// Driver returns the database/sql driver name in use.
func (s *SQLiteStore) Driver() string { return s.driver }

// Load returns the stored snapshot, or (nil, nil) if none was saved.
func (s *SQLiteStore) Load() (*core.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var data string
	err := s.db.QueryRow("SELECT snapshot_json FROM snapshots WHERE id = 1").Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	var snap core.Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	return &snap, nil
}

// Save upserts the snapshot row.
func (s *SQLiteStore) Save(snap *core.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("nil snapshot")
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(`
		INSERT INTO snapshots (id, engine_id, round_count, snapshot_json, updated_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			engine_id = excluded.engine_id,
			round_count = excluded.round_count,
			snapshot_json = excluded.snapshot_json,
			updated_at = excluded.updated_at
	`, snap.EngineID, snap.RoundCount, string(data), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	logging.StoreDebug("Saved snapshot (round %d) to %s", snap.RoundCount, s.path)
	return nil
}

// RecordRound appends a round result to the log.
func (s *SQLiteStore) RecordRound(round int, result types.Candidate) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec("INSERT INTO rounds (round, result_json, recorded_at) VALUES (?, ?, ?)",
		round, string(data), time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to record round: %w", err)
	}
	return nil
}

// Rounds returns the round log in insertion order.
func (s *SQLiteStore) Rounds() ([]RoundEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query("SELECT round, result_json, recorded_at FROM rounds ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query rounds: %w", err)
	}
	defer rows.Close()

	var entries []RoundEntry
	for rows.Next() {
		var (
			entry    RoundEntry
			data     string
			recorded int64
		)
		if err := rows.Scan(&entry.Round, &data, &recorded); err != nil {
			return nil, fmt.Errorf("failed to scan round: %w", err)
		}
		if err := json.Unmarshal([]byte(data), &entry.Result); err != nil {
			return nil, fmt.Errorf("failed to parse round %d result: %w", entry.Round, err)
		}
		entry.RecordedAt = time.Unix(0, recorded)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Reset clears both tables.
func (s *SQLiteStore) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("DELETE FROM snapshots; DELETE FROM rounds;"); err != nil {
		return fmt.Errorf("failed to reset store: %w", err)
	}
	logging.Store("Reset sqlite store %s", s.path)
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
