package store

import (
	"sync"

	"chrysalis/internal/core"
	"chrysalis/internal/types"
)

// MemoryStore holds the snapshot in process. Snapshots are copied on the way
// in and out so callers never share maps with the store.
type MemoryStore struct {
	mu     sync.RWMutex
	snap   *core.Snapshot
	rounds []RoundEntry
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns a copy of the last saved snapshot, or nil.
func (s *MemoryStore) Load() (*core.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Clone(), nil
}

// Save keeps a copy of snap.
func (s *MemoryStore) Save(snap *core.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap.Clone()
	return nil
}

// RecordRound appends to the in-memory round log.
func (s *MemoryStore) RecordRound(round int, result types.Candidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rounds = append(s.rounds, RoundEntry{Round: round, Result: result})
	return nil
}

// Rounds returns the round log in insertion order.
func (s *MemoryStore) Rounds() ([]RoundEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]RoundEntry(nil), s.rounds...), nil
}

// Reset drops the snapshot and round log.
func (s *MemoryStore) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = nil
	s.rounds = nil
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
