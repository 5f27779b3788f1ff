package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chrysalis/internal/config"
	"chrysalis/internal/core"
	"chrysalis/internal/types"
)

// backends returns a fresh store per supported backend.
func backends(t *testing.T) map[string]func() Store {
	t.Helper()
	dir := t.TempDir()
	return map[string]func() Store{
		"memory": func() Store { return NewMemoryStore() },
		"file": func() Store {
			return NewFileStore(filepath.Join(dir, "file", "state.json"))
		},
		"sqlite3": func() Store {
			s, err := NewSQLiteStore(filepath.Join(dir, "mattn", "state.db"), DriverMattn)
			require.NoError(t, err)
			return s
		},
		"sqlite": func() Store {
			s, err := NewSQLiteStore(filepath.Join(dir, "modernc", "state.db"), DriverModernc)
			require.NoError(t, err)
			return s
		},
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(config.StoreConfig{Backend: config.BackendNone})
	require.NoError(t, err)
	assert.Nil(t, s)

	s, err = Open(config.StoreConfig{Backend: config.BackendMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = Open(config.StoreConfig{Backend: config.BackendFile, Path: filepath.Join(dir, "s.json")})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	s, err = Open(config.StoreConfig{Backend: config.BackendSQLite, Path: filepath.Join(dir, "s.db"), Driver: config.DriverModernc})
	require.NoError(t, err)
	require.IsType(t, &SQLiteStore{}, s)
	assert.Equal(t, DriverModernc, s.(*SQLiteStore).Driver())
	require.NoError(t, s.Close())

	_, err = Open(config.StoreConfig{Backend: "tape"})
	assert.ErrorIs(t, err, ErrUnknownBackend)

	_, err = Open(config.StoreConfig{Backend: config.BackendFile})
	assert.Error(t, err)

	_, err = NewSQLiteStore(filepath.Join(dir, "x.db"), "postgres")
	assert.ErrorContains(t, err, "unsupported sqlite driver")
}

func TestStores_EmptyLoad(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open()
			defer s.Close()
			snap, err := s.Load()
			require.NoError(t, err)
			assert.Nil(t, snap)
		})
	}
}

func TestStores_SnapshotRoundTrip(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open()
			defer s.Close()

			state := types.MustFromAny(map[string]interface{}{"x": 42})
			require.NoError(t, s.Save(&core.Snapshot{
				State:                state,
				RoundCount:           1,
				VocabularyExpansions: map[string]types.Candidate{},
			}))

			e := core.NewEngine(core.WithStore(s))
			assert.True(t, e.State().Equal(state), "state %s", e.State())
			assert.Equal(t, 1, e.RoundCount())
			assert.Empty(t, e.VocabularyExpansions())
			assert.NoError(t, e.LastPersistError())
		})
	}
}

func TestStores_WholeFloatStateKeepsKind(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open()
			defer s.Close()

			first := core.NewEngine(core.WithStore(s))
			first.Cycle([]types.Candidate{types.EmptyStruct().With("x", types.Float(2.0))})
			require.NoError(t, first.LastPersistError())

			second := core.NewEngine(core.WithStore(s))
			x, ok := second.State().Get("x")
			require.True(t, ok)
			assert.Equal(t, types.KindFloat, x.Kind(), "state %s", second.State())
			_, isInt := x.AsInt()
			assert.False(t, isInt)
		})
	}
}

func TestStores_EnginePersistsAcrossSessions(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open()
			defer s.Close()

			first := core.NewEngine(core.WithStore(s))
			first.Declare("is_struct", core.Check(types.Candidate.IsStruct), core.LayerMental, "")
			obs := first.Cycle([]types.Candidate{types.Int(3), types.MustFromAny(map[string]interface{}{"a": 1, "b": 2})})
			require.True(t, obs.Result.IsStruct())
			key, ok := first.Perturb()
			require.True(t, ok)
			assert.Equal(t, "a_b", key)

			second := core.NewEngine(core.WithStore(s))
			assert.Equal(t, first.ID(), second.ID())
			assert.True(t, first.Birth().Equal(second.Birth()))
			assert.True(t, second.State().Equal(obs.Result))
			assert.Equal(t, 1, second.RoundCount())
			assert.Contains(t, second.VocabularyExpansions(), "a_b")
			assert.Empty(t, second.Predicates(), "external predicates are re-declared by the caller")
		})
	}
}

func TestStores_Reset(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open()
			defer s.Close()

			require.NoError(t, s.Save(&core.Snapshot{State: types.EmptyStruct(), RoundCount: 3}))
			require.NoError(t, s.Reset())
			snap, err := s.Load()
			require.NoError(t, err)
			assert.Nil(t, snap)

			require.NoError(t, s.Reset(), "reset of an empty store is fine")
		})
	}
}

func TestStores_RoundLog(t *testing.T) {
	dir := t.TempDir()
	sq, err := NewSQLiteStore(filepath.Join(dir, "rounds.db"), DriverModernc)
	require.NoError(t, err)
	defer sq.Close()

	for name, s := range map[string]interface {
		Store
		Rounds() ([]RoundEntry, error)
	}{"sqlite": sq, "memory": NewMemoryStore()} {
		t.Run(name, func(t *testing.T) {
			e := core.NewEngine(core.WithStore(s))
			e.Cycle([]types.Candidate{types.EmptyStruct().With("k", types.Int(1))})
			e.Cycle(nil)

			rounds, err := s.Rounds()
			require.NoError(t, err)
			require.Len(t, rounds, 2)
			assert.Equal(t, 1, rounds[0].Round)
			assert.True(t, rounds[0].Result.Equal(types.EmptyStruct().With("k", types.Int(1))))
			assert.Equal(t, 2, rounds[1].Round)
			assert.True(t, rounds[1].Result.IsNone())

			require.NoError(t, s.Reset())
			rounds, err = s.Rounds()
			require.NoError(t, err)
			assert.Empty(t, rounds)
		})
	}
}

func TestSQLiteStore_RoundTimestamps(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "ts.db"), DriverMattn)
	require.NoError(t, err)
	defer s.Close()

	before := time.Now()
	require.NoError(t, s.RecordRound(7, types.String("seven")))
	rounds, err := s.Rounds()
	require.NoError(t, err)
	require.Len(t, rounds, 1)
	assert.False(t, rounds[0].RecordedAt.Before(before.Add(-time.Second)))
}

func TestSQLiteStore_ReopenKeepsSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	s, err := NewSQLiteStore(path, DriverMattn)
	require.NoError(t, err)
	require.NoError(t, s.Save(&core.Snapshot{EngineID: "abc", State: types.Int(1), RoundCount: 1}))
	require.NoError(t, s.Save(&core.Snapshot{EngineID: "abc", State: types.Int(2), RoundCount: 2}))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(path, DriverMattn)
	require.NoError(t, err)
	defer s.Close()
	snap, err := s.Load()
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "abc", snap.EngineID)
	assert.Equal(t, 2, snap.RoundCount)
	assert.True(t, snap.State.Equal(types.Int(2)))
}

func TestFileStore_EmptyAndCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	require.NoError(t, os.WriteFile(path, []byte("  \n"), 0644))
	s := NewFileStore(path)
	snap, err := s.Load()
	require.NoError(t, err)
	assert.Nil(t, snap)

	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))
	_, err = s.Load()
	assert.Error(t, err)

	e := core.NewEngine(core.WithStore(s))
	assert.Error(t, e.LastPersistError())
	assert.Equal(t, 0, e.RoundCount())
	assert.True(t, e.State().IsNone())
}

func TestFileStore_AtomicWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(filepath.Join(dir, "nested", "state.json"))
	for i := 1; i <= 3; i++ {
		require.NoError(t, s.Save(&core.Snapshot{State: types.Int(int64(i)), RoundCount: i}))
	}

	entries, err := os.ReadDir(filepath.Join(dir, "nested"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "state.json", entries[0].Name())

	snap, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, 3, snap.RoundCount)
	assert.Equal(t, filepath.Join(dir, "nested", "state.json"), s.Path())
}

func TestMemoryStore_CopiesSnapshots(t *testing.T) {
	s := NewMemoryStore()
	snap := &core.Snapshot{VocabularyExpansions: map[string]types.Candidate{"a": types.Bool(true)}}
	require.NoError(t, s.Save(snap))
	snap.VocabularyExpansions["b"] = types.Bool(true)

	loaded, err := s.Load()
	require.NoError(t, err)
	assert.Len(t, loaded.VocabularyExpansions, 1)

	loaded.VocabularyExpansions["c"] = types.Bool(true)
	again, err := s.Load()
	require.NoError(t, err)
	assert.Len(t, again.VocabularyExpansions, 1)
}
