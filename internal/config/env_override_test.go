package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CHRYSALIS_STORE", "CHRYSALIS_STORE_PATH", "CHRYSALIS_SQLITE_DRIVER",
		"CHRYSALIS_STEPS", "CHRYSALIS_PREDICATES",
	} {
		t.Setenv(key, "")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Run("store settings", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("CHRYSALIS_STORE", BackendSQLite)
		t.Setenv("CHRYSALIS_STORE_PATH", "/tmp/state.db")
		t.Setenv("CHRYSALIS_SQLITE_DRIVER", DriverModernc)

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, BackendSQLite, cfg.Store.Backend)
		assert.Equal(t, "/tmp/state.db", cfg.Store.Path)
		assert.Equal(t, DriverModernc, cfg.Store.Driver)
	})

	t.Run("steps and predicates", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("CHRYSALIS_STEPS", "25")
		t.Setenv("CHRYSALIS_PREDICATES", "catalog.yaml")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, 25, cfg.Engine.Steps)
		assert.Equal(t, "catalog.yaml", cfg.Engine.PredicatesPath)
	})

	t.Run("non-numeric steps are ignored", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("CHRYSALIS_STEPS", "many")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, 10, cfg.Engine.Steps)
	})

	t.Run("empty values leave config untouched", func(t *testing.T) {
		clearEnv(t)
		cfg := &Config{}
		cfg.applyEnvOverrides()
		assert.Equal(t, &Config{}, cfg)
	})
}

func TestEnvOverrides_AppliedByLoad(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHRYSALIS_STORE", BackendMemory)

	t.Run("missing file", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
		require.NoError(t, err)
		assert.Equal(t, BackendMemory, cfg.Store.Backend)
	})

	t.Run("env wins over file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("store:\n  backend: file\n"), 0644))
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, BackendMemory, cfg.Store.Backend)
	})
}
