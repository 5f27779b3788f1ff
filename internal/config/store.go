package config

import "fmt"

// Store backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
	BackendNone   = "none"
)

// SQLite drivers.
const (
	DriverMattn   = "sqlite3"
	DriverModernc = "sqlite"
)

// ValidBackends lists all supported store backends.
var ValidBackends = []string{BackendFile, BackendSQLite, BackendMemory, BackendNone}

// ValidDrivers lists all supported SQLite drivers.
var ValidDrivers = []string{DriverMattn, DriverModernc}

// StoreConfig configures snapshot persistence.
type StoreConfig struct {
	Backend string `yaml:"backend"` // file, sqlite, memory, none
	Path    string `yaml:"path"`
	Driver  string `yaml:"driver"` // sqlite3 (mattn), sqlite (modernc)
}

// Validate checks the backend, driver and path.
func (s StoreConfig) Validate() error {
	if !contains(ValidBackends, s.Backend) {
		return fmt.Errorf("invalid store backend: %s (valid: %v)", s.Backend, ValidBackends)
	}
	if s.Backend == BackendSQLite && s.Driver != "" && !contains(ValidDrivers, s.Driver) {
		return fmt.Errorf("invalid sqlite driver: %s (valid: %v)", s.Driver, ValidDrivers)
	}
	if (s.Backend == BackendFile || s.Backend == BackendSQLite) && s.Path == "" {
		return fmt.Errorf("store.path is required for backend %s", s.Backend)
	}
	return nil
}
