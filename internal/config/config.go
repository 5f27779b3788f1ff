package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// DataDir is the per-workspace directory holding config, logs and state.
const DataDir = ".chrysalis"

// Config holds all chrysalis configuration.
type Config struct {
	// Evolution settings
	Engine EngineConfig `yaml:"engine"`

	// Snapshot persistence
	Store StoreConfig `yaml:"store"`

	// Prometheus collectors
	Metrics MetricsConfig `yaml:"metrics"`

	// Category file logging
	Logging LoggingConfig `yaml:"logging"`
}

// MetricsConfig configures the Prometheus collectors.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			Steps:          10,
			PredicatesPath: filepath.Join(DataDir, "predicates.yaml"),
		},

		Store: StoreConfig{
			Backend: BackendFile,
			Path:    filepath.Join(DataDir, "state.json"),
			Driver:  DriverMattn,
		},

		Metrics: MetricsConfig{
			Enabled:   false,
			Namespace: "chrysalis",
		},

		Logging: LoggingConfig{
			Level:     "info",
			DebugMode: false,
		},
	}
}

// DefaultPath returns the config file location for a workspace.
func DefaultPath(workspace string) string {
	return filepath.Join(workspace, DataDir, "config.yaml")
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults. Environment overrides are applied in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if backend := os.Getenv("CHRYSALIS_STORE"); backend != "" {
		c.Store.Backend = backend
	}
	if path := os.Getenv("CHRYSALIS_STORE_PATH"); path != "" {
		c.Store.Path = path
	}
	if driver := os.Getenv("CHRYSALIS_SQLITE_DRIVER"); driver != "" {
		c.Store.Driver = driver
	}
	if steps := os.Getenv("CHRYSALIS_STEPS"); steps != "" {
		if n, err := strconv.Atoi(steps); err == nil {
			c.Engine.Steps = n
		}
	}
	if path := os.Getenv("CHRYSALIS_PREDICATES"); path != "" {
		c.Engine.PredicatesPath = path
	}
}

// ResolvePaths makes relative file paths absolute against workspace.
func (c *Config) ResolvePaths(workspace string) {
	c.Engine.PredicatesPath = resolve(workspace, c.Engine.PredicatesPath)
	c.Store.Path = resolve(workspace, c.Store.Path)
}

func resolve(workspace, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(workspace, path)
}

// LogsDir returns the log directory for a workspace.
func LogsDir(workspace string) string {
	return filepath.Join(workspace, DataDir, "logs")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Engine.Steps <= 0 {
		return fmt.Errorf("engine.steps must be positive, got %d", c.Engine.Steps)
	}
	if err := c.Store.Validate(); err != nil {
		return err
	}
	if !contains(ValidLevels, c.Logging.Level) {
		return fmt.Errorf("invalid logging level: %s (valid: %v)", c.Logging.Level, ValidLevels)
	}
	return nil
}

// FindWorkspaceRoot walks up from the working directory looking for a
// .chrysalis directory or a go.mod. Falls back to the working directory.
func FindWorkspaceRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	originalDir := dir
	for {
		if _, err := os.Stat(filepath.Join(dir, DataDir)); err == nil {
			return dir, nil
		}
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return originalDir, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
