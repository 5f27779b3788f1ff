package config

import "chrysalis/internal/types"

// EngineConfig configures evolution runs.
type EngineConfig struct {
	// Rounds per evolve invocation
	Steps int `yaml:"steps"`

	// Predicate catalog (YAML), relative to the workspace
	PredicatesPath string `yaml:"predicates_path"`

	// Candidates for the first round when the engine has no history yet
	Seed []types.Candidate `yaml:"seed,omitempty"`
}
