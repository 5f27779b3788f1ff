package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"chrysalis/internal/core"
	"chrysalis/internal/types"
)

var (
	evolveSteps    int
	introspectJSON bool
)

// cycleCmd runs one stateful round
var cycleCmd = &cobra.Command{
	Use:   "cycle [domain-json]",
	Short: "Run one round on an explicit domain, or a self-cycle",
	Long: `Runs one round of resolution. With an argument, the domain is the given
JSON array of candidates. Without one, the engine generates its own domain
from its history (a self-cycle).

Example:
  chrysalis cycle '[null, 3, {"alive": true}]'
  chrysalis cycle`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCycle,
}

// evolveCmd runs the evolution loop
var evolveCmd = &cobra.Command{
	Use:   "evolve",
	Short: "Run the evolution loop for a number of steps",
	RunE:  runEvolve,
}

// domainCmd prints the next self-cycle domain
var domainCmd = &cobra.Command{
	Use:   "domain",
	Short: "Print the domain the next self-cycle would use, one JSON value per line",
	Args:  cobra.NoArgs,
	RunE:  runDomain,
}

// introspectCmd renders the engine's self-description
var introspectCmd = &cobra.Command{
	Use:   "introspect",
	Short: "Describe the engine's current state",
	Args:  cobra.NoArgs,
	RunE:  runIntrospect,
}

// resetCmd clears persisted state
var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear the bound store",
	Args:  cobra.NoArgs,
	RunE:  runReset,
}

func init() {
	evolveCmd.Flags().IntVarP(&evolveSteps, "steps", "n", 0, "Rounds to run (default: engine.steps from config)")
	introspectCmd.Flags().BoolVar(&introspectJSON, "json", false, "Emit machine-readable JSON")
}

func runCycle(cmd *cobra.Command, args []string) error {
	s, err := openSession(cfg, nil, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	var obs *core.Observation
	if len(args) == 1 {
		domain, err := types.ParseDomain([]byte(args[0]))
		if err != nil {
			return err
		}
		logger.Debug("Cycling explicit domain", zap.Int("candidates", len(domain)))
		obs = s.engine.Cycle(domain)
	} else {
		logger.Debug("Self-cycling")
		obs = s.engine.SelfCycle()
	}

	fmt.Fprint(cmd.OutOrStdout(), renderCrystallization(obs))
	return persistWarning(s)
}

func runEvolve(cmd *cobra.Command, args []string) error {
	steps := evolveSteps
	if steps <= 0 {
		steps = cfg.Engine.Steps
	}

	s, err := openSession(cfg, nil, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	evolveSession(cmd.OutOrStdout(), s, steps)
	return persistWarning(s)
}

// evolveSession seeds an empty engine if configured, evolves it and renders
// the trajectory to out.
func evolveSession(out io.Writer, s *session, steps int) *core.Trajectory {
	if seeded := s.seed(); seeded != nil {
		fmt.Fprint(out, renderCrystallization(seeded))
		fmt.Fprintln(out)
	}

	traj := s.engine.Evolve(steps)
	logger.Info("Evolution finished",
		zap.Int("steps", steps),
		zap.Bool("fixed_point", traj.FixedPoint),
		zap.Int("perturbations", len(traj.Perturbations)))
	fmt.Fprint(out, renderTrajectory(traj))
	return traj
}

func runDomain(cmd *cobra.Command, args []string) error {
	s, err := openSession(cfg, nil, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	for _, c := range s.engine.GenerateDomain() {
		line, err := json.Marshal(c)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(line))
	}
	return nil
}

func runIntrospect(cmd *cobra.Command, args []string) error {
	s, err := openSession(cfg, nil, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	desc := s.engine.DescribeSelf()
	if introspectJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(desc)
	}
	fmt.Fprint(cmd.OutOrStdout(), renderSelf(desc))
	return nil
}

func runReset(cmd *cobra.Command, args []string) error {
	s, err := openSession(cfg, nil, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	if s.store == nil {
		fmt.Fprintln(cmd.OutOrStdout(), "No store bound; nothing to reset.")
		return nil
	}
	if err := s.store.Reset(); err != nil {
		return err
	}
	logger.Info("Store reset", zap.String("backend", cfg.Store.Backend))
	fmt.Fprintf(cmd.OutOrStdout(), "Reset %s store.\n", cfg.Store.Backend)
	return nil
}

// persistWarning surfaces a failed snapshot write without failing the command.
func persistWarning(s *session) error {
	if err := s.engine.LastPersistError(); err != nil {
		logger.Warn("State was not persisted", zap.Error(err))
	}
	return nil
}
