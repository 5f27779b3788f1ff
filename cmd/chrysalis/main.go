package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"chrysalis/internal/config"
	"chrysalis/internal/logging"
)

var (
	// Global flags
	verbose    bool
	workspace  string
	configPath string

	// Logger
	logger *zap.Logger

	// Loaded in PersistentPreRunE
	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "chrysalis",
	Short: "chrysalis - a constraint-narrowing evolution engine",
	Long: `chrysalis narrows a domain of candidate values through an ordered list of
predicates, binds the first survivor as its state, and evolves by generating
its next domain from what it has already seen.

When a round resolves to the same result as the round before, the engine
reflects on its history to synthesize a sharper predicate, or perturbs its
vocabulary when reflection finds nothing.

State persists in the workspace's .chrysalis directory between invocations.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if workspace == "" {
			workspace, err = config.FindWorkspaceRoot()
			if err != nil {
				return fmt.Errorf("failed to find workspace: %w", err)
			}
		}
		if configPath == "" {
			configPath = config.DefaultPath(workspace)
		}

		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		cfg.ResolvePaths(workspace)
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config %s: %w", configPath, err)
		}

		if err := logging.Configure(config.LogsDir(workspace), cfg.Logging.Settings()); err != nil {
			logger.Warn("File logging unavailable", zap.Error(err))
		}
		if err := logging.InitAudit(); err != nil {
			logger.Warn("Audit log unavailable", zap.Error(err))
		}
		logging.Boot("Workspace %s, store %s", workspace, cfg.Store.Backend)
		logger.Debug("Configuration loaded",
			zap.String("workspace", workspace),
			zap.String("config", configPath),
			zap.String("store", cfg.Store.Backend))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAudit()
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: nearest .chrysalis or go.mod)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: <workspace>/.chrysalis/config.yaml)")

	rootCmd.AddCommand(cycleCmd)
	rootCmd.AddCommand(evolveCmd)
	rootCmd.AddCommand(domainCmd)
	rootCmd.AddCommand(introspectCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(demoCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
