package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"chrysalis/internal/predicates"
	"chrysalis/internal/watch"
)

var watchSteps int

// watchCmd re-runs evolution whenever the predicate catalog changes
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-run evolution whenever the predicate catalog changes",
	Long: `Watches engine.predicates_path. Each time the catalog is saved and compiles,
a fresh engine is restored from the store, the new catalog is declared on it,
and it evolves for --steps rounds. Runs until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().IntVarP(&watchSteps, "steps", "n", 0, "Rounds per reload (default: engine.steps from config)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	steps := watchSteps
	if steps <= 0 {
		steps = cfg.Engine.Steps
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	onReload := func(ctx context.Context, cat *predicates.Catalog, compiled []predicates.Compiled) {
		s, err := openSession(cfg, cat, compiled)
		if err != nil {
			logger.Error("Failed to open session", zap.Error(err))
			return
		}
		defer s.Close()
		fmt.Fprintf(out, "\n%s\n", st.Muted.Render(fmt.Sprintf("catalog %s: %d predicates", cat.Path, len(cat.Predicates))))
		evolveSession(out, s, steps)
		_ = persistWarning(s)
	}

	w, err := watch.New(cfg.Engine.PredicatesPath, onReload)
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		w.Stop()
		return err
	}
	defer w.Stop()

	// Runs on the watcher goroutine, serialized with event-driven reloads.
	if _, err := os.Stat(w.Path()); err == nil {
		if err := w.Trigger(ctx); err != nil {
			logger.Warn("Initial catalog load failed", zap.Error(err))
		}
	}

	logger.Info("Watching predicate catalog", zap.String("path", w.Path()), zap.Int("steps", steps))
	<-ctx.Done()
	logger.Info("Watch stopped")
	return nil
}
