package main

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"go.uber.org/zap"

	"chrysalis/internal/config"
	"chrysalis/internal/core"
	"chrysalis/internal/metrics"
	"chrysalis/internal/predicates"
	"chrysalis/internal/store"
)

// session is one engine bound to the workspace's store, with the predicate
// catalog declared on it.
type session struct {
	cfg      *config.Config
	store    store.Store
	registry *prometheus.Registry
	engine   *core.Engine
	catalog  *predicates.Catalog
}

// openSession builds the store, metrics and engine described by c, then
// declares cat. A nil cat is loaded from the configured path if that file
// exists. When compiled is non-nil it is declared as is and cat is not
// compiled again.
func openSession(c *config.Config, cat *predicates.Catalog, compiled []predicates.Compiled) (*session, error) {
	bound, err := store.Open(c.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	s := &session{cfg: c, store: bound}
	var opts []core.Option
	if bound != nil {
		opts = append(opts, core.WithStore(bound))
	}
	if c.Metrics.Enabled {
		s.registry = prometheus.NewRegistry()
		opts = append(opts, core.WithMetrics(metrics.New(s.registry, c.Metrics.Namespace)))
	}
	s.engine = core.NewEngine(opts...)
	if err := s.engine.LastPersistError(); err != nil {
		logger.Warn("Snapshot could not be loaded; starting fresh", zap.Error(err))
	}

	if err := s.declare(cat, compiled); err != nil {
		s.Close()
		return nil, err
	}

	logger.Debug("Session opened",
		zap.String("engine", s.engine.ID()),
		zap.Int("round", s.engine.RoundCount()),
		zap.Int("predicates", len(s.engine.Predicates())))
	return s, nil
}

func (s *session) declare(cat *predicates.Catalog, compiled []predicates.Compiled) error {
	if cat == nil && compiled == nil {
		path := s.cfg.Engine.PredicatesPath
		if path == "" {
			return nil
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			logger.Debug("No predicate catalog", zap.String("path", path))
			return nil
		}
		loaded, err := predicates.Load(path)
		if err != nil {
			return err
		}
		cat = loaded
	}
	if compiled == nil {
		var err error
		if compiled, err = cat.Compile(); err != nil {
			return fmt.Errorf("predicate catalog %s: %w", cat.Path, err)
		}
	}
	predicates.Declare(s.engine, compiled)
	s.catalog = cat
	return nil
}

// seed runs the configured seed round on an engine with no rounds yet.
func (s *session) seed() *core.Observation {
	if s.engine.RoundCount() > 0 || len(s.cfg.Engine.Seed) == 0 {
		return nil
	}
	logger.Info("Seeding first round", zap.Int("candidates", len(s.cfg.Engine.Seed)))
	return s.engine.Cycle(s.cfg.Engine.Seed)
}

// Close logs collected metrics and releases the store.
func (s *session) Close() {
	if s.registry != nil {
		logMetrics(s.registry)
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			logger.Warn("Failed to close store", zap.Error(err))
		}
	}
}

// logMetrics writes every counter and histogram in reg to the process log.
func logMetrics(reg *prometheus.Registry) {
	families, err := reg.Gather()
	if err != nil {
		logger.Warn("Failed to gather metrics", zap.Error(err))
		return
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			fields := []zap.Field{zap.String("metric", mf.GetName())}
			for _, lp := range m.GetLabel() {
				fields = append(fields, zap.String(lp.GetName(), lp.GetValue()))
			}
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				fields = append(fields, zap.Float64("value", m.GetCounter().GetValue()))
			case dto.MetricType_HISTOGRAM:
				h := m.GetHistogram()
				fields = append(fields,
					zap.Uint64("count", h.GetSampleCount()),
					zap.Float64("sum", h.GetSampleSum()))
			default:
				continue
			}
			logger.Info("Metric", fields...)
		}
	}
}
