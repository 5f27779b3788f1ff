// Package metrics exposes Prometheus collectors for the evolution engine.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"chrysalis/internal/logging"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "chrysalis"

// Metrics provides observability for the engine.
type Metrics struct {
	// Rounds resolved, by whether a result was bound
	Rounds *prometheus.CounterVec

	// Generated domain size per round
	DomainSize prometheus.Histogram

	// Candidates surviving all predicates per round
	Survivors prometheus.Histogram

	Reflections     prometheus.Counter
	Perturbations   prometheus.Counter
	Stalls          prometheus.Counter
	PersistFailures *prometheus.CounterVec
}

// New registers all engine collectors on reg. An empty namespace uses
// DefaultNamespace. Registering twice on the same registry panics, so callers
// own one Metrics per registry.
func New(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	f := promauto.With(reg)
	logging.Get(logging.CategoryMetrics).Info("Registering collectors under namespace %q", namespace)

	return &Metrics{
		Rounds: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_total",
			Help:      "Total resolution rounds by outcome",
		}, []string{"outcome"}), // outcome: "bound", "void"

		DomainSize: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "domain_size",
			Help:      "Number of candidates entering a resolution round",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),

		Survivors: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "survivors",
			Help:      "Number of candidates surviving every predicate in a round",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 32, 64, 128},
		}),

		Reflections: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reflections_total",
			Help:      "Predicates synthesized from ambiguous survivor sets",
		}),

		Perturbations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "perturbations_total",
			Help:      "Vocabulary keys synthesized to escape a stall",
		}),

		Stalls: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stalls_total",
			Help:      "Rounds whose result equaled the previous round's result",
		}),

		PersistFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_failures_total",
			Help:      "Snapshot store failures by operation",
		}, []string{"op"}), // op: "load", "save", "record_round"
	}
}

// ObserveRound records one resolution round.
func (m *Metrics) ObserveRound(domainSize, survivors int, bound bool) {
	if m == nil {
		return
	}
	outcome := "void"
	if bound {
		outcome = "bound"
	}
	m.Rounds.WithLabelValues(outcome).Inc()
	m.DomainSize.Observe(float64(domainSize))
	m.Survivors.Observe(float64(survivors))
}

// IncReflection records a synthesized predicate.
func (m *Metrics) IncReflection() {
	if m != nil {
		m.Reflections.Inc()
	}
}

// IncPerturbation records a synthesized vocabulary key.
func (m *Metrics) IncPerturbation() {
	if m != nil {
		m.Perturbations.Inc()
	}
}

// IncStall records a detected stall.
func (m *Metrics) IncStall() {
	if m != nil {
		m.Stalls.Inc()
	}
}

// IncPersistFailure records a store failure for op.
func (m *Metrics) IncPersistFailure(op string) {
	if m != nil {
		m.PersistFailures.WithLabelValues(op).Inc()
	}
}
