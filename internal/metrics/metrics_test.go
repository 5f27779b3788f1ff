package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRound(3, 1, true)
		m.IncReflection()
		m.IncPerturbation()
		m.IncStall()
		m.IncPersistFailure("save")
	})
}

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg, "test")

	m.ObserveRound(5, 2, true)
	m.ObserveRound(2, 0, false)
	m.ObserveRound(9, 1, true)
	m.IncReflection()
	m.IncPerturbation()
	m.IncPerturbation()
	m.IncStall()
	m.IncPersistFailure("save")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Rounds.WithLabelValues("bound")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Rounds.WithLabelValues("void")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Reflections))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Perturbations))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Stalls))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PersistFailures.WithLabelValues("save")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	for _, want := range []string{
		"test_rounds_total", "test_domain_size", "test_survivors",
		"test_reflections_total", "test_perturbations_total", "test_stalls_total",
		"test_persist_failures_total",
	} {
		assert.True(t, names[want], "missing %s", want)
	}
}

func TestDefaultNamespace(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg, "")
	m.IncStall()

	count, err := testutil.GatherAndCount(reg, "chrysalis_stalls_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
