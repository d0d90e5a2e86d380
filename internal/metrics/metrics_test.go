package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var out dto.Metric
	require.NoError(t, c.Write(&out))
	return out.GetCounter().GetValue()
}

func TestObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg, "ammcore")

	m.Observe("swap", nil)
	m.Observe("swap", nil)
	m.Observe("swap", errors.New("boom"))
	m.FeeFetch("ok")

	assert.Equal(t, 2.0, counterValue(t, m.Operations.WithLabelValues("swap", OutcomeOK)))
	assert.Equal(t, 1.0, counterValue(t, m.Operations.WithLabelValues("swap", OutcomeError)))
	assert.Equal(t, 1.0, counterValue(t, m.ProtocolFeeFetches.WithLabelValues("ok")))

	done := m.ScopeTimer()
	done(nil)
	m.ReplayProgress(42)

	var gauge dto.Metric
	require.NoError(t, m.ReplayLastSeq.WithLabelValues().Write(&gauge))
	assert.Equal(t, 42.0, gauge.GetGauge().GetValue())

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "ammcore_operations_total")
	assert.Contains(t, names, "ammcore_lock_scope_duration_seconds")
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Observe("swap", nil)
	m.FeeFetch("ok")
	m.ScopeTimer()(errors.New("x"))
	m.ReplayProgress(1)
	m.BatchTimer().ObserveDuration()
}
