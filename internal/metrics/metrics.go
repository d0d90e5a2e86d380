// Package metrics holds the prometheus collectors shared by the engine,
// the ledger and the replay runner.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

type Metrics struct {
	Operations         *prometheus.CounterVec
	ScopeDuration      *prometheus.HistogramVec
	ProtocolFeeFetches *prometheus.CounterVec
	ReplayLastSeq      *prometheus.GaugeVec
	ReplayBatchDur     *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg when it is not nil.
func New(reg prometheus.Registerer, namespace string) *Metrics {
	m := &Metrics{
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Engine and ledger operations by kind and outcome.",
		}, []string{"kind", "outcome"}),
		ScopeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lock_scope_duration_seconds",
			Help:      "Time spent inside ledger lock scopes.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}, []string{"outcome"}),
		ProtocolFeeFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protocol_fee_fetches_total",
			Help:      "Protocol fee controller calls by result.",
		}, []string{"result"}),
		ReplayLastSeq: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "replay_last_op",
			Help:      "Index of the last replayed operation.",
		}, []string{}),
		ReplayBatchDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "replay_batch_duration_seconds",
			Help:      "Time to execute and persist one replay batch.",
			Buckets:   prometheus.DefBuckets,
		}, []string{}),
	}
	if reg != nil {
		reg.MustRegister(m.Operations, m.ScopeDuration, m.ProtocolFeeFetches, m.ReplayLastSeq, m.ReplayBatchDur)
	}
	return m
}

// Observe counts one operation. A nil receiver is a no-op.
func (m *Metrics) Observe(kind string, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	m.Operations.WithLabelValues(kind, outcome).Inc()
}

// FeeFetch counts one protocol fee controller call.
func (m *Metrics) FeeFetch(result string) {
	if m == nil {
		return
	}
	m.ProtocolFeeFetches.WithLabelValues(result).Inc()
}

// ScopeTimer starts timing a lock scope; call the returned func with the
// scope's error when it closes.
func (m *Metrics) ScopeTimer() func(error) {
	if m == nil {
		return func(error) {}
	}
	okTimer := prometheus.NewTimer(m.ScopeDuration.WithLabelValues(OutcomeOK))
	errTimer := prometheus.NewTimer(m.ScopeDuration.WithLabelValues(OutcomeError))
	return func(err error) {
		if err != nil {
			errTimer.ObserveDuration()
			return
		}
		okTimer.ObserveDuration()
	}
}

// ReplayProgress records the last replayed operation index.
func (m *Metrics) ReplayProgress(seq uint64) {
	if m == nil {
		return
	}
	m.ReplayLastSeq.WithLabelValues().Set(float64(seq))
}

// BatchTimer times one replay batch.
func (m *Metrics) BatchTimer() *prometheus.Timer {
	if m == nil {
		return prometheus.NewTimer(prometheus.ObserverFunc(func(float64) {}))
	}
	return prometheus.NewTimer(m.ReplayBatchDur.WithLabelValues())
}
