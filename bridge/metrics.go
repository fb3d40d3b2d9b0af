package bridge

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports bridge activity to Prometheus. A nil *Metrics records nothing.
type Metrics struct {
	calls         *prometheus.CounterVec
	latency       prometheus.Histogram
	attachRetries prometheus.Counter
	swaps         *prometheus.CounterVec
	target        prometheus.Gauge
}

// NewMetrics creates the bridge collectors and registers them with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "protect_bridge",
			Name:      "calls_total",
			Help:      "Protect calls by outcome.",
		}, []string{"outcome"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "protect_bridge",
			Name:      "call_duration_seconds",
			Help:      "Duration of Protect calls, including attachment.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
		}),
		attachRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "protect_bridge",
			Name:      "attach_retries_total",
			Help:      "Attachment attempts that failed and were retried.",
		}),
		swaps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "protect_bridge",
			Name:      "target_changes_total",
			Help:      "Protector replacements and resets.",
		}, []string{"op"}),
		target: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "protect_bridge",
			Name:      "target_valid",
			Help:      "1 while a protector with a resolved method is installed.",
		}),
	}

	reg.MustRegister(m.calls, m.latency, m.attachRetries, m.swaps, m.target)

	// Pre-create every outcome so dashboards see zeros.
	for _, o := range Outcomes {
		m.calls.WithLabelValues(o.String())
	}
	return m
}

func (m *Metrics) observeCall(o Outcome, d time.Duration) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(o.String()).Inc()
	m.latency.Observe(d.Seconds())
}

func (m *Metrics) attachRetry() {
	if m == nil {
		return
	}
	m.attachRetries.Inc()
}

func (m *Metrics) targetChanged(op string, valid bool) {
	if m == nil {
		return
	}
	m.swaps.WithLabelValues(op).Inc()
	if valid {
		m.target.Set(1)
	} else {
		m.target.Set(0)
	}
}
