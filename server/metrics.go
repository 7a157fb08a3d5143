package server

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	ticks    *prometheus.CounterVec
	degraded prometheus.Counter
	equity   prometheus.Gauge
	position prometheus.Gauge
	tickSecs prometheus.Histogram
	registry *prometheus.Registry
}

// newMetrics builds a private registry per server so tests can spin up
// servers without duplicate-registration panics.
func newMetrics() *metrics {
	m := &metrics{
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "btcpaper_ticks_total",
			Help: "Processed tick triggers by outcome (applied, duplicate, error).",
		}, []string{"outcome"}),
		degraded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "btcpaper_degraded_decisions_total",
			Help: "Decisions taken with the fallback flat action because no model was available.",
		}),
		equity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "btcpaper_equity",
			Help: "Current paper net-asset-value (starts at 1.0).",
		}),
		position: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "btcpaper_position",
			Help: "Current target position in [-1, 1].",
		}),
		tickSecs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "btcpaper_tick_duration_seconds",
			Help:    "End-to-end tick handling latency.",
			Buckets: prometheus.DefBuckets,
		}),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(m.ticks, m.degraded, m.equity, m.position, m.tickSecs)
	return m
}
