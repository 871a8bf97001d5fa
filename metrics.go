package hwire

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// poolMetrics are the pool collectors. With a nil Registerer the
// collectors exist but are not registered anywhere.
type poolMetrics struct {
	Acquires *prometheus.CounterVec
	Releases *prometheus.CounterVec
	Opened   prometheus.Counter
	Closed   prometheus.Counter
	Idle     prometheus.Gauge
}

func newPoolMetrics(reg prometheus.Registerer) *poolMetrics {
	return &poolMetrics{
		Acquires: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "hwire",
				Subsystem: "pool",
				Name:      "acquire_total",
				Help:      "Connection acquisitions by result",
			},
			[]string{"result"}, // hit/miss
		),
		Releases: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "hwire",
				Subsystem: "pool",
				Name:      "release_total",
				Help:      "Connection releases by outcome",
			},
			[]string{"result"}, // pooled/closed/duplicate
		),
		Opened: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "hwire",
				Name:      "connections_opened_total",
				Help:      "Connections dialed",
			},
		),
		Closed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "hwire",
				Name:      "connections_closed_total",
				Help:      "Connections closed",
			},
		),
		Idle: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "hwire",
				Subsystem: "pool",
				Name:      "idle_connections",
				Help:      "Idle connections held by the pool",
			},
		),
	}
}
