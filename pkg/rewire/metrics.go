package rewire

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the runtime's Prometheus collectors
type Metrics struct {
	Restarts         *prometheus.CounterVec
	RestartDuration  prometheus.Histogram
	ListenerFailures *prometheus.CounterVec
	RouteMutations   *prometheus.CounterVec
	Requests         *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg when it is not nil
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Restarts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rewire",
				Subsystem: "app",
				Name:      "restarts_total",
				Help:      "Total number of application restarts by outcome.",
			},
			[]string{"outcome"},
		),
		RestartDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "rewire",
				Subsystem: "app",
				Name:      "restart_duration_seconds",
				Help:      "Duration of application restarts.",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
			},
		),
		ListenerFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rewire",
				Subsystem: "app",
				Name:      "restart_listener_failures_total",
				Help:      "Total number of restart listener hook failures.",
			},
			[]string{"phase"},
		),
		RouteMutations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rewire",
				Subsystem: "routes",
				Name:      "mutations_total",
				Help:      "Total number of route table mutations.",
			},
			[]string{"setup", "action"},
		),
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rewire",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of dispatched requests by outcome.",
			},
			[]string{"setup", "verb", "outcome"},
		),
	}

	if reg != nil {
		reg.MustRegister(m.Restarts, m.RestartDuration, m.ListenerFailures, m.RouteMutations, m.Requests)
	}
	return m
}
