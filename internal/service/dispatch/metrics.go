package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/splax/slaguard/internal/metrics"
)

var (
	dispatched = metrics.CounterVec(prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "dispatch",
		Name:      "requests_total",
		Help:      "Escalation and notification requests by outcome.",
	}, []string{"kind", "outcome"}))

	breakerState = metrics.Gauge(prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metrics.Namespace,
		Subsystem: "dispatch",
		Name:      "breaker_state",
		Help:      "Dispatch circuit breaker state: 0 closed, 1 half-open, 2 open.",
	}))
)
