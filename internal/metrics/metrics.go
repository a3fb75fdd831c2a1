// Package metrics registers Prometheus collectors shared by the engine packages.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every collector exported by the engine.
const Namespace = "slaguard"

// CounterVec registers c, returning the already registered collector when one exists.
func CounterVec(c *prometheus.CounterVec) *prometheus.CounterVec {
	if existing, ok := register(c).(*prometheus.CounterVec); ok {
		return existing
	}
	return c
}

// GaugeVec registers g, returning the already registered collector when one exists.
func GaugeVec(g *prometheus.GaugeVec) *prometheus.GaugeVec {
	if existing, ok := register(g).(*prometheus.GaugeVec); ok {
		return existing
	}
	return g
}

// Gauge registers g, returning the already registered collector when one exists.
func Gauge(g prometheus.Gauge) prometheus.Gauge {
	if existing, ok := register(g).(prometheus.Gauge); ok {
		return existing
	}
	return g
}

// HistogramVec registers h, returning the already registered collector when one exists.
func HistogramVec(h *prometheus.HistogramVec) *prometheus.HistogramVec {
	if existing, ok := register(h).(*prometheus.HistogramVec); ok {
		return existing
	}
	return h
}

func register(c prometheus.Collector) prometheus.Collector {
	if err := prometheus.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			return already.ExistingCollector
		}
	}
	return nil
}
