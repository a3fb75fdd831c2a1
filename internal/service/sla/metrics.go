package sla

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/splax/slaguard/internal/metrics"
)

var (
	snapshotsGenerated = metrics.CounterVec(prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "sla",
		Name:      "snapshots_generated_total",
		Help:      "Daily SLA snapshots written, partitioned by metric type and breach outcome.",
	}, []string{"metric_type", "breached"}))

	snapshotFailures = metrics.CounterVec(prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "sla",
		Name:      "snapshot_failures_total",
		Help:      "Snapshot generations that failed to compute or persist.",
	}, []string{"metric_type"}))

	snapshotValue = metrics.GaugeVec(prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metrics.Namespace,
		Subsystem: "sla",
		Name:      "realized_value",
		Help:      "Realized value of the most recent snapshot per definition.",
	}, []string{"definition_id", "metric_type"}))
)

func observeSnapshot(def string, metricType string, snap float64, breached bool) {
	label := "false"
	if breached {
		label = "true"
	}
	snapshotsGenerated.WithLabelValues(metricType, label).Inc()
	snapshotValue.WithLabelValues(def, metricType).Set(snap)
}
