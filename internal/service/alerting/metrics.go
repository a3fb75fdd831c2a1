package alerting

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/splax/slaguard/internal/metrics"
)

var (
	ruleEvaluations = metrics.CounterVec(prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "alerting",
		Name:      "rule_evaluations_total",
		Help:      "Alert rule evaluations by outcome.",
	}, []string{"rule_id", "outcome"}))

	incidentDecisions = metrics.CounterVec(prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "alerting",
		Name:      "incident_decisions_total",
		Help:      "Gate decisions for breached rules.",
	}, []string{"decision"}))

	sideEffectFailures = metrics.CounterVec(prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "alerting",
		Name:      "side_effect_failures_total",
		Help:      "Escalation and notification calls that failed after incident creation.",
	}, []string{"kind"}))

	currentValue = metrics.GaugeVec(prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metrics.Namespace,
		Subsystem: "alerting",
		Name:      "rule_current_value",
		Help:      "Most recent realized value per alert rule.",
	}, []string{"rule_id"}))
)
