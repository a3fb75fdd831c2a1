package domain

import "strings"

// GlobalServiceID scopes an alert rule to every service.
const GlobalServiceID = "*"

// Condition compares a realized value with a rule threshold.
type Condition string

const (
	ConditionGreaterThan Condition = "gt"
	ConditionLessThan    Condition = "lt"
	ConditionEqual       Condition = "eq"
)

// EqualTolerance is the absolute tolerance used by the eq condition.
const EqualTolerance = 0.01

// Valid reports whether the condition is known.
func (c Condition) Valid() bool {
	return c == ConditionGreaterThan || c == ConditionLessThan || c == ConditionEqual
}

// Severity maps to incident urgency.
type Severity string

const (
	SeverityHigh Severity = "HIGH"
	SeverityLow  Severity = "LOW"
)

// Valid reports whether the severity is known.
func (s Severity) Valid() bool {
	return s == SeverityHigh || s == SeverityLow
}

// AlertRule is a threshold rule evaluated over a trailing window.
type AlertRule struct {
	ID            string    `json:"id" yaml:"id"`
	Name          string    `json:"name" yaml:"name"`
	ServiceID     string    `json:"serviceId" yaml:"serviceId"`
	MetricName    string    `json:"metricName" yaml:"metricName"`
	Condition     Condition `json:"condition" yaml:"condition"`
	Threshold     float64   `json:"threshold" yaml:"threshold"`
	WindowMinutes int       `json:"windowMinutes" yaml:"windowMinutes"`
	Severity      Severity  `json:"severity" yaml:"severity"`
	Enabled       bool      `json:"enabled" yaml:"enabled"`
}

// IsGlobal reports whether the rule targets every service.
func (r AlertRule) IsGlobal() bool {
	return r.ServiceID == GlobalServiceID || strings.TrimSpace(r.ServiceID) == ""
}

// IsErrorRate reports whether the rule's metric is aggregated as a 5xx error rate.
func (r AlertRule) IsErrorRate() bool {
	return strings.Contains(r.MetricName, "status")
}

// DedupKey returns the incident deduplication key for the rule.
func (r AlertRule) DedupKey() string {
	return "telemetry-" + r.ID
}

// RuleEvaluation is the outcome of evaluating one rule.
type RuleEvaluation struct {
	Rule         AlertRule
	CurrentValue float64
	Breached     bool
}
