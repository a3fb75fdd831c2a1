package domain

import (
	"encoding/json"
	"time"
)

// MetricType selects how an SLA's realized value is computed.
type MetricType string

const (
	MetricUptime       MetricType = "UPTIME"
	MetricAvailability MetricType = "AVAILABILITY"
	MetricMTTA         MetricType = "MTTA"
	MetricMTTR         MetricType = "MTTR"
	MetricLatencyP99   MetricType = "LATENCY_P99"
)

// Valid reports whether the metric type is known.
func (m MetricType) Valid() bool {
	switch m {
	case MetricUptime, MetricAvailability, MetricMTTA, MetricMTTR, MetricLatencyP99:
		return true
	}
	return false
}

// HigherIsBetter reports the breach direction of the metric.
func (m MetricType) HigherIsBetter() bool {
	return m == MetricUptime || m == MetricAvailability
}

// ComplianceWindow is the reporting period of an SLA.
type ComplianceWindow string

const (
	Window7d        ComplianceWindow = "7d"
	Window30d       ComplianceWindow = "30d"
	Window90d       ComplianceWindow = "90d"
	WindowQuarterly ComplianceWindow = "quarterly"
	WindowYearly    ComplianceWindow = "yearly"
)

// Valid reports whether the window is known.
func (w ComplianceWindow) Valid() bool {
	switch w {
	case Window7d, Window30d, Window90d, WindowQuarterly, WindowYearly:
		return true
	}
	return false
}

// Range returns the days covered by the window ending on the UTC day of asOf.
// Quarterly and yearly windows are calendar aligned.
func (w ComplianceWindow) Range(asOf time.Time) TimeRange {
	day := DayRange(asOf)
	var start time.Time
	switch w {
	case Window7d:
		start = day.Start.AddDate(0, 0, -6)
	case Window90d:
		start = day.Start.AddDate(0, 0, -89)
	case WindowQuarterly:
		month := ((day.Start.Month()-1)/3)*3 + 1
		start = time.Date(day.Start.Year(), month, 1, 0, 0, 0, 0, time.UTC)
	case WindowYearly:
		start = time.Date(day.Start.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	default:
		start = day.Start.AddDate(0, 0, -29)
	}
	return TimeRange{Start: start, End: day.End}
}

// SLADefinition is one version of a service level target. Nil ServiceID means global.
type SLADefinition struct {
	ID         string
	ServiceID  *string
	Name       string
	Version    int
	Target     float64
	Window     ComplianceWindow
	MetricType MetricType
	ActiveFrom time.Time
	ActiveTo   *time.Time
	CreatedAt  time.Time
}

// IsGlobal reports whether the definition applies to all services.
func (d SLADefinition) IsGlobal() bool {
	return d.ServiceID == nil || *d.ServiceID == ""
}

// Scope returns the service id to filter on, empty for global definitions.
func (d SLADefinition) Scope() string {
	if d.IsGlobal() {
		return ""
	}
	return *d.ServiceID
}

// ActiveAt reports whether the definition was live at t.
func (d SLADefinition) ActiveAt(t time.Time) bool {
	if t.Before(d.ActiveFrom) {
		return false
	}
	return d.ActiveTo == nil || t.Before(*d.ActiveTo)
}

// SLASnapshot is the daily compliance record of one definition.
// UptimePercentage holds the realized value for every metric type.
type SLASnapshot struct {
	ID               string
	Date             time.Time
	SLADefinitionID  string
	TotalEvents      int64
	ErrorEvents      int64
	UptimePercentage float64
	BreachCount      int
	Metadata         json.RawMessage
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Breached reports whether the snapshot recorded a breach.
func (s SLASnapshot) Breached() bool {
	return s.BreachCount > 0
}
