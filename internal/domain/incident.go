package domain

import (
	"encoding/json"
	"time"
)

// IncidentStatus tracks the incident lifecycle owned by the incident service.
type IncidentStatus string

const (
	IncidentTriggered    IncidentStatus = "TRIGGERED"
	IncidentAcknowledged IncidentStatus = "ACKNOWLEDGED"
	IncidentResolved     IncidentStatus = "RESOLVED"
)

// IncidentTimeField selects which lifecycle timestamp a window query filters on.
type IncidentTimeField string

const (
	IncidentAcknowledgedAt IncidentTimeField = "acknowledged_at"
	IncidentResolvedAt     IncidentTimeField = "resolved_at"
)

// Incident is an operational incident raised for a service.
type Incident struct {
	ID             string
	ServiceID      string
	Title          string
	Description    string
	Status         IncidentStatus
	Urgency        Severity
	DedupKey       string
	CreatedAt      time.Time
	AcknowledgedAt *time.Time
	ResolvedAt     *time.Time
}

// IncidentEvent is a timeline entry attached to an incident.
type IncidentEvent struct {
	ID         string
	IncidentID string
	Type       string
	Message    string
	Data       json.RawMessage
	CreatedAt  time.Time
}

// IncidentTimes is the lifecycle projection used for MTTA and MTTR.
type IncidentTimes struct {
	CreatedAt      time.Time
	AcknowledgedAt *time.Time
	ResolvedAt     *time.Time
}

// End returns the timestamp selected by field, or nil.
func (t IncidentTimes) End(field IncidentTimeField) *time.Time {
	if field == IncidentAcknowledgedAt {
		return t.AcknowledgedAt
	}
	return t.ResolvedAt
}
