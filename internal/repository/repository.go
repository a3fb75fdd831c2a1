package repository

import (
	"context"
	"time"

	"github.com/splax/slaguard/internal/domain"
)

// RollupQuery selects metric rollups. An empty ServiceID matches every service.
type RollupQuery struct {
	ServiceID string
	Name      string
	Range     domain.TimeRange
}

// RollupRepository reads pre-aggregated telemetry. The core never writes rollups.
type RollupRepository interface {
	ListRollups(ctx context.Context, query RollupQuery) ([]domain.MetricRollup, error)
}

// ServiceRepository reads the monitored service catalogue.
type ServiceRepository interface {
	// FirstService returns the earliest created service or ErrNotFound.
	FirstService(ctx context.Context) (*domain.Service, error)
}

// SLADefinitionRepository stores versioned SLA definitions.
type SLADefinitionRepository interface {
	GetSLADefinition(ctx context.Context, id string) (*domain.SLADefinition, error)
	ListSLADefinitionsActiveBetween(ctx context.Context, window domain.TimeRange) ([]domain.SLADefinition, error)
	// ListLiveSLADefinitions returns definitions with no active_to for the scope and metric type.
	// A nil serviceID selects global definitions.
	ListLiveSLADefinitions(ctx context.Context, serviceID *string, metricType domain.MetricType) ([]domain.SLADefinition, error)
	CreateSLADefinition(ctx context.Context, definition *domain.SLADefinition) error
	// SupersedeSLADefinition closes the current version at activeTo and inserts next atomically.
	SupersedeSLADefinition(ctx context.Context, currentID string, activeTo time.Time, next *domain.SLADefinition) error
}

// SnapshotRepository persists daily SLA snapshots.
type SnapshotRepository interface {
	// UpsertSLASnapshot writes the snapshot keyed on (date, definition) and fills ID and timestamps.
	UpsertSLASnapshot(ctx context.Context, snapshot *domain.SLASnapshot) error
	ListSLASnapshots(ctx context.Context, definitionID string, window domain.TimeRange) ([]domain.SLASnapshot, error)
}

// IncidentRepository is the boundary to the incident store.
type IncidentRepository interface {
	// ListIncidentsInWindow returns incidents whose field timestamp falls in window.
	// An empty serviceID matches every service.
	ListIncidentsInWindow(ctx context.Context, serviceID string, field domain.IncidentTimeField, window domain.TimeRange) ([]domain.IncidentTimes, error)
	// FindOpenIncidentByDedupKey returns a non-resolved incident or ErrNotFound.
	FindOpenIncidentByDedupKey(ctx context.Context, dedupKey string) (*domain.Incident, error)
	CreateIncident(ctx context.Context, incident *domain.Incident, event domain.IncidentEvent) error
	// ClaimAndCreateIncident creates the incident only when no open incident shares its
	// dedup key, serialising concurrent callers on that key.
	ClaimAndCreateIncident(ctx context.Context, incident *domain.Incident, event domain.IncidentEvent) (bool, error)
}

// SettingsRepository is a key-value configuration store with JSON values.
type SettingsRepository interface {
	GetSetting(ctx context.Context, key string) ([]byte, error)
	PutSetting(ctx context.Context, key string, value []byte) error
	DeleteSetting(ctx context.Context, key string) error
}
