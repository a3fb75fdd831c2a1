package sla

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/splax/slaguard/internal/domain"
	"github.com/splax/slaguard/internal/repository"
)

// LivePolicy governs creating a definition when one is already live for the
// same scope and metric type.
type LivePolicy string

const (
	// LivePolicyAllow permits duplicate live definitions.
	LivePolicyAllow LivePolicy = "allow"
	// LivePolicyReject fails with ErrLiveDefinitionExists.
	LivePolicyReject LivePolicy = "reject"
	// LivePolicySupersede closes the live definition and inserts the next version.
	LivePolicySupersede LivePolicy = "supersede"
)

// Default definition attributes.
const (
	DefaultSLAName   = "Standard Availability (99.9%)"
	DefaultSLATarget = 99.9
)

var (
	// ErrLiveDefinitionExists is returned when a live definition blocks creation.
	ErrLiveDefinitionExists = errors.New("a live sla definition already exists for this scope and metric type")

	errInvalidName   = errors.New("sla name is required")
	errInvalidTarget = errors.New("sla target must be a finite non-negative number")
	errInvalidWindow = errors.New("unknown compliance window")
	errInvalidMetric = errors.New("unknown metric type")
	errAlreadyClosed = errors.New("sla definition is no longer live")
)

// CreateInput describes a new definition. A nil or empty ServiceID means global.
type CreateInput struct {
	ServiceID  *string
	Name       string
	Target     float64
	Window     domain.ComplianceWindow
	MetricType domain.MetricType
}

// SupersedeInput carries the attributes of the next version. Zero values keep
// the current version's attribute.
type SupersedeInput struct {
	Name   string
	Target *float64
	Window domain.ComplianceWindow
}

// Registry provisions and versions SLA definitions.
type Registry struct {
	definitions repository.SLADefinitionRepository
	policy      LivePolicy
	logger      *slog.Logger
	now         func() time.Time
}

// NewRegistry returns a definition registry enforcing policy.
func NewRegistry(definitions repository.SLADefinitionRepository, policy LivePolicy, logger *slog.Logger) Registry {
	if policy == "" {
		policy = LivePolicyReject
	}
	if logger == nil {
		logger = slog.Default()
	}
	return Registry{
		definitions: definitions,
		policy:      policy,
		logger:      logger.With("component", "sla_registry"),
		now:         time.Now,
	}
}

// Policy reports the live definition policy in force.
func (r Registry) Policy() LivePolicy {
	return r.policy
}

// CreateDefaultSLA provisions the standard 99.9% uptime definition for a service.
func (r Registry) CreateDefaultSLA(ctx context.Context, serviceID string) (*domain.SLADefinition, error) {
	var scope *string
	if trimmed := strings.TrimSpace(serviceID); trimmed != "" {
		scope = &trimmed
	}
	return r.Create(ctx, CreateInput{
		ServiceID:  scope,
		Name:       DefaultSLAName,
		Target:     DefaultSLATarget,
		Window:     domain.Window30d,
		MetricType: domain.MetricUptime,
	})
}

// Create inserts version 1 of a definition, applying the live policy.
func (r Registry) Create(ctx context.Context, input CreateInput) (*domain.SLADefinition, error) {
	def, err := r.buildDefinition(input)
	if err != nil {
		return nil, err
	}
	logger := r.logger.With("service_id", def.Scope(), "metric_type", def.MetricType)

	if r.policy == LivePolicyAllow {
		if err := r.definitions.CreateSLADefinition(ctx, def); err != nil {
			return nil, err
		}
		logger.Info("sla definition created", "definition_id", def.ID)
		return def, nil
	}

	live, err := r.definitions.ListLiveSLADefinitions(ctx, def.ServiceID, def.MetricType)
	if err != nil {
		return nil, fmt.Errorf("list live sla definitions: %w", err)
	}
	if len(live) == 0 {
		if err := r.definitions.CreateSLADefinition(ctx, def); err != nil {
			return nil, err
		}
		logger.Info("sla definition created", "definition_id", def.ID)
		return def, nil
	}

	if r.policy == LivePolicyReject {
		logger.Warn("live sla definition exists", "definition_id", live[len(live)-1].ID)
		return nil, ErrLiveDefinitionExists
	}

	current := live[len(live)-1]
	def.Version = current.Version + 1
	if err := r.definitions.SupersedeSLADefinition(ctx, current.ID, def.ActiveFrom, def); err != nil {
		return nil, fmt.Errorf("supersede sla definition %s: %w", current.ID, err)
	}
	logger.Info("sla definition superseded", "definition_id", def.ID, "previous_id", current.ID, "version", def.Version)
	return def, nil
}

// Supersede closes definitionID now and inserts the next version with input applied.
func (r Registry) Supersede(ctx context.Context, definitionID string, input SupersedeInput) (*domain.SLADefinition, error) {
	current, err := r.definitions.GetSLADefinition(ctx, definitionID)
	if err != nil {
		return nil, err
	}
	if current.ActiveTo != nil {
		return nil, errAlreadyClosed
	}

	next := domain.SLADefinition{
		ServiceID:  current.ServiceID,
		Name:       current.Name,
		Target:     current.Target,
		Window:     current.Window,
		MetricType: current.MetricType,
	}
	if strings.TrimSpace(input.Name) != "" {
		next.Name = strings.TrimSpace(input.Name)
	}
	if input.Target != nil {
		next.Target = *input.Target
	}
	if input.Window != "" {
		next.Window = input.Window
	}
	if err := validate(next); err != nil {
		return nil, err
	}
	next.ID = uuid.NewString()
	next.Version = current.Version + 1
	next.ActiveFrom = r.now().UTC()

	if err := r.definitions.SupersedeSLADefinition(ctx, current.ID, next.ActiveFrom, &next); err != nil {
		return nil, err
	}
	r.logger.Info("sla definition superseded",
		"definition_id", next.ID,
		"previous_id", current.ID,
		"version", next.Version,
		"target", next.Target,
	)
	return &next, nil
}

func (r Registry) buildDefinition(input CreateInput) (*domain.SLADefinition, error) {
	def := &domain.SLADefinition{
		ID:         uuid.NewString(),
		Name:       strings.TrimSpace(input.Name),
		Version:    1,
		Target:     input.Target,
		Window:     input.Window,
		MetricType: input.MetricType,
		ActiveFrom: r.now().UTC(),
	}
	if input.ServiceID != nil && strings.TrimSpace(*input.ServiceID) != "" {
		scope := strings.TrimSpace(*input.ServiceID)
		def.ServiceID = &scope
	}
	if def.Window == "" {
		def.Window = domain.Window30d
	}
	if err := validate(*def); err != nil {
		return nil, err
	}
	return def, nil
}

func validate(def domain.SLADefinition) error {
	if def.Name == "" {
		return errInvalidName
	}
	if math.IsNaN(def.Target) || math.IsInf(def.Target, 0) || def.Target < 0 {
		return errInvalidTarget
	}
	if !def.Window.Valid() {
		return errInvalidWindow
	}
	if !def.MetricType.Valid() {
		return errInvalidMetric
	}
	return nil
}

// IsValidationError reports whether err was caused by invalid input.
func IsValidationError(err error) bool {
	switch {
	case errors.Is(err, errInvalidName),
		errors.Is(err, errInvalidTarget),
		errors.Is(err, errInvalidWindow),
		errors.Is(err, errInvalidMetric),
		errors.Is(err, errAlreadyClosed):
		return true
	}
	return false
}
