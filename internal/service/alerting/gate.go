package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/splax/slaguard/internal/domain"
	"github.com/splax/slaguard/internal/repository"
)

// Dedup modes accepted by DedupStrategyFor.
const (
	DedupBestEffort = "best_effort"
	DedupAtomic     = "atomic"
)

// EventTriggered is passed to notifiers for newly created incidents.
const EventTriggered = "triggered"

const automatedTriggerEvent = "automated_trigger"

// Escalator starts the escalation policy of an incident.
type Escalator interface {
	ExecuteEscalation(ctx context.Context, incidentID string) error
}

// Notifier informs recipients about an incident lifecycle event.
type Notifier interface {
	SendIncidentNotifications(ctx context.Context, incidentID, event string, recipients []string) error
}

// DedupStrategy persists a new incident. created is false when another open
// incident already holds the dedup key.
type DedupStrategy interface {
	Create(ctx context.Context, incidents repository.IncidentRepository, incident *domain.Incident, event domain.IncidentEvent) (created bool, err error)
}

// BestEffortDedup relies on the pre-create lookup alone. Two concurrent passes
// may both create an incident for the same key.
type BestEffortDedup struct{}

// Create implements DedupStrategy.
func (BestEffortDedup) Create(ctx context.Context, incidents repository.IncidentRepository, incident *domain.Incident, event domain.IncidentEvent) (bool, error) {
	if err := incidents.CreateIncident(ctx, incident, event); err != nil {
		return false, err
	}
	return true, nil
}

// AtomicDedup claims the dedup key in the store before inserting.
type AtomicDedup struct{}

// Create implements DedupStrategy.
func (AtomicDedup) Create(ctx context.Context, incidents repository.IncidentRepository, incident *domain.Incident, event domain.IncidentEvent) (bool, error) {
	return incidents.ClaimAndCreateIncident(ctx, incident, event)
}

// DedupStrategyFor maps a configured mode to its strategy.
func DedupStrategyFor(mode string) (DedupStrategy, error) {
	switch mode {
	case "", DedupBestEffort:
		return BestEffortDedup{}, nil
	case DedupAtomic:
		return AtomicDedup{}, nil
	}
	return nil, fmt.Errorf("unknown dedup mode %q", mode)
}

// Gate turns breached evaluations into deduplicated incidents.
type Gate struct {
	incidents  repository.IncidentRepository
	services   repository.ServiceRepository
	dedup      DedupStrategy
	escalator  Escalator
	notifier   Notifier
	recipients []string
	logger     *slog.Logger
	now        func() time.Time
}

// GateOptions are the optional collaborators of a Gate.
type GateOptions struct {
	Dedup      DedupStrategy
	Escalator  Escalator
	Notifier   Notifier
	Recipients []string
}

// NewGate returns an incident creation gate.
func NewGate(incidents repository.IncidentRepository, services repository.ServiceRepository, opts GateOptions, logger *slog.Logger) Gate {
	if opts.Dedup == nil {
		opts.Dedup = BestEffortDedup{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return Gate{
		incidents:  incidents,
		services:   services,
		dedup:      opts.Dedup,
		escalator:  opts.Escalator,
		notifier:   opts.Notifier,
		recipients: append([]string(nil), opts.Recipients...),
		logger:     logger.With("component", "incident_gate"),
		now:        time.Now,
	}
}

// CreateIncidentsForBreaches creates one incident per breached evaluation unless
// an open incident already carries its dedup key. Store failures for one breach
// are logged and returned joined; the remaining breaches are still processed.
func (g Gate) CreateIncidentsForBreaches(ctx context.Context, evaluations []domain.RuleEvaluation) ([]string, error) {
	created := make([]string, 0)
	var errs []error
	for _, evaluation := range evaluations {
		if !evaluation.Breached {
			continue
		}
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		id, err := g.createForBreach(ctx, evaluation)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if id != "" {
			created = append(created, id)
		}
	}
	return created, errors.Join(errs...)
}

func (g Gate) createForBreach(ctx context.Context, evaluation domain.RuleEvaluation) (string, error) {
	rule := evaluation.Rule
	dedupKey := rule.DedupKey()
	logger := g.logger.With("rule_id", rule.ID, "dedup_key", dedupKey)

	existing, err := g.incidents.FindOpenIncidentByDedupKey(ctx, dedupKey)
	switch {
	case err == nil:
		logger.Debug("open incident already exists", "incident_id", existing.ID)
		incidentDecisions.WithLabelValues("deduplicated").Inc()
		return "", nil
	case !errors.Is(err, repository.ErrNotFound):
		logger.Error("look up open incident", "error", err)
		incidentDecisions.WithLabelValues("error").Inc()
		return "", fmt.Errorf("look up open incident for %s: %w", dedupKey, err)
	}

	serviceID, err := g.resolveService(ctx, rule)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			logger.Warn("no service available for global alert rule")
			incidentDecisions.WithLabelValues("no_service").Inc()
			return "", nil
		}
		logger.Error("resolve service for alert rule", "error", err)
		incidentDecisions.WithLabelValues("error").Inc()
		return "", fmt.Errorf("resolve service for rule %s: %w", rule.ID, err)
	}

	incident, event, err := g.buildIncident(evaluation, serviceID)
	if err != nil {
		return "", err
	}
	ok, err := g.dedup.Create(ctx, g.incidents, incident, event)
	if err != nil {
		logger.Error("create incident", "service_id", serviceID, "error", err)
		incidentDecisions.WithLabelValues("error").Inc()
		return "", fmt.Errorf("create incident for %s: %w", dedupKey, err)
	}
	if !ok {
		logger.Info("dedup key claimed by a concurrent pass")
		incidentDecisions.WithLabelValues("deduplicated").Inc()
		return "", nil
	}

	incidentDecisions.WithLabelValues("created").Inc()
	logger.Info("incident created from alert rule", "incident_id", incident.ID, "service_id", serviceID, "urgency", incident.Urgency)
	g.dispatch(ctx, logger, incident.ID)
	return incident.ID, nil
}

func (g Gate) resolveService(ctx context.Context, rule domain.AlertRule) (string, error) {
	if !rule.IsGlobal() {
		return rule.ServiceID, nil
	}
	service, err := g.services.FirstService(ctx)
	if err != nil {
		return "", err
	}
	return service.ID, nil
}

func (g Gate) buildIncident(evaluation domain.RuleEvaluation, serviceID string) (*domain.Incident, domain.IncidentEvent, error) {
	rule := evaluation.Rule
	now := g.now().UTC()
	incident := &domain.Incident{
		ID:        uuid.NewString(),
		ServiceID: serviceID,
		Title:     fmt.Sprintf("Alert: %s", rule.Name),
		Description: fmt.Sprintf("%s is %.2f, condition %s %.2f over the last %d minutes.",
			rule.MetricName, evaluation.CurrentValue, rule.Condition, rule.Threshold, rule.WindowMinutes),
		Status:    domain.IncidentTriggered,
		Urgency:   rule.Severity,
		DedupKey:  rule.DedupKey(),
		CreatedAt: now,
	}
	data, err := json.Marshal(map[string]any{
		"ruleId":        rule.ID,
		"metricName":    rule.MetricName,
		"condition":     rule.Condition,
		"threshold":     rule.Threshold,
		"currentValue":  evaluation.CurrentValue,
		"windowMinutes": rule.WindowMinutes,
	})
	if err != nil {
		return nil, domain.IncidentEvent{}, fmt.Errorf("encode trigger event: %w", err)
	}
	event := domain.IncidentEvent{
		ID:         uuid.NewString(),
		IncidentID: incident.ID,
		Type:       automatedTriggerEvent,
		Message:    fmt.Sprintf("Incident automatically triggered by alert rule %q", rule.Name),
		Data:       data,
		CreatedAt:  now,
	}
	return incident, event, nil
}

// dispatch runs escalation then notification. Failures never undo the incident.
func (g Gate) dispatch(ctx context.Context, logger *slog.Logger, incidentID string) {
	if g.escalator != nil {
		if err := g.escalator.ExecuteEscalation(ctx, incidentID); err != nil {
			sideEffectFailures.WithLabelValues("escalation").Inc()
			logger.Error("escalation failed", "incident_id", incidentID, "error", err)
		}
	}
	if g.notifier != nil {
		if err := g.notifier.SendIncidentNotifications(ctx, incidentID, EventTriggered, g.recipients); err != nil {
			sideEffectFailures.WithLabelValues("notification").Inc()
			logger.Error("notification failed", "incident_id", incidentID, "error", err)
		}
	}
}
