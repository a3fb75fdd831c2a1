package sla

import (
	"context"
	"fmt"

	"github.com/splax/slaguard/internal/domain"
	"github.com/splax/slaguard/internal/repository"
)

// Sources are the read-only stores a strategy collects observations from.
type Sources struct {
	Rollups   repository.RollupRepository
	Incidents repository.IncidentRepository
}

// Measurement is the realized value of a definition over one window.
type Measurement struct {
	Value       float64
	Breached    bool
	TotalEvents int64
	ErrorEvents int64
	Metadata    map[string]any
}

// Strategy computes the realized value for one metric type. Collection and
// evaluation are split so the arithmetic can be exercised without a store.
type Strategy interface {
	Measure(ctx context.Context, src Sources, def domain.SLADefinition, window domain.TimeRange) (Measurement, error)
}

var strategies = map[domain.MetricType]Strategy{
	domain.MetricUptime:       availabilityStrategy{},
	domain.MetricAvailability: availabilityStrategy{},
	domain.MetricMTTA:         responseTimeStrategy{field: domain.IncidentAcknowledgedAt},
	domain.MetricMTTR:         responseTimeStrategy{field: domain.IncidentResolvedAt},
	domain.MetricLatencyP99:   latencyStrategy{},
}

// StrategyFor returns the strategy registered for metricType.
func StrategyFor(metricType domain.MetricType) (Strategy, bool) {
	s, ok := strategies[metricType]
	return s, ok
}

type availabilityStrategy struct{}

func (availabilityStrategy) Measure(ctx context.Context, src Sources, def domain.SLADefinition, window domain.TimeRange) (Measurement, error) {
	rollups, err := src.Rollups.ListRollups(ctx, repository.RollupQuery{
		ServiceID: def.Scope(),
		Name:      domain.MetricHTTPRequestStatus,
		Range:     window,
	})
	if err != nil {
		return Measurement{}, fmt.Errorf("fetch %s rollups: %w", domain.MetricHTTPRequestStatus, err)
	}
	return EvaluateAvailability(rollups, def.Target), nil
}

// EvaluateAvailability returns the share of non-5xx requests as a percentage.
// No traffic counts as fully available.
func EvaluateAvailability(rollups []domain.MetricRollup, target float64) Measurement {
	var total, errorsCount int64
	for _, r := range rollups {
		total += r.Count
		if r.IsServerError() {
			errorsCount += r.Count
		}
	}
	value := 100.0
	if total > 0 {
		value = 100 * float64(total-errorsCount) / float64(total)
	}
	return Measurement{
		Value:       value,
		Breached:    value < target,
		TotalEvents: total,
		ErrorEvents: errorsCount,
		Metadata: map[string]any{
			"metricName": domain.MetricHTTPRequestStatus,
		},
	}
}

type responseTimeStrategy struct {
	field domain.IncidentTimeField
}

func (s responseTimeStrategy) Measure(ctx context.Context, src Sources, def domain.SLADefinition, window domain.TimeRange) (Measurement, error) {
	incidents, err := src.Incidents.ListIncidentsInWindow(ctx, def.Scope(), s.field, window)
	if err != nil {
		return Measurement{}, fmt.Errorf("fetch incidents by %s: %w", s.field, err)
	}
	return EvaluateResponseTime(incidents, s.field, def.Target), nil
}

// EvaluateResponseTime averages minutes from creation to the field timestamp.
// Incidents with a negative duration or no timestamp are ignored.
func EvaluateResponseTime(incidents []domain.IncidentTimes, field domain.IncidentTimeField, target float64) Measurement {
	var (
		totalMinutes float64
		count        int64
	)
	for _, inc := range incidents {
		end := inc.End(field)
		if end == nil {
			continue
		}
		minutes := end.Sub(inc.CreatedAt).Minutes()
		if minutes < 0 {
			continue
		}
		totalMinutes += minutes
		count++
	}
	var value float64
	if count > 0 {
		value = totalMinutes / float64(count)
	}
	return Measurement{
		Value:       value,
		Breached:    value > target,
		TotalEvents: count,
		Metadata: map[string]any{
			"totalDurationMinutes": totalMinutes,
			"incidentCount":        count,
		},
	}
}

type latencyStrategy struct{}

func (latencyStrategy) Measure(ctx context.Context, src Sources, def domain.SLADefinition, window domain.TimeRange) (Measurement, error) {
	rollups, err := src.Rollups.ListRollups(ctx, repository.RollupQuery{
		ServiceID: def.Scope(),
		Name:      domain.MetricHTTPRequestDuration,
		Range:     window,
	})
	if err != nil {
		return Measurement{}, fmt.Errorf("fetch %s rollups: %w", domain.MetricHTTPRequestDuration, err)
	}
	return EvaluateLatencyP99(rollups, def.Target), nil
}

// EvaluateLatencyP99 approximates P99 as the count-weighted mean of bucket P99s,
// using the bucket max when a P99 was not recorded.
func EvaluateLatencyP99(rollups []domain.MetricRollup, target float64) Measurement {
	var (
		weighted float64
		total    int64
	)
	for _, r := range rollups {
		p99 := r.Max
		if r.P99 != nil {
			p99 = *r.P99
		}
		weighted += p99 * float64(r.Count)
		total += r.Count
	}
	var value float64
	if total > 0 {
		value = weighted / float64(total)
	}
	return Measurement{
		Value:       value,
		Breached:    value > target,
		TotalEvents: total,
		Metadata: map[string]any{
			"weightedP99Sum": weighted,
			"totalCount":     total,
		},
	}
}
