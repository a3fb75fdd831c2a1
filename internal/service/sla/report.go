package sla

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/splax/slaguard/internal/domain"
	"github.com/splax/slaguard/internal/repository"
)

// Report is the compliance of one definition over its window.
type Report struct {
	DefinitionID string                  `json:"definitionId"`
	MetricType   domain.MetricType       `json:"metricType"`
	Window       domain.ComplianceWindow `json:"window"`
	From         time.Time               `json:"from"`
	To           time.Time               `json:"to"`
	Value        float64                 `json:"value"`
	Target       float64                 `json:"target"`
	Compliant    bool                    `json:"compliant"`
	TotalEvents  int64                   `json:"totalEvents"`
	ErrorEvents  int64                   `json:"errorEvents"`
	BreachDays   int                     `json:"breachDays"`
	DaysCovered  int                     `json:"daysCovered"`
	DaysInWindow int                     `json:"daysInWindow"`
}

// Reporter aggregates stored snapshots into window reports.
type Reporter struct {
	definitions repository.SLADefinitionRepository
	snapshots   repository.SnapshotRepository
	logger      *slog.Logger
}

// NewReporter returns a compliance reporter.
func NewReporter(definitions repository.SLADefinitionRepository, snapshots repository.SnapshotRepository, logger *slog.Logger) Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return Reporter{definitions: definitions, snapshots: snapshots, logger: logger.With("component", "sla_report")}
}

// Report aggregates the snapshots of definitionID over its window ending on asOf.
func (r Reporter) Report(ctx context.Context, definitionID string, asOf time.Time) (*Report, error) {
	def, err := r.definitions.GetSLADefinition(ctx, definitionID)
	if err != nil {
		return nil, err
	}
	window := def.Window.Range(asOf)
	snapshots, err := r.snapshots.ListSLASnapshots(ctx, def.ID, window)
	if err != nil {
		return nil, fmt.Errorf("list snapshots for %s: %w", def.ID, err)
	}

	report, err := Aggregate(*def, window, snapshots)
	if err != nil {
		r.logger.Error("sla report failed", "definition_id", def.ID, "error", err)
		return nil, err
	}
	r.logger.Debug("sla report built",
		"definition_id", def.ID,
		"days_covered", report.DaysCovered,
		"compliant", report.Compliant,
	)
	return &report, nil
}

// ErrCorruptSnapshot reports stored snapshot metadata that cannot be decoded.
var ErrCorruptSnapshot = errors.New("corrupt snapshot metadata")

type snapshotMetadata struct {
	TotalDurationMinutes float64 `json:"totalDurationMinutes"`
	IncidentCount        int64   `json:"incidentCount"`
	WeightedP99Sum       float64 `json:"weightedP99Sum"`
	TotalCount           int64   `json:"totalCount"`
}

// Aggregate folds daily snapshots into a window report. Rates are recomputed
// from the summed inputs rather than averaging daily values.
func Aggregate(def domain.SLADefinition, window domain.TimeRange, snapshots []domain.SLASnapshot) (Report, error) {
	report := Report{
		DefinitionID: def.ID,
		MetricType:   def.MetricType,
		Window:       def.Window,
		From:         window.Start,
		To:           window.End,
		Target:       def.Target,
		DaysInWindow: int(window.End.Sub(window.Start).Hours()/24) + 1,
	}

	var (
		minutes  float64
		count    int64
		weighted float64
		samples  int64
	)
	for _, snap := range snapshots {
		report.DaysCovered++
		if snap.Breached() {
			report.BreachDays++
		}
		report.TotalEvents += snap.TotalEvents
		report.ErrorEvents += snap.ErrorEvents

		var meta snapshotMetadata
		if len(snap.Metadata) > 0 {
			if err := json.Unmarshal(snap.Metadata, &meta); err != nil {
				return Report{}, fmt.Errorf("%w: %s on %s: %v", ErrCorruptSnapshot, def.ID, snap.Date.UTC().Format(dateLayout), err)
			}
		}
		minutes += meta.TotalDurationMinutes
		count += meta.IncidentCount
		weighted += meta.WeightedP99Sum
		samples += meta.TotalCount
	}

	switch def.MetricType {
	case domain.MetricUptime, domain.MetricAvailability:
		report.Value = 100
		if report.TotalEvents > 0 {
			report.Value = 100 * float64(report.TotalEvents-report.ErrorEvents) / float64(report.TotalEvents)
		}
	case domain.MetricMTTA, domain.MetricMTTR:
		if count > 0 {
			report.Value = minutes / float64(count)
		}
	case domain.MetricLatencyP99:
		if samples > 0 {
			report.Value = weighted / float64(samples)
		}
	}

	if def.MetricType.HigherIsBetter() {
		report.Compliant = report.Value >= def.Target
	} else {
		report.Compliant = report.Value <= def.Target
	}
	return report, nil
}
