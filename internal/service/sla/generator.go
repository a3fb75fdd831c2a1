package sla

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/splax/slaguard/internal/domain"
	"github.com/splax/slaguard/internal/repository"
)

const dateLayout = "2006-01-02"

// Generator computes and persists daily SLA snapshots.
type Generator struct {
	definitions repository.SLADefinitionRepository
	snapshots   repository.SnapshotRepository
	sources     Sources
	concurrency int
	logger      *slog.Logger
}

// NewGenerator returns a snapshot generator. concurrency bounds GenerateForDate.
func NewGenerator(definitions repository.SLADefinitionRepository, snapshots repository.SnapshotRepository, rollups repository.RollupRepository, incidents repository.IncidentRepository, concurrency int, logger *slog.Logger) Generator {
	if concurrency <= 0 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return Generator{
		definitions: definitions,
		snapshots:   snapshots,
		sources:     Sources{Rollups: rollups, Incidents: incidents},
		concurrency: concurrency,
		logger:      logger.With("component", "sla_snapshot"),
	}
}

// GenerateDailySnapshot computes the compliance of one definition for the UTC day
// containing targetDate and upserts it. An unknown definition yields nil, nil.
func (g Generator) GenerateDailySnapshot(ctx context.Context, definitionID string, targetDate time.Time) (*domain.SLASnapshot, error) {
	window := domain.DayRange(targetDate)
	logger := g.logger.With("definition_id", definitionID, "date", window.Start.Format(dateLayout))

	def, err := g.definitions.GetSLADefinition(ctx, definitionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			logger.Error("sla definition not found")
			return nil, nil
		}
		logger.Error("load sla definition", "error", err)
		return nil, fmt.Errorf("load sla definition %s: %w", definitionID, err)
	}

	strategy, ok := StrategyFor(def.MetricType)
	if !ok {
		err := fmt.Errorf("unsupported metric type %q", def.MetricType)
		logger.Error("compute snapshot", "error", err)
		snapshotFailures.WithLabelValues(string(def.MetricType)).Inc()
		return nil, err
	}

	measurement, err := strategy.Measure(ctx, g.sources, *def, window)
	if err != nil {
		logger.Error("compute snapshot", "metric_type", def.MetricType, "error", err)
		snapshotFailures.WithLabelValues(string(def.MetricType)).Inc()
		return nil, fmt.Errorf("compute snapshot for %s on %s: %w", definitionID, window.Start.Format(dateLayout), err)
	}

	metadata, err := json.Marshal(measurement.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot metadata: %w", err)
	}

	snapshot := &domain.SLASnapshot{
		ID:               uuid.NewString(),
		Date:             window.Start,
		SLADefinitionID:  def.ID,
		TotalEvents:      measurement.TotalEvents,
		ErrorEvents:      measurement.ErrorEvents,
		UptimePercentage: measurement.Value,
		Metadata:         metadata,
	}
	if measurement.Breached {
		snapshot.BreachCount = 1
	}

	if err := g.snapshots.UpsertSLASnapshot(ctx, snapshot); err != nil {
		logger.Error("persist snapshot", "error", err)
		snapshotFailures.WithLabelValues(string(def.MetricType)).Inc()
		return nil, fmt.Errorf("persist snapshot for %s on %s: %w", definitionID, window.Start.Format(dateLayout), err)
	}

	observeSnapshot(def.ID, string(def.MetricType), measurement.Value, measurement.Breached)
	logger.Info("sla snapshot generated",
		"metric_type", def.MetricType,
		"value", measurement.Value,
		"target", def.Target,
		"breached", measurement.Breached,
	)
	return snapshot, nil
}

// Outcome is the result of generating one definition's snapshot.
type Outcome struct {
	DefinitionID string
	Snapshot     *domain.SLASnapshot
	Err          error
}

// GenerateForDate generates snapshots for every definition live during the day.
// Failures of individual definitions are collected and joined; the others still run.
func (g Generator) GenerateForDate(ctx context.Context, targetDate time.Time) ([]Outcome, error) {
	window := domain.DayRange(targetDate)
	defs, err := g.definitions.ListSLADefinitionsActiveBetween(ctx, window)
	if err != nil {
		return nil, fmt.Errorf("list sla definitions: %w", err)
	}

	outcomes := make([]Outcome, len(defs))
	errs := make([]error, len(defs))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(g.concurrency)
	for i, def := range defs {
		i, def := i, def
		outcomes[i].DefinitionID = def.ID
		group.Go(func() error {
			snapshot, err := g.GenerateDailySnapshot(groupCtx, def.ID, window.Start)
			if err != nil {
				outcomes[i].Err = err
				errs[i] = err
				return nil
			}
			outcomes[i].Snapshot = snapshot
			return nil
		})
	}
	_ = group.Wait()

	return outcomes, errors.Join(errs...)
}
