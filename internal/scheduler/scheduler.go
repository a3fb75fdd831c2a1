// Package scheduler drives the evaluation and snapshot passes on tickers.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/splax/slaguard/internal/service/alerting"
	"github.com/splax/slaguard/internal/service/sla"
)

const (
	defaultEvaluationInterval = time.Minute
	defaultEvaluationTimeout  = 45 * time.Second
	defaultSnapshotInterval   = time.Hour
	defaultSnapshotTimeout    = 5 * time.Minute
)

// EvaluationRunner runs one alert evaluation pass.
type EvaluationRunner interface {
	RunEvaluation(ctx context.Context) (alerting.EvaluationResult, error)
}

// SnapshotRunner generates the snapshots of one day.
type SnapshotRunner interface {
	GenerateForDate(ctx context.Context, day time.Time) ([]sla.Outcome, error)
}

// Config tunes the loops.
type Config struct {
	EvaluationInterval time.Duration
	EvaluationTimeout  time.Duration
	SnapshotInterval   time.Duration
	SnapshotTimeout    time.Duration
	BackfillDays       int
}

// Scheduler owns the periodic loops. The core operations stay timer-free.
type Scheduler struct {
	evaluations EvaluationRunner
	snapshots   SnapshotRunner
	cfg         Config
	logger      *slog.Logger
	now         func() time.Time
}

// New returns a scheduler. Either runner may be nil to disable its loop.
func New(evaluations EvaluationRunner, snapshots SnapshotRunner, cfg Config, logger *slog.Logger) *Scheduler {
	if cfg.EvaluationInterval <= 0 {
		cfg.EvaluationInterval = defaultEvaluationInterval
	}
	if cfg.EvaluationTimeout <= 0 {
		cfg.EvaluationTimeout = defaultEvaluationTimeout
	}
	if cfg.SnapshotInterval <= 0 {
		cfg.SnapshotInterval = defaultSnapshotInterval
	}
	if cfg.SnapshotTimeout <= 0 {
		cfg.SnapshotTimeout = defaultSnapshotTimeout
	}
	if cfg.BackfillDays < 0 {
		cfg.BackfillDays = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		evaluations: evaluations,
		snapshots:   snapshots,
		cfg:         cfg,
		logger:      logger.With("component", "scheduler"),
		now:         time.Now,
	}
}

// RunEvaluations executes evaluation passes until ctx is cancelled.
func (s *Scheduler) RunEvaluations(ctx context.Context) {
	if s == nil || s.evaluations == nil {
		return
	}
	s.loop(ctx, "evaluation", s.cfg.EvaluationInterval, s.evaluateOnce)
}

// RunSnapshots executes snapshot passes until ctx is cancelled.
func (s *Scheduler) RunSnapshots(ctx context.Context) {
	if s == nil || s.snapshots == nil {
		return
	}
	s.loop(ctx, "snapshot", s.cfg.SnapshotInterval, s.snapshotOnce)
}

func (s *Scheduler) loop(ctx context.Context, name string, interval time.Duration, iteration func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("loop started", "loop", name, "interval", interval)
	iteration(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("loop stopped", "loop", name)
			return
		case <-ticker.C:
			iteration(ctx)
		}
	}
}

func (s *Scheduler) evaluateOnce(parent context.Context) {
	opCtx, cancel := context.WithTimeout(parent, s.cfg.EvaluationTimeout)
	defer cancel()

	result, err := s.evaluations.RunEvaluation(opCtx)
	if err != nil {
		s.logger.Warn("evaluation pass finished with errors",
			"evaluated", result.Evaluated,
			"incidents_created", result.IncidentsCreated,
			"error", err,
		)
	}
}

// snapshotOnce covers the last BackfillDays complete days and today, oldest first.
func (s *Scheduler) snapshotOnce(parent context.Context) {
	opCtx, cancel := context.WithTimeout(parent, s.cfg.SnapshotTimeout)
	defer cancel()

	today := s.now().UTC()
	for offset := s.cfg.BackfillDays; offset >= 0; offset-- {
		if opCtx.Err() != nil {
			return
		}
		day := today.AddDate(0, 0, -offset)
		outcomes, err := s.snapshots.GenerateForDate(opCtx, day)
		if err != nil {
			s.logger.Warn("snapshot pass finished with errors",
				"date", day.Format("2006-01-02"),
				"definitions", len(outcomes),
				"error", err,
			)
			continue
		}
		s.logger.Debug("snapshot pass complete", "date", day.Format("2006-01-02"), "definitions", len(outcomes))
	}
}
