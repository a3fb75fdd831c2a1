package alerting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/splax/slaguard/internal/domain"
	"github.com/splax/slaguard/internal/repository"
)

// RuleLoader yields the rule set to evaluate.
type RuleLoader interface {
	Load(ctx context.Context) (RuleSet, RuleSource, error)
}

// Evaluator compares recent rollups with alert rule thresholds. It has no
// persisted side effects.
type Evaluator struct {
	rules    RuleLoader
	rollups  repository.RollupRepository
	fallback DefaultRuleProvider
	logger   *slog.Logger
	now      func() time.Time
}

// NewEvaluator returns a rule evaluator. fallback supplies rules when the stored
// set cannot be decoded; nil uses BuiltinRules.
func NewEvaluator(rules RuleLoader, rollups repository.RollupRepository, fallback DefaultRuleProvider, logger *slog.Logger) Evaluator {
	if fallback == nil {
		fallback = DefaultRulesFunc(BuiltinRules)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return Evaluator{
		rules:    rules,
		rollups:  rollups,
		fallback: fallback,
		logger:   logger.With("component", "alert_evaluator"),
		now:      time.Now,
	}
}

// EvaluateRules evaluates every enabled rule in order. Rules whose rollups cannot
// be read are skipped and their errors returned joined with the evaluations;
// callers treat such a pass as failed.
func (e Evaluator) EvaluateRules(ctx context.Context) ([]domain.RuleEvaluation, error) {
	set, source, err := e.rules.Load(ctx)
	if err != nil {
		if !errors.Is(err, ErrInvalidRuleSet) {
			return nil, err
		}
		e.logger.Warn("falling back to default alert rules", "error", err)
		set = RuleSet{Version: RuleSetVersion, Rules: e.fallback.DefaultRules()}
		source = SourceDefault
	}

	now := e.now()
	evaluations := make([]domain.RuleEvaluation, 0, len(set.Rules))
	var errs []error
	for _, rule := range set.Rules {
		if !rule.Enabled {
			continue
		}
		query := repository.RollupQuery{
			Name:  rule.MetricName,
			Range: domain.TrailingRange(now, time.Duration(rule.WindowMinutes)*time.Minute),
		}
		if !rule.IsGlobal() {
			query.ServiceID = rule.ServiceID
		}
		rollups, err := e.rollups.ListRollups(ctx, query)
		if err != nil {
			e.logger.Error("fetch rollups for rule", "rule_id", rule.ID, "error", err)
			ruleEvaluations.WithLabelValues(rule.ID, "error").Inc()
			errs = append(errs, fmt.Errorf("evaluate rule %s: %w", rule.ID, err))
			continue
		}
		evaluation := EvaluateRule(rule, rollups)
		currentValue.WithLabelValues(rule.ID).Set(evaluation.CurrentValue)
		if evaluation.Breached {
			ruleEvaluations.WithLabelValues(rule.ID, "breached").Inc()
			e.logger.Info("alert rule breached",
				"rule_id", rule.ID,
				"metric", rule.MetricName,
				"value", evaluation.CurrentValue,
				"threshold", rule.Threshold,
			)
		} else {
			ruleEvaluations.WithLabelValues(rule.ID, "ok").Inc()
		}
		evaluations = append(evaluations, evaluation)
	}
	e.logger.Debug("alert rules evaluated", "source", source, "evaluated", len(evaluations))
	return evaluations, errors.Join(errs...)
}

// EvaluateRule reduces rollups to the rule's current value and compares it.
// No rollups yield 0 and never breach.
func EvaluateRule(rule domain.AlertRule, rollups []domain.MetricRollup) domain.RuleEvaluation {
	evaluation := domain.RuleEvaluation{Rule: rule}
	if len(rollups) == 0 {
		return evaluation
	}
	if rule.IsErrorRate() {
		evaluation.CurrentValue = errorRate(rollups)
	} else {
		evaluation.CurrentValue = mean(rollups)
	}
	evaluation.Breached = Compare(rule.Condition, evaluation.CurrentValue, rule.Threshold)
	return evaluation
}

// Compare applies condition to value and threshold.
func Compare(condition domain.Condition, value, threshold float64) bool {
	switch condition {
	case domain.ConditionGreaterThan:
		return value > threshold
	case domain.ConditionLessThan:
		return value < threshold
	case domain.ConditionEqual:
		return math.Abs(value-threshold) < domain.EqualTolerance
	}
	return false
}

func errorRate(rollups []domain.MetricRollup) float64 {
	var total, failed int64
	for _, r := range rollups {
		total += r.Count
		if r.IsServerError() {
			failed += r.Count
		}
	}
	if total == 0 {
		return 0
	}
	return 100 * float64(failed) / float64(total)
}

func mean(rollups []domain.MetricRollup) float64 {
	var (
		sum   float64
		count int64
	)
	for _, r := range rollups {
		sum += r.Sum
		count += r.Count
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}
