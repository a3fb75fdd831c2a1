package alerting

import (
	"context"
	"log/slog"
)

// EvaluationResult summarizes one evaluation pass.
type EvaluationResult struct {
	Evaluated        int      `json:"evaluated"`
	Breached         int      `json:"breached"`
	IncidentsCreated int      `json:"incidentsCreated"`
	IncidentIDs      []string `json:"incidentIds"`
}

// Engine composes the evaluator and the gate. Scheduling is left to callers.
type Engine struct {
	evaluator Evaluator
	gate      Gate
	logger    *slog.Logger
}

// NewEngine returns an evaluation engine.
func NewEngine(evaluator Evaluator, gate Gate, logger *slog.Logger) Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return Engine{evaluator: evaluator, gate: gate, logger: logger.With("component", "alert_engine")}
}

// RunEvaluation evaluates all rules and creates incidents for the breaches.
func (e Engine) RunEvaluation(ctx context.Context) (EvaluationResult, error) {
	evaluations, err := e.evaluator.EvaluateRules(ctx)
	result := EvaluationResult{Evaluated: len(evaluations), IncidentIDs: []string{}}
	for _, evaluation := range evaluations {
		if evaluation.Breached {
			result.Breached++
		}
	}
	// A partial pass never reaches the gate.
	if err != nil {
		e.logger.Error("evaluation pass aborted before incident gate",
			"evaluated", result.Evaluated,
			"breached", result.Breached,
			"error", err,
		)
		return result, err
	}

	ids, err := e.gate.CreateIncidentsForBreaches(ctx, evaluations)
	result.IncidentIDs = append(result.IncidentIDs, ids...)
	result.IncidentsCreated = len(ids)

	e.logger.Info("evaluation pass complete",
		"evaluated", result.Evaluated,
		"breached", result.Breached,
		"incidents_created", result.IncidentsCreated,
	)
	return result, err
}
