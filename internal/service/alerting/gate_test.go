package alerting

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splax/slaguard/internal/domain"
)

func breach(rule domain.AlertRule, value float64) domain.RuleEvaluation {
	return domain.RuleEvaluation{Rule: rule, CurrentValue: value, Breached: true}
}

func globalRule(id string) domain.AlertRule {
	return domain.AlertRule{
		ID:            id,
		Name:          "High error rate",
		ServiceID:     domain.GlobalServiceID,
		MetricName:    domain.MetricHTTPRequestStatus,
		Condition:     domain.ConditionGreaterThan,
		Threshold:     5,
		WindowMinutes: 5,
		Severity:      domain.SeverityHigh,
		Enabled:       true,
	}
}

type gateFixture struct {
	incidents *fakeIncidents
	services  fakeServices
	escalator *recordingEscalator
	notifier  *recordingNotifier
	dedup     DedupStrategy
}

func newTestGate(f *gateFixture) Gate {
	if f.incidents == nil {
		f.incidents = &fakeIncidents{}
	}
	if f.escalator == nil {
		f.escalator = &recordingEscalator{}
	}
	if f.notifier == nil {
		f.notifier = &recordingNotifier{}
	}
	g := NewGate(f.incidents, f.services, GateOptions{
		Dedup:      f.dedup,
		Escalator:  f.escalator,
		Notifier:   f.notifier,
		Recipients: []string{"oncall@example.com"},
	}, discardLogger())
	g.now = func() time.Time { return testNow }
	return g
}

func TestGateCreatesIncidentForGlobalRuleOnFirstService(t *testing.T) {
	f := &gateFixture{services: fakeServices{services: []domain.Service{{ID: "svc-first"}, {ID: "svc-second"}}}}
	gate := newTestGate(f)

	ids, err := gate.CreateIncidentsForBreaches(context.Background(), []domain.RuleEvaluation{
		breach(globalRule("r1"), 12.5),
		{Rule: globalRule("r2"), CurrentValue: 1},
	})
	require.NoError(t, err)
	require.Len(t, ids, 1)

	require.Len(t, f.incidents.incidents, 1)
	incident := f.incidents.incidents[0]
	assert.Equal(t, ids[0], incident.ID)
	assert.Equal(t, "svc-first", incident.ServiceID)
	assert.Equal(t, "telemetry-r1", incident.DedupKey)
	assert.Equal(t, domain.SeverityHigh, incident.Urgency)
	assert.Equal(t, domain.IncidentTriggered, incident.Status)
	assert.Equal(t, testNow, incident.CreatedAt)
	assert.Contains(t, incident.Title, "High error rate")
	assert.Contains(t, incident.Description, "12.50")

	require.Len(t, f.incidents.events, 1)
	event := f.incidents.events[0]
	assert.Equal(t, incident.ID, event.IncidentID)
	assert.Equal(t, "automated_trigger", event.Type)
	var data map[string]any
	require.NoError(t, json.Unmarshal(event.Data, &data))
	assert.Equal(t, "r1", data["ruleId"])

	assert.Equal(t, ids, f.escalator.calls)
	assert.Equal(t, ids, f.notifier.calls)
	assert.Equal(t, []string{EventTriggered}, f.notifier.events)
	assert.Equal(t, [][]string{{"oncall@example.com"}}, f.notifier.recipients)
}

func TestGateSkipsGlobalRuleWithoutServices(t *testing.T) {
	f := &gateFixture{}
	gate := newTestGate(f)

	ids, err := gate.CreateIncidentsForBreaches(context.Background(), []domain.RuleEvaluation{breach(globalRule("r1"), 50)})
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Empty(t, f.incidents.incidents)
	assert.Empty(t, f.escalator.calls)
}

func TestGateScopedRuleUsesItsService(t *testing.T) {
	f := &gateFixture{}
	gate := newTestGate(f)
	rule := globalRule("r1")
	rule.ServiceID = "svc-scoped"
	rule.Severity = domain.SeverityLow

	ids, err := gate.CreateIncidentsForBreaches(context.Background(), []domain.RuleEvaluation{breach(rule, 9)})
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.Equal(t, "svc-scoped", f.incidents.incidents[0].ServiceID)
	assert.Equal(t, domain.SeverityLow, f.incidents.incidents[0].Urgency)
}

func TestGateDeduplicatesOpenIncidents(t *testing.T) {
	f := &gateFixture{
		incidents: &fakeIncidents{incidents: []domain.Incident{
			{ID: "open", DedupKey: "telemetry-r1", Status: domain.IncidentAcknowledged},
			{ID: "closed", DedupKey: "telemetry-r2", Status: domain.IncidentResolved},
		}},
		services: fakeServices{services: []domain.Service{{ID: "svc"}}},
	}
	gate := newTestGate(f)

	ids, err := gate.CreateIncidentsForBreaches(context.Background(), []domain.RuleEvaluation{
		breach(globalRule("r1"), 10),
		breach(globalRule("r2"), 10),
	})
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.Len(t, f.incidents.incidents, 3)

	again, err := gate.CreateIncidentsForBreaches(context.Background(), []domain.RuleEvaluation{breach(globalRule("r2"), 10)})
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestGateSwallowsSideEffectFailures(t *testing.T) {
	f := &gateFixture{
		services:  fakeServices{services: []domain.Service{{ID: "svc"}}},
		escalator: &recordingEscalator{err: errStore},
		notifier:  &recordingNotifier{err: errStore},
	}
	gate := newTestGate(f)

	ids, err := gate.CreateIncidentsForBreaches(context.Background(), []domain.RuleEvaluation{
		breach(globalRule("r1"), 10),
		breach(globalRule("r2"), 10),
	})
	require.NoError(t, err)
	assert.Len(t, ids, 2)
	assert.Len(t, f.incidents.incidents, 2)
	assert.Len(t, f.escalator.calls, 2)
	assert.Len(t, f.notifier.calls, 2)
}

func TestGateCollectsStoreErrors(t *testing.T) {
	f := &gateFixture{
		incidents: &fakeIncidents{createErr: errStore},
		services:  fakeServices{services: []domain.Service{{ID: "svc"}}},
	}
	gate := newTestGate(f)

	ids, err := gate.CreateIncidentsForBreaches(context.Background(), []domain.RuleEvaluation{
		breach(globalRule("r1"), 10),
		breach(globalRule("r2"), 10),
	})
	require.ErrorIs(t, err, errStore)
	assert.Empty(t, ids)
	assert.Empty(t, f.escalator.calls)

	f.incidents.createErr = nil
	f.services = fakeServices{err: errStore}
	gate = newTestGate(f)
	_, err = gate.CreateIncidentsForBreaches(context.Background(), []domain.RuleEvaluation{breach(globalRule("r3"), 10)})
	assert.ErrorIs(t, err, errStore)
}

func TestGateAtomicDedupHonoursClaims(t *testing.T) {
	f := &gateFixture{
		incidents: &fakeIncidents{claimed: map[string]bool{"telemetry-r1": true}},
		services:  fakeServices{services: []domain.Service{{ID: "svc"}}},
		dedup:     AtomicDedup{},
	}
	gate := newTestGate(f)

	ids, err := gate.CreateIncidentsForBreaches(context.Background(), []domain.RuleEvaluation{
		breach(globalRule("r1"), 10),
		breach(globalRule("r2"), 10),
	})
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.Equal(t, 2, f.incidents.claims)
	assert.Equal(t, "telemetry-r2", f.incidents.incidents[0].DedupKey)
	assert.Equal(t, ids, f.escalator.calls)
}

func TestDedupStrategyFor(t *testing.T) {
	strategy, err := DedupStrategyFor("")
	require.NoError(t, err)
	assert.IsType(t, BestEffortDedup{}, strategy)

	strategy, err = DedupStrategyFor(DedupAtomic)
	require.NoError(t, err)
	assert.IsType(t, AtomicDedup{}, strategy)

	_, err = DedupStrategyFor("optimistic")
	assert.Error(t, err)
}

func TestDedupKeyIsStable(t *testing.T) {
	rule := globalRule("rule-42")
	assert.Equal(t, "telemetry-rule-42", rule.DedupKey())
	rule.Threshold = 99
	rule.ServiceID = "svc"
	assert.Equal(t, "telemetry-rule-42", rule.DedupKey())
}
