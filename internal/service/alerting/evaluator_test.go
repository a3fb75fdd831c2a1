package alerting

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splax/slaguard/internal/domain"
)

func newTestEvaluator(settings *fakeSettings, rollups *fakeRollups) Evaluator {
	e := NewEvaluator(NewRuleStore(settings, nil, discardLogger()), rollups, nil, discardLogger())
	e.now = func() time.Time { return testNow }
	return e
}

func storeRules(t *testing.T, settings *fakeSettings, rules ...domain.AlertRule) {
	t.Helper()
	_, err := NewRuleStore(settings, nil, discardLogger()).Save(context.Background(), RuleSet{Rules: rules})
	require.NoError(t, err)
}

func TestEvaluateRulesWithoutRollupsNeverBreach(t *testing.T) {
	rollups := &fakeRollups{}
	evaluator := newTestEvaluator(newFakeSettings(), rollups)

	evaluations, err := evaluator.EvaluateRules(context.Background())
	require.NoError(t, err)
	require.Len(t, evaluations, 2)
	for _, evaluation := range evaluations {
		assert.Zero(t, evaluation.CurrentValue)
		assert.False(t, evaluation.Breached)
	}

	require.Len(t, rollups.queries, 2)
	for _, query := range rollups.queries {
		assert.Empty(t, query.ServiceID, "global rules query every service")
		assert.Equal(t, testNow.Add(-5*time.Minute), query.Range.Start)
		assert.Equal(t, testNow, query.Range.End)
	}
}

func TestEvaluateRulesErrorRate(t *testing.T) {
	rollups := &fakeRollups{byName: map[string][]domain.MetricRollup{
		domain.MetricHTTPRequestStatus: {
			{ServiceID: "svc-a", Name: domain.MetricHTTPRequestStatus, Count: 90, Tags: map[string]string{"status": "200"}},
			{ServiceID: "svc-a", Name: domain.MetricHTTPRequestStatus, Count: 10, Tags: map[string]string{"status": "503"}},
			{ServiceID: "svc-b", Name: domain.MetricHTTPRequestStatus, Count: 100, Tags: map[string]string{"status": "500"}},
		},
	}}
	settings := newFakeSettings()
	storeRules(t, settings, domain.AlertRule{
		ID: "errors-a", ServiceID: "svc-a", MetricName: domain.MetricHTTPRequestStatus,
		Condition: domain.ConditionGreaterThan, Threshold: 5, WindowMinutes: 10,
		Severity: domain.SeverityHigh, Enabled: true,
	})

	evaluations, err := newTestEvaluator(settings, rollups).EvaluateRules(context.Background())
	require.NoError(t, err)
	require.Len(t, evaluations, 1)
	assert.InDelta(t, 10.0, evaluations[0].CurrentValue, 1e-9)
	assert.True(t, evaluations[0].Breached)
	assert.Equal(t, "svc-a", rollups.queries[0].ServiceID)
	assert.Equal(t, testNow.Add(-10*time.Minute), rollups.queries[0].Range.Start)
}

func TestEvaluateRulesMeanAndDisabledRules(t *testing.T) {
	rollups := &fakeRollups{byName: map[string][]domain.MetricRollup{
		domain.MetricHTTPRequestDuration: {
			{Name: domain.MetricHTTPRequestDuration, Count: 2, Sum: 3000},
			{Name: domain.MetricHTTPRequestDuration, Count: 2, Sum: 5000},
		},
	}}
	settings := newFakeSettings()
	storeRules(t, settings,
		domain.AlertRule{ID: "disabled", MetricName: domain.MetricHTTPRequestDuration, Condition: domain.ConditionGreaterThan, Threshold: 1, WindowMinutes: 5, Severity: domain.SeverityHigh},
		domain.AlertRule{ID: "latency", MetricName: domain.MetricHTTPRequestDuration, Condition: domain.ConditionLessThan, Threshold: 2500, WindowMinutes: 5, Severity: domain.SeverityLow, Enabled: true},
	)

	evaluations, err := newTestEvaluator(settings, rollups).EvaluateRules(context.Background())
	require.NoError(t, err)
	require.Len(t, evaluations, 1)
	assert.Equal(t, "latency", evaluations[0].Rule.ID)
	assert.InDelta(t, 2000.0, evaluations[0].CurrentValue, 1e-9)
	assert.True(t, evaluations[0].Breached)
	assert.Len(t, rollups.queries, 1)
}

func TestEvaluateRulesContinuesAfterStoreError(t *testing.T) {
	rollups := &fakeRollups{
		byName: map[string][]domain.MetricRollup{
			domain.MetricHTTPRequestDuration: {{Name: domain.MetricHTTPRequestDuration, Count: 1, Sum: 2500}},
		},
		errFor: map[string]error{domain.MetricHTTPRequestStatus: errStore},
	}

	evaluations, err := newTestEvaluator(newFakeSettings(), rollups).EvaluateRules(context.Background())
	require.ErrorIs(t, err, errStore)
	require.Len(t, evaluations, 1)
	assert.Equal(t, "default-latency", evaluations[0].Rule.ID)
	assert.True(t, evaluations[0].Breached)
}

func TestEvaluateRulesFallsBackOnMalformedConfiguration(t *testing.T) {
	settings := newFakeSettings()
	settings.values[SettingsKey] = []byte(`{"rules": "nope"}`)

	evaluations, err := newTestEvaluator(settings, &fakeRollups{}).EvaluateRules(context.Background())
	require.NoError(t, err)
	assert.Len(t, evaluations, 2)
}

func TestEvaluateRulesFallsBackOnStoredRuleThatFailsValidation(t *testing.T) {
	settings := newFakeSettings()
	settings.values[SettingsKey] = []byte(`[{"id":"dup","metricName":"queue.depth","condition":"gt","threshold":1,"windowMinutes":5,"severity":"LOW","enabled":true},{"id":"dup","metricName":"queue.depth","condition":"gt","threshold":1,"windowMinutes":5,"severity":"LOW","enabled":true}]`)

	evaluations, err := newTestEvaluator(settings, &fakeRollups{}).EvaluateRules(context.Background())
	require.NoError(t, err)
	require.Len(t, evaluations, 2)
	assert.Equal(t, "default-error-rate", evaluations[0].Rule.ID)
}

func TestEvaluateRulesNormalizesLowercaseSeverity(t *testing.T) {
	rollups := &fakeRollups{byName: map[string][]domain.MetricRollup{
		"queue.depth": {{Name: "queue.depth", Count: 1, Sum: 10}},
	}}
	settings := newFakeSettings()
	settings.values[SettingsKey] = []byte(`[{"id":"depth","metricName":"queue.depth","condition":"GT","threshold":5,"windowMinutes":5,"severity":"low","enabled":true}]`)

	evaluations, err := newTestEvaluator(settings, rollups).EvaluateRules(context.Background())
	require.NoError(t, err)
	require.Len(t, evaluations, 1)
	assert.Equal(t, domain.SeverityLow, evaluations[0].Rule.Severity)
	assert.True(t, evaluations[0].Breached)
}

func TestEvaluateRulesPropagatesSettingsFailure(t *testing.T) {
	settings := newFakeSettings()
	settings.getErr = errStore

	_, err := newTestEvaluator(settings, &fakeRollups{}).EvaluateRules(context.Background())
	assert.ErrorIs(t, err, errStore)
}

func TestCompare(t *testing.T) {
	cases := []struct {
		condition domain.Condition
		value     float64
		threshold float64
		want      bool
	}{
		{domain.ConditionGreaterThan, 5.01, 5, true},
		{domain.ConditionGreaterThan, 5, 5, false},
		{domain.ConditionLessThan, 4.99, 5, true},
		{domain.ConditionLessThan, 5, 5, false},
		{domain.ConditionEqual, 5.005, 5, true},
		{domain.ConditionEqual, 4.995, 5, true},
		{domain.ConditionEqual, 5.02, 5, false},
		{"gte", 10, 5, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Compare(tc.condition, tc.value, tc.threshold), "%s %v %v", tc.condition, tc.value, tc.threshold)
	}
}
