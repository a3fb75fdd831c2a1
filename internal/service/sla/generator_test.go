package sla

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splax/slaguard/internal/domain"
)

var testDay = time.Date(2024, time.March, 14, 0, 0, 0, 0, time.UTC)

func statusRollup(service, status string, count int64, at time.Time) domain.MetricRollup {
	return domain.MetricRollup{
		ServiceID:   service,
		Name:        domain.MetricHTTPRequestStatus,
		BucketStart: at,
		Count:       count,
		Tags:        map[string]string{"status": status},
	}
}

func uptimeDefinition(id string, target float64) domain.SLADefinition {
	service := "svc-api"
	return domain.SLADefinition{
		ID:         id,
		ServiceID:  &service,
		Name:       DefaultSLAName,
		Version:    1,
		Target:     target,
		Window:     domain.Window30d,
		MetricType: domain.MetricUptime,
		ActiveFrom: testDay.AddDate(0, -1, 0),
	}
}

type generatorFixture struct {
	defs      *fakeDefinitions
	snapshots *fakeSnapshots
	rollups   *fakeRollups
	incidents *fakeIncidents
}

func newGenerator(f generatorFixture) Generator {
	if f.snapshots == nil {
		f.snapshots = newFakeSnapshots()
	}
	if f.rollups == nil {
		f.rollups = &fakeRollups{}
	}
	if f.incidents == nil {
		f.incidents = &fakeIncidents{}
	}
	return NewGenerator(f.defs, f.snapshots, f.rollups, f.incidents, 2, discardLogger())
}

func TestGenerateDailySnapshotUptimeBreach(t *testing.T) {
	snapshots := newFakeSnapshots()
	rollups := &fakeRollups{rows: []domain.MetricRollup{
		statusRollup("svc-api", "200", 920, testDay.Add(2*time.Hour)),
		statusRollup("svc-api", "503", 80, testDay.Add(3*time.Hour)),
		statusRollup("svc-api", "500", 500, testDay.AddDate(0, 0, 1)),
		statusRollup("svc-other", "500", 500, testDay.Add(time.Hour)),
	}}
	gen := newGenerator(generatorFixture{
		defs:      newFakeDefinitions(uptimeDefinition("def-1", 99.9)),
		snapshots: snapshots,
		rollups:   rollups,
	})

	snap, err := gen.GenerateDailySnapshot(context.Background(), "def-1", testDay.Add(15*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, snap)

	assert.Equal(t, testDay, snap.Date)
	assert.Equal(t, int64(1000), snap.TotalEvents)
	assert.Equal(t, int64(80), snap.ErrorEvents)
	assert.InDelta(t, 92.0, snap.UptimePercentage, 1e-9)
	assert.Equal(t, 1, snap.BreachCount)

	require.Len(t, rollups.queries, 1)
	assert.Equal(t, "svc-api", rollups.queries[0].ServiceID)
	assert.Equal(t, testDay, rollups.queries[0].Range.Start)
	assert.Equal(t, testDay.Add(24*time.Hour-time.Millisecond), rollups.queries[0].Range.End)
}

func TestGenerateDailySnapshotNoTrafficIsFullyAvailable(t *testing.T) {
	gen := newGenerator(generatorFixture{defs: newFakeDefinitions(uptimeDefinition("def-1", 99.9))})

	snap, err := gen.GenerateDailySnapshot(context.Background(), "def-1", testDay)
	require.NoError(t, err)
	assert.Equal(t, 100.0, snap.UptimePercentage)
	assert.Equal(t, int64(0), snap.TotalEvents)
	assert.Equal(t, 0, snap.BreachCount)
}

func TestGenerateDailySnapshotBreachBelowTarget(t *testing.T) {
	rollups := &fakeRollups{rows: []domain.MetricRollup{
		statusRollup("svc-api", "200", 995, testDay),
		statusRollup("svc-api", "502", 5, testDay),
	}}
	gen := newGenerator(generatorFixture{defs: newFakeDefinitions(uptimeDefinition("def-1", 99.9)), rollups: rollups})

	snap, err := gen.GenerateDailySnapshot(context.Background(), "def-1", testDay)
	require.NoError(t, err)
	assert.InDelta(t, 99.5, snap.UptimePercentage, 1e-9)
	assert.Equal(t, 1, snap.BreachCount)
}

func TestGenerateDailySnapshotIsIdempotent(t *testing.T) {
	snapshots := newFakeSnapshots()
	rollups := &fakeRollups{rows: []domain.MetricRollup{statusRollup("svc-api", "200", 10, testDay)}}
	gen := newGenerator(generatorFixture{
		defs:      newFakeDefinitions(uptimeDefinition("def-1", 99.9)),
		snapshots: snapshots,
		rollups:   rollups,
	})

	first, err := gen.GenerateDailySnapshot(context.Background(), "def-1", testDay)
	require.NoError(t, err)
	second, err := gen.GenerateDailySnapshot(context.Background(), "def-1", testDay.Add(time.Hour))
	require.NoError(t, err)

	assert.Len(t, snapshots.rows, 1)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.UptimePercentage, second.UptimePercentage)
	assert.Equal(t, first.TotalEvents, second.TotalEvents)
	assert.Equal(t, first.BreachCount, second.BreachCount)
}

func TestGenerateDailySnapshotMTTRWithinTarget(t *testing.T) {
	def := uptimeDefinition("def-mttr", 60)
	def.MetricType = domain.MetricMTTR
	resolvedA := testDay.Add(2 * time.Hour)
	resolvedB := testDay.Add(5 * time.Hour)
	open := testDay.Add(6 * time.Hour)
	incidents := &fakeIncidents{rows: []domain.IncidentTimes{
		{CreatedAt: resolvedA.Add(-30 * time.Minute), ResolvedAt: &resolvedA},
		{CreatedAt: resolvedB.Add(-60 * time.Minute), ResolvedAt: &resolvedB},
		{CreatedAt: open, AcknowledgedAt: &open},
	}}
	gen := newGenerator(generatorFixture{defs: newFakeDefinitions(def), incidents: incidents})

	snap, err := gen.GenerateDailySnapshot(context.Background(), "def-mttr", testDay)
	require.NoError(t, err)
	assert.InDelta(t, 45.0, snap.UptimePercentage, 1e-9)
	assert.Equal(t, 0, snap.BreachCount)
	assert.Equal(t, int64(2), snap.TotalEvents)

	var meta map[string]float64
	require.NoError(t, json.Unmarshal(snap.Metadata, &meta))
	assert.InDelta(t, 90.0, meta["totalDurationMinutes"], 1e-9)
	assert.Equal(t, 2.0, meta["incidentCount"])
}

func TestGenerateDailySnapshotLatencyUsesMaxFallback(t *testing.T) {
	def := uptimeDefinition("def-lat", 300)
	def.MetricType = domain.MetricLatencyP99
	p99 := 200.0
	rollups := &fakeRollups{rows: []domain.MetricRollup{
		{ServiceID: "svc-api", Name: domain.MetricHTTPRequestDuration, BucketStart: testDay, Count: 3, Max: 900, P99: &p99},
		{ServiceID: "svc-api", Name: domain.MetricHTTPRequestDuration, BucketStart: testDay, Count: 1, Max: 800},
	}}
	gen := newGenerator(generatorFixture{defs: newFakeDefinitions(def), rollups: rollups})

	snap, err := gen.GenerateDailySnapshot(context.Background(), "def-lat", testDay)
	require.NoError(t, err)
	assert.InDelta(t, 350.0, snap.UptimePercentage, 1e-9)
	assert.Equal(t, 1, snap.BreachCount)
}

func TestGenerateDailySnapshotUnknownDefinition(t *testing.T) {
	snapshots := newFakeSnapshots()
	gen := newGenerator(generatorFixture{defs: newFakeDefinitions(), snapshots: snapshots})

	snap, err := gen.GenerateDailySnapshot(context.Background(), "missing", testDay)
	assert.NoError(t, err)
	assert.Nil(t, snap)
	assert.Zero(t, snapshots.upserts)
}

func TestGenerateDailySnapshotPropagatesFetchError(t *testing.T) {
	boom := errors.New("rollup store unavailable")
	snapshots := newFakeSnapshots()
	gen := newGenerator(generatorFixture{
		defs:      newFakeDefinitions(uptimeDefinition("def-1", 99.9)),
		snapshots: snapshots,
		rollups:   &fakeRollups{err: boom},
	})

	snap, err := gen.GenerateDailySnapshot(context.Background(), "def-1", testDay)
	require.ErrorIs(t, err, boom)
	assert.Nil(t, snap)
	assert.Zero(t, snapshots.upserts)
}

func TestGenerateForDateCollectsFailures(t *testing.T) {
	healthy := uptimeDefinition("def-ok", 99.9)
	broken := uptimeDefinition("def-mtta", 15)
	broken.MetricType = domain.MetricMTTA
	retired := uptimeDefinition("def-retired", 99.9)
	closed := testDay.AddDate(0, 0, -3)
	retired.ActiveTo = &closed

	boom := errors.New("incident store unavailable")
	snapshots := newFakeSnapshots()
	gen := newGenerator(generatorFixture{
		defs:      newFakeDefinitions(healthy, broken, retired),
		snapshots: snapshots,
		incidents: &fakeIncidents{err: boom},
	})

	outcomes, err := gen.GenerateForDate(context.Background(), testDay)
	require.ErrorIs(t, err, boom)
	require.Len(t, outcomes, 2)

	assert.Equal(t, "def-ok", outcomes[0].DefinitionID)
	assert.NoError(t, outcomes[0].Err)
	require.NotNil(t, outcomes[0].Snapshot)
	assert.Equal(t, "def-mtta", outcomes[1].DefinitionID)
	assert.ErrorIs(t, outcomes[1].Err, boom)
	assert.Len(t, snapshots.rows, 1)
}

func TestGenerateForDateStoresEveryDefinitionAcrossRuns(t *testing.T) {
	snapshots := newFakeSnapshots()
	rollups := &fakeRollups{rows: []domain.MetricRollup{statusRollup("svc-api", "200", 10, testDay)}}
	gen := newGenerator(generatorFixture{
		defs:      newFakeDefinitions(uptimeDefinition("a", 99.9), uptimeDefinition("b", 99.9)),
		snapshots: snapshots,
		rollups:   rollups,
	})

	first, err := gen.GenerateForDate(context.Background(), testDay)
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.NotEmpty(t, first[0].Snapshot.ID)
	require.NotEmpty(t, first[1].Snapshot.ID)
	assert.NotEqual(t, first[0].Snapshot.ID, first[1].Snapshot.ID)

	second, err := gen.GenerateForDate(context.Background(), testDay)
	require.NoError(t, err)
	assert.Len(t, snapshots.rows, 2)
	assert.Equal(t, first[0].Snapshot.ID, second[0].Snapshot.ID)
	assert.Equal(t, first[1].Snapshot.ID, second[1].Snapshot.ID)
}

func TestEvaluateResponseTimeSkipsNegativeDurations(t *testing.T) {
	created := testDay.Add(time.Hour)
	before := created.Add(-10 * time.Minute)
	after := created.Add(20 * time.Minute)

	m := EvaluateResponseTime([]domain.IncidentTimes{
		{CreatedAt: created, AcknowledgedAt: &before},
		{CreatedAt: created, AcknowledgedAt: &after},
	}, domain.IncidentAcknowledgedAt, 15)

	assert.InDelta(t, 20.0, m.Value, 1e-9)
	assert.True(t, m.Breached)
	assert.Equal(t, int64(1), m.TotalEvents)
}

func TestEvaluateResponseTimeNoIncidents(t *testing.T) {
	m := EvaluateResponseTime(nil, domain.IncidentResolvedAt, 60)
	assert.Zero(t, m.Value)
	assert.False(t, m.Breached)
}
