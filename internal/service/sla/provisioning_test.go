package sla

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splax/slaguard/internal/domain"
	"github.com/splax/slaguard/internal/repository"
)

func newTestRegistry(defs *fakeDefinitions, policy LivePolicy) Registry {
	r := NewRegistry(defs, policy, discardLogger())
	r.now = func() time.Time { return testDay.Add(9 * time.Hour) }
	return r
}

func TestCreateDefaultSLA(t *testing.T) {
	defs := newFakeDefinitions()
	registry := newTestRegistry(defs, LivePolicyReject)

	def, err := registry.CreateDefaultSLA(context.Background(), "svc-api")
	require.NoError(t, err)

	assert.NotEmpty(t, def.ID)
	assert.Equal(t, "Standard Availability (99.9%)", def.Name)
	assert.Equal(t, domain.MetricUptime, def.MetricType)
	assert.Equal(t, 99.9, def.Target)
	assert.Equal(t, domain.Window30d, def.Window)
	assert.Equal(t, 1, def.Version)
	assert.Equal(t, testDay.Add(9*time.Hour), def.ActiveFrom)
	assert.Nil(t, def.ActiveTo)
	require.NotNil(t, def.ServiceID)
	assert.Equal(t, "svc-api", *def.ServiceID)
}

func TestCreateDefaultSLAGlobalScope(t *testing.T) {
	registry := newTestRegistry(newFakeDefinitions(), LivePolicyReject)

	def, err := registry.CreateDefaultSLA(context.Background(), "  ")
	require.NoError(t, err)
	assert.True(t, def.IsGlobal())
}

func TestCreateRejectsDuplicateLiveDefinition(t *testing.T) {
	defs := newFakeDefinitions()
	registry := newTestRegistry(defs, LivePolicyReject)

	_, err := registry.CreateDefaultSLA(context.Background(), "svc-api")
	require.NoError(t, err)

	_, err = registry.CreateDefaultSLA(context.Background(), "svc-api")
	require.ErrorIs(t, err, ErrLiveDefinitionExists)
	assert.Equal(t, 1, defs.created)

	_, err = registry.CreateDefaultSLA(context.Background(), "svc-web")
	require.NoError(t, err)
	assert.Equal(t, 2, defs.created)
}

func TestCreateAllowsDuplicatesWhenPermitted(t *testing.T) {
	defs := newFakeDefinitions()
	registry := newTestRegistry(defs, LivePolicyAllow)

	first, err := registry.CreateDefaultSLA(context.Background(), "svc-api")
	require.NoError(t, err)
	second, err := registry.CreateDefaultSLA(context.Background(), "svc-api")
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 1, second.Version)
	assert.Equal(t, 2, defs.created)
}

func TestCreateSupersedesLiveDefinition(t *testing.T) {
	defs := newFakeDefinitions()
	registry := newTestRegistry(defs, LivePolicySupersede)

	first, err := registry.CreateDefaultSLA(context.Background(), "svc-api")
	require.NoError(t, err)
	second, err := registry.CreateDefaultSLA(context.Background(), "svc-api")
	require.NoError(t, err)

	assert.Equal(t, 2, second.Version)
	assert.Equal(t, 1, defs.supersedes)

	closed, err := defs.GetSLADefinition(context.Background(), first.ID)
	require.NoError(t, err)
	require.NotNil(t, closed.ActiveTo)
	assert.Equal(t, second.ActiveFrom, *closed.ActiveTo)

	live, err := defs.ListLiveSLADefinitions(context.Background(), second.ServiceID, domain.MetricUptime)
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, second.ID, live[0].ID)
}

func TestCreateValidatesInput(t *testing.T) {
	registry := newTestRegistry(newFakeDefinitions(), LivePolicyReject)

	_, err := registry.Create(context.Background(), CreateInput{Name: "x", Target: 99, MetricType: "THROUGHPUT"})
	assert.True(t, IsValidationError(err))

	_, err = registry.Create(context.Background(), CreateInput{Name: "x", Target: -1, MetricType: domain.MetricMTTR})
	assert.True(t, IsValidationError(err))

	_, err = registry.Create(context.Background(), CreateInput{Name: "x", Target: 1, MetricType: domain.MetricMTTR, Window: "2w"})
	assert.True(t, IsValidationError(err))
}

func TestSupersedeChangesTarget(t *testing.T) {
	defs := newFakeDefinitions(uptimeDefinition("def-1", 99.9))
	registry := newTestRegistry(defs, LivePolicyReject)
	target := 99.5

	next, err := registry.Supersede(context.Background(), "def-1", SupersedeInput{Target: &target})
	require.NoError(t, err)

	assert.Equal(t, 2, next.Version)
	assert.Equal(t, 99.5, next.Target)
	assert.Equal(t, DefaultSLAName, next.Name)
	assert.Nil(t, next.ActiveTo)

	previous, err := defs.GetSLADefinition(context.Background(), "def-1")
	require.NoError(t, err)
	require.NotNil(t, previous.ActiveTo)
	assert.Equal(t, 99.9, previous.Target)

	_, err = registry.Supersede(context.Background(), "def-1", SupersedeInput{Target: &target})
	assert.True(t, IsValidationError(err))
}

func TestSupersedeUnknownDefinition(t *testing.T) {
	registry := newTestRegistry(newFakeDefinitions(), LivePolicyReject)

	_, err := registry.Supersede(context.Background(), "missing", SupersedeInput{})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
