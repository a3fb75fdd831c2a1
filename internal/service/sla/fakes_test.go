package sla

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/splax/slaguard/internal/domain"
	"github.com/splax/slaguard/internal/repository"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeDefinitions struct {
	mu         sync.Mutex
	defs       map[string]domain.SLADefinition
	order      []string
	getErr     error
	created    int
	supersedes int
}

func newFakeDefinitions(defs ...domain.SLADefinition) *fakeDefinitions {
	f := &fakeDefinitions{defs: map[string]domain.SLADefinition{}}
	for _, def := range defs {
		f.defs[def.ID] = def
		f.order = append(f.order, def.ID)
	}
	return f
}

func (f *fakeDefinitions) GetSLADefinition(_ context.Context, id string) (*domain.SLADefinition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	def, ok := f.defs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &def, nil
}

func (f *fakeDefinitions) ListSLADefinitionsActiveBetween(_ context.Context, window domain.TimeRange) ([]domain.SLADefinition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.SLADefinition
	for _, id := range f.order {
		def := f.defs[id]
		if def.ActiveFrom.After(window.End) {
			continue
		}
		if def.ActiveTo != nil && !def.ActiveTo.After(window.Start) {
			continue
		}
		out = append(out, def)
	}
	return out, nil
}

func (f *fakeDefinitions) ListLiveSLADefinitions(_ context.Context, serviceID *string, metricType domain.MetricType) ([]domain.SLADefinition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	scope := ""
	if serviceID != nil {
		scope = *serviceID
	}
	var out []domain.SLADefinition
	for _, id := range f.order {
		def := f.defs[id]
		if def.ActiveTo == nil && def.MetricType == metricType && def.Scope() == scope {
			out = append(out, def)
		}
	}
	return out, nil
}

func (f *fakeDefinitions) CreateSLADefinition(_ context.Context, def *domain.SLADefinition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	def.CreatedAt = def.ActiveFrom
	f.defs[def.ID] = *def
	f.order = append(f.order, def.ID)
	return nil
}

func (f *fakeDefinitions) SupersedeSLADefinition(_ context.Context, currentID string, activeTo time.Time, next *domain.SLADefinition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	current, ok := f.defs[currentID]
	if !ok || current.ActiveTo != nil {
		return repository.ErrConflict
	}
	current.ActiveTo = &activeTo
	f.defs[currentID] = current
	f.supersedes++
	f.defs[next.ID] = *next
	f.order = append(f.order, next.ID)
	return nil
}

type snapshotKey struct {
	date string
	id   string
}

type fakeSnapshots struct {
	mu        sync.Mutex
	rows      map[snapshotKey]domain.SLASnapshot
	upsertErr error
	upserts   int
}

func newFakeSnapshots() *fakeSnapshots {
	return &fakeSnapshots{rows: map[snapshotKey]domain.SLASnapshot{}}
}

func (f *fakeSnapshots) UpsertSLASnapshot(_ context.Context, snap *domain.SLASnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	if snap.ID == "" {
		return repository.ErrInvalidArgument
	}
	f.upserts++
	key := snapshotKey{date: snap.Date.Format(dateLayout), id: snap.SLADefinitionID}
	if existing, ok := f.rows[key]; ok {
		snap.ID = existing.ID
		snap.CreatedAt = existing.CreatedAt
	} else {
		for _, row := range f.rows {
			if row.ID == snap.ID {
				return repository.ErrConflict
			}
		}
		snap.CreatedAt = snap.Date
	}
	snap.UpdatedAt = snap.Date
	f.rows[key] = *snap
	return nil
}

func (f *fakeSnapshots) ListSLASnapshots(_ context.Context, definitionID string, window domain.TimeRange) ([]domain.SLASnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.SLASnapshot
	for _, snap := range f.rows {
		if snap.SLADefinitionID == definitionID && window.Contains(snap.Date) {
			out = append(out, snap)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

type fakeRollups struct {
	rows    []domain.MetricRollup
	err     error
	queries []repository.RollupQuery
}

func (f *fakeRollups) ListRollups(_ context.Context, query repository.RollupQuery) ([]domain.MetricRollup, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.MetricRollup
	for _, r := range f.rows {
		if r.Name != query.Name {
			continue
		}
		if query.ServiceID != "" && r.ServiceID != query.ServiceID {
			continue
		}
		if !query.Range.Contains(r.BucketStart) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

type fakeIncidents struct {
	rows []domain.IncidentTimes
	err  error
}

func (f *fakeIncidents) ListIncidentsInWindow(_ context.Context, _ string, field domain.IncidentTimeField, window domain.TimeRange) ([]domain.IncidentTimes, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.IncidentTimes
	for _, inc := range f.rows {
		if end := inc.End(field); end != nil && window.Contains(*end) {
			out = append(out, inc)
		}
	}
	return out, nil
}

func (f *fakeIncidents) FindOpenIncidentByDedupKey(context.Context, string) (*domain.Incident, error) {
	return nil, repository.ErrNotFound
}

func (f *fakeIncidents) CreateIncident(context.Context, *domain.Incident, domain.IncidentEvent) error {
	return nil
}

func (f *fakeIncidents) ClaimAndCreateIncident(context.Context, *domain.Incident, domain.IncidentEvent) (bool, error) {
	return true, nil
}
